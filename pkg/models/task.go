package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusAssigned indicates the task has been handed to an agent.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusRunning indicates an agent is actively working on the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusBlocked indicates the task cannot proceed because a dependency failed.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusRetried indicates the task failed and is queued for another attempt.
	TaskStatusRetried TaskStatus = "retried"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked, TaskStatusRetried:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition is permitted from this status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusBlocked
}

// taskTransitions lists the permitted forward transitions per status.
// The only loop edge is failed -> retried -> assigned, bounded by the
// task's retry budget.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:  {TaskStatusAssigned, TaskStatusBlocked},
	TaskStatusAssigned: {TaskStatusRunning, TaskStatusFailed},
	TaskStatusRunning:  {TaskStatusCompleted, TaskStatusFailed},
	TaskStatusFailed:   {TaskStatusRetried, TaskStatusBlocked},
	TaskStatusRetried:  {TaskStatusAssigned},
}

// CanTransition returns true if moving from s to next is a permitted
// forward transition.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TaskType classifies the kind of work a subtask represents.
type TaskType string

const (
	// TaskTypeAnalysis is requirements or domain analysis work.
	TaskTypeAnalysis TaskType = "analysis"
	// TaskTypeDesign is architecture or interface design work.
	TaskTypeDesign TaskType = "design"
	// TaskTypeUIGeneration produces user-facing interface artifacts.
	TaskTypeUIGeneration TaskType = "ui_generation"
	// TaskTypeCodeGeneration produces implementation artifacts.
	TaskTypeCodeGeneration TaskType = "code_generation"
	// TaskTypeValidationLogic produces input/business validation artifacts.
	TaskTypeValidationLogic TaskType = "validation_logic"
	// TaskTypeTestGeneration produces test artifacts.
	TaskTypeTestGeneration TaskType = "test_generation"
	// TaskTypeIntegration combines artifacts from upstream subtasks.
	TaskTypeIntegration TaskType = "integration"
	// TaskTypeReview is a review pass over upstream artifacts.
	TaskTypeReview TaskType = "review"
	// TaskTypeDelivery is the single terminal node that assembles the
	// final result for a request.
	TaskTypeDelivery TaskType = "delivery"
)

// Task represents a unit of work in a subtask graph.
// A Task is owned exclusively by the graph that contains it; callers
// outside the coordinator only ever see copies.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// RequestID is the ID of the orchestration request this task belongs to.
	RequestID string `json:"request_id,omitempty"`
	// Description provides detailed information about the task.
	Description string `json:"description"`
	// Type classifies the kind of work this task represents.
	Type TaskType `json:"type"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// AssignedAgent is the ID of the agent working on this task.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// Result holds the artifact produced for this task, once completed.
	Result *Artifact `json:"result,omitempty"`
	// RetriesRemaining is the number of retry attempts left. Never negative.
	RetriesRemaining int `json:"retries_remaining"`
	// FailedAgents records agents that failed this task, most recent last.
	// A retry avoids the agent that just failed when an alternative exists.
	FailedAgents []string `json:"failed_agents,omitempty"`
	// Criticality scores how important this task is to the request, in [0,1].
	// The adaptive strategy reads it when choosing a per-task strategy.
	Criticality float64 `json:"criticality,omitempty"`
	// BlockedReason explains why the task is blocked, if it is.
	BlockedReason string `json:"blocked_reason,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ConsumeRetry decrements the retry budget and returns true if a retry
// was available. The budget never goes negative.
func (t *Task) ConsumeRetry() bool {
	if t.RetriesRemaining <= 0 {
		return false
	}
	t.RetriesRemaining--
	return true
}

// LastFailedAgent returns the agent that most recently failed this task,
// or "" if none has.
func (t *Task) LastFailedAgent() string {
	if len(t.FailedAgents) == 0 {
		return ""
	}
	return t.FailedAgents[len(t.FailedAgents)-1]
}
