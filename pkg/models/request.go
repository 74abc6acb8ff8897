package models

import "time"

// RequestStatus represents the lifecycle state of an orchestration request.
type RequestStatus string

const (
	// RequestStatusReceived indicates the request was accepted but not yet decomposed.
	RequestStatusReceived RequestStatus = "received"
	// RequestStatusDecomposed indicates a subtask graph exists for the request.
	RequestStatusDecomposed RequestStatus = "decomposed"
	// RequestStatusExecuting indicates subtasks are being dispatched.
	RequestStatusExecuting RequestStatus = "executing"
	// RequestStatusValidating indicates produced artifacts are under validation.
	RequestStatusValidating RequestStatus = "validating"
	// RequestStatusCorrecting indicates a correction loop is in progress.
	RequestStatusCorrecting RequestStatus = "correcting"
	// RequestStatusEscalated indicates the request moved to a higher hierarchy level.
	RequestStatusEscalated RequestStatus = "escalated"
	// RequestStatusCompleted indicates the request finished successfully. Terminal.
	RequestStatusCompleted RequestStatus = "completed"
	// RequestStatusFailed indicates the request failed. Terminal.
	RequestStatusFailed RequestStatus = "failed"
	// RequestStatusCancelled indicates the request was cancelled by the caller. Terminal.
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusReceived, RequestStatusDecomposed, RequestStatusExecuting,
		RequestStatusValidating, RequestStatusCorrecting, RequestStatusEscalated,
		RequestStatusCompleted, RequestStatusFailed, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusFailed || s == RequestStatusCancelled
}

// AttemptRecord captures one dispatch of one subtask to one agent.
type AttemptRecord struct {
	// TaskID is the subtask that was dispatched.
	TaskID string `json:"task_id"`
	// AgentID is the agent the subtask was dispatched to.
	AgentID string `json:"agent_id"`
	// Attempt is the 1-indexed attempt number for this subtask.
	Attempt int `json:"attempt"`
	// Outcome is "completed", "failed", or "timeout".
	Outcome string `json:"outcome"`
	// Error holds the failure message, if any.
	Error string `json:"error,omitempty"`
	// Duration is how long the dispatch took.
	Duration time.Duration `json:"duration"`
	// At is when the attempt finished.
	At time.Time `json:"at"`
}

// EscalationRecord captures one level-to-level escalation.
type EscalationRecord struct {
	// FromLevel is the hierarchy level that exhausted its corrections.
	FromLevel int `json:"from_level"`
	// ToLevel is the level the failing subgraph was re-submitted to.
	ToLevel int `json:"to_level"`
	// Strategy is the coordination strategy applied at the new level.
	Strategy CoordinationStrategy `json:"strategy"`
	// Reason summarizes why escalation fired.
	Reason string `json:"reason"`
	// At is when the escalation happened.
	At time.Time `json:"at"`
}

// RequestTrace is the complete attempt, correction, and escalation history
// of a request. A terminal failure always carries the full trace.
type RequestTrace struct {
	// Attempts lists every dispatch in order.
	Attempts []AttemptRecord `json:"attempts,omitempty"`
	// Corrections lists every correction-loop pass in order.
	Corrections []CorrectionAttempt `json:"corrections,omitempty"`
	// Escalations lists every level change in order.
	Escalations []EscalationRecord `json:"escalations,omitempty"`
}

// OrchestrationRequest tracks one submitted request for its whole life.
// It is owned by the WorkflowManager until the retention window expires.
type OrchestrationRequest struct {
	// ID is the unique identifier for this request.
	ID string `json:"id"`
	// Input is the original request text as submitted.
	Input string `json:"input"`
	// HierarchyLevel is the current orchestration level, 0-indexed.
	// Monotonically non-decreasing for the life of the request.
	HierarchyLevel int `json:"hierarchy_level"`
	// Status is the current lifecycle state.
	Status RequestStatus `json:"status"`
	// Trace is the full attempt/correction/escalation history.
	Trace RequestTrace `json:"trace"`
	// BlockingTasks names the subtask(s) that prevented completion, set on
	// terminal failure.
	BlockingTasks []string `json:"blocking_tasks,omitempty"`
	// SubmittedAt is when the request was accepted.
	SubmittedAt time.Time `json:"submitted_at"`
	// FinishedAt is when the request reached a terminal state, if it has.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
