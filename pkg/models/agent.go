package models

import "time"

// AgentClass groups agents with equivalent capability and cost profiles.
// Concurrency ceilings are enforced per class.
type AgentClass string

const (
	// ClassGeneralist handles any task type at moderate quality.
	ClassGeneralist AgentClass = "generalist"
	// ClassSpecialist handles a narrow set of task types at high quality.
	ClassSpecialist AgentClass = "specialist"
	// ClassReviewer is reserved for review and consensus duties.
	ClassReviewer AgentClass = "reviewer"
)

// Valid returns true if the class is a known value.
func (c AgentClass) Valid() bool {
	switch c {
	case ClassGeneralist, ClassSpecialist, ClassReviewer:
		return true
	default:
		return false
	}
}

// Agent describes a worker registered in the pool. The struct itself is
// immutable after registration; the live load counter is owned by the pool.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Class is the concurrency-limit class this agent belongs to.
	Class AgentClass `json:"class"`
	// Capabilities lists the task types this agent can execute.
	Capabilities []TaskType `json:"capabilities"`
	// MaxConcurrency is the number of tasks this agent may run at once.
	MaxConcurrency int `json:"max_concurrency"`
	// RegisteredAt is when the agent joined the pool.
	RegisteredAt time.Time `json:"registered_at"`
}

// CanHandle returns true if the agent's capability tags include the
// given task type.
func (a *Agent) CanHandle(t TaskType) bool {
	for _, c := range a.Capabilities {
		if c == t {
			return true
		}
	}
	return false
}

// Artifact is the output an agent produces for one task.
// An Artifact is never mutated after creation; correction attempts
// produce fresh artifacts.
type Artifact struct {
	// ID is the unique identifier for this artifact.
	ID string `json:"id"`
	// TaskID is the task this artifact was produced for.
	TaskID string `json:"task_id"`
	// AgentID is the agent that produced this artifact.
	AgentID string `json:"agent_id"`
	// Content is the produced output.
	Content string `json:"content"`
	// Confidence is the agent's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// ProducedAt is when the artifact was created.
	ProducedAt time.Time `json:"produced_at"`
}
