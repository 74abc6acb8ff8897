package coordinator

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownStrategy indicates an unrecognized coordination strategy.
var ErrUnknownStrategy = errors.New("unknown coordination strategy")

// ErrQuorumUnreachable indicates the pool cannot supply enough distinct
// agents for a consensus vote.
var ErrQuorumUnreachable = errors.New("consensus quorum unreachable")

// AgentTimeoutError indicates an agent did not respond within the task's
// complexity-derived timeout. Recoverable: it consumes retry budget.
type AgentTimeoutError struct {
	// AgentID is the agent that timed out.
	AgentID string
	// TaskID is the task being executed.
	TaskID string
	// Timeout is the budget that elapsed.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *AgentTimeoutError) Error() string {
	return fmt.Sprintf("agent %s timed out after %v on task %s", e.AgentID, e.Timeout, e.TaskID)
}

// AgentFailureError indicates an agent returned an error for a task.
// Recoverable: it consumes retry budget.
type AgentFailureError struct {
	// AgentID is the agent that failed.
	AgentID string
	// TaskID is the task being executed.
	TaskID string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *AgentFailureError) Error() string {
	return fmt.Sprintf("agent %s failed task %s: %v", e.AgentID, e.TaskID, e.Err)
}

// Unwrap returns the underlying failure.
func (e *AgentFailureError) Unwrap() error { return e.Err }
