// Package coordinator executes subtask graphs against the agent pool
// under a selectable coordination strategy.
package coordinator

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/tactix-ai/tactix/pkg/models"
)

// EventType represents the type of coordinator event.
type EventType string

const (
	// EventTaskQueued indicates a task is ready and queued for dispatch.
	EventTaskQueued EventType = "task_queued"
	// EventTaskAssigned indicates a task has been handed to an agent.
	EventTaskAssigned EventType = "task_assigned"
	// EventTaskStarted indicates an agent began executing a task.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed and passed validation.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed with no retries left.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetried indicates a failed task was requeued to another agent.
	EventTaskRetried EventType = "task_retried"
	// EventTaskBlocked indicates a task was blocked by a failed dependency.
	EventTaskBlocked EventType = "task_blocked"
	// EventConsensusResolved indicates a consensus vote picked a winner.
	EventConsensusResolved EventType = "consensus_resolved"
	// EventValidationFailed indicates an artifact failed the validation
	// pipeline and entered the correction loop.
	EventValidationFailed EventType = "validation_failed"
	// EventCorrectionStarted indicates a correction attempt began.
	EventCorrectionStarted EventType = "correction_started"
	// EventGraphDone indicates the coordinator settled every task it could.
	EventGraphDone EventType = "graph_done"
)

// Event is a lifecycle notification emitted while executing a graph.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RequestID is the orchestration request the task belongs to.
	RequestID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskType is the type of the related task, if applicable.
	TaskType models.TaskType
	// AgentID is the ID of the related agent, if applicable.
	AgentID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time, for completion events.
	Duration time.Duration
}

// EventEmitter provides a thread-safe way to emit events to subscribers.
// A full buffer drops events rather than stalling dispatch.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel. If the channel is full it
// tries briefly, then drops the event and counts the drop.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[coordinator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events for subscribers.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Call once dispatch has stopped.
func (e *EventEmitter) Close() {
	close(e.events)
}
