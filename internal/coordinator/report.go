package coordinator

import (
	"sync"
	"time"

	"github.com/tactix-ai/tactix/pkg/models"
)

// DispatchMode is how a single task was dispatched within a strategy.
type DispatchMode string

const (
	// ModeSingle dispatched the task to one agent.
	ModeSingle DispatchMode = "single"
	// ModeConsensus dispatched the task to a quorum of agents.
	ModeConsensus DispatchMode = "consensus"
)

// VoteResult is the outcome of one consensus vote over k agent responses.
type VoteResult struct {
	// Winner is the artifact that won the vote.
	Winner *models.Artifact
	// Responses is how many agents answered before their timeouts.
	Responses int
	// WinnerVotes is how many responses matched the winning content.
	WinnerVotes int
	// DissentRatio is the fraction of responses that disagreed with the
	// winner, in [0,1].
	DissentRatio float64
	// Dissenters names the agents whose response lost the vote.
	Dissenters []string
}

// TaskReport records how one task settled.
type TaskReport struct {
	// TaskID is the task this report covers.
	TaskID string
	// Mode is how the task was dispatched.
	Mode DispatchMode
	// AgentIDs lists every agent that worked on the task, in order.
	AgentIDs []string
	// Attempts is the number of dispatch attempts, including retries.
	Attempts int
	// Status is the task's final status.
	Status models.TaskStatus
	// Vote is the consensus outcome, for consensus-dispatched tasks.
	Vote *VoteResult
	// Consensus is the validation pipeline's aggregate decision, if the
	// coordinator validates artifacts.
	Consensus *models.ConsensusResult
	// CorrectionAttempts records correction passes run on the artifact.
	CorrectionAttempts []models.CorrectionAttempt
	// CorrectionExhausted is true when the correction loop ran out of
	// attempts; the request escalates instead of retrying.
	CorrectionExhausted bool
	// Error is the final error message for failed tasks.
	Error string
	// Duration is the wall time from first dispatch to settlement.
	Duration time.Duration
}

// ExecutionReport summarizes one coordinator pass over a graph. Partial
// completion is reported, never turned into a global abort.
type ExecutionReport struct {
	mu sync.Mutex

	// RequestID is the orchestration request the graph belongs to.
	RequestID string
	// Strategy is the coordination strategy that was applied.
	Strategy models.CoordinationStrategy
	// Tasks maps task IDs to their reports.
	Tasks map[string]*TaskReport
	// Completed lists task IDs that finished successfully.
	Completed []string
	// Failed lists task IDs that exhausted their retry budget.
	Failed []string
	// Blocked lists task IDs blocked by a failed dependency.
	Blocked []string
	// StartedAt is when execution began.
	StartedAt time.Time
	// Duration is the total wall time of the pass.
	Duration time.Duration
}

func newExecutionReport(requestID string, strategy models.CoordinationStrategy) *ExecutionReport {
	return &ExecutionReport{
		RequestID: requestID,
		Strategy:  strategy,
		Tasks:     make(map[string]*TaskReport),
		StartedAt: time.Now(),
	}
}

// record files a task report under the right outcome bucket.
func (r *ExecutionReport) record(report *TaskReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Tasks[report.TaskID] = report
	switch report.Status {
	case models.TaskStatusCompleted:
		r.Completed = append(r.Completed, report.TaskID)
	case models.TaskStatusFailed:
		r.Failed = append(r.Failed, report.TaskID)
	}
}

// recordBlocked files task IDs that were blocked by a failed dependency.
func (r *ExecutionReport) recordBlocked(taskIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Blocked = append(r.Blocked, taskIDs...)
}

// FullyCompleted reports whether the pass settled without any task
// failing or being blocked. Tasks the pass never carried are out of its
// view; whole-request completion is judged against the graph.
func (r *ExecutionReport) FullyCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failed) == 0 && len(r.Blocked) == 0
}

// NeedsEscalation reports whether any task exhausted its correction loop,
// which hands the request to the hierarchy instead of plain failure.
func (r *ExecutionReport) NeedsEscalation() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, report := range r.Tasks {
		if report.CorrectionExhausted {
			return true
		}
	}
	return false
}

// UnsettledTaskIDs returns the failed and blocked task IDs this pass
// recorded.
func (r *ExecutionReport) UnsettledTaskIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.Failed)+len(r.Blocked))
	ids = append(ids, r.Failed...)
	ids = append(ids, r.Blocked...)
	return ids
}
