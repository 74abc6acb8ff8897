// Package hierarchy drives a request through strictly ordered orchestration
// levels. A level executes the request's graph under its configured
// coordination strategy; when the correction loop exhausts at one level, the
// failing fragment is re-submitted one level up under a more conservative
// strategy. Levels never go sideways or down, and the top level's exhaustion
// is a terminal failure carrying the full trace.
package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tactix-ai/tactix/internal/coordinator"
	"github.com/tactix-ai/tactix/internal/graph"
	"github.com/tactix-ai/tactix/pkg/models"
)

// Level configures one orchestration level.
type Level struct {
	// Index is the level's position, 0-indexed. Levels are strictly ordered.
	Index int
	// Strategy is the coordination strategy applied at this level.
	Strategy models.CoordinationStrategy
	// BlockingWeightBoost is added to every blocking validator's weight at
	// this level. Higher levels weigh their veto validators more heavily.
	BlockingWeightBoost float64
	// MaxCorrectionAttempts bounds the correction loop at this level.
	// Zero means the pipeline default.
	MaxCorrectionAttempts int
	// RetryBudget is the per-task retry budget for subgraphs re-executed
	// at this level.
	RetryBudget int
}

// DefaultLevels returns the standard two-level ladder: parallel dispatch at
// the bottom, consensus with a heavier veto above it.
func DefaultLevels() []Level {
	return []Level{
		{Index: 0, Strategy: models.StrategyParallel, RetryBudget: 2},
		{Index: 1, Strategy: models.StrategyConsensus, BlockingWeightBoost: 0.5, RetryBudget: 1},
	}
}

// Executor runs one graph pass under one strategy. The coordinator
// satisfies this.
type Executor interface {
	Execute(ctx context.Context, g *graph.SubtaskGraph, requestID string, strategy models.CoordinationStrategy, complexity models.Complexity) (*coordinator.ExecutionReport, error)
}

// ExecutorFactory builds the executor for a level. The factory is where a
// level's blocking-weight boost and correction cap become a concrete
// validation pipeline wired into a coordinator.
type ExecutorFactory func(level Level) (Executor, error)

// EscalationExhaustedError is the terminal failure of a request that
// exhausted its corrections at the top level. It carries the complete
// attempt, correction, and escalation history.
type EscalationExhaustedError struct {
	// RequestID is the request that failed.
	RequestID string
	// Level is the top level, where no further escalation existed.
	Level int
	// BlockingTasks names the subtasks that prevented completion.
	BlockingTasks []string
	// Trace is the full history of the request.
	Trace models.RequestTrace
}

func (e *EscalationExhaustedError) Error() string {
	return fmt.Sprintf("request %s exhausted escalation at level %d, blocked by %v",
		e.RequestID, e.Level, e.BlockingTasks)
}

// transitions is the legal state machine. completed and failed admit
// nothing; every other state only moves forward.
var transitions = map[models.RequestStatus][]models.RequestStatus{
	models.RequestStatusReceived:   {models.RequestStatusDecomposed, models.RequestStatusFailed, models.RequestStatusCancelled},
	models.RequestStatusDecomposed: {models.RequestStatusExecuting, models.RequestStatusFailed, models.RequestStatusCancelled},
	models.RequestStatusExecuting:  {models.RequestStatusValidating, models.RequestStatusCompleted, models.RequestStatusFailed, models.RequestStatusCancelled},
	models.RequestStatusValidating: {models.RequestStatusCorrecting, models.RequestStatusCompleted, models.RequestStatusFailed, models.RequestStatusCancelled},
	models.RequestStatusCorrecting: {models.RequestStatusEscalated, models.RequestStatusCompleted, models.RequestStatusFailed, models.RequestStatusCancelled},
	models.RequestStatusEscalated:  {models.RequestStatusExecuting, models.RequestStatusFailed, models.RequestStatusCancelled},
}

// CanTransition reports whether moving from one request status to another
// is legal.
func CanTransition(from, to models.RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves a request to a new status, rejecting illegal moves.
func Transition(req *models.OrchestrationRequest, to models.RequestStatus) error {
	if !CanTransition(req.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for request %s", req.Status, to, req.ID)
	}
	req.Status = to
	if to.Terminal() {
		now := time.Now()
		req.FinishedAt = &now
	}
	return nil
}

// Hierarchy iterates a request over its ordered levels.
type Hierarchy struct {
	levels  []Level
	factory ExecutorFactory
}

// New builds a hierarchy from an ordered level list and an executor
// factory. Levels must be contiguous from 0.
func New(levels []Level, factory ExecutorFactory) (*Hierarchy, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("hierarchy requires at least one level")
	}
	if factory == nil {
		return nil, fmt.Errorf("hierarchy requires an executor factory")
	}
	for i, level := range levels {
		if level.Index != i {
			return nil, fmt.Errorf("levels must be contiguous from 0, got index %d at position %d", level.Index, i)
		}
		if !level.Strategy.Valid() {
			return nil, fmt.Errorf("level %d has unknown strategy %q", i, level.Strategy)
		}
	}
	return &Hierarchy{levels: levels, factory: factory}, nil
}

// Levels returns the configured level list.
func (h *Hierarchy) Levels() []Level {
	return h.levels
}

// Run executes the request's graph starting at its current hierarchy
// level, escalating on correction exhaustion until the graph completes,
// a level fails without an escalation trigger, or the ladder runs out.
// The request's status, level, and trace are updated in place. The last
// execution report is returned alongside any terminal error.
func (h *Hierarchy) Run(ctx context.Context, req *models.OrchestrationRequest, g *graph.SubtaskGraph, complexity models.Complexity) (*coordinator.ExecutionReport, error) {
	if req.HierarchyLevel >= len(h.levels) {
		return nil, fmt.Errorf("request %s starts at level %d but hierarchy has %d levels",
			req.ID, req.HierarchyLevel, len(h.levels))
	}

	current := g
	var report *coordinator.ExecutionReport

	for {
		level := h.levels[req.HierarchyLevel]

		exec, err := h.factory(level)
		if err != nil {
			return report, fmt.Errorf("build executor for level %d: %w", level.Index, err)
		}

		if err := Transition(req, models.RequestStatusExecuting); err != nil {
			return report, err
		}

		report, err = exec.Execute(ctx, current, req.ID, level.Strategy, complexity)
		if err != nil {
			if ctx.Err() != nil {
				Transition(req, models.RequestStatusCancelled)
				return report, ctx.Err()
			}
			Transition(req, models.RequestStatusFailed)
			return report, err
		}

		appendTrace(&req.Trace, report)
		if current != g {
			g.Absorb(current)
		}
		Transition(req, models.RequestStatusValidating)

		// Completion is judged against the full graph, not the pass report:
		// an escalation pass only carries the tasks that needed rework, so
		// tasks still waiting on them never appear in its report.
		unsettled := g.Unsettled()
		sort.Strings(unsettled)

		if len(unsettled) == 0 {
			if err := Transition(req, models.RequestStatusCompleted); err != nil {
				return report, err
			}
			return report, nil
		}

		Transition(req, models.RequestStatusCorrecting)

		if !report.NeedsEscalation() {
			// Plain retry exhaustion without a correction trigger does not
			// climb the ladder. The request fails at this level.
			req.BlockingTasks = unsettled
			Transition(req, models.RequestStatusFailed)
			return report, fmt.Errorf("request %s failed at level %d, blocked by %v",
				req.ID, req.HierarchyLevel, unsettled)
		}

		next := req.HierarchyLevel + 1
		if next >= len(h.levels) {
			req.BlockingTasks = unsettled
			Transition(req, models.RequestStatusFailed)
			return report, &EscalationExhaustedError{
				RequestID:     req.ID,
				Level:         req.HierarchyLevel,
				BlockingTasks: unsettled,
				Trace:         req.Trace,
			}
		}

		nextLevel := h.levels[next]
		sub, err := g.Subgraph(unsettled, nextLevel.RetryBudget)
		if err != nil {
			Transition(req, models.RequestStatusFailed)
			return report, fmt.Errorf("build escalation subgraph: %w", err)
		}

		req.Trace.Escalations = append(req.Trace.Escalations, models.EscalationRecord{
			FromLevel: req.HierarchyLevel,
			ToLevel:   next,
			Strategy:  nextLevel.Strategy,
			Reason:    fmt.Sprintf("corrections exhausted for %v", unsettled),
			At:        time.Now(),
		})
		if err := Transition(req, models.RequestStatusEscalated); err != nil {
			return report, err
		}
		req.HierarchyLevel = next
		current = sub
	}
}

// appendTrace folds an execution report into the request trace.
func appendTrace(trace *models.RequestTrace, report *coordinator.ExecutionReport) {
	ids := make([]string, 0, len(report.Tasks))
	for id := range report.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		tr := report.Tasks[id]
		for i, agentID := range tr.AgentIDs {
			outcome := "failed"
			if i == len(tr.AgentIDs)-1 {
				outcome = string(tr.Status)
			}
			rec := models.AttemptRecord{
				TaskID:  tr.TaskID,
				AgentID: agentID,
				Attempt: i + 1,
				Outcome: outcome,
				At:      time.Now(),
			}
			if i == len(tr.AgentIDs)-1 {
				rec.Error = tr.Error
				rec.Duration = tr.Duration
			}
			trace.Attempts = append(trace.Attempts, rec)
		}
		trace.Corrections = append(trace.Corrections, tr.CorrectionAttempts...)
	}
}
