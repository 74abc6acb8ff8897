package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tactix-ai/tactix/internal/graph"
	"github.com/tactix-ai/tactix/internal/pool"
	"github.com/tactix-ai/tactix/internal/provider"
	"github.com/tactix-ai/tactix/internal/validation"
	"github.com/tactix-ai/tactix/pkg/models"
)

// Invoker executes one task on a specific agent. Implementations wrap a
// capability provider and must honor the context deadline.
type Invoker interface {
	Invoke(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error)
}

// ReliabilitySource exposes historical per-agent outcomes. The adaptive
// strategy reads it; every dispatch writes back through it.
type ReliabilitySource interface {
	// SuccessRate returns the agent's historical success rate in [0,1]
	// with the number of samples behind it. Zero samples means unknown.
	SuccessRate(agentID string) (rate float64, samples int)
	// RecordOutcome records one dispatch outcome for the agent.
	RecordOutcome(agentID string, taskType models.TaskType, success bool)
}

// providerInvoker adapts a CapabilityProvider to the Invoker interface,
// stamping the acquired agent onto the produced artifact.
type providerInvoker struct {
	inner provider.CapabilityProvider
}

// NewProviderInvoker wraps a capability provider as an Invoker.
func NewProviderInvoker(p provider.CapabilityProvider) Invoker {
	return &providerInvoker{inner: p}
}

func (pi *providerInvoker) Invoke(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
	artifact, err := pi.inner.Invoke(ctx, task)
	if err != nil {
		return nil, err
	}
	artifact.AgentID = agent.ID
	return artifact, nil
}

// Coordinator executes a SubtaskGraph against the shared agent pool.
// Each Coordinator call owns the graph it executes exclusively; the pool
// is the only shared state and is mutated through its own counters.
type Coordinator struct {
	pool    *pool.Registry
	invoker Invoker
	opts    *coordinatorOptions
	sem     *semaphore.Weighted
}

// New creates a Coordinator over the given pool and invoker.
func New(registry *pool.Registry, invoker Invoker, options ...Option) *Coordinator {
	opts := defaultOptions()
	for _, opt := range options {
		opt(opts)
	}
	return &Coordinator{
		pool:    registry,
		invoker: invoker,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.globalConcurrency)),
	}
}

// Events returns the lifecycle event channel, or nil if no emitter was
// configured.
func (c *Coordinator) Events() <-chan Event {
	if c.opts.emitter == nil {
		return nil
	}
	return c.opts.emitter.Events()
}

// DroppedEvents returns how many lifecycle events the emitter dropped, or
// 0 if no emitter was configured.
func (c *Coordinator) DroppedEvents() uint64 {
	if c.opts.emitter == nil {
		return 0
	}
	return c.opts.emitter.DroppedCount()
}

// Execute runs the graph under the given strategy and returns a report of
// how every task settled. A failure blocks everything downstream of it;
// unrelated branches run to completion.
func (c *Coordinator) Execute(ctx context.Context, g *graph.SubtaskGraph, requestID string, strategy models.CoordinationStrategy, complexity models.Complexity) (*ExecutionReport, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	report := newExecutionReport(requestID, strategy)
	timeout := c.timeoutFor(complexity)
	g.SetDebugLog(c.opts.debugLog)
	c.opts.debugLog("[coordinator.Execute] request %s: strategy %s, %d tasks, timeout %v",
		requestID, strategy, g.Size(), timeout)

	var err error
	switch strategy {
	case models.StrategyParallel:
		err = c.runParallel(ctx, g, report, timeout, c.modeAlwaysSingle)
	case models.StrategySequential:
		err = c.runSequential(ctx, g, report, timeout)
	case models.StrategyConsensus:
		err = c.runParallel(ctx, g, report, timeout, c.modeAlwaysConsensus)
	case models.StrategyHierarchical:
		err = c.runHierarchical(ctx, g, report, timeout)
	case models.StrategyAdaptive:
		err = c.runParallel(ctx, g, report, timeout, c.modeAdaptive)
	}

	report.Duration = time.Since(report.StartedAt)
	c.emit(Event{
		Type:      EventGraphDone,
		RequestID: requestID,
		Message:   fmt.Sprintf("%d completed, %d failed, %d blocked", len(report.Completed), len(report.Failed), len(report.Blocked)),
		Timestamp: time.Now(),
		Duration:  report.Duration,
	})
	return report, err
}

// timeoutFor derives the per-dispatch timeout from request complexity.
func (c *Coordinator) timeoutFor(complexity models.Complexity) time.Duration {
	if d, ok := c.opts.timeouts[complexity]; ok {
		return d
	}
	return defaultTimeouts[models.ComplexityMedium]
}

func (c *Coordinator) emit(event Event) {
	if c.opts.emitter != nil {
		c.opts.emitter.Emit(event)
	}
}

// acquireAgent reserves an agent for the task, waiting while the pool is
// saturated. Excluded agents are avoided when an alternative exists.
func (c *Coordinator) acquireAgent(ctx context.Context, task *models.Task) (*models.Agent, error) {
	if len(c.pool.Capable(task.Type)) == 0 {
		return nil, fmt.Errorf("task %s: %w", task.ID, pool.ErrNoCapableAgent)
	}

	for {
		if agent, ok := c.pool.Acquire(task.Type, task.FailedAgents); ok {
			return agent, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.opts.acquireWait):
		}
	}
}

// acquireQuorum reserves k distinct agents for a consensus vote, waiting
// while the pool is saturated. If the pool cannot ever supply k distinct
// capable agents, it fails with ErrQuorumUnreachable.
func (c *Coordinator) acquireQuorum(ctx context.Context, task *models.Task) ([]*models.Agent, error) {
	k := c.opts.quorum
	if len(c.pool.Capable(task.Type)) < k {
		return nil, fmt.Errorf("task %s needs %d distinct agents: %w", task.ID, k, ErrQuorumUnreachable)
	}

	for {
		if agents, ok := c.pool.AcquireDistinct(task.Type, k, task.FailedAgents); ok {
			return agents, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.opts.acquireWait):
		}
	}
}

// invokeOnce runs one agent call under the dispatch timeout and converts
// failures into the coordinator's error taxonomy.
func (c *Coordinator) invokeOnce(ctx context.Context, agent *models.Agent, task *models.Task, timeout time.Duration) (*models.Artifact, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	artifact, err := c.invoker.Invoke(callCtx, agent, task)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &AgentTimeoutError{AgentID: agent.ID, TaskID: task.ID, Timeout: timeout}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &AgentFailureError{AgentID: agent.ID, TaskID: task.ID, Err: err}
	}
	if artifact.AgentID == "" {
		artifact.AgentID = agent.ID
	}
	c.recordOutcome(agent.ID, task.Type, true)
	return artifact, nil
}

func (c *Coordinator) recordOutcome(agentID string, taskType models.TaskType, success bool) {
	if c.opts.reliability != nil {
		c.opts.reliability.RecordOutcome(agentID, taskType, success)
	}
}

// validateArtifact runs the configured validation loop over an artifact,
// using the originating agent as the correction target. With no pipeline
// configured the artifact passes through untouched.
func (c *Coordinator) validateArtifact(ctx context.Context, agent *models.Agent, task *models.Task, artifact *models.Artifact, report *TaskReport, timeout time.Duration) (*models.Artifact, error) {
	if c.opts.pipeline == nil {
		return artifact, nil
	}

	corrector := &agentCorrector{coordinator: c, agent: agent, timeout: timeout}
	loop := validation.NewLoop(c.opts.pipeline, corrector, c.opts.maxCorrections)
	loop.SetDebugLogger(c.opts.debugLog)

	outcome, err := loop.Run(ctx, task, artifact, validation.Input{Task: task})
	report.Consensus = outcome.Consensus
	report.CorrectionAttempts = outcome.Attempts

	if err != nil {
		if errors.Is(err, validation.ErrCorrectionExhausted) {
			report.CorrectionExhausted = true
		}
		c.emit(Event{
			Type:      EventValidationFailed,
			RequestID: task.RequestID,
			TaskID:    task.ID,
			TaskType:  task.Type,
			AgentID:   agent.ID,
			Error:     err,
			Timestamp: time.Now(),
		})
		return nil, err
	}
	return outcome.Artifact, nil
}

// agentCorrector re-invokes the originating agent with the failing
// validators' suggested corrections folded into the task description.
type agentCorrector struct {
	coordinator *Coordinator
	agent       *models.Agent
	timeout     time.Duration
}

// Correct implements validation.Corrector.
func (ac *agentCorrector) Correct(ctx context.Context, task *models.Task, failed *models.Artifact, corrections []string) (*models.Artifact, error) {
	ac.coordinator.emit(Event{
		Type:      EventCorrectionStarted,
		RequestID: task.RequestID,
		TaskID:    task.ID,
		TaskType:  task.Type,
		AgentID:   ac.agent.ID,
		Message:   fmt.Sprintf("%d corrections requested", len(corrections)),
		Timestamp: time.Now(),
	})

	derived := *task
	derived.Description = fmt.Sprintf(
		"%s\n\nYour previous output was rejected. Apply every correction below and produce the full corrected result:\n- %s\n\nPrevious output:\n%s",
		task.Description, strings.Join(corrections, "\n- "), failed.Content)

	callCtx, cancel := context.WithTimeout(ctx, ac.timeout)
	defer cancel()
	return ac.coordinator.invoker.Invoke(callCtx, ac.agent, &derived)
}
