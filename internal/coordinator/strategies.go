package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tactix-ai/tactix/internal/graph"
	"github.com/tactix-ai/tactix/pkg/models"
)

// modeFunc decides how a single task is dispatched within a strategy.
type modeFunc func(task *models.Task) DispatchMode

func (c *Coordinator) modeAlwaysSingle(task *models.Task) DispatchMode { return ModeSingle }

func (c *Coordinator) modeAlwaysConsensus(task *models.Task) DispatchMode { return ModeConsensus }

// consensusCriticality is the criticality at or above which the adaptive
// strategy always votes.
const consensusCriticality = 0.8

// modeAdaptive votes on critical tasks and on tasks whose capable agents
// have a poor track record; everything else dispatches to one agent.
func (c *Coordinator) modeAdaptive(task *models.Task) DispatchMode {
	capable := c.pool.Capable(task.Type)
	if len(capable) < c.opts.quorum {
		return ModeSingle
	}
	if task.Criticality >= consensusCriticality {
		return ModeConsensus
	}

	if c.opts.reliability != nil {
		var total float64
		var known int
		for _, agentID := range capable {
			rate, samples := c.opts.reliability.SuccessRate(agentID)
			if samples > 0 {
				total += rate
				known++
			}
		}
		if known > 0 && total/float64(known) < 0.5 && task.Criticality >= 0.5 {
			return ModeConsensus
		}
	}
	return ModeSingle
}

// runParallel dispatches every dependency-satisfied task concurrently in
// waves, bounded by the global concurrency ceiling. The mode function
// picks single or consensus dispatch per task.
func (c *Coordinator) runParallel(ctx context.Context, g *graph.SubtaskGraph, report *ExecutionReport, timeout time.Duration, mode modeFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			// Cancellation stops new dispatch; in-flight waves already drained.
			return err
		}

		ready := g.GetReady()
		if len(ready) == 0 {
			return nil
		}

		var group errgroup.Group
		for _, task := range ready {
			c.emit(Event{
				Type:      EventTaskQueued,
				RequestID: task.RequestID,
				TaskID:    task.ID,
				TaskType:  task.Type,
				Timestamp: time.Now(),
			})
			group.Go(func() error {
				if err := c.sem.Acquire(ctx, 1); err != nil {
					return nil
				}
				defer c.sem.Release(1)
				c.settleTask(ctx, g, report, task, timeout, mode(task))
				return nil
			})
		}
		// Tasks never surface errors into the group; failures settle
		// through the graph instead of aborting sibling branches.
		_ = group.Wait()
	}
}

// runSequential executes tasks one at a time in strict topological order.
func (c *Coordinator) runSequential(ctx context.Context, g *graph.SubtaskGraph, report *ExecutionReport, timeout time.Duration) error {
	order, err := g.TopologicalSort()
	if err != nil {
		return err
	}

	for _, taskID := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		task := g.GetTask(taskID)
		if task == nil || task.Status != models.TaskStatusPending {
			continue
		}
		// Topological order alone does not guarantee readiness: a task can
		// still be pending while an upstream failure left its inputs
		// unproduced. Only dispatch when every dependency has completed.
		if !g.DepsCompleted(taskID) {
			continue
		}
		c.settleTask(ctx, g, report, task, timeout, ModeSingle)
	}
	return nil
}

// runHierarchical delegates everything below the delivery node to a
// nested coordinator running the parallel strategy, then executes the
// delivery node itself.
func (c *Coordinator) runHierarchical(ctx context.Context, g *graph.SubtaskGraph, report *ExecutionReport, timeout time.Duration) error {
	delivery := g.DeliveryNode()
	if delivery == nil {
		return c.runParallel(ctx, g, report, timeout, c.modeAlwaysSingle)
	}

	var inner []string
	for _, task := range g.Tasks() {
		if task.ID != delivery.ID {
			inner = append(inner, task.ID)
		}
	}
	if len(inner) == 0 {
		c.settleTask(ctx, g, report, delivery, timeout, ModeSingle)
		return nil
	}

	sub, err := g.Subgraph(inner, delivery.RetriesRemaining)
	if err != nil {
		return fmt.Errorf("hierarchical delegation: %w", err)
	}

	// The nested coordinator shares the pool and the global ceiling.
	child := &Coordinator{pool: c.pool, invoker: c.invoker, opts: c.opts, sem: c.sem}
	if err := child.runParallel(ctx, sub, report, timeout, c.modeAlwaysSingle); err != nil {
		return err
	}

	// Fold the delegated results back into the owning graph.
	for _, subTask := range sub.Tasks() {
		parent := g.GetTask(subTask.ID)
		if parent == nil {
			continue
		}
		parent.Status = subTask.Status
		parent.Result = subTask.Result
		parent.Error = subTask.Error
		parent.BlockedReason = subTask.BlockedReason
		parent.FailedAgents = subTask.FailedAgents
		parent.CompletedAt = subTask.CompletedAt
		switch subTask.Status {
		case models.TaskStatusCompleted:
			g.MarkComplete(subTask.ID)
		case models.TaskStatusFailed:
			report.recordBlocked(g.BlockDependents(subTask.ID))
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if delivery.Status == models.TaskStatusPending && len(g.GetReady()) > 0 {
		c.settleTask(ctx, g, report, delivery, timeout, ModeSingle)
	}
	return nil
}

// settleTask drives one task to a settled state: completed, failed with
// its retry budget spent, or blocked by cancellation. Retries always go
// to a different agent than the one that just failed when the pool has an
// alternative.
func (c *Coordinator) settleTask(ctx context.Context, g *graph.SubtaskGraph, report *ExecutionReport, task *models.Task, timeout time.Duration, mode DispatchMode) {
	start := time.Now()
	tr := &TaskReport{TaskID: task.ID, Mode: mode}
	defer func() {
		tr.Status = task.Status
		tr.Duration = time.Since(start)
		report.record(tr)
	}()

	for {
		tr.Attempts++

		var artifact *models.Artifact
		var agent *models.Agent
		var err error
		if mode == ModeConsensus {
			artifact, agent, err = c.dispatchConsensus(ctx, task, tr, timeout)
		} else {
			artifact, agent, err = c.dispatchSingle(ctx, task, tr, timeout)
		}

		if err == nil {
			artifact, err = c.validateArtifact(ctx, agent, task, artifact, tr, timeout)
			if err == nil {
				now := time.Now()
				task.Status = models.TaskStatusCompleted
				task.Result = artifact
				task.CompletedAt = &now
				g.MarkComplete(task.ID)
				c.emit(Event{
					Type:      EventTaskCompleted,
					RequestID: task.RequestID,
					TaskID:    task.ID,
					TaskType:  task.Type,
					AgentID:   artifact.AgentID,
					Timestamp: now,
					Duration:  time.Since(start),
				})
				if agent != nil {
					c.pool.Release(agent.ID)
				}
				return
			}
		}

		// Failure path. The produced artifact, if any, is discarded.
		task.Status = models.TaskStatusFailed
		task.Error = err.Error()
		if agent != nil {
			c.pool.Release(agent.ID)
		}

		if ctx.Err() != nil {
			// Cooperative cancellation: no retry, no dependent blocking.
			return
		}
		if tr.CorrectionExhausted {
			// Correction exhaustion escalates through the hierarchy
			// rather than burning the retry budget on the same artifact.
			c.failTask(g, report, task, tr, err)
			return
		}
		if !retryable(err) {
			c.failTask(g, report, task, tr, err)
			return
		}
		// The budget counts failed attempts: each failure consumes one,
		// and the task settles as failed once the budget is spent.
		if !task.ConsumeRetry() || task.RetriesRemaining == 0 {
			c.failTask(g, report, task, tr, err)
			return
		}

		task.Status = models.TaskStatusRetried
		c.emit(Event{
			Type:      EventTaskRetried,
			RequestID: task.RequestID,
			TaskID:    task.ID,
			TaskType:  task.Type,
			AgentID:   task.LastFailedAgent(),
			Message:   fmt.Sprintf("%d retries remaining", task.RetriesRemaining),
			Error:     err,
			Timestamp: time.Now(),
		})
	}
}

// retryable reports whether an error consumes retry budget rather than
// failing the task outright.
func retryable(err error) bool {
	var timeoutErr *AgentTimeoutError
	var failureErr *AgentFailureError
	return errors.As(err, &timeoutErr) || errors.As(err, &failureErr)
}

// failTask marks a task permanently failed and blocks every task
// downstream of it. Unrelated branches keep running.
func (c *Coordinator) failTask(g *graph.SubtaskGraph, report *ExecutionReport, task *models.Task, tr *TaskReport, err error) {
	tr.Error = err.Error()
	blocked := g.BlockDependents(task.ID)
	report.recordBlocked(blocked)

	c.emit(Event{
		Type:      EventTaskFailed,
		RequestID: task.RequestID,
		TaskID:    task.ID,
		TaskType:  task.Type,
		AgentID:   task.LastFailedAgent(),
		Error:     err,
		Timestamp: time.Now(),
	})
	for _, blockedID := range blocked {
		c.emit(Event{
			Type:      EventTaskBlocked,
			RequestID: task.RequestID,
			TaskID:    blockedID,
			Message:   "dependency_failed:" + task.ID,
			Timestamp: time.Now(),
		})
	}
}

// dispatchSingle reserves one agent and runs the task on it. The agent
// stays reserved until the caller releases it, so correction attempts run
// against a still-held agent.
func (c *Coordinator) dispatchSingle(ctx context.Context, task *models.Task, tr *TaskReport, timeout time.Duration) (*models.Artifact, *models.Agent, error) {
	agent, err := c.acquireAgent(ctx, task)
	if err != nil {
		return nil, nil, err
	}
	tr.AgentIDs = append(tr.AgentIDs, agent.ID)

	task.Status = models.TaskStatusAssigned
	task.AssignedAgent = agent.ID
	c.emit(Event{
		Type:      EventTaskAssigned,
		RequestID: task.RequestID,
		TaskID:    task.ID,
		TaskType:  task.Type,
		AgentID:   agent.ID,
		Timestamp: time.Now(),
	})

	task.Status = models.TaskStatusRunning
	c.emit(Event{
		Type:      EventTaskStarted,
		RequestID: task.RequestID,
		TaskID:    task.ID,
		TaskType:  task.Type,
		AgentID:   agent.ID,
		Timestamp: time.Now(),
	})

	artifact, err := c.invokeOnce(ctx, agent, task, timeout)
	if err != nil {
		c.recordOutcome(agent.ID, task.Type, false)
		task.FailedAgents = append(task.FailedAgents, agent.ID)
		return nil, agent, err
	}
	return artifact, agent, nil
}

// dispatchConsensus runs the task on a quorum of distinct agents and
// resolves the responses by majority vote, ties broken by the highest
// self-reported confidence and then the lowest agent ID. The vote blocks
// until every agent answers or individually times out.
func (c *Coordinator) dispatchConsensus(ctx context.Context, task *models.Task, tr *TaskReport, timeout time.Duration) (*models.Artifact, *models.Agent, error) {
	agents, err := c.acquireQuorum(ctx, task)
	if err != nil {
		return nil, nil, err
	}
	for _, agent := range agents {
		tr.AgentIDs = append(tr.AgentIDs, agent.ID)
	}

	task.Status = models.TaskStatusAssigned
	task.AssignedAgent = agents[0].ID
	c.emit(Event{
		Type:      EventTaskAssigned,
		RequestID: task.RequestID,
		TaskID:    task.ID,
		TaskType:  task.Type,
		AgentID:   agents[0].ID,
		Message:   fmt.Sprintf("consensus quorum of %d", len(agents)),
		Timestamp: time.Now(),
	})
	task.Status = models.TaskStatusRunning

	artifacts := make([]*models.Artifact, len(agents))
	var group errgroup.Group
	for i, agent := range agents {
		group.Go(func() error {
			artifact, invokeErr := c.invokeOnce(ctx, agent, task, timeout)
			if invokeErr != nil {
				c.recordOutcome(agent.ID, task.Type, false)
				c.opts.debugLog("[coordinator.consensus] task %s: agent %s dropped out: %v", task.ID, agent.ID, invokeErr)
				return nil
			}
			artifacts[i] = artifact
			return nil
		})
	}
	_ = group.Wait()

	var responses []*models.Artifact
	for _, artifact := range artifacts {
		if artifact != nil {
			responses = append(responses, artifact)
		}
	}
	if len(responses) == 0 {
		for _, agent := range agents {
			task.FailedAgents = append(task.FailedAgents, agent.ID)
			c.pool.Release(agent.ID)
		}
		return nil, nil, &AgentTimeoutError{AgentID: agents[0].ID, TaskID: task.ID, Timeout: timeout}
	}

	vote := tallyVotes(responses)
	tr.Vote = vote
	c.emit(Event{
		Type:      EventConsensusResolved,
		RequestID: task.RequestID,
		TaskID:    task.ID,
		TaskType:  task.Type,
		AgentID:   vote.Winner.AgentID,
		Message:   fmt.Sprintf("%d/%d votes, dissent %.2f", vote.WinnerVotes, vote.Responses, vote.DissentRatio),
		Timestamp: time.Now(),
	})

	winnerAgent := agents[0]
	for _, agent := range agents {
		if agent.ID == vote.Winner.AgentID {
			winnerAgent = agent
			break
		}
	}
	// The winner stays reserved for possible correction passes; the
	// caller releases it once the task settles.
	for _, agent := range agents {
		if agent.ID != winnerAgent.ID {
			c.pool.Release(agent.ID)
		}
	}
	return vote.Winner, winnerAgent, nil
}

// tallyVotes groups responses by content and picks the majority. Ties go
// to the group holding the highest self-reported confidence, then to the
// lowest agent ID, so the result is deterministic.
func tallyVotes(responses []*models.Artifact) *VoteResult {
	groups := make(map[string][]*models.Artifact)
	for _, artifact := range responses {
		groups[artifact.Content] = append(groups[artifact.Content], artifact)
	}

	var winner []*models.Artifact
	for _, group := range groups {
		if winner == nil {
			winner = group
			continue
		}
		switch {
		case len(group) > len(winner):
			winner = group
		case len(group) == len(winner):
			if maxConfidence(group) > maxConfidence(winner) ||
				(maxConfidence(group) == maxConfidence(winner) && minAgentID(group) < minAgentID(winner)) {
				winner = group
			}
		}
	}

	// The representative artifact is the most confident one in the
	// winning group, with agent ID as the final tie-break.
	best := winner[0]
	for _, artifact := range winner[1:] {
		if artifact.Confidence > best.Confidence ||
			(artifact.Confidence == best.Confidence && artifact.AgentID < best.AgentID) {
			best = artifact
		}
	}

	result := &VoteResult{
		Winner:       best,
		Responses:    len(responses),
		WinnerVotes:  len(winner),
		DissentRatio: float64(len(responses)-len(winner)) / float64(len(responses)),
	}
	for _, artifact := range responses {
		if artifact.Content != best.Content {
			result.Dissenters = append(result.Dissenters, artifact.AgentID)
		}
	}
	return result
}

func maxConfidence(group []*models.Artifact) float64 {
	best := group[0].Confidence
	for _, artifact := range group[1:] {
		if artifact.Confidence > best {
			best = artifact.Confidence
		}
	}
	return best
}

func minAgentID(group []*models.Artifact) string {
	best := group[0].AgentID
	for _, artifact := range group[1:] {
		if artifact.AgentID < best {
			best = artifact.AgentID
		}
	}
	return best
}
