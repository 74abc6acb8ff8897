package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactix-ai/tactix/internal/graph"
	"github.com/tactix-ai/tactix/internal/pool"
	"github.com/tactix-ai/tactix/internal/validation"
	"github.com/tactix-ai/tactix/pkg/models"
)

// invokerFunc adapts a function to the Invoker interface.
type invokerFunc func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error)

func (f invokerFunc) Invoke(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
	return f(ctx, agent, task)
}

var artifactSeq int
var artifactSeqMu sync.Mutex

func okArtifact(agent *models.Agent, task *models.Task, content string, confidence float64) *models.Artifact {
	artifactSeqMu.Lock()
	artifactSeq++
	id := fmt.Sprintf("artifact-%d", artifactSeq)
	artifactSeqMu.Unlock()
	return &models.Artifact{
		ID:         id,
		TaskID:     task.ID,
		AgentID:    agent.ID,
		Content:    content,
		Confidence: confidence,
		ProducedAt: time.Now(),
	}
}

func echoInvoker() Invoker {
	return invokerFunc(func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
		return okArtifact(agent, task, "output for "+task.ID, 0.9), nil
	})
}

func allTypes() []models.TaskType {
	return []models.TaskType{
		models.TaskTypeAnalysis, models.TaskTypeDesign, models.TaskTypeUIGeneration,
		models.TaskTypeCodeGeneration, models.TaskTypeValidationLogic,
		models.TaskTypeTestGeneration, models.TaskTypeIntegration,
		models.TaskTypeReview, models.TaskTypeDelivery,
	}
}

func testPool(t *testing.T, agentIDs ...string) *pool.Registry {
	t.Helper()
	r := pool.NewRegistry(nil)
	for _, id := range agentIDs {
		require.NoError(t, r.Register(&models.Agent{
			ID:             id,
			Class:          models.ClassGeneralist,
			Capabilities:   allTypes(),
			MaxConcurrency: 4,
		}))
	}
	return r
}

func task(id string, taskType models.TaskType, retries int, deps ...string) *models.Task {
	return &models.Task{
		ID:               id,
		RequestID:        "req-1",
		Description:      "work on " + id,
		Type:             taskType,
		Status:           models.TaskStatusPending,
		DependsOn:        deps,
		RetriesRemaining: retries,
		CreatedAt:        time.Now(),
	}
}

// diamondGraph builds ui -> {validation_logic, test_generation} -> delivery.
func diamondGraph(t *testing.T, retries int) *graph.SubtaskGraph {
	t.Helper()
	g := graph.New()
	require.NoError(t, g.Build([]*models.Task{
		task("ui", models.TaskTypeUIGeneration, retries),
		task("val", models.TaskTypeValidationLogic, retries, "ui"),
		task("test", models.TaskTypeTestGeneration, retries, "ui"),
		task("delivery", models.TaskTypeDelivery, retries, "val", "test"),
	}))
	return g
}

func TestParallelCompletesWholeGraph(t *testing.T) {
	g := diamondGraph(t, 2)
	c := New(testPool(t, "a1", "a2", "a3"), echoInvoker(), WithAcquireWait(time.Millisecond))

	report, err := c.Execute(context.Background(), g, "req-1", models.StrategyParallel, models.ComplexityMedium)
	require.NoError(t, err)

	assert.True(t, report.FullyCompleted())
	assert.Len(t, report.Completed, 4)
	for _, id := range []string{"ui", "val", "test", "delivery"} {
		tk := g.GetTask(id)
		require.Equal(t, models.TaskStatusCompleted, tk.Status, "task %s", id)
		require.NotNil(t, tk.Result, "task %s should carry its artifact", id)
	}
}

func TestSequentialRespectsTopologicalOrder(t *testing.T) {
	g := diamondGraph(t, 2)

	var mu sync.Mutex
	var order []string
	inv := invokerFunc(func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return okArtifact(agent, task, "output", 0.9), nil
	})

	c := New(testPool(t, "a1"), inv, WithAcquireWait(time.Millisecond))
	report, err := c.Execute(context.Background(), g, "req-1", models.StrategySequential, models.ComplexityMedium)
	require.NoError(t, err)
	require.True(t, report.FullyCompleted())

	require.Len(t, order, 4)
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["ui"], pos["val"])
	assert.Less(t, pos["ui"], pos["test"])
	assert.Less(t, pos["val"], pos["delivery"])
	assert.Less(t, pos["test"], pos["delivery"])
}

func TestRetryGoesToDifferentAgent(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Build([]*models.Task{task("delivery", models.TaskTypeDelivery, 3)}))

	inv := invokerFunc(func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
		if agent.ID == "a1" {
			return nil, fmt.Errorf("scratch buffer corrupted")
		}
		return okArtifact(agent, task, "output", 0.9), nil
	})

	c := New(testPool(t, "a1", "a2"), inv, WithAcquireWait(time.Millisecond))
	report, err := c.Execute(context.Background(), g, "req-1", models.StrategyParallel, models.ComplexityMedium)
	require.NoError(t, err)

	tr := report.Tasks["delivery"]
	require.NotNil(t, tr)
	assert.Equal(t, models.TaskStatusCompleted, tr.Status)
	require.Equal(t, 2, tr.Attempts)
	// First dispatch goes to a1 (ties break by ID); the retry must avoid
	// the agent that just failed.
	assert.Equal(t, []string{"a1", "a2"}, tr.AgentIDs)
}

// Two timeouts with a budget of two settle the task as failed, block the
// whole dependent chain below it, and leave sibling branches to finish.
func TestTimeoutExhaustionBlocksDependentChain(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Build([]*models.Task{
		task("ui", models.TaskTypeUIGeneration, 2),
		task("val", models.TaskTypeValidationLogic, 2, "ui"),
		task("test", models.TaskTypeTestGeneration, 2),
		task("delivery", models.TaskTypeDelivery, 2, "val", "test"),
	}))

	inv := invokerFunc(func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
		if task.Type == models.TaskTypeUIGeneration {
			return nil, context.DeadlineExceeded
		}
		return okArtifact(agent, task, "output", 0.9), nil
	})

	c := New(testPool(t, "a1"), inv, WithAcquireWait(time.Millisecond))
	report, err := c.Execute(context.Background(), g, "req-1", models.StrategyParallel, models.ComplexityMedium)
	require.NoError(t, err)

	ui := g.GetTask("ui")
	assert.Equal(t, models.TaskStatusFailed, ui.Status)
	assert.Equal(t, 0, ui.RetriesRemaining)
	assert.Equal(t, 2, report.Tasks["ui"].Attempts)

	assert.Equal(t, models.TaskStatusBlocked, g.GetTask("val").Status)
	assert.Contains(t, g.GetTask("val").BlockedReason, "ui")
	assert.Equal(t, models.TaskStatusBlocked, g.GetTask("delivery").Status)
	assert.Contains(t, g.GetTask("delivery").BlockedReason, "ui")

	// The sibling branch is isolated from the failure.
	assert.Equal(t, models.TaskStatusCompleted, g.GetTask("test").Status)

	assert.ElementsMatch(t, []string{"ui"}, report.Failed)
	assert.ElementsMatch(t, []string{"val", "delivery"}, report.Blocked)
	assert.False(t, report.FullyCompleted())
}

// A mid-chain failure must keep everything downstream from dispatching,
// including under the strategy that walks tasks in topological order.
func TestSequentialSkipsDescendantsOfFailure(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Build([]*models.Task{
		task("ui", models.TaskTypeUIGeneration, 1),
		task("val", models.TaskTypeValidationLogic, 1, "ui"),
		task("delivery", models.TaskTypeDelivery, 1, "val"),
	}))

	var mu sync.Mutex
	var dispatched []string
	inv := invokerFunc(func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
		mu.Lock()
		dispatched = append(dispatched, task.ID)
		mu.Unlock()
		return nil, fmt.Errorf("model returned malformed output")
	})

	c := New(testPool(t, "a1"), inv, WithAcquireWait(time.Millisecond))
	report, err := c.Execute(context.Background(), g, "req-1", models.StrategySequential, models.ComplexityMedium)
	require.NoError(t, err)

	assert.Equal(t, []string{"ui"}, dispatched, "descendants of a failed task must never run")
	assert.ElementsMatch(t, []string{"ui"}, report.Failed)
	assert.ElementsMatch(t, []string{"val", "delivery"}, report.Blocked)
	assert.False(t, report.FullyCompleted())
}

// Three agents answering A, A, B resolve to A with a dissent ratio of 1/3.
func TestConsensusMajorityVote(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Build([]*models.Task{task("delivery", models.TaskTypeDelivery, 2)}))

	inv := invokerFunc(func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
		content := "A"
		if agent.ID == "a3" {
			content = "B"
		}
		return okArtifact(agent, task, content, 0.8), nil
	})

	c := New(testPool(t, "a1", "a2", "a3"), inv, WithAcquireWait(time.Millisecond))
	report, err := c.Execute(context.Background(), g, "req-1", models.StrategyConsensus, models.ComplexityMedium)
	require.NoError(t, err)

	tr := report.Tasks["delivery"]
	require.NotNil(t, tr)
	assert.Equal(t, ModeConsensus, tr.Mode)
	require.NotNil(t, tr.Vote)
	assert.Equal(t, "A", tr.Vote.Winner.Content)
	assert.Equal(t, 3, tr.Vote.Responses)
	assert.Equal(t, 2, tr.Vote.WinnerVotes)
	assert.InDelta(t, 1.0/3.0, tr.Vote.DissentRatio, 1e-9)
	assert.Equal(t, []string{"a3"}, tr.Vote.Dissenters)

	assert.Equal(t, "A", g.GetTask("delivery").Result.Content)
}

func TestConsensusTieBreaksByConfidenceThenAgentID(t *testing.T) {
	votes := []*models.Artifact{
		{AgentID: "a1", Content: "X", Confidence: 0.6},
		{AgentID: "a2", Content: "Y", Confidence: 0.9},
	}
	vote := tallyVotes(votes)
	assert.Equal(t, "Y", vote.Winner.Content, "tie resolves to the higher confidence")

	votes = []*models.Artifact{
		{AgentID: "a2", Content: "Y", Confidence: 0.7},
		{AgentID: "a1", Content: "X", Confidence: 0.7},
	}
	vote = tallyVotes(votes)
	assert.Equal(t, "X", vote.Winner.Content, "equal confidence resolves to the lowest agent ID")
}

func TestConsensusQuorumUnreachable(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Build([]*models.Task{task("delivery", models.TaskTypeDelivery, 1)}))

	c := New(testPool(t, "a1", "a2"), echoInvoker(), WithAcquireWait(time.Millisecond))
	report, err := c.Execute(context.Background(), g, "req-1", models.StrategyConsensus, models.ComplexityMedium)
	require.NoError(t, err)

	tr := report.Tasks["delivery"]
	require.NotNil(t, tr)
	assert.Equal(t, models.TaskStatusFailed, tr.Status)
	assert.Contains(t, tr.Error, "quorum")
}

func TestAdaptiveVotesOnCriticalTasks(t *testing.T) {
	g := graph.New()
	critical := task("delivery", models.TaskTypeDelivery, 2, "ui")
	critical.Criticality = 1.0
	require.NoError(t, g.Build([]*models.Task{
		task("ui", models.TaskTypeUIGeneration, 2),
		critical,
	}))

	c := New(testPool(t, "a1", "a2", "a3"), echoInvoker(), WithAcquireWait(time.Millisecond))
	report, err := c.Execute(context.Background(), g, "req-1", models.StrategyAdaptive, models.ComplexityMedium)
	require.NoError(t, err)
	require.True(t, report.FullyCompleted())

	assert.Equal(t, ModeSingle, report.Tasks["ui"].Mode, "routine tasks dispatch to one agent")
	assert.Equal(t, ModeConsensus, report.Tasks["delivery"].Mode, "critical tasks vote")
}

// fixedReliability returns canned success rates.
type fixedReliability struct {
	rates map[string]float64
}

func (f *fixedReliability) SuccessRate(agentID string) (float64, int) {
	rate, ok := f.rates[agentID]
	if !ok {
		return 0, 0
	}
	return rate, 10
}

func (f *fixedReliability) RecordOutcome(agentID string, taskType models.TaskType, success bool) {}

func TestAdaptiveVotesOnUnreliablePool(t *testing.T) {
	c := New(testPool(t, "a1", "a2", "a3"), echoInvoker(),
		WithReliability(&fixedReliability{rates: map[string]float64{"a1": 0.2, "a2": 0.3, "a3": 0.4}}))

	shaky := task("t1", models.TaskTypeCodeGeneration, 2)
	shaky.Criticality = 0.6
	assert.Equal(t, ModeConsensus, c.modeAdaptive(shaky))

	c2 := New(testPool(t, "a1", "a2", "a3"), echoInvoker(),
		WithReliability(&fixedReliability{rates: map[string]float64{"a1": 0.9, "a2": 0.9, "a3": 0.9}}))
	assert.Equal(t, ModeSingle, c2.modeAdaptive(shaky))
}

func TestHierarchicalDelegatesAndDelivers(t *testing.T) {
	g := diamondGraph(t, 2)
	c := New(testPool(t, "a1", "a2"), echoInvoker(), WithAcquireWait(time.Millisecond))

	report, err := c.Execute(context.Background(), g, "req-1", models.StrategyHierarchical, models.ComplexityMedium)
	require.NoError(t, err)
	assert.True(t, report.FullyCompleted())
	assert.Equal(t, models.TaskStatusCompleted, g.GetTask("delivery").Status)
	require.NotNil(t, g.GetTask("ui").Result, "delegated results must fold back into the owning graph")
}

func TestValidationExhaustionMarksEscalation(t *testing.T) {
	pipeline, err := validation.NewPipeline(0.9,
		validation.Spec{Validator: validation.NewConfidenceValidator(), Weight: 1.0, Blocking: true},
	)
	require.NoError(t, err)

	g := graph.New()
	require.NoError(t, g.Build([]*models.Task{
		task("work", models.TaskTypeCodeGeneration, 2),
		task("delivery", models.TaskTypeDelivery, 2, "work"),
	}))

	// Every response, original or corrected, reports low confidence, so
	// the correction loop can never satisfy the blocking validator.
	inv := invokerFunc(func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
		return okArtifact(agent, task, "uncertain output for the request", 0.1), nil
	})

	c := New(testPool(t, "a1"), inv,
		WithAcquireWait(time.Millisecond),
		WithValidation(pipeline, 2))

	report, err := c.Execute(context.Background(), g, "req-1", models.StrategyParallel, models.ComplexityMedium)
	require.NoError(t, err)

	tr := report.Tasks["work"]
	require.NotNil(t, tr)
	assert.Equal(t, models.TaskStatusFailed, tr.Status)
	assert.True(t, tr.CorrectionExhausted)
	assert.Len(t, tr.CorrectionAttempts, 2)
	assert.True(t, report.NeedsEscalation())
	assert.Equal(t, models.TaskStatusBlocked, g.GetTask("delivery").Status)
	assert.ElementsMatch(t, []string{"work", "delivery"}, report.UnsettledTaskIDs())
}

func TestCancellationStopsNewDispatch(t *testing.T) {
	g := diamondGraph(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	var mu sync.Mutex
	inv := invokerFunc(func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return okArtifact(agent, task, "output", 0.9), nil
	})

	c := New(testPool(t, "a1"), inv, WithAcquireWait(time.Millisecond))
	_, err := c.Execute(ctx, g, "req-1", models.StrategyParallel, models.ComplexityMedium)
	require.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls, "no task may be dispatched after cancellation")
}

func TestUnknownStrategyRejected(t *testing.T) {
	g := diamondGraph(t, 2)
	c := New(testPool(t, "a1"), echoInvoker())
	_, err := c.Execute(context.Background(), g, "req-1", models.CoordinationStrategy("psychic"), models.ComplexityMedium)
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestDebugLoggerReceivesGraphDiagnostics(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Build([]*models.Task{
		task("ui", models.TaskTypeUIGeneration, 1),
		task("delivery", models.TaskTypeDelivery, 1, "ui"),
	}))

	var mu sync.Mutex
	var lines []string
	logf := func(format string, args ...interface{}) {
		mu.Lock()
		lines = append(lines, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	inv := invokerFunc(func(ctx context.Context, agent *models.Agent, task *models.Task) (*models.Artifact, error) {
		return nil, fmt.Errorf("model unavailable")
	})
	c := New(testPool(t, "a1"), inv, WithAcquireWait(time.Millisecond), WithDebugLogger(logf))
	_, err := c.Execute(context.Background(), g, "req-1", models.StrategyParallel, models.ComplexityMedium)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var sawCoordinator, sawGraph bool
	for _, line := range lines {
		if strings.HasPrefix(line, "[coordinator.") {
			sawCoordinator = true
		}
		if strings.HasPrefix(line, "[graph.") {
			sawGraph = true
		}
	}
	assert.True(t, sawCoordinator, "coordinator diagnostics missing, got %v", lines)
	assert.True(t, sawGraph, "graph diagnostics missing, got %v", lines)
}

func TestEmitterCountsDrops(t *testing.T) {
	e := NewEventEmitter(1)
	e.Emit(Event{Type: EventTaskQueued})
	e.Emit(Event{Type: EventTaskQueued})
	assert.Equal(t, uint64(1), e.DroppedCount())
}
