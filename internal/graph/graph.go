// Package graph provides the dependency graph of subtasks for one request.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tactix-ai/tactix/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the subtask graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrNoDeliveryNode indicates the graph has no terminal delivery node.
var ErrNoDeliveryNode = errors.New("graph has no delivery node")

// ErrMultipleDeliveryNodes indicates the graph has more than one terminal node.
var ErrMultipleDeliveryNodes = errors.New("graph has more than one terminal node")

// SubtaskGraph is a directed acyclic graph of subtasks for one request.
// Nodes are tasks, edges are "depends on" relationships. The graph is owned
// exclusively by the coordinator instance executing it; there is no
// cross-request sharing.
type SubtaskGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on.
	edges map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty subtask graph.
func New() *SubtaskGraph {
	return &SubtaskGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *SubtaskGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from a slice of tasks. Returns an error if a
// cycle is detected, a dependency references an unknown task, or the
// delivery-node invariant does not hold.
func (g *SubtaskGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	if err := g.checkDeliveryLocked(); err != nil {
		return err
	}

	g.debugLog("[graph.Build] graph built with %d nodes", len(g.nodes))
	return nil
}

// checkDeliveryLocked verifies that the graph has exactly one terminal node,
// that it is a delivery task, and that every other node reaches it.
// Caller must hold g.mu.
func (g *SubtaskGraph) checkDeliveryLocked() error {
	// A terminal node is one no other task depends on.
	hasDependent := make(map[string]bool)
	for _, deps := range g.edges {
		for _, depID := range deps {
			hasDependent[depID] = true
		}
	}

	var terminal []*models.Task
	for id, task := range g.nodes {
		if !hasDependent[id] {
			terminal = append(terminal, task)
		}
	}

	if len(terminal) == 0 {
		return ErrNoDeliveryNode
	}
	if len(terminal) > 1 {
		return fmt.Errorf("%w: found %d", ErrMultipleDeliveryNodes, len(terminal))
	}
	if terminal[0].Type != models.TaskTypeDelivery {
		return fmt.Errorf("terminal node %s has type %q, want %q",
			terminal[0].ID, terminal[0].Type, models.TaskTypeDelivery)
	}

	// Every node must be a transitive dependency of the delivery node,
	// otherwise it has no path to delivery.
	reachable := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		for _, depID := range g.edges[id] {
			walk(depID)
		}
	}
	walk(terminal[0].ID)

	for id := range g.nodes {
		if !reachable[id] {
			return fmt.Errorf("task %s has no path to the delivery node", id)
		}
	}

	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *SubtaskGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked detects cycles with DFS coloring. Caller must hold g.mu.
func (g *SubtaskGraph) hasCycleLocked() bool {
	// 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// TopologicalSort returns task IDs in an order where all dependencies come
// before the tasks that depend on them. Returns an error if the graph
// contains a cycle.
func (g *SubtaskGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for id := range g.nodes {
		visit(id)
	}

	return result, nil
}

// GetReady returns tasks whose dependencies are all completed and that are
// not themselves completed, blocked, or already in flight. A task is never
// returned before all its dependencies reach completed.
func (g *SubtaskGraph) GetReady() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for id, task := range g.nodes {
		if g.completed[id] {
			continue
		}
		switch task.Status {
		case models.TaskStatusPending, models.TaskStatusRetried:
			// eligible
		default:
			continue
		}

		allDepsComplete := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, task)
		}
	}

	g.debugLog("[graph.GetReady] %d ready tasks", len(ready))
	return ready
}

// MarkComplete marks a task as completed, unblocking its dependents for
// subsequent GetReady calls.
func (g *SubtaskGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// BlockDependents marks every transitive dependent of a failed task as
// blocked: a pending task whose inputs can no longer all be produced must
// never dispatch, however deep the chain. Unrelated branches are untouched;
// partial completion is reported, not turned into a global abort. Returns
// the IDs of tasks newly blocked.
func (g *SubtaskGraph) BlockDependents(failedTaskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	dependents := make(map[string][]string, len(g.edges))
	for id, deps := range g.edges {
		for _, depID := range deps {
			dependents[depID] = append(dependents[depID], id)
		}
	}

	var blocked []string
	queue := []string{failedTaskID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, id := range dependents[cur] {
			task := g.nodes[id]
			if task == nil || task.Status != models.TaskStatusPending {
				continue
			}
			task.Status = models.TaskStatusBlocked
			task.BlockedReason = "dependency_failed:" + failedTaskID
			blocked = append(blocked, id)
			queue = append(queue, id)
		}
	}

	g.debugLog("[graph.BlockDependents] %s blocked %d dependents", failedTaskID, len(blocked))
	return blocked
}

// DepsCompleted reports whether every dependency of the task has completed.
func (g *SubtaskGraph) DepsCompleted(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, depID := range g.edges[taskID] {
		if !g.completed[depID] {
			return false
		}
	}
	return true
}

// Unsettled returns the IDs of tasks that have not completed, whatever
// state they were left in. A request only finishes as completed once this
// is empty.
func (g *SubtaskGraph) Unsettled() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id := range g.nodes {
		if !g.completed[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Absorb copies settled task state from an escalated subgraph back into
// this graph, so the parent reflects results produced at higher levels.
// Tasks the subgraph does not contain are untouched.
func (g *SubtaskGraph) Absorb(sub *SubtaskGraph) {
	for _, st := range sub.Tasks() {
		g.mu.Lock()
		task := g.nodes[st.ID]
		if task == nil {
			g.mu.Unlock()
			continue
		}
		task.Status = st.Status
		task.Result = st.Result
		task.Error = st.Error
		task.BlockedReason = st.BlockedReason
		task.CompletedAt = st.CompletedAt
		if st.Status == models.TaskStatusCompleted {
			g.completed[st.ID] = true
		}
		g.mu.Unlock()
	}
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *SubtaskGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *SubtaskGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of tasks that the given task depends on.
func (g *SubtaskGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[taskID]
}

// GetDependents returns the IDs of tasks that depend on the given task.
func (g *SubtaskGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// DeliveryNode returns the single terminal delivery task, or nil if Build
// has not been called.
func (g *SubtaskGraph) DeliveryNode() *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hasDependent := make(map[string]bool)
	for _, deps := range g.edges {
		for _, depID := range deps {
			hasDependent[depID] = true
		}
	}
	for id, task := range g.nodes {
		if !hasDependent[id] {
			return task
		}
	}
	return nil
}

// Tasks returns all tasks in the graph.
func (g *SubtaskGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.nodes))
	for _, task := range g.nodes {
		tasks = append(tasks, task)
	}
	return tasks
}

// AllSettled returns true when every non-blocked task is completed and no
// task remains dispatchable. Blocked tasks count as settled: they can never
// run in this graph again.
func (g *SubtaskGraph) AllSettled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, task := range g.nodes {
		if g.completed[id] {
			continue
		}
		switch task.Status {
		case models.TaskStatusBlocked:
			continue
		case models.TaskStatusFailed:
			if task.RetriesRemaining == 0 {
				continue
			}
			return false
		default:
			return false
		}
	}
	return true
}

// Subgraph returns a new graph containing the given tasks and the edges
// between them, used when escalating a failing subgraph to the next level.
// Task status and retry budgets are reset for re-execution.
func (g *SubtaskGraph) Subgraph(taskIDs []string, retries int) (*SubtaskGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keep := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		keep[id] = true
	}

	var tasks []*models.Task
	for id := range keep {
		orig := g.nodes[id]
		if orig == nil {
			return nil, fmt.Errorf("subgraph references unknown task %s", id)
		}
		clone := *orig
		clone.Status = models.TaskStatusPending
		clone.RetriesRemaining = retries
		clone.AssignedAgent = ""
		clone.BlockedReason = ""
		clone.Error = ""
		clone.DependsOn = nil
		for _, depID := range g.edges[id] {
			if keep[depID] {
				clone.DependsOn = append(clone.DependsOn, depID)
			}
		}
		tasks = append(tasks, &clone)
	}

	sub := New()
	sub.debugLog = g.debugLog
	if err := sub.buildWithoutInvariant(tasks); err != nil {
		return nil, err
	}
	return sub, nil
}

// buildWithoutInvariant builds the graph skipping the delivery-node check.
// Escalated subgraphs may be fragments that do not contain the delivery task.
func (g *SubtaskGraph) buildWithoutInvariant(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}
	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}
