// Package workflow tracks orchestration requests through their whole life.
// The Manager owns submission, status queries, cooperative cancellation,
// and garbage collection of terminal requests past the retention window.
// Per-request lifecycle events from every coordinator fan in to a single
// subscriber channel.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tactix-ai/tactix/internal/coordinator"
	"github.com/tactix-ai/tactix/internal/decompose"
	"github.com/tactix-ai/tactix/internal/graph"
	"github.com/tactix-ai/tactix/internal/hierarchy"
	"github.com/tactix-ai/tactix/internal/state"
	"github.com/tactix-ai/tactix/pkg/models"
)

const (
	// DefaultRetention is how long terminal requests stay queryable in
	// memory before garbage collection evicts them.
	DefaultRetention = 24 * time.Hour
	// DefaultGCInterval is how often the retention sweep runs.
	DefaultGCInterval = 10 * time.Minute
)

// CoordinatorFactory builds a coordinator for one hierarchy level. Called
// once per level per request, so every request gets its own event stream
// and the level's validation profile.
type CoordinatorFactory func(level hierarchy.Level) (*coordinator.Coordinator, error)

// Config configures a Manager.
type Config struct {
	// Decomposer turns request text into subtask graphs.
	Decomposer *decompose.Decomposer
	// Levels is the ordered hierarchy ladder.
	Levels []hierarchy.Level
	// Factory builds the per-level coordinator.
	Factory CoordinatorFactory
	// Store persists request history. Optional.
	Store *state.DB
	// Retention is how long terminal requests stay queryable in memory.
	Retention time.Duration
	// GCInterval is how often the retention sweep runs.
	GCInterval time.Duration
}

// Snapshot is a point-in-time view of one request.
type Snapshot struct {
	// Request is a copy of the request's current state.
	Request models.OrchestrationRequest
	// CompletedTasks lists subtask IDs that have completed so far.
	CompletedTasks []string
	// PartialResults maps completed subtask IDs to their artifacts. It is
	// populated once the request settles; a failed request still carries
	// the artifacts its completed branches produced.
	PartialResults map[string]*models.Artifact
	// Delivery is the delivery task's artifact, the request's final
	// output. Nil until the delivery task completes.
	Delivery *models.Artifact
}

// run is the in-memory record of one submitted request.
type run struct {
	mu sync.Mutex

	req       *models.OrchestrationRequest
	graph     *graph.SubtaskGraph
	cancel    context.CancelFunc
	done      chan struct{}
	completed map[string]bool
	results   map[string]*models.Artifact
	delivery  *models.Artifact
	coords    []*coordinator.Coordinator
}

// Manager tracks all in-flight orchestration requests by ID.
type Manager struct {
	cfg Config

	mu   sync.RWMutex
	runs map[string]*run

	events chan coordinator.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started bool
}

// NewManager creates a Manager. Call Start before submitting requests.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Decomposer == nil {
		return nil, fmt.Errorf("workflow manager requires a decomposer")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("workflow manager requires a coordinator factory")
	}
	if len(cfg.Levels) == 0 {
		cfg.Levels = hierarchy.DefaultLevels()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultGCInterval
	}

	return &Manager{
		cfg:    cfg,
		runs:   make(map[string]*run),
		events: make(chan coordinator.Event, 256),
	}, nil
}

// Start begins background work: the retention sweep and event fan-in for
// subsequent submissions. All goroutines the manager owns stop when Stop
// is called or the parent context ends.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true

	m.wg.Add(1)
	go m.gcLoop()
	return nil
}

// Stop cancels every in-flight request, waits for them to settle, and
// closes the event channel.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager not started")
	}
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	close(m.events)
	return nil
}

// Events returns the aggregated lifecycle event stream across all requests.
func (m *Manager) Events() <-chan coordinator.Event {
	return m.events
}

// Count returns the number of requests currently tracked in memory,
// terminal ones inside the retention window included.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

// DroppedEventCount returns the total lifecycle events dropped across all
// tracked requests.
func (m *Manager) DroppedEventCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total uint64
	for _, r := range m.runs {
		r.mu.Lock()
		for _, c := range r.coords {
			total += c.DroppedEvents()
		}
		r.mu.Unlock()
	}
	return total
}

// Submit decomposes the request and starts executing it through the
// hierarchy. Decomposition failures are fatal and surface immediately;
// nothing is dispatched. Returns the request ID.
func (m *Manager) Submit(input string) (string, error) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return "", fmt.Errorf("manager not started")
	}
	m.mu.Unlock()

	req := &models.OrchestrationRequest{
		ID:          uuid.New().String(),
		Input:       input,
		Status:      models.RequestStatusReceived,
		SubmittedAt: time.Now(),
	}

	g, err := m.cfg.Decomposer.Decompose(req.ID, input)
	if err != nil {
		return "", fmt.Errorf("decompose request: %w", err)
	}
	if err := hierarchy.Transition(req, models.RequestStatusDecomposed); err != nil {
		return "", err
	}
	complexity := m.cfg.Decomposer.Complexity(input)

	m.mu.Lock()
	parent := m.ctx
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(parent)
	r := &run{
		req:       req,
		graph:     g,
		cancel:    cancel,
		done:      make(chan struct{}),
		completed: make(map[string]bool),
		results:   make(map[string]*models.Artifact),
	}

	m.mu.Lock()
	m.runs[req.ID] = r
	m.mu.Unlock()

	m.persist(req)

	m.wg.Add(1)
	go m.execute(runCtx, r, complexity)

	return req.ID, nil
}

// execute drives one request through the hierarchy to a terminal state.
func (m *Manager) execute(ctx context.Context, r *run, complexity models.Complexity) {
	defer m.wg.Done()
	defer r.cancel()
	defer close(r.done)

	// The hierarchy mutates a working copy; readers see the tracked copy
	// until the run settles.
	r.mu.Lock()
	work := *r.req
	display := *r.req
	display.Status = models.RequestStatusExecuting
	r.req = &display
	r.mu.Unlock()

	h, err := hierarchy.New(m.cfg.Levels, m.executorFactory(ctx, r))
	if err != nil {
		m.settle(r, &work, err)
		return
	}

	_, runErr := h.Run(ctx, &work, r.graph, complexity)
	m.settle(r, &work, runErr)
}

// settle records a request's terminal state, harvests partial results
// from the graph, and persists the final snapshot.
func (m *Manager) settle(r *run, work *models.OrchestrationRequest, runErr error) {
	if !work.Status.Terminal() {
		// A factory or setup error can end a run before the state machine
		// reaches a terminal state.
		work.Status = models.RequestStatusFailed
		now := time.Now()
		work.FinishedAt = &now
	}
	if runErr != nil && len(work.BlockingTasks) == 0 && work.Status == models.RequestStatusFailed {
		unsettled := r.graph.Unsettled()
		sort.Strings(unsettled)
		work.BlockingTasks = unsettled
	}

	r.mu.Lock()
	r.req = work
	for _, task := range r.graph.Tasks() {
		if task.Status == models.TaskStatusCompleted && task.Result != nil {
			r.completed[task.ID] = true
			r.results[task.ID] = task.Result
		}
	}
	if d := r.graph.DeliveryNode(); d != nil && d.Status == models.TaskStatusCompleted {
		r.delivery = d.Result
	}
	r.mu.Unlock()

	m.persist(work)
}

// executorFactory wraps the configured coordinator factory so each level's
// events are forwarded into the manager's aggregate stream.
func (m *Manager) executorFactory(ctx context.Context, r *run) hierarchy.ExecutorFactory {
	return func(level hierarchy.Level) (hierarchy.Executor, error) {
		coord, err := m.cfg.Factory(level)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.coords = append(r.coords, coord)
		r.mu.Unlock()

		if events := coord.Events(); events != nil {
			m.wg.Add(1)
			go m.forwardEvents(ctx, r, events)
		}
		return coord, nil
	}
}

// forwardEvents forwards one coordinator's events into the aggregate
// channel, tracking task completions for status snapshots.
func (m *Manager) forwardEvents(ctx context.Context, r *run, events <-chan coordinator.Event) {
	defer m.wg.Done()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Type == coordinator.EventTaskCompleted && event.TaskID != "" {
				r.mu.Lock()
				r.completed[event.TaskID] = true
				r.mu.Unlock()
			}
			select {
			case m.events <- event:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// GetStatus returns a snapshot of the request: its current state plus any
// partial results. Terminal requests evicted from memory are served from
// the store, if one is configured.
func (m *Manager) GetStatus(id string) (*Snapshot, error) {
	m.mu.RLock()
	r := m.runs[id]
	m.mu.RUnlock()

	if r == nil {
		if m.cfg.Store != nil {
			req, err := m.cfg.Store.GetRequest(id)
			if err != nil {
				return nil, err
			}
			if req != nil {
				return &Snapshot{Request: *req}, nil
			}
		}
		return nil, fmt.Errorf("unknown request %s", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &Snapshot{
		Request:        *r.req,
		PartialResults: make(map[string]*models.Artifact, len(r.results)),
		Delivery:       r.delivery,
	}
	for taskID := range r.completed {
		snap.CompletedTasks = append(snap.CompletedTasks, taskID)
	}
	for taskID, artifact := range r.results {
		snap.PartialResults[taskID] = artifact
	}
	return snap, nil
}

// Wait blocks until the request settles or the context ends. Test and CLI
// convenience.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.RLock()
	r := m.runs[id]
	m.mu.RUnlock()
	if r == nil {
		return fmt.Errorf("unknown request %s", id)
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests cooperative cancellation: new dispatch stops immediately,
// in-flight agent calls run to completion and their results are discarded.
// Returns false for unknown or already-terminal requests.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	r := m.runs[id]
	m.mu.RUnlock()
	if r == nil {
		return false
	}

	r.mu.Lock()
	terminal := r.req.Status.Terminal()
	r.mu.Unlock()
	if terminal {
		return false
	}

	r.cancel()
	return true
}

// gcLoop periodically evicts terminal requests past the retention window
// from memory and from the store.
func (m *Manager) gcLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep(time.Now().Add(-m.cfg.Retention))
		case <-m.ctx.Done():
			return
		}
	}
}

// sweep evicts terminal requests that finished before the cutoff.
func (m *Manager) sweep(cutoff time.Time) {
	m.mu.Lock()
	for id, r := range m.runs {
		r.mu.Lock()
		evict := r.req.Status.Terminal() && r.req.FinishedAt != nil && r.req.FinishedAt.Before(cutoff)
		r.mu.Unlock()
		if evict {
			delete(m.runs, id)
		}
	}
	m.mu.Unlock()

	if m.cfg.Store != nil {
		m.cfg.Store.PurgeTerminalRequests(cutoff)
	}
}

// persist writes a request snapshot to the store, if one is configured.
func (m *Manager) persist(req *models.OrchestrationRequest) {
	if m.cfg.Store == nil {
		return
	}
	// Best effort. History is an observability aid, not a correctness
	// dependency.
	m.cfg.Store.SaveRequest(req)
}
