// Package pool maintains the process-wide registry of worker agents.
// Agents are registered at startup and live for process uptime; the only
// mutable state per agent is its load counter, updated atomically.
package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tactix-ai/tactix/pkg/models"
)

// ErrNoCapableAgent indicates no registered agent can handle a task type.
var ErrNoCapableAgent = errors.New("no capable agent registered")

// ErrDuplicateAgent indicates an agent ID was registered twice.
var ErrDuplicateAgent = errors.New("agent already registered")

// entry pairs an immutable agent record with its live load counter.
type entry struct {
	agent *models.Agent
	load  atomic.Int32
}

// Registry is the shared agent pool. Registration happens once at startup;
// reservations and releases serialize on the registry lock, reads of the
// load counters stay lock-free.
type Registry struct {
	mu sync.RWMutex
	// agents maps agent ID to its entry.
	agents map[string]*entry
	// classLimits caps concurrent tasks per agent class. Zero means unlimited.
	classLimits map[models.AgentClass]int
	// classLoad tracks in-flight tasks per class.
	classLoad map[models.AgentClass]*atomic.Int32
}

// NewRegistry creates a Registry with the given per-class concurrency limits.
func NewRegistry(classLimits map[models.AgentClass]int) *Registry {
	r := &Registry{
		agents:      make(map[string]*entry),
		classLimits: make(map[models.AgentClass]int),
		classLoad:   make(map[models.AgentClass]*atomic.Int32),
	}
	for class, limit := range classLimits {
		r.classLimits[class] = limit
		r.classLoad[class] = &atomic.Int32{}
	}
	return r
}

// Register adds an agent to the pool. Returns an error for duplicate IDs
// or unknown classes.
func (r *Registry) Register(agent *models.Agent) error {
	if !agent.Class.Valid() {
		return fmt.Errorf("agent %s has unknown class %q", agent.ID, agent.Class)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agent.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, agent.ID)
	}
	r.agents[agent.ID] = &entry{agent: agent}
	if _, ok := r.classLoad[agent.Class]; !ok {
		r.classLoad[agent.Class] = &atomic.Int32{}
	}
	return nil
}

// Acquire reserves the least-loaded agent capable of the task type,
// skipping excluded agent IDs and respecting both the agent's own
// MaxConcurrency and its class ceiling. Returns false if none is
// available right now.
func (r *Registry) Acquire(taskType models.TaskType, exclude []string) (*models.Agent, bool) {
	agents, ok := r.AcquireDistinct(taskType, 1, exclude)
	if !ok {
		return nil, false
	}
	return agents[0], true
}

// AcquireDistinct reserves k distinct capable agents at once, used by the
// consensus strategy. Either all k are reserved or none are.
func (r *Registry) AcquireDistinct(taskType models.TaskType, k int, exclude []string) ([]*models.Agent, bool) {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	// A write lock: reservation is a check followed by an increment, and
	// two acquirers interleaving those steps could both clear a ceiling
	// that only has room for one.
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.capableLocked(taskType, excluded)
	if len(candidates) < k {
		// Fall back to excluded agents if there is no other way to reach k.
		// The no-same-agent-retry rule only holds when an alternative exists.
		if len(r.capableLocked(taskType, nil)) >= k {
			candidates = r.capableLocked(taskType, nil)
		} else {
			return nil, false
		}
	}

	// Least loaded first; ties broken by agent ID for determinism.
	sort.Slice(candidates, func(i, j int) bool {
		li, lj := candidates[i].load.Load(), candidates[j].load.Load()
		if li != lj {
			return li < lj
		}
		return candidates[i].agent.ID < candidates[j].agent.ID
	})

	var reserved []*entry
	for _, e := range candidates {
		if len(reserved) == k {
			break
		}
		if r.tryReserveLocked(e) {
			reserved = append(reserved, e)
		}
	}

	if len(reserved) < k {
		for _, e := range reserved {
			r.releaseEntryLocked(e)
		}
		return nil, false
	}

	agents := make([]*models.Agent, len(reserved))
	for i, e := range reserved {
		agents[i] = e.agent
	}
	return agents, true
}

// capableLocked returns entries able to handle the task type, minus
// excluded IDs. Caller must hold r.mu.
func (r *Registry) capableLocked(taskType models.TaskType, excluded map[string]bool) []*entry {
	var out []*entry
	for id, e := range r.agents {
		if excluded[id] {
			continue
		}
		if e.agent.CanHandle(taskType) {
			out = append(out, e)
		}
	}
	return out
}

// tryReserveLocked bumps the agent and class counters if neither ceiling
// is hit. Caller must hold r.mu for writing so the check and the
// increment cannot interleave with another reservation.
func (r *Registry) tryReserveLocked(e *entry) bool {
	if int(e.load.Load()) >= e.agent.MaxConcurrency {
		return false
	}
	classLoad := r.classLoad[e.agent.Class]
	limit := r.classLimits[e.agent.Class]
	if limit > 0 && int(classLoad.Load()) >= limit {
		return false
	}
	e.load.Add(1)
	classLoad.Add(1)
	return true
}

// releaseEntryLocked undoes one reservation. Caller must hold r.mu.
func (r *Registry) releaseEntryLocked(e *entry) {
	e.load.Add(-1)
	r.classLoad[e.agent.Class].Add(-1)
}

// Release returns an agent's slot to the pool.
func (r *Registry) Release(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.agents[agentID]
	if !ok {
		return
	}
	r.releaseEntryLocked(e)
}

// Load returns an agent's current in-flight task count.
func (r *Registry) Load(agentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.agents[agentID]
	if !ok {
		return 0
	}
	return int(e.load.Load())
}

// Agents returns all registered agents.
func (r *Registry) Agents() []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Agent, 0, len(r.agents))
	for _, e := range r.agents {
		out = append(out, e.agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Capable returns the IDs of agents that can handle the task type.
func (r *Registry) Capable(taskType models.TaskType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, e := range r.agents {
		if e.agent.CanHandle(taskType) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Size returns the number of registered agents.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
