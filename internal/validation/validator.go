package validation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tactix-ai/tactix/pkg/models"
)

// Validator scores a single artifact. Implementations must not mutate the
// artifact and must be deterministic for identical inputs.
type Validator interface {
	// Name identifies the validator in results and configuration.
	Name() string
	// Validate scores the artifact against its task. The returned result is
	// owned by the caller and never mutated afterwards.
	Validate(artifact *models.Artifact, input Input) *models.ValidationResult
}

// Input carries the task context a validator judges an artifact against.
type Input struct {
	// Task is the subtask the artifact was produced for.
	Task *models.Task
	// Request is the original high-level request text.
	Request string
	// PriorFeedback holds suggested corrections from earlier attempts, so a
	// validator can check whether they were addressed.
	PriorFeedback []string
}

// Spec binds a validator to its pipeline configuration.
type Spec struct {
	// Validator is the validator instance to run.
	Validator Validator
	// Weight is the validator's share of the aggregated score.
	Weight float64
	// Blocking marks the validator as a hard veto: its failure forces the
	// pipeline to fail regardless of the weighted average.
	Blocking bool
	// Budget is the validator's time budget. Exceeding it counts as an
	// abstention, not a failure. Zero means DefaultBudget.
	Budget time.Duration
}

// DefaultBudget is the per-validator time budget when a Spec leaves it unset.
const DefaultBudget = 30 * time.Second

// Factory constructs a validator instance.
type Factory func() Validator

// Registry is a typed lookup table mapping validator names to factories.
// All validators are registered at startup; nothing is resolved by
// reflection at run time.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty validator registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given name. Registering the same name
// twice is an error.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("validator %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Resolve constructs a validator by name.
func (r *Registry) Resolve(name string) (Validator, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown validator %q", name)
	}
	return factory(), nil
}

// Names returns the registered validator names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with all built-in validators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, factory := range map[string]Factory{
		NameStructure:    func() Validator { return NewStructureValidator() },
		NameCompleteness: func() Validator { return NewCompletenessValidator() },
		NameSecurity:     func() Validator { return NewSecurityValidator() },
		NameConsistency:  func() Validator { return NewConsistencyValidator() },
		NameConfidence:   func() Validator { return NewConfidenceValidator() },
	} {
		// Register cannot fail on a fresh registry with distinct names.
		_ = r.Register(name, factory)
	}
	return r
}
