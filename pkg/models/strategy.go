package models

// CoordinationStrategy selects how a subtask graph is executed against
// the agent pool.
type CoordinationStrategy string

const (
	// StrategyParallel dispatches every dependency-satisfied task at once,
	// bounded by per-class concurrency limits.
	StrategyParallel CoordinationStrategy = "parallel"
	// StrategySequential executes tasks one at a time in topological order.
	StrategySequential CoordinationStrategy = "sequential"
	// StrategyConsensus dispatches each task to k agents independently and
	// resolves by weighted majority vote.
	StrategyConsensus CoordinationStrategy = "consensus"
	// StrategyHierarchical delegates whole subgraphs to nested coordinators.
	StrategyHierarchical CoordinationStrategy = "hierarchical"
	// StrategyAdaptive picks a strategy per task from agent reliability
	// history and task criticality.
	StrategyAdaptive CoordinationStrategy = "adaptive"
)

// Valid returns true if the strategy is a known value.
func (s CoordinationStrategy) Valid() bool {
	switch s {
	case StrategyParallel, StrategySequential, StrategyConsensus,
		StrategyHierarchical, StrategyAdaptive:
		return true
	default:
		return false
	}
}

// Complexity is the estimated size class of a request, used to pick a
// decomposition template and derive dispatch timeouts.
type Complexity string

const (
	// ComplexitySimple is a single-step request.
	ComplexitySimple Complexity = "simple"
	// ComplexityMedium is a request needing a handful of subtasks.
	ComplexityMedium Complexity = "medium"
	// ComplexityComplex is a request needing parallel branches.
	ComplexityComplex Complexity = "complex"
	// ComplexityExpert is a request needing design, review and integration passes.
	ComplexityExpert Complexity = "expert"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex, ComplexityExpert:
		return true
	default:
		return false
	}
}
