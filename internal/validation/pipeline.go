package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tactix-ai/tactix/pkg/models"
)

// ErrNoValidators indicates a pipeline was constructed with no validators.
var ErrNoValidators = errors.New("pipeline requires at least one validator")

// BlockerError reports a hard veto: one or more blocking validators failed
// the artifact. The weighted average cannot override it.
type BlockerError struct {
	// Validators names the blocking validators that failed.
	Validators []string
}

// Error implements the error interface.
func (e *BlockerError) Error() string {
	return fmt.Sprintf("blocking validator veto: %s", strings.Join(e.Validators, ", "))
}

// Pipeline runs a fixed, ordered set of validators over an artifact and
// aggregates their results into a single deterministic decision.
//
// The pass rule has two tiers: the weighted average of non-abstaining
// scores must reach the threshold, and no blocking validator may report
// a failure. A validator that exceeds its time budget abstains; its
// weight is removed from the denominator rather than dragging the
// average down.
type Pipeline struct {
	// specs is the ordered validator set. Order is fixed at construction
	// so aggregation is reproducible.
	specs []Spec
	// threshold is the global pass threshold for the weighted average.
	threshold float64
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// NewPipeline creates a pipeline over the given validator specs.
func NewPipeline(threshold float64, specs ...Spec) (*Pipeline, error) {
	if len(specs) == 0 {
		return nil, ErrNoValidators
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold %.2f outside [0,1]", threshold)
	}
	for i, spec := range specs {
		if spec.Validator == nil {
			return nil, fmt.Errorf("spec %d has nil validator", i)
		}
		if spec.Weight < 0 {
			return nil, fmt.Errorf("validator %q has negative weight", spec.Validator.Name())
		}
		if spec.Budget <= 0 {
			specs[i].Budget = DefaultBudget
		}
	}
	return &Pipeline{
		specs:     specs,
		threshold: threshold,
		debugLog:  func(format string, args ...interface{}) {},
	}, nil
}

// SetDebugLogger installs a debug logging function.
func (p *Pipeline) SetDebugLogger(fn func(format string, args ...interface{})) {
	if fn != nil {
		p.debugLog = fn
	}
}

// Threshold returns the configured global pass threshold.
func (p *Pipeline) Threshold() float64 { return p.threshold }

// Run validates the artifact with every configured validator and returns
// the aggregate decision plus the individual results, in spec order.
// Validators run concurrently, each under its own time budget.
func (p *Pipeline) Run(ctx context.Context, artifact *models.Artifact, input Input) (*models.ConsensusResult, []models.ValidationResult) {
	results := make([]models.ValidationResult, len(p.specs))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range p.specs {
		g.Go(func() error {
			results[i] = p.runOne(gctx, spec, artifact, input)
			return nil
		})
	}
	// Goroutines never return errors; abstention covers timeouts.
	_ = g.Wait()

	consensus := p.Aggregate(results)
	p.debugLog("[validation.Run] artifact %s: score %.3f threshold %.2f passed %v vetoed_by %v",
		artifact.ID, consensus.AggregatedScore, consensus.Threshold, consensus.Passed, consensus.VetoedBy)
	return consensus, results
}

// runOne executes a single validator under its time budget. If the budget
// elapses first, the validator abstains.
func (p *Pipeline) runOne(ctx context.Context, spec Spec, artifact *models.Artifact, input Input) models.ValidationResult {
	start := time.Now()

	done := make(chan *models.ValidationResult, 1)
	go func() {
		done <- spec.Validator.Validate(artifact, input)
	}()

	budget := time.NewTimer(spec.Budget)
	defer budget.Stop()

	select {
	case result := <-done:
		result.Duration = time.Since(start)
		return *result
	case <-budget.C:
	case <-ctx.Done():
	}

	p.debugLog("[validation.runOne] %s abstained after %v", spec.Validator.Name(), time.Since(start))
	return models.ValidationResult{
		ValidatorName: spec.Validator.Name(),
		Abstained:     true,
		Duration:      time.Since(start),
	}
}

// Aggregate folds a result set into the pipeline's two-tier decision.
// It is a pure function of the results and the configured weights:
// identical inputs always produce the identical decision and score.
func (p *Pipeline) Aggregate(results []models.ValidationResult) *models.ConsensusResult {
	consensus := &models.ConsensusResult{Threshold: p.threshold}

	var weightedSum, weightTotal float64
	for i, result := range results {
		if result.Abstained {
			continue
		}
		weight := p.weightFor(result.ValidatorName, i)
		weightedSum += weight * result.Score
		weightTotal += weight

		if p.blockingFor(result.ValidatorName, i) && !result.Passed {
			consensus.VetoedBy = append(consensus.VetoedBy, result.ValidatorName)
		}
	}

	// If every validator abstained there is nothing to certify.
	if weightTotal > 0 {
		consensus.AggregatedScore = weightedSum / weightTotal
	}
	consensus.Passed = weightTotal > 0 &&
		consensus.AggregatedScore >= p.threshold &&
		len(consensus.VetoedBy) == 0

	var voting, agreeing int
	for _, result := range results {
		if result.Abstained {
			continue
		}
		voting++
		if result.Passed == consensus.Passed {
			agreeing++
		} else {
			consensus.DissentingValidators = append(consensus.DissentingValidators, result.ValidatorName)
		}
	}
	if voting > 0 {
		consensus.AgreementRatio = float64(agreeing) / float64(voting)
	}

	return consensus
}

// weightFor returns the configured weight for a validator. The index hint
// avoids a scan when results are in spec order, which Run guarantees.
func (p *Pipeline) weightFor(name string, hint int) float64 {
	if hint >= 0 && hint < len(p.specs) && p.specs[hint].Validator.Name() == name {
		return p.specs[hint].Weight
	}
	for _, spec := range p.specs {
		if spec.Validator.Name() == name {
			return spec.Weight
		}
	}
	return 0
}

// blockingFor reports whether the named validator is in the blocking set.
func (p *Pipeline) blockingFor(name string, hint int) bool {
	if hint >= 0 && hint < len(p.specs) && p.specs[hint].Validator.Name() == name {
		return p.specs[hint].Blocking
	}
	for _, spec := range p.specs {
		if spec.Validator.Name() == name {
			return spec.Blocking
		}
	}
	return false
}

// VetoError converts a failed consensus into a typed error when the
// failure was caused by a blocking validator, nil otherwise.
func VetoError(consensus *models.ConsensusResult) error {
	if consensus == nil || len(consensus.VetoedBy) == 0 {
		return nil
	}
	return &BlockerError{Validators: consensus.VetoedBy}
}
