package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tactix-ai/tactix/pkg/models"
)

// DefaultMaxCorrectionAttempts bounds the correction loop when the
// configuration does not override it.
const DefaultMaxCorrectionAttempts = 3

// ErrCorrectionExhausted indicates the correction loop ran out of attempts
// without producing a passing artifact. The caller escalates with the
// attached trace.
var ErrCorrectionExhausted = errors.New("correction attempts exhausted")

// Corrector re-invokes the agent that produced a failing artifact, with
// the failing validators' suggested corrections added to its context.
// The coordinator implements this against the live agent pool.
type Corrector interface {
	Correct(ctx context.Context, task *models.Task, failed *models.Artifact, corrections []string) (*models.Artifact, error)
}

// Outcome is the full trace of one validate-correct cycle for an artifact.
type Outcome struct {
	// Artifact is the final artifact, corrected or not.
	Artifact *models.Artifact
	// Consensus is the aggregate decision on the final artifact.
	Consensus *models.ConsensusResult
	// Results holds the individual validator results for the final artifact.
	Results []models.ValidationResult
	// Attempts records every correction pass, in order.
	Attempts []models.CorrectionAttempt
	// Resolved is true if the final artifact passed validation.
	Resolved bool
}

// Loop drives the bounded validate-correct cycle: validate, and on
// failure feed the suggested corrections back to the originating agent,
// up to maxAttempts times.
type Loop struct {
	pipeline    *Pipeline
	corrector   Corrector
	maxAttempts int
	debugLog    func(format string, args ...interface{})
}

// NewLoop creates a correction loop. maxAttempts values below 1 fall back
// to DefaultMaxCorrectionAttempts.
func NewLoop(pipeline *Pipeline, corrector Corrector, maxAttempts int) *Loop {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxCorrectionAttempts
	}
	return &Loop{
		pipeline:    pipeline,
		corrector:   corrector,
		maxAttempts: maxAttempts,
		debugLog:    func(format string, args ...interface{}) {},
	}
}

// SetDebugLogger installs a debug logging function.
func (l *Loop) SetDebugLogger(fn func(format string, args ...interface{})) {
	if fn != nil {
		l.debugLog = fn
	}
}

// Run validates the artifact and, while it fails, asks the corrector for
// a corrected artifact. Every correction produces a fresh artifact; the
// failing one is never mutated.
//
// On success Run returns a resolved Outcome. On exhaustion it returns the
// outcome so far wrapped under ErrCorrectionExhausted, with a BlockerError
// in the chain when a blocking validator caused the final failure.
func (l *Loop) Run(ctx context.Context, task *models.Task, artifact *models.Artifact, input Input) (*Outcome, error) {
	outcome := &Outcome{Artifact: artifact}

	current := artifact
	for attempt := 0; ; attempt++ {
		consensus, results := l.pipeline.Run(ctx, current, input)
		outcome.Artifact = current
		outcome.Consensus = consensus
		outcome.Results = results

		if consensus.Passed {
			outcome.Resolved = true
			if attempt > 0 {
				outcome.Attempts[attempt-1].Resolved = true
			}
			return outcome, nil
		}

		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		if attempt >= l.maxAttempts {
			err := fmt.Errorf("%w: task %s failed after %d corrections", ErrCorrectionExhausted, task.ID, l.maxAttempts)
			if veto := VetoError(consensus); veto != nil {
				err = fmt.Errorf("%w: %w", err, veto)
			}
			return outcome, err
		}

		triggered, corrections := failingFeedback(results)
		l.debugLog("[validation.Loop] task %s: correction %d/%d, triggered by %v",
			task.ID, attempt+1, l.maxAttempts, triggered)

		record := models.CorrectionAttempt{
			AttemptNumber:       attempt + 1,
			ArtifactBefore:      current.ID,
			ValidatorsTriggered: triggered,
			StartedAt:           time.Now(),
		}

		corrected, err := l.corrector.Correct(ctx, task, current, corrections)
		if err != nil {
			outcome.Attempts = append(outcome.Attempts, record)
			return outcome, fmt.Errorf("correction attempt %d: %w", attempt+1, err)
		}
		record.ArtifactAfter = corrected.ID
		outcome.Attempts = append(outcome.Attempts, record)

		// Corrections are validated against the prior feedback so
		// validators can see what was already asked for.
		input.PriorFeedback = append(input.PriorFeedback, corrections...)
		current = corrected
	}
}

// failingFeedback collects the names and suggested corrections of every
// non-abstaining validator that failed the artifact.
func failingFeedback(results []models.ValidationResult) (triggered []string, corrections []string) {
	for _, result := range results {
		if result.Abstained || result.Passed {
			continue
		}
		triggered = append(triggered, result.ValidatorName)
		corrections = append(corrections, result.SuggestedCorrections...)
	}
	return triggered, corrections
}
