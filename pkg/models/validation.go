package models

import "time"

// ValidationResult is one validator's verdict on an artifact.
// Results are produced fresh per validation call and never mutated.
type ValidationResult struct {
	// ValidatorName identifies the validator that produced this result.
	ValidatorName string `json:"validator_name"`
	// Score is the validator's quality score in [0,1].
	Score float64 `json:"score"`
	// Passed is the validator's binary verdict.
	Passed bool `json:"passed"`
	// Abstained is true if the validator exceeded its time budget and was
	// treated as neutral rather than failing.
	Abstained bool `json:"abstained,omitempty"`
	// Findings lists the issues the validator found.
	Findings []string `json:"findings,omitempty"`
	// SuggestedCorrections lists machine-actionable fixes for the findings.
	SuggestedCorrections []string `json:"suggested_corrections,omitempty"`
	// Duration is how long the validation call took.
	Duration time.Duration `json:"duration,omitempty"`
}

// ConsensusResult is the deterministic aggregation of a set of
// ValidationResults under a fixed weight table.
type ConsensusResult struct {
	// AggregatedScore is the weighted average of non-abstaining validator
	// scores, in [0,1].
	AggregatedScore float64 `json:"aggregated_score"`
	// Threshold is the configured global pass threshold.
	Threshold float64 `json:"threshold"`
	// AgreementRatio is the fraction of non-abstaining validators whose
	// binary verdict matches the aggregate decision.
	AgreementRatio float64 `json:"agreement_ratio"`
	// DissentingValidators names validators whose verdict disagrees with
	// the aggregate decision.
	DissentingValidators []string `json:"dissenting_validators,omitempty"`
	// VetoedBy names the blocking validators that failed, if any.
	// A non-empty list forces Passed to false regardless of the score.
	VetoedBy []string `json:"vetoed_by,omitempty"`
	// Passed is the pipeline's two-tier decision: score at or above the
	// threshold and no blocking validator failing.
	Passed bool `json:"passed"`
}

// CorrectionAttempt records one pass of the correction loop.
type CorrectionAttempt struct {
	// AttemptNumber is the 1-indexed correction attempt.
	AttemptNumber int `json:"attempt_number"`
	// ArtifactBefore is the artifact ID that failed validation.
	ArtifactBefore string `json:"artifact_before"`
	// ArtifactAfter is the artifact ID produced by the correction, if any.
	ArtifactAfter string `json:"artifact_after,omitempty"`
	// ValidatorsTriggered names the failing validators whose corrections
	// were fed back to the agent.
	ValidatorsTriggered []string `json:"validators_triggered"`
	// Resolved is true if the corrected artifact passed validation.
	Resolved bool `json:"resolved"`
	// StartedAt is when the correction attempt began.
	StartedAt time.Time `json:"started_at"`
}
