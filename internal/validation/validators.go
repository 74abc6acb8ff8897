package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tactix-ai/tactix/pkg/models"
)

// Built-in validator names, used in configuration and results.
const (
	NameStructure    = "structure"
	NameCompleteness = "completeness"
	NameSecurity     = "security"
	NameConsistency  = "consistency"
	NameConfidence   = "confidence"
)

// StructureValidator checks that an artifact has well-formed content:
// non-empty, long enough to be substantive, and with balanced delimiters.
type StructureValidator struct{}

// NewStructureValidator creates a structure validator.
func NewStructureValidator() *StructureValidator { return &StructureValidator{} }

// Name returns the validator name.
func (v *StructureValidator) Name() string { return NameStructure }

// minContentLen is the shortest content considered substantive.
const minContentLen = 40

// Validate checks structural well-formedness of the artifact content.
func (v *StructureValidator) Validate(artifact *models.Artifact, input Input) *models.ValidationResult {
	result := &models.ValidationResult{ValidatorName: v.Name(), Score: 1.0}

	content := strings.TrimSpace(artifact.Content)
	if content == "" {
		result.Score = 0
		result.Findings = append(result.Findings, "artifact content is empty")
		result.SuggestedCorrections = append(result.SuggestedCorrections,
			"produce non-empty output for the task")
		return result
	}

	if len(content) < minContentLen {
		result.Score -= 0.3
		result.Findings = append(result.Findings,
			fmt.Sprintf("content is only %d characters, likely truncated", len(content)))
		result.SuggestedCorrections = append(result.SuggestedCorrections,
			"expand the output to fully cover the task description")
	}

	for _, pair := range []struct {
		open, close rune
		label       string
	}{
		{'{', '}', "braces"},
		{'[', ']', "brackets"},
		{'(', ')', "parentheses"},
	} {
		if delta := delimiterBalance(content, pair.open, pair.close); delta != 0 {
			result.Score -= 0.3
			result.Findings = append(result.Findings,
				fmt.Sprintf("unbalanced %s (delta %+d)", pair.label, delta))
			result.SuggestedCorrections = append(result.SuggestedCorrections,
				fmt.Sprintf("balance %s in the output", pair.label))
		}
	}

	if result.Score < 0 {
		result.Score = 0
	}
	result.Passed = result.Score >= 0.6
	return result
}

func delimiterBalance(s string, open, close rune) int {
	delta := 0
	for _, r := range s {
		switch r {
		case open:
			delta++
		case close:
			delta--
		}
	}
	return delta
}

// CompletenessValidator detects stub or placeholder output that pretends
// to be a finished artifact.
type CompletenessValidator struct {
	stubPatterns []string
}

// NewCompletenessValidator creates a completeness validator with the
// default stub patterns.
func NewCompletenessValidator() *CompletenessValidator {
	return &CompletenessValidator{
		stubPatterns: []string{
			"not implemented",
			"todo:",
			"fixme",
			"placeholder",
			"left as an exercise",
			"rest of the implementation",
		},
	}
}

// Name returns the validator name.
func (v *CompletenessValidator) Name() string { return NameCompleteness }

// Validate scans the artifact for stub markers. Each distinct marker found
// deducts from the score.
func (v *CompletenessValidator) Validate(artifact *models.Artifact, input Input) *models.ValidationResult {
	result := &models.ValidationResult{ValidatorName: v.Name(), Score: 1.0}

	lowered := strings.ToLower(artifact.Content)
	for _, pattern := range v.stubPatterns {
		if strings.Contains(lowered, pattern) {
			result.Score -= 0.25
			result.Findings = append(result.Findings,
				fmt.Sprintf("stub marker %q present in output", pattern))
			result.SuggestedCorrections = append(result.SuggestedCorrections,
				fmt.Sprintf("replace the %q section with a complete implementation", pattern))
		}
	}

	if result.Score < 0 {
		result.Score = 0
	}
	result.Passed = len(result.Findings) == 0
	return result
}

// SecurityValidator scans for unsafe patterns in produced artifacts. It is
// intended to run as a blocking validator: any finding fails the artifact
// no matter how well the other validators score it.
type SecurityValidator struct {
	patterns map[string]string
}

// NewSecurityValidator creates a security validator with the default
// pattern set.
func NewSecurityValidator() *SecurityValidator {
	return &SecurityValidator{
		patterns: map[string]string{
			"password =":              "hardcoded credential",
			"password=\"":             "hardcoded credential",
			"api_key =":               "hardcoded API key",
			"apikey=\"":               "hardcoded API key",
			"secret =":                "hardcoded secret",
			"begin rsa private key":   "embedded private key",
			"eval(":                   "dynamic evaluation of untrusted input",
			"disable_ssl":             "TLS verification disabled",
			"insecureskipverify":      "TLS verification disabled",
			"md5(password":            "weak password hashing",
			"plaintext password":      "plaintext password storage",
			"store password in":       "plaintext password storage",
			"' or '1'='1":             "SQL injection pattern",
			"dangerouslysetinnerhtml": "unsanitized HTML injection",
		},
	}
}

// Name returns the validator name.
func (v *SecurityValidator) Name() string { return NameSecurity }

// Validate reports a failure for every unsafe pattern found. The score
// drops sharply per finding so security problems are visible even in
// non-blocking configurations.
func (v *SecurityValidator) Validate(artifact *models.Artifact, input Input) *models.ValidationResult {
	result := &models.ValidationResult{ValidatorName: v.Name(), Score: 1.0}

	lowered := strings.ToLower(artifact.Content)
	patterns := make([]string, 0, len(v.patterns))
	for pattern := range v.patterns {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	for _, pattern := range patterns {
		issue := v.patterns[pattern]
		if strings.Contains(lowered, pattern) {
			result.Score -= 0.4
			result.Findings = append(result.Findings,
				fmt.Sprintf("%s (%q)", issue, pattern))
			result.SuggestedCorrections = append(result.SuggestedCorrections,
				fmt.Sprintf("remove %s and use a safe alternative", issue))
		}
	}

	if result.Score < 0 {
		result.Score = 0
	}
	result.Passed = len(result.Findings) == 0
	return result
}

// ConsistencyValidator checks that the artifact's bookkeeping fields line
// up with the task it claims to answer.
type ConsistencyValidator struct{}

// NewConsistencyValidator creates a consistency validator.
func NewConsistencyValidator() *ConsistencyValidator { return &ConsistencyValidator{} }

// Name returns the validator name.
func (v *ConsistencyValidator) Name() string { return NameConsistency }

// Validate verifies the artifact references its task and producer and
// reports a plausible confidence.
func (v *ConsistencyValidator) Validate(artifact *models.Artifact, input Input) *models.ValidationResult {
	result := &models.ValidationResult{ValidatorName: v.Name(), Score: 1.0}

	if input.Task != nil && artifact.TaskID != input.Task.ID {
		result.Score -= 0.5
		result.Findings = append(result.Findings,
			fmt.Sprintf("artifact task %q does not match validated task %q", artifact.TaskID, input.Task.ID))
		result.SuggestedCorrections = append(result.SuggestedCorrections,
			"regenerate the artifact for the correct task")
	}
	if artifact.AgentID == "" {
		result.Score -= 0.25
		result.Findings = append(result.Findings, "artifact has no producing agent")
	}
	if artifact.Confidence < 0 || artifact.Confidence > 1 {
		result.Score -= 0.25
		result.Findings = append(result.Findings,
			fmt.Sprintf("confidence %.2f outside [0,1]", artifact.Confidence))
	}

	if result.Score < 0 {
		result.Score = 0
	}
	result.Passed = len(result.Findings) == 0
	return result
}

// ConfidenceValidator turns the producing agent's self-reported confidence
// into a score, so chronically unsure output drags the aggregate down.
type ConfidenceValidator struct{}

// NewConfidenceValidator creates a confidence validator.
func NewConfidenceValidator() *ConfidenceValidator { return &ConfidenceValidator{} }

// Name returns the validator name.
func (v *ConfidenceValidator) Name() string { return NameConfidence }

// lowConfidence is the threshold below which self-reported confidence is
// flagged as a finding.
const lowConfidence = 0.5

// Validate scores the artifact by its self-reported confidence.
func (v *ConfidenceValidator) Validate(artifact *models.Artifact, input Input) *models.ValidationResult {
	result := &models.ValidationResult{ValidatorName: v.Name()}

	score := artifact.Confidence
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	result.Score = score
	result.Passed = score >= lowConfidence
	if !result.Passed {
		result.Findings = append(result.Findings,
			fmt.Sprintf("agent self-reported confidence %.2f below %.2f", score, lowConfidence))
		result.SuggestedCorrections = append(result.SuggestedCorrections,
			"revisit the parts of the task the agent was unsure about")
	}
	return result
}
