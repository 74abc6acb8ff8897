package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tactix-ai/tactix/pkg/models"
)

// stubValidator returns a canned result, optionally after a delay.
type stubValidator struct {
	name        string
	score       float64
	passed      bool
	corrections []string
	delay       time.Duration
}

func (s *stubValidator) Name() string { return s.name }

func (s *stubValidator) Validate(artifact *models.Artifact, input Input) *models.ValidationResult {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return &models.ValidationResult{
		ValidatorName:        s.name,
		Score:                s.score,
		Passed:               s.passed,
		SuggestedCorrections: s.corrections,
	}
}

func testArtifact(taskID string) *models.Artifact {
	return &models.Artifact{
		ID:         "artifact-1",
		TaskID:     taskID,
		AgentID:    "agent-1",
		Content:    "a perfectly reasonable artifact body with enough length to pass checks",
		Confidence: 0.9,
	}
}

func TestPipelinePassesAboveThreshold(t *testing.T) {
	p, err := NewPipeline(0.75,
		Spec{Validator: &stubValidator{name: "a", score: 0.9, passed: true}, Weight: 1.0},
		Spec{Validator: &stubValidator{name: "b", score: 0.8, passed: true}, Weight: 1.0},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	consensus, results := p.Run(context.Background(), testArtifact("t1"), Input{})
	if !consensus.Passed {
		t.Errorf("expected pass, got fail with score %.3f", consensus.AggregatedScore)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	want := (0.9 + 0.8) / 2
	if diff := consensus.AggregatedScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("aggregated score = %.6f, want %.6f", consensus.AggregatedScore, want)
	}
}

func TestPipelineWeightedAverage(t *testing.T) {
	p, err := NewPipeline(0.5,
		Spec{Validator: &stubValidator{name: "heavy", score: 1.0, passed: true}, Weight: 3.0},
		Spec{Validator: &stubValidator{name: "light", score: 0.0, passed: false}, Weight: 1.0},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	consensus, _ := p.Run(context.Background(), testArtifact("t1"), Input{})
	if diff := consensus.AggregatedScore - 0.75; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("aggregated score = %.6f, want 0.75", consensus.AggregatedScore)
	}
	if !consensus.Passed {
		t.Error("0.75 against threshold 0.5 with no veto should pass")
	}
	if len(consensus.DissentingValidators) != 1 || consensus.DissentingValidators[0] != "light" {
		t.Errorf("dissenting = %v, want [light]", consensus.DissentingValidators)
	}
	if consensus.AgreementRatio != 0.5 {
		t.Errorf("agreement ratio = %.2f, want 0.5", consensus.AgreementRatio)
	}
}

// A blocking validator's failure must veto the pipeline even when every
// other validator scores near-perfect and the weighted average clears the
// threshold by a wide margin.
func TestBlockingValidatorVeto(t *testing.T) {
	p, err := NewPipeline(0.7,
		Spec{Validator: &stubValidator{name: "quality", score: 0.95, passed: true}, Weight: 1.0},
		Spec{Validator: &stubValidator{name: "style", score: 0.95, passed: true}, Weight: 1.0},
		Spec{Validator: &stubValidator{
			name:        "security",
			score:       0.2,
			passed:      false,
			corrections: []string{"remove hardcoded credential"},
		}, Weight: 1.0, Blocking: true},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	consensus, _ := p.Run(context.Background(), testArtifact("t1"), Input{})
	if consensus.Passed {
		t.Fatal("blocking validator failure must veto the pipeline")
	}
	if len(consensus.VetoedBy) != 1 || consensus.VetoedBy[0] != "security" {
		t.Errorf("vetoed_by = %v, want [security]", consensus.VetoedBy)
	}
	// The average itself clears the threshold; only the veto fails it.
	if consensus.AggregatedScore < 0.7 {
		t.Errorf("aggregated score %.3f should clear the 0.7 threshold", consensus.AggregatedScore)
	}

	veto := VetoError(consensus)
	var blocker *BlockerError
	if !errors.As(veto, &blocker) {
		t.Fatalf("VetoError should return *BlockerError, got %T", veto)
	}
}

func TestValidatorTimeoutAbstains(t *testing.T) {
	p, err := NewPipeline(0.7,
		Spec{Validator: &stubValidator{name: "fast", score: 0.9, passed: true}, Weight: 1.0},
		Spec{Validator: &stubValidator{name: "slow", score: 0.1, passed: false, delay: 500 * time.Millisecond},
			Weight: 1.0, Budget: 20 * time.Millisecond},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	consensus, results := p.Run(context.Background(), testArtifact("t1"), Input{})

	var slow models.ValidationResult
	for _, r := range results {
		if r.ValidatorName == "slow" {
			slow = r
		}
	}
	if !slow.Abstained {
		t.Fatal("slow validator should abstain after its budget")
	}

	// The abstention removes the slow validator's weight entirely: the
	// aggregate is the fast validator's score alone and the pipeline passes.
	if diff := consensus.AggregatedScore - 0.9; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("aggregated score = %.6f, want 0.9", consensus.AggregatedScore)
	}
	if !consensus.Passed {
		t.Error("abstention must be neutral, not a failure")
	}
}

func TestAllAbstainingFails(t *testing.T) {
	p, err := NewPipeline(0.5,
		Spec{Validator: &stubValidator{name: "slow", score: 1.0, passed: true, delay: 500 * time.Millisecond},
			Weight: 1.0, Budget: 10 * time.Millisecond},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	consensus, _ := p.Run(context.Background(), testArtifact("t1"), Input{})
	if consensus.Passed {
		t.Error("a pipeline with only abstentions cannot certify an artifact")
	}
	if consensus.AggregatedScore != 0 {
		t.Errorf("aggregated score = %.3f, want 0", consensus.AggregatedScore)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	p, err := NewPipeline(0.6,
		Spec{Validator: &stubValidator{name: "a"}, Weight: 2.0},
		Spec{Validator: &stubValidator{name: "b"}, Weight: 1.5},
		Spec{Validator: &stubValidator{name: "c"}, Weight: 0.5, Blocking: true},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	results := []models.ValidationResult{
		{ValidatorName: "a", Score: 0.71, Passed: true},
		{ValidatorName: "b", Score: 0.66, Passed: true},
		{ValidatorName: "c", Score: 0.9, Passed: true},
	}

	first := p.Aggregate(results)
	for i := 0; i < 50; i++ {
		again := p.Aggregate(results)
		if again.AggregatedScore != first.AggregatedScore || again.Passed != first.Passed {
			t.Fatalf("aggregation diverged on run %d: %.10f/%v vs %.10f/%v",
				i, again.AggregatedScore, again.Passed, first.AggregatedScore, first.Passed)
		}
	}
}

func TestPipelineConstructorRejectsBadConfig(t *testing.T) {
	if _, err := NewPipeline(0.5); !errors.Is(err, ErrNoValidators) {
		t.Errorf("empty validator set: got %v, want ErrNoValidators", err)
	}
	if _, err := NewPipeline(1.5, Spec{Validator: &stubValidator{name: "a"}, Weight: 1}); err == nil {
		t.Error("threshold above 1 should be rejected")
	}
	if _, err := NewPipeline(0.5, Spec{Validator: &stubValidator{name: "a"}, Weight: -1}); err == nil {
		t.Error("negative weight should be rejected")
	}
}
