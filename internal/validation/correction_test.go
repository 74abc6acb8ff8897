package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tactix-ai/tactix/pkg/models"
)

// scriptedValidator fails until the artifact content contains the marker
// the corrector is expected to add.
type scriptedValidator struct {
	name   string
	marker string
}

func (s *scriptedValidator) Name() string { return s.name }

func (s *scriptedValidator) Validate(artifact *models.Artifact, input Input) *models.ValidationResult {
	if strings.Contains(artifact.Content, s.marker) {
		return &models.ValidationResult{ValidatorName: s.name, Score: 0.9, Passed: true}
	}
	return &models.ValidationResult{
		ValidatorName:        s.name,
		Score:                0.3,
		Passed:               false,
		Findings:             []string{"marker missing"},
		SuggestedCorrections: []string{"add " + s.marker},
	}
}

// recordingCorrector produces fresh artifacts, optionally fixing the
// content after a given number of calls.
type recordingCorrector struct {
	calls       int
	fixAfter    int
	marker      string
	corrections [][]string
}

func (c *recordingCorrector) Correct(ctx context.Context, task *models.Task, failed *models.Artifact, corrections []string) (*models.Artifact, error) {
	c.calls++
	c.corrections = append(c.corrections, corrections)

	content := failed.Content
	if c.calls >= c.fixAfter {
		content = failed.Content + " " + c.marker
	}
	return &models.Artifact{
		ID:      fmt.Sprintf("artifact-%d", c.calls+1),
		TaskID:  failed.TaskID,
		AgentID: failed.AgentID,
		Content: content,
	}, nil
}

func correctionTask() *models.Task {
	return &models.Task{ID: "t1", Description: "build the thing", Type: models.TaskTypeCodeGeneration}
}

func TestLoopResolvesAfterCorrection(t *testing.T) {
	p, err := NewPipeline(0.7,
		Spec{Validator: &scriptedValidator{name: "check", marker: "FIXED"}, Weight: 1.0},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	corrector := &recordingCorrector{fixAfter: 2, marker: "FIXED"}
	loop := NewLoop(p, corrector, 3)

	outcome, err := loop.Run(context.Background(), correctionTask(), testArtifact("t1"), Input{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Resolved {
		t.Fatal("expected outcome to resolve")
	}
	if len(outcome.Attempts) != 2 {
		t.Fatalf("expected 2 correction attempts, got %d", len(outcome.Attempts))
	}
	if !outcome.Attempts[1].Resolved {
		t.Error("final attempt should be marked resolved")
	}
	if outcome.Attempts[0].Resolved {
		t.Error("first attempt did not resolve and must not be marked so")
	}
	if outcome.Attempts[0].ArtifactBefore != "artifact-1" {
		t.Errorf("first attempt before = %q, want artifact-1", outcome.Attempts[0].ArtifactBefore)
	}
	if outcome.Attempts[0].ArtifactAfter == outcome.Attempts[0].ArtifactBefore {
		t.Error("corrections must produce fresh artifacts, never mutate the failing one")
	}
	if len(corrector.corrections) == 0 || len(corrector.corrections[0]) == 0 {
		t.Fatal("corrector should receive the failing validators' suggestions")
	}
	if corrector.corrections[0][0] != "add FIXED" {
		t.Errorf("correction feedback = %q, want %q", corrector.corrections[0][0], "add FIXED")
	}
}

func TestLoopExhaustionReturnsTrace(t *testing.T) {
	p, err := NewPipeline(0.7,
		Spec{Validator: &scriptedValidator{name: "check", marker: "NEVER_ADDED"}, Weight: 1.0},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	corrector := &recordingCorrector{fixAfter: 100, marker: "other"}
	loop := NewLoop(p, corrector, 3)

	outcome, err := loop.Run(context.Background(), correctionTask(), testArtifact("t1"), Input{})
	if !errors.Is(err, ErrCorrectionExhausted) {
		t.Fatalf("expected ErrCorrectionExhausted, got %v", err)
	}
	if outcome.Resolved {
		t.Error("exhausted loop must not report resolved")
	}
	if len(outcome.Attempts) != 3 {
		t.Errorf("expected 3 attempts before exhaustion, got %d", len(outcome.Attempts))
	}
	if corrector.calls != 3 {
		t.Errorf("corrector called %d times, want 3", corrector.calls)
	}
	if outcome.Consensus == nil || outcome.Consensus.Passed {
		t.Error("final consensus must be a failure")
	}
}

func TestLoopExhaustionWrapsVeto(t *testing.T) {
	p, err := NewPipeline(0.2,
		Spec{Validator: &stubValidator{name: "quality", score: 0.95, passed: true}, Weight: 1.0},
		Spec{Validator: &scriptedValidator{name: "security", marker: "NEVER"}, Weight: 1.0, Blocking: true},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	corrector := &recordingCorrector{fixAfter: 100}
	loop := NewLoop(p, corrector, 2)

	_, err = loop.Run(context.Background(), correctionTask(), testArtifact("t1"), Input{})
	if !errors.Is(err, ErrCorrectionExhausted) {
		t.Fatalf("expected ErrCorrectionExhausted, got %v", err)
	}
	var blocker *BlockerError
	if !errors.As(err, &blocker) {
		t.Fatal("a veto-caused exhaustion should carry BlockerError in its chain")
	}
	if len(blocker.Validators) != 1 || blocker.Validators[0] != "security" {
		t.Errorf("blocker validators = %v, want [security]", blocker.Validators)
	}
}

func TestLoopHonorsCancellation(t *testing.T) {
	p, err := NewPipeline(0.7,
		Spec{Validator: &scriptedValidator{name: "check", marker: "NEVER"}, Weight: 1.0},
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := NewLoop(p, &recordingCorrector{fixAfter: 100}, 3)
	_, err = loop.Run(ctx, correctionTask(), testArtifact("t1"), Input{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewLoopDefaultsMaxAttempts(t *testing.T) {
	p, _ := NewPipeline(0.5, Spec{Validator: &stubValidator{name: "a"}, Weight: 1})
	loop := NewLoop(p, &recordingCorrector{}, 0)
	if loop.maxAttempts != DefaultMaxCorrectionAttempts {
		t.Errorf("maxAttempts = %d, want %d", loop.maxAttempts, DefaultMaxCorrectionAttempts)
	}
}
