package decompose

import (
	"errors"
	"strings"
	"testing"

	"github.com/tactix-ai/tactix/pkg/models"
)

func TestDecomposeRejectsEmptyInput(t *testing.T) {
	d := New(2)

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := d.Decompose("req-1", input)
		var derr *DecompositionError
		if !errors.As(err, &derr) {
			t.Errorf("input %q: expected DecompositionError, got %v", input, err)
		}
	}
}

func TestDecomposeRejectsOversizedInput(t *testing.T) {
	d := New(2)

	_, err := d.Decompose("req-1", strings.Repeat("x", MaxRequestLen+1))
	var derr *DecompositionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DecompositionError, got %v", err)
	}
}

// The "build a login form" scenario: a medium-complexity template with
// ui_generation, validation_logic, test_generation, and delivery, where
// validation_logic depends on ui_generation.
func TestDecomposeLoginForm(t *testing.T) {
	d := New(2)

	if got := d.Complexity("build a login form"); got != models.ComplexityMedium {
		t.Fatalf("expected medium complexity, got %s", got)
	}

	g, err := d.Decompose("req-1", "build a login form")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}

	byType := make(map[models.TaskType]*models.Task)
	for _, task := range g.Tasks() {
		byType[task.Type] = task
	}

	for _, want := range []models.TaskType{
		models.TaskTypeUIGeneration,
		models.TaskTypeValidationLogic,
		models.TaskTypeTestGeneration,
		models.TaskTypeDelivery,
	} {
		if byType[want] == nil {
			t.Fatalf("missing subtask of type %s", want)
		}
	}
	if g.Size() != 4 {
		t.Errorf("expected 4 subtasks, got %d", g.Size())
	}

	validation := byType[models.TaskTypeValidationLogic]
	ui := byType[models.TaskTypeUIGeneration]
	found := false
	for _, depID := range validation.DependsOn {
		if depID == ui.ID {
			found = true
		}
	}
	if !found {
		t.Error("validation_logic must depend on ui_generation")
	}
}

func TestDecomposeGraphInvariants(t *testing.T) {
	d := New(3)

	requests := []string{
		"fix typo in readme",
		"build a login form",
		"build an api service with a dashboard",
		"redesign the authentication architecture",
	}

	for _, req := range requests {
		g, err := d.Decompose("req-1", req)
		if err != nil {
			t.Fatalf("%q: decompose failed: %v", req, err)
		}
		if g.HasCycle() {
			t.Errorf("%q: graph has a cycle", req)
		}
		if _, err := g.TopologicalSort(); err != nil {
			t.Errorf("%q: topological sort failed: %v", req, err)
		}
		delivery := g.DeliveryNode()
		if delivery == nil || delivery.Type != models.TaskTypeDelivery {
			t.Errorf("%q: missing single delivery node", req)
		}
		for _, task := range g.Tasks() {
			if task.RetriesRemaining != 3 {
				t.Errorf("%q: task %s has retry budget %d, want 3", req, task.ID, task.RetriesRemaining)
			}
			if task.Status != models.TaskStatusPending {
				t.Errorf("%q: task %s starts in %s, want pending", req, task.ID, task.Status)
			}
		}
	}
}

func TestEstimateComplexity(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		request string
		want    models.Complexity
	}{
		{"fix typo in docs", models.ComplexitySimple},
		{"build a login form", models.ComplexityMedium},
		{"build a reporting dashboard", models.ComplexityComplex},
		{"plan the service migration", models.ComplexityExpert},
		{"redesign platform architecture", models.ComplexityExpert},
	}

	for _, tt := range tests {
		if got := e.Estimate(tt.request); got != tt.want {
			t.Errorf("Estimate(%q) = %s, want %s", tt.request, got, tt.want)
		}
	}
}

func TestCriticalityBoundedAndDomainSensitive(t *testing.T) {
	e := NewEstimator()

	plain := e.Criticality("build a contact page")
	login := e.Criticality("build a login form with password reset")

	if login <= plain {
		t.Errorf("auth-adjacent request should score higher: %f vs %f", login, plain)
	}
	if login > 1.0 {
		t.Errorf("criticality must stay in [0,1], got %f", login)
	}
}

// Decomposition is pure: the same input yields the same shape every time.
func TestDecomposeDeterministicShape(t *testing.T) {
	d := New(2)

	g1, err := d.Decompose("req-1", "build a login form")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}
	g2, err := d.Decompose("req-2", "build a login form")
	if err != nil {
		t.Fatalf("decompose failed: %v", err)
	}

	types1 := taskTypeSet(g1.Tasks())
	types2 := taskTypeSet(g2.Tasks())
	if len(types1) != len(types2) {
		t.Fatalf("shape differs: %v vs %v", types1, types2)
	}
	for k := range types1 {
		if !types2[k] {
			t.Errorf("type %s missing from second decomposition", k)
		}
	}
}

func taskTypeSet(tasks []*models.Task) map[models.TaskType]bool {
	set := make(map[models.TaskType]bool)
	for _, task := range tasks {
		set[task.Type] = true
	}
	return set
}
