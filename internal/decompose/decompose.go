// Package decompose turns a high-level request into a dependency-ordered
// subtask graph. Decomposition is a pure function of its input: no side
// effects, no shared state.
package decompose

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tactix-ai/tactix/internal/graph"
	"github.com/tactix-ai/tactix/pkg/models"
)

// MaxRequestLen is the largest request, in bytes, the decomposer accepts.
const MaxRequestLen = 16 * 1024

// DecompositionError indicates malformed or oversized input. It is fatal
// and surfaced immediately; nothing is dispatched.
type DecompositionError struct {
	// Reason explains what was wrong with the input.
	Reason string
}

// Error implements the error interface.
func (e *DecompositionError) Error() string {
	return "decomposition failed: " + e.Reason
}

// templateStep is one subtask slot in a decomposition template.
// Dependencies reference other steps by type within the same template.
type templateStep struct {
	taskType  models.TaskType
	dependsOn []models.TaskType
}

// templates maps each complexity class to its decomposition shape.
// Every template ends in a single delivery step that all paths reach.
var templates = map[models.Complexity][]templateStep{
	models.ComplexitySimple: {
		{taskType: models.TaskTypeCodeGeneration},
		{taskType: models.TaskTypeDelivery, dependsOn: []models.TaskType{models.TaskTypeCodeGeneration}},
	},
	models.ComplexityMedium: {
		{taskType: models.TaskTypeUIGeneration},
		{taskType: models.TaskTypeValidationLogic, dependsOn: []models.TaskType{models.TaskTypeUIGeneration}},
		{taskType: models.TaskTypeTestGeneration, dependsOn: []models.TaskType{models.TaskTypeUIGeneration}},
		{taskType: models.TaskTypeDelivery, dependsOn: []models.TaskType{
			models.TaskTypeValidationLogic, models.TaskTypeTestGeneration}},
	},
	models.ComplexityComplex: {
		{taskType: models.TaskTypeAnalysis},
		{taskType: models.TaskTypeCodeGeneration, dependsOn: []models.TaskType{models.TaskTypeAnalysis}},
		{taskType: models.TaskTypeUIGeneration, dependsOn: []models.TaskType{models.TaskTypeAnalysis}},
		{taskType: models.TaskTypeValidationLogic, dependsOn: []models.TaskType{models.TaskTypeUIGeneration}},
		{taskType: models.TaskTypeIntegration, dependsOn: []models.TaskType{
			models.TaskTypeCodeGeneration, models.TaskTypeValidationLogic}},
		{taskType: models.TaskTypeTestGeneration, dependsOn: []models.TaskType{models.TaskTypeIntegration}},
		{taskType: models.TaskTypeDelivery, dependsOn: []models.TaskType{models.TaskTypeTestGeneration}},
	},
	models.ComplexityExpert: {
		{taskType: models.TaskTypeAnalysis},
		{taskType: models.TaskTypeDesign, dependsOn: []models.TaskType{models.TaskTypeAnalysis}},
		{taskType: models.TaskTypeCodeGeneration, dependsOn: []models.TaskType{models.TaskTypeDesign}},
		{taskType: models.TaskTypeUIGeneration, dependsOn: []models.TaskType{models.TaskTypeDesign}},
		{taskType: models.TaskTypeValidationLogic, dependsOn: []models.TaskType{models.TaskTypeUIGeneration}},
		{taskType: models.TaskTypeIntegration, dependsOn: []models.TaskType{
			models.TaskTypeCodeGeneration, models.TaskTypeValidationLogic}},
		{taskType: models.TaskTypeTestGeneration, dependsOn: []models.TaskType{models.TaskTypeIntegration}},
		{taskType: models.TaskTypeReview, dependsOn: []models.TaskType{models.TaskTypeTestGeneration}},
		{taskType: models.TaskTypeDelivery, dependsOn: []models.TaskType{models.TaskTypeReview}},
	},
}

// Decomposer builds subtask graphs from requests.
type Decomposer struct {
	estimator *Estimator
	// retries is the retry budget assigned to each subtask.
	retries int
}

// New creates a Decomposer. retries is the per-subtask retry budget.
func New(retries int) *Decomposer {
	return &Decomposer{
		estimator: NewEstimator(),
		retries:   retries,
	}
}

// Decompose selects a template by estimated complexity and instantiates it
// into a subtask graph. The returned graph is verified acyclic via
// topological sort and has a single delivery node every subtask reaches.
func (d *Decomposer) Decompose(requestID, request string) (*graph.SubtaskGraph, error) {
	if strings.TrimSpace(request) == "" {
		return nil, &DecompositionError{Reason: "empty request"}
	}
	if len(request) > MaxRequestLen {
		return nil, &DecompositionError{
			Reason: fmt.Sprintf("request exceeds %d bytes (%d)", MaxRequestLen, len(request)),
		}
	}

	complexity := d.estimator.Estimate(request)
	criticality := d.estimator.Criticality(request)

	steps, ok := templates[complexity]
	if !ok {
		return nil, &DecompositionError{Reason: fmt.Sprintf("no template for complexity %q", complexity)}
	}

	now := time.Now()
	typeToID := make(map[models.TaskType]string, len(steps))
	tasks := make([]*models.Task, 0, len(steps))

	for _, step := range steps {
		task := &models.Task{
			ID:               uuid.New().String(),
			RequestID:        requestID,
			Description:      stepDescription(step.taskType, request),
			Type:             step.taskType,
			Status:           models.TaskStatusPending,
			RetriesRemaining: d.retries,
			Criticality:      criticality,
			CreatedAt:        now,
		}
		// The delivery node inherits full criticality: losing it loses the request.
		if step.taskType == models.TaskTypeDelivery {
			task.Criticality = 1.0
		}
		typeToID[step.taskType] = task.ID
		tasks = append(tasks, task)
	}

	for i, step := range steps {
		for _, depType := range step.dependsOn {
			depID, ok := typeToID[depType]
			if !ok {
				return nil, &DecompositionError{
					Reason: fmt.Sprintf("template references unknown step %q", depType),
				}
			}
			tasks[i].DependsOn = append(tasks[i].DependsOn, depID)
		}
	}

	g := graph.New()
	if err := g.Build(tasks); err != nil {
		return nil, fmt.Errorf("build subtask graph: %w", err)
	}
	// Verify acyclicity through an actual sort before handing the graph out.
	if _, err := g.TopologicalSort(); err != nil {
		return nil, fmt.Errorf("verify subtask graph: %w", err)
	}

	return g, nil
}

// Complexity exposes the estimator's classification for a request.
func (d *Decomposer) Complexity(request string) models.Complexity {
	return d.estimator.Estimate(request)
}

// stepDescription builds a human-readable description for one subtask.
func stepDescription(t models.TaskType, request string) string {
	summary := request
	if len(summary) > 140 {
		summary = summary[:140] + "..."
	}

	switch t {
	case models.TaskTypeAnalysis:
		return "Analyze requirements for: " + summary
	case models.TaskTypeDesign:
		return "Design the approach for: " + summary
	case models.TaskTypeUIGeneration:
		return "Generate the user-facing interface for: " + summary
	case models.TaskTypeCodeGeneration:
		return "Implement: " + summary
	case models.TaskTypeValidationLogic:
		return "Implement validation logic for: " + summary
	case models.TaskTypeTestGeneration:
		return "Generate tests for: " + summary
	case models.TaskTypeIntegration:
		return "Integrate produced components for: " + summary
	case models.TaskTypeReview:
		return "Review produced artifacts for: " + summary
	case models.TaskTypeDelivery:
		return "Assemble final deliverable for: " + summary
	default:
		return summary
	}
}
