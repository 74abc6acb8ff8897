package models

import "testing"

func TestRequestStatusValid(t *testing.T) {
	valid := []RequestStatus{
		RequestStatusReceived, RequestStatusDecomposed, RequestStatusExecuting,
		RequestStatusValidating, RequestStatusCorrecting, RequestStatusEscalated,
		RequestStatusCompleted, RequestStatusFailed, RequestStatusCancelled,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if RequestStatus("done").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	terminal := []RequestStatus{RequestStatusCompleted, RequestStatusFailed, RequestStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}

	nonTerminal := []RequestStatus{
		RequestStatusReceived, RequestStatusDecomposed, RequestStatusExecuting,
		RequestStatusValidating, RequestStatusCorrecting, RequestStatusEscalated,
	}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}

func TestAgentCanHandle(t *testing.T) {
	agent := &Agent{
		ID:           "a1",
		Class:        ClassSpecialist,
		Capabilities: []TaskType{TaskTypeUIGeneration, TaskTypeTestGeneration},
	}

	if !agent.CanHandle(TaskTypeUIGeneration) {
		t.Error("expected agent to handle ui_generation")
	}
	if agent.CanHandle(TaskTypeDelivery) {
		t.Error("did not expect agent to handle delivery")
	}
}

func TestStrategyAndComplexityValid(t *testing.T) {
	for _, s := range []CoordinationStrategy{
		StrategyParallel, StrategySequential, StrategyConsensus,
		StrategyHierarchical, StrategyAdaptive,
	} {
		if !s.Valid() {
			t.Errorf("expected strategy %q to be valid", s)
		}
	}
	if CoordinationStrategy("random").Valid() {
		t.Error("expected unknown strategy to be invalid")
	}

	for _, c := range []Complexity{
		ComplexitySimple, ComplexityMedium, ComplexityComplex, ComplexityExpert,
	} {
		if !c.Valid() {
			t.Errorf("expected complexity %q to be valid", c)
		}
	}
	if Complexity("huge").Valid() {
		t.Error("expected unknown complexity to be invalid")
	}
}
