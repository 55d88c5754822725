package agent

import (
	"testing"

	"finagent/models"
)

func TestStateMachineFullCycle(t *testing.T) {
	m := newStateMachine()
	order := []models.AgentState{
		models.StateAnalyzing,
		models.StatePlanning,
		models.StateExecuting,
		models.StateMonitoring,
		models.StateLearning,
		models.StateIdle,
	}
	for _, next := range order {
		if err := m.To(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if m.Current() != models.StateIdle {
		t.Errorf("state = %s after a full cycle, want idle", m.Current())
	}
}

func TestStateMachineRejectsIllegalMoves(t *testing.T) {
	tests := []struct {
		name string
		walk []models.AgentState
		bad  models.AgentState
	}{
		{"idle cannot skip to planning", nil, models.StatePlanning},
		{"idle cannot skip to executing", nil, models.StateExecuting},
		{"executing cannot go back to analyzing", []models.AgentState{models.StateAnalyzing, models.StatePlanning, models.StateExecuting}, models.StateAnalyzing},
		{"learning cannot re-enter monitoring", []models.AgentState{models.StateAnalyzing, models.StatePlanning, models.StateExecuting, models.StateMonitoring, models.StateLearning}, models.StateMonitoring},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newStateMachine()
			for _, s := range tt.walk {
				if err := m.To(s); err != nil {
					t.Fatalf("setup transition to %s: %v", s, err)
				}
			}
			before := m.Current()
			if err := m.To(tt.bad); err == nil {
				t.Fatalf("transition %s -> %s should be rejected", before, tt.bad)
			}
			if m.Current() != before {
				t.Errorf("state moved to %s on a rejected transition", m.Current())
			}
		})
	}
}

func TestStateMachineAbortsToIdleFromAnyPhase(t *testing.T) {
	walks := [][]models.AgentState{
		{models.StateAnalyzing},
		{models.StateAnalyzing, models.StatePlanning},
		{models.StateAnalyzing, models.StatePlanning, models.StateExecuting},
		{models.StateAnalyzing, models.StatePlanning, models.StateExecuting, models.StateMonitoring},
	}
	for _, walk := range walks {
		m := newStateMachine()
		for _, s := range walk {
			if err := m.To(s); err != nil {
				t.Fatalf("setup transition to %s: %v", s, err)
			}
		}
		if err := m.To(models.StateIdle); err != nil {
			t.Errorf("abort from %s: %v", walk[len(walk)-1], err)
		}
	}
}

func TestStateMachineForceIdle(t *testing.T) {
	m := newStateMachine()
	if err := m.To(models.StateAnalyzing); err != nil {
		t.Fatal(err)
	}
	m.ForceIdle()
	if m.Current() != models.StateIdle {
		t.Errorf("state = %s after ForceIdle, want idle", m.Current())
	}
	if err := m.To(models.StateAnalyzing); err != nil {
		t.Errorf("machine unusable after ForceIdle: %v", err)
	}
}
