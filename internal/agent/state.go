package agent

import (
	"fmt"
	"sync"

	"finagent/models"
)

// transitions lists the legal successor states. Every non-idle state
// may abort back to Idle; forward edges follow the cycle order.
var transitions = map[models.AgentState][]models.AgentState{
	models.StateIdle:       {models.StateAnalyzing},
	models.StateAnalyzing:  {models.StatePlanning, models.StateIdle},
	models.StatePlanning:   {models.StateExecuting, models.StateIdle},
	models.StateExecuting:  {models.StateMonitoring, models.StateIdle},
	models.StateMonitoring: {models.StateLearning, models.StateIdle},
	models.StateLearning:   {models.StateIdle},
}

// stateMachine guards the agent lifecycle state. All moves go through
// To, which rejects anything not in the transition table.
type stateMachine struct {
	mu      sync.RWMutex
	current models.AgentState
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: models.StateIdle}
}

// Current returns the state as seen by concurrent readers.
func (m *stateMachine) Current() models.AgentState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// To moves to next if the transition table allows it.
func (m *stateMachine) To(next models.AgentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			return nil
		}
	}
	return fmt.Errorf("illegal state transition %s -> %s", m.current, next)
}

// ForceIdle drops back to Idle unconditionally. Used by the fatal-error
// path after a cycle is abandoned.
func (m *stateMachine) ForceIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = models.StateIdle
}
