package repository

import (
	"sync"
	"time"
)

// evalState is the per-trigger hysteresis/cooldown memory. Absent entries mean
// "never fired"; losing the store just re-arms every trigger.
type evalState struct {
	lastFiredPercent     float64
	hasFired             bool
	lastNotificationTime time.Time
	hasNotified          bool
}

// EvalStateMemory is a mutex-guarded in-process store. The dispatch path and
// the HTTP trigger-delete path touch it from different goroutines.
type EvalStateMemory struct {
	mu     sync.Mutex
	states map[string]*evalState
}

func NewEvalStateMemory() *EvalStateMemory {
	return &EvalStateMemory{states: make(map[string]*evalState)}
}

var _ EvalStateRepo = (*EvalStateMemory)(nil)

func (m *EvalStateMemory) LastFiredPercent(triggerID string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[triggerID]
	if !ok || !st.hasFired {
		return 0, false
	}
	return st.lastFiredPercent, true
}

func (m *EvalStateMemory) SetLastFiredPercent(triggerID string, percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(triggerID)
	st.lastFiredPercent = percent
	st.hasFired = true
}

func (m *EvalStateMemory) ClearLastFiredPercent(triggerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[triggerID]; ok {
		st.hasFired = false
		st.lastFiredPercent = 0
	}
}

func (m *EvalStateMemory) LastNotificationTime(triggerID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[triggerID]
	if !ok || !st.hasNotified {
		return time.Time{}, false
	}
	return st.lastNotificationTime, true
}

func (m *EvalStateMemory) SetLastNotificationTime(triggerID string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(triggerID)
	st.lastNotificationTime = t
	st.hasNotified = true
}

// Purge drops all runtime state for a trigger. Called on trigger delete so no
// orphaned hysteresis or cooldown memory survives the rule.
func (m *EvalStateMemory) Purge(triggerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, triggerID)
}

func (m *EvalStateMemory) ensure(triggerID string) *evalState {
	st, ok := m.states[triggerID]
	if !ok {
		st = &evalState{}
		m.states[triggerID] = st
	}
	return st
}
