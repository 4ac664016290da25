package service

import (
	"context"
	"sync"
	"time"

	md "metering_dashboard"
)

// In-test stubs for the repository interfaces, shared by the service tests.

type mockTriggerRepo struct {
	mu       sync.Mutex
	triggers map[string]md.Trigger
	order    []string

	ListActiveFn func(ctx context.Context, simulatorID string) ([]md.Trigger, error)
}

func newMockTriggerRepo(triggers ...md.Trigger) *mockTriggerRepo {
	m := &mockTriggerRepo{triggers: make(map[string]md.Trigger)}
	for _, t := range triggers {
		m.triggers[t.ID] = t
		m.order = append(m.order, t.ID)
	}
	return m
}

func (m *mockTriggerRepo) Create(ctx context.Context, t md.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[t.ID] = t
	m.order = append(m.order, t.ID)
	return nil
}

func (m *mockTriggerRepo) Update(ctx context.Context, t md.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[t.ID] = t
	return nil
}

func (m *mockTriggerRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.triggers, id)
	return nil
}

func (m *mockTriggerRepo) GetByID(ctx context.Context, id string) (*md.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *mockTriggerRepo) List(ctx context.Context, simulatorID string) ([]md.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []md.Trigger
	for _, id := range m.order {
		t, ok := m.triggers[id]
		if !ok {
			continue
		}
		if simulatorID == "" || t.SimulatorID == simulatorID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTriggerRepo) ListActive(ctx context.Context, simulatorID string) ([]md.Trigger, error) {
	if m.ListActiveFn != nil {
		return m.ListActiveFn(ctx, simulatorID)
	}
	all, _ := m.List(ctx, simulatorID)
	var out []md.Trigger
	for _, t := range all {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

type mockSettingsRepo struct {
	mu     sync.Mutex
	stored *md.Settings

	LoadErr error
}

func (m *mockSettingsRepo) Save(ctx context.Context, s md.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = &s
	return nil
}

func (m *mockSettingsRepo) Load(ctx context.Context) (*md.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.stored == nil {
		return nil, nil
	}
	s := *m.stored
	return &s, nil
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	entries []md.NotificationHistoryEntry

	AppendErr error
}

func (m *mockHistoryRepo) Append(ctx context.Context, e md.NotificationHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockHistoryRepo) List(ctx context.Context, from, to time.Time, kind, simulatorID string) ([]md.NotificationHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []md.NotificationHistoryEntry
	for _, e := range m.entries {
		if !from.IsZero() && e.SentAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.SentAt.After(to) {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		if simulatorID != "" && e.SimulatorID != simulatorID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockHistoryRepo) CountForTriggerSince(ctx context.Context, triggerID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.TriggerID == triggerID && !e.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockHistoryRepo) all() []md.NotificationHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]md.NotificationHistoryEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

type mockBlockRepo struct {
	mu     sync.Mutex
	blocks map[string]md.Block

	LoadErr error
	saves   int
}

func newMockBlockRepo() *mockBlockRepo {
	return &mockBlockRepo{blocks: make(map[string]md.Block)}
}

func (m *mockBlockRepo) Save(ctx context.Context, b md.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.SimulatorID] = b
	m.saves++
	return nil
}

func (m *mockBlockRepo) Load(ctx context.Context, simulatorID string) (md.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return md.Block{}, m.LoadErr
	}
	b, ok := m.blocks[simulatorID]
	if !ok {
		return md.Block{SimulatorID: simulatorID}, nil
	}
	return b, nil
}

// mockMessenger records every outbound send and answers with a scripted
// result (success by default).
type mockMessenger struct {
	mu    sync.Mutex
	sends []sentMessage

	SendFn func(ctx context.Context, phoneNumber, message string) md.SendResult
}

type sentMessage struct {
	phone   string
	message string
}

func (m *mockMessenger) Send(ctx context.Context, phoneNumber, message string) md.SendResult {
	m.mu.Lock()
	m.sends = append(m.sends, sentMessage{phone: phoneNumber, message: message})
	m.mu.Unlock()
	if m.SendFn != nil {
		return m.SendFn(ctx, phoneNumber, message)
	}
	return md.SendResult{Success: true}
}

func (m *mockMessenger) sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sends))
	copy(out, m.sends)
	return out
}
