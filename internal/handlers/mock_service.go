package handlers

import (
	"context"
	"net/http"

	md "metering_dashboard"
	"metering_dashboard/internal/feed"
	"metering_dashboard/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockTriggers struct {
	trigger    md.Trigger
	list       []md.Trigger
	err        error
	lastParams service.TriggerParams
	lastID     string
	deleted    []string
}

func (m *mockTriggers) Create(ctx context.Context, p service.TriggerParams) (md.Trigger, error) {
	m.lastParams = p
	return m.trigger, m.err
}
func (m *mockTriggers) Update(ctx context.Context, id string, p service.TriggerParams) (md.Trigger, error) {
	m.lastID = id
	m.lastParams = p
	return m.trigger, m.err
}
func (m *mockTriggers) Toggle(ctx context.Context, id string) (md.Trigger, error) {
	m.lastID = id
	return m.trigger, m.err
}
func (m *mockTriggers) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return m.err
}
func (m *mockTriggers) List(ctx context.Context, simulatorID string) ([]md.Trigger, error) {
	m.lastID = simulatorID
	return m.list, m.err
}

type mockSettings struct {
	settings md.Settings
	err      error
	lastIn   md.Settings
}

func (m *mockSettings) Get(ctx context.Context) (md.Settings, error) {
	return m.settings, m.err
}
func (m *mockSettings) Update(ctx context.Context, s md.Settings) (md.Settings, error) {
	m.lastIn = s
	if m.err != nil {
		return md.Settings{}, m.err
	}
	return s, nil
}

type mockHistory struct {
	entries    []md.NotificationHistoryEntry
	err        error
	lastFilter service.HistoryFilter
}

func (m *mockHistory) List(ctx context.Context, f service.HistoryFilter) ([]md.NotificationHistoryEntry, error) {
	m.lastFilter = f
	return m.entries, m.err
}

type mockMonitoring struct {
	block md.Block
	err   error
}

func (m *mockMonitoring) GetBlock(ctx context.Context, simulatorID string) (md.Block, error) {
	return m.block, m.err
}

type mockEmitters struct {
	startErr error
	stopErr  error
	status   []service.EmitterStatus
	started  []string
	stopped  []string
}

func (m *mockEmitters) Start(ctx context.Context, simulatorID string) error {
	m.started = append(m.started, simulatorID)
	return m.startErr
}
func (m *mockEmitters) Stop(ctx context.Context, simulatorID string) error {
	m.stopped = append(m.stopped, simulatorID)
	return m.stopErr
}
func (m *mockEmitters) Status() []service.EmitterStatus { return m.status }
func (m *mockEmitters) StopAll()                        {}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, hub *feed.Hub) *gin.Engine {
	if hub == nil {
		hub = feed.NewHub()
	}
	h := NewHandler(s, hub, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
