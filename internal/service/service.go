package service

import (
	"context"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/feed"
	"metering_dashboard/internal/logger"
	"metering_dashboard/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Triggers exposes alert-rule CRUD with validation and state purge on delete.
type Triggers interface {
	Create(ctx context.Context, p TriggerParams) (md.Trigger, error)
	Update(ctx context.Context, id string, p TriggerParams) (md.Trigger, error)
	Toggle(ctx context.Context, id string) (md.Trigger, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, simulatorID string) ([]md.Trigger, error)
}

// Settings reads and mutates the global dispatch policy.
type Settings interface {
	Get(ctx context.Context) (md.Settings, error)
	Update(ctx context.Context, s md.Settings) (md.Settings, error)
}

// History exposes the append-only dispatch record with filtering access.
type History interface {
	List(ctx context.Context, f HistoryFilter) ([]md.NotificationHistoryEntry, error)
}

// Monitoring exposes the read-only current-block view per simulator.
type Monitoring interface {
	GetBlock(ctx context.Context, simulatorID string) (md.Block, error)
}

// Emitters controls the synthetic load emitters.
type Emitters interface {
	Start(ctx context.Context, simulatorID string) error
	Stop(ctx context.Context, simulatorID string) error
	Status() []EmitterStatus
	StopAll()
}

// Service aggregates all sub-services behind their interfaces.
type Service struct {
	Triggers
	Settings
	History
	Monitoring
	Emitters
	Authorization
}

// Deps carries the cross-cutting collaborators the services need.
type Deps struct {
	Hub        *feed.Hub
	Messenger  Messenger
	Location   *time.Location
	Log        *logger.Logger
	Tick       time.Duration
	Simulators []SimulatorConfig
	SigningKey string
}

// NewService wires the repository layer into concrete services.
func NewService(repos *repository.Repository, deps Deps) *Service {
	monitor := NewThresholdMonitor(repos.Triggers, repos.EvalState)
	dispatcher := NewAlertDispatcher(repos.Settings, repos.History, repos.EvalState, deps.Messenger, deps.Location, deps.Log)

	return &Service{
		Triggers:   NewTriggerService(repos.Triggers, repos.EvalState),
		Settings:   NewSettingsService(repos.Settings),
		History:    NewHistoryService(repos.History),
		Monitoring: NewMonitoringService(repos.Blocks),
		Emitters: NewEmitterService(
			repos.Blocks, repos.Triggers, deps.Hub, monitor, dispatcher,
			deps.Location, deps.Log, deps.Tick, deps.Simulators,
		),
		Authorization: NewAuthService(repos.Auth, deps.SigningKey),
	}
}
