package repository

import (
	"context"
	"database/sql"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/repository/db"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*md.User, error)
}

// TriggerRepo persists alert rules. simulatorID == "" lists across simulators.
type TriggerRepo interface {
	Create(ctx context.Context, t md.Trigger) error
	Update(ctx context.Context, t md.Trigger) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*md.Trigger, error)
	List(ctx context.Context, simulatorID string) ([]md.Trigger, error)
	ListActive(ctx context.Context, simulatorID string) ([]md.Trigger, error)
}

// SettingsRepo stores the single global dispatch policy row.
// Load returns (nil, nil) when no row has been written yet.
type SettingsRepo interface {
	Save(ctx context.Context, s md.Settings) error
	Load(ctx context.Context) (*md.Settings, error)
}

// HistoryRepo is append-only; entries are never updated or deleted.
type HistoryRepo interface {
	Append(ctx context.Context, e md.NotificationHistoryEntry) error
	List(ctx context.Context, from, to time.Time, kind, simulatorID string) ([]md.NotificationHistoryEntry, error)
	CountForTriggerSince(ctx context.Context, triggerID string, since time.Time) (int, error)
}

// BlockRepo keeps the current accounting window snapshot per simulator.
// Load returns a zero-valued Block (not an error) when none exists.
type BlockRepo interface {
	Save(ctx context.Context, b md.Block) error
	Load(ctx context.Context, simulatorID string) (md.Block, error)
}

// EvalStateRepo is the transient hysteresis/cooldown memory, keyed by trigger
// id. Process-local; losing it just means "never fired".
type EvalStateRepo interface {
	LastFiredPercent(triggerID string) (float64, bool)
	SetLastFiredPercent(triggerID string, percent float64)
	ClearLastFiredPercent(triggerID string)
	LastNotificationTime(triggerID string) (time.Time, bool)
	SetLastNotificationTime(triggerID string, t time.Time)
	Purge(triggerID string)
}

type Repository struct {
	Triggers  TriggerRepo
	Settings  SettingsRepo
	History   HistoryRepo
	Blocks    BlockRepo
	EvalState EvalStateRepo
	Auth      Authorization
}

func NewRepository(sqlDB *sql.DB) *Repository {
	return &Repository{
		Triggers:  NewTriggerSQLite(sqlDB),
		Settings:  NewSettingsSQLite(sqlDB),
		History:   NewHistorySQLite(sqlDB),
		Blocks:    NewBlockSQLite(sqlDB),
		EvalState: NewEvalStateMemory(),
		Auth:      NewUserRepository(sqlDB),
	}
}

// InitDB re-exports the sqlite bootstrap so callers wire one package.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}
