package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	md "metering_dashboard"
)

type SettingsSQLite struct {
	db *sql.DB
}

func NewSettingsSQLite(db *sql.DB) *SettingsSQLite { return &SettingsSQLite{db: db} }

var _ SettingsRepo = (*SettingsSQLite)(nil)

const (
	settingsRowID = 1

	upsertSettingsSQL = `
		INSERT INTO settings (id, cooldown_minutes, max_daily_per_trigger, enabled_globally)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cooldown_minutes=excluded.cooldown_minutes,
			max_daily_per_trigger=excluded.max_daily_per_trigger,
			enabled_globally=excluded.enabled_globally
	`

	selectSettingsSQL = `
		SELECT cooldown_minutes, max_daily_per_trigger, enabled_globally
		FROM settings WHERE id=?
	`
)

// Save upserts the single settings row (id always 1).
func (r *SettingsSQLite) Save(ctx context.Context, s md.Settings) error {
	_, err := r.db.ExecContext(ctx, upsertSettingsSQL,
		settingsRowID, s.CooldownMinutes, s.MaxDailyNotificationsPerTrigger, s.EnabledGlobally,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Load fetches the settings row. Returns (nil, nil) when never saved.
func (r *SettingsSQLite) Load(ctx context.Context) (*md.Settings, error) {
	row := r.db.QueryRowContext(ctx, selectSettingsSQL, settingsRowID)
	var s md.Settings
	if err := row.Scan(&s.CooldownMinutes, &s.MaxDailyNotificationsPerTrigger, &s.EnabledGlobally); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select settings: %w", err)
	}
	return &s, nil
}
