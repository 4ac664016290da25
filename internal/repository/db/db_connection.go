package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// InitDB opens/creates the SQLite file and ensures all tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// SQLite tolerates a single writer best.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const schemaTriggers = `
CREATE TABLE IF NOT EXISTS triggers (
    id TEXT PRIMARY KEY,
    simulator_id TEXT NOT NULL,
    phone_number TEXT NOT NULL,
    threshold_percent REAL NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaSettings = `
CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    cooldown_minutes INTEGER NOT NULL,
    max_daily_per_trigger INTEGER NOT NULL,
    enabled_globally BOOLEAN NOT NULL
);
`

const schemaNotificationHistory = `
CREATE TABLE IF NOT EXISTS notification_history (
    id TEXT PRIMARY KEY,
    trigger_id TEXT,
    simulator_id TEXT NOT NULL,
    phone_number TEXT NOT NULL,
    threshold_percent REAL,
    actual_percent REAL,
    sent_at TIMESTAMP NOT NULL,
    success BOOLEAN NOT NULL,
    error_message TEXT,
    kind TEXT NOT NULL
);
`

const schemaBlockState = `
CREATE TABLE IF NOT EXISTS block_state (
    simulator_id TEXT PRIMARY KEY,
    window_start TIMESTAMP NOT NULL,
    window_end TIMESTAMP NOT NULL,
    target_kwh REAL NOT NULL,
    accumulated_kwh REAL NOT NULL,
    percent_of_target REAL NOT NULL,
    bin_seconds INTEGER NOT NULL,
    bins TEXT
);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaTriggers,
		schemaSettings,
		schemaNotificationHistory,
		schemaBlockState,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
