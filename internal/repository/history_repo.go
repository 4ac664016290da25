package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	md "metering_dashboard"

	"github.com/google/uuid"
)

type HistorySQLite struct {
	db *sql.DB
}

func NewHistorySQLite(db *sql.DB) *HistorySQLite { return &HistorySQLite{db: db} }

var _ HistoryRepo = (*HistorySQLite)(nil)

const (
	insertHistorySQL = `
		INSERT INTO notification_history
			(id, trigger_id, simulator_id, phone_number, threshold_percent, actual_percent, sent_at, success, error_message, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectHistorySQL = `
		SELECT id, trigger_id, simulator_id, phone_number, threshold_percent, actual_percent, sent_at, success, error_message, kind
		FROM notification_history
	`

	countHistorySQL = `
		SELECT COUNT(*) FROM notification_history
		WHERE trigger_id = ? AND sent_at >= ?
	`
)

// Append inserts one attempt record. Empty ID and zero SentAt are defaulted.
func (r *HistorySQLite) Append(ctx context.Context, e md.NotificationHistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now().UTC()
	} else {
		e.SentAt = e.SentAt.UTC()
	}

	var triggerID, errMsg sql.NullString
	if e.TriggerID != "" {
		triggerID = sql.NullString{String: e.TriggerID, Valid: true}
	}
	if e.ErrorMessage != "" {
		errMsg = sql.NullString{String: e.ErrorMessage, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, insertHistorySQL,
		e.ID, triggerID, e.SimulatorID, e.PhoneNumber,
		e.ThresholdPercent, e.ActualPercent, e.SentAt, e.Success, errMsg,
		strings.ToLower(strings.TrimSpace(e.Kind)),
	)
	if err != nil {
		return fmt.Errorf("insert history entry %s: %w", e.ID, err)
	}
	return nil
}

// List returns entries filtered by [from, to] inclusive, kind, and simulator,
// ordered newest first.
func (r *HistorySQLite) List(ctx context.Context, from, to time.Time, kind, simulatorID string) ([]md.NotificationHistoryEntry, error) {
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		conds = append(conds, "sent_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "sent_at <= ?")
		args = append(args, to.UTC())
	}
	if kind = strings.ToLower(strings.TrimSpace(kind)); kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, kind)
	}
	if simulatorID != "" {
		conds = append(conds, "simulator_id = ?")
		args = append(args, simulatorID)
	}

	q := selectHistorySQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY sent_at DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]md.NotificationHistoryEntry, 0, 32)
	for rows.Next() {
		var (
			e         md.NotificationHistoryEntry
			triggerID sql.NullString
			errMsg    sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &triggerID, &e.SimulatorID, &e.PhoneNumber,
			&e.ThresholdPercent, &e.ActualPercent, &e.SentAt, &e.Success, &errMsg, &e.Kind,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.TriggerID = triggerID.String
		e.ErrorMessage = errMsg.String
		e.SentAt = e.SentAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountForTriggerSince counts attempts (any outcome) for one trigger at or
// after the given instant. Used for the daily dispatch cap.
func (r *HistorySQLite) CountForTriggerSince(ctx context.Context, triggerID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countHistorySQL, triggerID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count history for trigger %s: %w", triggerID, err)
	}
	return n, nil
}
