package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	md "metering_dashboard"

	"github.com/google/uuid"
)

type TriggerSQLite struct {
	db *sql.DB
}

func NewTriggerSQLite(db *sql.DB) *TriggerSQLite { return &TriggerSQLite{db: db} }

var _ TriggerRepo = (*TriggerSQLite)(nil)

const (
	insertTriggerSQL = `
		INSERT INTO triggers (id, simulator_id, phone_number, threshold_percent, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	updateTriggerSQL = `
		UPDATE triggers
		SET phone_number = ?, threshold_percent = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`

	deleteTriggerSQL  = `DELETE FROM triggers WHERE id = ?`
	selectTriggerSQL  = `SELECT id, simulator_id, phone_number, threshold_percent, is_active, created_at, updated_at FROM triggers WHERE id = ?`
	selectTriggersSQL = `SELECT id, simulator_id, phone_number, threshold_percent, is_active, created_at, updated_at FROM triggers`
)

// Create inserts a new trigger. Empty ID and zero timestamps are defaulted.
func (r *TriggerSQLite) Create(ctx context.Context, t md.Trigger) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	_, err := r.db.ExecContext(ctx, insertTriggerSQL,
		t.ID, t.SimulatorID, t.PhoneNumber, t.ThresholdPercent, t.IsActive,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert trigger %s: %w", t.ID, err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing trigger.
func (r *TriggerSQLite) Update(ctx context.Context, t md.Trigger) error {
	updatedAt := t.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, updateTriggerSQL,
		t.PhoneNumber, t.ThresholdPercent, t.IsActive, updatedAt.UTC(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update trigger %s: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *TriggerSQLite) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteTriggerSQL, id)
	if err != nil {
		return fmt.Errorf("delete trigger %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID fetches one trigger. Returns (nil, nil) when not found.
func (r *TriggerSQLite) GetByID(ctx context.Context, id string) (*md.Trigger, error) {
	row := r.db.QueryRowContext(ctx, selectTriggerSQL, id)
	var t md.Trigger
	if err := scanTrigger(row.Scan, &t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select trigger %s: %w", id, err)
	}
	return &t, nil
}

func (r *TriggerSQLite) List(ctx context.Context, simulatorID string) ([]md.Trigger, error) {
	return r.list(ctx, simulatorID, false)
}

func (r *TriggerSQLite) ListActive(ctx context.Context, simulatorID string) ([]md.Trigger, error) {
	return r.list(ctx, simulatorID, true)
}

func (r *TriggerSQLite) list(ctx context.Context, simulatorID string, activeOnly bool) ([]md.Trigger, error) {
	q := selectTriggersSQL
	var (
		conds []string
		args  []any
	)
	if simulatorID != "" {
		conds = append(conds, "simulator_id = ?")
		args = append(args, simulatorID)
	}
	if activeOnly {
		conds = append(conds, "is_active = 1")
	}
	for i, c := range conds {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	out := make([]md.Trigger, 0, 8)
	for rows.Next() {
		var t md.Trigger
		if err := scanTrigger(rows.Scan, &t); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrigger(scan func(dest ...any) error, t *md.Trigger) error {
	if err := scan(&t.ID, &t.SimulatorID, &t.PhoneNumber, &t.ThresholdPercent, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return nil
}
