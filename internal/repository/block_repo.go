package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	md "metering_dashboard"
)

type BlockSQLite struct {
	db *sql.DB
}

func NewBlockSQLite(db *sql.DB) *BlockSQLite { return &BlockSQLite{db: db} }

var _ BlockRepo = (*BlockSQLite)(nil)

const (
	upsertBlockSQL = `
		INSERT INTO block_state (simulator_id, window_start, window_end, target_kwh, accumulated_kwh, percent_of_target, bin_seconds, bins)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(simulator_id) DO UPDATE SET
			window_start=excluded.window_start,
			window_end=excluded.window_end,
			target_kwh=excluded.target_kwh,
			accumulated_kwh=excluded.accumulated_kwh,
			percent_of_target=excluded.percent_of_target,
			bin_seconds=excluded.bin_seconds,
			bins=excluded.bins
	`

	selectBlockSQL = `
		SELECT simulator_id, window_start, window_end, target_kwh, accumulated_kwh, percent_of_target, bin_seconds, bins
		FROM block_state WHERE simulator_id=?
	`
)

func marshalBins(bins []float64) (string, error) {
	b, err := json.Marshal(bins)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalBins(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	var bins []float64
	if err := json.Unmarshal([]byte(s), &bins); err != nil {
		return nil, err
	}
	return bins, nil
}

// Save upserts the current window snapshot for one simulator.
func (r *BlockSQLite) Save(ctx context.Context, b md.Block) error {
	binsJSON, err := marshalBins(b.Bins)
	if err != nil {
		return fmt.Errorf("marshal bins for %s: %w", b.SimulatorID, err)
	}
	_, err = r.db.ExecContext(ctx, upsertBlockSQL,
		b.SimulatorID,
		b.WindowStart.UTC(),
		b.WindowEnd.UTC(),
		b.TargetEnergyKWh,
		b.AccumulatedKWh,
		b.PercentOfTarget,
		b.BinSeconds,
		binsJSON,
	)
	if err != nil {
		return fmt.Errorf("save block for %s: %w", b.SimulatorID, err)
	}
	return nil
}

// Load fetches the snapshot for a simulator. No row yields a zero Block, not
// an error: absence of data is a valid server-side answer.
func (r *BlockSQLite) Load(ctx context.Context, simulatorID string) (md.Block, error) {
	row := r.db.QueryRowContext(ctx, selectBlockSQL, simulatorID)

	var (
		b        md.Block
		binsJSON string
	)
	if err := row.Scan(
		&b.SimulatorID,
		&b.WindowStart,
		&b.WindowEnd,
		&b.TargetEnergyKWh,
		&b.AccumulatedKWh,
		&b.PercentOfTarget,
		&b.BinSeconds,
		&binsJSON,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return md.Block{SimulatorID: simulatorID}, nil
		}
		return md.Block{}, fmt.Errorf("load block for %s: %w", simulatorID, err)
	}

	bins, err := unmarshalBins(binsJSON)
	if err != nil {
		return md.Block{}, fmt.Errorf("unmarshal bins for %s: %w", simulatorID, err)
	}
	b.Bins = bins
	b.WindowStart = b.WindowStart.UTC()
	b.WindowEnd = b.WindowEnd.UTC()
	return b, nil
}
