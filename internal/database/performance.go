package database

import (
	"context"
	"fmt"
	"time"

	"paper-ledger/internal/models"
)

// RecordPerformance appends one account-value snapshot. Snapshots landing
// on an identical timestamp overwrite rather than error, which keeps the
// scheduled recorder idempotent across restarts.
func (db *DB) RecordPerformance(ctx context.Context, snap *models.PerformanceSnapshot) error {
	query := `
		INSERT INTO performance (timestamp, total_value, cash, positions_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (timestamp) DO UPDATE SET
			total_value = EXCLUDED.total_value,
			cash = EXCLUDED.cash,
			positions_value = EXCLUDED.positions_value
	`
	_, err := db.conn.ExecContext(ctx, query,
		snap.Timestamp, snap.TotalValue, snap.Cash, snap.PositionsValue)
	return storeErr("failed to record performance", err)
}

// GetPerformanceHistory retrieves snapshots at or after since, oldest first.
func (db *DB) GetPerformanceHistory(ctx context.Context, since time.Time) ([]*models.PerformanceSnapshot, error) {
	query := `
		SELECT timestamp, total_value, cash, positions_value
		FROM performance
		WHERE timestamp >= $1
		ORDER BY timestamp ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, since)
	if err != nil {
		return nil, storeErr("failed to query performance history", err)
	}
	defer rows.Close()

	var snaps []*models.PerformanceSnapshot
	for rows.Next() {
		var s models.PerformanceSnapshot
		if err := rows.Scan(&s.Timestamp, &s.TotalValue, &s.Cash, &s.PositionsValue); err != nil {
			return nil, fmt.Errorf("failed to scan performance snapshot: %w", err)
		}
		snaps = append(snaps, &s)
	}
	return snaps, rows.Err()
}

// PrunePerformance removes snapshots older than the retention cutoff and
// returns the number of rows deleted.
func (db *DB) PrunePerformance(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM performance WHERE timestamp < $1`, olderThan)
	if err != nil {
		return 0, storeErr("failed to prune performance history", err)
	}
	return result.RowsAffected()
}
