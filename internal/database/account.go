package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"paper-ledger/internal/models"
)

// GetAccount retrieves the singleton account row.
func (db *DB) GetAccount(ctx context.Context) (*models.Account, error) {
	query := `
		SELECT id, cash, total_value, last_updated
		FROM account
		WHERE id = 1
	`
	var a models.Account
	err := db.conn.QueryRowContext(ctx, query).Scan(&a.ID, &a.Cash, &a.TotalValue, &a.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, storeErr("failed to get account", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to get account", err)
	}
	return &a, nil
}

// InitAccount seeds the account row with starting cash. It is a no-op when
// the row already exists.
func (db *DB) InitAccount(ctx context.Context, cash decimal.Decimal) error {
	query := `
		INSERT INTO account (id, cash, total_value, last_updated)
		VALUES (1, $1, $1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := db.conn.ExecContext(ctx, query, cash, time.Now())
	return storeErr("failed to init account", err)
}

// ReconcileTotalValue overwrites account.total_value with
// cash + sum(quantity * current_price) in a single statement, so the
// read-compute-write happens over one consistent snapshot. A concurrent
// order landing after this statement is caught next cycle; it is never
// double-counted.
func (db *DB) ReconcileTotalValue(ctx context.Context) (*ReconcileResult, error) {
	// RETURNING only sees the post-update row, so the previous total is
	// captured in a CTE evaluated before the write.
	query := `
		WITH account_prev AS (
			SELECT total_value FROM account WHERE id = 1
		)
		UPDATE account
		SET total_value = cash + COALESCE(
				(SELECT SUM(quantity * current_price) FROM positions), 0),
		    last_updated = $1
		WHERE id = 1
		RETURNING cash,
		          total_value - cash,
		          total_value,
		          (SELECT total_value FROM account_prev)
	`
	now := time.Now()
	var r ReconcileResult
	err := db.conn.QueryRowContext(ctx, query, now).Scan(
		&r.Cash, &r.PositionsValue, &r.Total, &r.PreviousTotal,
	)
	if err == sql.ErrNoRows {
		return nil, storeErr("failed to reconcile account", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to reconcile account", err)
	}
	r.CheckedAt = now
	return &r, nil
}
