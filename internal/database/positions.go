package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paper-ledger/internal/models"
)

const positionColumns = `symbol, quantity, entry_price, current_price,
	       stop_loss, profit_target, strategy, classification,
	       entry_date, last_updated`

// GetPositions retrieves all open positions ordered by entry date.
func (db *DB) GetPositions(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		ORDER BY entry_date DESC
	`
	return db.scanPositions(db.conn.QueryContext(ctx, query))
}

// GetPosition retrieves the position for a symbol.
func (db *DB) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE symbol = $1
	`
	p, err := scanPosition(db.conn.QueryRowContext(ctx, query, symbol))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to get position", err)
	}
	return p, nil
}

// GetPositionsWithStopLoss retrieves positions the stop-loss monitor watches.
func (db *DB) GetPositionsWithStopLoss(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE stop_loss IS NOT NULL AND stop_loss > 0
		ORDER BY symbol ASC
	`
	return db.scanPositions(db.conn.QueryContext(ctx, query))
}

// UpdatePositionPrice sets the latest mark price for a symbol.
func (db *DB) UpdatePositionPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	query := `
		UPDATE positions
		SET current_price = $2, last_updated = $3
		WHERE symbol = $1
	`
	result, err := db.conn.ExecContext(ctx, query, symbol, price, time.Now())
	if err != nil {
		return storeErr("failed to update position price", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	return nil
}

// UpdatePositionRisk sets the stop-loss and profit-target levels. A zero
// value clears the level.
func (db *DB) UpdatePositionRisk(ctx context.Context, symbol string, stopLoss, profitTarget decimal.Decimal) error {
	if stopLoss.IsNegative() || profitTarget.IsNegative() {
		return fmt.Errorf("risk levels must not be negative: %w", ErrConstraint)
	}
	query := `
		UPDATE positions
		SET stop_loss = $2, profit_target = $3, last_updated = $4
		WHERE symbol = $1
	`
	result, err := db.conn.ExecContext(ctx, query,
		symbol, nullDecimal(stopLoss), nullDecimal(profitTarget), time.Now())
	if err != nil {
		return storeErr("failed to update position risk", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var stopLoss, profitTarget, strategy, classification sql.NullString

	err := row.Scan(
		&p.Symbol, &p.Quantity, &p.EntryPrice, &p.CurrentPrice,
		&stopLoss, &profitTarget, &strategy, &classification,
		&p.EntryDate, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if stopLoss.Valid {
		p.StopLoss, _ = decimal.NewFromString(stopLoss.String)
	}
	if profitTarget.Valid {
		p.ProfitTarget, _ = decimal.NewFromString(profitTarget.String)
	}
	if strategy.Valid {
		p.Strategy = strategy.String
	}
	if classification.Valid {
		p.Classification = classification.String
	}
	return &p, nil
}

func (db *DB) scanPositions(rows *sql.Rows, err error) ([]*models.Position, error) {
	if err != nil {
		return nil, storeErr("failed to query positions", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// nullDecimal maps a zero decimal to NULL for optional columns.
func nullDecimal(d decimal.Decimal) interface{} {
	if d.IsZero() {
		return nil
	}
	return d
}
