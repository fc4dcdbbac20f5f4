package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"paper-ledger/internal/models"
)

// PlaceOrder fills a paper order atomically. SQLite allows one writer at a
// time, so the transaction itself serializes concurrent fills.
func (s *SQLiteStore) PlaceOrder(ctx context.Context, req *OrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = ulid.Make().String()
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("failed to begin order transaction", err)
	}
	defer tx.Rollback()

	existing, err := s.getOrderByClientID(ctx, tx, req.ClientOrderID)
	if err != nil {
		return nil, storeErr("failed to check for duplicate order", err)
	}
	if existing != nil {
		return existing, nil
	}

	var cash decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT cash FROM account WHERE id = 1`).Scan(&cash)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account not initialized: %w", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to read account", err)
	}

	var pos *models.Position
	row := tx.QueryRowContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE symbol = ?`, req.Symbol)
	pos, err = scanPosition(row)
	if err == sql.ErrNoRows {
		pos, err = nil, nil
	}
	if err != nil {
		return nil, storeErr("failed to read position", err)
	}

	now := time.Now()
	notional := req.Quantity.Mul(req.Price)

	switch req.Side {
	case models.SideBuy:
		if pos == nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO positions (symbol, quantity, entry_price, current_price,
					strategy, entry_date, last_updated)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				req.Symbol, req.Quantity, req.Price, req.Price,
				nullString(req.Strategy), now, now)
		} else {
			newQty := pos.Quantity.Add(req.Quantity)
			newAvg := pos.Quantity.Mul(pos.EntryPrice).Add(notional).Div(newQty)
			_, err = tx.ExecContext(ctx, `
				UPDATE positions
				SET quantity = ?, entry_price = ?, current_price = ?, last_updated = ?
				WHERE symbol = ?`,
				newQty, newAvg, req.Price, now, req.Symbol)
		}
		if err != nil {
			return nil, storeErr("failed to upsert position", err)
		}
		cash = cash.Sub(notional)

	case models.SideSell:
		if pos == nil {
			return nil, fmt.Errorf("sell %s: no open position: %w", req.Symbol, ErrConstraint)
		}
		newQty := pos.Quantity.Sub(req.Quantity)
		if newQty.IsNegative() {
			return nil, fmt.Errorf("sell %s: quantity %s exceeds position %s: %w",
				req.Symbol, req.Quantity, pos.Quantity, ErrConstraint)
		}
		if newQty.IsZero() {
			_, err = tx.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, req.Symbol)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE positions
				SET quantity = ?, current_price = ?, last_updated = ?
				WHERE symbol = ?`,
				newQty, req.Price, now, req.Symbol)
		}
		if err != nil {
			return nil, storeErr("failed to reduce position", err)
		}
		cash = cash.Add(notional)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE account SET cash = ?, last_updated = ? WHERE id = 1`, cash, now)
	if err != nil {
		return nil, storeErr("failed to update account cash", err)
	}

	order := &models.Order{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Price:         req.Price,
		Timestamp:     ts,
		RealizedPnl:   decimal.Zero,
		Strategy:      req.Strategy,
		Reason:        req.Reason,
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (client_order_id, symbol, side, quantity, price,
			timestamp, realized_pnl, strategy, reason)
		VALUES (?, ?, ?, ?, ?, ?, '0', ?, ?)`,
		order.ClientOrderID, order.Symbol, order.Side, order.Quantity, order.Price,
		order.Timestamp, nullString(order.Strategy), nullString(order.Reason))
	if err != nil {
		return nil, storeErr("failed to append order", err)
	}
	order.ID, err = result.LastInsertId()
	if err != nil {
		return nil, storeErr("failed to read order id", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("failed to commit order", err)
	}
	return order, nil
}

// GetOrders retrieves orders in replay order (ascending timestamp, then id).
func (s *SQLiteStore) GetOrders(ctx context.Context, f OrderFilter) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE 1=1`
	var args []interface{}
	if f.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, f.Symbol)
	}
	if f.Side != "" {
		query += " AND side = ?"
		args = append(args, f.Side)
	}
	if f.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, f.Strategy)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since)
	}
	query += " ORDER BY timestamp ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("failed to query orders", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// BackfillOrderPnL sets realized_pnl on a historical order.
func (s *SQLiteStore) BackfillOrderPnL(ctx context.Context, orderID int64, pnl decimal.Decimal) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE orders SET realized_pnl = ? WHERE id = ?`, pnl, orderID)
	if err != nil {
		return storeErr("failed to backfill order pnl", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) getOrderByClientID(ctx context.Context, tx *sql.Tx, clientOrderID string) (*models.Order, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE client_order_id = ?`, clientOrderID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// RecordPerformance appends one account-value snapshot.
func (s *SQLiteStore) RecordPerformance(ctx context.Context, snap *models.PerformanceSnapshot) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO performance (timestamp, total_value, cash, positions_value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (timestamp) DO UPDATE SET
			total_value = excluded.total_value,
			cash = excluded.cash,
			positions_value = excluded.positions_value`,
		snap.Timestamp, snap.TotalValue, snap.Cash, snap.PositionsValue)
	return storeErr("failed to record performance", err)
}

// GetPerformanceHistory retrieves snapshots at or after since, oldest first.
func (s *SQLiteStore) GetPerformanceHistory(ctx context.Context, since time.Time) ([]*models.PerformanceSnapshot, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT timestamp, total_value, cash, positions_value
		FROM performance
		WHERE timestamp >= ?
		ORDER BY timestamp ASC`, since)
	if err != nil {
		return nil, storeErr("failed to query performance history", err)
	}
	defer rows.Close()

	var snaps []*models.PerformanceSnapshot
	for rows.Next() {
		var snap models.PerformanceSnapshot
		if err := rows.Scan(&snap.Timestamp, &snap.TotalValue, &snap.Cash, &snap.PositionsValue); err != nil {
			return nil, fmt.Errorf("failed to scan performance snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

// PrunePerformance removes snapshots older than the retention cutoff.
func (s *SQLiteStore) PrunePerformance(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM performance WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, storeErr("failed to prune performance history", err)
	}
	return result.RowsAffected()
}

// UpsertStrategyPerformance writes the aggregated metrics for a strategy.
func (s *SQLiteStore) UpsertStrategyPerformance(ctx context.Context, p *models.StrategyPerformance) error {
	now := time.Now()
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO strategy_performance (
			strategy_id, total_trades, winning_trades, losing_trades,
			consecutive_losses, total_pnl, win_rate, profit_factor,
			max_drawdown, current_drawdown, roi_pct, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (strategy_id) DO UPDATE SET
			total_trades = excluded.total_trades,
			winning_trades = excluded.winning_trades,
			losing_trades = excluded.losing_trades,
			consecutive_losses = excluded.consecutive_losses,
			total_pnl = excluded.total_pnl,
			win_rate = excluded.win_rate,
			profit_factor = excluded.profit_factor,
			max_drawdown = excluded.max_drawdown,
			current_drawdown = excluded.current_drawdown,
			roi_pct = excluded.roi_pct,
			last_updated = excluded.last_updated`,
		p.StrategyID, p.TotalTrades, p.WinningTrades, p.LosingTrades,
		p.ConsecutiveLosses, p.TotalPnl, p.WinRate, p.ProfitFactor,
		p.MaxDrawdown, p.CurrentDrawdown, p.RoiPct, now)
	if err != nil {
		return storeErr("failed to upsert strategy performance", err)
	}
	p.LastUpdated = now
	return nil
}

// GetStrategyPerformance retrieves the metrics for one strategy.
func (s *SQLiteStore) GetStrategyPerformance(ctx context.Context, strategyID string) (*models.StrategyPerformance, error) {
	query := `
		SELECT ` + strategyPerformanceColumns + `
		FROM strategy_performance
		WHERE strategy_id = ?`
	p, err := scanStrategyPerformance(s.conn.QueryRowContext(ctx, query, strategyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("strategy %s: %w", strategyID, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to get strategy performance", err)
	}
	return p, nil
}

// ListStrategyPerformance retrieves all strategies ranked by win rate.
func (s *SQLiteStore) ListStrategyPerformance(ctx context.Context) ([]*models.StrategyPerformance, error) {
	query := `
		SELECT ` + strategyPerformanceColumns + `
		FROM strategy_performance
		ORDER BY CAST(win_rate AS REAL) DESC, strategy_id ASC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("failed to query strategy performance", err)
	}
	defer rows.Close()

	var perfs []*models.StrategyPerformance
	for rows.Next() {
		p, err := scanStrategyPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy performance: %w", err)
		}
		perfs = append(perfs, p)
	}
	return perfs, rows.Err()
}
