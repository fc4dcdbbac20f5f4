package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"paper-ledger/internal/models"
)

const orderColumns = `id, client_order_id, symbol, side, quantity, price,
	       timestamp, realized_pnl, strategy, reason`

// PlaceOrder fills a paper order: order append, position upsert and cash
// adjustment commit or roll back together. The account row and the
// symbol's position row are locked for the duration of the transaction, so
// concurrent fills against one symbol serialize in the backend rather than
// behind an application mutex.
func (db *DB) PlaceOrder(ctx context.Context, req *OrderRequest) (*models.Order, error) {
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

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("failed to begin order transaction", err)
	}
	defer tx.Rollback()

	// Idempotent intake: a retried submission returns the original fill.
	existing, err := getOrderByClientID(ctx, tx, req.ClientOrderID)
	if err != nil {
		return nil, storeErr("failed to check for duplicate order", err)
	}
	if existing != nil {
		return existing, nil
	}

	var cash decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT cash FROM account WHERE id = 1 FOR UPDATE`).Scan(&cash)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account not initialized: %w", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to lock account", err)
	}

	pos, err := lockPosition(ctx, tx, req.Symbol)
	if err != nil {
		return nil, storeErr("failed to lock position", err)
	}

	now := time.Now()
	notional := req.Quantity.Mul(req.Price)

	switch req.Side {
	case models.SideBuy:
		if pos == nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO positions (symbol, quantity, entry_price, current_price,
					strategy, entry_date, last_updated)
				VALUES ($1, $2, $3, $3, $4, $5, $5)`,
				req.Symbol, req.Quantity, req.Price, nullString(req.Strategy), now)
		} else {
			// Weighted-average cost across the old and new shares.
			newQty := pos.Quantity.Add(req.Quantity)
			newAvg := pos.Quantity.Mul(pos.EntryPrice).Add(notional).Div(newQty)
			_, err = tx.ExecContext(ctx, `
				UPDATE positions
				SET quantity = $2, entry_price = $3, current_price = $4, last_updated = $5
				WHERE symbol = $1`,
				req.Symbol, newQty, newAvg, req.Price, now)
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
			_, err = tx.ExecContext(ctx,
				`DELETE FROM positions WHERE symbol = $1`, req.Symbol)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE positions
				SET quantity = $2, current_price = $3, last_updated = $4
				WHERE symbol = $1`,
				req.Symbol, newQty, req.Price, now)
		}
		if err != nil {
			return nil, storeErr("failed to reduce position", err)
		}
		cash = cash.Add(notional)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE account SET cash = $1, last_updated = $2 WHERE id = 1`, cash, now)
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
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (client_order_id, symbol, side, quantity, price,
			timestamp, realized_pnl, strategy, reason)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
		RETURNING id`,
		order.ClientOrderID, order.Symbol, order.Side, order.Quantity, order.Price,
		order.Timestamp, nullString(order.Strategy), nullString(order.Reason),
	).Scan(&order.ID)
	if err != nil {
		return nil, storeErr("failed to append order", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("failed to commit order", err)
	}
	return order, nil
}

// GetOrders retrieves orders in replay order: ascending timestamp, ties
// broken by ascending id.
func (db *DB) GetOrders(ctx context.Context, f OrderFilter) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE 1=1
	`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Symbol != "" {
		query += " AND symbol = " + arg(f.Symbol)
	}
	if f.Side != "" {
		query += " AND side = " + arg(f.Side)
	}
	if f.Strategy != "" {
		query += " AND strategy = " + arg(f.Strategy)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= " + arg(f.Since)
	}
	query += " ORDER BY timestamp ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
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

// BackfillOrderPnL sets realized_pnl on a historical order. This is the
// only write permitted against an existing order row.
func (db *DB) BackfillOrderPnL(ctx context.Context, orderID int64, pnl decimal.Decimal) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE orders SET realized_pnl = $2 WHERE id = $1`, orderID, pnl)
	if err != nil {
		return storeErr("failed to backfill order pnl", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return nil
}

func lockPosition(ctx context.Context, tx *sql.Tx, symbol string) (*models.Position, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE symbol = $1
		FOR UPDATE`, symbol)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func getOrderByClientID(ctx context.Context, tx *sql.Tx, clientOrderID string) (*models.Order, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE client_order_id = $1`, clientOrderID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var clientOrderID, strategy, reason sql.NullString

	err := row.Scan(
		&o.ID, &clientOrderID, &o.Symbol, &o.Side, &o.Quantity, &o.Price,
		&o.Timestamp, &o.RealizedPnl, &strategy, &reason,
	)
	if err != nil {
		return nil, err
	}

	if clientOrderID.Valid {
		o.ClientOrderID = clientOrderID.String
	}
	if strategy.Valid {
		o.Strategy = strategy.String
	}
	if reason.Valid {
		o.Reason = reason.String
	}
	return &o, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
