package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"paper-ledger/internal/models"
)

// sqliteSchema mirrors db/migrations for the embedded backend. SQLite is
// the single-process default; the PostgreSQL store is for deployments
// where several processes share one ledger.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS account (
	id INTEGER PRIMARY KEY,
	cash TEXT NOT NULL,
	total_value TEXT NOT NULL,
	last_updated TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	symbol TEXT PRIMARY KEY,
	quantity TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	current_price TEXT NOT NULL,
	stop_loss TEXT,
	profit_target TEXT,
	strategy TEXT,
	classification TEXT,
	entry_date TIMESTAMP NOT NULL,
	last_updated TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_order_id TEXT UNIQUE,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	realized_pnl TEXT NOT NULL DEFAULT '0',
	strategy TEXT,
	reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_orders_symbol_ts ON orders(symbol, timestamp, id);

CREATE TABLE IF NOT EXISTS performance (
	timestamp TIMESTAMP PRIMARY KEY,
	total_value TEXT NOT NULL,
	cash TEXT NOT NULL,
	positions_value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategy_performance (
	strategy_id TEXT PRIMARY KEY,
	total_trades INTEGER NOT NULL,
	winning_trades INTEGER NOT NULL,
	losing_trades INTEGER NOT NULL,
	consecutive_losses INTEGER NOT NULL,
	total_pnl TEXT NOT NULL,
	win_rate TEXT NOT NULL,
	profit_factor TEXT NOT NULL,
	max_drawdown TEXT NOT NULL,
	current_drawdown TEXT NOT NULL,
	roi_pct TEXT NOT NULL,
	last_updated TIMESTAMP NOT NULL
);
`

// SQLiteStore is the embedded file-backed Store.
type SQLiteStore struct {
	conn *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (creating if necessary) the ledger database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Writes serialize on the file lock; one connection avoids
	// SQLITE_BUSY churn between the loops.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to init sqlite schema: %w", err)
	}
	return &SQLiteStore{conn: conn}, nil
}

// Ping reports whether the database file is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return storeErr("failed to ping database", s.conn.PingContext(ctx))
}

// Close closes the database file.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// GetAccount retrieves the singleton account row.
func (s *SQLiteStore) GetAccount(ctx context.Context) (*models.Account, error) {
	var a models.Account
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, cash, total_value, last_updated FROM account WHERE id = 1`,
	).Scan(&a.ID, &a.Cash, &a.TotalValue, &a.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, storeErr("failed to get account", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to get account", err)
	}
	return &a, nil
}

// InitAccount seeds the account row with starting cash if absent.
func (s *SQLiteStore) InitAccount(ctx context.Context, cash decimal.Decimal) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO account (id, cash, total_value, last_updated)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		cash, cash, time.Now())
	return storeErr("failed to init account", err)
}

// ReconcileTotalValue recomputes total_value inside one transaction; the
// single writer lock gives the same consistency the PostgreSQL store gets
// from its snapshot.
func (s *SQLiteStore) ReconcileTotalValue(ctx context.Context) (*ReconcileResult, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("failed to begin reconcile transaction", err)
	}
	defer tx.Rollback()

	var r ReconcileResult
	err = tx.QueryRowContext(ctx,
		`SELECT cash, total_value FROM account WHERE id = 1`,
	).Scan(&r.Cash, &r.PreviousTotal)
	if err == sql.ErrNoRows {
		return nil, storeErr("failed to reconcile account", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to read account", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT quantity, current_price FROM positions`)
	if err != nil {
		return nil, storeErr("failed to read positions", err)
	}
	positionsValue := decimal.Zero
	for rows.Next() {
		var qty, price decimal.Decimal
		if err := rows.Scan(&qty, &price); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan position value: %w", err)
		}
		positionsValue = positionsValue.Add(qty.Mul(price))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to read positions", err)
	}

	now := time.Now()
	r.PositionsValue = positionsValue
	r.Total = r.Cash.Add(positionsValue)
	r.CheckedAt = now

	_, err = tx.ExecContext(ctx,
		`UPDATE account SET total_value = ?, last_updated = ? WHERE id = 1`,
		r.Total, now)
	if err != nil {
		return nil, storeErr("failed to write total value", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("failed to commit reconcile", err)
	}
	return &r, nil
}

// GetPositions retrieves all open positions ordered by entry date.
func (s *SQLiteStore) GetPositions(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		ORDER BY entry_date DESC`
	return scanSQLitePositions(s.conn.QueryContext(ctx, query))
}

// GetPosition retrieves the position for a symbol.
func (s *SQLiteStore) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE symbol = ?`
	p, err := scanPosition(s.conn.QueryRowContext(ctx, query, symbol))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to get position", err)
	}
	return p, nil
}

// GetPositionsWithStopLoss retrieves positions the stop-loss monitor watches.
func (s *SQLiteStore) GetPositionsWithStopLoss(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE stop_loss IS NOT NULL AND CAST(stop_loss AS REAL) > 0
		ORDER BY symbol ASC`
	return scanSQLitePositions(s.conn.QueryContext(ctx, query))
}

// UpdatePositionPrice sets the latest mark price for a symbol.
func (s *SQLiteStore) UpdatePositionPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE positions SET current_price = ?, last_updated = ? WHERE symbol = ?`,
		price, time.Now(), symbol)
	if err != nil {
		return storeErr("failed to update position price", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	return nil
}

// UpdatePositionRisk sets the stop-loss and profit-target levels.
func (s *SQLiteStore) UpdatePositionRisk(ctx context.Context, symbol string, stopLoss, profitTarget decimal.Decimal) error {
	if stopLoss.IsNegative() || profitTarget.IsNegative() {
		return fmt.Errorf("risk levels must not be negative: %w", ErrConstraint)
	}
	result, err := s.conn.ExecContext(ctx,
		`UPDATE positions SET stop_loss = ?, profit_target = ?, last_updated = ? WHERE symbol = ?`,
		nullDecimal(stopLoss), nullDecimal(profitTarget), time.Now(), symbol)
	if err != nil {
		return storeErr("failed to update position risk", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	return nil
}

func scanSQLitePositions(rows *sql.Rows, err error) ([]*models.Position, error) {
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
