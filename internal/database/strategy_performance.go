package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"paper-ledger/internal/models"
)

const strategyPerformanceColumns = `strategy_id, total_trades, winning_trades, losing_trades,
	       consecutive_losses, total_pnl, win_rate, profit_factor,
	       max_drawdown, current_drawdown, roi_pct, last_updated`

// UpsertStrategyPerformance writes the aggregated metrics for a strategy.
// Called after every trade attributed to the strategy.
func (db *DB) UpsertStrategyPerformance(ctx context.Context, p *models.StrategyPerformance) error {
	query := `
		INSERT INTO strategy_performance (
			strategy_id, total_trades, winning_trades, losing_trades,
			consecutive_losses, total_pnl, win_rate, profit_factor,
			max_drawdown, current_drawdown, roi_pct, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (strategy_id) DO UPDATE SET
			total_trades = EXCLUDED.total_trades,
			winning_trades = EXCLUDED.winning_trades,
			losing_trades = EXCLUDED.losing_trades,
			consecutive_losses = EXCLUDED.consecutive_losses,
			total_pnl = EXCLUDED.total_pnl,
			win_rate = EXCLUDED.win_rate,
			profit_factor = EXCLUDED.profit_factor,
			max_drawdown = EXCLUDED.max_drawdown,
			current_drawdown = EXCLUDED.current_drawdown,
			roi_pct = EXCLUDED.roi_pct,
			last_updated = EXCLUDED.last_updated
	`
	now := time.Now()
	_, err := db.conn.ExecContext(ctx, query,
		p.StrategyID, p.TotalTrades, p.WinningTrades, p.LosingTrades,
		p.ConsecutiveLosses, p.TotalPnl, p.WinRate, p.ProfitFactor,
		p.MaxDrawdown, p.CurrentDrawdown, p.RoiPct, now,
	)
	if err != nil {
		return storeErr("failed to upsert strategy performance", err)
	}
	p.LastUpdated = now
	return nil
}

// GetStrategyPerformance retrieves the metrics for one strategy.
func (db *DB) GetStrategyPerformance(ctx context.Context, strategyID string) (*models.StrategyPerformance, error) {
	query := `
		SELECT ` + strategyPerformanceColumns + `
		FROM strategy_performance
		WHERE strategy_id = $1
	`
	p, err := scanStrategyPerformance(db.conn.QueryRowContext(ctx, query, strategyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("strategy %s: %w", strategyID, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("failed to get strategy performance", err)
	}
	return p, nil
}

// ListStrategyPerformance retrieves all strategies ranked by win rate.
func (db *DB) ListStrategyPerformance(ctx context.Context) ([]*models.StrategyPerformance, error) {
	query := `
		SELECT ` + strategyPerformanceColumns + `
		FROM strategy_performance
		ORDER BY win_rate DESC, strategy_id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
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

func scanStrategyPerformance(row rowScanner) (*models.StrategyPerformance, error) {
	var p models.StrategyPerformance
	err := row.Scan(
		&p.StrategyID, &p.TotalTrades, &p.WinningTrades, &p.LosingTrades,
		&p.ConsecutiveLosses, &p.TotalPnl, &p.WinRate, &p.ProfitFactor,
		&p.MaxDrawdown, &p.CurrentDrawdown, &p.RoiPct, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
