package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper-ledger/internal/database"
	"paper-ledger/internal/models"
	"paper-ledger/internal/pnl"
)

// Store is the slice of the ledger store the tracker needs.
type Store interface {
	GetOrders(ctx context.Context, f database.OrderFilter) ([]*models.Order, error)
	UpsertStrategyPerformance(ctx context.Context, p *models.StrategyPerformance) error
	GetStrategyPerformance(ctx context.Context, strategyID string) (*models.StrategyPerformance, error)
	ListStrategyPerformance(ctx context.Context) ([]*models.StrategyPerformance, error)
}

// Tracker recomputes and persists strategy metrics. Callers invoke Update
// after every trade attributed to a strategy.
type Tracker struct {
	store      Store
	thresholds Thresholds
	log        zerolog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(store Store, thresholds Thresholds, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:      store,
		thresholds: thresholds,
		log:        log.With().Str("component", "analytics").Logger(),
	}
}

// Update pulls the strategy's closed trades, recomputes all metrics and
// upserts the strategy_performance row. The returned record carries the
// metrics just written.
func (t *Tracker) Update(ctx context.Context, strategyID string) (*models.StrategyPerformance, error) {
	orders, err := t.store.GetOrders(ctx, database.OrderFilter{Strategy: strategyID})
	if err != nil {
		return nil, fmt.Errorf("update strategy %s: %w", strategyID, err)
	}
	trades, err := t.closedTrades(ctx, orders)
	if err != nil {
		return nil, fmt.Errorf("update strategy %s: %w", strategyID, err)
	}

	perf := Compute(strategyID, trades, t.thresholds.InitialAllocation)
	if err := t.store.UpsertStrategyPerformance(ctx, perf); err != nil {
		return nil, fmt.Errorf("update strategy %s: %w", strategyID, err)
	}

	t.log.Info().
		Str("strategy", strategyID).
		Int("trades", perf.TotalTrades).
		Str("win_rate", perf.WinRate.Round(3).String()).
		Str("total_pnl", perf.TotalPnl.Round(2).String()).
		Msg("strategy performance updated")

	if flagged, reason := t.thresholds.ShouldOptimize(perf); flagged {
		t.log.Warn().
			Str("strategy", strategyID).
			Str("reason", reason).
			Msg("strategy flagged for optimization")
	}
	return perf, nil
}

// closedTrades turns the strategy's sells into a time-ordered trade
// series. Per-sell P&L comes from a FIFO replay of each symbol's full
// order history rather than the stored realized_pnl, which is zero until
// a backfill runs; the replay keeps FIFO the single source of truth for
// realized P&L on the live path too.
func (t *Tracker) closedTrades(ctx context.Context, strategyOrders []*models.Order) ([]TradeResult, error) {
	symbols := make(map[string]bool)
	for _, o := range strategyOrders {
		if o.Side == models.SideSell {
			symbols[o.Symbol] = true
		}
	}

	realized := make(map[int64]decimal.Decimal)
	for sym := range symbols {
		history, err := t.store.GetOrders(ctx, database.OrderFilter{Symbol: sym})
		if err != nil {
			return nil, err
		}
		for id, v := range pnl.Replay(history).RealizedBySell {
			realized[id] = v
		}
	}

	// strategyOrders arrive in replay order, so the series stays
	// time-ordered for the drawdown and streak walks.
	var trades []TradeResult
	for _, o := range strategyOrders {
		if o.Side != models.SideSell {
			continue
		}
		trades = append(trades, TradeResult{Pnl: realized[o.ID], Timestamp: o.Timestamp})
	}
	return trades, nil
}

// ShouldOptimize evaluates the stored metrics for a strategy against the
// configured triggers.
func (t *Tracker) ShouldOptimize(ctx context.Context, strategyID string) (bool, string, error) {
	perf, err := t.store.GetStrategyPerformance(ctx, strategyID)
	if err != nil {
		return false, "", fmt.Errorf("check strategy %s: %w", strategyID, err)
	}
	flagged, reason := t.thresholds.ShouldOptimize(perf)
	return flagged, reason, nil
}

// Leaderboard returns all tracked strategies ranked by win rate.
func (t *Tracker) Leaderboard(ctx context.Context) ([]*models.StrategyPerformance, error) {
	return t.store.ListStrategyPerformance(ctx)
}

// AggregateStats summarizes the whole strategy roster.
type AggregateStats struct {
	TotalStrategies int                         `json:"total_strategies"`
	TotalTrades     int                         `json:"total_trades"`
	TotalPnl        decimal.Decimal             `json:"total_pnl"`
	AvgWinRate      decimal.Decimal             `json:"avg_win_rate"`
	Best            *models.StrategyPerformance `json:"best,omitempty"`
	Worst           *models.StrategyPerformance `json:"worst,omitempty"`
	Timestamp       time.Time                   `json:"timestamp"`
}

// Aggregate computes system-wide statistics across all tracked strategies.
func (t *Tracker) Aggregate(ctx context.Context) (*AggregateStats, error) {
	perfs, err := t.store.ListStrategyPerformance(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate strategies: %w", err)
	}

	stats := &AggregateStats{
		TotalPnl:   decimal.Zero,
		AvgWinRate: decimal.Zero,
		Timestamp:  time.Now(),
	}
	if len(perfs) == 0 {
		return stats, nil
	}

	sumWinRate := decimal.Zero
	for _, p := range perfs {
		stats.TotalStrategies++
		stats.TotalTrades += p.TotalTrades
		stats.TotalPnl = stats.TotalPnl.Add(p.TotalPnl)
		sumWinRate = sumWinRate.Add(p.WinRate)

		if stats.Best == nil || p.WinRate.GreaterThan(stats.Best.WinRate) {
			stats.Best = p
		}
		if stats.Worst == nil || p.WinRate.LessThan(stats.Worst.WinRate) {
			stats.Worst = p
		}
	}
	stats.AvgWinRate = sumWinRate.Div(decimal.NewFromInt(int64(len(perfs))))
	return stats, nil
}
