package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyPerformance holds the aggregated metrics for one strategy tag,
// upserted after every trade attributed to that strategy.
type StrategyPerformance struct {
	StrategyID        string          `json:"strategy_id"`
	TotalTrades       int             `json:"total_trades"`
	WinningTrades     int             `json:"winning_trades"`
	LosingTrades      int             `json:"losing_trades"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	TotalPnl          decimal.Decimal `json:"total_pnl"`
	WinRate           decimal.Decimal `json:"win_rate"`
	ProfitFactor      decimal.Decimal `json:"profit_factor"`
	MaxDrawdown       decimal.Decimal `json:"max_drawdown"`
	CurrentDrawdown   decimal.Decimal `json:"current_drawdown"`
	RoiPct            decimal.Decimal `json:"roi_pct"`
	LastUpdated       time.Time       `json:"last_updated"`
}

// PerformanceWeight is consumed by the capital-allocation layer when
// sizing a strategy's next entries. Currently equal to win rate.
func (sp *StrategyPerformance) PerformanceWeight() decimal.Decimal {
	return sp.WinRate
}
