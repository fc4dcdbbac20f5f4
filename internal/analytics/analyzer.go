// Package analytics aggregates a strategy's closed trades into the
// performance metrics that drive optimization decisions and
// performance-weighted capital allocation.
package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paper-ledger/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Thresholds configures the optimization-trigger predicate. These are
// configuration values, not constants; Load wires them from the
// environment or config file.
type Thresholds struct {
	// ConsecutiveLosses flags a strategy after this many trailing losses.
	ConsecutiveLosses int `yaml:"consecutive_losses"`
	// MinTrades is the sample size required before the win-rate and
	// negative-P&L triggers apply.
	MinTrades int `yaml:"min_trades"`
	// MinWinRate is the floor below which a sampled strategy is flagged.
	MinWinRate decimal.Decimal `yaml:"min_win_rate"`
	// MaxCurrentDrawdown flags a strategy whose current drawdown exceeds it.
	MaxCurrentDrawdown decimal.Decimal `yaml:"max_current_drawdown"`
	// InitialAllocation is the capital base used for ROI.
	InitialAllocation decimal.Decimal `yaml:"initial_allocation"`
}

// DefaultThresholds returns the stock trigger configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ConsecutiveLosses:  5,
		MinTrades:          20,
		MinWinRate:         decimal.NewFromFloat(0.40),
		MaxCurrentDrawdown: decimal.NewFromFloat(0.15),
		InitialAllocation:  decimal.NewFromInt(10000),
	}
}

// TradeResult is one closed trade attributed to a strategy.
type TradeResult struct {
	Pnl       decimal.Decimal
	Timestamp time.Time
}

// Compute aggregates a time-ordered closed-trade series into the stored
// metric set. A trade with pnl == 0 counts as non-winning.
func Compute(strategyID string, trades []TradeResult, initialAllocation decimal.Decimal) *models.StrategyPerformance {
	p := &models.StrategyPerformance{
		StrategyID:      strategyID,
		TotalPnl:        decimal.Zero,
		WinRate:         decimal.Zero,
		ProfitFactor:    decimal.Zero,
		MaxDrawdown:     decimal.Zero,
		CurrentDrawdown: decimal.Zero,
		RoiPct:          decimal.Zero,
	}

	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, t := range trades {
		p.TotalTrades++
		p.TotalPnl = p.TotalPnl.Add(t.Pnl)
		switch {
		case t.Pnl.IsPositive():
			p.WinningTrades++
			grossProfit = grossProfit.Add(t.Pnl)
		case t.Pnl.IsNegative():
			p.LosingTrades++
			grossLoss = grossLoss.Add(t.Pnl.Abs())
		}
	}

	if p.TotalTrades > 0 {
		p.WinRate = decimal.NewFromInt(int64(p.WinningTrades)).
			Div(decimal.NewFromInt(int64(p.TotalTrades)))
	}

	switch {
	case grossLoss.IsPositive():
		p.ProfitFactor = grossProfit.Div(grossLoss)
	case grossProfit.IsPositive():
		// All wins: report gross profit rather than dividing by zero.
		p.ProfitFactor = grossProfit
	}

	p.ConsecutiveLosses = consecutiveLosses(trades)
	p.MaxDrawdown, p.CurrentDrawdown = drawdowns(trades)

	if initialAllocation.IsPositive() {
		p.RoiPct = p.TotalPnl.Div(initialAllocation).Mul(hundred)
	}
	return p
}

// consecutiveLosses counts trailing trades with pnl < 0, most recent
// first, stopping at the first non-negative trade.
func consecutiveLosses(trades []TradeResult) int {
	n := 0
	for i := len(trades) - 1; i >= 0; i-- {
		if !trades[i].Pnl.IsNegative() {
			break
		}
		n++
	}
	return n
}

// drawdowns walks the cumulative-P&L series and returns the maximum
// peak-to-trough decline and the current decline, both as fractions of the
// peak's magnitude.
func drawdowns(trades []TradeResult) (maxDD, currentDD decimal.Decimal) {
	maxDD, currentDD = decimal.Zero, decimal.Zero
	if len(trades) == 0 {
		return maxDD, currentDD
	}

	cumulative := decimal.Zero
	peak := trades[0].Pnl
	var last decimal.Decimal

	for _, t := range trades {
		cumulative = cumulative.Add(t.Pnl)
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		if !peak.IsZero() {
			dd := peak.Sub(cumulative).Div(peak.Abs())
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
		last = cumulative
	}

	if !peak.IsZero() {
		currentDD = peak.Sub(last).Div(peak.Abs())
	}
	return maxDD, currentDD
}

// ShouldOptimize evaluates the trigger predicate against stored metrics.
// The reason names the specific trigger for the optimization log.
func (t Thresholds) ShouldOptimize(p *models.StrategyPerformance) (bool, string) {
	if p == nil {
		return false, ""
	}
	if p.ConsecutiveLosses >= t.ConsecutiveLosses {
		return true, fmt.Sprintf("%d consecutive losses", t.ConsecutiveLosses)
	}
	if p.TotalTrades >= t.MinTrades && p.WinRate.LessThan(t.MinWinRate) {
		return true, fmt.Sprintf("win rate %s below %s",
			p.WinRate.Round(3), t.MinWinRate)
	}
	if p.CurrentDrawdown.GreaterThan(t.MaxCurrentDrawdown) {
		return true, fmt.Sprintf("drawdown %s above %s",
			p.CurrentDrawdown.Round(3), t.MaxCurrentDrawdown)
	}
	if p.TotalTrades >= t.MinTrades && p.TotalPnl.IsNegative() {
		return true, fmt.Sprintf("negative P&L: $%s", p.TotalPnl.Round(2))
	}
	return false, ""
}
