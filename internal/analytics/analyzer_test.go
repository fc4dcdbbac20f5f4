package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(pnl float64, at time.Time) TradeResult {
	return TradeResult{Pnl: decimal.NewFromFloat(pnl), Timestamp: at}
}

func series(pnls ...float64) []TradeResult {
	base := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	trades := make([]TradeResult, len(pnls))
	for i, p := range pnls {
		trades[i] = trade(p, base.Add(time.Duration(i)*time.Hour))
	}
	return trades
}

var tenK = decimal.NewFromInt(10000)

func TestCompute(t *testing.T) {
	t.Run("empty series yields zeroed metrics", func(t *testing.T) {
		p := Compute("momentum", nil, tenK)

		assert.Equal(t, "momentum", p.StrategyID)
		assert.Zero(t, p.TotalTrades)
		assert.True(t, p.WinRate.IsZero())
		assert.True(t, p.ProfitFactor.IsZero())
		assert.True(t, p.RoiPct.IsZero())
	})

	t.Run("win rate counts zero pnl as non-winning", func(t *testing.T) {
		p := Compute("s", series(100, -50, 0, 200), tenK)

		assert.Equal(t, 4, p.TotalTrades)
		assert.Equal(t, 2, p.WinningTrades)
		assert.Equal(t, 1, p.LosingTrades)
		assert.True(t, decimal.NewFromFloat(0.5).Equal(p.WinRate), "got %s", p.WinRate)
	})

	t.Run("profit factor is gross profit over gross loss", func(t *testing.T) {
		p := Compute("s", series(300, -100, -50), tenK)

		assert.True(t, decimal.NewFromInt(2).Equal(p.ProfitFactor), "got %s", p.ProfitFactor)
	})

	t.Run("profit factor with no losses reports gross profit", func(t *testing.T) {
		p := Compute("s", series(100, 150), tenK)

		assert.True(t, decimal.NewFromInt(250).Equal(p.ProfitFactor), "got %s", p.ProfitFactor)
	})

	t.Run("consecutive losses count from the most recent trade", func(t *testing.T) {
		p := Compute("s", series(100, -10, -20, -30), tenK)
		assert.Equal(t, 3, p.ConsecutiveLosses)

		p = Compute("s", series(-10, -20, 100), tenK)
		assert.Zero(t, p.ConsecutiveLosses)
	})

	t.Run("drawdown measures decline from the cumulative peak", func(t *testing.T) {
		// Cumulative: 1000, 600, 800. Peak 1000, trough 600.
		p := Compute("s", series(1000, -400, 200), tenK)

		assert.True(t, decimal.NewFromFloat(0.4).Equal(p.MaxDrawdown), "got %s", p.MaxDrawdown)
		assert.True(t, decimal.NewFromFloat(0.2).Equal(p.CurrentDrawdown), "got %s", p.CurrentDrawdown)
	})

	t.Run("roi is total pnl over the initial allocation", func(t *testing.T) {
		p := Compute("s", series(400, 100), tenK)

		assert.True(t, decimal.NewFromInt(5).Equal(p.RoiPct), "got %s", p.RoiPct)
	})

	t.Run("performance weight equals win rate", func(t *testing.T) {
		p := Compute("s", series(100, -50), tenK)
		assert.True(t, p.WinRate.Equal(p.PerformanceWeight()))
	})
}

func TestShouldOptimize(t *testing.T) {
	th := DefaultThresholds()

	t.Run("consecutive losses trigger", func(t *testing.T) {
		p := Compute("s", series(100, -1, -1, -1, -1, -1), tenK)

		flagged, reason := th.ShouldOptimize(p)
		require.True(t, flagged)
		assert.Equal(t, "5 consecutive losses", reason)
	})

	t.Run("low win rate needs the minimum sample", func(t *testing.T) {
		// Big wins and tiny losses keep the streak, drawdown and total-P&L
		// triggers quiet so only the win rate is in play.
		var pnls []float64
		for i := 0; i < 19; i++ {
			if i%3 == 0 {
				pnls = append(pnls, 100)
			} else {
				pnls = append(pnls, -1)
			}
		}
		p := Compute("s", series(pnls...), tenK)

		flagged, _ := th.ShouldOptimize(p)
		assert.False(t, flagged, "sample below MinTrades must not trigger")

		p.TotalTrades = 20
		flagged, reason := th.ShouldOptimize(p)
		require.True(t, flagged)
		assert.Contains(t, reason, "win rate")
	})

	t.Run("drawdown trigger", func(t *testing.T) {
		p := Compute("s", series(1000, -400, 200), tenK)

		flagged, reason := th.ShouldOptimize(p)
		require.True(t, flagged)
		assert.Contains(t, reason, "drawdown")
	})

	t.Run("negative total pnl needs the minimum sample", func(t *testing.T) {
		// One early loss, then small alternating trades ending on a win:
		// the streak stays short, the win rate stays at 0.5 and the
		// drawdown from the (negative) peak stays tiny, so only the
		// negative-P&L trigger is in play.
		pnls := []float64{-100}
		for i := 0; i < 19; i++ {
			if i%2 == 0 {
				pnls = append(pnls, 1)
			} else {
				pnls = append(pnls, -1)
			}
		}
		p := Compute("s", series(pnls...), tenK)
		require.Equal(t, 20, p.TotalTrades)
		require.True(t, p.TotalPnl.IsNegative())
		require.True(t, p.WinRate.GreaterThanOrEqual(th.MinWinRate))
		require.True(t, p.CurrentDrawdown.LessThanOrEqual(th.MaxCurrentDrawdown))

		flagged, reason := th.ShouldOptimize(p)
		require.True(t, flagged)
		assert.Contains(t, reason, "negative P&L")

		p.TotalTrades = 19
		flagged, _ = th.ShouldOptimize(p)
		assert.False(t, flagged, "sample below MinTrades must not trigger")
	})

	t.Run("healthy strategy is not flagged", func(t *testing.T) {
		p := Compute("s", series(100, 120, -30, 80), tenK)

		flagged, reason := th.ShouldOptimize(p)
		assert.False(t, flagged)
		assert.Empty(t, reason)
	})
}
