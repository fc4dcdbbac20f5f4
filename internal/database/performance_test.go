package database

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/models"
)

func TestPerformanceHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 5, 16, 0, 0, 0, time.UTC)
	snap := func(at time.Time, total int64) *models.PerformanceSnapshot {
		return &models.PerformanceSnapshot{
			Timestamp:      at,
			TotalValue:     decimal.NewFromInt(total),
			Cash:           decimal.NewFromInt(total / 2),
			PositionsValue: decimal.NewFromInt(total - total/2),
		}
	}

	t.Run("history returns snapshots oldest first", func(t *testing.T) {
		testDB.TruncateAll(t)

		require.NoError(t, testDB.RecordPerformance(ctx, snap(base.AddDate(0, 0, 2), 10200)))
		require.NoError(t, testDB.RecordPerformance(ctx, snap(base, 10000)))
		require.NoError(t, testDB.RecordPerformance(ctx, snap(base.AddDate(0, 0, 1), 10100)))

		snaps, err := testDB.GetPerformanceHistory(ctx, base)
		require.NoError(t, err)
		require.Len(t, snaps, 3)
		assert.True(t, snaps[0].TotalValue.Equal(decimal.NewFromInt(10000)))
		assert.True(t, snaps[2].TotalValue.Equal(decimal.NewFromInt(10200)))

		snaps, err = testDB.GetPerformanceHistory(ctx, base.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Len(t, snaps, 2)
	})

	t.Run("same timestamp overwrites instead of erroring", func(t *testing.T) {
		testDB.TruncateAll(t)

		require.NoError(t, testDB.RecordPerformance(ctx, snap(base, 10000)))
		require.NoError(t, testDB.RecordPerformance(ctx, snap(base, 10500)))

		snaps, err := testDB.GetPerformanceHistory(ctx, base)
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.True(t, snaps[0].TotalValue.Equal(decimal.NewFromInt(10500)))
	})

	t.Run("prune removes rows older than the cutoff", func(t *testing.T) {
		testDB.TruncateAll(t)

		require.NoError(t, testDB.RecordPerformance(ctx, snap(base.AddDate(0, 0, -120), 9000)))
		require.NoError(t, testDB.RecordPerformance(ctx, snap(base.AddDate(0, 0, -10), 9900)))
		require.NoError(t, testDB.RecordPerformance(ctx, snap(base, 10000)))

		n, err := testDB.PrunePerformance(ctx, base.AddDate(0, 0, -90))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		snaps, err := testDB.GetPerformanceHistory(ctx, base.AddDate(0, 0, -365))
		require.NoError(t, err)
		assert.Len(t, snaps, 2)
	})
}

func TestStrategyPerformanceRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	perf := func(id string, trades int, winRate float64, pnl int64) *models.StrategyPerformance {
		return &models.StrategyPerformance{
			StrategyID:      id,
			TotalTrades:     trades,
			WinningTrades:   trades / 2,
			LosingTrades:    trades - trades/2,
			TotalPnl:        decimal.NewFromInt(pnl),
			WinRate:         decimal.NewFromFloat(winRate),
			ProfitFactor:    decimal.NewFromFloat(1.2),
			MaxDrawdown:     decimal.NewFromFloat(0.1),
			CurrentDrawdown: decimal.NewFromFloat(0.05),
			RoiPct:          decimal.NewFromFloat(3.5),
		}
	}

	t.Run("upsert then get round-trips the metrics", func(t *testing.T) {
		testDB.TruncateAll(t)

		in := perf("momentum", 40, 0.55, 1200)
		require.NoError(t, testDB.UpsertStrategyPerformance(ctx, in))
		assert.False(t, in.LastUpdated.IsZero())

		out, err := testDB.GetStrategyPerformance(ctx, "momentum")
		require.NoError(t, err)
		assert.Equal(t, 40, out.TotalTrades)
		assert.True(t, decimal.NewFromFloat(0.55).Equal(out.WinRate))
		assert.True(t, decimal.NewFromInt(1200).Equal(out.TotalPnl))
	})

	t.Run("upsert replaces the previous metrics", func(t *testing.T) {
		testDB.TruncateAll(t)

		require.NoError(t, testDB.UpsertStrategyPerformance(ctx, perf("momentum", 40, 0.55, 1200)))
		require.NoError(t, testDB.UpsertStrategyPerformance(ctx, perf("momentum", 41, 0.54, 1100)))

		out, err := testDB.GetStrategyPerformance(ctx, "momentum")
		require.NoError(t, err)
		assert.Equal(t, 41, out.TotalTrades)
		assert.True(t, decimal.NewFromInt(1100).Equal(out.TotalPnl))
	})

	t.Run("unknown strategy returns not found", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.GetStrategyPerformance(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list ranks by win rate descending", func(t *testing.T) {
		testDB.TruncateAll(t)

		require.NoError(t, testDB.UpsertStrategyPerformance(ctx, perf("meanrev", 30, 0.45, 200)))
		require.NoError(t, testDB.UpsertStrategyPerformance(ctx, perf("momentum", 40, 0.60, 1200)))
		require.NoError(t, testDB.UpsertStrategyPerformance(ctx, perf("breakout", 10, 0.50, -100)))

		perfs, err := testDB.ListStrategyPerformance(ctx)
		require.NoError(t, err)
		require.Len(t, perfs, 3)
		assert.Equal(t, "momentum", perfs[0].StrategyID)
		assert.Equal(t, "breakout", perfs[1].StrategyID)
		assert.Equal(t, "meanrev", perfs[2].StrategyID)
	})
}
