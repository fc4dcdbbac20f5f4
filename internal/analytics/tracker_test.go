package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/database"
	"paper-ledger/internal/models"
)

type fakeTrackerStore struct {
	orders []*models.Order
	perfs  map[string]*models.StrategyPerformance
}

func (f *fakeTrackerStore) GetOrders(ctx context.Context, filter database.OrderFilter) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range f.orders {
		if filter.Strategy != "" && o.Strategy != filter.Strategy {
			continue
		}
		if filter.Symbol != "" && o.Symbol != filter.Symbol {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeTrackerStore) UpsertStrategyPerformance(ctx context.Context, p *models.StrategyPerformance) error {
	if f.perfs == nil {
		f.perfs = make(map[string]*models.StrategyPerformance)
	}
	f.perfs[p.StrategyID] = p
	return nil
}

func (f *fakeTrackerStore) GetStrategyPerformance(ctx context.Context, strategyID string) (*models.StrategyPerformance, error) {
	p, ok := f.perfs[strategyID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return p, nil
}

func (f *fakeTrackerStore) ListStrategyPerformance(ctx context.Context) ([]*models.StrategyPerformance, error) {
	var out []*models.StrategyPerformance
	for _, p := range f.perfs {
		out = append(out, p)
	}
	return out, nil
}

func TestTrackerUpdate(t *testing.T) {
	base := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

	// realized_pnl is deliberately left at its on-fill value of zero: the
	// tracker must derive each sell's P&L from FIFO replay, not from the
	// stored column.
	store := &fakeTrackerStore{orders: []*models.Order{
		{ID: 1, Symbol: "NVDA", Side: models.SideBuy, Quantity: decimal.NewFromInt(10),
			Price: decimal.NewFromInt(400), Strategy: "momentum", Timestamp: base},
		{ID: 2, Symbol: "NVDA", Side: models.SideSell, Quantity: decimal.NewFromInt(10),
			Price: decimal.NewFromInt(430), Strategy: "momentum", Timestamp: base.Add(time.Hour)},
		{ID: 3, Symbol: "AAPL", Side: models.SideBuy, Quantity: decimal.NewFromInt(5),
			Price: decimal.NewFromInt(320), Strategy: "meanrev", Timestamp: base.Add(90 * time.Minute)},
		{ID: 4, Symbol: "AAPL", Side: models.SideSell, Quantity: decimal.NewFromInt(5),
			Price: decimal.NewFromInt(310), Strategy: "meanrev", Timestamp: base.Add(2 * time.Hour)},
	}}

	tracker := NewTracker(store, DefaultThresholds(), zerolog.Nop())

	perf, err := tracker.Update(context.Background(), "momentum")
	require.NoError(t, err)

	// Only momentum's sell counts: one winning trade, P&L from replay.
	assert.Equal(t, 1, perf.TotalTrades)
	assert.Equal(t, 1, perf.WinningTrades)
	assert.True(t, decimal.NewFromInt(300).Equal(perf.TotalPnl), "got %s", perf.TotalPnl)
	assert.True(t, decimal.NewFromInt(1).Equal(perf.WinRate))

	stored, err := store.GetStrategyPerformance(context.Background(), "momentum")
	require.NoError(t, err)
	assert.True(t, stored.TotalPnl.Equal(perf.TotalPnl))

	t.Run("aggregate spans all tracked strategies", func(t *testing.T) {
		_, err := tracker.Update(context.Background(), "meanrev")
		require.NoError(t, err)

		stats, err := tracker.Aggregate(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, stats.TotalStrategies)
		assert.Equal(t, 2, stats.TotalTrades)
		assert.True(t, decimal.NewFromInt(250).Equal(stats.TotalPnl), "got %s", stats.TotalPnl)
		assert.Equal(t, "momentum", stats.Best.StrategyID)
		assert.Equal(t, "meanrev", stats.Worst.StrategyID)
	})
}

// Orders written by the store carry realized_pnl = 0 until a backfill
// runs; metrics still have to come out right straight off the fills.
func TestTrackerUpdateFromFills(t *testing.T) {
	ctx := context.Background()

	store, err := database.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitAccount(ctx, decimal.NewFromInt(50000)))

	_, err = store.PlaceOrder(ctx, &database.OrderRequest{
		Symbol: "NVDA", Side: models.SideBuy,
		Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(400),
		Strategy: "momentum",
	})
	require.NoError(t, err)
	_, err = store.PlaceOrder(ctx, &database.OrderRequest{
		Symbol: "NVDA", Side: models.SideSell,
		Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(430),
		Strategy: "momentum",
	})
	require.NoError(t, err)

	tracker := NewTracker(store, DefaultThresholds(), zerolog.Nop())
	perf, err := tracker.Update(ctx, "momentum")
	require.NoError(t, err)

	assert.Equal(t, 1, perf.TotalTrades)
	assert.Equal(t, 1, perf.WinningTrades)
	assert.True(t, decimal.NewFromInt(300).Equal(perf.TotalPnl), "got %s", perf.TotalPnl)
	assert.True(t, decimal.NewFromInt(1).Equal(perf.WinRate))
}
