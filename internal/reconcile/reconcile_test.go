package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/clock"
	"paper-ledger/internal/database"
	"paper-ledger/internal/models"
	"paper-ledger/internal/quotes"
)

type fakeReconcileStore struct {
	cash       decimal.Decimal
	totalValue decimal.Decimal
	positions  map[string]*models.Position
	snapshots  []*models.PerformanceSnapshot
	pruned     []time.Time
}

func (f *fakeReconcileStore) GetAccount(ctx context.Context) (*models.Account, error) {
	return &models.Account{ID: 1, Cash: f.cash, TotalValue: f.totalValue}, nil
}

func (f *fakeReconcileStore) GetPositions(ctx context.Context) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeReconcileStore) UpdatePositionPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	p, ok := f.positions[symbol]
	if !ok {
		return database.ErrNotFound
	}
	p.CurrentPrice = price
	return nil
}

func (f *fakeReconcileStore) ReconcileTotalValue(ctx context.Context) (*database.ReconcileResult, error) {
	positionsValue := decimal.Zero
	for _, p := range f.positions {
		positionsValue = positionsValue.Add(p.MarketValue())
	}
	prev := f.totalValue
	f.totalValue = f.cash.Add(positionsValue)
	return &database.ReconcileResult{
		Cash:           f.cash,
		PositionsValue: positionsValue,
		Total:          f.totalValue,
		PreviousTotal:  prev,
		CheckedAt:      time.Now(),
	}, nil
}

func (f *fakeReconcileStore) RecordPerformance(ctx context.Context, snap *models.PerformanceSnapshot) error {
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeReconcileStore) PrunePerformance(ctx context.Context, olderThan time.Time) (int64, error) {
	f.pruned = append(f.pruned, olderThan)
	return 0, nil
}

type fakePrices struct {
	prices map[string]decimal.Decimal
	fail   map[string]bool
}

func (f *fakePrices) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if f.fail[symbol] {
		return nil, quotes.ErrUnavailable
	}
	return &models.Quote{Symbol: symbol, Price: f.prices[symbol], Timestamp: time.Now()}, nil
}

func TestReconcileOnce(t *testing.T) {
	now := time.Date(2026, 1, 5, 16, 0, 0, 0, time.UTC)

	newStore := func() *fakeReconcileStore {
		return &fakeReconcileStore{
			cash:       decimal.NewFromInt(5000),
			totalValue: decimal.NewFromInt(10000),
			positions: map[string]*models.Position{
				"NVDA": {Symbol: "NVDA", Quantity: decimal.NewFromInt(50),
					EntryPrice: decimal.NewFromInt(400), CurrentPrice: decimal.NewFromInt(400)},
				"AAPL": {Symbol: "AAPL", Quantity: decimal.NewFromInt(50),
					EntryPrice: decimal.NewFromInt(290), CurrentPrice: decimal.NewFromInt(290)},
			},
		}
	}

	t.Run("heals a drifted total from fresh prices", func(t *testing.T) {
		store := newStore()
		src := &fakePrices{prices: map[string]decimal.Decimal{
			"NVDA": decimal.NewFromInt(430),
			"AAPL": decimal.NewFromInt(267),
		}}
		rec := New(store, src, clock.NewFake(now), decimal.Zero, 0, zerolog.Nop())

		res, err := rec.ReconcileOnce(context.Background())
		require.NoError(t, err)

		// 5000 + 50*430 + 50*267 = 39850 against the stale 10000.
		assert.True(t, decimal.NewFromInt(39850).Equal(res.Total), "got %s", res.Total)
		assert.True(t, decimal.NewFromInt(29850).Equal(res.Discrepancy()), "got %s", res.Discrepancy())
		assert.True(t, store.totalValue.Equal(res.Total))
	})

	t.Run("records one snapshot and prunes by retention", func(t *testing.T) {
		store := newStore()
		src := &fakePrices{prices: map[string]decimal.Decimal{
			"NVDA": decimal.NewFromInt(400),
			"AAPL": decimal.NewFromInt(290),
		}}
		rec := New(store, src, clock.NewFake(now), decimal.Zero, 30*24*time.Hour, zerolog.Nop())

		_, err := rec.ReconcileOnce(context.Background())
		require.NoError(t, err)

		require.Len(t, store.snapshots, 1)
		assert.True(t, store.snapshots[0].TotalValue.Equal(store.totalValue))
		require.Len(t, store.pruned, 1)
		assert.Equal(t, now.Add(-30*24*time.Hour), store.pruned[0])
	})

	t.Run("failed quote keeps the stored price for that symbol", func(t *testing.T) {
		store := newStore()
		src := &fakePrices{
			prices: map[string]decimal.Decimal{"NVDA": decimal.NewFromInt(500)},
			fail:   map[string]bool{"AAPL": true},
		}
		rec := New(store, src, clock.NewFake(now), decimal.Zero, 0, zerolog.Nop())

		res, err := rec.ReconcileOnce(context.Background())
		require.NoError(t, err)

		// 5000 + 50*500 + 50*290 (AAPL unchanged).
		assert.True(t, decimal.NewFromInt(44500).Equal(res.Total), "got %s", res.Total)
		assert.True(t, store.positions["AAPL"].CurrentPrice.Equal(decimal.NewFromInt(290)))
	})
}

func TestCheckDiscrepancy(t *testing.T) {
	store := &fakeReconcileStore{
		cash:       decimal.NewFromInt(5000),
		totalValue: decimal.NewFromInt(10000),
		positions: map[string]*models.Position{
			"NVDA": {Symbol: "NVDA", Quantity: decimal.NewFromInt(50),
				CurrentPrice: decimal.NewFromInt(697)},
		},
	}
	rec := New(store, &fakePrices{}, clock.New(), decimal.Zero, 0, zerolog.Nop())

	drift, err := rec.CheckDiscrepancy(context.Background())
	require.NoError(t, err)

	// 5000 + 34850 - 10000, computed read-only.
	assert.True(t, decimal.NewFromInt(29850).Equal(drift), "got %s", drift)
	assert.True(t, store.totalValue.Equal(decimal.NewFromInt(10000)), "stored total must not change")
	assert.Empty(t, store.snapshots)
}
