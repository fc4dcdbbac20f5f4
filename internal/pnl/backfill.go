package pnl

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper-ledger/internal/database"
	"paper-ledger/internal/models"
)

// epsilon below which a stored realized_pnl is considered already correct.
var epsilon = decimal.NewFromFloat(0.001)

// BackfillStore is the slice of the ledger store the backfiller needs.
type BackfillStore interface {
	GetOrders(ctx context.Context, f database.OrderFilter) ([]*models.Order, error)
	BackfillOrderPnL(ctx context.Context, orderID int64, pnl decimal.Decimal) error
}

// Update describes one sell order whose stored realized_pnl diverges from
// the FIFO recomputation.
type Update struct {
	OrderID int64           `json:"order_id"`
	Symbol  string          `json:"symbol"`
	OldPnl  decimal.Decimal `json:"old_pnl"`
	NewPnl  decimal.Decimal `json:"new_pnl"`
}

// Report summarizes one backfill run.
type Report struct {
	OrdersScanned int             `json:"orders_scanned"`
	Updates       []Update        `json:"updates"`
	Unmatched     []UnmatchedSell `json:"unmatched"`
	TotalRealized decimal.Decimal `json:"total_realized"`
	Applied       bool            `json:"applied"`
}

// Backfiller recomputes realized_pnl for historical sell orders from the
// full order history. Dry-run by default; Apply commits the updates.
// Backfill only ever writes orders.realized_pnl - live balance always
// comes from the reconciler using current prices.
type Backfiller struct {
	store BackfillStore
	log   zerolog.Logger
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(store BackfillStore, log zerolog.Logger) *Backfiller {
	return &Backfiller{store: store, log: log.With().Str("component", "pnl-backfill").Logger()}
}

// Run replays the complete order history and returns the divergences. When
// apply is true the recomputed values are written back.
func (b *Backfiller) Run(ctx context.Context, apply bool) (*Report, error) {
	orders, err := b.store.GetOrders(ctx, database.OrderFilter{})
	if err != nil {
		return nil, fmt.Errorf("backfill: %w", err)
	}

	res := Replay(orders)
	report := &Report{
		OrdersScanned: len(orders),
		Unmatched:     res.Unmatched,
		TotalRealized: res.TotalRealized(),
		Applied:       apply,
	}

	for _, u := range res.Unmatched {
		b.log.Warn().
			Str("symbol", u.Symbol).
			Int64("order_id", u.OrderID).
			Str("unmatched_quantity", u.Quantity.String()).
			Msg("sell has no matching buy lots; unmatched portion contributes zero pnl")
	}

	for _, o := range orders {
		if o.Side != models.SideSell {
			continue
		}
		newPnl, ok := res.RealizedBySell[o.ID]
		if !ok {
			continue
		}
		if newPnl.Sub(o.RealizedPnl).Abs().LessThanOrEqual(epsilon) {
			continue
		}
		report.Updates = append(report.Updates, Update{
			OrderID: o.ID,
			Symbol:  o.Symbol,
			OldPnl:  o.RealizedPnl,
			NewPnl:  newPnl,
		})
	}

	if !apply {
		b.log.Info().
			Int("orders", report.OrdersScanned).
			Int("updates", len(report.Updates)).
			Msg("dry run complete; no changes written")
		return report, nil
	}

	for _, u := range report.Updates {
		if err := b.store.BackfillOrderPnL(ctx, u.OrderID, u.NewPnl); err != nil {
			return report, fmt.Errorf("backfill order %d: %w", u.OrderID, err)
		}
	}
	b.log.Info().
		Int("orders", report.OrdersScanned).
		Int("updates", len(report.Updates)).
		Str("total_realized", report.TotalRealized.String()).
		Msg("backfill applied")
	return report, nil
}
