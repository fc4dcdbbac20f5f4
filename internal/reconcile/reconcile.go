// Package reconcile keeps account.total_value consistent with cash plus
// the marked-to-market value of open positions, and maintains the
// account-value history used for performance charts.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper-ledger/internal/clock"
	"paper-ledger/internal/database"
	"paper-ledger/internal/models"
	"paper-ledger/internal/quotes"
)

// DefaultThreshold is the drift above which a reconciliation is logged as
// a discrepancy rather than routine noise.
var DefaultThreshold = decimal.NewFromInt(1)

// DefaultRetention is how long performance snapshots are kept.
const DefaultRetention = 90 * 24 * time.Hour

// storageTimeout bounds each store call made by the reconciler.
const storageTimeout = 5 * time.Second

// Store is the slice of the ledger store the reconciler needs.
type Store interface {
	GetAccount(ctx context.Context) (*models.Account, error)
	GetPositions(ctx context.Context) ([]*models.Position, error)
	UpdatePositionPrice(ctx context.Context, symbol string, price decimal.Decimal) error
	ReconcileTotalValue(ctx context.Context) (*database.ReconcileResult, error)
	RecordPerformance(ctx context.Context, snap *models.PerformanceSnapshot) error
	PrunePerformance(ctx context.Context, olderThan time.Time) (int64, error)
}

// Reconciler refreshes position prices from the quote feed, recomputes the
// account total and records a performance snapshot.
type Reconciler struct {
	store     Store
	quotes    quotes.Source
	clk       clock.Clock
	threshold decimal.Decimal
	retention time.Duration
	log       zerolog.Logger
}

// New creates a Reconciler. A zero threshold falls back to DefaultThreshold
// and a zero retention to DefaultRetention.
func New(store Store, src quotes.Source, clk clock.Clock, threshold decimal.Decimal, retention time.Duration, log zerolog.Logger) *Reconciler {
	if !threshold.IsPositive() {
		threshold = DefaultThreshold
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Reconciler{
		store:     store,
		quotes:    src,
		clk:       clk,
		threshold: threshold,
		retention: retention,
		log:       log.With().Str("component", "reconciler").Logger(),
	}
}

// ReconcileOnce runs one full cycle: refresh prices, recompute the total,
// snapshot it and prune old history. Quote failures skip the symbol for
// this cycle; only storage failures abort the cycle.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (*database.ReconcileResult, error) {
	r.refreshPrices(ctx)

	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	res, err := r.store.ReconcileTotalValue(sctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	r.logDrift(res)

	snap := &models.PerformanceSnapshot{
		Timestamp:      res.CheckedAt,
		TotalValue:     res.Total,
		Cash:           res.Cash,
		PositionsValue: res.PositionsValue,
	}
	if err := r.store.RecordPerformance(sctx, snap); err != nil {
		return res, fmt.Errorf("record performance: %w", err)
	}

	cutoff := r.clk.Now().Add(-r.retention)
	if n, err := r.store.PrunePerformance(sctx, cutoff); err != nil {
		r.log.Warn().Err(err).Msg("performance prune failed")
	} else if n > 0 {
		r.log.Debug().Int64("rows", n).Msg("pruned performance history")
	}
	return res, nil
}

// refreshPrices updates current_price for every open position. A failed
// quote leaves that symbol's last known price in place.
func (r *Reconciler) refreshPrices(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	positions, err := r.store.GetPositions(sctx)
	cancel()
	if err != nil {
		r.log.Warn().Err(err).Msg("could not list positions; reconciling with stored prices")
		return
	}

	for _, p := range positions {
		qctx, qcancel := context.WithTimeout(ctx, quotes.DefaultTimeout)
		q, err := r.quotes.GetQuote(qctx, p.Symbol)
		qcancel()
		if err != nil {
			r.log.Warn().Str("symbol", p.Symbol).Err(err).Msg("quote failed, keeping last price")
			continue
		}

		uctx, ucancel := context.WithTimeout(ctx, storageTimeout)
		err = r.store.UpdatePositionPrice(uctx, p.Symbol, q.Price)
		ucancel()
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			r.log.Warn().Str("symbol", p.Symbol).Err(err).Msg("price update failed")
		}
	}
}

// logDrift reports how far the stored total had diverged before this
// reconciliation corrected it. The percent figure is omitted when the
// previous total was not positive.
func (r *Reconciler) logDrift(res *database.ReconcileResult) {
	drift := res.Discrepancy()
	ev := r.log.Info()
	if drift.Abs().GreaterThan(r.threshold) {
		ev = r.log.Warn()
	}
	ev = ev.
		Str("cash", res.Cash.Round(2).String()).
		Str("positions_value", res.PositionsValue.Round(2).String()).
		Str("total", res.Total.Round(2).String()).
		Str("drift", drift.Round(2).String())
	if res.PreviousTotal.IsPositive() {
		pct := drift.Div(res.PreviousTotal).Mul(decimal.NewFromInt(100))
		ev = ev.Str("drift_pct", pct.Round(4).String())
	}
	ev.Msg("account reconciled")
}

// CheckDiscrepancy computes the drift between the stored total and the
// recomputed total without writing anything. Used by the CLI health check.
func (r *Reconciler) CheckDiscrepancy(ctx context.Context) (decimal.Decimal, error) {
	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	acct, err := r.store.GetAccount(sctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("check discrepancy: %w", err)
	}
	positions, err := r.store.GetPositions(sctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("check discrepancy: %w", err)
	}

	computed := acct.Cash
	for _, p := range positions {
		computed = computed.Add(p.MarketValue())
	}
	return computed.Sub(acct.TotalValue), nil
}

// Run reconciles on every tick until the context is cancelled. Errors are
// logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := r.clk.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", interval).Msg("reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return
		case <-ticker.Chan():
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("reconcile cycle failed")
			}
		}
	}
}
