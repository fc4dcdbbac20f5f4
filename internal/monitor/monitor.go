// Package monitor watches open positions with stop-loss levels and closes
// them when the market price falls to or below the stop.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper-ledger/internal/clock"
	"paper-ledger/internal/database"
	"paper-ledger/internal/models"
	"paper-ledger/internal/quotes"
)

// DefaultInterval is how often the watchlist is re-checked.
const DefaultInterval = 10 * time.Second

// storageTimeout bounds each store call made by the monitor.
const storageTimeout = 5 * time.Second

// Watch states for a monitored symbol.
const (
	stateWatching      = "WATCHING"
	stateExitRequested = "EXIT_REQUESTED"
)

// Store is the slice of the ledger store the monitor needs.
type Store interface {
	GetPositionsWithStopLoss(ctx context.Context) ([]*models.Position, error)
	PlaceOrder(ctx context.Context, req *database.OrderRequest) (*models.Order, error)
	ReconcileTotalValue(ctx context.Context) (*database.ReconcileResult, error)
}

// Publisher announces triggered stops downstream. May be nil.
type Publisher interface {
	PublishStopLossTriggered(ctx context.Context, order *models.Order) error
}

// Monitor polls stop-loss positions and sells the full quantity when the
// stop is breached. Each symbol moves WATCHING -> EXIT_REQUESTED -> removed;
// a failed exit stays EXIT_REQUESTED and is retried next tick.
type Monitor struct {
	store  Store
	quotes quotes.Source
	pub    Publisher
	clk    clock.Clock
	log    zerolog.Logger

	// states survives across ticks; keys vanish when the position row does.
	states map[string]string
}

// New creates a Monitor. pub may be nil when no event stream is configured.
func New(store Store, src quotes.Source, pub Publisher, clk clock.Clock, log zerolog.Logger) *Monitor {
	return &Monitor{
		store:  store,
		quotes: src,
		pub:    pub,
		clk:    clk,
		log:    log.With().Str("component", "stop-monitor").Logger(),
		states: make(map[string]string),
	}
}

// CheckOnce runs one pass over the watchlist. A failed quote leaves the
// symbol WATCHING for the next pass; a failed sell leaves it
// EXIT_REQUESTED. Only a storage failure listing positions returns an error.
func (m *Monitor) CheckOnce(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	positions, err := m.store.GetPositionsWithStopLoss(sctx)
	cancel()
	if err != nil {
		return err
	}

	live := make(map[string]bool, len(positions))
	for _, p := range positions {
		live[p.Symbol] = true
		if _, ok := m.states[p.Symbol]; !ok {
			m.states[p.Symbol] = stateWatching
			m.log.Info().
				Str("symbol", p.Symbol).
				Str("stop_loss", p.StopLoss.String()).
				Msg("watching position")
		}
	}
	// A symbol that left the store was closed elsewhere; stop tracking it.
	for sym := range m.states {
		if !live[sym] {
			delete(m.states, sym)
		}
	}

	for _, p := range positions {
		m.checkPosition(ctx, p)
	}
	return nil
}

func (m *Monitor) checkPosition(ctx context.Context, p *models.Position) {
	qctx, cancel := context.WithTimeout(ctx, quotes.DefaultTimeout)
	q, err := m.quotes.GetQuote(qctx, p.Symbol)
	cancel()
	if err != nil {
		m.log.Warn().Str("symbol", p.Symbol).Err(err).Msg("quote failed, will retry next tick")
		return
	}

	// Once an exit is requested it stays requested until the sell is
	// confirmed, even if the price pops back above the stop in between.
	if m.states[p.Symbol] != stateExitRequested && q.Price.GreaterThan(p.StopLoss) {
		return
	}

	m.states[p.Symbol] = stateExitRequested
	estPnl := q.Price.Sub(p.EntryPrice).Mul(p.Quantity)
	m.log.Warn().
		Str("symbol", p.Symbol).
		Str("price", q.Price.String()).
		Str("stop_loss", p.StopLoss.String()).
		Str("quantity", p.Quantity.String()).
		Str("estimated_pnl", estPnl.Round(2).String()).
		Msg("stop loss breached, selling position")

	// Shutdown must drain an in-flight exit, not abort it mid-sell, so
	// the sell and its follow-ups run on a context that survives loop
	// cancellation. The storage timeouts still bound each call.
	dctx := context.WithoutCancel(ctx)

	order, err := m.sell(dctx, p, q.Price)
	if err != nil {
		if errors.Is(err, database.ErrConstraint) {
			// Position changed under us (already sold or resized). Drop the
			// exit request and re-evaluate from the fresh row next tick.
			m.log.Warn().Str("symbol", p.Symbol).Err(err).Msg("stop-loss sell rejected")
			delete(m.states, p.Symbol)
			return
		}
		m.log.Error().Str("symbol", p.Symbol).Err(err).Msg("stop-loss sell failed, will retry")
		return
	}

	delete(m.states, p.Symbol)
	m.log.Info().
		Str("symbol", p.Symbol).
		Int64("order_id", order.ID).
		Str("fill_price", order.Price.String()).
		Msg("stop-loss exit filled")

	rctx, rcancel := context.WithTimeout(dctx, storageTimeout)
	if _, err := m.store.ReconcileTotalValue(rctx); err != nil {
		m.log.Warn().Str("symbol", p.Symbol).Err(err).Msg("post-exit reconcile failed")
	}
	rcancel()

	if m.pub != nil {
		pctx, pcancel := context.WithTimeout(dctx, storageTimeout)
		if err := m.pub.PublishStopLossTriggered(pctx, order); err != nil {
			m.log.Warn().Str("symbol", p.Symbol).Err(err).Msg("stop-loss event publish failed")
		}
		pcancel()
	}
}

func (m *Monitor) sell(ctx context.Context, p *models.Position, price decimal.Decimal) (*models.Order, error) {
	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	return m.store.PlaceOrder(sctx, &database.OrderRequest{
		Symbol:    p.Symbol,
		Side:      models.SideSell,
		Quantity:  p.Quantity,
		Price:     price,
		Strategy:  p.Strategy,
		Reason:    "stop_loss",
		Timestamp: m.clk.Now(),
	})
}

// Run checks the watchlist on every tick until the context is cancelled.
// An in-flight pass finishes before Run returns.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := m.clk.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", interval).Msg("stop-loss monitor started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("stop-loss monitor stopped")
			return
		case <-ticker.Chan():
			if err := m.CheckOnce(ctx); err != nil {
				m.log.Error().Err(err).Msg("stop-loss pass failed")
			}
		}
	}
}
