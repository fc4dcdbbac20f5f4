package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/shopspring/decimal"

	"paper-ledger/internal/models"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrUnavailable means the backend could not be reached. Callers retry
	// on their own next scheduled tick; it never crashes a loop.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrConstraint means the write would break a ledger invariant
	// (negative quantity, nonpositive price, oversell). Rejected before
	// commit and never retried.
	ErrConstraint = errors.New("constraint violation")

	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// OrderRequest is the order-intake payload accepted by PlaceOrder.
type OrderRequest struct {
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Strategy      string          `json:"strategy,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Timestamp     time.Time       `json:"timestamp,omitempty"`
}

// Validate rejects requests that would break ledger invariants.
func (r *OrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required: %w", ErrConstraint)
	}
	if !models.ValidSide(r.Side) {
		return fmt.Errorf("invalid side %q: %w", r.Side, ErrConstraint)
	}
	if !r.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive: %w", ErrConstraint)
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("price must be positive: %w", ErrConstraint)
	}
	return nil
}

// OrderFilter narrows GetOrders. Zero values mean "no filter". Results are
// always ordered ascending by timestamp, ties broken by ascending id, which
// is the replay order the FIFO engine depends on.
type OrderFilter struct {
	Symbol   string
	Side     string
	Strategy string
	Since    time.Time
	Limit    int
}

// ReconcileResult reports one atomic recompute of account.total_value.
type ReconcileResult struct {
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	Total          decimal.Decimal `json:"total"`
	PreviousTotal  decimal.Decimal `json:"previous_total"`
	CheckedAt      time.Time       `json:"checked_at"`
}

// Discrepancy is computed total minus the previously stored total.
func (r *ReconcileResult) Discrepancy() decimal.Decimal {
	return r.Total.Sub(r.PreviousTotal)
}

// Store is the single storage-backend contract shared by the PostgreSQL
// and SQLite implementations. All mutations to a symbol's position and the
// account row are serialized by the backend's own transaction facilities,
// so multiple process instances can share one backend.
type Store interface {
	GetAccount(ctx context.Context) (*models.Account, error)
	// InitAccount seeds the singleton account row; no-op when present.
	InitAccount(ctx context.Context, cash decimal.Decimal) error

	GetPositions(ctx context.Context) ([]*models.Position, error)
	GetPosition(ctx context.Context, symbol string) (*models.Position, error)
	GetPositionsWithStopLoss(ctx context.Context) ([]*models.Position, error)
	UpdatePositionPrice(ctx context.Context, symbol string, price decimal.Decimal) error
	UpdatePositionRisk(ctx context.Context, symbol string, stopLoss, profitTarget decimal.Decimal) error

	// PlaceOrder performs position upsert, cash adjustment and order append
	// as one atomic unit. Re-submitting a known client_order_id returns the
	// previously recorded order without filling twice.
	PlaceOrder(ctx context.Context, req *OrderRequest) (*models.Order, error)
	GetOrders(ctx context.Context, f OrderFilter) ([]*models.Order, error)
	// BackfillOrderPnL is the only permitted write to an existing order row.
	BackfillOrderPnL(ctx context.Context, orderID int64, pnl decimal.Decimal) error

	// ReconcileTotalValue recomputes cash + sum(quantity*current_price) and
	// overwrites account.total_value inside one transaction over a
	// consistent snapshot.
	ReconcileTotalValue(ctx context.Context) (*ReconcileResult, error)

	RecordPerformance(ctx context.Context, snap *models.PerformanceSnapshot) error
	GetPerformanceHistory(ctx context.Context, since time.Time) ([]*models.PerformanceSnapshot, error)
	PrunePerformance(ctx context.Context, olderThan time.Time) (int64, error)

	UpsertStrategyPerformance(ctx context.Context, p *models.StrategyPerformance) error
	GetStrategyPerformance(ctx context.Context, strategyID string) (*models.StrategyPerformance, error)
	ListStrategyPerformance(ctx context.Context) ([]*models.StrategyPerformance, error)

	Ping(ctx context.Context) error
	Close() error
}

// storeErr wraps backend errors, translating connectivity failures into
// ErrUnavailable so callers can treat them as transient.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
