package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order side constants
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order is an append-only fill record. Rows are immutable once written,
// with one exception: a dedicated backfill operation may set a
// previously-zero realized_pnl on a sell.
type Order struct {
	ID            int64           `json:"id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Timestamp     time.Time       `json:"timestamp"`
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
	Strategy      string          `json:"strategy,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// Notional is quantity x fill price.
func (o *Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// ValidSide reports whether s is a recognized order side.
func ValidSide(s string) bool {
	return s == SideBuy || s == SideSell
}
