package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an open holding. EntryPrice is a running
// weighted-average cost used for the unrealized P&L view; it is not the
// FIFO lot view used for realized P&L. A position row only exists while
// quantity > 0 - closing the last share deletes the row.
type Position struct {
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	StopLoss       decimal.Decimal `json:"stop_loss,omitempty"`
	ProfitTarget   decimal.Decimal `json:"profit_target,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
	Classification string          `json:"classification,omitempty"`
	EntryDate      time.Time       `json:"entry_date"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// MarketValue is quantity x current price.
func (p *Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// UnrealizedPnl is the paper gain against the weighted-average cost.
func (p *Position) UnrealizedPnl() decimal.Decimal {
	return p.CurrentPrice.Sub(p.EntryPrice).Mul(p.Quantity)
}
