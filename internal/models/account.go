package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the single paper-trading account row. It is created once at
// bootstrap and never deleted; total_value is derived and periodically
// overwritten by reconciliation.
type Account struct {
	ID          int             `json:"id"`
	Cash        decimal.Decimal `json:"cash"`
	TotalValue  decimal.Decimal `json:"total_value"`
	LastUpdated time.Time       `json:"last_updated"`
}
