package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceSnapshot is one point of the account-value time series.
// Append-only; rows older than the retention window are pruned.
type PerformanceSnapshot struct {
	Timestamp      time.Time       `json:"timestamp"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positions_value"`
}
