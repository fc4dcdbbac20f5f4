package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one price observation from the external quote source.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
