// Package pnl computes realized profit and loss by replaying order history
// with first-in-first-out lot matching. The replay is pure and in-memory:
// it never reads the mutable position rows, whose weighted-average cost is
// a different bookkeeping view that must not be conflated with lots.
package pnl

import (
	"sort"

	"github.com/shopspring/decimal"

	"paper-ledger/internal/models"
)

// Lot is one open purchase parcel awaiting consumption by a sell.
type Lot struct {
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// UnmatchedSell records a sell (or portion of one) that found no lot to
// consume, e.g. history predating a seeded position. The unmatched portion
// contributes zero P&L rather than a guessed cost basis.
type UnmatchedSell struct {
	OrderID  int64
	Symbol   string
	Quantity decimal.Decimal
}

// Result is the outcome of one replay.
type Result struct {
	// RealizedBySell maps each sell order id to its realized P&L.
	RealizedBySell map[int64]decimal.Decimal
	// OpenLots holds the unconsumed lots per symbol after the replay.
	OpenLots map[string][]Lot
	// Unmatched lists oversold quantities encountered during the replay.
	Unmatched []UnmatchedSell
}

// TotalRealized sums realized P&L across all sells.
func (r *Result) TotalRealized() decimal.Decimal {
	total := decimal.Zero
	for _, pnl := range r.RealizedBySell {
		total = total.Add(pnl)
	}
	return total
}

// Replay consumes an order history oldest-first: buys push lots, each sell
// pops the oldest lots until its quantity is covered. Replaying the same
// history twice yields identical per-order results; input order does not
// matter because orders are sorted by timestamp, ties broken by id, before
// the replay.
func Replay(orders []*models.Order) *Result {
	sorted := make([]*models.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	res := &Result{
		RealizedBySell: make(map[int64]decimal.Decimal),
		OpenLots:       make(map[string][]Lot),
	}

	for _, o := range sorted {
		switch o.Side {
		case models.SideBuy:
			res.OpenLots[o.Symbol] = append(res.OpenLots[o.Symbol], Lot{
				Quantity: o.Quantity,
				UnitCost: o.Price,
			})

		case models.SideSell:
			remaining := o.Quantity
			realized := decimal.Zero
			lots := res.OpenLots[o.Symbol]

			for remaining.IsPositive() && len(lots) > 0 {
				oldest := &lots[0]
				if oldest.Quantity.LessThanOrEqual(remaining) {
					realized = realized.Add(o.Price.Sub(oldest.UnitCost).Mul(oldest.Quantity))
					remaining = remaining.Sub(oldest.Quantity)
					lots = lots[1:]
				} else {
					realized = realized.Add(o.Price.Sub(oldest.UnitCost).Mul(remaining))
					oldest.Quantity = oldest.Quantity.Sub(remaining)
					remaining = decimal.Zero
				}
			}
			res.OpenLots[o.Symbol] = lots

			if remaining.IsPositive() {
				res.Unmatched = append(res.Unmatched, UnmatchedSell{
					OrderID:  o.ID,
					Symbol:   o.Symbol,
					Quantity: remaining,
				})
			}
			res.RealizedBySell[o.ID] = realized
		}
	}
	return res
}
