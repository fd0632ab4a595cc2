package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DividendEvent is one distribution: cash per share plus stock dividend per share.
type DividendEvent struct {
	Date  time.Time       `json:"date"`
	Cash  decimal.Decimal `json:"cash"`
	Stock decimal.Decimal `json:"stock"`
}

// Payout is the combined cash and stock distribution of the event.
func (e DividendEvent) Payout() decimal.Decimal {
	return e.Cash.Add(e.Stock)
}

// DividendSeries is a date-ascending list of dividend events. Empty is valid.
type DividendSeries []DividendEvent

// Normalize returns a copy sorted ascending by date. Negative components are clamped to zero.
func (s DividendSeries) Normalize() DividendSeries {
	out := make(DividendSeries, len(s))
	copy(out, s)
	for i := range out {
		if out[i].Cash.IsNegative() {
			out[i].Cash = decimal.Zero
		}
		if out[i].Stock.IsNegative() {
			out[i].Stock = decimal.Zero
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
