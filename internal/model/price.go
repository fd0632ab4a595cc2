package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar-date layout used in ledger keys and upstream payloads.
const DateLayout = "2006-01-02"

// Day returns the calendar date of t (in t's own location) as midnight UTC,
// so dates produced in different zones compare by calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats the calendar date of t as "YYYY-MM-DD".
func DateKey(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// ParseDate parses a "YYYY-MM-DD" date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// PricePoint is one daily close for a single instrument.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// PriceSeries is a date-ascending sequence of daily closes, at most one point per date.
// Windowed computations never re-sort it; providers hand out normalized series.
type PriceSeries []PricePoint

// Last returns the most recent point. ok is false for an empty series.
func (s PriceSeries) Last() (p PricePoint, ok bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// Validate reports the first position where dates are not strictly increasing.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s); i++ {
		if !Day(s[i].Date).After(Day(s[i-1].Date)) {
			return fmt.Errorf("price series: point %d (%s) not after point %d (%s)",
				i, DateKey(s[i].Date), i-1, DateKey(s[i-1].Date))
		}
	}
	return nil
}

// Normalize returns a copy sorted by date with duplicate dates collapsed
// (the later entry in input order wins).
func (s PriceSeries) Normalize() PriceSeries {
	out := make(PriceSeries, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return Day(out[i].Date).Before(Day(out[j].Date)) })

	n := 0
	for i := range out {
		if n > 0 && Day(out[n-1].Date).Equal(Day(out[i].Date)) {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}
