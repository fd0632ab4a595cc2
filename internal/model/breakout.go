package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BreakoutEvent is produced once when a close crosses from at-or-below MA60 to strictly above it.
type BreakoutEvent struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Close  decimal.Decimal `json:"close"`
	MA60   decimal.Decimal `json:"ma60"`
}

// NotificationRecord marks that symbol was notified on date.
type NotificationRecord struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
}

// NewRecord builds a record keyed by the calendar date of t.
func NewRecord(t time.Time, symbol string) NotificationRecord {
	return NotificationRecord{Date: Day(t), Symbol: symbol}
}

// Key returns the persisted form "<YYYY-MM-DD>_<symbol>".
func (r NotificationRecord) Key() string {
	return DateKey(r.Date) + "_" + r.Symbol
}

// ParseRecordKey parses "<YYYY-MM-DD>_<symbol>".
func ParseRecordKey(s string) (NotificationRecord, error) {
	date, symbol, ok := strings.Cut(strings.TrimSpace(s), "_")
	if !ok || symbol == "" {
		return NotificationRecord{}, fmt.Errorf("record key %q: missing symbol", s)
	}
	d, err := ParseDate(date)
	if err != nil {
		return NotificationRecord{}, fmt.Errorf("record key %q: %w", s, err)
	}
	return NotificationRecord{Date: d, Symbol: symbol}, nil
}
