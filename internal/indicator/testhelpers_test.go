package indicator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stocksignal/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seriesOf builds a daily series starting 2025-01-02 from string closes.
func seriesOf(closes ...string) model.PriceSeries {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make(model.PriceSeries, len(closes))
	for i, c := range closes {
		out[i] = model.PricePoint{Date: start.AddDate(0, 0, i), Close: dec(c)}
	}
	return out
}

func assertDec(t *testing.T, label string, got decimal.NullDecimal, want string) {
	t.Helper()
	if !got.Valid {
		t.Errorf("%s: got undefined, want %s", label, want)
		return
	}
	if !got.Decimal.Equal(dec(want)) {
		t.Errorf("%s: got %s, want %s", label, got.Decimal.String(), want)
	}
}

func assertUndefined(t *testing.T, label string, got decimal.NullDecimal) {
	t.Helper()
	if got.Valid {
		t.Errorf("%s: got %s, want undefined", label, got.Decimal.String())
	}
}
