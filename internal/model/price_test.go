package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func pt(date string, close float64) PricePoint {
	d, _ := ParseDate(date)
	return PricePoint{Date: d, Close: decimal.NewFromFloat(close)}
}

func TestPriceSeries_NormalizeSortsAndDedupes(t *testing.T) {
	s := PriceSeries{
		pt("2026-01-05", 12),
		pt("2026-01-02", 10),
		pt("2026-01-05", 13),
		pt("2026-01-03", 11),
	}
	got := s.Normalize()
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	want := []string{"2026-01-02", "2026-01-03", "2026-01-05"}
	for i, w := range want {
		if DateKey(got[i].Date) != w {
			t.Errorf("point %d: got %s, want %s", i, DateKey(got[i].Date), w)
		}
	}
	if !got[2].Close.Equal(decimal.NewFromInt(13)) {
		t.Errorf("duplicate date should keep the later entry, got %s", got[2].Close)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("normalized series should validate: %v", err)
	}
	if len(s) != 4 {
		t.Error("Normalize must not mutate its receiver")
	}
}

func TestPriceSeries_ValidateRejectsUnordered(t *testing.T) {
	s := PriceSeries{pt("2026-01-03", 1), pt("2026-01-02", 1)}
	if err := s.Validate(); err == nil {
		t.Fatal("expected ordering error")
	}
}

func TestDay_UsesLocalCalendarDate(t *testing.T) {
	taipei := time.FixedZone("CST", 8*3600)
	late := time.Date(2026, 3, 2, 23, 30, 0, 0, taipei)
	if got := DateKey(late); got != "2026-03-02" {
		t.Errorf("expected 2026-03-02, got %s", got)
	}
}

func TestRecordKey_RoundTrip(t *testing.T) {
	d, _ := ParseDate("2026-02-25")
	r := NewRecord(d, "2330")
	if r.Key() != "2026-02-25_2330" {
		t.Fatalf("unexpected key %q", r.Key())
	}
	back, err := ParseRecordKey(r.Key())
	if err != nil {
		t.Fatal(err)
	}
	if back.Symbol != "2330" || !back.Date.Equal(r.Date) {
		t.Errorf("round trip mismatch: %+v", back)
	}

	for _, bad := range []string{"", "2026-02-25", "2026-02-25_", "20260225_2330"} {
		if _, err := ParseRecordKey(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestUpstreamError_MatchesSentinel(t *testing.T) {
	err := error(&UpstreamError{Op: "TaiwanStockPrice", Status: 402, Err: errors.New("quota")})
	if !errors.Is(err, ErrUpstream) {
		t.Error("expected errors.Is(err, ErrUpstream)")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("upstream error must not match ErrNotFound")
	}
}

func TestDividendEvent_Payout(t *testing.T) {
	e := DividendEvent{Cash: decimal.RequireFromString("2.5"), Stock: decimal.RequireFromString("0.5")}
	if !e.Payout().Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected payout 3, got %s", e.Payout())
	}
	s := DividendSeries{{Cash: decimal.NewFromInt(-1), Stock: decimal.Zero}}.Normalize()
	if !s[0].Cash.IsZero() {
		t.Error("negative cash should clamp to zero")
	}
}
