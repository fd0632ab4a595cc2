package monitor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stocksignal/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// flatThen builds n-1 closes at base followed by last.
func flatThen(n int, base, last string) model.PriceSeries {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(model.PriceSeries, n)
	for i := range s {
		s[i] = model.PricePoint{Date: start.AddDate(0, 0, i), Close: d(base)}
	}
	s[n-1].Close = d(last)
	return s
}

func TestIsBreakout(t *testing.T) {
	tests := []struct {
		name                         string
		prevClose, prevMA, close, ma string
		want                         bool
	}{
		// yesterday 58 <= 60, today 61 > 60.1
		{"crosses up", "58", "60", "61", "60.1", true},
		// already above yesterday
		{"already above", "61", "60", "62", "60.5", false},
		{"touching then above", "60", "60", "60.2", "60.1", true},
		{"ends on the line", "58", "60", "60.1", "60.1", false},
		{"falls below", "61", "60", "59", "60", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsBreakout(d(tt.prevClose), d(tt.prevMA), d(tt.close), d(tt.ma))
			if got != tt.want {
				t.Errorf("IsBreakout = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetect_ColdStartCross(t *testing.T) {
	// 60 closes at 60 then 61: prev MA60 = 60 (prev close 60 <= 60),
	// today MA60 = (59*60 + 61)/60 = 60.01666..., 61 > it.
	series := flatThen(61, "60", "61")
	ev, out := Detect("2330", series)
	if out != Crossed {
		t.Fatalf("outcome = %v, want crossed", out)
	}
	if ev.Symbol != "2330" || !ev.Close.Equal(d("61")) || !ev.Date.Equal(series[60].Date) {
		t.Errorf("event = %+v", ev)
	}
	if got := ev.MA60.StringFixed(4); got != "60.0167" {
		t.Errorf("ma60 = %s, want 60.0167", got)
	}
}

func TestDetect_AlreadyAbove(t *testing.T) {
	// Yesterday closed at 70 above its MA60; today still above.
	series := flatThen(62, "60", "71")
	series[60].Close = d("70")
	if _, out := Detect("2330", series); out != NoCross {
		t.Fatalf("outcome = %v, want no_cross", out)
	}
}

func TestDetect_Insufficient(t *testing.T) {
	if _, out := Detect("2330", flatThen(60, "60", "99")); out != Insufficient {
		t.Fatalf("60 points: outcome = %v, want insufficient", out)
	}
	if _, out := Detect("2330", nil); out != Insufficient {
		t.Fatalf("empty: outcome = %v, want insufficient", out)
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("2330")
	unlockB := k.Lock("2317")
	if k.size() != 2 {
		t.Fatalf("size = %d, want 2", k.size())
	}
	unlockA()
	unlockB()
	if k.size() != 0 {
		t.Fatalf("size = %d after unlock, want 0", k.size())
	}
}
