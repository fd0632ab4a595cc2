package indicator

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Hand-calculated SMA(3):
	// Prices: 100, 102, 104, 103, 105
	// after 3: (100+102+104)/3 = 102
	// after 4: (102+104+103)/3 = 103
	// after 5: (104+103+105)/3 = 104
	sma := NewSMA(3)
	prices := []string{"100", "102", "104", "103", "105"}
	expected := []string{"", "", "102", "103", "104"}

	for i, p := range prices {
		sma.Update(dec(p))
		label := fmt.Sprintf("SMA(3) point %d", i)
		if expected[i] == "" {
			assertUndefined(t, label, sma.Value())
			continue
		}
		assertDec(t, label, sma.Value(), expected[i])
	}
}

func TestSMA_PeriodClamped(t *testing.T) {
	sma := NewSMA(0)
	if sma.Period() != 1 {
		t.Fatalf("Period()=%d, want 1", sma.Period())
	}
	sma.Update(dec("7.5"))
	assertDec(t, "period 1", sma.Value(), "7.5")
	if got := Name(sma.Period()); got != "MA1" {
		t.Errorf("Name=%q, want MA1", got)
	}
}

// ────────────────────────────────────────────────────────────
// MovingAverage over a series
// ────────────────────────────────────────────────────────────

func TestMovingAverage_Window5(t *testing.T) {
	// Closes 10, 11, 12, 13, 14 with window 5: last = 60/5 = 12.0
	set := MovingAverage(seriesOf("10", "11", "12", "13", "14"), 5)
	if len(set.Values) != 5 {
		t.Fatalf("len=%d, want 5", len(set.Values))
	}
	for i := 0; i < 4; i++ {
		assertUndefined(t, fmt.Sprintf("pos %d", i), set.At(i))
	}
	assertDec(t, "pos 4", set.Last(), "12")
}

func TestMovingAverage_ShortSeriesAllUndefined(t *testing.T) {
	set := MovingAverage(seriesOf("1", "2", "3"), 5)
	for i := range set.Values {
		assertUndefined(t, fmt.Sprintf("pos %d", i), set.At(i))
	}
	assertUndefined(t, "last", set.Last())
}

func TestMovingAverage_EmptySeries(t *testing.T) {
	set := MovingAverage(nil, 20)
	if len(set.Values) != 0 {
		t.Fatalf("len=%d, want 0", len(set.Values))
	}
	assertUndefined(t, "last", set.Last())
	assertUndefined(t, "out of range", set.At(3))
}

func TestMovingAverage_MatchesNaiveMean(t *testing.T) {
	closes := make([]string, 0, 90)
	for i := 0; i < 90; i++ {
		// wobbling series around 100 with two decimals
		v := decimal.NewFromInt(10000 + int64((i*37)%113) - 56).Shift(-2)
		closes = append(closes, v.String())
	}
	series := seriesOf(closes...)

	for _, w := range []int{5, 20, 60} {
		set := MovingAverage(series, w)
		for i := w - 1; i < len(series); i++ {
			sum := decimal.Zero
			for j := i - w + 1; j <= i; j++ {
				sum = sum.Add(series[j].Close)
			}
			want := sum.Div(decimal.NewFromInt(int64(w)))
			got := set.At(i)
			if !got.Valid || !got.Decimal.Equal(want) {
				t.Fatalf("MA%d pos %d: got %v, want %s", w, i, got.Decimal, want)
			}
		}
	}
}

func TestMovingAverage_DoesNotMutateInput(t *testing.T) {
	series := seriesOf("5", "6", "7", "8")
	before := make([]string, len(series))
	for i, p := range series {
		before[i] = p.Close.String()
	}
	_ = MovingAverage(series, 2)
	for i, p := range series {
		if p.Close.String() != before[i] {
			t.Errorf("close %d mutated: %s -> %s", i, before[i], p.Close.String())
		}
	}
}
