package indicator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"stocksignal/internal/model"
)

// MovingAverageSet holds one value per input point. Values[i].Valid is false
// for the first Window-1 positions (insufficient history).
type MovingAverageSet struct {
	Window int
	Values []decimal.NullDecimal
}

// At returns the value aligned with series position i; out-of-range positions are undefined.
func (m MovingAverageSet) At(i int) decimal.NullDecimal {
	if i < 0 || i >= len(m.Values) {
		return decimal.NullDecimal{}
	}
	return m.Values[i]
}

// Last returns the value aligned with the last point.
func (m MovingAverageSet) Last() decimal.NullDecimal {
	return m.At(len(m.Values) - 1)
}

// MovingAverage computes the simple moving average of the closes in series.
// The series is read only and must already be date-ascending. An empty series
// (or one shorter than window) yields only undefined values, never an error.
func MovingAverage(series model.PriceSeries, window int) MovingAverageSet {
	sma := NewSMA(window)
	out := MovingAverageSet{
		Window: sma.Period(),
		Values: make([]decimal.NullDecimal, len(series)),
	}
	for i, p := range series {
		sma.Update(p.Close)
		out.Values[i] = sma.Value()
	}
	return out
}

// Engine evaluates several moving-average windows over the same series.
// It holds no per-series state and is safe for concurrent use.
type Engine struct {
	windows []int
}

// NewEngine creates an engine for the given windows. Duplicates are collapsed;
// windows are kept in ascending order.
func NewEngine(windows ...int) (*Engine, error) {
	if err := ValidateWindows(windows); err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(windows))
	uniq := make([]int, 0, len(windows))
	for _, w := range windows {
		if !seen[w] {
			seen[w] = true
			uniq = append(uniq, w)
		}
	}
	sort.Ints(uniq)
	return &Engine{windows: uniq}, nil
}

// Windows returns the configured windows in ascending order.
func (e *Engine) Windows() []int {
	out := make([]int, len(e.windows))
	copy(out, e.windows)
	return out
}

// Largest returns the widest configured window.
func (e *Engine) Largest() int {
	return e.windows[len(e.windows)-1]
}

// Compute returns one MovingAverageSet per configured window.
func (e *Engine) Compute(series model.PriceSeries) map[int]MovingAverageSet {
	out := make(map[int]MovingAverageSet, len(e.windows))
	for _, w := range e.windows {
		out[w] = MovingAverage(series, w)
	}
	return out
}

// Latest returns the value of each window aligned with the last point.
func (e *Engine) Latest(series model.PriceSeries) map[int]decimal.NullDecimal {
	out := make(map[int]decimal.NullDecimal, len(e.windows))
	for w, set := range e.Compute(series) {
		out[w] = set.Last()
	}
	return out
}

// ValidateWindows checks that at least one window is given and all are >= 1.
func ValidateWindows(windows []int) error {
	if len(windows) == 0 {
		return fmt.Errorf("indicator: no moving-average windows configured")
	}
	for _, w := range windows {
		if w < 1 {
			return fmt.Errorf("indicator: invalid window %d (must be >= 1)", w)
		}
	}
	return nil
}
