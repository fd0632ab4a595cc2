package monitor

import (
	"github.com/shopspring/decimal"

	"stocksignal/internal/analysis"
	"stocksignal/internal/indicator"
	"stocksignal/internal/model"
)

// BreakoutWindow is the moving average a close must cross.
const BreakoutWindow = 60

// MinPoints is the shortest series on which a cross can be decided: the
// average must be defined on both of the last two points.
const MinPoints = BreakoutWindow + 1

// MinLookbackDays is the shortest calendar span worth requesting: it must
// hold MinPoints trading days.
func MinLookbackDays() int {
	return analysis.MinLookbackDays(MinPoints)
}

// Outcome is the result of checking one series.
type Outcome int

const (
	NoCross Outcome = iota
	Crossed
	Insufficient
)

func (o Outcome) String() string {
	switch o {
	case Crossed:
		return "crossed"
	case Insufficient:
		return "insufficient"
	default:
		return "no_cross"
	}
}

// IsBreakout reports a cross from at-or-below the average yesterday to
// strictly above it today.
func IsBreakout(prevClose, prevMA, close, ma decimal.Decimal) bool {
	return prevClose.LessThanOrEqual(prevMA) && close.GreaterThan(ma)
}

// Detect checks the last two points of series against MA60. The first
// comparison after the average becomes defined (60 -> 61 points) is an
// ordinary comparison.
func Detect(symbol string, series model.PriceSeries) (model.BreakoutEvent, Outcome) {
	if len(series) < MinPoints {
		return model.BreakoutEvent{}, Insufficient
	}

	ma := indicator.MovingAverage(series, BreakoutWindow)
	n := len(series)
	prevMA, curMA := ma.At(n-2), ma.At(n-1)
	if !prevMA.Valid || !curMA.Valid {
		return model.BreakoutEvent{}, Insufficient
	}

	prev, cur := series[n-2], series[n-1]
	if !IsBreakout(prev.Close, prevMA.Decimal, cur.Close, curMA.Decimal) {
		return model.BreakoutEvent{}, NoCross
	}
	return model.BreakoutEvent{
		Symbol: symbol,
		Date:   cur.Date,
		Close:  cur.Close,
		MA60:   curMA.Decimal,
	}, Crossed
}
