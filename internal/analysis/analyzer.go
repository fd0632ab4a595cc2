// Package analysis implements the on-demand query path: resolve a symbol,
// fetch its history, and summarize averages, trend tier and dividend yield.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"stocksignal/internal/dividend"
	"stocksignal/internal/indicator"
	"stocksignal/internal/logger"
	"stocksignal/internal/markethours"
	"stocksignal/internal/metrics"
	"stocksignal/internal/model"
	"stocksignal/internal/trend"
)

// MAValue is one moving average at the last point.
type MAValue struct {
	Window int                 `json:"window"`
	Value  decimal.NullDecimal `json:"value"`
}

// Report is the result of one query.
type Report struct {
	Input       string          `json:"input"`
	Symbol      string          `json:"symbol"`
	AsOf        time.Time       `json:"as_of"`
	Price       decimal.Decimal `json:"price"`
	Previous    decimal.Decimal `json:"previous"`
	HasPrevious bool            `json:"has_previous"`
	Direction   trend.Direction `json:"direction"`
	MAs         []MAValue       `json:"moving_averages"`
	Tier        trend.Tier      `json:"tier"`
	Yield       decimal.Decimal `json:"yield_pct"`
	YieldPolicy string          `json:"yield_policy"`
}

// MA returns the value for window, undefined if it was not computed.
func (r Report) MA(window int) decimal.NullDecimal {
	for _, m := range r.MAs {
		if m.Window == window {
			return m.Value
		}
	}
	return decimal.NullDecimal{}
}

// Analyzer runs queries. It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	data    model.MarketData
	policy  Policy
	engine  *indicator.Engine
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewAnalyzer creates an analyzer. m may be nil.
func NewAnalyzer(data model.MarketData, policy Policy, m *metrics.Metrics) (*Analyzer, error) {
	engine, err := indicator.NewEngine(policy.MAWindows...)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		data:    data,
		policy:  policy,
		engine:  engine,
		now:     time.Now,
		metrics: m,
	}, nil
}

// SetClock overrides the wall clock (tests).
func (a *Analyzer) SetClock(now func() time.Time) { a.now = now }

// Analyze resolves input and builds its report. Unresolvable input and empty
// history return an error wrapping model.ErrNotFound; provider failures wrap
// model.ErrUpstream. No price or dividend fetch happens for unresolved input.
func (a *Analyzer) Analyze(ctx context.Context, input string) (Report, error) {
	symbol, err := a.data.Resolve(ctx, input)
	if err != nil {
		a.metrics.Query(outcome(err))
		return Report{}, fmt.Errorf("analyze %q: %w", input, err)
	}

	today := markethours.Today(a.now())
	series, err := a.data.FetchPrices(ctx, symbol, today.AddDate(0, 0, -a.policy.LookbackDays))
	if err != nil {
		a.metrics.Query(outcome(err))
		return Report{}, fmt.Errorf("analyze %s: prices: %w", symbol, err)
	}
	last, ok := series.Last()
	if !ok {
		a.metrics.Query("not_found")
		return Report{}, fmt.Errorf("analyze %s: %w", symbol, model.ErrNotFound)
	}

	rep := Report{
		Input:       input,
		Symbol:      symbol,
		AsOf:        last.Date,
		Price:       last.Close,
		YieldPolicy: a.policy.YieldPolicy.String(),
	}
	if len(series) >= 2 {
		rep.Previous = series[len(series)-2].Close
		rep.HasPrevious = true
		rep.Direction = trend.DirectionArrow(rep.Price, rep.Previous)
	}

	latest := a.engine.Latest(series)
	for _, w := range a.engine.Windows() {
		rep.MAs = append(rep.MAs, MAValue{Window: w, Value: latest[w]})
	}
	rep.Tier = trend.Classify(rep.Price, rep.MA(ShortWindow), rep.MA(MidWindow), rep.MA(LongWindow))

	divStart := today.AddDate(-a.policy.YieldPolicy.LookbackYears(), 0, 0)
	divs, err := a.data.FetchDividends(ctx, symbol, divStart)
	if err != nil {
		// A failed dividend fetch only zeroes the yield.
		slog.Warn("dividend fetch failed, yield reported as 0",
			append(logger.LogWithTrace(ctx), slog.String("symbol", symbol), slog.String("error", err.Error()))...)
		divs = nil
	}
	rep.Yield = dividend.EstimateYield(divs, rep.Price, a.policy.YieldPolicy)

	a.metrics.Query("ok")
	return rep, nil
}

func outcome(err error) string {
	if errors.Is(err, model.ErrNotFound) {
		return "not_found"
	}
	return "error"
}
