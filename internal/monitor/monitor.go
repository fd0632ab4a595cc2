// Package monitor runs the scheduled MA60 breakout check over a watch list.
//
// Each cycle fetches every symbol's history through a bounded worker pool,
// detects a fresh cross above MA60, and claims (date, symbol) in the ledger
// before anything is sent, for both today and the day of the cross. Only the caller whose claim inserted the record
// emits the event, so a symbol is announced at most once per day even when
// cycles overlap. All events of a cycle go out as one message.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stocksignal/internal/ledger"
	"stocksignal/internal/logger"
	"stocksignal/internal/markethours"
	"stocksignal/internal/metrics"
	"stocksignal/internal/model"
	"stocksignal/internal/notification"
	"stocksignal/internal/report"
)

// Config tunes a Monitor.
type Config struct {
	Watch        []string      // symbols in priority order; duplicates ignored
	Workers      int           // concurrent fetches, default 4
	LookbackDays int           // calendar days of history to request, default 120
	FetchTimeout time.Duration // per-symbol fetch timeout, default 15s
}

// Skip reasons reported in Result.Skipped.
const (
	ReasonNotified     = metrics.SkipNotified
	ReasonInsufficient = metrics.SkipInsufficient
	ReasonUpstream     = metrics.SkipUpstream
	ReasonStale        = metrics.SkipStale
)

// Result summarizes one cycle.
type Result struct {
	CycleID     string
	Date        time.Time              // Taipei calendar date the cycle ran for
	Events      []model.BreakoutEvent  // in watch-list order
	Skipped     map[string]string      // symbol -> reason
	Errors      map[string]error       // symbol -> fetch or ledger error
	Delivered   bool                   // a batch was sent without error
	DeliveryErr error
}

// Monitor is safe to run from several goroutines; overlapping cycles share
// the per-symbol locks.
type Monitor struct {
	prices   model.PriceSeriesProvider
	ledger   ledger.Ledger
	notifier notification.Notifier
	cfg      Config
	watch    []string
	now      func() time.Time
	locks    *keyedMutex
	metrics  *metrics.Metrics
}

// New creates a monitor. m may be nil.
func New(prices model.PriceSeriesProvider, l ledger.Ledger, n notification.Notifier, cfg Config, m *metrics.Metrics) *Monitor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 120
	}
	if need := MinLookbackDays(); cfg.LookbackDays < need {
		cfg.LookbackDays = need
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	return &Monitor{
		prices:   prices,
		ledger:   l,
		notifier: n,
		cfg:      cfg,
		watch:    dedupe(cfg.Watch),
		now:      time.Now,
		locks:    newKeyedMutex(),
		metrics:  m,
	}
}

// SetClock overrides the wall clock (tests, backfills).
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// Watch returns the de-duplicated watch list.
func (m *Monitor) Watch() []string {
	return append([]string(nil), m.watch...)
}

type symbolResult struct {
	event  *model.BreakoutEvent
	reason string
	err    error
}

// RunCycle checks the whole watch list once. Per-symbol failures are recorded
// in the Result and never abort the cycle. The returned error is non-nil only
// when ctx ends before the cycle completes.
func (m *Monitor) RunCycle(ctx context.Context) (Result, error) {
	ctx, cycleID := logger.StartTrace(ctx)
	start := time.Now()
	today := markethours.Today(m.now())

	res := Result{
		CycleID: cycleID,
		Date:    today,
		Skipped: make(map[string]string),
		Errors:  make(map[string]error),
	}
	slog.Info("monitor cycle start", append(logger.LogWithTrace(ctx),
		slog.String("date", model.DateKey(today)), slog.Int("symbols", len(m.watch)))...)

	results := make([]symbolResult, len(m.watch))
	sem := make(chan struct{}, m.cfg.Workers)
	var wg sync.WaitGroup

	abort := func() (Result, error) {
		wg.Wait()
		m.metrics.Cycle("error", time.Since(start), 0)
		return res, fmt.Errorf("monitor cycle: %w", ctx.Err())
	}
	for i, symbol := range m.watch {
		if ctx.Err() != nil {
			return abort()
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return abort()
		}
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = m.checkSymbol(ctx, today, symbol)
		}(i, symbol)
	}
	wg.Wait()

	for i, symbol := range m.watch {
		r := results[i]
		if r.err != nil {
			res.Errors[symbol] = r.err
		}
		if r.reason != "" {
			res.Skipped[symbol] = r.reason
			m.metrics.Skip(r.reason)
		}
		if r.event != nil {
			res.Events = append(res.Events, *r.event)
		}
	}

	if len(res.Events) > 0 {
		// The ledger is already written; a failed send is not retried.
		alert := notification.Alert{
			Level:   notification.AlertInfo,
			Title:   report.BreakoutTitle,
			Message: report.FormatBreakouts(res.Events),
			Events:  res.Events,
		}
		if err := m.notifier.Send(ctx, alert); err != nil {
			res.DeliveryErr = err
			slog.Error("breakout batch delivery failed", append(logger.LogWithTrace(ctx),
				slog.Int("events", len(res.Events)), slog.String("error", err.Error()))...)
		} else {
			res.Delivered = true
		}
	}

	result := "ok"
	if len(res.Events) == 0 {
		result = "noop"
	}
	m.metrics.Cycle(result, time.Since(start), len(res.Events))
	slog.Info("monitor cycle done", append(logger.LogWithTrace(ctx),
		slog.Int("events", len(res.Events)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("errors", len(res.Errors)),
		slog.Duration("took", time.Since(start)))...)
	return res, nil
}

func (m *Monitor) checkSymbol(ctx context.Context, today time.Time, symbol string) symbolResult {
	rec := model.NewRecord(today, symbol)
	attrs := append(logger.LogWithTrace(ctx), slog.String("symbol", symbol))

	// Cheap pre-check; the claim below is what actually guards emission.
	done, err := m.ledger.Contains(ctx, rec)
	if err != nil {
		slog.Error("ledger lookup failed", append(attrs, slog.String("error", err.Error()))...)
		return symbolResult{reason: ReasonUpstream, err: fmt.Errorf("ledger contains: %w", err)}
	}
	if done {
		return symbolResult{reason: ReasonNotified}
	}

	fctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	series, err := m.prices.FetchPrices(fctx, symbol, today.AddDate(0, 0, -m.cfg.LookbackDays))
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			slog.Warn("no price history", attrs...)
			return symbolResult{reason: ReasonInsufficient}
		}
		slog.Warn("price fetch failed, retry next cycle", append(attrs, slog.String("error", err.Error()))...)
		return symbolResult{reason: ReasonUpstream, err: err}
	}

	event, outcome := Detect(symbol, series)
	switch outcome {
	case Insufficient:
		slog.Debug("not enough history for MA60", append(attrs, slog.Int("points", len(series)))...)
		return symbolResult{reason: ReasonInsufficient}
	case NoCross:
		return symbolResult{}
	}
	// The latest point must be today's or the previous session's close.
	if event.Date.Before(markethours.PreviousTradingDay(m.now())) {
		slog.Info("crossover is older than the last session, not announced", append(attrs,
			slog.String("crossed", model.DateKey(event.Date)))...)
		return symbolResult{reason: ReasonStale}
	}

	unlock := m.locks.Lock(symbol)
	claimed, err := m.claim(ctx, rec, event.Date)
	unlock()
	if err != nil {
		slog.Error("ledger claim failed, event dropped", append(attrs, slog.String("error", err.Error()))...)
		return symbolResult{reason: ReasonUpstream, err: fmt.Errorf("ledger claim: %w", err)}
	}
	if !claimed {
		return symbolResult{reason: ReasonNotified}
	}

	slog.Info("breakout", append(attrs,
		slog.String("close", event.Close.String()),
		slog.String("ma60", event.MA60.StringFixed(2)))...)
	return symbolResult{event: &event}
}

// claim records the breakout under the day it was crossed and under today.
// Upstream may still report yesterday's cross as its latest point, and the
// crossing-day record keeps that cross from being announced a second time.
func (m *Monitor) claim(ctx context.Context, rec model.NotificationRecord, crossed time.Time) (bool, error) {
	if day := model.NewRecord(crossed, rec.Symbol); day.Key() != rec.Key() {
		ok, err := m.ledger.Claim(ctx, day)
		if err != nil || !ok {
			return false, err
		}
	}
	return m.ledger.Claim(ctx, rec)
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
