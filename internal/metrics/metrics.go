package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons for SymbolsSkipped.
const (
	SkipNotified     = "notified"
	SkipInsufficient = "insufficient"
	SkipUpstream     = "upstream"
	SkipStale        = "stale"
)

// Metrics holds all Prometheus metrics for the signal services.
type Metrics struct {
	// Monitor cycle metrics
	CyclesTotal    *prometheus.CounterVec // labels: result=ok|noop|error
	CycleDur       prometheus.Histogram
	BreakoutsTotal prometheus.Counter
	SymbolsSkipped *prometheus.CounterVec // labels: reason
	LedgerPruned   prometheus.Counter

	// Notification sinks
	NotifySent     *prometheus.CounterVec // labels: sink
	NotifyFailures *prometheus.CounterVec // labels: sink

	// Query path
	QueriesTotal *prometheus.CounterVec // labels: outcome=ok|not_found|error

	// Upstream provider
	ProviderFetchDur *prometheus.HistogramVec // labels: dataset
	ProviderErrors   *prometheus.CounterVec   // labels: dataset

	// Circuit breaker around the provider
	BreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BreakerTrips prometheus.Counter

	// Series cache
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Dashboard feed
	WSClients prometheus.Gauge

	// Market session
	TradingDay prometheus.Gauge // 0=closed day, 1=trading day
}

// NewMetrics registers and returns all Prometheus metrics on reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_monitor_cycles_total",
			Help: "Monitor cycles run (by result)",
		}, []string{"result"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_monitor_cycle_duration_seconds",
			Help:    "Wall time of one monitor cycle over the watch list",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		BreakoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_breakouts_total",
			Help: "MA60 breakout events emitted",
		}),
		SymbolsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_symbols_skipped_total",
			Help: "Watch-list symbols skipped in a cycle (by reason)",
		}, []string{"reason"}),
		LedgerPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_ledger_pruned_total",
			Help: "Ledger records removed by retention pruning",
		}),

		NotifySent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_notifications_sent_total",
			Help: "Breakout batches delivered (by sink)",
		}, []string{"sink"}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_notification_failures_total",
			Help: "Breakout batch deliveries that failed (by sink)",
		}, []string{"sink"}),

		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_queries_total",
			Help: "On-demand analysis queries (by outcome)",
		}, []string{"outcome"}),

		ProviderFetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signal_provider_fetch_duration_seconds",
			Help:    "Upstream market-data fetch latency (by dataset)",
			Buckets: prometheus.DefBuckets,
		}, []string{"dataset"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_provider_errors_total",
			Help: "Upstream market-data failures (by dataset)",
		}, []string{"dataset"}),

		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_provider_circuit_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_provider_circuit_breaker_trips_total",
			Help: "Times the provider circuit breaker tripped open",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_series_cache_hits_total",
			Help: "Series served from the Redis cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_series_cache_misses_total",
			Help: "Series fetched upstream after a cache miss",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_ws_clients",
			Help: "Connected breakout feed WebSocket clients",
		}),

		TradingDay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_trading_day",
			Help: "Whether today is a TWSE trading day (0=no, 1=yes)",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.BreakoutsTotal,
		m.SymbolsSkipped,
		m.LedgerPruned,
		m.NotifySent,
		m.NotifyFailures,
		m.QueriesTotal,
		m.ProviderFetchDur,
		m.ProviderErrors,
		m.BreakerState,
		m.BreakerTrips,
		m.CacheHits,
		m.CacheMisses,
		m.WSClients,
		m.TradingDay,
	)

	return m
}

// The helpers below accept a nil receiver so callers may run without metrics.

// ObserveFetch records one upstream call.
func (m *Metrics) ObserveFetch(dataset string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ProviderFetchDur.WithLabelValues(dataset).Observe(d.Seconds())
	if err != nil {
		m.ProviderErrors.WithLabelValues(dataset).Inc()
	}
}

// Skip counts a skipped symbol.
func (m *Metrics) Skip(reason string) {
	if m == nil {
		return
	}
	m.SymbolsSkipped.WithLabelValues(reason).Inc()
}

// Cycle records the outcome of one monitor cycle.
func (m *Metrics) Cycle(result string, d time.Duration, breakouts int) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDur.Observe(d.Seconds())
	m.BreakoutsTotal.Add(float64(breakouts))
}

// Notified records one delivery attempt to sink.
func (m *Metrics) Notified(sink string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.NotifyFailures.WithLabelValues(sink).Inc()
		return
	}
	m.NotifySent.WithLabelValues(sink).Inc()
}

// Query records an on-demand query outcome.
func (m *Metrics) Query(outcome string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
}

// Pruned records retention pruning.
func (m *Metrics) Pruned(n int) {
	if m == nil {
		return
	}
	m.LedgerPruned.Add(float64(n))
}

// BreakerChanged mirrors a breaker transition. to is the numeric state.
func (m *Metrics) BreakerChanged(to int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(to))
	if to == 1 {
		m.BreakerTrips.Inc()
	}
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}

// SetWSClients sets the connected dashboard client count.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// SetTradingDay records whether the current cycle ran on a trading day.
func (m *Metrics) SetTradingDay(open bool) {
	if m == nil {
		return
	}
	if open {
		m.TradingDay.Set(1)
		return
	}
	m.TradingDay.Set(0)
}

// Pinger is implemented by ledger backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	LedgerBackend   string    `json:"ledger_backend"`
	LedgerOK        bool      `json:"ledger_ok"`
	RedisEnabled    bool      `json:"redis_enabled"`
	RedisConnected  bool      `json:"redis_connected"`
	LastCycleAt     time.Time `json:"last_cycle_at"`
	LastCycleEvents int       `json:"last_cycle_events"`

	upstreamState func() string

	// Liveness probe results
	LedgerLatencyMs float64   `json:"ledger_latency_ms"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(ledgerBackend string) *HealthStatus {
	return &HealthStatus{
		LedgerBackend: ledgerBackend,
		StartedAt:     time.Now(),
	}
}

func (h *HealthStatus) SetLedgerOK(v bool) {
	h.mu.Lock()
	h.LedgerOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

// SetLastCycle records when the last monitor cycle finished and how many events it emitted.
func (h *HealthStatus) SetLastCycle(t time.Time, events int) {
	h.mu.Lock()
	h.LastCycleAt = t
	h.LastCycleEvents = events
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckLedger pings the ledger store and records latency + health.
func (h *HealthStatus) CheckLedger(ctx context.Context, l Pinger) {
	start := time.Now()
	err := l.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.LedgerOK = err == nil
	h.LedgerLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// SetUpstreamState registers a reader for the market-data circuit breaker
// state ("closed", "open", "half-open"), reported on /healthz.
func (h *HealthStatus) SetUpstreamState(state func() string) {
	h.mu.Lock()
	h.upstreamState = state
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either argument may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, l Pinger, rdb *goredis.Client, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if l != nil {
			h.CheckLedger(probeCtx, l)
		}
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
	}
	probe()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if h.RedisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
	}
	upstream := ""
	if h.upstreamState != nil {
		upstream = h.upstreamState()
		if upstream == "open" {
			overallStatus = "degraded"
		}
	}
	if !h.LedgerOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastCycle := ""
	cycleAge := ""
	if !h.LastCycleAt.IsZero() {
		lastCycle = h.LastCycleAt.Format(time.RFC3339)
		cycleAge = time.Since(h.LastCycleAt).Round(time.Second).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LedgerBackend   string  `json:"ledger_backend"`
		LedgerOK        bool    `json:"ledger_ok"`
		LedgerLatencyMs float64 `json:"ledger_latency_ms"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		Upstream        string  `json:"upstream_breaker,omitempty"`
		LastCycleAt     string  `json:"last_cycle_at"`
		CycleAge        string  `json:"cycle_age"`
		LastCycleEvents int     `json:"last_cycle_events"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LedgerBackend:   h.LedgerBackend,
		LedgerOK:        h.LedgerOK,
		LedgerLatencyMs: h.LedgerLatencyMs,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		Upstream:        upstream,
		LastCycleAt:     lastCycle,
		CycleAge:        cycleAge,
		LastCycleEvents: h.LastCycleEvents,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. gatherer nil uses the default gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
