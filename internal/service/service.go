// Package service wires configuration into the runtime graph shared by the
// binaries: metrics, ledger, market data, notifiers, analyzer and monitor.
package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"stocksignal/config"
	"stocksignal/internal/analysis"
	"stocksignal/internal/cache"
	"stocksignal/internal/gateway"
	"stocksignal/internal/ledger"
	"stocksignal/internal/markethours"
	"stocksignal/internal/metrics"
	"stocksignal/internal/model"
	"stocksignal/internal/monitor"
	"stocksignal/internal/notification"
	"stocksignal/internal/provider/finmind"
)

// Service owns every long-lived dependency. Optional parts are nil when the
// configuration does not ask for them.
type Service struct {
	cfg *config.Config

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus

	Provider *finmind.Client
	Data     model.MarketData
	Ledger   ledger.Ledger
	Redis    *goredis.Client  // series cache and feed relay
	Bot      *tgbotapi.BotAPI // outbound alerts and inbound queries

	now func() time.Time
}

// New connects to every configured backend. On error nothing is left open.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	svc := &Service{
		cfg:      cfg,
		Registry: reg,
		Metrics:  m,
		Health:   metrics.NewHealthStatus(cfg.LedgerBackend),
		now:      time.Now,
	}

	if cfg.LedgerBackend == ledger.BackendFile || cfg.LedgerBackend == ledger.BackendSQLite {
		path := cfg.LedgerPath
		if cfg.LedgerBackend == ledger.BackendSQLite {
			path = cfg.SQLitePath
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("service: ledger dir: %w", err)
			}
		}
	}
	l, err := ledger.Open(ctx, cfg.Ledger())
	if err != nil {
		return nil, fmt.Errorf("service: open ledger: %w", err)
	}
	svc.Ledger = l
	svc.Health.SetLedgerOK(true)
	log.Printf("[service] ledger backend=%s", cfg.LedgerBackend)

	if cfg.SeriesCache || cfg.FeedPubSub {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			rdb.Close()
			svc.Close()
			return nil, fmt.Errorf("service: redis ping %s: %w", cfg.RedisAddr, err)
		}
		svc.Redis = rdb
		svc.Health.SetRedisEnabled(true)
		log.Printf("[service] redis connected at %s", cfg.RedisAddr)
	}

	svc.Provider = finmind.New(finmind.Config{
		BaseURL: cfg.FinMindBaseURL,
		Token:   cfg.FinMindToken,
		Timeout: cfg.HTTPTimeout,
	}, m)
	svc.Data = svc.Provider
	svc.Health.SetUpstreamState(func() string { return svc.Provider.Breaker().CurrentState().String() })
	if cfg.SeriesCache {
		svc.Data = cache.New(svc.Provider, svc.Redis, cache.Options{Now: svc.clock}, m)
	}

	if cfg.TelegramToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("service: telegram: %w", err)
		}
		svc.Bot = bot
		log.Printf("[service] telegram authorized as @%s", bot.Self.UserName)
	}

	return svc, nil
}

// SetClock overrides the wall clock for everything the service builds.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) clock() time.Time { return s.now() }

// Config returns the configuration the service was built from.
func (s *Service) Config() *config.Config { return s.cfg }

// NewAnalyzer builds the query path from MA_WINDOWS, YIELD_POLICY and
// QUERY_LOOKBACK_DAYS.
func (s *Service) NewAnalyzer() (*analysis.Analyzer, error) {
	windows, err := s.cfg.ParseMAWindows()
	if err != nil {
		return nil, err
	}
	yp, err := s.cfg.ParseYieldPolicy()
	if err != nil {
		return nil, err
	}
	policy, err := analysis.NewPolicy().
		WithWindows(windows...).
		WithYieldPolicy(yp).
		WithLookbackDays(s.cfg.QueryLookbackDays).
		Build()
	if err != nil {
		return nil, err
	}
	a, err := analysis.NewAnalyzer(s.Data, policy, s.Metrics)
	if err != nil {
		return nil, err
	}
	a.SetClock(s.clock)
	return a, nil
}

// NewNotifier fans out to the log and every configured sink. hub may be nil.
func (s *Service) NewNotifier(hub *gateway.Hub) *notification.Multi {
	n := notification.NewMulti(s.Metrics).Add("log", notification.NewLogNotifier())
	if s.Bot != nil && s.cfg.TelegramChatID != 0 {
		n.Add("telegram", notification.NewTelegramNotifier(s.Bot, s.cfg.TelegramChatID))
	}
	if s.cfg.WebhookURL != "" {
		n.Add("webhook", notification.NewWebhookNotifier(s.cfg.WebhookURL))
	}
	if s.cfg.FeedPubSub && s.Redis != nil {
		n.Add("pubsub", gateway.NewPublisher(s.Redis, s.cfg.FeedChannel))
	}
	if hub != nil {
		n.Add("ws", hub)
	}
	return n
}

// NewMonitor builds the breakout monitor over the configured watch list.
func (s *Service) NewMonitor(n notification.Notifier) *monitor.Monitor {
	mon := monitor.New(s.Data, s.Ledger, n, monitor.Config{
		Watch:        s.cfg.WatchList,
		Workers:      s.cfg.MonitorWorkers,
		LookbackDays: s.cfg.MonitorLookbackDays,
		FetchTimeout: s.cfg.HTTPTimeout + 5*time.Second,
	}, s.Metrics)
	mon.SetClock(s.clock)
	return mon
}

// RunOnce runs one monitor cycle and then prunes the ledger. On a
// non-trading day it does nothing unless force is set; ran reports whether a
// cycle happened.
func (s *Service) RunOnce(ctx context.Context, mon *monitor.Monitor, force bool) (res monitor.Result, ran bool, err error) {
	now := s.now()
	trading := markethours.IsTradingDay(now)
	s.Metrics.SetTradingDay(trading)
	if !trading && !force {
		log.Printf("[monitor] %s is not a trading day, skipping cycle", model.DateKey(markethours.Today(now)))
		return monitor.Result{}, false, nil
	}

	res, err = mon.RunCycle(ctx)
	if err != nil {
		return res, true, err
	}
	s.Health.SetLastCycle(s.now(), len(res.Events))

	if _, err := s.Prune(ctx); err != nil {
		log.Printf("[monitor] ledger prune failed: %v", err)
	}
	return res, true, nil
}

// Prune drops ledger records older than LEDGER_RETENTION_DAYS.
func (s *Service) Prune(ctx context.Context) (int, error) {
	cutoff := ledger.RetentionCutoff(markethours.Today(s.now()), s.cfg.LedgerRetentionDays)
	n, err := s.Ledger.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("service: prune before %s: %w", model.DateKey(cutoff), err)
	}
	s.Metrics.Pruned(n)
	if n > 0 {
		log.Printf("[service] pruned %d ledger records before %s", n, model.DateKey(cutoff))
	}
	return n, nil
}

// StartHealthChecks keeps Health current until ctx ends.
func (s *Service) StartHealthChecks(ctx context.Context, interval time.Duration) {
	s.Health.StartLivenessChecker(ctx, s.Ledger, s.Redis, interval)
}

// Close releases every backend that was opened.
func (s *Service) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("[service] redis close: %v", err)
		}
	}
	if s.Ledger != nil {
		if err := s.Ledger.Close(); err != nil {
			log.Printf("[service] ledger close: %v", err)
		}
	}
}
