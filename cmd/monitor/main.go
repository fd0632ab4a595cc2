// cmd/monitor checks the watch list for fresh MA60 breakouts and sends one
// batched alert per cycle.
//
// Usage:
//
//	go run ./cmd/monitor              # one cycle, for cron or systemd timers
//	go run ./cmd/monitor -every 30m   # loop until interrupted
//	go run ./cmd/monitor -force       # run even on weekends and TWSE holidays
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stocksignal/config"
	"stocksignal/internal/logger"
	"stocksignal/internal/metrics"
	"stocksignal/internal/monitor"
	"stocksignal/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	once := flag.Bool("once", true, "run a single cycle and exit")
	every := flag.Duration("every", 0, "loop with this interval (overrides -once)")
	force := flag.Bool("force", false, "run on non-trading days too")
	serveMetrics := flag.Bool("metrics", false, "serve /metrics and /healthz while running")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[monitor] %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[monitor] %v", err)
	}
	logger.Init("monitor", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[monitor] shutting down...")
		cancel()
	}()

	svc, err := service.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[monitor] init failed: %v", err)
	}
	defer svc.Close()

	if *serveMetrics {
		srv := metrics.NewServer(cfg.MetricsAddr, svc.Health, svc.Registry)
		srv.Start()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			srv.Stop(sctx)
		}()
		svc.StartHealthChecks(ctx, 15*time.Second)
	}

	notifier := svc.NewNotifier(nil)
	mon := svc.NewMonitor(notifier)
	log.Printf("[monitor] watching %d symbols %v, %d sinks", len(mon.Watch()), mon.Watch(), notifier.Len())

	if *every <= 0 && *once {
		if _, _, err := runCycle(ctx, svc, mon, *force); err != nil {
			svc.Close()
			os.Exit(1)
		}
		return
	}

	interval := *every
	if interval <= 0 {
		interval = cfg.MonitorInterval
	}
	log.Printf("[monitor] looping every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		runCycle(ctx, svc, mon, *force)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runCycle(ctx context.Context, svc *service.Service, mon *monitor.Monitor, force bool) (monitor.Result, bool, error) {
	res, ran, err := svc.RunOnce(ctx, mon, force)
	if err != nil {
		log.Printf("[monitor] cycle aborted: %v", err)
		return res, ran, err
	}
	if ran {
		log.Printf("[monitor] cycle %s: %d breakouts, %d skipped, %d errors",
			res.CycleID, len(res.Events), len(res.Skipped), len(res.Errors))
	}
	return res, ran, nil
}
