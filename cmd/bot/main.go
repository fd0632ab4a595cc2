// cmd/bot serves stock queries over Telegram and HTTP, and the breakout feed
// over WebSocket.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stocksignal/config"
	"stocksignal/internal/api"
	"stocksignal/internal/bot"
	"stocksignal/internal/gateway"
	"stocksignal/internal/logger"
	"stocksignal/internal/metrics"
	"stocksignal/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[bot] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[bot] %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[bot] %v", err)
	}
	logger.Init("bot", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[bot] shutting down...")
		cancel()
	}()

	svc, err := service.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[bot] init failed: %v", err)
	}
	defer svc.Close()
	svc.StartHealthChecks(ctx, 15*time.Second)

	analyzer, err := svc.NewAnalyzer()
	if err != nil {
		log.Fatalf("[bot] analyzer: %v", err)
	}

	hub := gateway.NewHub(50, svc.Metrics)
	var wg sync.WaitGroup
	if cfg.FeedPubSub && svc.Redis != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gateway.NewPubSubRouter(hub, svc.Redis, cfg.FeedChannel).Run(ctx)
		}()
	}

	if svc.Bot != nil {
		b := bot.New(svc.Bot, analyzer, 4, cfg.HTTPTimeout*2)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Run(ctx); err != nil {
				log.Printf("[bot] telegram loop: %v", err)
			}
		}()
		log.Printf("[bot] telegram queries enabled")
	} else {
		log.Printf("[bot] TELEGRAM_TOKEN not set, HTTP only")
	}

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, svc.Health, svc.Registry)
	metricsSrv.Start()

	router := api.NewRouter(api.Deps{
		Analyzer:        analyzer,
		Ledger:          svc.Ledger,
		Hub:             hub,
		AdminTOTPSecret: cfg.AdminTOTPSecret,
		RetentionDays:   cfg.LedgerRetentionDays,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[bot] http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[bot] http server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	wg.Wait()
	log.Println("[bot] stopped")
}
