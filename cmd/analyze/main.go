// cmd/analyze prints the price, moving averages, trend and dividend yield for
// one stock code or exact stock name.
//
// Usage:
//
//	go run ./cmd/analyze 2330
//	go run ./cmd/analyze -json 台積電
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"stocksignal/config"
	"stocksignal/internal/logger"
	"stocksignal/internal/report"
	"stocksignal/internal/service"
)

func main() {
	log.SetFlags(0)

	asJSON := flag.Bool("json", false, "print the report as JSON")
	timeout := flag.Duration("timeout", 30*time.Second, "overall query timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: analyze [-json] <code or name>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	input := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if input == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[analyze] %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[analyze] %v", err)
	}
	// Keep stdout for the report.
	logger.InitWriter(os.Stderr, "analyze", logger.ParseLevel(cfg.LogLevel))
	cfg.TelegramToken = ""
	cfg.FeedPubSub = false

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	svc, err := service.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[analyze] init failed: %v", err)
	}
	defer svc.Close()

	a, err := svc.NewAnalyzer()
	if err != nil {
		log.Fatalf("[analyze] %v", err)
	}
	rep, err := a.Analyze(ctx, input)
	if err != nil {
		fmt.Println(report.FormatQueryError(input, err))
		os.Exit(1)
	}

	if *asJSON {
		out, err := sonic.ConfigStd.MarshalIndent(rep, "", "  ")
		if err != nil {
			log.Fatalf("[analyze] encode: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Println(report.FormatQuery(rep))
}
