package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stocksignal/internal/dividend"
	"stocksignal/internal/indicator"
	"stocksignal/internal/ledger"
	"stocksignal/internal/monitor"
)

// DefaultWatchList is used when neither WATCH_LIST nor WATCH_LIST_FILE is set.
var DefaultWatchList = []string{"2330", "2317", "2454"}

// Config holds all application configuration loaded from the environment.
type Config struct {
	// Market data
	FinMindToken   string
	FinMindBaseURL string
	HTTPTimeout    time.Duration
	SeriesCache    bool // Redis read-through cache for price/dividend series

	// Ledger
	LedgerBackend       string // file | sqlite | redis | postgres
	LedgerPath          string
	SQLitePath          string
	LedgerRetentionDays int

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string
	HTTPAddr      string
	MetricsAddr   string

	// Delivery
	TelegramToken  string
	TelegramChatID int64
	WebhookURL     string
	FeedPubSub     bool // relay breakout batches over Redis Pub/Sub to the WS feed
	FeedChannel    string

	// Monitor
	WatchList           []string
	MonitorWorkers      int
	MonitorInterval     time.Duration
	MonitorLookbackDays int

	// Query path (comma-separated windows, e.g. "5,20,60"; yield "count:4" or "years:3")
	MAWindows         string
	YieldPolicy       string
	QueryLookbackDays int

	AdminTOTPSecret string
	LogLevel        string
}

// Load reads .env (if present) and then the environment, with defaults.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	chatID, err := getInt64("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}

	c := &Config{
		FinMindToken:   getEnv("FINMIND_TOKEN", ""),
		FinMindBaseURL: getEnv("FINMIND_BASE_URL", "https://api.finmindtrade.com/api/v4/data"),
		SeriesCache:    getBool("SERIES_CACHE", false),

		LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", ledger.BackendFile)),
		LedgerPath:    getEnv("LEDGER_PATH", "data/notified_log.txt"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/ledger.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: chatID,
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		FeedPubSub:     getBool("FEED_PUBSUB", false),
		FeedChannel:    getEnv("FEED_CHANNEL", "pub:breakouts"),

		MAWindows:   getEnv("MA_WINDOWS", "5,20,60"),
		YieldPolicy: getEnv("YIELD_POLICY", "count:4"),

		AdminTOTPSecret: getEnv("ADMIN_TOTP_SECRET", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"REDIS_DB", 0, &c.RedisDB},
		{"LEDGER_RETENTION_DAYS", 7, &c.LedgerRetentionDays},
		{"MONITOR_WORKERS", 4, &c.MonitorWorkers},
		{"MONITOR_LOOKBACK_DAYS", 120, &c.MonitorLookbackDays},
		{"QUERY_LOOKBACK_DAYS", 150, &c.QueryLookbackDays},
	}
	for _, it := range ints {
		v, err := getInt(it.key, it.fallback)
		if err != nil {
			return nil, err
		}
		*it.dst = v
	}

	durs := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"HTTP_TIMEOUT", 10 * time.Second, &c.HTTPTimeout},
		{"MONITOR_INTERVAL", 30 * time.Minute, &c.MonitorInterval},
	}
	for _, it := range durs {
		v, err := getDuration(it.key, it.fallback)
		if err != nil {
			return nil, err
		}
		*it.dst = v
	}

	c.WatchList, err = LoadWatchList(os.Getenv("WATCH_LIST"), os.Getenv("WATCH_LIST_FILE"))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error
	switch c.LedgerBackend {
	case ledger.BackendFile:
		if c.LedgerPath == "" {
			errs = append(errs, errors.New("LEDGER_PATH is empty"))
		}
	case ledger.BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is empty"))
		}
	case ledger.BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis ledger needs REDIS_ADDR"))
		}
	case ledger.BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres ledger needs POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend))
	}
	if (c.SeriesCache || c.FeedPubSub) && c.RedisAddr == "" {
		errs = append(errs, errors.New("SERIES_CACHE and FEED_PUBSUB need REDIS_ADDR"))
	}
	if c.TelegramChatID != 0 && c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID set without TELEGRAM_TOKEN"))
	}
	if c.MonitorWorkers < 1 {
		errs = append(errs, fmt.Errorf("MONITOR_WORKERS must be >= 1, got %d", c.MonitorWorkers))
	}
	if c.LedgerRetentionDays < 1 {
		errs = append(errs, fmt.Errorf("LEDGER_RETENTION_DAYS must be >= 1, got %d", c.LedgerRetentionDays))
	}
	if need := monitor.MinLookbackDays(); c.MonitorLookbackDays < need {
		errs = append(errs, fmt.Errorf("MONITOR_LOOKBACK_DAYS must be >= %d to hold %d trading days, got %d",
			need, monitor.MinPoints, c.MonitorLookbackDays))
	}
	if len(c.WatchList) == 0 {
		errs = append(errs, errors.New("watch list is empty"))
	}
	if _, err := c.ParseMAWindows(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ParseYieldPolicy(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseMAWindows parses MAWindows into window lengths.
func (c *Config) ParseMAWindows() ([]int, error) {
	parts := strings.Split(c.MAWindows, ",")
	windows := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("MA_WINDOWS: invalid window %q", p)
		}
		windows = append(windows, n)
	}
	if err := indicator.ValidateWindows(windows); err != nil {
		return nil, fmt.Errorf("MA_WINDOWS: %w", err)
	}
	return windows, nil
}

// ParseYieldPolicy parses YieldPolicy.
func (c *Config) ParseYieldPolicy() (dividend.YieldPolicy, error) {
	p, err := dividend.ParsePolicy(c.YieldPolicy)
	if err != nil {
		return dividend.YieldPolicy{}, fmt.Errorf("YIELD_POLICY: %w", err)
	}
	return p, nil
}

// Ledger returns the ledger backend settings.
func (c *Config) Ledger() ledger.Config {
	return ledger.Config{
		Backend:       c.LedgerBackend,
		FilePath:      c.LedgerPath,
		SQLitePath:    c.SQLitePath,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		PostgresDSN:   c.PostgresDSN,
	}
}

type watchFile struct {
	Symbols []string `yaml:"symbols"`
}

// LoadWatchList builds the watch list from a comma-separated value, else from
// a YAML file with a top-level "symbols" list, else the defaults. Blank
// entries are dropped and duplicates collapsed, keeping first-seen order.
func LoadWatchList(list, file string) ([]string, error) {
	var raw []string
	switch {
	case strings.TrimSpace(list) != "":
		raw = strings.Split(list, ",")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("config: watch list file: %w", err)
		}
		var wf watchFile
		if err := yaml.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("config: watch list file %s: %w", file, err)
		}
		raw = wf.Symbols
	default:
		raw = DefaultWatchList
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) < len(raw) {
		log.Printf("[config] watch list: %d entries after removing blanks/duplicates from %d", len(out), len(raw))
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid integer %q", key, v)
	}
	return n, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid integer %q", key, v)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] %s: invalid bool %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
