package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"stocksignal/internal/dividend"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FINMIND_TOKEN", "LEDGER_BACKEND", "LEDGER_PATH", "MONITOR_WORKERS",
		"YIELD_POLICY", "MA_WINDOWS", "LEDGER_RETENTION_DAYS", "WATCH_LIST",
		"WATCH_LIST_FILE", "MONITOR_INTERVAL", "TELEGRAM_CHAT_ID", "SERIES_CACHE",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.LedgerBackend != "file" || c.LedgerPath != "data/notified_log.txt" {
		t.Errorf("ledger = %s %s", c.LedgerBackend, c.LedgerPath)
	}
	if c.MonitorWorkers != 4 || c.LedgerRetentionDays != 7 {
		t.Errorf("workers=%d retention=%d", c.MonitorWorkers, c.LedgerRetentionDays)
	}
	if c.MonitorInterval != 30*time.Minute {
		t.Errorf("interval = %v", c.MonitorInterval)
	}
	if !reflect.DeepEqual(c.WatchList, DefaultWatchList) {
		t.Errorf("watch = %v", c.WatchList)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	w, _ := c.ParseMAWindows()
	if !reflect.DeepEqual(w, []int{5, 20, 60}) {
		t.Errorf("windows = %v", w)
	}
	p, _ := c.ParseYieldPolicy()
	if p != dividend.TrailingCount(4) {
		t.Errorf("policy = %v", p)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("MONITOR_WORKERS")
	os.Unsetenv("YIELD_POLICY")
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("MONITOR_WORKERS=8\nYIELD_POLICY=years:3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() {
		os.Unsetenv("MONITOR_WORKERS")
		os.Unsetenv("YIELD_POLICY")
	})

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.MonitorWorkers != 8 {
		t.Errorf("workers = %d", c.MonitorWorkers)
	}
	if p, _ := c.ParseYieldPolicy(); p != dividend.TrailingYears(3) {
		t.Errorf("policy = %v", p)
	}
}

func TestLoadInvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONITOR_WORKERS", "four")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "MONITOR_WORKERS") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			LedgerBackend:       "file",
			LedgerPath:          "x.txt",
			MonitorWorkers:      1,
			MonitorLookbackDays: 120,
			LedgerRetentionDays: 7,
			WatchList:           []string{"2330"},
			MAWindows:           "5,20,60",
			YieldPolicy:         "count:4",
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.LedgerBackend = "mongo" }, "LEDGER_BACKEND"},
		{"postgres without dsn", func(c *Config) { c.LedgerBackend = "postgres" }, "POSTGRES_DSN"},
		{"zero workers", func(c *Config) { c.MonitorWorkers = 0 }, "MONITOR_WORKERS"},
		{"short lookback", func(c *Config) { c.MonitorLookbackDays = 70 }, "MONITOR_LOOKBACK_DAYS"},
		{"empty watch", func(c *Config) { c.WatchList = nil }, "watch list"},
		{"bad windows", func(c *Config) { c.MAWindows = "5,x" }, "MA_WINDOWS"},
		{"bad policy", func(c *Config) { c.YieldPolicy = "forever" }, "YIELD_POLICY"},
		{"chat without token", func(c *Config) { c.TelegramChatID = 42 }, "TELEGRAM_TOKEN"},
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadWatchList(t *testing.T) {
	got, err := LoadWatchList(" 2330, 2317,,2330 ,0050", "")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"2330", "2317", "0050"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	path := filepath.Join(t.TempDir(), "watch.yaml")
	yml := "symbols:\n  - \"2454\"\n  - \"2330\"\n  - \"2454\"\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = LoadWatchList("", path)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"2454", "2330"}; !reflect.DeepEqual(got, want) {
		t.Errorf("file: got %v, want %v", got, want)
	}

	if _, err := LoadWatchList("", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
