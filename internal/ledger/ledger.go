// Package ledger persists which (date, symbol) pairs have already been notified.
//
// Membership only grows during normal operation. Prune is the one way to drop
// records and is meant for housekeeping outside the monitor's hot path.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stocksignal/internal/model"
)

// Ledger is a durable set of notification records.
type Ledger interface {
	// Contains reports whether rec has been recorded.
	Contains(ctx context.Context, rec model.NotificationRecord) (bool, error)

	// Record adds rec. Recording an existing key is a no-op.
	Record(ctx context.Context, rec model.NotificationRecord) error

	// Claim atomically adds rec and reports whether this call inserted it.
	// Across processes sharing the same store at most one caller gets true.
	Claim(ctx context.Context, rec model.NotificationRecord) (bool, error)

	// Prune removes records dated strictly before the given day and returns
	// the number removed.
	Prune(ctx context.Context, before time.Time) (int, error)

	// List returns every record ordered by date, then symbol.
	List(ctx context.Context) ([]model.NotificationRecord, error)

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend string

	FilePath   string // file backend, e.g. "data/notified_log.txt"
	SQLitePath string // sqlite backend, e.g. "data/ledger.db"

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	PostgresDSN string
}

// Open creates the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Ledger, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return OpenFile(cfg.FilePath)
	case BackendSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case BackendRedis:
		return OpenRedis(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", cfg.Backend)
	}
}

// RetentionCutoff returns the first day kept when pruning with the given
// retention in days, relative to today.
func RetentionCutoff(today time.Time, days int) time.Time {
	return model.Day(today).AddDate(0, 0, -days)
}

func sortRecords(recs []model.NotificationRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.Before(recs[j].Date)
		}
		return recs[i].Symbol < recs[j].Symbol
	})
}
