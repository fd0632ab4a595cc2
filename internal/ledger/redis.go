package ledger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"stocksignal/internal/model"
)

const defaultRedisPrefix = "stocksignal:notified:"

// RedisConfig configures the Redis ledger.
type RedisConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string        // key prefix, defaults to "stocksignal:notified:"
	TTL      time.Duration // optional expiry per record; 0 keeps records until pruned
}

// Redis keeps one key per record. SETNX gives an atomic claim shared by every
// monitor instance pointed at the same server.
type Redis struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] ledger connected to %s", cfg.Addr)
	return NewRedisFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *goredis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(rec model.NotificationRecord) string {
	return r.prefix + rec.Key()
}

func (r *Redis) Contains(ctx context.Context, rec model.NotificationRecord) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(rec)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Record(ctx context.Context, rec model.NotificationRecord) error {
	_, err := r.Claim(ctx, rec)
	return err
}

func (r *Redis) Claim(ctx context.Context, rec model.NotificationRecord) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(rec), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) Prune(ctx context.Context, before time.Time) (int, error) {
	keys, err := r.scan(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := model.Day(before)
	var stale []string
	for _, k := range keys {
		rec, err := model.ParseRecordKey(strings.TrimPrefix(k, r.prefix))
		if err != nil {
			continue
		}
		if rec.Date.Before(cutoff) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}

func (r *Redis) List(ctx context.Context) ([]model.NotificationRecord, error) {
	keys, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]model.NotificationRecord, 0, len(keys))
	for _, k := range keys {
		rec, err := model.ParseRecordKey(strings.TrimPrefix(k, r.prefix))
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	sortRecords(recs)
	return recs, nil
}

func (r *Redis) scan(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
