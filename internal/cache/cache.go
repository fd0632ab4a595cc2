// Package cache wraps the market-data ports with a Redis read-through cache.
//
// Keys embed the Taipei calendar date, so a series cached today is never
// served tomorrow even if its TTL has not run out.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bytedance/sonic"
	goredis "github.com/go-redis/redis/v8"

	"stocksignal/internal/markethours"
	"stocksignal/internal/metrics"
	"stocksignal/internal/model"
)

const (
	defaultPrefix = "stocksignal:series:"
	defaultTTL    = 24 * time.Hour
)

// Options configures the cache.
type Options struct {
	Prefix string           // key prefix, defaults to "stocksignal:series:"
	TTL    time.Duration    // defaults to 24h
	Now    func() time.Time // clock, defaults to time.Now
}

// Cache is a model.MarketData that serves repeated same-day fetches from Redis.
type Cache struct {
	next    model.MarketData
	rdb     *goredis.Client
	prefix  string
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

var _ model.MarketData = (*Cache)(nil)

// New wraps next. m may be nil.
func New(next model.MarketData, rdb *goredis.Client, opts Options, m *metrics.Metrics) *Cache {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		next:    next,
		rdb:     rdb,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		now:     opts.Now,
		metrics: m,
	}
}

// Key returns the cache key for one fetch made on the current day.
func (c *Cache) Key(kind, symbol string, start time.Time) string {
	return fmt.Sprintf("%s%s:%s:%s:%s", c.prefix,
		model.DateKey(markethours.Today(c.now())), kind, symbol, model.DateKey(start))
}

func (c *Cache) FetchPrices(ctx context.Context, symbol string, start time.Time) (model.PriceSeries, error) {
	key := c.Key("price", symbol, start)
	var series model.PriceSeries
	if c.get(ctx, key, &series) {
		err := series.Validate()
		if err == nil {
			return series, nil
		}
		log.Printf("[cache] discarding %s: %v", key, err)
	}
	series, err := c.next.FetchPrices(ctx, symbol, start)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, series)
	return series, nil
}

func (c *Cache) FetchDividends(ctx context.Context, symbol string, start time.Time) (model.DividendSeries, error) {
	key := c.Key("dividend", symbol, start)
	var divs model.DividendSeries
	if c.get(ctx, key, &divs) {
		return divs, nil
	}
	divs, err := c.next.FetchDividends(ctx, symbol, start)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, divs)
	return divs, nil
}

// Resolve is not cached; the provider keeps its own instrument index.
func (c *Cache) Resolve(ctx context.Context, input string) (string, error) {
	return c.next.Resolve(ctx, input)
}

// get reports a hit. Redis errors are logged and treated as a miss.
func (c *Cache) get(ctx context.Context, key string, out any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			log.Printf("[cache] get %s: %v", key, err)
		}
		c.metrics.CacheLookup(false)
		return false
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		log.Printf("[cache] decode %s: %v", key, err)
		c.metrics.CacheLookup(false)
		return false
	}
	c.metrics.CacheLookup(true)
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		log.Printf("[cache] encode %s: %v", key, err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Printf("[cache] set %s: %v", key, err)
	}
}
