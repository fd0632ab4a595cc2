package cache

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stocksignal/internal/model"
)

type countingProvider struct {
	prices int
	divs   int
}

func (p *countingProvider) FetchPrices(context.Context, string, time.Time) (model.PriceSeries, error) {
	p.prices++
	return model.PriceSeries{
		{Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Close: decimal.RequireFromString("1000.5")},
	}, nil
}

func (p *countingProvider) FetchDividends(context.Context, string, time.Time) (model.DividendSeries, error) {
	p.divs++
	return model.DividendSeries{}, nil
}

func (p *countingProvider) Resolve(_ context.Context, s string) (string, error) { return s, nil }

func TestKey_ChangesWithTaipeiDay(t *testing.T) {
	now := time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC) // 23:00 Taipei
	c := New(nil, nil, Options{Now: func() time.Time { return now }}, nil)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	k1 := c.Key("price", "2330", start)
	now = now.Add(2 * time.Hour) // 01:00 next day in Taipei
	k2 := c.Key("price", "2330", start)

	if k1 == k2 {
		t.Fatalf("key did not roll over at Taipei midnight: %s", k1)
	}
	if k1 != "stocksignal:series:2025-03-03:price:2330:2025-01-01" {
		t.Errorf("k1 = %s", k1)
	}
}

func TestReadThrough(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	prefix := "stocksignal:test:" + uuid.NewString() + ":"
	p := &countingProvider{}
	c := New(p, rdb, Options{Prefix: prefix, TTL: time.Minute}, nil)
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	defer rdb.Del(ctx, c.Key("price", "2330", start), c.Key("dividend", "2330", start))

	for i := 0; i < 3; i++ {
		s, err := c.FetchPrices(ctx, "2330", start)
		if err != nil {
			t.Fatalf("FetchPrices: %v", err)
		}
		if len(s) != 1 || s[0].Close.String() != "1000.5" {
			t.Fatalf("series = %+v", s)
		}
	}
	if p.prices != 1 {
		t.Errorf("upstream price fetches = %d, want 1", p.prices)
	}

	c.FetchDividends(ctx, "2330", start)
	c.FetchDividends(ctx, "2330", start)
	if p.divs != 1 {
		t.Errorf("upstream dividend fetches = %d, want 1", p.divs)
	}
}

func TestDiscardsUnorderedCachedSeries(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	p := &countingProvider{}
	c := New(p, rdb, Options{Prefix: "stocksignal:test:" + uuid.NewString() + ":", TTL: time.Minute}, nil)
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	key := c.Key("price", "2330", start)
	defer rdb.Del(ctx, key)

	bad := `[{"date":"2025-03-04T00:00:00Z","close":"1"},{"date":"2025-03-03T00:00:00Z","close":"2"}]`
	if err := rdb.Set(ctx, key, bad, time.Minute).Err(); err != nil {
		t.Fatal(err)
	}
	s, err := c.FetchPrices(ctx, "2330", start)
	if err != nil {
		t.Fatalf("FetchPrices: %v", err)
	}
	if p.prices != 1 || len(s) != 1 || s[0].Close.String() != "1000.5" {
		t.Fatalf("upstream fetches = %d, series = %+v", p.prices, s)
	}
}
