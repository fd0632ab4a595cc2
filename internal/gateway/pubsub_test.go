package gateway

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

func TestPublisherToRouter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	channel := "stocksignal:test:" + uuid.NewString()
	hub := NewHub(10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewPubSubRouter(hub, rdb, channel).Run(ctx)

	pub := NewPublisher(rdb, channel)
	deadline := time.Now().Add(3 * time.Second)
	// The subscription is established asynchronously; republish until seen.
	for hub.Seq() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("batch never reached the hub")
		}
		if err := pub.Send(ctx, testAlert("2330")); err != nil {
			t.Fatalf("publish: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	backlog := hub.Since(0)
	if len(backlog) == 0 {
		t.Fatal("hub kept no replay entry")
	}
}
