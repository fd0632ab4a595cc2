package gateway

import (
	"context"
	"fmt"
	"log"

	"github.com/bytedance/sonic"
	goredis "github.com/go-redis/redis/v8"

	"stocksignal/internal/notification"
)

// DefaultChannel carries breakout batches between the monitor and the feed.
const DefaultChannel = "pub:breakouts"

// Publisher is a notification.Notifier that publishes each alert to Redis so
// a Hub in another process can broadcast it.
type Publisher struct {
	rdb     *goredis.Client
	channel string
}

// NewPublisher creates a publisher on channel (DefaultChannel when empty).
func NewPublisher(rdb *goredis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{rdb: rdb, channel: channel}
}

func (p *Publisher) Send(ctx context.Context, alert notification.Alert) error {
	payload, err := sonic.Marshal(alert)
	if err != nil {
		return fmt.Errorf("gateway: marshal alert: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("gateway: publish %s: %w", p.channel, err)
	}
	return nil
}

// PubSubRouter subscribes to the breakout channel and hands every batch to
// the hub for fan-out.
type PubSubRouter struct {
	hub     *Hub
	rdb     *goredis.Client
	channel string
}

// NewPubSubRouter creates a router for channel (DefaultChannel when empty).
func NewPubSubRouter(hub *Hub, rdb *goredis.Client, channel string) *PubSubRouter {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PubSubRouter{hub: hub, rdb: rdb, channel: channel}
}

// Run blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	log.Printf("[gateway] subscribed to %s", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var alert notification.Alert
			if err := sonic.UnmarshalString(msg.Payload, &alert); err != nil {
				log.Printf("[gateway] bad payload on %s: %v", msg.Channel, err)
				continue
			}
			if err := r.hub.Send(ctx, alert); err != nil {
				log.Printf("[gateway] broadcast: %v", err)
			}
		}
	}
}
