package kds

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/yeremiapane/bar-order-app/utils"
)

const DefaultRedisChannel = "bar-orders:changes"

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisBridge relays hub events between API instances over Redis pub/sub. Local publishes
// reach the local hub immediately and are forwarded to Redis; events from other instances
// are replayed into the local hub.
type RedisBridge struct {
	hub     *Hub
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisBridge(hub *Hub, client *redis.Client, channel string) *RedisBridge {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBridge{hub: hub, client: client, channel: channel, origin: uuid.NewString()}
}

func (b *RedisBridge) Publish(e Event) {
	if e.Type == "" {
		e.Type = EventChange
	}
	b.hub.Publish(e)

	payload, err := json.Marshal(envelope{Origin: b.origin, Event: e})
	if err != nil {
		utils.ErrorLogger.Printf("Error marshaling feed event: %v", err)
		return
	}
	if err := b.client.Publish(context.Background(), b.channel, payload).Err(); err != nil {
		utils.ErrorLogger.Printf("Error forwarding feed event to redis: %v", err)
	}
}

// Run consumes the shared channel until ctx is cancelled. The returned channel is closed
// once the subscription is confirmed, so callers (and tests) can wait for readiness.
func (b *RedisBridge) Run(ctx context.Context) <-chan struct{} {
	ready := make(chan struct{})
	pubsub := b.client.Subscribe(ctx, b.channel)

	go func() {
		defer pubsub.Close()

		if _, err := pubsub.Receive(ctx); err != nil {
			utils.ErrorLogger.Printf("Redis feed subscription failed: %v", err)
			close(ready)
			return
		}
		close(ready)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					utils.ErrorLogger.Printf("Dropping malformed feed message: %v", err)
					continue
				}
				if env.Origin == b.origin {
					continue
				}
				b.hub.Publish(env.Event)
			}
		}
	}()
	return ready
}
