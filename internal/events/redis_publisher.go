package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher forwards every dispatched event, JSON-encoded, to a redis
// channel for out-of-process consumers (webhook relays, SIEM forwarders).
// Publish failures are logged and dropped; the triggering operation has
// already committed by the time an event reaches this handler.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher creates a publisher for the given channel.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Register subscribes the publisher to the full event stream.
func (p *RedisPublisher) Register(d Dispatcher) {
	if p == nil || p.client == nil {
		return
	}
	SubscribeAll(d, p.Handle)
}

// Handle encodes and publishes a single event.
func (p *RedisPublisher) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal event", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		p.logger.Warn("publish event to redis",
			zap.String("event_id", event.ID),
			zap.String("channel", p.channel),
			zap.Error(err))
	}
	return nil
}
