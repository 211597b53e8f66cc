package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelope is the message published on the redis channel
type envelope struct {
	UserID uuid.UUID         `json:"user_id"`
	Event  domain.OrderEvent `json:"event"`
}

// RedisBroker relays order events through a redis pub/sub channel so that
// every API instance delivers to the channels it holds locally.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
	ready   chan struct{}

	retryMin time.Duration
	retryMax time.Duration
}

// NewRedisBroker creates a broker publishing on channel and delivering
// received events to hub
func NewRedisBroker(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.Named("redis-broker"),
		ready:   make(chan struct{}),

		retryMin: 500 * time.Millisecond,
		retryMax: 30 * time.Second,
	}
}

// Publish sends the event to all instances, including this one. Delivery to
// local channels happens in Run.
func (b *RedisBroker) Publish(ctx context.Context, userID uuid.UUID, event domain.OrderEvent) error {
	payload, err := json.Marshal(envelope{UserID: userID, Event: event})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Ready is closed once Run's subscription is confirmed
func (b *RedisBroker) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes to the channel and feeds the hub until ctx is done. A
// subscription that cannot be established is retried with exponential
// backoff, so redis may come up after the API.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub, err := b.subscribe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer sub.Close()
	close(b.ready)

	b.logger.Info("Subscribed to order events", zap.String("channel", b.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("Discarding malformed event", zap.Error(err))
				continue
			}

			b.hub.Deliver(env.UserID, env.Event)
		}
	}
}

func (b *RedisBroker) subscribe(ctx context.Context) (*redis.PubSub, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.retryMin
	policy.MaxInterval = b.retryMax
	policy.MaxElapsedTime = 0

	var sub *redis.PubSub
	attempt := func() error {
		s := b.client.Subscribe(ctx, b.channel)
		if _, err := s.Receive(ctx); err != nil {
			s.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
		}
		sub = s
		return nil
	}

	notify := func(err error, wait time.Duration) {
		b.logger.Warn("Redis subscription failed, retrying",
			zap.String("channel", b.channel),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(attempt, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, err
	}
	return sub, nil
}
