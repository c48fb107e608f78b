package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"live-shopping-platform/internal/metrics"

	"github.com/go-redis/redis/v8"
)

const relayChannel = "live-session-events"

// RedisRelay implements Relay using Redis pub/sub. Redis preserves publish
// order per channel, which keeps the per-session ordering guarantee intact
// across instances.
type RedisRelay struct {
	client *redis.Client
}

// NewRedisRelay creates a new Redis-backed relay
func NewRedisRelay(client *redis.Client) (*RedisRelay, error) {
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisRelay{client: client}, nil
}

// Publish sends an envelope to the relay channel
func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, relayChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish relay envelope: %w", err)
	}
	metrics.RelayMessages.WithLabelValues("out").Inc()
	return nil
}

// Subscribe consumes relayed envelopes until the context is cancelled.
// Malformed messages are logged and dropped.
func (r *RedisRelay) Subscribe(ctx context.Context, handler func(Envelope)) error {
	pubsub := r.client.Subscribe(ctx, relayChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to relay channel: %w", err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Printf("Dropping malformed relay message: %v", err)
					continue
				}
				metrics.RelayMessages.WithLabelValues("in").Inc()
				handler(env)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Close releases the underlying client
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
