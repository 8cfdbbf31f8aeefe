package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// RedisBus publishes events onto a Redis Stream. The stream is bounded;
// Redis trims the oldest entries once maxLen is exceeded.
type RedisBus struct {
	client    *redis.Client
	streamKey string
	maxLen    int64
}

// NewRedisBus creates a bus publishing to the given stream key.
func NewRedisBus(client *redis.Client, streamKey string) (*RedisBus, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if streamKey == "" {
		return nil, fmt.Errorf("stream key cannot be empty")
	}
	return &RedisBus{
		client:    client,
		streamKey: streamKey,
		maxLen:    10000,
	}, nil
}

// Publish appends the event to the stream.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamKey,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"name":    event.Name,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBus) Close() error {
	return nil
}
