// Package queue carries job task messages over a Redis Stream with a consumer group.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/lenscat/internal/config"
)

// Default connection timeout for Redis operations.
const defaultConnectionTimeout = 2 * time.Second

// Connect opens a Redis client and verifies it with PING.
// Parameters:
//   - ctx: context for the initial ping.
//   - cfg: redis connection settings.
// Returns:
//   - *redis.Client: connected client.
//   - error: non-nil if Redis is unreachable.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, defaultConnectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// StreamsClient wraps a Redis client bound to one job stream.
type StreamsClient struct {
	client *redis.Client
	stream string
}

// NewStreamsClient creates a StreamsClient for stream.
func NewStreamsClient(client *redis.Client, stream string) *StreamsClient {
	if stream == "" {
		stream = "lenscat:jobs"
	}
	return &StreamsClient{client: client, stream: stream}
}

// Stream returns the stream key.
func (c *StreamsClient) Stream() string {
	return c.stream
}

// Ping checks if Redis is reachable.
func (c *StreamsClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (c *StreamsClient) Close() error {
	return c.client.Close()
}

// CreateConsumerGroup creates the consumer group if it doesn't exist.
func (c *StreamsClient) CreateConsumerGroup(ctx context.Context, group string) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Len returns the number of entries in the stream.
func (c *StreamsClient) Len(ctx context.Context) (int64, error) {
	return c.client.XLen(ctx, c.stream).Result()
}
