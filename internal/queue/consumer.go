package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/metrics"
)

const (
	// Default consumer group name.
	defaultConsumerGroup = "lenscat-workers"

	// Default block timeout for reading from the stream.
	defaultBlockTimeout = 5 * time.Second

	// Default minimum idle time before claiming pending messages.
	defaultClaimMinIdle = 10 * time.Minute

	// Maximum pending messages to check at once.
	maxPendingCheck = 100
)

// Consumer reads tasks from the job stream as one member of a consumer group.
type Consumer struct {
	client       *StreamsClient
	group        string
	consumerID   string
	blockTimeout time.Duration
	batchSize    int64
	claimMinIdle time.Duration
	metrics      *metrics.JobMetrics
}

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Group        string        // consumer group name
	ConsumerID   string        // unique consumer identifier, usually the worker id
	BlockTimeout time.Duration // block timeout for reads (0 = default)
	BatchSize    int64         // messages per read (0 = 1)
	ClaimMinIdle time.Duration // min idle time before claiming (0 = default)
}

// NewConsumer creates a new task consumer.
func NewConsumer(client *StreamsClient, cfg ConsumerConfig, m *metrics.JobMetrics) (*Consumer, error) {
	if cfg.ConsumerID == "" {
		return nil, errors.New("consumer ID is required")
	}

	group := cfg.Group
	if group == "" {
		group = defaultConsumerGroup
	}
	block := cfg.BlockTimeout
	if block <= 0 {
		block = defaultBlockTimeout
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 1
	}
	claimMinIdle := cfg.ClaimMinIdle
	if claimMinIdle <= 0 {
		claimMinIdle = defaultClaimMinIdle
	}

	return &Consumer{
		client:       client,
		group:        group,
		consumerID:   cfg.ConsumerID,
		blockTimeout: block,
		batchSize:    batch,
		claimMinIdle: claimMinIdle,
		metrics:      m,
	}, nil
}

// Initialize creates the consumer group.
func (c *Consumer) Initialize(ctx context.Context) error {
	return c.client.CreateConsumerGroup(ctx, c.group)
}

// Read returns tasks for this consumer. Messages left pending by a dead
// consumer for longer than the claim threshold are taken over first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []Task: decoded tasks, empty when the block timeout elapsed.
//   - error: non-nil if the stream read fails.
func (c *Consumer) Read(ctx context.Context) ([]Task, error) {
	if reclaimed := c.reclaimPending(ctx); len(reclaimed) > 0 {
		return reclaimed, nil
	}

	streams, err := c.client.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumerID,
		Streams:  []string{c.client.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream %s: %w", c.client.stream, err)
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return c.decode(ctx, msgs), nil
}

// Ack acknowledges a processed task.
func (c *Consumer) Ack(ctx context.Context, task Task) error {
	if err := c.client.client.XAck(ctx, c.client.stream, c.group, task.MessageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", task.MessageID, err)
	}
	c.metrics.Acked()
	return nil
}

// PendingCount returns the number of delivered but unacknowledged messages.
func (c *Consumer) PendingCount(ctx context.Context) (int64, error) {
	pending, err := c.client.client.XPending(ctx, c.client.stream, c.group).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return pending.Count, nil
}

// reclaimPending claims messages idle longer than claimMinIdle.
func (c *Consumer) reclaimPending(ctx context.Context) []Task {
	pending, err := c.client.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.client.stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  maxPendingCheck,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.CtxWarn(ctx, "Failed to list pending messages: %v", err)
		}
		return nil
	}

	var ids []string
	for _, entry := range pending {
		if entry.Idle >= c.claimMinIdle && int64(len(ids)) < c.batchSize {
			ids = append(ids, entry.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	claimed, err := c.client.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.client.stream,
		Group:    c.group,
		Consumer: c.consumerID,
		MinIdle:  c.claimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		logger.CtxWarn(ctx, "Failed to claim pending messages: %v", err)
		return nil
	}

	c.metrics.Reclaimed(len(claimed))
	return c.decode(ctx, claimed)
}

// decode parses messages and acknowledges the ones that cannot be parsed,
// so they do not stay pending forever.
func (c *Consumer) decode(ctx context.Context, msgs []redis.XMessage) []Task {
	tasks := make([]Task, 0, len(msgs))
	for _, msg := range msgs {
		task, err := parseTask(msg)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Dropping malformed task")
			if ackErr := c.client.client.XAck(ctx, c.client.stream, c.group, msg.ID).Err(); ackErr != nil {
				logger.CtxWarn(ctx, "Failed to ack malformed message %s: %v", msg.ID, ackErr)
			}
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// ConsumerID returns the consumer ID.
func (c *Consumer) ConsumerID() string {
	return c.consumerID
}
