package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/lenscat/internal/metrics"
)

// Default max stream length to prevent unbounded growth.
const defaultMaxStreamLen = 10000

// Producer appends tasks to the job stream.
type Producer struct {
	client       *StreamsClient
	maxStreamLen int64
	metrics      *metrics.JobMetrics
}

// ProducerConfig holds configuration for the Producer.
type ProducerConfig struct {
	MaxStreamLen int64 // approximate trim length, 0 uses the default
}

// NewProducer creates a new task producer.
func NewProducer(client *StreamsClient, cfg ProducerConfig, m *metrics.JobMetrics) *Producer {
	maxLen := cfg.MaxStreamLen
	if maxLen <= 0 {
		maxLen = defaultMaxStreamLen
	}
	return &Producer{client: client, maxStreamLen: maxLen, metrics: m}
}

// Enqueue appends a task and returns its stream message id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - task: task to publish; MessageID is ignored.
// Returns:
//   - string: stream message id.
//   - error: non-nil if XADD fails.
func (p *Producer) Enqueue(ctx context.Context, task Task) (string, error) {
	if task.JobID == "" {
		return "", errors.New("task has no job id")
	}

	id, err := p.client.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.client.stream,
		MaxLen: p.maxStreamLen,
		Approx: true,
		Values: task.values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s to stream %s: %w", task.JobID, p.client.stream, err)
	}

	p.metrics.Enqueued(string(task.JobType))
	return id, nil
}
