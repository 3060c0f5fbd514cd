package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/metrics"
)

func newTestStreams(t *testing.T) (*StreamsClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStreamsClient(client, "test:jobs"), mr
}

func newTestConsumer(t *testing.T, sc *StreamsClient, id string, claimMinIdle time.Duration) *Consumer {
	t.Helper()
	c, err := NewConsumer(sc, ConsumerConfig{
		Group:        "workers",
		ConsumerID:   id,
		BlockTimeout: 20 * time.Millisecond,
		ClaimMinIdle: claimMinIdle,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

func TestEnqueueReadAck(t *testing.T) {
	ctx := context.Background()
	sc, _ := newTestStreams(t)
	m := metrics.New()
	producer := NewProducer(sc, ProducerConfig{}, m)
	consumer := newTestConsumer(t, sc, "w1", time.Hour)

	_, err := producer.Enqueue(ctx, Task{JobID: "job-1", JobType: domain.JobTypeERPSync, Attempt: 1})
	require.NoError(t, err)

	tasks, err := consumer.Read(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "job-1", tasks[0].JobID)
	assert.Equal(t, domain.JobTypeERPSync, tasks[0].JobType)
	assert.Equal(t, 1, tasks[0].Attempt)
	assert.False(t, tasks[0].EnqueuedAt.IsZero())

	pending, err := consumer.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	require.NoError(t, consumer.Ack(ctx, tasks[0]))
	pending, err = consumer.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)

	tasks, err = consumer.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks, "block timeout returns no tasks")
}

func TestInitializeIsIdempotent(t *testing.T) {
	sc, _ := newTestStreams(t)
	c := newTestConsumer(t, sc, "w1", time.Hour)
	assert.NoError(t, c.Initialize(context.Background()))
}

func TestReclaimIdleMessages(t *testing.T) {
	ctx := context.Background()
	sc, _ := newTestStreams(t)
	producer := NewProducer(sc, ProducerConfig{}, nil)
	dead := newTestConsumer(t, sc, "dead", time.Hour)
	live := newTestConsumer(t, sc, "live", 5*time.Millisecond)

	_, err := producer.Enqueue(ctx, Task{JobID: "job-1", JobType: domain.JobTypePricingRecalculation})
	require.NoError(t, err)

	tasks, err := dead.Read(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	time.Sleep(20 * time.Millisecond)

	tasks, err = live.Read(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1, "idle pending message is claimed by another consumer")
	assert.Equal(t, "job-1", tasks[0].JobID)
	require.NoError(t, live.Ack(ctx, tasks[0]))
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	ctx := context.Background()
	sc, mr := newTestStreams(t)
	consumer := newTestConsumer(t, sc, "w1", time.Hour)

	_, err := mr.XAdd("test:jobs", "*", []string{FieldJobType, "erp_sync"})
	require.NoError(t, err)

	tasks, err := consumer.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	pending, err := consumer.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending, "malformed message is acked")
}

func TestParseTask(t *testing.T) {
	testCases := []struct {
		name    string
		values  map[string]interface{}
		wantErr bool
	}{
		{name: "valid", values: map[string]interface{}{FieldJobID: "j", FieldJobType: "erp_sync", FieldAttempt: "2"}},
		{name: "missing job id", values: map[string]interface{}{FieldJobType: "erp_sync"}, wantErr: true},
		{name: "unknown type", values: map[string]interface{}{FieldJobID: "j", FieldJobType: "reindex"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseTask(redis.XMessage{ID: "1-0", Values: tc.values})
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrMalformedTask)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProducerRejectsEmptyJobID(t *testing.T) {
	sc, _ := newTestStreams(t)
	_, err := NewProducer(sc, ProducerConfig{}, nil).Enqueue(context.Background(), Task{})
	assert.Error(t, err)
}
