package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/queue"
	"github.com/timmy/lenscat/internal/service"
)

type fakeExecutor struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func (e *fakeExecutor) Execute(_ context.Context, jobID, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, jobID)
	return e.fail[jobID]
}

func (e *fakeExecutor) Seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

func newQueue(t *testing.T) (*queue.Producer, *queue.Consumer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sc := queue.NewStreamsClient(client, "test:jobs")
	consumer, err := queue.NewConsumer(sc, queue.ConsumerConfig{
		Group:        "workers",
		ConsumerID:   "w1",
		BlockTimeout: 20 * time.Millisecond,
		ClaimMinIdle: time.Hour,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, consumer.Initialize(context.Background()))
	return queue.NewProducer(sc, queue.ProducerConfig{}, nil), consumer
}

func TestWorkerAcksOnlyFinishedTasks(t *testing.T) {
	producer, consumer := newQueue(t)
	exec := &fakeExecutor{fail: map[string]error{"job-b": errors.New("db down")}}

	for _, id := range []string{"job-a", "job-b", "job-c"} {
		_, err := producer.Enqueue(context.Background(), queue.Task{JobID: id, JobType: domain.JobTypeERPSync, Attempt: 1})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := New("w1", consumer, exec, 10*time.Millisecond)
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(exec.Seen()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"job-a", "job-b", "job-c"}, exec.Seen())
	assert.EqualValues(t, 2, w.Processed())
	assert.EqualValues(t, 1, w.Unfinished())

	pending, err := consumer.PendingCount(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending, "the failed task stays pending for reclaim")
}

func TestPoolRequiresWorkers(t *testing.T) {
	assert.Error(t, NewPool().Run(context.Background()))
}

type countingRecoverer struct {
	mu    sync.Mutex
	calls int
	stats service.RecoveryStats
	err   error
}

func (r *countingRecoverer) RecoverStale(context.Context) (service.RecoveryStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.stats, r.err
}

func (r *countingRecoverer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSweeperRunsImmediatelyAndOnTick(t *testing.T) {
	rec := &countingRecoverer{stats: service.RecoveryStats{Requeued: 1}}
	s := NewSweeper(rec, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return rec.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestSweepSurvivesErrors(t *testing.T) {
	rec := &countingRecoverer{err: errors.New("db down")}
	stats := NewSweeper(rec, time.Hour).Sweep(context.Background())
	assert.Equal(t, service.RecoveryStats{}, stats)
	assert.Equal(t, 1, rec.Calls())
}
