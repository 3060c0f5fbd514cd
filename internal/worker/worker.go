// Package worker runs queue consumers that execute background jobs.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/queue"
)

// Executor runs one job to a terminal state.
// A non-nil error means the task must stay pending.
type Executor interface {
	Execute(ctx context.Context, jobID, workerID string) error
}

// TaskSource is the consumer side of the job queue.
type TaskSource interface {
	Read(ctx context.Context) ([]queue.Task, error)
	Ack(ctx context.Context, task queue.Task) error
}

// Worker reads tasks and executes them one at a time.
type Worker struct {
	id         string
	tasks      TaskSource
	exec       Executor
	backoff    time.Duration
	processed  atomic.Int64
	unfinished atomic.Int64
}

// New creates a worker.
// Parameters:
//   - id: worker identifier, recorded as the job lease owner.
//   - tasks: queue consumer owned by this worker.
//   - exec: job executor.
//   - backoff: pause after a failed read.
//
// Returns:
//   - *Worker: configured worker.
func New(id string, tasks TaskSource, exec Executor, backoff time.Duration) *Worker {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Worker{id: id, tasks: tasks, exec: exec, backoff: backoff}
}

// ID returns the worker identifier.
func (w *Worker) ID() string {
	return w.id
}

// Processed returns the number of tasks executed and acknowledged.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

// Unfinished returns the number of tasks left pending after an executor error.
func (w *Worker) Unfinished() int64 {
	return w.unfinished.Load()
}

// Run consumes tasks until ctx is cancelled.
// Tasks are acknowledged only after Execute returns nil, so a task whose run
// was interrupted is redelivered through the pending-entry reclaim.
func (w *Worker) Run(ctx context.Context) {
	ctx = logger.SetWorkerID(logger.SetComponent(ctx, "worker"), w.id)
	log := logger.FromContext(ctx)
	log.Info("Worker started")
	defer log.Info("Worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		tasks, err := w.tasks.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("Failed to read tasks")
			if !sleep(ctx, w.backoff) {
				return
			}
			continue
		}

		for _, task := range tasks {
			if !w.handle(ctx, task) {
				return
			}
		}
	}
}

// handle executes one task; it returns false when the worker must stop.
func (w *Worker) handle(ctx context.Context, task queue.Task) bool {
	tctx := logger.SetJob(ctx, task.JobID, string(task.JobType))
	start := time.Now()

	if err := w.exec.Execute(tctx, task.JobID, w.id); err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.unfinished.Add(1)
		logger.FromContext(tctx).WithError(err).Error("Job execution failed, task left pending")
		return true
	}

	if err := w.tasks.Ack(tctx, task); err != nil {
		logger.FromContext(tctx).WithError(err).Warn("Failed to ack task")
	}
	w.processed.Add(1)
	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		"attempt":              task.Attempt,
	}).Debug(tctx, "Task done")
	return true
}

// Pool runs a set of workers until ctx is cancelled.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates a pool over workers.
func NewPool(workers ...*Worker) *Pool {
	return &Pool{workers: workers}
}

// Run starts every worker and blocks until all of them stop.
func (p *Pool) Run(ctx context.Context) error {
	if len(p.workers) == 0 {
		return fmt.Errorf("worker pool is empty")
	}
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
	p.wg.Wait()
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
