package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/logger"
)

// JobRunner executes claimed jobs by dispatching on their type.
type JobRunner struct {
	jobs              *JobService
	sync              *SyncService
	recalc            *RecalculationService
	heartbeatInterval time.Duration
}

// NewJobRunner creates a new job runner.
// Parameters:
//   - jobs: lifecycle manager used for claims and terminal writes.
//   - sync: ERP sync orchestrator.
//   - recalc: price recalculation engine.
//   - heartbeatInterval: lease refresh period while a job runs.
// Returns:
//   - *JobRunner: configured runner.
func NewJobRunner(jobs *JobService, sync *SyncService, recalc *RecalculationService, heartbeatInterval time.Duration) *JobRunner {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 15 * time.Second
	}
	return &JobRunner{
		jobs:              jobs,
		sync:              sync,
		recalc:            recalc,
		heartbeatInterval: heartbeatInterval,
	}
}

// Execute claims jobID for workerID and runs it to a terminal state.
// A lost claim, an unknown job or a lost lease return nil: there is nothing
// left for this worker to do. A non-nil error means the task should stay
// pending, for example because ctx was cancelled mid-run and the job is left
// running for lease recovery.
// Parameters:
//   - ctx: worker context; cancelling it interrupts the run at the next batch.
//   - jobID: job to execute.
//   - workerID: lease owner recorded on the job.
// Returns:
//   - error: non-nil if the task must not be acknowledged.
func (r *JobRunner) Execute(ctx context.Context, jobID, workerID string) error {
	ctx = logger.SetWorkerID(logger.SetJobID(ctx, jobID), workerID)

	job, err := r.jobs.Claim(ctx, jobID, workerID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			logger.FromContext(ctx).Warn("Job not found, dropping task")
			return nil
		}
		return err
	}
	if job == nil {
		logger.FromContext(ctx).Debug("Job already claimed or finished, skipping")
		return nil
	}

	ctx = logger.SetJob(ctx, job.ID, string(job.JobType))
	log := logger.FromContext(ctx)
	log.WithFields(logger.Fields{
		logger.FieldLogID: job.LogID,
		"attempt":         job.Attempts,
	}).Info("Job claimed")

	// Terminal writes must land even while the worker shuts down.
	finishCtx := context.WithoutCancel(ctx)

	if job.CancelRequested {
		return r.settle(ctx, r.jobs.Cancel(finishCtx, job, nil))
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	go r.heartbeat(runCtx, cancel, job.ID, workerID, done)

	results, runErr := r.dispatch(runCtx, job)
	cancel(nil)
	<-done

	if errors.Is(runErr, ErrLeaseLost) || errors.Is(context.Cause(runCtx), ErrLeaseLost) {
		log.Warn("Lease lost, abandoning job")
		return nil
	}
	if runErr != nil && ctx.Err() != nil {
		log.WithError(runErr).Warn("Job interrupted by shutdown, leaving it for lease recovery")
		return ctx.Err()
	}

	switch {
	case runErr != nil:
		log.WithError(runErr).Error("Job failed")
		err = r.jobs.Fail(finishCtx, job, nil, runErr.Error(), errorDetails(runErr))
	case results.WasCancelled():
		err = r.jobs.Cancel(finishCtx, job, results)
	case results.Succeeded():
		err = r.jobs.Complete(finishCtx, job, results)
	default:
		msg := toleranceMessage(results)
		err = r.jobs.Fail(finishCtx, job, results, msg, domain.ErrorDetails{Stage: "tolerance", Error: msg})
	}
	return r.settle(ctx, err)
}

// settle turns a terminal write error into the Execute return value.
func (r *JobRunner) settle(ctx context.Context, err error) error {
	if errors.Is(err, ErrLeaseLost) {
		logger.CtxWarn(ctx, "Job finished by another writer")
		return nil
	}
	return err
}

// dispatch runs the executor matching the job type and converts a panic into
// a PanicError.
func (r *JobRunner) dispatch(ctx context.Context, job *domain.Job) (results *domain.JobResults, err error) {
	defer func() {
		if v := recover(); v != nil {
			logger.FromContext(ctx).WithField("stack", string(debug.Stack())).Errorf("Executor panic: %v", v)
			results, err = nil, &PanicError{Value: v}
		}
	}()

	if err := job.Params.Validate(); err != nil {
		return nil, stageErr("params", err)
	}
	rep := &jobReporter{jobs: r.jobs, jobID: job.ID, workerID: job.WorkerID}

	switch job.JobType {
	case domain.JobTypeERPSync:
		p := job.Params.Sync
		res, err := r.sync.Run(ctx, SyncRequest{SyncType: p.SyncType, TestLimit: p.TestLimit, LogID: job.LogID}, rep)
		if err != nil {
			return nil, err
		}
		return &domain.JobResults{Type: job.JobType, Sync: res}, nil
	case domain.JobTypePricingRecalculation:
		res, err := r.recalc.Run(ctx, *job.Params.Recalculation, rep)
		if err != nil {
			return nil, err
		}
		return &domain.JobResults{Type: job.JobType, Recalculation: res}, nil
	default:
		return nil, stageErr("dispatch", fmt.Errorf("%w: unknown job type %q", ErrInvalidParams, job.JobType))
	}
}

// heartbeat refreshes the lease until ctx ends. A rejected heartbeat means
// another worker or the sweeper took the job, so the run is cancelled.
func (r *JobRunner) heartbeat(ctx context.Context, cancel context.CancelCauseFunc, jobID, workerID string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := r.jobs.Heartbeat(ctx, jobID, workerID)
			if err != nil {
				if ctx.Err() == nil {
					logger.FromContext(ctx).WithError(err).Warn("Heartbeat failed")
				}
				continue
			}
			if !ok {
				cancel(ErrLeaseLost)
				return
			}
		}
	}
}

func toleranceMessage(results *domain.JobResults) string {
	switch {
	case results != nil && results.Sync != nil:
		return fmt.Sprintf("%d of %d records failed", results.Sync.ErrorCount, results.Sync.RecordsProcessed)
	case results != nil && results.Recalculation != nil:
		s := results.Recalculation.Stats
		return fmt.Sprintf("%d of %d products failed", s.Errors, s.Total)
	}
	return "run did not succeed"
}
