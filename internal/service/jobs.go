package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/metrics"
	"github.com/timmy/lenscat/internal/queue"
	"github.com/timmy/lenscat/internal/repository"
	"github.com/timmy/lenscat/internal/source"
	"github.com/timmy/lenscat/internal/storage"
	"gorm.io/datatypes"
)

// Enqueuer publishes job tasks to the worker queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

// JobConfig holds lease and recovery settings.
type JobConfig struct {
	LeaseTimeout time.Duration
	MaxAttempts  int
	RequeueAfter time.Duration
}

// JobService owns the job state machine: creation, claim, progress,
// terminal writes, cancellation requests and lease recovery.
type JobService struct {
	jobs       *repository.JobRepository
	logs       *repository.RunLogRepository
	syncErrors *repository.SyncErrorRepository
	queue      Enqueuer
	preflight  source.CatalogSource
	archive    *storage.ReportArchive
	metrics    *metrics.JobMetrics
	cfg        JobConfig
}

// NewJobService creates a new job service.
// Parameters:
//   - jobs: job store.
//   - logs: run log store.
//   - syncErrors: per-record sync error store.
//   - q: task queue; nil runs in inline mode where the caller executes jobs itself.
//   - preflight: catalog source pinged before a sync job is accepted; may be nil.
//   - archive: run report archive; may be nil.
//   - m: metrics recorder; may be nil.
//   - cfg: lease and recovery settings.
// Returns:
//   - *JobService: configured service.
func NewJobService(
	jobs *repository.JobRepository,
	logs *repository.RunLogRepository,
	syncErrors *repository.SyncErrorRepository,
	q Enqueuer,
	preflight source.CatalogSource,
	archive *storage.ReportArchive,
	m *metrics.JobMetrics,
	cfg JobConfig,
) *JobService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 2 * time.Minute
	}
	if cfg.RequeueAfter <= 0 {
		cfg.RequeueAfter = 5 * time.Minute
	}
	return &JobService{
		jobs:       jobs,
		logs:       logs,
		syncErrors: syncErrors,
		queue:      q,
		preflight:  preflight,
		archive:    archive,
		metrics:    m,
		cfg:        cfg,
	}
}

// JobView is the poller read model: the job plus its log summary.
type JobView struct {
	domain.Job
	Log *domain.LogSummary `json:"log"`
}

// CreateSyncJob validates params, pings the ERP and creates a queued sync job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - params: sync type and optional record cap.
//   - createdBy: user reference of the requester.
// Returns:
//   - *domain.Job: the queued job.
//   - error: ErrInvalidParams, ErrSourceUnavailable, or a setup failure.
func (s *JobService) CreateSyncJob(ctx context.Context, params domain.SyncParams, createdBy string) (*domain.Job, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if s.preflight != nil {
		if err := s.preflight.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
	}

	logID := uuid.NewString()
	runLog := &domain.SyncLog{
		ID:        logID,
		Status:    domain.JobStatusQueued,
		SyncType:  params.SyncType,
		TestLimit: params.TestLimit,
		CreatedBy: createdBy,
	}
	return s.create(ctx, domain.NewSyncJobParams(params), logID, runLog, createdBy)
}

// CreateRecalculationJob validates params and creates a queued recalculation job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - params: formula, shipping cost, override flag and optional product ids.
//   - createdBy: user reference of the requester.
// Returns:
//   - *domain.Job: the queued job.
//   - error: ErrInvalidParams or a setup failure.
func (s *JobService) CreateRecalculationJob(ctx context.Context, params domain.RecalculationParams, createdBy string) (*domain.Job, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	logID := uuid.NewString()
	runLog := &domain.RecalculationLog{
		ID:               logID,
		Status:           domain.JobStatusQueued,
		PricingFormula:   params.PricingFormula,
		ShippingCost:     params.ShippingCost,
		RespectOverrides: params.RespectOverrides,
		ProductIDs:       datatypes.JSONSlice[string](params.ProductIDs),
		CreatedBy:        createdBy,
	}
	return s.create(ctx, domain.NewRecalculationJobParams(params), logID, runLog, createdBy)
}

func (s *JobService) create(ctx context.Context, params domain.JobParams, logID string, runLog interface{}, createdBy string) (*domain.Job, error) {
	job := &domain.Job{
		ID:        uuid.NewString(),
		JobType:   params.Type,
		Status:    domain.JobStatusQueued,
		Params:    params,
		LogID:     logID,
		CreatedBy: createdBy,
	}
	if err := s.jobs.CreateWithLog(ctx, job, runLog); err != nil {
		return nil, err
	}

	ctx = logger.SetJob(ctx, job.ID, string(job.JobType))
	logger.FromContext(ctx).WithField(logger.FieldLogID, logID).Info("Job created")
	s.metrics.JobCreated(string(job.JobType))

	if err := s.enqueue(ctx, job, 1); err != nil {
		details := domain.ErrorDetails{Stage: "enqueue", Error: err.Error()}
		if _, failErr := s.jobs.FailQueued(ctx, job.ID, "failed to enqueue job", details); failErr != nil {
			logger.FromContext(ctx).WithError(failErr).Error("Failed to mark unenqueued job as failed")
		}
		s.finishLog(ctx, job.JobType, logID, domain.JobStatusFailed, nil, "failed to enqueue job", time.Now().UTC())
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

// enqueue publishes a task for job; a no-op in inline mode.
func (s *JobService) enqueue(ctx context.Context, job *domain.Job, attempt int) error {
	if s.queue == nil {
		return nil
	}
	_, err := s.queue.Enqueue(ctx, queue.Task{
		JobID:      job.ID,
		JobType:    job.JobType,
		Attempt:    attempt,
		EnqueuedAt: time.Now().UTC(),
	})
	return err
}

// Claim takes the lease of a queued job for workerID and marks its log running.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
//   - workerID: identifier of the claiming worker.
// Returns:
//   - *domain.Job: the claimed job, nil when the claim was lost.
//   - error: ErrJobNotFound or a store failure.
func (s *JobService) Claim(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	won, err := s.jobs.Claim(ctx, jobID, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}
	if !won {
		if _, err := s.jobs.GetByID(ctx, jobID); errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, nil
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	startedAt := time.Now().UTC()
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
	}
	if err := s.logs.MarkRunning(ctx, job.JobType, job.LogID, startedAt); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to mark run log running")
	}
	return job, nil
}

// ReportProgress persists a checkpoint immediately.
// Returns ErrLeaseLost when the job is no longer running under workerID.
func (s *JobService) ReportProgress(ctx context.Context, jobID, workerID string, p domain.Progress) error {
	ok, err := s.jobs.UpdateProgress(ctx, jobID, workerID, p)
	if err != nil {
		return fmt.Errorf("failed to persist progress: %w", err)
	}
	if !ok {
		return ErrLeaseLost
	}
	logger.With(logger.Fields{logger.FieldProgress: p.Percent}).
		WithCount(p.CurrentItem).
		Debug(ctx, "%s", p.Step)
	return nil
}

// Heartbeat refreshes the lease held by workerID.
func (s *JobService) Heartbeat(ctx context.Context, jobID, workerID string) (bool, error) {
	return s.jobs.Heartbeat(ctx, jobID, workerID)
}

// CancelRequested reads the cancellation flag of a job.
func (s *JobService) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	requested, err := s.jobs.CancelRequested(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrJobNotFound
	}
	return requested, err
}

// Complete finishes a running job as completed.
func (s *JobService) Complete(ctx context.Context, job *domain.Job, results *domain.JobResults) error {
	return s.finish(ctx, job, repository.Outcome{Status: domain.JobStatusCompleted, Results: results})
}

// Fail finishes a running job as failed. results may be nil.
func (s *JobService) Fail(ctx context.Context, job *domain.Job, results *domain.JobResults, message string, details domain.ErrorDetails) error {
	return s.finish(ctx, job, repository.Outcome{
		Status:       domain.JobStatusFailed,
		Results:      results,
		ErrorMessage: message,
		ErrorDetails: details,
	})
}

// Cancel finishes a running job as cancelled. results may be nil.
func (s *JobService) Cancel(ctx context.Context, job *domain.Job, results *domain.JobResults) error {
	return s.finish(ctx, job, repository.Outcome{Status: domain.JobStatusCancelled, Results: results})
}

// finish writes the terminal job state, then the log, then archives the report.
// The write only lands while job.WorkerID still holds the lease.
// The log write is sequential, not transactional with the job row.
func (s *JobService) finish(ctx context.Context, job *domain.Job, out repository.Outcome) error {
	out.WorkerID = job.WorkerID
	completedAt, ok, err := s.jobs.Finish(ctx, job.ID, out)
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", job.ID, err)
	}
	if !ok {
		return ErrLeaseLost
	}

	var elapsed time.Duration
	if job.StartedAt != nil {
		elapsed = completedAt.Sub(*job.StartedAt)
	}
	s.metrics.JobFinished(string(job.JobType), string(out.Status), elapsed)

	logger.With(logger.Fields{
		logger.FieldStatus:     out.Status,
		logger.FieldDurationMs: elapsed.Milliseconds(),
		logger.FieldLogID:      job.LogID,
	}).Info(ctx, "Job finished")

	s.finishLog(ctx, job.JobType, job.LogID, out.Status, out.Results, out.ErrorMessage, completedAt)
	s.archiveReport(ctx, job.ID)
	return nil
}

// finishLog mirrors the terminal state and counters onto the run log.
// Failures are logged; the job row is already final.
func (s *JobService) finishLog(ctx context.Context, jobType domain.JobType, logID string, status domain.JobStatus, results *domain.JobResults, errMsg string, completedAt time.Time) {
	var err error
	switch jobType {
	case domain.JobTypeERPSync:
		var r *domain.SyncResult
		if results != nil {
			r = results.Sync
		}
		err = s.logs.FinishSync(ctx, logID, status, r, errMsg, completedAt)
	case domain.JobTypePricingRecalculation:
		var r *domain.RecalculationResult
		if results != nil {
			r = results.Recalculation
		}
		err = s.logs.FinishRecalculation(ctx, logID, status, r, errMsg, completedAt)
	}
	if err != nil {
		logger.FromContext(ctx).WithField(logger.FieldLogID, logID).WithError(err).Error("Failed to finish run log")
	}
}

// archiveReport uploads the run report when an archive is configured.
func (s *JobService) archiveReport(ctx context.Context, jobID string) {
	if s.archive == nil {
		return
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to reload job for report")
		return
	}
	key, err := s.archive.Archive(ctx, storage.NewRunReport(job))
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to archive run report")
		return
	}
	if err := s.logs.SetReportKey(ctx, job.JobType, job.LogID, key); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to record report key")
	}
}

// RequestCancel asks a queued or running job to stop at its next batch boundary.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
// Returns:
//   - error: ErrJobNotFound, ErrJobFinished, or a store failure.
func (s *JobService) RequestCancel(ctx context.Context, jobID string) error {
	ok, err := s.jobs.RequestCancel(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to request cancellation: %w", err)
	}
	if ok {
		logger.FromContext(logger.SetJobID(ctx, jobID)).Info("Cancellation requested")
		return nil
	}
	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	return ErrJobFinished
}

// Get returns the job and its log summary.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
// Returns:
//   - *JobView: job with log summary; Log is nil if the log row is missing.
//   - error: ErrJobNotFound or a store failure.
func (s *JobService) Get(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	view := &JobView{Job: *job}
	summary, err := s.logs.Summary(ctx, job.JobType, job.LogID)
	switch {
	case err == nil:
		view.Log = summary
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, err
	}
	return view, nil
}

// List returns recent jobs matching filter.
func (s *JobService) List(ctx context.Context, filter repository.JobFilter) ([]domain.Job, error) {
	return s.jobs.List(ctx, filter)
}

// ListSyncErrors returns the per-record errors of a sync job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID of an erp_sync job.
//   - limit: page size.
//   - offset: rows to skip.
// Returns:
//   - []domain.SyncError: one page of error rows.
//   - int64: total rows for the job.
//   - error: ErrJobNotFound, ErrInvalidParams for non-sync jobs, or a store failure.
func (s *JobService) ListSyncErrors(ctx context.Context, jobID string, limit, offset int) ([]domain.SyncError, int64, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, 0, ErrJobNotFound
		}
		return nil, 0, err
	}
	if job.JobType != domain.JobTypeERPSync {
		return nil, 0, fmt.Errorf("%w: job %s is not an erp_sync job", ErrInvalidParams, jobID)
	}
	return s.syncErrors.ListByLog(ctx, job.LogID, limit, offset)
}

// HasActive reports whether a job of jobType is queued or running.
func (s *JobService) HasActive(ctx context.Context, jobType domain.JobType) (bool, error) {
	return s.jobs.HasActive(ctx, jobType)
}

// RecoveryStats counts what one RecoverStale pass did.
type RecoveryStats struct {
	Requeued   int
	Failed     int
	Reenqueued int
}

// RecoverStale applies the lease policy:
// running jobs whose heartbeat is older than the lease timeout are requeued,
// or failed once they used up their attempts; queued jobs idle longer than
// RequeueAfter get a fresh task, which is harmless because claims are conditional.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - RecoveryStats: per-action counts.
//   - error: non-nil if listing jobs fails; per-job failures are logged.
func (s *JobService) RecoverStale(ctx context.Context) (RecoveryStats, error) {
	var stats RecoveryStats
	now := time.Now().UTC()
	staleBefore := now.Add(-s.cfg.LeaseTimeout)

	stale, err := s.jobs.ListStaleRunning(ctx, staleBefore)
	if err != nil {
		return stats, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	for i := range stale {
		job := &stale[i]
		jctx := logger.SetJob(ctx, job.ID, string(job.JobType))

		if job.Attempts >= s.cfg.MaxAttempts {
			msg := fmt.Sprintf("lease expired after %d attempts", job.Attempts)
			err := s.finish(jctx, job, repository.Outcome{
				Status:       domain.JobStatusFailed,
				ErrorMessage: msg,
				ErrorDetails: domain.ErrorDetails{Stage: "lease", Error: msg},
				StaleBefore:  &staleBefore,
			})
			if err != nil {
				if !errors.Is(err, ErrLeaseLost) {
					logger.FromContext(jctx).WithError(err).Error("Failed to fail expired job")
				}
				continue
			}
			stats.Failed++
			s.metrics.LeaseRecovered(metrics.RecoveryFailed)
			continue
		}

		ok, err := s.jobs.Requeue(jctx, job.ID, staleBefore)
		if err != nil {
			logger.FromContext(jctx).WithError(err).Error("Failed to requeue stale job")
			continue
		}
		if !ok {
			continue
		}
		stats.Requeued++
		s.metrics.LeaseRecovered(metrics.RecoveryRequeued)
		logger.FromContext(jctx).WithField("attempts", job.Attempts).Warn("Lease expired, job requeued")

		if err := s.enqueue(jctx, job, job.Attempts+1); err != nil {
			logger.FromContext(jctx).WithError(err).Error("Failed to enqueue requeued job")
		}
	}

	queued, err := s.jobs.ListQueuedBefore(ctx, now.Add(-s.cfg.RequeueAfter))
	if err != nil {
		return stats, fmt.Errorf("failed to list idle queued jobs: %w", err)
	}
	if s.queue == nil {
		return stats, nil
	}
	for i := range queued {
		job := &queued[i]
		jctx := logger.SetJob(ctx, job.ID, string(job.JobType))
		if err := s.enqueue(jctx, job, job.Attempts+1); err != nil {
			logger.FromContext(jctx).WithError(err).Error("Failed to re-enqueue idle job")
			continue
		}
		if err := s.jobs.Touch(jctx, job.ID); err != nil {
			logger.FromContext(jctx).WithError(err).Warn("Failed to touch re-enqueued job")
		}
		stats.Reenqueued++
		s.metrics.LeaseRecovered(metrics.RecoveryReenqueued)
	}
	return stats, nil
}
