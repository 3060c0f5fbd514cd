package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/lenscat/internal/domain"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// StepStarting is the current_step written when a worker claims a job.
const StepStarting = "Starting…"

// JobRepository persists jobs and enforces their state machine with
// conditional updates, so concurrent writers cannot move a job backwards.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateWithLog inserts a run log and its queued job in one transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist, Status must be queued.
//   - runLog: *domain.SyncLog or *domain.RecalculationLog owned by the job.
// Returns:
//   - error: non-nil if either insert fails; nothing is written in that case.
func (r *JobRepository) CreateWithLog(ctx context.Context, job *domain.Job, runLog interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(runLog).Error; err != nil {
			return fmt.Errorf("failed to create run log: %w", err)
		}
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job record if found.
//   - error: ErrNotFound if the job does not exist.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// JobFilter narrows List results. Zero values mean no filter.
type JobFilter struct {
	Type   domain.JobType
	Status domain.JobStatus
	Limit  int
	Offset int
}

// List returns jobs newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: optional type/status filters and paging.
// Returns:
//   - []domain.Job: matching jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	q := r.db.WithContext(ctx).Model(&domain.Job{})
	if filter.Type != "" {
		q = q.Where("job_type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var jobs []domain.Job
	if err := q.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// HasActive reports whether a job of the given type is queued or running.
func (r *JobRepository) HasActive(ctx context.Context, jobType domain.JobType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("job_type = ? AND status IN ?", jobType, []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Claim moves a queued job to running and takes its lease.
// started_at is only set on the first claim; progress is kept across re-claims.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - workerID: identifier of the claiming worker.
// Returns:
//   - bool: true if this call won the claim.
//   - error: non-nil if the update fails.
func (r *JobRepository) Claim(ctx context.Context, id, workerID string) (bool, error) {
	ts := now()
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusRunning,
			"started_at":   gorm.Expr("COALESCE(started_at, ?)", ts),
			"current_step": StepStarting,
			"worker_id":    workerID,
			"heartbeat_at": ts,
			"attempts":     gorm.Expr("attempts + 1"),
			"updated_at":   ts,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateProgress persists a checkpoint and refreshes the heartbeat.
// Progress never decreases and total_item_count is only written once.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - workerID: lease owner; the write is rejected for any other worker.
//   - p: checkpoint to persist.
// Returns:
//   - bool: false if the job is no longer running under workerID.
//   - error: non-nil if the update fails.
func (r *JobRepository) UpdateProgress(ctx context.Context, id, workerID string, p domain.Progress) (bool, error) {
	ts := now()
	updates := map[string]interface{}{
		"progress":           gorm.Expr("CASE WHEN progress > ? THEN progress ELSE ? END", p.Percent, p.Percent),
		"current_step":       p.Step,
		"current_item_count": p.CurrentItem,
		"heartbeat_at":       ts,
		"updated_at":         ts,
	}
	if p.Total != nil {
		updates["total_item_count"] = gorm.Expr("COALESCE(total_item_count, ?)", *p.Total)
	}

	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ? AND worker_id = ?", id, domain.JobStatusRunning, workerID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Heartbeat refreshes the lease of a running job held by workerID.
func (r *JobRepository) Heartbeat(ctx context.Context, id, workerID string) (bool, error) {
	ts := now()
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ? AND worker_id = ?", id, domain.JobStatusRunning, workerID).
		Updates(map[string]interface{}{"heartbeat_at": ts, "updated_at": ts})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelRequested reads the cancellation flag of a job.
func (r *JobRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).Select("cancel_requested").First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	return job.CancelRequested, nil
}

// RequestCancel sets cancel_requested on a job that has not finished.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - bool: false if the job is already terminal or does not exist.
//   - error: non-nil if the update fails.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id, []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning}).
		Updates(map[string]interface{}{"cancel_requested": true, "updated_at": now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Outcome is the terminal write applied by Finish.
type Outcome struct {
	Status       domain.JobStatus
	Results      *domain.JobResults
	ErrorMessage string
	ErrorDetails domain.ErrorDetails

	// WorkerID is the lease owner the write is made for.
	WorkerID string
	// StaleBefore, when set, only lets the write through if the lease is
	// still expired. The sweeper uses it like Requeue does.
	StaleBefore *time.Time
}

// Finish moves a running job into a terminal state, exactly once.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - out: terminal status plus results or error fields, and the lease guard.
// Returns:
//   - time.Time: completed_at written by this call.
//   - bool: false if the job was not running under out.WorkerID (already
//     terminal, requeued, reclaimed, or heartbeat refreshed).
//   - error: non-nil if the update fails.
func (r *JobRepository) Finish(ctx context.Context, id string, out Outcome) (time.Time, bool, error) {
	if !out.Status.IsTerminal() {
		return time.Time{}, false, fmt.Errorf("status %q is not terminal", out.Status)
	}
	ts := now()
	updates := map[string]interface{}{
		"status":        out.Status,
		"progress":      100,
		"completed_at":  ts,
		"error_message": out.ErrorMessage,
		"error_details": out.ErrorDetails,
		"updated_at":    ts,
	}
	if out.Results != nil {
		updates["results"] = out.Results
	}

	q := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ? AND worker_id = ?", id, domain.JobStatusRunning, out.WorkerID)
	if out.StaleBefore != nil {
		q = q.Where("(heartbeat_at IS NULL OR heartbeat_at < ?)", *out.StaleBefore)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return time.Time{}, false, res.Error
	}
	return ts, res.RowsAffected == 1, nil
}

// ListStaleRunning returns running jobs whose heartbeat is older than before.
func (r *JobRepository) ListStaleRunning(ctx context.Context, before time.Time) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", domain.JobStatusRunning, before).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// ListQueuedBefore returns queued jobs not touched since before.
func (r *JobRepository) ListQueuedBefore(ctx context.Context, before time.Time) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.JobStatusQueued, before).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// Requeue releases the lease of a stale running job back to queued.
// The heartbeat guard makes it lose against a worker that just checked in.
func (r *JobRepository) Requeue(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", id, domain.JobStatusRunning, staleBefore).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusQueued,
			"worker_id":    "",
			"heartbeat_at": nil,
			"current_step": "Requeued after lease expiry",
			"updated_at":   now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Touch bumps updated_at on a queued job after it has been re-enqueued.
func (r *JobRepository) Touch(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusQueued).
		Update("updated_at", now()).Error
}

// FailQueued marks a job that never started as failed, e.g. when enqueueing fails.
func (r *JobRepository) FailQueued(ctx context.Context, id, message string, details domain.ErrorDetails) (bool, error) {
	ts := now()
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"progress":      100,
			"completed_at":  ts,
			"error_message": message,
			"error_details": details,
			"updated_at":    ts,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
