package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/lenscat/internal/domain"
	"gorm.io/gorm"
)

// RunLogRepository handles the sync and recalculation audit logs.
// Log writes follow the job row and are not transactional with it.
type RunLogRepository struct {
	db *gorm.DB
}

// NewRunLogRepository creates a new RunLogRepository.
func NewRunLogRepository(db *gorm.DB) *RunLogRepository {
	return &RunLogRepository{db: db}
}

// modelFor returns the log model backing a job type.
func modelFor(jobType domain.JobType) (interface{}, error) {
	switch jobType {
	case domain.JobTypeERPSync:
		return &domain.SyncLog{}, nil
	case domain.JobTypePricingRecalculation:
		return &domain.RecalculationLog{}, nil
	default:
		return nil, fmt.Errorf("no run log for job type %q", jobType)
	}
}

// MarkRunning sets a queued log to running and records its start time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobType: selects the log table.
//   - logID: log ID.
//   - startedAt: start time copied from the job.
// Returns:
//   - error: non-nil if the update fails.
func (r *RunLogRepository) MarkRunning(ctx context.Context, jobType domain.JobType, logID string, startedAt time.Time) error {
	model, err := modelFor(jobType)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(model).
		Where("id = ? AND status IN ?", logID, []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", startedAt),
		}).Error
}

// FinishSync writes the final counters of a sync run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - logID: sync log ID.
//   - status: terminal job status mirrored onto the log.
//   - result: run summary, nil when the run aborted before producing one.
//   - errMsg: failure message, empty on success.
//   - completedAt: completion time copied from the job.
// Returns:
//   - error: non-nil if the update fails.
func (r *RunLogRepository) FinishSync(ctx context.Context, logID string, status domain.JobStatus, result *domain.SyncResult, errMsg string, completedAt time.Time) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
		"completed_at":  completedAt,
	}
	if result != nil {
		updates["records_fetched"] = result.RecordsFetched
		updates["records_processed"] = result.RecordsProcessed
		updates["records_created"] = result.RecordsCreated
		updates["records_updated"] = result.RecordsUpdated
		updates["records_skipped"] = result.RecordsSkipped
		updates["error_count"] = result.ErrorCount
		updates["duration_ms"] = result.DurationMs
	}
	return r.db.WithContext(ctx).Model(&domain.SyncLog{}).Where("id = ?", logID).Updates(updates).Error
}

// FinishRecalculation writes the final counters of a recalculation run.
func (r *RunLogRepository) FinishRecalculation(ctx context.Context, logID string, status domain.JobStatus, result *domain.RecalculationResult, errMsg string, completedAt time.Time) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
		"completed_at":  completedAt,
	}
	if result != nil {
		updates["total_products"] = result.Stats.Total
		updates["updated_count"] = result.Stats.Updated
		updates["skipped_count"] = result.Stats.Skipped
		updates["error_count"] = result.Stats.Errors
		updates["duration_ms"] = result.DurationMs
	}
	return r.db.WithContext(ctx).Model(&domain.RecalculationLog{}).Where("id = ?", logID).Updates(updates).Error
}

// SetReportKey records where the archived run report was stored.
func (r *RunLogRepository) SetReportKey(ctx context.Context, jobType domain.JobType, logID, key string) error {
	model, err := modelFor(jobType)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(model).Where("id = ?", logID).Update("report_key", key).Error
}

// Summary loads the log of a job and projects it for the poller.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobType: selects the log table.
//   - logID: log ID.
// Returns:
//   - *domain.LogSummary: projected log counters.
//   - error: ErrNotFound if the log does not exist.
func (r *RunLogRepository) Summary(ctx context.Context, jobType domain.JobType, logID string) (*domain.LogSummary, error) {
	switch jobType {
	case domain.JobTypeERPSync:
		var l domain.SyncLog
		if err := r.first(ctx, &l, logID); err != nil {
			return nil, err
		}
		return l.Summary(), nil
	case domain.JobTypePricingRecalculation:
		var l domain.RecalculationLog
		if err := r.first(ctx, &l, logID); err != nil {
			return nil, err
		}
		return l.Summary(), nil
	default:
		return nil, fmt.Errorf("no run log for job type %q", jobType)
	}
}

// GetSync retrieves a sync log by ID.
func (r *RunLogRepository) GetSync(ctx context.Context, id string) (*domain.SyncLog, error) {
	var l domain.SyncLog
	if err := r.first(ctx, &l, id); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetRecalculation retrieves a recalculation log by ID.
func (r *RunLogRepository) GetRecalculation(ctx context.Context, id string) (*domain.RecalculationLog, error) {
	var l domain.RecalculationLog
	if err := r.first(ctx, &l, id); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *RunLogRepository) first(ctx context.Context, dest interface{}, id string) error {
	if err := r.db.WithContext(ctx).First(dest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
