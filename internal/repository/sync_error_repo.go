package repository

import (
	"context"

	"github.com/timmy/lenscat/internal/domain"
	"gorm.io/gorm"
)

// SyncErrorRepository appends and reads per-record sync failures.
type SyncErrorRepository struct {
	db *gorm.DB
}

// NewSyncErrorRepository creates a new SyncErrorRepository.
func NewSyncErrorRepository(db *gorm.DB) *SyncErrorRepository {
	return &SyncErrorRepository{db: db}
}

// Create appends one error row. Rows are never updated.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - e: error row to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *SyncErrorRepository) Create(ctx context.Context, e *domain.SyncError) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// ListByLog returns error rows of a sync log oldest first, plus the total count.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - logID: owning sync log ID.
//   - limit: page size.
//   - offset: rows to skip.
// Returns:
//   - []domain.SyncError: page of error rows.
//   - int64: total rows for the log.
//   - error: non-nil if the query fails.
func (r *SyncErrorRepository) ListByLog(ctx context.Context, logID string, limit, offset int) ([]domain.SyncError, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	total, err := r.CountByLog(ctx, logID)
	if err != nil {
		return nil, 0, err
	}

	var rows []domain.SyncError
	if err := r.db.WithContext(ctx).Where("log_id = ?", logID).Order("id ASC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountByLog returns the number of error rows recorded for a sync log.
func (r *SyncErrorRepository) CountByLog(ctx context.Context, logID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.SyncError{}).Where("log_id = ?", logID).Count(&total).Error
	return total, err
}
