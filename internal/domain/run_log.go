package domain

import (
	"time"

	"gorm.io/datatypes"
)

// SyncLog is the durable audit summary of one ERP sync run.
// Its status mirrors the job but is written after the job row.
type SyncLog struct {
	ID               string     `gorm:"type:text;primaryKey" json:"id"`
	Status           JobStatus  `gorm:"type:text;not null;default:queued" json:"status"`
	SyncType         SyncType   `gorm:"type:text;not null" json:"sync_type"`
	TestLimit        *int       `json:"test_limit,omitempty"`
	RecordsFetched   int        `gorm:"not null;default:0" json:"records_fetched"`
	RecordsProcessed int        `gorm:"not null;default:0" json:"records_processed"`
	RecordsCreated   int        `gorm:"not null;default:0" json:"records_created"`
	RecordsUpdated   int        `gorm:"not null;default:0" json:"records_updated"`
	RecordsSkipped   int        `gorm:"not null;default:0" json:"records_skipped"`
	ErrorCount       int        `gorm:"not null;default:0" json:"error_count"`
	DurationMs       int64      `gorm:"not null;default:0" json:"duration_ms"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message,omitempty"`
	ReportKey        string     `gorm:"type:text" json:"report_key,omitempty"`
	CreatedBy        string     `gorm:"type:text" json:"created_by,omitempty"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SyncLog.
func (SyncLog) TableName() string {
	return "erp_sync_logs"
}

// RecalculationLog is the durable audit summary of one price recalculation run.
type RecalculationLog struct {
	ID               string                      `gorm:"type:text;primaryKey" json:"id"`
	Status           JobStatus                   `gorm:"type:text;not null;default:queued" json:"status"`
	PricingFormula   PricingFormula              `gorm:"not null" json:"pricing_formula"`
	ShippingCost     float64                     `gorm:"not null" json:"shipping_cost"`
	RespectOverrides bool                        `gorm:"not null" json:"respect_overrides"`
	ProductIDs       datatypes.JSONSlice[string] `json:"product_ids,omitempty"`
	TotalProducts    int                         `gorm:"not null;default:0" json:"total_products"`
	UpdatedCount     int                         `gorm:"not null;default:0" json:"updated_count"`
	SkippedCount     int                         `gorm:"not null;default:0" json:"skipped_count"`
	ErrorCount       int                         `gorm:"not null;default:0" json:"error_count"`
	DurationMs       int64                       `gorm:"not null;default:0" json:"duration_ms"`
	ErrorMessage     string                      `gorm:"type:text" json:"error_message,omitempty"`
	ReportKey        string                      `gorm:"type:text" json:"report_key,omitempty"`
	CreatedBy        string                      `gorm:"type:text" json:"created_by,omitempty"`
	StartedAt        *time.Time                  `json:"started_at"`
	CompletedAt      *time.Time                  `json:"completed_at"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for RecalculationLog.
func (RecalculationLog) TableName() string {
	return "pricing_recalculation_logs"
}

// SyncErrorType classifies a per-record sync failure.
type SyncErrorType string

const (
	SyncErrorInvalidRecord    SyncErrorType = "invalid_record"
	SyncErrorBrandUnresolved  SyncErrorType = "brand_unresolved"
	SyncErrorUpsertFailed     SyncErrorType = "upsert_failed"
	SyncErrorProcessingFailed SyncErrorType = "processing_failed"
)

// SyncError is one append-only row per failed source record.
type SyncError struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	LogID        string         `gorm:"type:text;not null;index" json:"log_id"`
	ERPID        string         `gorm:"type:text;index" json:"erp_id"`
	ErrorType    SyncErrorType  `gorm:"type:text;not null" json:"error_type"`
	ErrorMessage string         `gorm:"type:text" json:"error_message"`
	RawPayload   datatypes.JSON `json:"raw_payload,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TableName returns the database table name for SyncError.
func (SyncError) TableName() string {
	return "erp_sync_errors"
}

// LogSummary is the log section of the job poller response.
// Counters that do not apply to a job type are zero.
type LogSummary struct {
	ID               string     `json:"id"`
	Status           JobStatus  `json:"status"`
	RecordsFetched   int        `json:"records_fetched,omitempty"`
	RecordsProcessed int        `json:"records_processed,omitempty"`
	RecordsCreated   int        `json:"records_created,omitempty"`
	RecordsUpdated   int        `json:"records_updated,omitempty"`
	RecordsSkipped   int        `json:"records_skipped,omitempty"`
	TotalProducts    int        `json:"total_products,omitempty"`
	UpdatedCount     int        `json:"updated_count,omitempty"`
	SkippedCount     int        `json:"skipped_count,omitempty"`
	ErrorCount       int        `json:"error_count"`
	DurationMs       int64      `json:"duration_ms"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	ReportKey        string     `json:"report_key,omitempty"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
}

// Summary projects a SyncLog onto LogSummary.
func (l *SyncLog) Summary() *LogSummary {
	return &LogSummary{
		ID:               l.ID,
		Status:           l.Status,
		RecordsFetched:   l.RecordsFetched,
		RecordsProcessed: l.RecordsProcessed,
		RecordsCreated:   l.RecordsCreated,
		RecordsUpdated:   l.RecordsUpdated,
		RecordsSkipped:   l.RecordsSkipped,
		ErrorCount:       l.ErrorCount,
		DurationMs:       l.DurationMs,
		ErrorMessage:     l.ErrorMessage,
		ReportKey:        l.ReportKey,
		StartedAt:        l.StartedAt,
		CompletedAt:      l.CompletedAt,
	}
}

// Summary projects a RecalculationLog onto LogSummary.
func (l *RecalculationLog) Summary() *LogSummary {
	return &LogSummary{
		ID:            l.ID,
		Status:        l.Status,
		TotalProducts: l.TotalProducts,
		UpdatedCount:  l.UpdatedCount,
		SkippedCount:  l.SkippedCount,
		ErrorCount:    l.ErrorCount,
		DurationMs:    l.DurationMs,
		ErrorMessage:  l.ErrorMessage,
		ReportKey:     l.ReportKey,
		StartedAt:     l.StartedAt,
		CompletedAt:   l.CompletedAt,
	}
}
