package domain

import "time"

// JobType identifies which executor handles a job.
// Values include JobTypeERPSync and JobTypePricingRecalculation.
type JobType string

const (
	JobTypeERPSync              JobType = "erp_sync"
	JobTypePricingRecalculation JobType = "pricing_recalculation"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	return t == JobTypeERPSync || t == JobTypePricingRecalculation
}

// JobStatus represents the status of a background job.
// Values include JobStatusQueued, JobStatusRunning, JobStatusCompleted,
// JobStatusFailed, and JobStatusCancelled.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job represents one asynchronous unit of work and its progress checkpoint.
// WorkerID, HeartbeatAt and Attempts describe the lease held by the worker
// currently executing the job.
type Job struct {
	ID               string       `gorm:"type:text;primaryKey" json:"id"`
	JobType          JobType      `gorm:"type:text;not null;index:idx_jobs_type_status" json:"job_type"`
	Status           JobStatus    `gorm:"type:text;not null;default:queued;index:idx_jobs_type_status" json:"status"`
	Progress         int          `gorm:"not null;default:0" json:"progress"`
	CurrentStep      string       `gorm:"type:text" json:"current_step"`
	CurrentItemCount int          `gorm:"not null;default:0" json:"current_item_count"`
	TotalItemCount   *int         `json:"total_item_count"`
	Params           JobParams    `gorm:"type:text" json:"params"`
	Results          *JobResults  `gorm:"type:text" json:"results"`
	ErrorMessage     string       `gorm:"type:text" json:"error_message,omitempty"`
	ErrorDetails     ErrorDetails `gorm:"type:text" json:"error_details,omitempty"`
	CreatedBy        string       `gorm:"type:text" json:"created_by,omitempty"`
	CancelRequested  bool         `gorm:"not null;default:false" json:"cancel_requested"`
	LogID            string       `gorm:"type:text;not null;index" json:"log_id"`
	WorkerID         string       `gorm:"type:text" json:"worker_id,omitempty"`
	HeartbeatAt      *time.Time   `json:"heartbeat_at,omitempty"`
	Attempts         int          `gorm:"not null;default:0" json:"attempts"`
	CreatedAt        time.Time    `json:"created_at"`
	StartedAt        *time.Time   `json:"started_at"`
	CompletedAt      *time.Time   `json:"completed_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "jobs"
}

// Progress is a checkpoint reported by an executor after each batch.
// Total is nil when the executor does not yet know the item count.
type Progress struct {
	Percent     int
	Step        string
	CurrentItem int
	Total       *int
}

// ClampProgress returns base + floor(processed/total*span) clamped to [base, hi].
func ClampProgress(base, span, processed, total, hi int) int {
	p := base
	if total > 0 {
		p = base + processed*span/total
	}
	if p < base {
		p = base
	}
	if p > hi {
		p = hi
	}
	return p
}
