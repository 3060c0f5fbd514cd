package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/timmy/lenscat/internal/domain"
)

const reportContentType = "application/json"

// RunReport is the archived record of one finished job.
type RunReport struct {
	JobID        string              `json:"job_id"`
	JobType      domain.JobType      `json:"job_type"`
	Status       domain.JobStatus    `json:"status"`
	Params       domain.JobParams    `json:"params"`
	Results      *domain.JobResults  `json:"results,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	ErrorDetails domain.ErrorDetails `json:"error_details,omitempty"`
	CreatedBy    string              `json:"created_by,omitempty"`
	Attempts     int                 `json:"attempts"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

// NewRunReport snapshots a finished job.
func NewRunReport(job *domain.Job) *RunReport {
	return &RunReport{
		JobID:        job.ID,
		JobType:      job.JobType,
		Status:       job.Status,
		Params:       job.Params,
		Results:      job.Results,
		ErrorMessage: job.ErrorMessage,
		ErrorDetails: job.ErrorDetails,
		CreatedBy:    job.CreatedBy,
		Attempts:     job.Attempts,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// ReportArchive writes run reports as JSON objects under a key prefix.
type ReportArchive struct {
	store  ObjectStorage
	prefix string
}

// NewReportArchive creates a ReportArchive.
// Parameters:
//   - store: object storage backend.
//   - prefix: key prefix, "reports" when empty.
// Returns:
//   - *ReportArchive: archive writing to store.
func NewReportArchive(store ObjectStorage, prefix string) *ReportArchive {
	if prefix == "" {
		prefix = "reports"
	}
	return &ReportArchive{store: store, prefix: prefix}
}

// ReportKey returns <prefix>/<job_type>/<yyyy>/<mm>/<job_id>.json, dated by completion time.
func (a *ReportArchive) ReportKey(r *RunReport) string {
	at := r.CreatedAt
	if r.CompletedAt != nil {
		at = *r.CompletedAt
	}
	at = at.UTC()
	return path.Join(a.prefix, string(r.JobType), fmt.Sprintf("%04d", at.Year()), fmt.Sprintf("%02d", int(at.Month())), r.JobID+".json")
}

// Archive uploads the report and returns its key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - r: report to store.
// Returns:
//   - string: object key of the stored report.
//   - error: non-nil if encoding or upload fails.
func (a *ReportArchive) Archive(ctx context.Context, r *RunReport) (string, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run report: %w", err)
	}
	key := a.ReportKey(r)
	meta := map[string]string{"job-id": r.JobID, "job-status": string(r.Status)}
	if err := a.store.Put(ctx, key, body, reportContentType, meta); err != nil {
		return "", err
	}
	return key, nil
}

// Load downloads and decodes a report by key.
func (a *ReportArchive) Load(ctx context.Context, key string) (*RunReport, error) {
	body, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var r RunReport
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to decode run report %s: %w", key, err)
	}
	return &r, nil
}
