package service

import (
	"context"

	"github.com/timmy/lenscat/internal/domain"
)

// ProgressReporter receives checkpoints from a running executor and answers
// cancellation checks at batch boundaries.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, p domain.Progress) error
	CancelRequested(ctx context.Context) (bool, error)
}

// nopReporter is used when an executor runs without a job row.
type nopReporter struct{}

func (nopReporter) ReportProgress(context.Context, domain.Progress) error { return nil }
func (nopReporter) CancelRequested(context.Context) (bool, error)         { return false, nil }

// NopReporter returns a ProgressReporter that discards checkpoints and never cancels.
func NopReporter() ProgressReporter {
	return nopReporter{}
}

// jobReporter forwards checkpoints to the job row through JobService.
type jobReporter struct {
	jobs     *JobService
	jobID    string
	workerID string
}

func (r *jobReporter) ReportProgress(ctx context.Context, p domain.Progress) error {
	return r.jobs.ReportProgress(ctx, r.jobID, r.workerID, p)
}

func (r *jobReporter) CancelRequested(ctx context.Context) (bool, error) {
	return r.jobs.CancelRequested(ctx, r.jobID)
}

func intPtr(n int) *int { return &n }
