// Package scheduler creates scheduled ERP sync jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/logger"
)

// SystemUser is recorded as created_by on scheduled jobs.
const SystemUser = "system:scheduler"

// SyncTrigger is the part of the job service the scheduler needs.
type SyncTrigger interface {
	HasActive(ctx context.Context, jobType domain.JobType) (bool, error)
	CreateSyncJob(ctx context.Context, params domain.SyncParams, createdBy string) (*domain.Job, error)
}

// Scheduler triggers scheduled syncs, skipping a tick while another sync is
// queued or running.
type Scheduler struct {
	trigger  SyncTrigger
	cron     *cron.Cron
	schedule string
	ctx      context.Context
	mu       sync.Mutex
	entryID  cron.EntryID
}

// New creates a scheduler for a standard five-field cron expression.
// Parameters:
//   - trigger: job service used to check for and create sync jobs.
//   - schedule: cron expression such as "0 3 * * *".
// Returns:
//   - *Scheduler: scheduler ready to Start.
//   - error: non-nil if the expression does not parse.
func New(trigger SyncTrigger, schedule string) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("failed to parse sync schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		trigger:  trigger,
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		schedule: schedule,
	}, nil
}

// Start registers the sync entry and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = logger.SetComponent(ctx, "scheduler")
	id, err := s.cron.AddFunc(s.schedule, func() { s.Trigger(s.ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	s.entryID = id
	s.cron.Start()

	logger.FromContext(s.ctx).WithFields(logger.Fields{
		"schedule": s.schedule,
		"next_run": s.cron.Entry(id).Next,
	}).Info("Sync scheduler started")
	return nil
}

// Stop stops the cron loop and waits for a running trigger to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Trigger creates one scheduled sync job unless a sync is already active.
// Returns the created job, or nil when the tick was skipped or failed.
func (s *Scheduler) Trigger(ctx context.Context) *domain.Job {
	log := logger.FromContext(ctx)

	active, err := s.trigger.HasActive(ctx, domain.JobTypeERPSync)
	if err != nil {
		log.WithError(err).Error("Failed to check for active sync")
		return nil
	}
	if active {
		log.Info("Sync already queued or running, skipping scheduled run")
		return nil
	}

	job, err := s.trigger.CreateSyncJob(ctx, domain.SyncParams{SyncType: domain.SyncTypeScheduled}, SystemUser)
	if err != nil {
		log.WithError(err).Error("Failed to create scheduled sync")
		return nil
	}
	log.WithField(logger.FieldJobID, job.ID).Info("Scheduled sync queued")
	return job
}
