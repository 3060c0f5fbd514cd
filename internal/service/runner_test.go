package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/source"
	"github.com/timmy/lenscat/internal/source/snapshot"
	"gorm.io/gorm"
)

func TestExecuteSyncJobCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, snapshot.NewInMemory(catalogRecords(60, nil)))

	job, err := f.jobs.CreateSyncJob(ctx, domain.SyncParams{}, "admin")
	require.NoError(t, err)
	require.NoError(t, f.runner.Execute(ctx, job.ID, "w1"))

	view, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)
	assert.NotNil(t, view.StartedAt)
	assert.NotNil(t, view.CompletedAt)
	require.NotNil(t, view.TotalItemCount)
	assert.Equal(t, 60, *view.TotalItemCount)
	require.NotNil(t, view.Results)
	require.NotNil(t, view.Results.Sync)
	assert.Equal(t, 60, view.Results.Sync.RecordsCreated)

	require.NotNil(t, view.Log)
	assert.Equal(t, domain.JobStatusCompleted, view.Log.Status)
	assert.Equal(t, 60, view.Log.RecordsCreated)
	assert.Equal(t, 60, view.Log.RecordsFetched)
	assert.NotNil(t, view.Log.CompletedAt)

	require.NoError(t, f.runner.Execute(ctx, job.ID, "w2"), "a second delivery is a no-op")
}

func TestExecuteRecalculationJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedTiers(t)
	f.seedProduct(t, "p1", "15", nil)

	job, err := f.jobs.CreateRecalculationJob(ctx, domain.RecalculationParams{PricingFormula: 1, ShippingCost: 25}, "")
	require.NoError(t, err)
	require.NoError(t, f.runner.Execute(ctx, job.ID, "w1"))

	view, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, view.Status)
	assert.Equal(t, 1, view.Log.UpdatedCount)
	assert.Equal(t, "58.00", f.price(t, "p1"))
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, snapshot.NewInMemory(catalogRecords(5, nil)))

	job, err := f.jobs.CreateSyncJob(ctx, domain.SyncParams{}, "")
	require.NoError(t, err)
	require.NoError(t, f.jobs.RequestCancel(ctx, job.ID))
	require.NoError(t, f.runner.Execute(ctx, job.ID, "w1"))

	view, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, view.Status)
	assert.NotNil(t, view.CompletedAt)
	assert.Equal(t, domain.JobStatusCancelled, view.Log.Status)

	n, err := f.catalog.CountProducts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExecuteCancelledMidRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, snapshot.NewInMemory(catalogRecords(120, nil)))

	job, err := f.jobs.CreateSyncJob(ctx, domain.SyncParams{}, "admin")
	require.NoError(t, err)

	// Request cancellation once the first batch of 50 products is committed.
	var (
		mu        sync.Mutex
		upserts   int
		cancelled bool
	)
	err = f.db.Callback().Create().After("gorm:commit_or_rollback_transaction").
		Register("lenscat:cancel_after_first_batch", func(tx *gorm.DB) {
			if tx.Error != nil || tx.Statement.Table != "products" {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			upserts++
			if upserts == 50 && !cancelled {
				cancelled = true
				require.NoError(t, f.jobs.RequestCancel(ctx, job.ID))
			}
		})
	require.NoError(t, err)

	require.NoError(t, f.runner.Execute(ctx, job.ID, "w1"))

	view, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, view.Status)
	assert.Equal(t, 100, view.Progress)
	assert.NotNil(t, view.CompletedAt)
	assert.True(t, view.CancelRequested)
	require.NotNil(t, view.Results)
	require.NotNil(t, view.Results.Sync)
	assert.True(t, view.Results.Sync.Cancelled)
	assert.Equal(t, 50, view.Results.Sync.RecordsProcessed)
	assert.Equal(t, 50, view.Results.Sync.RecordsCreated)

	require.NotNil(t, view.Log)
	assert.Equal(t, domain.JobStatusCancelled, view.Log.Status)
	assert.NotNil(t, view.Log.CompletedAt)

	n, err := f.catalog.CountProducts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 50, n, "the committed batch stays")
}

func TestExecuteFailsOverTolerance(t *testing.T) {
	ctx := context.Background()
	orphans := map[int]bool{0: true, 1: true}
	f := newFixture(t, snapshot.NewInMemory(catalogRecords(4, orphans)))

	job, err := f.jobs.CreateSyncJob(ctx, domain.SyncParams{}, "")
	require.NoError(t, err)
	require.NoError(t, f.runner.Execute(ctx, job.ID, "w1"))

	view, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, view.Status)
	assert.Equal(t, "tolerance", view.ErrorDetails.Stage)
	assert.Equal(t, "2 of 4 records failed", view.ErrorMessage)
	require.NotNil(t, view.Results)
	assert.Equal(t, 2, view.Results.Sync.ErrorCount)
	assert.Equal(t, 2, view.Log.ErrorCount)
}

func TestExecuteFatalErrorRecordsStage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedProduct(t, "p1", "15", nil)

	job, err := f.jobs.CreateRecalculationJob(ctx, domain.RecalculationParams{PricingFormula: 2}, "")
	require.NoError(t, err)
	require.NoError(t, f.runner.Execute(ctx, job.ID, "w1"))

	view, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, view.Status)
	assert.Equal(t, "load_tiers", view.ErrorDetails.Stage)
	assert.Nil(t, view.Results)
	assert.Contains(t, view.Log.ErrorMessage, "no active pricing tiers")
}

func TestExecuteRecoversPanics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.runner.recalc = nil

	job, err := f.jobs.CreateRecalculationJob(ctx, domain.RecalculationParams{PricingFormula: 2}, "")
	require.NoError(t, err)
	require.NoError(t, f.runner.Execute(ctx, job.ID, "w1"))

	view, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, view.Status)
	assert.True(t, view.ErrorDetails.Panic)
}

func TestExecuteInterruptedByShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancellingSource{CatalogSource: snapshot.NewInMemory(catalogRecords(5, nil)), cancel: cancel}
	f := newFixture(t, src)

	job, err := f.jobs.CreateSyncJob(context.Background(), domain.SyncParams{}, "")
	require.NoError(t, err)

	err = f.runner.Execute(ctx, job.ID, "w1")
	require.Error(t, err, "the task must stay pending")

	got, err := f.jobRepo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status, "left for lease recovery")
	assert.Nil(t, got.CompletedAt)
}

// cancellingSource simulates a shutdown signal arriving during the fetch.
type cancellingSource struct {
	source.CatalogSource
	cancel context.CancelFunc
}

func (s *cancellingSource) FetchPage(ctx context.Context, entity source.Entity, cursor, limit int) (*source.Page, error) {
	s.cancel()
	return s.CatalogSource.FetchPage(ctx, entity, cursor, limit)
}
