package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/queue"
	"github.com/timmy/lenscat/internal/repository"
	"github.com/timmy/lenscat/internal/repository/repotest"
	"github.com/timmy/lenscat/internal/source"
	"github.com/timmy/lenscat/internal/source/snapshot"
	"gorm.io/gorm"
)

// fixture wires the services over a private in-memory database.
type fixture struct {
	db         *gorm.DB
	catalog    *repository.CatalogRepository
	tiers      *repository.PricingTierRepository
	logs       *repository.RunLogRepository
	jobRepo    *repository.JobRepository
	syncErrors *repository.SyncErrorRepository
	queue      *fakeQueue
	jobs       *JobService
	sync       *SyncService
	recalc     *RecalculationService
	runner     *JobRunner
}

func newFixture(t *testing.T, src source.CatalogSource) *fixture {
	t.Helper()
	db := repotest.NewDB(t)
	f := &fixture{
		db:         db,
		catalog:    repository.NewCatalogRepository(db),
		tiers:      repository.NewPricingTierRepository(db),
		logs:       repository.NewRunLogRepository(db),
		jobRepo:    repository.NewJobRepository(db),
		syncErrors: repository.NewSyncErrorRepository(db),
		queue:      &fakeQueue{},
	}
	if src == nil {
		src = snapshot.NewInMemory(nil)
	}
	f.jobs = NewJobService(f.jobRepo, f.logs, f.syncErrors, f.queue, src, nil, nil, JobConfig{
		LeaseTimeout: time.Minute,
		MaxAttempts:  2,
		RequeueAfter: time.Minute,
	})
	f.sync = NewSyncService(f.catalog, f.syncErrors, src, nil, nil, &SyncConfig{BatchSize: 50, PageSize: 40})
	f.recalc = NewRecalculationService(f.catalog, f.tiers, nil, 100)
	f.runner = NewJobRunner(f.jobs, f.sync, f.recalc, time.Hour)
	return f
}

func (f *fixture) seedTiers(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, tier := range []domain.PricingTier{
		{TierName: "entry", MinCost: dec("0"), MaxCost: decPtr("10"), MarkupMultiplier: dec("3.0"), IsActive: true},
		{TierName: "core", MinCost: dec("10"), MaxCost: decPtr("50"), MarkupMultiplier: dec("2.2"), IsActive: true},
		{TierName: "luxury", MinCost: dec("50"), MarkupMultiplier: dec("1.8"), IsActive: true},
	} {
		tier := tier
		require.NoError(t, f.tiers.Create(ctx, &tier))
	}
}

// seedProduct inserts a product directly, bypassing the sync.
func (f *fixture) seedProduct(t *testing.T, erpID, cost string, mutate func(*domain.Product)) *domain.Product {
	t.Helper()
	ctx := context.Background()
	brands, err := f.catalog.UpsertBrands(ctx, []repository.Lookup{{ERPID: "b-seed", Name: "Seed Optics"}})
	require.NoError(t, err)
	p := &domain.Product{
		ID:       "id-" + erpID,
		ERPID:    erpID,
		Name:     "Frame " + erpID,
		BrandID:  brands["b-seed"],
		Price:    dec("1"),
		IsActive: true,
	}
	if cost != "" {
		p.WholesaleCost = decPtr(cost)
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, f.catalog.UpsertProduct(ctx, p))
	if p.PriceOverride {
		require.NoError(t, f.db.Model(&domain.Product{}).Where("id = ?", p.ID).Update("price_override", true).Error)
	}
	return p
}

func (f *fixture) price(t *testing.T, erpID string) string {
	t.Helper()
	p, err := f.catalog.GetProductByERPID(context.Background(), erpID)
	require.NoError(t, err)
	return p.Price.StringFixed(2)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// catalogRecords builds a snapshot with two brands and n products.
// Products listed in orphans reference a brand the ERP never returns.
func catalogRecords(n int, orphans map[int]bool) map[source.Entity][]json.RawMessage {
	products := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		brand := "b1"
		if i%2 == 1 {
			brand = "b2"
		}
		if orphans[i] {
			brand = "b-missing"
		}
		products = append(products, json.RawMessage(fmt.Sprintf(
			`{"_id":"p%03d","name":"Frame %d","brand":%q,"cost":"12.50","category":"c1","stock":4}`, i, i, brand)))
	}
	return map[source.Entity][]json.RawMessage{
		source.EntityBrand: {
			json.RawMessage(`{"_id":"b1","name":"Ray-Ban"}`),
			json.RawMessage(`{"_id":"b2","name":"Acme Eyewear"}`),
		},
		source.EntityCategory: {json.RawMessage(`{"_id":"c1","name":"Sunglasses"}`)},
		source.EntityMaterial: {json.RawMessage(`{"_id":"m1","name":"Acetate"}`)},
		source.EntityProduct:  products,
	}
}

// fakeQueue records enqueued tasks and can be made to fail.
type fakeQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, task queue.Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.tasks = append(q.tasks, task)
	return fmt.Sprintf("%d-0", len(q.tasks)), nil
}

func (q *fakeQueue) Tasks() []queue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Task(nil), q.tasks...)
}

// recordingReporter keeps every checkpoint and cancels on the Nth check.
type recordingReporter struct {
	progress    []domain.Progress
	checks      int
	cancelOnNth int
}

func (r *recordingReporter) ReportProgress(_ context.Context, p domain.Progress) error {
	r.progress = append(r.progress, p)
	return nil
}

func (r *recordingReporter) CancelRequested(context.Context) (bool, error) {
	r.checks++
	return r.cancelOnNth > 0 && r.checks >= r.cancelOnNth, nil
}

func (r *recordingReporter) percents() []int {
	out := make([]int, 0, len(r.progress))
	for _, p := range r.progress {
		out = append(out, p.Percent)
	}
	return out
}

// downSource fails every fetch.
type downSource struct{}

func (downSource) Name() string { return "down" }

func (downSource) Ping(context.Context) error {
	return fmt.Errorf("%w: connection refused", source.ErrUnavailable)
}

func (downSource) FetchPage(context.Context, source.Entity, int, int) (*source.Page, error) {
	return nil, errors.New("connection refused")
}
