package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/metrics"
	"github.com/timmy/lenscat/internal/pricing"
	"github.com/timmy/lenscat/internal/repository"
	"github.com/timmy/lenscat/internal/source"
	"gorm.io/datatypes"
)

// Sync progress bands.
const (
	syncProgressFetch   = 5
	syncProgressLookups = 10
	syncProgressBase    = 15
	syncProgressSpan    = 80
	syncProgressCeil    = 95
)

// SyncService mirrors the ERP catalog into local tables.
type SyncService struct {
	catalog    *repository.CatalogRepository
	syncErrors *repository.SyncErrorRepository
	src        source.CatalogSource
	heuristic  *pricing.BrandHeuristic
	metrics    *metrics.JobMetrics
	batchSize  int
	pageSize   int
}

// SyncConfig holds configuration for the sync service.
type SyncConfig struct {
	BatchSize int
	PageSize  int
}

// NewSyncService creates a new sync service.
// Parameters:
//   - catalog: product and lookup store.
//   - syncErrors: per-record error log.
//   - src: ERP catalog source.
//   - heuristic: brand classifier used to seed prices; nil uses the defaults.
//   - m: metrics recorder, may be nil.
//   - cfg: batch and page sizes.
// Returns:
//   - *SyncService: configured service.
func NewSyncService(
	catalog *repository.CatalogRepository,
	syncErrors *repository.SyncErrorRepository,
	src source.CatalogSource,
	heuristic *pricing.BrandHeuristic,
	m *metrics.JobMetrics,
	cfg *SyncConfig,
) *SyncService {
	if heuristic == nil {
		heuristic = pricing.DefaultBrandHeuristic()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SyncService{
		catalog:    catalog,
		syncErrors: syncErrors,
		src:        src,
		heuristic:  heuristic,
		metrics:    m,
		batchSize:  batchSize,
		pageSize:   cfg.PageSize,
	}
}

// Source returns the catalog source the service reads from.
func (s *SyncService) Source() source.CatalogSource {
	return s.src
}

// SyncRequest describes one sync run.
type SyncRequest struct {
	SyncType  domain.SyncType
	TestLimit *int
	LogID     string
}

// lookupMaps holds erp_id to local id maps plus brand names for classification.
type lookupMaps struct {
	brands     map[string]string
	brandNames map[string]string
	categories map[string]string
	materials  map[string]string
}

// syncRun is the mutable state of one Run call.
type syncRun struct {
	req    SyncRequest
	result *domain.SyncResult
	seen   map[string]struct{}
	now    time.Time
}

// Run fetches the catalog and upserts every product in batches.
// Fetch and lookup failures abort the run; per-record failures are logged to
// erp_sync_errors and counted. Cancellation is checked before every batch.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: sync type, optional record cap and the log id for error rows.
//   - rep: progress sink and cancellation source.
// Returns:
//   - *domain.SyncResult: run summary, also returned when cancelled.
//   - error: fatal error; the result is nil in that case.
func (s *SyncService) Run(ctx context.Context, req SyncRequest, rep ProgressReporter) (*domain.SyncResult, error) {
	if rep == nil {
		rep = NopReporter()
	}
	start := time.Now()
	run := &syncRun{
		req:    req,
		result: &domain.SyncResult{Errors: []domain.ErrorSample{}},
		seen:   make(map[string]struct{}),
	}

	limit := 0
	if req.TestLimit != nil {
		limit = *req.TestLimit
	}
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldSource: s.src.Name(),
		"sync_type":        req.SyncType,
		"test_limit":       limit,
	}).Info("Starting ERP sync")

	if err := rep.ReportProgress(ctx, domain.Progress{Percent: syncProgressFetch, Step: "Fetching products from ERP"}); err != nil {
		return nil, err
	}
	raws, err := source.FetchAll(ctx, s.src, source.EntityProduct, s.pageSize, limit)
	if err != nil {
		return nil, stageErr("fetch_products", fmt.Errorf("%w: %v", ErrSourceUnavailable, err))
	}
	run.result.RecordsFetched = len(raws)
	total := len(raws)

	if err := rep.ReportProgress(ctx, domain.Progress{
		Percent: syncProgressLookups,
		Step:    "Fetching brands, categories and materials",
		Total:   intPtr(total),
	}); err != nil {
		return nil, err
	}
	lookups, err := s.syncLookups(ctx)
	if err != nil {
		return nil, err
	}

	if err := rep.ReportProgress(ctx, domain.Progress{
		Percent: syncProgressBase,
		Step:    fmt.Sprintf("Syncing %d products", total),
		Total:   intPtr(total),
	}); err != nil {
		return nil, err
	}

	for offset := 0; offset < total; offset += s.batchSize {
		cancelled, err := rep.CancelRequested(ctx)
		if err != nil {
			return nil, err
		}
		if cancelled {
			run.result.Cancelled = true
			s.log(ctx).WithField(logger.FieldProgress, offset).Info("Sync cancelled at batch boundary")
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := offset + s.batchSize
		if end > total {
			end = total
		}
		run.now = time.Now().UTC()
		for _, raw := range raws[offset:end] {
			s.syncProduct(ctx, run, lookups, raw)
		}
		run.result.RecordsProcessed = end

		r := run.result
		if err := rep.ReportProgress(ctx, domain.Progress{
			Percent:     domain.ClampProgress(syncProgressBase, syncProgressSpan, end, total, syncProgressCeil),
			Step:        fmt.Sprintf("Processed %d of %d products (%d created, %d updated, %d errors)", end, total, r.RecordsCreated, r.RecordsUpdated, r.ErrorCount),
			CurrentItem: end,
			Total:       intPtr(total),
		}); err != nil {
			return nil, err
		}
	}

	r := run.result
	r.Success = tolerated(r.ErrorCount, r.RecordsProcessed)
	r.DurationMs = time.Since(start).Milliseconds()

	s.metrics.SyncRecords(metrics.OutcomeCreated, r.RecordsCreated)
	s.metrics.SyncRecords(metrics.OutcomeUpdated, r.RecordsUpdated)
	s.metrics.SyncRecords(metrics.OutcomeSkipped, r.RecordsSkipped)
	s.metrics.SyncRecords(metrics.OutcomeError, r.ErrorCount)

	logger.With(logger.Fields{
		logger.FieldDurationMs: r.DurationMs,
		logger.FieldCount:      r.RecordsProcessed,
		logger.FieldErrorCount: r.ErrorCount,
		"created":              r.RecordsCreated,
		"updated":              r.RecordsUpdated,
		"skipped":              r.RecordsSkipped,
		"cancelled":            r.Cancelled,
	}).Info(ctx, "ERP sync finished")

	return r, nil
}

// syncLookups fetches and upserts brands, categories and materials.
func (s *SyncService) syncLookups(ctx context.Context) (*lookupMaps, error) {
	maps := &lookupMaps{brandNames: make(map[string]string)}

	for _, entity := range source.LookupEntities {
		raws, err := source.FetchAll(ctx, s.src, entity, s.pageSize, 0)
		if err != nil {
			return nil, stageErr("fetch_lookups", fmt.Errorf("%w: %v", ErrSourceUnavailable, err))
		}

		rows := make([]repository.Lookup, 0, len(raws))
		for _, raw := range raws {
			rec, err := source.ParseLookup(raw)
			if err != nil {
				s.log(ctx).WithFields(logger.Fields{
					logger.FieldEntity: entity,
					logger.FieldERPID:  source.PeekERPID(raw),
				}).WithError(err).Warn("Skipping invalid lookup record")
				continue
			}
			rows = append(rows, repository.Lookup{ERPID: rec.ERPID, Name: rec.Name})
			if entity == source.EntityBrand {
				maps.brandNames[rec.ERPID] = rec.Name
			}
		}

		var ids map[string]string
		switch entity {
		case source.EntityBrand:
			ids, err = s.catalog.UpsertBrands(ctx, rows)
			maps.brands = ids
		case source.EntityCategory:
			ids, err = s.catalog.UpsertCategories(ctx, rows)
			maps.categories = ids
		case source.EntityMaterial:
			ids, err = s.catalog.UpsertMaterials(ctx, rows)
			maps.materials = ids
		}
		if err != nil {
			return nil, stageErr("upsert_lookups", err)
		}

		s.log(ctx).WithFields(logger.Fields{
			logger.FieldEntity: entity,
			logger.FieldCount:  len(rows),
		}).Debug("Lookups synced")
	}
	return maps, nil
}

// syncProduct processes one raw record. It never returns an error: failures
// are recorded against the run and processing moves on.
func (s *SyncService) syncProduct(ctx context.Context, run *syncRun, lookups *lookupMaps, raw json.RawMessage) {
	erpID := source.PeekERPID(raw)
	defer func() {
		if p := recover(); p != nil {
			s.recordError(ctx, run, erpID, raw, domain.SyncErrorProcessingFailed, fmt.Errorf("panic: %v", p))
		}
	}()

	rec, err := source.ParseProduct(raw)
	if err != nil {
		s.recordError(ctx, run, erpID, raw, domain.SyncErrorInvalidRecord, err)
		return
	}
	if _, dup := run.seen[rec.ERPID]; dup {
		run.result.RecordsSkipped++
		s.log(ctx).WithField(logger.FieldERPID, rec.ERPID).Debug("Skipping duplicate record in snapshot")
		return
	}

	brandID, ok := lookups.brands[rec.BrandERPID]
	if !ok {
		s.recordError(ctx, run, rec.ERPID, raw, domain.SyncErrorBrandUnresolved, fmt.Errorf("brand %s not found", rec.BrandERPID))
		return
	}

	existing, err := s.catalog.GetProductByERPID(ctx, rec.ERPID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.recordError(ctx, run, rec.ERPID, raw, domain.SyncErrorProcessingFailed, err)
		return
	}

	product := buildProduct(rec, brandID, lookups, run.now)
	product.PricingTier = s.heuristic.Classify(lookups.brandNames[rec.BrandERPID])
	if existing != nil {
		product.ID = existing.ID
		product.Price = existing.Price
	}
	seeded := false
	if existing == nil || (existing.Price.IsZero() && !existing.PriceOverride) {
		if seed, ok := s.heuristic.SeedPrice(product.PricingTier, rec.Cost); ok {
			product.Price = seed
			seeded = true
		}
	}

	if err := s.catalog.UpsertProduct(ctx, product); err != nil {
		s.recordError(ctx, run, rec.ERPID, raw, domain.SyncErrorUpsertFailed, err)
		return
	}
	// Only written records count as seen, so a later valid copy of a failed one is still synced.
	run.seen[rec.ERPID] = struct{}{}
	if seeded {
		run.result.PricesSeeded++
	}
	if existing == nil {
		run.result.RecordsCreated++
	} else {
		run.result.RecordsUpdated++
	}
}

func buildProduct(rec *source.ProductRecord, brandID string, lookups *lookupMaps, now time.Time) *domain.Product {
	p := &domain.Product{
		ID:            uuid.NewString(),
		ERPID:         rec.ERPID,
		Name:          rec.Name,
		BrandID:       brandID,
		WholesaleCost: rec.Cost,
		IsDozen:       rec.IsDozen,
		StockQuantity: rec.Stock,
		IsActive:      rec.Active,
		LastSyncedAt:  &now,
	}
	if rec.SKU != nil {
		p.SKU = *rec.SKU
	}
	if rec.Description != nil {
		p.Description = *rec.Description
	}
	if rec.ProductType != nil {
		p.ProductType = *rec.ProductType
	}
	if rec.CategoryERPID != nil {
		if id, ok := lookups.categories[*rec.CategoryERPID]; ok {
			p.CategoryID = &id
		}
	}
	if rec.MaterialERPID != nil {
		if id, ok := lookups.materials[*rec.MaterialERPID]; ok {
			p.MaterialID = &id
		}
	}
	return p
}

// recordError appends an erp_sync_errors row and counts the failure.
// A failure to write the row is logged and does not stop the run.
func (s *SyncService) recordError(ctx context.Context, run *syncRun, erpID string, raw json.RawMessage, kind domain.SyncErrorType, cause error) {
	r := run.result
	r.ErrorCount++
	if len(r.Errors) < domain.MaxErrorSamples {
		r.Errors = append(r.Errors, domain.ErrorSample{ERPID: erpID, ErrorType: string(kind), Message: cause.Error()})
	}

	row := &domain.SyncError{
		LogID:        run.req.LogID,
		ERPID:        erpID,
		ErrorType:    kind,
		ErrorMessage: cause.Error(),
		RawPayload:   rawPayload(raw),
	}
	if err := s.syncErrors.Create(ctx, row); err != nil {
		s.log(ctx).WithField(logger.FieldERPID, erpID).WithError(err).Error("Failed to record sync error")
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldERPID: erpID,
		"error_type":      kind,
	}).WithError(cause).Warn("Product sync failed")
}

// rawPayload keeps the record as JSON; bytes that are not valid JSON are
// stored as a JSON string.
func rawPayload(raw json.RawMessage) datatypes.JSON {
	if json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return datatypes.JSON(quoted)
}

// log returns a logger from context if available.
func (s *SyncService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "sync")
}
