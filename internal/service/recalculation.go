package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/metrics"
	"github.com/timmy/lenscat/internal/pricing"
	"github.com/timmy/lenscat/internal/repository"
)

// Recalculation progress bands.
const (
	recalcProgressLoad = 5
	recalcProgressBase = 10
	recalcProgressSpan = 85
	recalcProgressCeil = 95
)

// Per-product error types of a recalculation.
const (
	recalcErrMissingCost = "missing_cost"
	recalcErrNoTier      = "no_matching_tier"
	recalcErrPricing     = "pricing_failed"
)

// RecalculationService recomputes retail prices from the pricing tier table.
type RecalculationService struct {
	catalog   *repository.CatalogRepository
	tiers     *repository.PricingTierRepository
	metrics   *metrics.JobMetrics
	chunkSize int
}

// NewRecalculationService creates a new recalculation service.
// Parameters:
//   - catalog: product store.
//   - tiers: pricing tier store.
//   - m: metrics recorder, may be nil.
//   - chunkSize: products per progress checkpoint and write transaction.
// Returns:
//   - *RecalculationService: configured service.
func NewRecalculationService(
	catalog *repository.CatalogRepository,
	tiers *repository.PricingTierRepository,
	m *metrics.JobMetrics,
	chunkSize int,
) *RecalculationService {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	return &RecalculationService{catalog: catalog, tiers: tiers, metrics: m, chunkSize: chunkSize}
}

// Run reprices the selected products.
// A missing tier table or an empty product set aborts the run; a product
// without cost or without a matching tier is counted as an error and skipped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - params: validated recalculation parameters.
//   - rep: progress sink and cancellation source.
// Returns:
//   - *domain.RecalculationResult: run summary, also returned when cancelled.
//   - error: fatal error; the result is nil in that case.
func (s *RecalculationService) Run(ctx context.Context, params domain.RecalculationParams, rep ProgressReporter) (*domain.RecalculationResult, error) {
	if rep == nil {
		rep = NopReporter()
	}
	start := time.Now()
	log := logger.FromContext(ctx).WithField(logger.FieldComponent, "pricing")

	if err := rep.ReportProgress(ctx, domain.Progress{Percent: recalcProgressLoad, Step: "Loading pricing tiers"}); err != nil {
		return nil, err
	}
	tiers, err := s.tiers.ListActive(ctx)
	if err != nil {
		return nil, stageErr("load_tiers", err)
	}
	if len(tiers) == 0 {
		return nil, stageErr("load_tiers", ErrNoPricingTiers)
	}

	result := &domain.RecalculationResult{Errors: []domain.ErrorSample{}}
	for _, issue := range pricing.ValidateTiers(tiers) {
		result.TierWarnings = append(result.TierWarnings, issue.String())
		log.WithField("issue", issue.Kind).Warn(issue.String())
	}

	var products []domain.Product
	if len(params.ProductIDs) > 0 {
		products, err = s.catalog.ListProductsByIDs(ctx, params.ProductIDs)
	} else {
		products, err = s.catalog.ListActiveProducts(ctx)
	}
	if err != nil {
		return nil, stageErr("load_products", err)
	}
	if len(products) == 0 {
		return nil, stageErr("load_products", ErrNoProducts)
	}

	total := len(products)
	result.Stats.Total = total
	shipping := decimal.NewFromFloat(params.ShippingCost)

	if err := rep.ReportProgress(ctx, domain.Progress{
		Percent: recalcProgressBase,
		Step:    fmt.Sprintf("Recalculating %d products", total),
		Total:   intPtr(total),
	}); err != nil {
		return nil, err
	}

	for offset := 0; offset < total; offset += s.chunkSize {
		cancelled, err := rep.CancelRequested(ctx)
		if err != nil {
			return nil, err
		}
		if cancelled {
			result.Cancelled = true
			log.WithField(logger.FieldProgress, offset).Info("Recalculation cancelled at chunk boundary")
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := offset + s.chunkSize
		if end > total {
			end = total
		}
		if err := s.repriceChunk(ctx, products[offset:end], tiers, params, shipping, result); err != nil {
			return nil, err
		}

		st := result.Stats
		if err := rep.ReportProgress(ctx, domain.Progress{
			Percent:     domain.ClampProgress(recalcProgressBase, recalcProgressSpan, end, total, recalcProgressCeil),
			Step:        fmt.Sprintf("Processed %d of %d products (%d updated, %d skipped, %d errors)", end, total, st.Updated, st.Skipped, st.Errors),
			CurrentItem: end,
			Total:       intPtr(total),
		}); err != nil {
			return nil, err
		}
	}

	result.Success = tolerated(result.Stats.Errors, total)
	result.DurationMs = time.Since(start).Milliseconds()

	s.metrics.RecalculationProducts(metrics.OutcomeUpdated, result.Stats.Updated)
	s.metrics.RecalculationProducts(metrics.OutcomeSkipped, result.Stats.Skipped)
	s.metrics.RecalculationProducts(metrics.OutcomeError, result.Stats.Errors)

	logger.With(logger.Fields{
		logger.FieldDurationMs: result.DurationMs,
		logger.FieldCount:      total,
		logger.FieldErrorCount: result.Stats.Errors,
		"updated":              result.Stats.Updated,
		"skipped":              result.Stats.Skipped,
		"formula":              params.PricingFormula,
		"cancelled":            result.Cancelled,
	}).Info(ctx, "Price recalculation finished")

	return result, nil
}

// repriceChunk prices one chunk and writes it in a single transaction.
func (s *RecalculationService) repriceChunk(
	ctx context.Context,
	chunk []domain.Product,
	tiers []domain.PricingTier,
	params domain.RecalculationParams,
	shipping decimal.Decimal,
	result *domain.RecalculationResult,
) error {
	updates := make([]repository.PriceUpdate, 0, len(chunk))
	for i := range chunk {
		p := &chunk[i]
		if params.RespectOverrides && p.PriceOverride {
			result.Stats.Skipped++
			continue
		}

		quote, err := pricing.PriceProduct(p, tiers, params.PricingFormula, shipping)
		if err != nil {
			addRecalcError(result, p, err)
			continue
		}
		updates = append(updates, repository.PriceUpdate{ProductID: p.ID, Price: quote.Price})
	}
	if len(updates) == 0 {
		return nil
	}

	guarded, err := s.catalog.ApplyPrices(ctx, updates, params.RespectOverrides)
	if err != nil {
		return stageErr("write_prices", err)
	}
	result.Stats.Updated += len(updates) - len(guarded)
	result.Stats.Skipped += len(guarded)
	return nil
}

func addRecalcError(result *domain.RecalculationResult, p *domain.Product, err error) {
	result.Stats.Errors++
	if len(result.Errors) >= domain.MaxErrorSamples {
		return
	}
	kind := recalcErrPricing
	switch {
	case errors.Is(err, pricing.ErrMissingCost):
		kind = recalcErrMissingCost
	case errors.Is(err, pricing.ErrNoMatchingTier):
		kind = recalcErrNoTier
	}
	result.Errors = append(result.Errors, domain.ErrorSample{
		ERPID:     p.ERPID,
		ProductID: p.ID,
		ErrorType: kind,
		Message:   err.Error(),
	})
}
