package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/lenscat/internal/domain"
)

// TestRecalculationFormulas checks the worked examples for cost 15 in the 2.2x tier.
func TestRecalculationFormulas(t *testing.T) {
	testCases := []struct {
		name    string
		formula domain.PricingFormula
		want    string
	}{
		{name: "formula 1 includes shipping", formula: domain.PricingFormulaWithShipping, want: "58.00"},
		{name: "formula 2 excludes shipping", formula: domain.PricingFormulaCostOnly, want: "33.00"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.seedTiers(t)
			f.seedProduct(t, "p1", "15", nil)

			res, err := f.recalc.Run(context.Background(), domain.RecalculationParams{
				PricingFormula: tc.formula,
				ShippingCost:   25,
			}, nil)
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, domain.RecalculationStats{Total: 1, Updated: 1}, res.Stats)
			assert.Equal(t, tc.want, f.price(t, "p1"))
		})
	}
}

func TestRecalculationRespectsOverrides(t *testing.T) {
	f := newFixture(t, nil)
	f.seedTiers(t)
	f.seedProduct(t, "locked", "15", func(p *domain.Product) {
		p.Price = dec("99")
		p.PriceOverride = true
	})
	f.seedProduct(t, "free", "15", nil)

	res, err := f.recalc.Run(context.Background(), domain.RecalculationParams{
		PricingFormula:   domain.PricingFormulaCostOnly,
		RespectOverrides: true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Updated)
	assert.Equal(t, 1, res.Stats.Skipped)
	assert.Equal(t, "99.00", f.price(t, "locked"))
	assert.Equal(t, "33.00", f.price(t, "free"))

	res, err = f.recalc.Run(context.Background(), domain.RecalculationParams{
		PricingFormula: domain.PricingFormulaCostOnly,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Updated)
	assert.Equal(t, "33.00", f.price(t, "locked"), "overrides are ignored when not respected")
}

func TestRecalculationNormalizesDozens(t *testing.T) {
	f := newFixture(t, nil)
	f.seedTiers(t)
	f.seedProduct(t, "dozen", "180", func(p *domain.Product) { p.IsDozen = true })

	_, err := f.recalc.Run(context.Background(), domain.RecalculationParams{PricingFormula: domain.PricingFormulaCostOnly}, nil)
	require.NoError(t, err)
	assert.Equal(t, "396.00", f.price(t, "dozen"), "180/12 = 15 brackets into the 2.2x tier")
}

func TestRecalculationCountsPerProductErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.seedTiers(t)
	f.seedProduct(t, "nocost", "", nil)
	f.seedProduct(t, "ok1", "15", nil)
	f.seedProduct(t, "ok2", "5", nil)

	res, err := f.recalc.Run(context.Background(), domain.RecalculationParams{PricingFormula: domain.PricingFormulaCostOnly}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RecalculationStats{Total: 3, Updated: 2, Errors: 1}, res.Stats)
	assert.True(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, recalcErrMissingCost, res.Errors[0].ErrorType)
	assert.Equal(t, "15.00", f.price(t, "ok2"))
}

func TestRecalculationSelectsProductIDs(t *testing.T) {
	f := newFixture(t, nil)
	f.seedTiers(t)
	a := f.seedProduct(t, "a", "15", nil)
	f.seedProduct(t, "b", "15", nil)

	res, err := f.recalc.Run(context.Background(), domain.RecalculationParams{
		PricingFormula: domain.PricingFormulaCostOnly,
		ProductIDs:     []string{a.ID},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Total)
	assert.Equal(t, "33.00", f.price(t, "a"))
	assert.Equal(t, "1.00", f.price(t, "b"))
}

func TestRecalculationFatalErrors(t *testing.T) {
	ctx := context.Background()
	params := domain.RecalculationParams{PricingFormula: domain.PricingFormulaCostOnly}

	f := newFixture(t, nil)
	f.seedProduct(t, "p1", "15", nil)
	_, err := f.recalc.Run(ctx, params, nil)
	assert.True(t, errors.Is(err, ErrNoPricingTiers), "got %v", err)
	assert.Equal(t, "load_tiers", errorDetails(err).Stage)

	f = newFixture(t, nil)
	f.seedTiers(t)
	_, err = f.recalc.Run(ctx, params, nil)
	assert.True(t, errors.Is(err, ErrNoProducts), "got %v", err)
}

func TestRecalculationWarnsOnTierGaps(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.tiers.Create(context.Background(), &domain.PricingTier{
		TierName: "mid", MinCost: dec("10"), MaxCost: decPtr("50"), MarkupMultiplier: dec("2"), IsActive: true,
	}))
	f.seedProduct(t, "p1", "15", nil)
	f.seedProduct(t, "cheap", "5", nil)

	res, err := f.recalc.Run(context.Background(), domain.RecalculationParams{PricingFormula: domain.PricingFormulaCostOnly}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.TierWarnings)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, recalcErrNoTier, res.Errors[0].ErrorType)
	assert.False(t, res.Success, "1 error out of 2 is not tolerated")
}

func TestRecalculationCancels(t *testing.T) {
	f := newFixture(t, nil)
	f.seedTiers(t)
	f.recalc = NewRecalculationService(f.catalog, f.tiers, nil, 1)
	f.seedProduct(t, "a", "15", nil)
	f.seedProduct(t, "b", "15", nil)
	f.seedProduct(t, "c", "15", nil)

	rep := &recordingReporter{cancelOnNth: 2}
	res, err := f.recalc.Run(context.Background(), domain.RecalculationParams{PricingFormula: domain.PricingFormulaCostOnly}, rep)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Stats.Updated)
}
