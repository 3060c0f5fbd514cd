// Package pricing holds the retail price math shared by the recalculation
// engine and the admin API. Everything here is pure and uses decimal money.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/timmy/lenscat/internal/domain"
)

// DozenPackSize is the unit count of a dozen-packaged product.
const DozenPackSize = 12

var (
	// ErrUnknownFormula is returned for a formula other than 1 or 2.
	ErrUnknownFormula = errors.New("unknown pricing formula")

	// ErrMissingCost is returned when a product has no wholesale cost.
	ErrMissingCost = errors.New("product has no wholesale cost")

	// ErrNoMatchingTier is returned when no tier bracket contains the unit cost.
	ErrNoMatchingTier = errors.New("no pricing tier matches cost")
)

var dozen = decimal.NewFromInt(DozenPackSize)

// ParseFormula converts a raw selector into a PricingFormula.
// Parameters:
//   - n: formula selector as sent by the admin client.
// Returns:
//   - domain.PricingFormula: the validated formula.
//   - error: ErrUnknownFormula when n is not 1 or 2.
func ParseFormula(n int) (domain.PricingFormula, error) {
	f := domain.PricingFormula(n)
	if !f.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFormula, n)
	}
	return f, nil
}

// UnitCost returns the per-unit cost used for bracket lookup.
// Dozen packs are divided by twelve; the pack cost itself is still what the
// formula multiplies.
func UnitCost(cost decimal.Decimal, isDozen bool) decimal.Decimal {
	if isDozen {
		return cost.Div(dozen)
	}
	return cost
}

// FindTier returns the first active tier whose [MinCost, MaxCost) bracket
// contains unitCost. Tiers are expected in ascending MinCost order.
// Parameters:
//   - tiers: active pricing tiers.
//   - unitCost: normalized per-unit cost.
// Returns:
//   - *domain.PricingTier: matching tier.
//   - error: ErrNoMatchingTier when no bracket contains the cost.
func FindTier(tiers []domain.PricingTier, unitCost decimal.Decimal) (*domain.PricingTier, error) {
	for i := range tiers {
		t := &tiers[i]
		if !t.IsActive {
			continue
		}
		if unitCost.LessThan(t.MinCost) {
			continue
		}
		if t.MaxCost != nil && !unitCost.LessThan(*t.MaxCost) {
			continue
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoMatchingTier, unitCost.StringFixed(2))
}

// ComputePrice applies the formula and rounds to currency precision.
//
//	formula 1: shipping + cost * markup
//	formula 2: cost * markup
func ComputePrice(formula domain.PricingFormula, cost, markup, shipping decimal.Decimal) (decimal.Decimal, error) {
	base := cost.Mul(markup)
	switch formula {
	case domain.PricingFormulaWithShipping:
		return shipping.Add(base).Round(2), nil
	case domain.PricingFormulaCostOnly:
		return base.Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %d", ErrUnknownFormula, formula)
	}
}

// Quote is the outcome of pricing one product.
type Quote struct {
	Tier  *domain.PricingTier
	Price decimal.Decimal
}

// PriceProduct resolves the tier for p and computes its new price.
func PriceProduct(p *domain.Product, tiers []domain.PricingTier, formula domain.PricingFormula, shipping decimal.Decimal) (*Quote, error) {
	if p.WholesaleCost == nil {
		return nil, ErrMissingCost
	}
	tier, err := FindTier(tiers, UnitCost(*p.WholesaleCost, p.IsDozen))
	if err != nil {
		return nil, err
	}
	price, err := ComputePrice(formula, *p.WholesaleCost, tier.MarkupMultiplier, shipping)
	if err != nil {
		return nil, err
	}
	return &Quote{Tier: tier, Price: price}, nil
}
