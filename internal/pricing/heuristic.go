package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/timmy/lenscat/internal/domain"
)

// BrandHeuristic classifies a product by substring match on its brand name
// and derives a coarse seed price. The tier table stays authoritative; the
// seed only fills prices that were never set.
type BrandHeuristic struct {
	PremiumBrands []string
	BudgetBrands  []string
	Multipliers   map[domain.TierName]decimal.Decimal
}

// DefaultBrandHeuristic returns the built-in brand lists and multipliers.
func DefaultBrandHeuristic() *BrandHeuristic {
	return &BrandHeuristic{
		PremiumBrands: []string{"ray-ban", "oakley", "prada", "gucci", "tom ford", "persol", "versace", "cartier"},
		BudgetBrands:  []string{"generic", "basic", "value", "economy"},
		Multipliers: map[domain.TierName]decimal.Decimal{
			domain.TierPremium:  decimal.NewFromFloat(2.5),
			domain.TierMidRange: decimal.NewFromFloat(2.0),
			domain.TierBudget:   decimal.NewFromFloat(1.8),
		},
	}
}

// Classify returns the tier bucket for a brand name. Matching is case-insensitive.
func (h *BrandHeuristic) Classify(brand string) domain.TierName {
	name := strings.ToLower(brand)
	for _, b := range h.PremiumBrands {
		if b != "" && strings.Contains(name, strings.ToLower(b)) {
			return domain.TierPremium
		}
	}
	for _, b := range h.BudgetBrands {
		if b != "" && strings.Contains(name, strings.ToLower(b)) {
			return domain.TierBudget
		}
	}
	return domain.TierMidRange
}

// SeedPrice returns cost times the tier multiplier rounded to cents.
// The second result is false when there is no cost to derive from.
func (h *BrandHeuristic) SeedPrice(tier domain.TierName, cost *decimal.Decimal) (decimal.Decimal, bool) {
	if cost == nil || cost.IsZero() {
		return decimal.Zero, false
	}
	m, ok := h.Multipliers[tier]
	if !ok {
		m = h.Multipliers[domain.TierMidRange]
	}
	return cost.Mul(m).Round(2), true
}
