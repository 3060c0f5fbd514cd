package pricing

import (
	"testing"

	"github.com/timmy/lenscat/internal/domain"
)

func issueKinds(issues []TierIssue) map[TierIssueKind]int {
	kinds := make(map[TierIssueKind]int)
	for _, i := range issues {
		kinds[i.Kind]++
	}
	return kinds
}

func TestValidateTiers(t *testing.T) {
	testCases := []struct {
		name  string
		tiers []domain.PricingTier
		want  map[TierIssueKind]int
	}{
		{
			name:  "contiguous partition",
			tiers: standardTiers(),
			want:  map[TierIssueKind]int{},
		},
		{
			name: "gap between tiers",
			tiers: []domain.PricingTier{
				{TierName: "a", MinCost: dec("0"), MaxCost: decPtr("10"), MarkupMultiplier: dec("2"), IsActive: true},
				{TierName: "b", MinCost: dec("12"), MarkupMultiplier: dec("2"), IsActive: true},
			},
			want: map[TierIssueKind]int{TierIssueGap: 1},
		},
		{
			name: "overlap between tiers",
			tiers: []domain.PricingTier{
				{TierName: "a", MinCost: dec("0"), MaxCost: decPtr("15"), MarkupMultiplier: dec("2"), IsActive: true},
				{TierName: "b", MinCost: dec("10"), MarkupMultiplier: dec("2"), IsActive: true},
			},
			want: map[TierIssueKind]int{TierIssueOverlap: 1},
		},
		{
			name: "first tier not at zero and bounded last",
			tiers: []domain.PricingTier{
				{TierName: "a", MinCost: dec("5"), MaxCost: decPtr("15"), MarkupMultiplier: dec("2"), IsActive: true},
			},
			want: map[TierIssueKind]int{TierIssueFirstMin: 1, TierIssueGap: 1},
		},
		{
			name: "inactive tiers ignored",
			tiers: append(standardTiers(), domain.PricingTier{
				TierName: "old", MinCost: dec("3"), MaxCost: decPtr("4"), MarkupMultiplier: dec("9"), IsActive: false,
			}),
			want: map[TierIssueKind]int{},
		},
		{
			name: "negative markup",
			tiers: []domain.PricingTier{
				{TierName: "a", MinCost: dec("0"), MarkupMultiplier: dec("-1"), IsActive: true},
			},
			want: map[TierIssueKind]int{TierIssueNegative: 1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := issueKinds(ValidateTiers(tc.tiers))
			if len(got) != len(tc.want) {
				t.Fatalf("issue kinds = %v, want %v", got, tc.want)
			}
			for k, n := range tc.want {
				if got[k] != n {
					t.Errorf("%s issues = %d, want %d", k, got[k], n)
				}
			}
		})
	}
}

func TestBrandHeuristicClassify(t *testing.T) {
	h := DefaultBrandHeuristic()
	testCases := []struct {
		brand string
		want  domain.TierName
	}{
		{"Ray-Ban", domain.TierPremium},
		{"OAKLEY Sport", domain.TierPremium},
		{"Generic Readers", domain.TierBudget},
		{"Acme Optical", domain.TierMidRange},
		{"", domain.TierMidRange},
	}
	for _, tc := range testCases {
		if got := h.Classify(tc.brand); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.brand, got, tc.want)
		}
	}
}

func TestBrandHeuristicSeedPrice(t *testing.T) {
	h := DefaultBrandHeuristic()
	price, ok := h.SeedPrice(domain.TierPremium, decPtr("20"))
	if !ok || price.StringFixed(2) != "50.00" {
		t.Errorf("SeedPrice = %s, %v; want 50.00, true", price.StringFixed(2), ok)
	}
	if _, ok := h.SeedPrice(domain.TierBudget, nil); ok {
		t.Errorf("SeedPrice without cost should report false")
	}
}
