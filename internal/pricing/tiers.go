package pricing

import (
	"fmt"
	"sort"

	"github.com/timmy/lenscat/internal/domain"
)

// TierIssueKind classifies a data-quality problem in the tier table.
type TierIssueKind string

const (
	TierIssueGap          TierIssueKind = "gap"
	TierIssueOverlap      TierIssueKind = "overlap"
	TierIssueFirstMin     TierIssueKind = "first_min_not_zero"
	TierIssueNegative     TierIssueKind = "negative_value"
	TierIssueEmptyRange   TierIssueKind = "empty_range"
	TierIssueUnboundedMid TierIssueKind = "unbounded_not_last"
)

// TierIssue describes one problem found by ValidateTiers.
type TierIssue struct {
	Kind    TierIssueKind `json:"kind"`
	Tier    string        `json:"tier"`
	Message string        `json:"message"`
}

func (i TierIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Kind, i.Message)
}

// ValidateTiers checks that the active tiers partition [0, inf) without gaps
// or overlaps. The result is advisory; pricing still runs with bad tiers and
// surfaces bracket misses per product.
func ValidateTiers(tiers []domain.PricingTier) []TierIssue {
	active := make([]domain.PricingTier, 0, len(tiers))
	for _, t := range tiers {
		if t.IsActive {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].MinCost.LessThan(active[j].MinCost)
	})

	var issues []TierIssue
	for i, t := range active {
		if t.MinCost.IsNegative() || t.MarkupMultiplier.IsNegative() || (t.MaxCost != nil && t.MaxCost.IsNegative()) {
			issues = append(issues, TierIssue{Kind: TierIssueNegative, Tier: t.TierName,
				Message: fmt.Sprintf("tier %q has a negative cost bound or markup", t.TierName)})
		}
		if t.MaxCost != nil && !t.MinCost.LessThan(*t.MaxCost) {
			issues = append(issues, TierIssue{Kind: TierIssueEmptyRange, Tier: t.TierName,
				Message: fmt.Sprintf("tier %q has min_cost %s >= max_cost %s", t.TierName, t.MinCost.StringFixed(2), t.MaxCost.StringFixed(2))})
		}
		if i == 0 {
			if !t.MinCost.IsZero() {
				issues = append(issues, TierIssue{Kind: TierIssueFirstMin, Tier: t.TierName,
					Message: fmt.Sprintf("lowest tier %q starts at %s, costs below it cannot be priced", t.TierName, t.MinCost.StringFixed(2))})
			}
			continue
		}
		prev := active[i-1]
		if prev.MaxCost == nil {
			issues = append(issues, TierIssue{Kind: TierIssueUnboundedMid, Tier: prev.TierName,
				Message: fmt.Sprintf("tier %q is unbounded but tier %q starts after it", prev.TierName, t.TierName)})
			continue
		}
		switch cmp := t.MinCost.Cmp(*prev.MaxCost); {
		case cmp > 0:
			issues = append(issues, TierIssue{Kind: TierIssueGap, Tier: t.TierName,
				Message: fmt.Sprintf("costs in [%s, %s) match no tier", prev.MaxCost.StringFixed(2), t.MinCost.StringFixed(2))})
		case cmp < 0:
			issues = append(issues, TierIssue{Kind: TierIssueOverlap, Tier: t.TierName,
				Message: fmt.Sprintf("tier %q overlaps %q in [%s, %s)", t.TierName, prev.TierName, t.MinCost.StringFixed(2), prev.MaxCost.StringFixed(2))})
		}
	}
	if n := len(active); n > 0 && active[n-1].MaxCost != nil {
		last := active[n-1]
		issues = append(issues, TierIssue{Kind: TierIssueGap, Tier: last.TierName,
			Message: fmt.Sprintf("costs at or above %s match no tier", last.MaxCost.StringFixed(2))})
	}
	return issues
}
