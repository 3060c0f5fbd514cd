package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingTier maps a per-unit cost bracket [MinCost, MaxCost) to a markup.
// A nil MaxCost leaves the bracket unbounded above.
type PricingTier struct {
	ID               string           `gorm:"type:text;primaryKey" json:"id"`
	TierName         string           `gorm:"type:text;not null" json:"tier_name"`
	MinCost          decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"min_cost"`
	MaxCost          *decimal.Decimal `gorm:"type:decimal(12,2)" json:"max_cost"`
	MarkupMultiplier decimal.Decimal  `gorm:"type:decimal(8,4);not null" json:"markup_multiplier"`
	DisplayOrder     int              `gorm:"not null;default:0" json:"display_order"`
	IsActive         bool             `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TableName returns the database table name for PricingTier.
func (PricingTier) TableName() string {
	return "pricing_tiers"
}
