package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/timmy/lenscat/internal/domain"
	"gorm.io/gorm"
)

// PricingTierRepository reads the markup tier table.
type PricingTierRepository struct {
	db *gorm.DB
}

// NewPricingTierRepository creates a new PricingTierRepository.
func NewPricingTierRepository(db *gorm.DB) *PricingTierRepository {
	return &PricingTierRepository{db: db}
}

// ListActive returns active tiers ordered by min_cost ascending.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.PricingTier: active tiers, possibly empty.
//   - error: non-nil if the query fails.
func (r *PricingTierRepository) ListActive(ctx context.Context) ([]domain.PricingTier, error) {
	var tiers []domain.PricingTier
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("min_cost ASC").
		Order("display_order ASC").
		Find(&tiers).Error
	return tiers, err
}

// Create inserts a tier, assigning an ID when missing.
func (r *PricingTierRepository) Create(ctx context.Context, tier *domain.PricingTier) error {
	if tier.ID == "" {
		tier.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(tier).Error
}
