package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TierName is the coarse price classification assigned at sync time.
type TierName string

const (
	TierPremium  TierName = "premium"
	TierMidRange TierName = "mid_range"
	TierBudget   TierName = "budget"
)

// LookupEntity is implemented by the ERP-mirrored lookup tables.
type LookupEntity interface {
	Brand | Category | Material
}

// Brand is a local mirror of an ERP brand.
type Brand struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	ERPID     string    `gorm:"column:erp_id;type:text;not null;uniqueIndex" json:"erp_id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Brand) TableName() string {
	return "brands"
}

// Category is a local mirror of an ERP category.
type Category struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	ERPID     string    `gorm:"column:erp_id;type:text;not null;uniqueIndex" json:"erp_id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}

// Material is a local mirror of an ERP frame material.
type Material struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	ERPID     string    `gorm:"column:erp_id;type:text;not null;uniqueIndex" json:"erp_id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Material) TableName() string {
	return "materials"
}

// Product is a local mirror of an ERP product plus locally owned pricing.
// Price and PriceOverride are owned by the storefront; every other column is
// overwritten on each sync.
type Product struct {
	ID            string           `gorm:"type:text;primaryKey" json:"id"`
	ERPID         string           `gorm:"column:erp_id;type:text;not null;uniqueIndex" json:"erp_id"`
	Name          string           `gorm:"type:text;not null" json:"name"`
	SKU           string           `gorm:"column:sku;type:text" json:"sku,omitempty"`
	Description   string           `gorm:"type:text" json:"description,omitempty"`
	BrandID       string           `gorm:"type:text;not null;index" json:"brand_id"`
	CategoryID    *string          `gorm:"type:text;index" json:"category_id"`
	MaterialID    *string          `gorm:"type:text" json:"material_id"`
	WholesaleCost *decimal.Decimal `gorm:"type:decimal(12,2)" json:"wholesale_cost"`
	Price         decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	PricingTier   TierName         `gorm:"type:text" json:"pricing_tier"`
	PriceOverride bool             `gorm:"not null;default:false" json:"price_override"`
	IsDozen       bool             `gorm:"not null;default:false" json:"is_dozen"`
	ProductType   string           `gorm:"type:text" json:"product_type,omitempty"`
	StockQuantity int              `gorm:"not null;default:0" json:"stock_quantity"`
	IsActive      bool             `gorm:"not null;index" json:"is_active"`
	LastSyncedAt  *time.Time       `json:"last_synced_at"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
