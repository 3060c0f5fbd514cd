package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/timmy/lenscat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lookup is an ERP brand, category or material ready to upsert.
type Lookup struct {
	ERPID string
	Name  string
}

// CatalogRepository mirrors ERP catalog entities keyed by erp_id.
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CatalogRepository: repository instance bound to db.
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// UpsertBrands upserts brands by erp_id and returns erp_id to local id for all brands.
func (r *CatalogRepository) UpsertBrands(ctx context.Context, rows []Lookup) (map[string]string, error) {
	return upsertLookups(ctx, r.db, rows, func(l Lookup) domain.Brand {
		return domain.Brand{ID: uuid.NewString(), ERPID: l.ERPID, Name: l.Name}
	})
}

// UpsertCategories upserts categories by erp_id and returns the full id map.
func (r *CatalogRepository) UpsertCategories(ctx context.Context, rows []Lookup) (map[string]string, error) {
	return upsertLookups(ctx, r.db, rows, func(l Lookup) domain.Category {
		return domain.Category{ID: uuid.NewString(), ERPID: l.ERPID, Name: l.Name}
	})
}

// UpsertMaterials upserts materials by erp_id and returns the full id map.
func (r *CatalogRepository) UpsertMaterials(ctx context.Context, rows []Lookup) (map[string]string, error) {
	return upsertLookups(ctx, r.db, rows, func(l Lookup) domain.Material {
		return domain.Material{ID: uuid.NewString(), ERPID: l.ERPID, Name: l.Name}
	})
}

// upsertLookups writes rows with ON CONFLICT (erp_id) DO UPDATE and reads back
// the id map. Existing rows keep their local id.
func upsertLookups[T domain.LookupEntity](ctx context.Context, db *gorm.DB, rows []Lookup, build func(Lookup) T) (map[string]string, error) {
	db = db.WithContext(ctx)
	if len(rows) > 0 {
		models := make([]T, 0, len(rows))
		for _, l := range rows {
			models = append(models, build(l))
		}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "erp_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
		}).CreateInBatches(&models, 200).Error
		if err != nil {
			return nil, fmt.Errorf("failed to upsert lookups: %w", err)
		}
	}

	var pairs []struct {
		ERPID string `gorm:"column:erp_id"`
		ID    string
	}
	if err := db.Model(new(T)).Select("erp_id", "id").Find(&pairs).Error; err != nil {
		return nil, fmt.Errorf("failed to load lookup ids: %w", err)
	}
	ids := make(map[string]string, len(pairs))
	for _, p := range pairs {
		ids[p.ERPID] = p.ID
	}
	return ids, nil
}

// GetProductByERPID retrieves a product by its ERP id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - erpID: ERP identifier.
// Returns:
//   - *domain.Product: product if found.
//   - error: ErrNotFound if no product has this erp_id.
func (r *CatalogRepository) GetProductByERPID(ctx context.Context, erpID string) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).First(&p, "erp_id = ?", erpID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// productSyncColumns are overwritten on every sync; price_override and
// created_at are owned locally and never touched by the ERP mirror.
var productSyncColumns = []string{
	"name", "sku", "description", "brand_id", "category_id", "material_id",
	"wholesale_cost", "price", "pricing_tier", "is_dozen", "product_type",
	"stock_quantity", "is_active", "last_synced_at", "updated_at",
}

// UpsertProduct inserts or updates a product keyed by erp_id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - p: product to write; ID is used only when the row is new.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "erp_id"}},
		DoUpdates: clause.AssignmentColumns(productSyncColumns),
	}).Create(p).Error
}

// ListActiveProducts returns all active products ordered by id.
func (r *CatalogRepository) ListActiveProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&products).Error
	return products, err
}

// ListProductsByIDs returns the products with the given local ids.
func (r *CatalogRepository) ListProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	var products []domain.Product
	for start := 0; start < len(ids); start += 500 {
		end := start + 500
		if end > len(ids) {
			end = len(ids)
		}
		var chunk []domain.Product
		if err := r.db.WithContext(ctx).Where("id IN ?", ids[start:end]).Order("id ASC").Find(&chunk).Error; err != nil {
			return nil, err
		}
		products = append(products, chunk...)
	}
	return products, nil
}

// CountProducts returns the number of mirrored products.
func (r *CatalogRepository) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Product{}).Count(&n).Error
	return n, err
}

// PriceUpdate is one product price write from the recalculation engine.
type PriceUpdate struct {
	ProductID string
	Price     decimal.Decimal
}

// ApplyPrices writes a chunk of prices in one transaction.
// With respectOverrides the write is guarded by price_override = false, so a
// product flagged between load and write is left untouched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - updates: prices to write.
//   - respectOverrides: guard writes on price_override.
// Returns:
//   - []string: ids that were not written because the guard rejected them.
//   - error: non-nil if the transaction fails; no price in the chunk is written.
func (r *CatalogRepository) ApplyPrices(ctx context.Context, updates []PriceUpdate, respectOverrides bool) ([]string, error) {
	var guarded []string
	ts := now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guarded = guarded[:0]
		for _, u := range updates {
			q := tx.Model(&domain.Product{}).Where("id = ?", u.ProductID)
			if respectOverrides {
				q = q.Where("price_override = ?", false)
			}
			res := q.Updates(map[string]interface{}{"price": u.Price, "updated_at": ts})
			if res.Error != nil {
				return fmt.Errorf("failed to update price of %s: %w", u.ProductID, res.Error)
			}
			if res.RowsAffected == 0 {
				guarded = append(guarded, u.ProductID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return guarded, nil
}
