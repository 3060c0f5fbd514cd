package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidRecord is wrapped by every parse failure.
var ErrInvalidRecord = errors.New("invalid catalog record")

// LookupRecord is a parsed brand, category, or material.
type LookupRecord struct {
	ERPID string
	Name  string
}

// ProductRecord is a parsed ERP product. Optional ERP fields are pointers.
type ProductRecord struct {
	ERPID         string
	Name          string
	BrandERPID    string
	SKU           *string
	Description   *string
	CategoryERPID *string
	MaterialERPID *string
	Cost          *decimal.Decimal
	IsDozen       bool
	ProductType   *string
	Stock         int
	Active        bool
}

// erpLookup and erpProduct carry the ERP's own field names.
type erpLookup struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type erpProduct struct {
	ID          string           `json:"_id"`
	Name        string           `json:"name"`
	Brand       string           `json:"brand"`
	SKU         *string          `json:"sku"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Material    *string          `json:"frame_material"`
	Cost        *decimal.Decimal `json:"cost"`
	Dozen       *bool            `json:"sold_by_dozen"`
	ProductType *string          `json:"product_type"`
	Stock       *json.Number     `json:"stock"`
	Active      *bool            `json:"active"`
}

// ParseLookup decodes and validates a lookup record.
func ParseLookup(raw json.RawMessage) (*LookupRecord, error) {
	var r erpLookup
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return nil, fmt.Errorf("%w: missing _id", ErrInvalidRecord)
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: lookup %s missing name", ErrInvalidRecord, r.ID)
	}
	return &LookupRecord{ERPID: r.ID, Name: name}, nil
}

// ParseProduct decodes and validates a product record.
// _id, name and brand are required; everything else is optional.
func ParseProduct(raw json.RawMessage) (*ProductRecord, error) {
	var r erpProduct
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	id := strings.TrimSpace(r.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: missing _id", ErrInvalidRecord)
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: product %s missing name", ErrInvalidRecord, id)
	}
	brand := strings.TrimSpace(r.Brand)
	if brand == "" {
		return nil, fmt.Errorf("%w: product %s missing brand", ErrInvalidRecord, id)
	}
	if r.Cost != nil && r.Cost.IsNegative() {
		return nil, fmt.Errorf("%w: product %s has negative cost", ErrInvalidRecord, id)
	}

	rec := &ProductRecord{
		ERPID:         id,
		Name:          name,
		BrandERPID:    brand,
		SKU:           nonEmpty(r.SKU),
		Description:   nonEmpty(r.Description),
		CategoryERPID: nonEmpty(r.Category),
		MaterialERPID: nonEmpty(r.Material),
		Cost:          r.Cost,
		ProductType:   nonEmpty(r.ProductType),
		Active:        true,
	}
	if r.Dozen != nil {
		rec.IsDozen = *r.Dozen
	}
	if r.Active != nil {
		rec.Active = *r.Active
	}
	if r.Stock != nil {
		stock, err := parseStock(*r.Stock)
		if err != nil {
			return nil, fmt.Errorf("%w: product %s has invalid stock %q: %v", ErrInvalidRecord, id, r.Stock.String(), err)
		}
		rec.Stock = stock
	}
	return rec, nil
}

var (
	minStock = decimal.NewFromInt(math.MinInt32)
	maxStock = decimal.NewFromInt(math.MaxInt32)
)

// parseStock accepts whole numbers in int32 range, including forms like 12.0 or 1e2.
func parseStock(n json.Number) (int, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, errors.New("not a whole number")
	}
	if d.LessThan(minStock) || d.GreaterThan(maxStock) {
		return 0, errors.New("out of range")
	}
	return int(d.IntPart()), nil
}

// PeekERPID extracts _id from a raw record without full validation.
// Used to label error rows for records that fail to parse.
func PeekERPID(raw json.RawMessage) string {
	var r struct {
		ID string `json:"_id"`
	}
	_ = json.Unmarshal(raw, &r)
	return r.ID
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
