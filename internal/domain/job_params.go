package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// SyncType records what triggered an ERP sync.
type SyncType string

const (
	SyncTypeManual    SyncType = "manual"
	SyncTypeScheduled SyncType = "scheduled"
)

// PricingFormula selects how a retail price is derived from cost and markup.
// 1 includes shipping in the price, 2 charges shipping separately at checkout.
type PricingFormula int

const (
	PricingFormulaWithShipping PricingFormula = 1
	PricingFormulaCostOnly     PricingFormula = 2
)

// Valid reports whether f is a supported formula.
func (f PricingFormula) Valid() bool {
	return f == PricingFormulaWithShipping || f == PricingFormulaCostOnly
}

// ErrInvalidJobParams is wrapped by every params validation failure.
var ErrInvalidJobParams = errors.New("invalid job params")

// SyncParams are the parameters of an erp_sync job.
type SyncParams struct {
	SyncType  SyncType `json:"sync_type"`
	TestLimit *int     `json:"test_limit,omitempty"`
}

// Validate normalizes defaults and rejects malformed values.
func (p *SyncParams) Validate() error {
	if p.SyncType == "" {
		p.SyncType = SyncTypeManual
	}
	if p.SyncType != SyncTypeManual && p.SyncType != SyncTypeScheduled {
		return fmt.Errorf("%w: unknown sync type %q", ErrInvalidJobParams, p.SyncType)
	}
	if p.TestLimit != nil && *p.TestLimit <= 0 {
		return fmt.Errorf("%w: test limit must be positive", ErrInvalidJobParams)
	}
	return nil
}

// DefaultShippingCost is applied when a recalculation request omits shipping.
const DefaultShippingCost = 25.0

// RecalculationParams are the parameters of a pricing_recalculation job.
type RecalculationParams struct {
	PricingFormula   PricingFormula `json:"pricing_formula"`
	ShippingCost     float64        `json:"shipping_cost"`
	RespectOverrides bool           `json:"respect_overrides"`
	ProductIDs       []string       `json:"product_ids,omitempty"`
}

// Validate rejects unknown formulas and negative shipping.
func (p *RecalculationParams) Validate() error {
	if !p.PricingFormula.Valid() {
		return fmt.Errorf("%w: pricing formula must be 1 or 2", ErrInvalidJobParams)
	}
	if p.ShippingCost < 0 {
		return fmt.Errorf("%w: shipping cost must not be negative", ErrInvalidJobParams)
	}
	return nil
}

// JobParams is a tagged union keyed by Type. Exactly one variant is set.
type JobParams struct {
	Type          JobType              `json:"type"`
	Sync          *SyncParams          `json:"sync,omitempty"`
	Recalculation *RecalculationParams `json:"recalculation,omitempty"`
}

// NewSyncJobParams wraps sync parameters.
func NewSyncJobParams(p SyncParams) JobParams {
	return JobParams{Type: JobTypeERPSync, Sync: &p}
}

// NewRecalculationJobParams wraps recalculation parameters.
func NewRecalculationJobParams(p RecalculationParams) JobParams {
	return JobParams{Type: JobTypePricingRecalculation, Recalculation: &p}
}

// Validate checks the tag matches the populated variant and validates it.
func (p *JobParams) Validate() error {
	switch p.Type {
	case JobTypeERPSync:
		if p.Sync == nil || p.Recalculation != nil {
			return fmt.Errorf("%w: erp_sync requires sync params only", ErrInvalidJobParams)
		}
		return p.Sync.Validate()
	case JobTypePricingRecalculation:
		if p.Recalculation == nil || p.Sync != nil {
			return fmt.Errorf("%w: pricing_recalculation requires recalculation params only", ErrInvalidJobParams)
		}
		return p.Recalculation.Validate()
	default:
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidJobParams, p.Type)
	}
}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the params.
//   - error: non-nil if marshaling fails.
func (p JobParams) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (p *JobParams) Scan(value interface{}) error {
	if value == nil {
		*p = JobParams{}
		return nil
	}
	b, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan JobParams: %w", err)
	}
	return json.Unmarshal(b, p)
}

// ErrorSample is one per-record failure echoed in a run result.
type ErrorSample struct {
	ERPID     string `json:"erp_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// MaxErrorSamples caps the number of ErrorSample entries kept in a result.
const MaxErrorSamples = 10

// SyncResult summarizes one ERP sync run.
type SyncResult struct {
	Success          bool          `json:"success"`
	Cancelled        bool          `json:"cancelled"`
	RecordsFetched   int           `json:"records_fetched"`
	RecordsProcessed int           `json:"records_processed"`
	RecordsCreated   int           `json:"records_created"`
	RecordsUpdated   int           `json:"records_updated"`
	RecordsSkipped   int           `json:"records_skipped"`
	PricesSeeded     int           `json:"prices_seeded"`
	ErrorCount       int           `json:"error_count"`
	Errors           []ErrorSample `json:"errors"`
	DurationMs       int64         `json:"duration_ms"`
}

// RecalculationStats holds the per-product counters of a recalculation run.
type RecalculationStats struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// RecalculationResult summarizes one price recalculation run.
type RecalculationResult struct {
	Success      bool               `json:"success"`
	Cancelled    bool               `json:"cancelled"`
	Stats        RecalculationStats `json:"stats"`
	Errors       []ErrorSample      `json:"errors"`
	TierWarnings []string           `json:"tier_warnings,omitempty"`
	DurationMs   int64              `json:"duration_ms"`
}

// JobResults is a tagged union keyed by Type, mirroring JobParams.
type JobResults struct {
	Type          JobType              `json:"type"`
	Sync          *SyncResult          `json:"sync,omitempty"`
	Recalculation *RecalculationResult `json:"recalculation,omitempty"`
}

// Succeeded reports the Success flag of whichever variant is set.
func (r *JobResults) Succeeded() bool {
	switch {
	case r == nil:
		return false
	case r.Sync != nil:
		return r.Sync.Success
	case r.Recalculation != nil:
		return r.Recalculation.Success
	}
	return false
}

// WasCancelled reports the Cancelled flag of whichever variant is set.
func (r *JobResults) WasCancelled() bool {
	switch {
	case r == nil:
		return false
	case r.Sync != nil:
		return r.Sync.Cancelled
	case r.Recalculation != nil:
		return r.Recalculation.Cancelled
	}
	return false
}

// Value implements the driver.Valuer interface.
func (r JobResults) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface.
func (r *JobResults) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan JobResults: %w", err)
	}
	return json.Unmarshal(b, r)
}

// ErrorDetails records where a fatal failure happened.
type ErrorDetails struct {
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`
	Panic bool   `json:"panic,omitempty"`
}

// Value implements the driver.Valuer interface.
func (d ErrorDetails) Value() (driver.Value, error) {
	if d == (ErrorDetails{}) {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface.
func (d *ErrorDetails) Scan(value interface{}) error {
	if value == nil {
		*d = ErrorDetails{}
		return nil
	}
	b, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan ErrorDetails: %w", err)
	}
	return json.Unmarshal(b, d)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unexpected type %T", value)
	}
}
