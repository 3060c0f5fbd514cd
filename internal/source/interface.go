package source

import (
	"context"
	"encoding/json"
	"errors"
)

// Entity names an ERP collection.
type Entity string

const (
	EntityProduct  Entity = "product"
	EntityBrand    Entity = "brand"
	EntityCategory Entity = "category"
	EntityMaterial Entity = "material"
)

// LookupEntities are the small reference collections products point at.
var LookupEntities = []Entity{EntityBrand, EntityCategory, EntityMaterial}

// ErrUnavailable is wrapped by sources when the backing system cannot be reached.
var ErrUnavailable = errors.New("catalog source unavailable")

// Page is one cursor page of raw ERP records.
type Page struct {
	Results   []json.RawMessage
	Cursor    int // offset of the first result in this page
	Remaining int // records left after this page
}

// CatalogSource defines the interface for ERP catalog readers.
type CatalogSource interface {
	// Name returns a human-readable name for this source.
	// Parameters: none.
	// Returns:
	//   - string: display-friendly source name.
	Name() string

	// Ping checks that the source is reachable.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	// Returns:
	//   - error: wraps ErrUnavailable when the source cannot be reached.
	Ping(ctx context.Context) error

	// FetchPage fetches one page of an entity starting at cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - entity: collection to read.
	//   - cursor: zero-based offset of the first record.
	//   - limit: maximum number of records to return.
	// Returns:
	//   - *Page: raw records plus pagination state.
	//   - error: non-nil if fetching fails.
	FetchPage(ctx context.Context, entity Entity, cursor, limit int) (*Page, error)
}
