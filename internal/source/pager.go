package source

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultPageSize is used when FetchAll is called with a non-positive page size.
const DefaultPageSize = 100

// FetchAll pages through entity until the source reports nothing remaining.
// When limit > 0 it stops as soon as limit records are collected and
// truncates the final page, so exactly min(limit, available) records return.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - src: catalog source to read from.
//   - entity: collection to read.
//   - pageSize: records requested per page.
//   - limit: record cap, 0 for unbounded.
// Returns:
//   - []json.RawMessage: collected raw records in source order.
//   - error: first page error, wrapped with the entity and cursor.
func FetchAll(ctx context.Context, src CatalogSource, entity Entity, pageSize, limit int) ([]json.RawMessage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var out []json.RawMessage
	cursor := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		want := pageSize
		if limit > 0 && limit-len(out) < want {
			want = limit - len(out)
		}

		page, err := src.FetchPage(ctx, entity, cursor, want)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page at cursor %d: %w", entity, cursor, err)
		}

		out = append(out, page.Results...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if page.Remaining <= 0 || len(page.Results) == 0 {
			return out, nil
		}
		cursor = page.Cursor + len(page.Results)
	}
}
