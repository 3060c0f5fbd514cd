package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

// sliceSource serves n synthetic records per entity and records page calls.
type sliceSource struct {
	n     int
	calls int
	fail  bool
}

func (s *sliceSource) Name() string                   { return "slice" }
func (s *sliceSource) Ping(ctx context.Context) error { return nil }

func (s *sliceSource) FetchPage(ctx context.Context, entity Entity, cursor, limit int) (*Page, error) {
	s.calls++
	if s.fail {
		return nil, ErrUnavailable
	}
	end := cursor + limit
	if end > s.n {
		end = s.n
	}
	page := &Page{Cursor: cursor, Remaining: s.n - end}
	for i := cursor; i < end; i++ {
		page.Results = append(page.Results, json.RawMessage(fmt.Sprintf(`{"_id":"p%d"}`, i)))
	}
	return page, nil
}

func TestFetchAllLimit(t *testing.T) {
	testCases := []struct {
		name     string
		total    int
		pageSize int
		limit    int
		want     int
	}{
		{name: "unbounded", total: 250, pageSize: 100, limit: 0, want: 250},
		{name: "limit below one page", total: 250, pageSize: 100, limit: 7, want: 7},
		{name: "limit spanning pages", total: 250, pageSize: 100, limit: 130, want: 130},
		{name: "limit above total", total: 42, pageSize: 10, limit: 100, want: 42},
		{name: "empty source", total: 0, pageSize: 10, limit: 0, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := &sliceSource{n: tc.total}
			got, err := FetchAll(context.Background(), src, EntityProduct, tc.pageSize, tc.limit)
			if err != nil {
				t.Fatalf("FetchAll returned error: %v", err)
			}
			if len(got) != tc.want {
				t.Errorf("FetchAll returned %d records, want %d", len(got), tc.want)
			}
			for i, raw := range got {
				if id := PeekERPID(raw); id != fmt.Sprintf("p%d", i) {
					t.Fatalf("record %d has id %s, order not preserved", i, id)
				}
			}
		})
	}
}

func TestFetchAllStopsAtLimitWithoutExtraPages(t *testing.T) {
	src := &sliceSource{n: 1000}
	if _, err := FetchAll(context.Background(), src, EntityProduct, 50, 100); err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("FetchAll made %d page calls, want 2", src.calls)
	}
}

func TestFetchAllPropagatesErrors(t *testing.T) {
	src := &sliceSource{n: 10, fail: true}
	_, err := FetchAll(context.Background(), src, EntityBrand, 5, 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestFetchAllHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := FetchAll(ctx, &sliceSource{n: 10}, EntityBrand, 5, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
