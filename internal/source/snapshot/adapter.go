package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/timmy/lenscat/internal/source"
)

// FileExt is the extension of per-entity snapshot files (products.jsonl, ...).
const FileExt = ".jsonl"

// Adapter implements the CatalogSource interface over JSON Lines snapshots.
// Records keep their source order; the cursor is the record index.
type Adapter struct {
	dir     string
	mu      sync.Mutex
	records map[source.Entity][]json.RawMessage
	loaded  map[source.Entity]bool
}

// NewAdapter creates a snapshot adapter reading <dir>/<entity>s.jsonl files lazily.
// Parameters:
//   - dir: directory containing the snapshot files.
// Returns:
//   - *Adapter: initialized snapshot adapter.
func NewAdapter(dir string) *Adapter {
	return &Adapter{
		dir:     dir,
		records: make(map[source.Entity][]json.RawMessage),
		loaded:  make(map[source.Entity]bool),
	}
}

// NewInMemory creates an adapter over records already in memory.
func NewInMemory(records map[source.Entity][]json.RawMessage) *Adapter {
	a := NewAdapter("")
	for entity, recs := range records {
		a.records[entity] = recs
		a.loaded[entity] = true
	}
	return a
}

// Name returns a human-readable name for this source.
func (a *Adapter) Name() string {
	if a.dir == "" {
		return "snapshot (memory)"
	}
	return fmt.Sprintf("snapshot (%s)", a.dir)
}

// Ping checks that the snapshot directory exists.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.dir == "" {
		return nil
	}
	info, err := os.Stat(a.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", source.ErrUnavailable, a.dir)
	}
	return nil
}

// FetchPage returns records [cursor, cursor+limit) of entity.
// Parameters:
//   - ctx: context for cancellation (unused for local reads).
//   - entity: collection to read.
//   - cursor: record index to start at.
//   - limit: maximum number of records to return.
// Returns:
//   - *source.Page: page of raw records.
//   - error: non-nil if the snapshot file cannot be read.
func (a *Adapter) FetchPage(ctx context.Context, entity source.Entity, cursor, limit int) (*source.Page, error) {
	records, err := a.load(entity)
	if err != nil {
		return nil, err
	}
	if cursor < 0 {
		return nil, fmt.Errorf("invalid cursor: %d", cursor)
	}
	if cursor >= len(records) {
		return &source.Page{Cursor: cursor}, nil
	}

	end := cursor + limit
	if limit <= 0 || end > len(records) {
		end = len(records)
	}
	return &source.Page{
		Results:   records[cursor:end],
		Cursor:    cursor,
		Remaining: len(records) - end,
	}, nil
}

// Count returns the number of records available for entity.
func (a *Adapter) Count(entity source.Entity) (int, error) {
	records, err := a.load(entity)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// load reads the entity file on first use. A missing file is an empty collection.
func (a *Adapter) load(entity source.Entity) ([]json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loaded[entity] {
		return a.records[entity], nil
	}

	path := FilePath(a.dir, entity)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			a.loaded[entity] = true
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Malformed lines are kept so the sync records them as per-record errors.
		records = append(records, json.RawMessage(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading snapshot %s: %w", path, err)
	}

	a.records[entity] = records
	a.loaded[entity] = true
	return records, nil
}

// FilePath returns the snapshot file for entity inside dir.
func FilePath(dir string, entity source.Entity) string {
	return filepath.Join(dir, string(entity)+"s"+FileExt)
}

// WriteFile writes records as JSON Lines to the entity's snapshot file.
// Parameters:
//   - dir: destination directory, created if missing.
//   - entity: collection the records belong to.
//   - records: raw ERP records.
// Returns:
//   - error: non-nil if the file cannot be written.
func WriteFile(dir string, entity source.Entity, records []json.RawMessage) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	file, err := os.Create(FilePath(dir, entity))
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, rec := range records {
		compact := strings.ReplaceAll(string(rec), "\n", " ")
		if _, err := w.WriteString(compact + "\n"); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}
	return w.Flush()
}
