package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/timmy/lenscat/internal/domain"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	meta    map[string]map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}, meta: map[string]map[string]string{}}
}

func (m *memStorage) Put(_ context.Context, key string, body []byte, contentType string, meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	m.types[key] = contentType
	m.meta[key] = meta
	return nil
}

func (m *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return data, nil
}

func TestReportKey(t *testing.T) {
	completed := time.Date(2026, time.March, 4, 23, 30, 0, 0, time.FixedZone("X", -3*3600))
	testCases := []struct {
		name   string
		prefix string
		report RunReport
		want   string
	}{
		{
			name:   "completed time in UTC",
			prefix: "",
			report: RunReport{JobID: "j1", JobType: domain.JobTypeERPSync, CompletedAt: &completed},
			want:   "reports/erp_sync/2026/03/j1.json",
		},
		{
			name:   "falls back to created time",
			prefix: "archive/jobs",
			report: RunReport{JobID: "j2", JobType: domain.JobTypePricingRecalculation, CreatedAt: time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)},
			want:   "archive/jobs/pricing_recalculation/2025/11/j2.json",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewReportArchive(newMemStorage(), tc.prefix).ReportKey(&tc.report)
			if got != tc.want {
				t.Errorf("ReportKey() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	store := newMemStorage()
	archive := NewReportArchive(store, "reports")
	completed := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	job := &domain.Job{
		ID:          "job-1",
		JobType:     domain.JobTypeERPSync,
		Status:      domain.JobStatusCompleted,
		Params:      domain.NewSyncJobParams(domain.SyncParams{SyncType: domain.SyncTypeManual}),
		Results:     &domain.JobResults{Type: domain.JobTypeERPSync, Sync: &domain.SyncResult{Success: true, RecordsProcessed: 7}},
		CompletedAt: &completed,
	}

	key, err := archive.Archive(context.Background(), NewRunReport(job))
	if err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if key != "reports/erp_sync/2026/01/job-1.json" {
		t.Errorf("unexpected key %q", key)
	}
	if store.types[key] != "application/json" {
		t.Errorf("content type = %q", store.types[key])
	}
	if store.meta[key]["job-id"] != "job-1" || store.meta[key]["job-status"] != "completed" {
		t.Errorf("metadata = %v", store.meta[key])
	}

	if _, err := archive.Load(context.Background(), "reports/missing.json"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrObjectNotFound", err)
	}

	loaded, err := archive.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Status != domain.JobStatusCompleted || loaded.Results == nil || loaded.Results.Sync == nil {
		t.Fatalf("unexpected report: %+v", loaded)
	}
	if loaded.Results.Sync.RecordsProcessed != 7 {
		t.Errorf("records processed = %d, want 7", loaded.Results.Sync.RecordsProcessed)
	}
}

func TestDetectStorageType(t *testing.T) {
	testCases := map[string]StorageType{
		"":                             StorageTypeS3,
		"s3.eu-west-1.amazonaws.com":   StorageTypeS3,
		"abc.r2.cloudflarestorage.com": StorageTypeR2,
		"http://localhost:9000":        StorageTypeS3Compatible,
	}
	for endpoint, want := range testCases {
		if got := detectStorageType(endpoint); got != want {
			t.Errorf("detectStorageType(%q) = %q, want %q", endpoint, got, want)
		}
	}
}

func TestHostOnly(t *testing.T) {
	testCases := map[string]string{
		"https://abc.r2.cloudflarestorage.com/bucket": "abc.r2.cloudflarestorage.com",
		"http://localhost:9000":                       "localhost:9000",
		"s3.amazonaws.com":                            "s3.amazonaws.com",
	}
	for in, want := range testCases {
		if got := hostOnly(in); got != want {
			t.Errorf("hostOnly(%q) = %q, want %q", in, got, want)
		}
	}
}
