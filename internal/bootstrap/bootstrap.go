// Package bootstrap wires configuration, storage and services for the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/timmy/lenscat/internal/config"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/metrics"
	"github.com/timmy/lenscat/internal/pricing"
	"github.com/timmy/lenscat/internal/repository"
	"github.com/timmy/lenscat/internal/service"
	"github.com/timmy/lenscat/internal/source"
	"github.com/timmy/lenscat/internal/source/erp"
	"github.com/timmy/lenscat/internal/source/snapshot"
	"github.com/timmy/lenscat/internal/storage"
	"gorm.io/gorm"
)

// NewLogger builds the process logger from the LOG_* environment and makes it the default.
func NewLogger(serviceName string) *logger.Logger {
	cfg := logger.LoadFromEnv()
	cfg.ServiceName = serviceName
	l := logger.New(cfg)
	logger.SetDefaultLogger(l)
	return l
}

// CatalogSource returns a snapshot reader when snapshotDir is set and the ERP client otherwise.
func CatalogSource(cfg *config.Config, snapshotDir string) source.CatalogSource {
	if snapshotDir != "" {
		return snapshot.NewAdapter(snapshotDir)
	}
	return erp.NewClient(&erp.Config{
		BaseURL:      cfg.ERP.BaseURL,
		APIToken:     cfg.ERP.APIToken,
		Timeout:      cfg.ERP.Timeout,
		RetryCount:   cfg.ERP.RetryCount,
		RetryWait:    cfg.ERP.RetryWait,
		RequestsPerS: cfg.ERP.RateLimit,
		Burst:        cfg.ERP.Burst,
		MinStock:     cfg.ERP.MinStock,
		ActiveOnly:   cfg.ERP.ActiveOnly,
		ProductType:  cfg.ERP.ProductType,
	})
}

// ReportArchive opens object storage for run reports. Nil when storage is disabled.
func ReportArchive(ctx context.Context, cfg *config.StorageConfig) (*storage.ReportArchive, error) {
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if store == nil {
		return nil, nil
	}
	if b, ok := store.(interface{ EnsureBucket(context.Context) error }); ok {
		if err := b.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
	}
	return storage.NewReportArchive(store, cfg.Prefix), nil
}

// Services holds the repositories and job services shared by the binaries.
type Services struct {
	Catalog    *repository.CatalogRepository
	Tiers      *repository.PricingTierRepository
	Logs       *repository.RunLogRepository
	JobRepo    *repository.JobRepository
	SyncErrors *repository.SyncErrorRepository

	Jobs   *service.JobService
	Sync   *service.SyncService
	Recalc *service.RecalculationService
	Runner *service.JobRunner
}

// Deps are the collaborators NewServices does not build itself.
// A nil Queue selects inline execution.
type Deps struct {
	DB      *gorm.DB
	Queue   service.Enqueuer
	Source  source.CatalogSource
	Archive *storage.ReportArchive
	Metrics *metrics.JobMetrics
}

// NewServices builds the repositories, the executors and the job lifecycle service.
func NewServices(cfg *config.Config, d Deps) *Services {
	s := &Services{
		Catalog:    repository.NewCatalogRepository(d.DB),
		Tiers:      repository.NewPricingTierRepository(d.DB),
		Logs:       repository.NewRunLogRepository(d.DB),
		JobRepo:    repository.NewJobRepository(d.DB),
		SyncErrors: repository.NewSyncErrorRepository(d.DB),
	}

	s.Jobs = service.NewJobService(s.JobRepo, s.Logs, s.SyncErrors, d.Queue, d.Source, d.Archive, d.Metrics, service.JobConfig{
		LeaseTimeout: cfg.Worker.LeaseTimeout,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RequeueAfter: cfg.Worker.RequeueAfter,
	})

	heuristic := pricing.DefaultBrandHeuristic()
	if len(cfg.Sync.PremiumBrands) > 0 {
		heuristic.PremiumBrands = cfg.Sync.PremiumBrands
	}
	if len(cfg.Sync.BudgetBrands) > 0 {
		heuristic.BudgetBrands = cfg.Sync.BudgetBrands
	}
	s.Sync = service.NewSyncService(s.Catalog, s.SyncErrors, d.Source, heuristic, d.Metrics, &service.SyncConfig{
		BatchSize: cfg.Sync.BatchSize,
		PageSize:  cfg.ERP.PageSize,
	})
	s.Recalc = service.NewRecalculationService(s.Catalog, s.Tiers, d.Metrics, cfg.Pricing.ChunkSize)
	s.Runner = service.NewJobRunner(s.Jobs, s.Sync, s.Recalc, cfg.Worker.HeartbeatInterval)
	return s
}
