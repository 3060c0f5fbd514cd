package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/timmy/lenscat/internal/bootstrap"
	"github.com/timmy/lenscat/internal/config"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/pricing"
	"github.com/timmy/lenscat/internal/repository"
)

const (
	operator = "cli:jobctl"
	workerID = "jobctl"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := bootstrap.NewLogger("lenscat-jobctl")
	defer logger.Sync()

	// Parse command line flags
	jobKind := flag.String("job", "sync", "Job to run: sync, recalc, tiers or report")
	snapshotDir := flag.String("snapshot", "", "Read the catalog from a snapshot directory instead of the ERP")
	testLimit := flag.Int("limit", 0, "Process at most this many product records (sync only)")
	formula := flag.Int("formula", 1, "Pricing formula: 1 = (cost + shipping) * markup, 2 = cost * markup")
	shipping := flag.Float64("shipping", -1, "Shipping cost for formula 1 (default from config)")
	respectOverrides := flag.Bool("respect-overrides", true, "Leave manually priced products untouched")
	products := flag.String("products", "", "Comma-separated product ids to reprice (default all active)")
	reportKey := flag.String("key", "", "Object key of an archived run report (report only)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	archive, err := bootstrap.ReportArchive(ctx, &cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize report archive")
	}

	src := bootstrap.CatalogSource(cfg, *snapshotDir)
	svc := bootstrap.NewServices(cfg, bootstrap.Deps{
		DB:      db,
		Source:  src,
		Archive: archive,
	})

	var job *domain.Job
	switch *jobKind {
	case "sync":
		params := domain.SyncParams{SyncType: domain.SyncTypeManual}
		if *testLimit > 0 {
			params.TestLimit = testLimit
		}
		job, err = svc.Jobs.CreateSyncJob(ctx, params, operator)
	case "recalc":
		params := domain.RecalculationParams{
			PricingFormula:   domain.PricingFormula(*formula),
			ShippingCost:     cfg.Pricing.DefaultShippingCost,
			RespectOverrides: *respectOverrides,
		}
		if *shipping >= 0 {
			params.ShippingCost = *shipping
		}
		if *products != "" {
			params.ProductIDs = strings.Split(*products, ",")
		}
		job, err = svc.Jobs.CreateRecalculationJob(ctx, params, operator)
	case "tiers":
		tiers, err := svc.Tiers.ListActive(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to list pricing tiers")
		}
		printJSON(map[string]interface{}{"tiers": tiers, "issues": pricing.ValidateTiers(tiers)})
		return
	case "report":
		if archive == nil {
			appLogger.Fatal("Report archive is disabled (storage.enabled=false)")
		}
		report, err := archive.Load(ctx, *reportKey)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to load run report")
		}
		printJSON(report)
		return
	default:
		appLogger.Fatalf("Unknown job %q", *jobKind)
	}
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to create job")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:  job.ID,
		logger.FieldSource: src.Name(),
		"job_type":         job.JobType,
	}).Info("Running job inline")

	if err := svc.Runner.Execute(ctx, job.ID, workerID); err != nil {
		appLogger.WithError(err).Error("Job interrupted; it stays running until the lease expires")
	}

	view, err := svc.Jobs.Get(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load job")
	}
	printJSON(view)

	if view.Status != domain.JobStatusCompleted {
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
