package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/timmy/lenscat/internal/bootstrap"
	"github.com/timmy/lenscat/internal/config"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/metrics"
	"github.com/timmy/lenscat/internal/queue"
	"github.com/timmy/lenscat/internal/repository"
	"github.com/timmy/lenscat/internal/scheduler"
	"github.com/timmy/lenscat/internal/worker"
)

const readBackoff = 2 * time.Second

func main() {
	appLogger := bootstrap.NewLogger("lenscat-worker")
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	redisClient, err := queue.Connect(ctx, &cfg.Redis)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to Redis")
	}
	streams := queue.NewStreamsClient(redisClient, cfg.Queue.Stream)
	defer streams.Close()

	jobMetrics := metrics.New()
	producer := queue.NewProducer(streams, queue.ProducerConfig{MaxStreamLen: cfg.Queue.MaxLen}, jobMetrics)

	archive, err := bootstrap.ReportArchive(ctx, &cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize report archive")
	}

	svc := bootstrap.NewServices(cfg, bootstrap.Deps{
		DB:      db,
		Queue:   producer,
		Source:  bootstrap.CatalogSource(cfg, ""),
		Archive: archive,
		Metrics: jobMetrics,
	})

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	workers := make([]*worker.Worker, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		id := fmt.Sprintf("%s-%d", hostname, i)
		consumer, err := queue.NewConsumer(streams, queue.ConsumerConfig{
			Group:        cfg.Queue.Group,
			ConsumerID:   id,
			BlockTimeout: cfg.Queue.Block,
			ClaimMinIdle: cfg.Queue.ClaimMinIdle,
		}, jobMetrics)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to create consumer")
		}
		if err := consumer.Initialize(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize consumer group")
		}
		workers = append(workers, worker.New(id, consumer, svc.Runner, readBackoff))
	}

	var wg sync.WaitGroup

	sweeper := worker.NewSweeper(svc.Jobs, cfg.Worker.SweepInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	if cfg.Sync.Schedule != "" {
		sched, err := scheduler.New(svc.Jobs, cfg.Sync.Schedule)
		if err != nil {
			appLogger.WithError(err).Fatal("Invalid sync schedule")
		}
		if err := sched.Start(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to start scheduler")
		}
		defer sched.Stop()
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", jobMetrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	appLogger.WithFields(logger.Fields{
		"workers":  len(workers),
		"stream":   cfg.Queue.Stream,
		"group":    cfg.Queue.Group,
		"schedule": cfg.Sync.Schedule,
	}).Info("Starting job workers")

	if err := worker.NewPool(workers...).Run(ctx); err != nil {
		appLogger.WithError(err).Error("Worker pool stopped")
	}
	wg.Wait()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	appLogger.Info("Worker exited")
}
