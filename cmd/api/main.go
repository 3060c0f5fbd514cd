package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/lenscat/internal/api"
	"github.com/timmy/lenscat/internal/api/handler"
	"github.com/timmy/lenscat/internal/api/middleware"
	"github.com/timmy/lenscat/internal/bootstrap"
	"github.com/timmy/lenscat/internal/config"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/metrics"
	"github.com/timmy/lenscat/internal/queue"
	"github.com/timmy/lenscat/internal/repository"
)

func main() {
	appLogger := bootstrap.NewLogger("lenscat-api")
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if cfg.Auth.JWTSecret == "" {
		appLogger.Fatal("auth.jwt_secret (JWT_SECRET) is required")
	}

	ctx := context.Background()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to get sql.DB")
	}
	defer sqlDB.Close()

	// Initialize job queue
	redisClient, err := queue.Connect(ctx, &cfg.Redis)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to Redis")
	}
	streams := queue.NewStreamsClient(redisClient, cfg.Queue.Stream)
	defer streams.Close()

	jobMetrics := metrics.New()
	producer := queue.NewProducer(streams, queue.ProducerConfig{MaxStreamLen: cfg.Queue.MaxLen}, jobMetrics)

	// Initialize report archive (optional)
	archive, err := bootstrap.ReportArchive(ctx, &cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize report archive")
	}

	src := bootstrap.CatalogSource(cfg, "")
	svc := bootstrap.NewServices(cfg, bootstrap.Deps{
		DB:      db,
		Queue:   producer,
		Source:  src,
		Archive: archive,
		Metrics: jobMetrics,
	})

	// Setup router
	router := api.SetupRouter(cfg, api.RouterDeps{
		Jobs: handler.NewJobHandler(svc.Jobs, svc.Tiers, cfg.Pricing.DefaultShippingCost),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": handler.PingFunc(sqlDB.PingContext),
			"redis":    streams,
		}),
		Auth:    middleware.NewJWTAuth(cfg.Auth.JWTSecret),
		Metrics: jobMetrics,
		Logger:  appLogger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port":   cfg.Server.Port,
			"mode":   cfg.Server.Mode,
			"source": src.Name(),
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
