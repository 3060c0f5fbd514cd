package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/lenscat/internal/api/handler"
	"github.com/timmy/lenscat/internal/api/middleware"
	"github.com/timmy/lenscat/internal/config"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/metrics"
)

// RouterDeps bundles what the HTTP surface needs.
type RouterDeps struct {
	Jobs    *handler.JobHandler
	Health  *handler.HealthHandler
	Auth    *middleware.JWTAuth
	Metrics *metrics.JobMetrics
	Logger  *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))
	if cfg.Metrics.Enabled {
		r.Use(middleware.NewHTTPMetrics(deps.Metrics.Registerer()).Handler())
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Health check
	r.GET("/health", deps.Health.Health)

	// Admin job routes
	admin := r.Group("/api/v1/admin", middleware.RequireRole(deps.Auth, cfg.Auth.AdminRole))
	{
		admin.POST("/erp-sync", deps.Jobs.TriggerSync)
		admin.POST("/pricing/recalculate", deps.Jobs.TriggerRecalculation)
		admin.GET("/pricing-tiers", deps.Jobs.ListPricingTiers)

		admin.GET("/jobs", deps.Jobs.ListJobs)
		admin.GET("/jobs/:id", deps.Jobs.GetJob)
		admin.POST("/jobs/:id/cancel", deps.Jobs.CancelJob)
		admin.GET("/jobs/:id/errors", deps.Jobs.ListJobErrors)
	}

	return r
}
