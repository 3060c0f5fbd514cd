package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/lenscat/internal/api/middleware"
	"github.com/timmy/lenscat/internal/domain"
	"github.com/timmy/lenscat/internal/logger"
	"github.com/timmy/lenscat/internal/pricing"
	"github.com/timmy/lenscat/internal/repository"
	"github.com/timmy/lenscat/internal/service"
)

// JobHandler serves the admin job triggers and the job poller.
type JobHandler struct {
	jobs            *service.JobService
	tiers           *repository.PricingTierRepository
	defaultShipping float64
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: job lifecycle service.
//   - tiers: pricing tier store for the tier listing.
//   - defaultShipping: shipping cost used when a recalculation request omits it.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs *service.JobService, tiers *repository.PricingTierRepository, defaultShipping float64) *JobHandler {
	return &JobHandler{jobs: jobs, tiers: tiers, defaultShipping: defaultShipping}
}

// SyncRequest is the ERP sync trigger body.
type SyncRequest struct {
	SyncType  string `json:"syncType"`
	TestLimit *int   `json:"testLimit"`
}

// SyncResponse is returned once the sync job is queued.
type SyncResponse struct {
	JobID     string           `json:"job_id"`
	SyncLogID string           `json:"sync_log_id"`
	Status    domain.JobStatus `json:"status"`
}

// RecalculateRequest is the price recalculation trigger body.
type RecalculateRequest struct {
	PricingFormula   *int     `json:"pricingFormula"`
	ShippingCost     *float64 `json:"shippingCost"`
	RespectOverrides *bool    `json:"respectOverrides"`
	ProductIDs       []string `json:"productIds"`
}

// RecalculateResponse is returned once the recalculation job is queued.
type RecalculateResponse struct {
	JobID  string           `json:"job_id"`
	LogID  string           `json:"log_id"`
	Status domain.JobStatus `json:"status"`
}

// TriggerSync queues an ERP sync job.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) TriggerSync(c *gin.Context) {
	ctx := c.Request.Context()

	var req SyncRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		logger.CtxWarn(ctx, "Invalid sync request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.CreateSyncJob(ctx, domain.SyncParams{
		SyncType:  domain.SyncType(req.SyncType),
		TestLimit: req.TestLimit,
	}, middleware.UserID(c))
	if err != nil {
		h.writeCreateError(c, "sync", err)
		return
	}

	logger.CtxInfo(ctx, "Sync job queued: job_id=%s, sync_type=%s", job.ID, job.Params.Sync.SyncType)
	c.JSON(http.StatusOK, SyncResponse{JobID: job.ID, SyncLogID: job.LogID, Status: job.Status})
}

// TriggerRecalculation queues a price recalculation job.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) TriggerRecalculation(c *gin.Context) {
	ctx := c.Request.Context()

	var req RecalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid recalculation request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PricingFormula == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pricingFormula is required"})
		return
	}
	formula, err := pricing.ParseFormula(*req.PricingFormula)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := domain.RecalculationParams{
		PricingFormula:   formula,
		ShippingCost:     h.defaultShipping,
		RespectOverrides: true,
		ProductIDs:       req.ProductIDs,
	}
	if req.ShippingCost != nil {
		params.ShippingCost = *req.ShippingCost
	}
	if req.RespectOverrides != nil {
		params.RespectOverrides = *req.RespectOverrides
	}

	job, err := h.jobs.CreateRecalculationJob(ctx, params, middleware.UserID(c))
	if err != nil {
		h.writeCreateError(c, "recalculation", err)
		return
	}

	logger.CtxInfo(ctx, "Recalculation job queued: job_id=%s, formula=%d, products=%d",
		job.ID, params.PricingFormula, len(params.ProductIDs))
	c.JSON(http.StatusOK, RecalculateResponse{JobID: job.ID, LogID: job.LogID, Status: job.Status})
}

// writeCreateError maps setup errors onto status codes.
func (h *JobHandler) writeCreateError(c *gin.Context, kind string, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, service.ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSourceUnavailable):
		logger.CtxWarn(ctx, "ERP preflight failed for %s job: %v", kind, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ERP is unreachable"})
	default:
		logger.CtxError(ctx, "Failed to create %s job: %v", kind, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start " + kind})
	}
}

// GetJob returns the job with its log summary. Failed jobs are data, not errors.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) GetJob(c *gin.Context) {
	view, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": view})
}

// ListJobs returns recent jobs, optionally filtered by type and status.
func (h *JobHandler) ListJobs(c *gin.Context) {
	filter := repository.JobFilter{
		Type:   domain.JobType(c.Query("type")),
		Status: domain.JobStatus(c.Query("status")),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job type"})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// CancelJob requests cooperative cancellation.
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobs.RequestCancel(c.Request.Context(), id); err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "cancel_requested": true})
}

// ListJobErrors returns the per-record sync errors of a job.
func (h *JobHandler) ListJobErrors(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	rows, total, err := h.jobs.ListSyncErrors(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": rows, "total": total, "limit": limit, "offset": offset})
}

// ListPricingTiers returns the active tiers and any structural problems with them.
func (h *JobHandler) ListPricingTiers(c *gin.Context) {
	tiers, err := h.tiers.ListActive(c.Request.Context())
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list pricing tiers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pricing tiers"})
		return
	}
	issues := pricing.ValidateTiers(tiers)
	if issues == nil {
		issues = []pricing.TierIssue{}
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers, "issues": issues})
}

func (h *JobHandler) writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, service.ErrJobFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "job already finished"})
	case errors.Is(err, service.ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.CtxError(c.Request.Context(), "Job lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindOptionalJSON binds a JSON body when one is present.
// A chunked request with no body reports ContentLength -1 and decodes to io.EOF.
func bindOptionalJSON(c *gin.Context, dest interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
