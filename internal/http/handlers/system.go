package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/engine"
	"github.com/krushibheru/agromonitor-backend/internal/http/response"
	"github.com/krushibheru/agromonitor-backend/internal/observability"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

// SystemHandler exposes the engine surface: on-demand evaluation, sweep
// scheduling, job status, liveness and the metrics endpoint.
type SystemHandler struct {
	engine  engine.Engine
	jobs    services.JobsService
	metrics *observability.Metrics
}

func NewSystemHandler(eng engine.Engine, jobs services.JobsService, metrics *observability.Metrics) *SystemHandler {
	return &SystemHandler{engine: eng, jobs: jobs, metrics: metrics}
}

// evaluateRequest is an optional body; an empty POST evaluates today,
// synchronously.
type evaluateRequest struct {
	Date  string `json:"date"`
	Async bool   `json:"async"`
}

// POST /api/v1/fields/:id/evaluate
// body: { "date": "YYYY-MM-DD", "async": false }
// Synchronous runs return the evaluation result inline. async=true enqueues
// a field_evaluate job instead and responds 202.
func (h *SystemHandler) EvaluateField(c *gin.Context) {
	fieldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_field_id", err)
		return
	}
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_date", err)
		return
	}

	if req.Async {
		var datePtr *time.Time
		if !date.IsZero() {
			datePtr = &date
		}
		job, created, err := h.jobs.EnqueueFieldEvaluation(c.Request.Context(), fieldID, datePtr)
		if err != nil {
			response.RespondServiceError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job": job, "created": created})
		return
	}

	if date.IsZero() {
		date = types.DateOnly(time.Now())
	}
	result, err := h.engine.EvaluateField(c.Request.Context(), fieldID, date)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"evaluation": result})
}

// POST /api/v1/sweeps
// body: { "date": "YYYY-MM-DD" }
// Queues a full advisory sweep. created=false means an equivalent sweep is
// already queued or running.
func (h *SystemHandler) EnqueueSweep(c *gin.Context) {
	var req struct {
		Date string `json:"date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_date", err)
		return
	}
	var datePtr *time.Time
	if !date.IsZero() {
		datePtr = &date
	}
	job, created, err := h.jobs.EnqueueSweep(c.Request.Context(), datePtr)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "created": created})
}

// GET /api/v1/jobs/:id
func (h *SystemHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /healthz
func (h *SystemHandler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /metrics
func (h *SystemHandler) PromMetrics(c *gin.Context) {
	h.metrics.WriteHTTP(c.Writer, c.Request)
}
