package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/krushibheru/agromonitor-backend/internal/http/handlers"
	httpMW "github.com/krushibheru/agromonitor-backend/internal/http/middleware"
	"github.com/krushibheru/agromonitor-backend/internal/observability"
	"github.com/krushibheru/agromonitor-backend/internal/platform/envutil"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	UserHandler     *httpH.UserHandler
	FieldHandler    *httpH.FieldHandler
	MetricHandler   *httpH.MetricHandler
	AdvisoryHandler *httpH.AdvisoryHandler
	ReportHandler   *httpH.ReportHandler
	SystemHandler   *httpH.SystemHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if envutil.Bool("OTEL_ENABLED", false) {
		r.Use(otelgin.Middleware("agromonitor-backend"))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	if cfg.SystemHandler != nil {
		r.GET("/healthz", cfg.SystemHandler.Health)
		r.GET("/metrics", cfg.SystemHandler.PromMetrics)
	}

	api := r.Group("/api/v1")
	{
		if cfg.UserHandler != nil {
			api.POST("/users", cfg.UserHandler.Create)
			api.GET("/users", cfg.UserHandler.List)
			api.GET("/users/:id", cfg.UserHandler.Get)
			api.DELETE("/users/:id", cfg.UserHandler.Delete)
		}

		if cfg.FieldHandler != nil {
			api.POST("/fields", cfg.FieldHandler.Create)
			api.GET("/fields", cfg.FieldHandler.List)
			api.GET("/fields/:id", cfg.FieldHandler.Get)
			api.PATCH("/fields/:id/cropping", cfg.FieldHandler.UpdateCropping)
			api.DELETE("/fields/:id", cfg.FieldHandler.Delete)
		}

		if cfg.MetricHandler != nil {
			api.POST("/metrics", cfg.MetricHandler.Ingest)
			api.POST("/metrics/batch", cfg.MetricHandler.IngestBatch)
			api.DELETE("/metrics/:id", cfg.MetricHandler.Delete)
		}

		if cfg.AdvisoryHandler != nil {
			api.GET("/fields/:id/advisories", cfg.AdvisoryHandler.ListForField)
		}

		if cfg.ReportHandler != nil {
			api.GET("/fields/:id/report", cfg.ReportHandler.Summary)
			api.GET("/fields/:id/report/technical", cfg.ReportHandler.Technical)
			api.GET("/fields/:id/report/farmer", cfg.ReportHandler.Farmer)
			api.GET("/fields/:id/report/workbook", cfg.ReportHandler.Workbook)
			api.GET("/fields/:id/report/card", cfg.ReportHandler.Card)
		}

		if cfg.SystemHandler != nil {
			api.POST("/fields/:id/evaluate", cfg.SystemHandler.EvaluateField)
			api.POST("/sweeps", cfg.SystemHandler.EnqueueSweep)
			api.GET("/jobs/:id", cfg.SystemHandler.GetJob)
		}
	}

	return r
}
