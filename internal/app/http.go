package app

import (
	internalhttp "github.com/krushibheru/agromonitor-backend/internal/http"
	httpH "github.com/krushibheru/agromonitor-backend/internal/http/handlers"
	"github.com/krushibheru/agromonitor-backend/internal/observability"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type Handlers struct {
	User     *httpH.UserHandler
	Field    *httpH.FieldHandler
	Metric   *httpH.MetricHandler
	Advisory *httpH.AdvisoryHandler
	Report   *httpH.ReportHandler
	System   *httpH.SystemHandler
}

func wireHandlers(log *logger.Logger, services Services, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		User:     httpH.NewUserHandler(services.User),
		Field:    httpH.NewFieldHandler(services.Field),
		Metric:   httpH.NewMetricHandler(services.Ingest),
		Advisory: httpH.NewAdvisoryHandler(services.Field),
		Report:   httpH.NewReportHandler(services.Report),
		System:   httpH.NewSystemHandler(services.Engine, services.Jobs, metrics),
	}
}

func wireServer(log *logger.Logger, handlers Handlers, metrics *observability.Metrics) *internalhttp.Server {
	return internalhttp.NewServer(internalhttp.RouterConfig{
		Log:     log,
		Metrics: metrics,

		UserHandler:     handlers.User,
		FieldHandler:    handlers.Field,
		MetricHandler:   handlers.Metric,
		AdvisoryHandler: handlers.Advisory,
		ReportHandler:   handlers.Report,
		SystemHandler:   handlers.System,
	})
}
