package app

import (
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/engine"
	"github.com/krushibheru/agromonitor-backend/internal/jobs/worker"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

type Services struct {
	// Lifecycle + ingestion
	User   services.UserService
	Field  services.FieldService
	Ingest services.IngestService

	// Derived surfaces
	Report services.ReportService
	Jobs   services.JobsService

	// Advisory pipeline
	RuleSpec *services.RuleSpec
	Notifier services.AdvisoryNotifier
	Engine   engine.Engine

	// Job infra
	JobRegistry *worker.Registry
	JobWorker   *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	spec := services.LoadRuleSpec(log)

	userService := services.NewUserService(db, log, repos.User, repos.Field, repos.Metric, repos.Advisory)
	fieldService := services.NewFieldService(db, log, repos.User, repos.Field, repos.Metric, repos.Advisory)
	ingestService := services.NewIngestService(db, log, repos.Metric, repos.Advisory)
	reportService := services.NewReportService(db, log, repos.Field, repos.Metric, repos.Advisory, spec, clients.Artifacts)
	jobsService := services.NewJobsService(db, log, repos.JobRun, repos.Field)

	notifier := services.NewAdvisoryNotifier(&services.BusEmitter{Bus: clients.Bus, Log: log})

	eng := engine.NewEngine(
		db,
		log,
		repos.Field,
		repos.Metric,
		repos.Advisory,
		services.NewSignalDeriver(log, spec.Signals),
		services.NewRuleEvaluator(log, spec),
		services.NewAdvisoryReconciler(log, spec),
		notifier,
		spec,
	)

	registry := worker.NewRegistry()
	if err := registry.Register(worker.NewSweepHandler(log, eng)); err != nil {
		return Services{}, err
	}
	if err := registry.Register(worker.NewEvaluateHandler(log, eng)); err != nil {
		return Services{}, err
	}

	var jobWorker *worker.Worker
	if cfg.RunWorker {
		jobWorker = worker.NewWorker(db, log, repos.JobRun, registry)
	}

	return Services{
		User:        userService,
		Field:       fieldService,
		Ingest:      ingestService,
		Report:      reportService,
		Jobs:        jobsService,
		RuleSpec:    spec,
		Notifier:    notifier,
		Engine:      eng,
		JobRegistry: registry,
		JobWorker:   jobWorker,
	}, nil
}
