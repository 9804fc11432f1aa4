package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/data/db"
	internalhttp "github.com/krushibheru/agromonitor-backend/internal/http"
	"github.com/krushibheru/agromonitor-backend/internal/observability"
	"github.com/krushibheru/agromonitor-backend/internal/platform/envutil"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics

	server *internalhttp.Server
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := pg.DB()

	metrics := observability.Init(log)

	clientset, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clientset)
	if err != nil {
		clientset.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset, metrics)
	server := wireServer(log, handlerset, metrics)

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Clients:  clientset,
		Repos:    reposet,
		Services: serviceset,
		Metrics:  metrics,
		server:   server,
	}, nil
}

// Run starts the configured roles and blocks until ctx is cancelled or the
// HTTP server fails. The worker pool, metric collectors and exporter all
// share ctx, so one signal drains the whole process.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}

	otelShutdown := observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "agromonitor-backend",
		Environment: envutil.Str("APP_ENV", "development"),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
		a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
		a.Metrics.StartAdvisoryCollector(ctx, a.Log, a.DB)
		if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
			a.Metrics.StartRedisCollector(ctx, a.Log, addr)
		}
		a.Metrics.StartSLOEvaluator(ctx, a.Log)
	}

	if a.Cfg.RunWorker && a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}

	if !a.Cfg.RunServer {
		a.Log.Info("HTTP server disabled; running worker only")
		<-ctx.Done()
		return nil
	}

	addr := ":" + a.Cfg.Port
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.server.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
