package app

import (
	"github.com/krushibheru/agromonitor-backend/internal/platform/envutil"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

// Config is the process-level knob set. Service-specific tuning (sweep
// concurrency, rule thresholds, store backends) stays with the package that
// reads it; only what the app lifecycle itself needs lives here.
type Config struct {
	Port        string
	MetricsAddr string

	// RunServer/RunWorker split the binary into API and worker roles.
	// Both default on so a single process serves local development.
	RunServer bool
	RunWorker bool
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.Str("PORT", "8080"),
		MetricsAddr: envutil.Str("METRICS_ADDR", ""),
		RunServer:   envutil.Bool("RUN_SERVER", true),
		RunWorker:   envutil.Bool("RUN_WORKER", true),
	}
	log.Info("Config loaded",
		"port", cfg.Port,
		"run_server", cfg.RunServer,
		"run_worker", cfg.RunWorker,
	)
	return cfg
}
