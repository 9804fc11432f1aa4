package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/krushibheru/agromonitor-backend/internal/clients/gcs"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
	"github.com/krushibheru/agromonitor-backend/internal/realtime/bus"
)

type Clients struct {
	Bus       bus.Bus
	Artifacts gcs.ArtifactStore
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis: advisory events go out on the bus when an address is
	// configured; otherwise they are dropped by the no-op bus.
	advisoryBus := bus.NewNoopBus()
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		b, err := bus.NewRedisBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis advisory bus: %w", err)
		}
		advisoryBus = b
	}

	// Artifact store: local directory unless REPORT_GCS_BUCKET_NAME is set.
	artifacts, err := gcs.NewArtifactStore(log)
	if err != nil {
		_ = advisoryBus.Close()
		return Clients{}, fmt.Errorf("init artifact store: %w", err)
	}

	return Clients{
		Bus:       advisoryBus,
		Artifacts: artifacts,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
