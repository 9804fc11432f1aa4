package services

import (
	"context"

	"github.com/krushibheru/agromonitor-backend/internal/observability"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
	"github.com/krushibheru/agromonitor-backend/internal/realtime"
	"github.com/krushibheru/agromonitor-backend/internal/realtime/bus"
)

// EventEmitter is the seam between advisory bookkeeping and the transport
// that carries events out of the process. Emit never returns an error:
// delivery is best-effort and must not fail the evaluation that produced
// the event.
type EventEmitter interface {
	Emit(ctx context.Context, ev realtime.Event)
}

// BusEmitter publishes events on the advisory bus. Failures are logged and
// counted, never propagated.
type BusEmitter struct {
	Bus bus.Bus
	Log *logger.Logger
}

func (e *BusEmitter) Emit(ctx context.Context, ev realtime.Event) {
	if e == nil || e.Bus == nil {
		return
	}
	if err := e.Bus.Publish(ctx, ev); err != nil {
		if e.Log != nil {
			e.Log.Warn("advisory event publish failed",
				"event", string(ev.Name),
				"advisory_id", ev.AdvisoryID,
				"error", err,
			)
		}
		observability.Current().IncNotify(string(ev.Name), "error")
		return
	}
	observability.Current().IncNotify(string(ev.Name), "sent")
}
