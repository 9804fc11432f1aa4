package bus

import (
	"context"

	"github.com/krushibheru/agromonitor-backend/internal/realtime"
)

// Bus carries advisory lifecycle events out of the process. Delivery is
// best-effort: an evaluation never blocks or fails on a publish error.
type Bus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	Close() error
}

// NewNoopBus returns a Bus that discards every event, used when REDIS_ADDR
// is not configured.
func NewNoopBus() Bus { return noopBus{} }

type noopBus struct{}

func (noopBus) Publish(context.Context, realtime.Event) error { return nil }

func (noopBus) Close() error { return nil }
