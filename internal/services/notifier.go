package services

import (
	"context"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/realtime"
)

// AdvisoryNotifier announces advisory transitions after they have been
// committed. Every method is safe on a nil receiver so callers never have to
// care whether eventing is configured.
type AdvisoryNotifier interface {
	AdvisoryCreated(adv *types.Advisory)
	AdvisoryEscalated(adv *types.Advisory, from types.AlertLevel)
	AdvisoryResolved(adv *types.Advisory)
}

type advisoryNotifier struct {
	emit EventEmitter
}

func NewAdvisoryNotifier(emit EventEmitter) AdvisoryNotifier {
	return &advisoryNotifier{emit: emit}
}

func (n *advisoryNotifier) AdvisoryCreated(adv *types.Advisory) {
	if n == nil || n.emit == nil || adv == nil {
		return
	}
	n.emit.Emit(context.Background(), advisoryEvent(realtime.EventAdvisoryCreated, adv))
}

func (n *advisoryNotifier) AdvisoryEscalated(adv *types.Advisory, from types.AlertLevel) {
	if n == nil || n.emit == nil || adv == nil {
		return
	}
	ev := advisoryEvent(realtime.EventAdvisoryEscalated, adv)
	ev.PrevLevel = string(from)
	n.emit.Emit(context.Background(), ev)
}

func (n *advisoryNotifier) AdvisoryResolved(adv *types.Advisory) {
	if n == nil || n.emit == nil || adv == nil {
		return
	}
	n.emit.Emit(context.Background(), advisoryEvent(realtime.EventAdvisoryResolved, adv))
}

func advisoryEvent(name realtime.EventName, adv *types.Advisory) realtime.Event {
	return realtime.Event{
		Name:       name,
		FieldID:    adv.FieldID,
		AdvisoryID: adv.ID,
		Type:       adv.AdvisoryType,
		Level:      string(adv.AlertLevel),
		Priority:   adv.Priority,
		Date:       adv.LastTriggerDate.Format("2006-01-02"),
	}
}
