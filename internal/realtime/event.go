package realtime

import "github.com/google/uuid"

type EventName string

const (
	EventAdvisoryCreated   EventName = "advisory.created"
	EventAdvisoryEscalated EventName = "advisory.escalated"
	EventAdvisoryResolved  EventName = "advisory.resolved"
)

// Event is the wire shape published for every advisory transition. The
// payload is self-contained so a consumer can filter on field or severity
// without a follow-up API call.
type Event struct {
	Name       EventName `json:"name"`
	FieldID    uuid.UUID `json:"field_id"`
	AdvisoryID uuid.UUID `json:"advisory_id"`
	Type       string    `json:"type"`
	Level      string    `json:"level"`
	PrevLevel  string    `json:"previous_level,omitempty"`
	Priority   int       `json:"priority"`
	Date       string    `json:"date"`
}
