package advisory

import (
	"time"

	"github.com/google/uuid"
)

type DecisionAction string

const (
	DecisionCreate   DecisionAction = "create"
	DecisionEscalate DecisionAction = "escalate"
	DecisionSuppress DecisionAction = "suppress"
	DecisionClear    DecisionAction = "clear"
	DecisionResolve  DecisionAction = "resolve"
)

// Decision is one reconciliation step for a single advisory. Create carries a
// fully formed row; every other action addresses an existing row by ID and is
// guarded by the lock version observed when the decision was planned, so a
// concurrent writer surfaces as a conflict instead of a lost update.
type Decision struct {
	Action DecisionAction

	// Create only.
	Create *Advisory

	// All non-create actions.
	TargetID    uuid.UUID
	LockVersion int

	// Escalate carries the stronger candidate; suppress only refreshes the
	// trigger date of the row it kept.
	Level       AlertLevel
	Priority    int
	Text        string
	MetricID    *uuid.UUID
	TriggerDate time.Time
}

// Batch is the full set of decisions for one field on one evaluation date.
// It is applied as a unit: either every decision lands or none do.
type Batch struct {
	FieldID   uuid.UUID
	Date      time.Time
	Decisions []Decision
}

// Counts tallies a batch by action, for logs and counters.
func (b Batch) Counts() map[DecisionAction]int {
	out := make(map[DecisionAction]int, 5)
	for _, d := range b.Decisions {
		out[d.Action]++
	}
	return out
}
