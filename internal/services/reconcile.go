package services

import (
	"time"

	"github.com/google/uuid"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

// AdvisoryReconciler turns a candidate set plus the field's open advisories
// into a decision batch. It is pure planning; the advisory repo applies the
// batch atomically.
type AdvisoryReconciler interface {
	Plan(fieldID uuid.UUID, date time.Time, candidates []AdvisoryCandidate, active []*types.Advisory, evidenceID *uuid.UUID, dataSufficient bool) types.ReconcileBatch
}

type advisoryReconciler struct {
	log        *logger.Logger
	resolution ResolutionParams
}

func NewAdvisoryReconciler(baseLog *logger.Logger, spec *RuleSpec) AdvisoryReconciler {
	return &advisoryReconciler{
		log:        baseLog.With("service", "AdvisoryReconciler"),
		resolution: spec.Resolution,
	}
}

// Plan decides, per candidate type:
//   - no open advisory of that type: create one;
//   - open advisory at a lower level: escalate it in place (same id, new
//     level/priority/text, evidence re-pointed at the newest record);
//   - open advisory at an equal or higher level: suppress, which refreshes
//     the trigger date and resets the clear streak but never downgrades.
//
// Open advisories whose condition did not fire accrue a clear step; after
// the configured number of consecutive data-sufficient clears they resolve.
// An insufficient evaluation freezes everything: no clears, no resolves.
func (r *advisoryReconciler) Plan(fieldID uuid.UUID, date time.Time, candidates []AdvisoryCandidate, active []*types.Advisory, evidenceID *uuid.UUID, dataSufficient bool) types.ReconcileBatch {
	day := types.DateOnly(date)
	batch := types.ReconcileBatch{FieldID: fieldID, Date: day}

	activeByType := make(map[string]*types.Advisory, len(active))
	for _, advisory := range active {
		activeByType[advisory.AdvisoryType] = advisory
	}

	firedTypes := make(map[string]bool, len(candidates))
	for _, candidate := range candidates {
		firedTypes[candidate.Type] = true
		existing := activeByType[candidate.Type]

		if existing == nil {
			batch.Decisions = append(batch.Decisions, types.ReconcileDecision{
				Action: types.DecisionCreate,
				Create: &types.Advisory{
					ID:               uuid.New(),
					FieldID:          fieldID,
					MetricID:         evidenceID,
					AdvisoryType:     candidate.Type,
					AdvisoryText:     candidate.Text,
					AlertLevel:       candidate.Level,
					Priority:         candidate.Priority,
					Status:           types.AdvisoryStatusActive,
					FirstTriggerDate: day,
					LastTriggerDate:  day,
				},
			})
			continue
		}

		if candidate.Level.Rank() > existing.AlertLevel.Rank() {
			batch.Decisions = append(batch.Decisions, types.ReconcileDecision{
				Action:      types.DecisionEscalate,
				TargetID:    existing.ID,
				LockVersion: existing.LockVersion,
				Level:       candidate.Level,
				Priority:    candidate.Priority,
				Text:        candidate.Text,
				MetricID:    evidenceID,
				TriggerDate: day,
			})
			continue
		}

		decision := types.ReconcileDecision{
			Action:      types.DecisionSuppress,
			TargetID:    existing.ID,
			LockVersion: existing.LockVersion,
			TriggerDate: day,
		}
		batch.Decisions = append(batch.Decisions, decision)
		if r.outsideRecencyWindow(existing, day) {
			r.log.Debug("re-attaching candidate to an advisory past the recency window",
				"field_id", fieldID,
				"advisory_type", candidate.Type,
				"last_trigger_date", existing.LastTriggerDate.Format("2006-01-02"),
			)
		}
	}

	if !dataSufficient {
		return batch
	}

	for _, advisory := range active {
		if firedTypes[advisory.AdvisoryType] {
			continue
		}
		if advisory.ClearStreak+1 >= r.resolution.ClearEvaluations {
			batch.Decisions = append(batch.Decisions, types.ReconcileDecision{
				Action:      types.DecisionResolve,
				TargetID:    advisory.ID,
				LockVersion: advisory.LockVersion,
			})
		} else {
			batch.Decisions = append(batch.Decisions, types.ReconcileDecision{
				Action:      types.DecisionClear,
				TargetID:    advisory.ID,
				LockVersion: advisory.LockVersion,
			})
		}
	}

	return batch
}

func (r *advisoryReconciler) outsideRecencyWindow(advisory *types.Advisory, day time.Time) bool {
	cutoff := day.AddDate(0, 0, -r.resolution.RecencyWindowDays)
	return advisory.LastTriggerDate.Before(cutoff)
}
