package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/data/repos/advisory"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/field"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/metric"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/observability"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/platform/envutil"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

// A conflicting writer gets this many re-read-and-replan rounds before the
// evaluation fails.
const maxReconcileRetries = 3

// EvaluationResult summarizes one field-date run: what the reconciler did
// and whether the window was dense enough to trust trend rules.
type EvaluationResult struct {
	FieldID      uuid.UUID `json:"field_id"`
	Date         time.Time `json:"date"`
	Insufficient bool      `json:"insufficient_data"`
	UsableDays   int       `json:"usable_days"`
	Candidates   int       `json:"candidates"`
	Created      int       `json:"created"`
	Escalated    int       `json:"escalated"`
	Suppressed   int       `json:"suppressed"`
	Cleared      int       `json:"cleared"`
	Resolved     int       `json:"resolved"`
	Retries      int       `json:"retries,omitempty"`
}

// SweepResult aggregates one full pass over every field.
type SweepResult struct {
	Date         time.Time     `json:"date"`
	Total        int           `json:"total_fields"`
	Reconciled   int           `json:"reconciled"`
	Insufficient int           `json:"insufficient_data"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Duration     time.Duration `json:"-"`
}

// Engine runs the derive -> evaluate -> reconcile pipeline. Within a field
// the steps are strictly sequential under that field's lock; across fields
// sweeps fan out with bounded concurrency.
type Engine interface {
	EvaluateField(ctx context.Context, fieldID uuid.UUID, date time.Time) (*EvaluationResult, error)
	SweepAll(ctx context.Context, date time.Time) (*SweepResult, error)
}

type engine struct {
	db           *gorm.DB
	log          *logger.Logger
	fieldRepo    field.FieldRepo
	metricRepo   metric.MetricRepo
	advisoryRepo advisory.AdvisoryRepo
	deriver      services.SignalDeriver
	rules        services.RuleEvaluator
	reconciler   services.AdvisoryReconciler
	notifier     services.AdvisoryNotifier
	spec         *services.RuleSpec
	locks        *fieldLocks

	concurrency int
	pace        *rate.Limiter
}

// NewEngine wires the pipeline. notifier may be nil when eventing is off.
// SWEEP_CONCURRENCY caps parallel fields (default 4); SWEEP_RATE_PER_SEC
// paces field starts (0 disables pacing).
func NewEngine(
	db *gorm.DB,
	baseLog *logger.Logger,
	fieldRepo field.FieldRepo,
	metricRepo metric.MetricRepo,
	advisoryRepo advisory.AdvisoryRepo,
	deriver services.SignalDeriver,
	rules services.RuleEvaluator,
	reconciler services.AdvisoryReconciler,
	notifier services.AdvisoryNotifier,
	spec *services.RuleSpec,
) Engine {
	concurrency := envutil.Int("SWEEP_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	var pace *rate.Limiter
	if perSec := envutil.Float("SWEEP_RATE_PER_SEC", 0); perSec > 0 {
		pace = rate.NewLimiter(rate.Limit(perSec), 1)
	}

	return &engine{
		db:           db,
		log:          baseLog.With("service", "AdvisoryEngine"),
		fieldRepo:    fieldRepo,
		metricRepo:   metricRepo,
		advisoryRepo: advisoryRepo,
		deriver:      deriver,
		rules:        rules,
		reconciler:   reconciler,
		notifier:     notifier,
		spec:         spec,
		locks:        newFieldLocks(),
		concurrency:  concurrency,
		pace:         pace,
	}
}

// EvaluateField runs the full pipeline for one field at one date under the
// field's keyed lock. Re-runs on an unchanged window plan the same batch
// again, which reduces to suppressions and no new rows.
func (e *engine) EvaluateField(ctx context.Context, fieldID uuid.UUID, date time.Time) (*EvaluationResult, error) {
	start := time.Now()

	release, err := e.locks.Acquire(ctx, fieldID)
	if err != nil {
		return nil, fmt.Errorf("acquire field lock: %w", err)
	}
	defer release()

	result, err := e.evaluateLocked(ctx, fieldID, date)

	obs := observability.Current()
	switch {
	case err != nil:
		obs.ObserveEvaluation("failed", time.Since(start))
	case result.Insufficient:
		obs.ObserveEvaluation("insufficient_data", time.Since(start))
	default:
		obs.ObserveEvaluation("reconciled", time.Since(start))
	}
	return result, err
}

func (e *engine) evaluateLocked(ctx context.Context, fieldID uuid.UUID, date time.Time) (*EvaluationResult, error) {
	day := types.DateOnly(date)
	obs := observability.Current()

	fieldRow, err := e.fieldRepo.GetByID(ctx, nil, fieldID)
	if err != nil {
		return nil, fmt.Errorf("load field: %w", err)
	}
	if fieldRow == nil {
		return nil, fmt.Errorf("field %s: %w", fieldID, pkgerrors.ErrNotFound)
	}

	window, err := e.metricRepo.Window(ctx, nil, fieldID, day, e.spec.Signals.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("load metric window: %w", err)
	}

	signals, err := e.deriver.Derive(window, fieldRow)
	if err != nil {
		return nil, fmt.Errorf("derive signals: %w", err)
	}
	for name, value := range signals.Values {
		obs.ObserveSignal(name, value)
	}
	obs.ObserveSignal(services.SignalMissingRatio, signals.MissingRatio)

	outcomes := e.rules.Evaluate(fieldRow, signals)
	for _, outcome := range outcomes {
		if outcome.Fired {
			obs.IncRuleOutcome(outcome.Rule.Type, "fired")
		} else {
			obs.IncRuleOutcome(outcome.Rule.Type, outcome.Reason)
		}
	}
	candidates := e.rules.Candidates(outcomes)

	active, err := e.advisoryRepo.ListActiveByField(ctx, nil, fieldID)
	if err != nil {
		return nil, fmt.Errorf("load active advisories: %w", err)
	}

	var batch types.ReconcileBatch
	retries := 0
	for {
		batch = e.reconciler.Plan(fieldID, day, candidates, active, signals.EvidenceID, !signals.Insufficient)
		err = e.advisoryRepo.ReconcileInto(ctx, nil, batch)
		if err == nil {
			break
		}
		if !errors.Is(err, pkgerrors.ErrReconciliationConflict) {
			return nil, fmt.Errorf("apply reconcile batch: %w", err)
		}
		if retries == maxReconcileRetries {
			obs.IncConflictFailed()
			return nil, fmt.Errorf("reconcile field %s for %s after %d retries: %w",
				fieldID, day.Format("2006-01-02"), retries, err)
		}
		retries++
		obs.IncConflictRetry()

		// A concurrent writer moved an advisory under us; re-read and replan
		// against the state it left behind.
		active, err = e.advisoryRepo.ListActiveByField(ctx, nil, fieldID)
		if err != nil {
			return nil, fmt.Errorf("re-read active advisories: %w", err)
		}
	}

	counts := batch.Counts()
	for action, n := range counts {
		obs.IncReconcileDecision(string(action), n)
	}

	result := &EvaluationResult{
		FieldID:      fieldID,
		Date:         day,
		Insufficient: signals.Insufficient,
		UsableDays:   signals.UsableDays,
		Candidates:   len(candidates),
		Created:      counts[types.DecisionCreate],
		Escalated:    counts[types.DecisionEscalate],
		Suppressed:   counts[types.DecisionSuppress],
		Cleared:      counts[types.DecisionClear],
		Resolved:     counts[types.DecisionResolve],
		Retries:      retries,
	}

	e.announce(batch, active)

	e.log.Info("field evaluation reconciled",
		"field_id", fieldID,
		"date", day.Format("2006-01-02"),
		"usable_days", signals.UsableDays,
		"missing_ratio", signals.MissingRatio,
		"insufficient", signals.Insufficient,
		"candidates", len(candidates),
		"created", result.Created,
		"escalated", result.Escalated,
		"suppressed", result.Suppressed,
		"resolved", result.Resolved,
		"retries", retries,
	)
	return result, nil
}

// announce emits one event per committed create/escalate/resolve. Escalation
// and resolution events are built from the pre-image the successful plan ran
// against, with the decision's changes applied.
func (e *engine) announce(batch types.ReconcileBatch, active []*types.Advisory) {
	if e.notifier == nil {
		return
	}
	preByID := make(map[uuid.UUID]*types.Advisory, len(active))
	for _, adv := range active {
		preByID[adv.ID] = adv
	}

	for _, decision := range batch.Decisions {
		switch decision.Action {
		case types.DecisionCreate:
			e.notifier.AdvisoryCreated(decision.Create)
		case types.DecisionEscalate:
			pre := preByID[decision.TargetID]
			if pre == nil {
				continue
			}
			post := *pre
			post.AlertLevel = decision.Level
			post.Priority = decision.Priority
			post.AdvisoryText = decision.Text
			post.MetricID = decision.MetricID
			post.LastTriggerDate = decision.TriggerDate
			e.notifier.AdvisoryEscalated(&post, pre.AlertLevel)
		case types.DecisionResolve:
			pre := preByID[decision.TargetID]
			if pre == nil {
				continue
			}
			post := *pre
			post.Status = types.AdvisoryStatusResolved
			e.notifier.AdvisoryResolved(&post)
		}
	}
}

// SweepAll evaluates every field for the date with bounded concurrency. A
// field failure is counted and logged, never fatal to the sweep; a canceled
// context stops launching new fields and the remainder is reported skipped.
func (e *engine) SweepAll(ctx context.Context, date time.Time) (*SweepResult, error) {
	start := time.Now()
	day := types.DateOnly(date)

	ids, err := e.fieldRepo.ListIDs(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}

	result := &SweepResult{Date: day, Total: len(ids)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, id := range ids {
		if e.pace != nil {
			if err := e.pace.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}

		id := id
		g.Go(func() error {
			evalResult, evalErr := e.EvaluateField(gctx, id, day)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case evalErr != nil && (errors.Is(evalErr, context.Canceled) || errors.Is(evalErr, context.DeadlineExceeded)):
				observability.Current().IncSweepField("canceled")
			case evalErr != nil:
				result.Failed++
				observability.Current().IncSweepField("failed")
				e.log.Warn("sweep: field evaluation failed", "field_id", id, "error", evalErr)
			case evalResult.Insufficient:
				result.Insufficient++
				observability.Current().IncSweepField("insufficient_data")
			default:
				result.Reconciled++
				observability.Current().IncSweepField("reconciled")
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Skipped = result.Total - result.Reconciled - result.Insufficient - result.Failed
	result.Duration = time.Since(start)

	status := "completed"
	if ctx.Err() != nil {
		status = "canceled"
	}
	observability.Current().ObserveSweep(status, result.Duration)

	e.log.Info("advisory sweep finished",
		"date", day.Format("2006-01-02"),
		"status", status,
		"total", result.Total,
		"reconciled", result.Reconciled,
		"insufficient", result.Insufficient,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration_ms", result.Duration.Milliseconds(),
	)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}
