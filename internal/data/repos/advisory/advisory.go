package advisory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type AdvisoryRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, advisoryID uuid.UUID) (*types.Advisory, error)
	ListActiveByField(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID) ([]*types.Advisory, error)
	ListByField(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, includeResolved bool) ([]*types.Advisory, error)
	ReconcileInto(ctx context.Context, tx *gorm.DB, batch types.ReconcileBatch) error
	NullMetricRefs(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) (int64, error)
	DeleteByFieldIDs(ctx context.Context, tx *gorm.DB, fieldIDs []uuid.UUID) error
}

type advisoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAdvisoryRepo(db *gorm.DB, baseLog *logger.Logger) AdvisoryRepo {
	repoLog := baseLog.With("repo", "AdvisoryRepo")
	return &advisoryRepo{db: db, log: repoLog}
}

func (ar *advisoryRepo) GetByID(ctx context.Context, tx *gorm.DB, advisoryID uuid.UUID) (*types.Advisory, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	var result types.Advisory

	if err := transaction.WithContext(ctx).
		Where("id = ?", advisoryID).
		Limit(1).
		Find(&result).Error; err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

// ListActiveByField returns the open advisories for a field in display order:
// level descending, then priority ascending, then earliest first trigger.
// Ordering happens here rather than in SQL so it is identical on every
// supported driver.
func (ar *advisoryRepo) ListActiveByField(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID) ([]*types.Advisory, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	var results []*types.Advisory

	if err := transaction.WithContext(ctx).
		Where("field_id = ? AND status = ?", fieldID, types.AdvisoryStatusActive).
		Find(&results).Error; err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return types.AdvisoryLess(results[i], results[j])
	})
	return results, nil
}

func (ar *advisoryRepo) ListByField(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, includeResolved bool) ([]*types.Advisory, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	query := transaction.WithContext(ctx).Where("field_id = ?", fieldID)
	if !includeResolved {
		query = query.Where("status = ?", types.AdvisoryStatusActive)
	}

	var results []*types.Advisory
	if err := query.Find(&results).Error; err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return types.AdvisoryLess(results[i], results[j])
	})
	return results, nil
}

// ReconcileInto applies one evaluation's decisions for a field inside a single
// transaction. Guarded updates compare lock_version against the value observed
// at planning time; a mismatch aborts the whole batch with
// ErrReconciliationConflict so the caller can re-read and re-plan. Nothing
// from a failed batch is left behind.
func (ar *advisoryRepo) ReconcileInto(ctx context.Context, tx *gorm.DB, batch types.ReconcileBatch) error {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	if len(batch.Decisions) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		for _, decision := range batch.Decisions {
			if err := ar.applyDecision(ctx, txx, batch, decision); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ar *advisoryRepo) applyDecision(ctx context.Context, txx *gorm.DB, batch types.ReconcileBatch, decision types.ReconcileDecision) error {
	switch decision.Action {
	case types.DecisionCreate:
		if decision.Create == nil {
			return fmt.Errorf("create decision for field %s carries no advisory", batch.FieldID)
		}
		return txx.WithContext(ctx).Create(decision.Create).Error

	case types.DecisionEscalate:
		return ar.guardedUpdate(ctx, txx, decision, map[string]interface{}{
			"alert_level":       decision.Level,
			"priority":          decision.Priority,
			"advisory_text":     decision.Text,
			"metric_id":         decision.MetricID,
			"last_trigger_date": types.DateOnly(decision.TriggerDate),
			"clear_streak":      0,
			"status":            types.AdvisoryStatusActive,
			"lock_version":      gorm.Expr("lock_version + 1"),
		})

	case types.DecisionSuppress:
		return ar.guardedUpdate(ctx, txx, decision, map[string]interface{}{
			"last_trigger_date": types.DateOnly(decision.TriggerDate),
			"clear_streak":      0,
			"lock_version":      gorm.Expr("lock_version + 1"),
		})

	case types.DecisionClear:
		return ar.guardedUpdate(ctx, txx, decision, map[string]interface{}{
			"clear_streak": gorm.Expr("clear_streak + 1"),
			"lock_version": gorm.Expr("lock_version + 1"),
		})

	case types.DecisionResolve:
		now := time.Now().UTC()
		return ar.guardedUpdate(ctx, txx, decision, map[string]interface{}{
			"status":       types.AdvisoryStatusResolved,
			"resolved_at":  &now,
			"clear_streak": gorm.Expr("clear_streak + 1"),
			"lock_version": gorm.Expr("lock_version + 1"),
		})

	default:
		return fmt.Errorf("unknown reconcile action %q", decision.Action)
	}
}

func (ar *advisoryRepo) guardedUpdate(ctx context.Context, txx *gorm.DB, decision types.ReconcileDecision, values map[string]interface{}) error {
	res := txx.WithContext(ctx).
		Model(&types.Advisory{}).
		Where("id = ? AND lock_version = ?", decision.TargetID, decision.LockVersion).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrReconciliationConflict
	}
	return nil
}

// NullMetricRefs detaches advisories from a metric that is about to be purged.
// The advisories themselves stay; only the evidence pointer is cleared.
func (ar *advisoryRepo) NullMetricRefs(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Advisory{}).
		Where("metric_id = ?", metricID).
		Update("metric_id", nil)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (ar *advisoryRepo) DeleteByFieldIDs(ctx context.Context, tx *gorm.DB, fieldIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	if len(fieldIDs) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("field_id IN ?", fieldIDs).
		Delete(&types.Advisory{}).Error
}
