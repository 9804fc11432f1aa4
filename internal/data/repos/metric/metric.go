package metric

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type MetricRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *types.SatelliteMetric) (*types.SatelliteMetric, error)
	GetByID(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) (*types.SatelliteMetric, error)
	GetByFieldDate(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, date time.Time) (*types.SatelliteMetric, error)
	Window(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, end time.Time, days int) (*types.MetricWindow, error)
	LatestFor(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID) (*types.SatelliteMetric, error)
	ListByFieldRange(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, from, to time.Time) ([]*types.SatelliteMetric, error)
	DeleteByID(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) error
	DeleteByFieldIDs(ctx context.Context, tx *gorm.DB, fieldIDs []uuid.UUID) error
}

type metricRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMetricRepo(db *gorm.DB, baseLog *logger.Logger) MetricRepo {
	repoLog := baseLog.With("repo", "MetricRepo")
	return &metricRepo{db: db, log: repoLog}
}

// Upsert inserts the reading or, when a row for the same (field_id, date)
// already exists, overwrites its observation columns. The owning field must
// exist; fields are not created implicitly from metric traffic.
func (mr *metricRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.SatelliteMetric) (*types.SatelliteMetric, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var fieldCount int64
	if err := transaction.WithContext(ctx).
		Model(&types.Field{}).
		Where("id = ?", row.FieldID).
		Count(&fieldCount).Error; err != nil {
		return nil, err
	}
	if fieldCount == 0 {
		return nil, pkgerrors.NewConflict("field", row.FieldID.String())
	}

	row.Date = types.DateOnly(row.Date)

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "field_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"ndvi_mean",
				"ndvi_max",
				"ndvi_min",
				"evi_mean",
				"temp_mean_c",
				"rainfall_mm",
				"humidity_pct",
				"wind_speed_ms",
				"cloud_cover_pct",
				"soil_moisture_est",
				"data_source",
				"valid_pixels",
				"updated_at",
			}),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}

	return mr.GetByFieldDate(ctx, transaction, row.FieldID, row.Date)
}

func (mr *metricRepo) GetByID(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) (*types.SatelliteMetric, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var result types.SatelliteMetric

	if err := transaction.WithContext(ctx).
		Where("id = ?", metricID).
		Limit(1).
		Find(&result).Error; err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

func (mr *metricRepo) GetByFieldDate(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, date time.Time) (*types.SatelliteMetric, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var result types.SatelliteMetric

	if err := transaction.WithContext(ctx).
		Where("field_id = ? AND date = ?", fieldID, types.DateOnly(date)).
		Limit(1).
		Find(&result).Error; err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

// Window returns one point per calendar day over [end-days+1, end], oldest
// first. Days without a stored row carry a nil Record so downstream code sees
// gaps instead of a silently shorter series.
func (mr *metricRepo) Window(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, end time.Time, days int) (*types.MetricWindow, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	if days <= 0 {
		return nil, pkgerrors.NewValidation("days", "window length must be positive")
	}

	endDay := types.DateOnly(end)
	startDay := endDay.AddDate(0, 0, -(days - 1))

	var rows []*types.SatelliteMetric
	if err := transaction.WithContext(ctx).
		Where("field_id = ? AND date >= ? AND date <= ?", fieldID, startDay, endDay).
		Order("date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]*types.SatelliteMetric, len(rows))
	for _, row := range rows {
		byDay[types.DateOnly(row.Date)] = row
	}

	window := &types.MetricWindow{
		FieldID: fieldID,
		End:     endDay,
		Days:    days,
		Points:  make([]types.MetricPoint, 0, days),
	}
	for i := 0; i < days; i++ {
		day := startDay.AddDate(0, 0, i)
		window.Points = append(window.Points, types.MetricPoint{
			Date:   day,
			Record: byDay[day],
		})
	}
	return window, nil
}

func (mr *metricRepo) LatestFor(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID) (*types.SatelliteMetric, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var result types.SatelliteMetric

	if err := transaction.WithContext(ctx).
		Where("field_id = ?", fieldID).
		Order("date DESC").
		Limit(1).
		Find(&result).Error; err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

func (mr *metricRepo) ListByFieldRange(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, from, to time.Time) ([]*types.SatelliteMetric, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var results []*types.SatelliteMetric

	if err := transaction.WithContext(ctx).
		Where("field_id = ? AND date >= ? AND date <= ?", fieldID, types.DateOnly(from), types.DateOnly(to)).
		Order("date ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (mr *metricRepo) DeleteByID(ctx context.Context, tx *gorm.DB, metricID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	return transaction.WithContext(ctx).
		Where("id = ?", metricID).
		Delete(&types.SatelliteMetric{}).Error
}

func (mr *metricRepo) DeleteByFieldIDs(ctx context.Context, tx *gorm.DB, fieldIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	if len(fieldIDs) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("field_id IN ?", fieldIDs).
		Delete(&types.SatelliteMetric{}).Error
}
