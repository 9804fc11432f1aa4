package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/data/repos"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/observability"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

// IngestOutcome records what happened to one record of a batch. Err is a
// ValidationError or ConflictError for rejected records, nil otherwise.
type IngestOutcome struct {
	Index  int                    `json:"index"`
	Stored *types.SatelliteMetric `json:"stored,omitempty"`
	Err    error                  `json:"-"`
}

type IngestSummary struct {
	Accepted  int             `json:"accepted"`
	Rejected  int             `json:"rejected"`
	Conflicts int             `json:"conflicts"`
	Outcomes  []IngestOutcome `json:"outcomes"`
}

type IngestService interface {
	Ingest(ctx context.Context, rec *types.SatelliteMetric) (*types.SatelliteMetric, error)
	IngestBatch(ctx context.Context, recs []*types.SatelliteMetric) (*IngestSummary, error)
	DeleteMetric(ctx context.Context, metricID uuid.UUID) error
}

type ingestService struct {
	db           *gorm.DB
	log          *logger.Logger
	metricRepo   repos.MetricRepo
	advisoryRepo repos.AdvisoryRepo
}

func NewIngestService(db *gorm.DB, baseLog *logger.Logger, metricRepo repos.MetricRepo, advisoryRepo repos.AdvisoryRepo) IngestService {
	serviceLog := baseLog.With("service", "IngestService")
	return &ingestService{
		db:           db,
		log:          serviceLog,
		metricRepo:   metricRepo,
		advisoryRepo: advisoryRepo,
	}
}

// Ingest validates and stores one reading. Out-of-range values are rejected
// whole; nothing is clamped and nothing partial reaches the store.
func (is *ingestService) Ingest(ctx context.Context, rec *types.SatelliteMetric) (*types.SatelliteMetric, error) {
	if err := validateMetricRecord(rec); err != nil {
		var ve *pkgerrors.ValidationError
		if errors.As(err, &ve) {
			observability.Current().IncIngestRejected(ve.Field)
		}
		observability.Current().IncIngest("rejected")
		return nil, err
	}
	var stored *types.SatelliteMetric
	err := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, upErr := is.metricRepo.Upsert(ctx, tx, rec)
		if upErr != nil {
			return upErr
		}
		stored = row
		return nil
	})
	if err != nil {
		if pkgerrors.IsConflict(err) {
			is.log.Warn("metric ingest conflict", "field_id", rec.FieldID, "date", rec.Date, "error", err)
			observability.Current().IncIngest("conflict")
		} else {
			observability.Current().IncIngest("failed")
		}
		return nil, err
	}
	observability.Current().IncIngest("accepted")
	return stored, nil
}

// IngestBatch stores each record independently. A rejected or conflicting
// record never stops the rest; callers read the per-record outcomes.
func (is *ingestService) IngestBatch(ctx context.Context, recs []*types.SatelliteMetric) (*IngestSummary, error) {
	summary := &IngestSummary{Outcomes: make([]IngestOutcome, 0, len(recs))}
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		stored, err := is.Ingest(ctx, rec)
		outcome := IngestOutcome{Index: i, Stored: stored, Err: err}
		summary.Outcomes = append(summary.Outcomes, outcome)
		switch {
		case err == nil:
			summary.Accepted++
		case pkgerrors.IsConflict(err):
			summary.Conflicts++
		case pkgerrors.IsValidation(err):
			summary.Rejected++
			is.log.Warn("metric record rejected", "index", i, "error", err)
		default:
			return summary, fmt.Errorf("ingest batch aborted at record %d: %w", i, err)
		}
	}
	is.log.Info("metric batch ingested",
		"total", len(recs),
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"conflicts", summary.Conflicts,
	)
	return summary, nil
}

// DeleteMetric nulls advisory references to the row, then hard-deletes it,
// inside one transaction. Advisories outlive their evidence.
func (is *ingestService) DeleteMetric(ctx context.Context, metricID uuid.UUID) error {
	return is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := is.metricRepo.GetByID(ctx, tx, metricID)
		if err != nil {
			return fmt.Errorf("fetch metric %s: %w", metricID, err)
		}
		if row == nil {
			return fmt.Errorf("metric %s: %w", metricID, pkgerrors.ErrNotFound)
		}
		cleared, err := is.advisoryRepo.NullMetricRefs(ctx, tx, metricID)
		if err != nil {
			return fmt.Errorf("null advisory refs for metric %s: %w", metricID, err)
		}
		if cleared > 0 {
			is.log.Info("detached advisories from purged metric", "metric_id", metricID, "advisories", cleared)
		}
		if err := is.metricRepo.DeleteByID(ctx, tx, metricID); err != nil {
			return fmt.Errorf("delete metric %s: %w", metricID, err)
		}
		return nil
	})
}

func validateMetricRecord(rec *types.SatelliteMetric) error {
	if rec == nil {
		return pkgerrors.NewValidation("record", "missing")
	}
	if rec.FieldID == uuid.Nil {
		return pkgerrors.NewValidation("field_id", "required")
	}
	if rec.Date.IsZero() {
		return pkgerrors.NewValidation("date", "required")
	}
	if err := checkBounds(rec.NDVIMean, "ndvi_mean", -1, 1); err != nil {
		return err
	}
	if err := checkBounds(rec.NDVIMax, "ndvi_max", -1, 1); err != nil {
		return err
	}
	if err := checkBounds(rec.NDVIMin, "ndvi_min", -1, 1); err != nil {
		return err
	}
	if err := checkBounds(rec.EVIMean, "evi_mean", -1, 1); err != nil {
		return err
	}
	if err := checkBounds(rec.HumidityPct, "humidity_pct", 0, 100); err != nil {
		return err
	}
	if err := checkBounds(rec.CloudCoverPct, "cloud_cover_pct", 0, 100); err != nil {
		return err
	}
	if err := checkBounds(rec.SoilMoistureEst, "soil_moisture_est", 0, 1); err != nil {
		return err
	}
	if err := checkFloor(rec.RainfallMm, "rainfall_mm", 0); err != nil {
		return err
	}
	if err := checkFloor(rec.WindSpeedMs, "wind_speed_ms", 0); err != nil {
		return err
	}
	if rec.ValidPixels != nil && *rec.ValidPixels < 0 {
		return pkgerrors.NewValidationf("valid_pixels", "%d below minimum 0", *rec.ValidPixels)
	}
	return nil
}

func checkBounds(v *float64, name string, lo, hi float64) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return pkgerrors.NewValidationf(name, "%.4f outside [%g, %g]", *v, lo, hi)
	}
	return nil
}

func checkFloor(v *float64, name string, lo float64) error {
	if v == nil {
		return nil
	}
	if *v < lo {
		return pkgerrors.NewValidationf(name, "%.4f below minimum %g", *v, lo)
	}
	return nil
}
