package services

import (
	"time"

	"github.com/google/uuid"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

// Signal names the rule table can reference.
const (
	SignalNDVILatest         = "ndvi_latest"
	SignalNDVIDelta7d        = "ndvi_delta_7d"
	SignalRainfallTotal14d   = "rainfall_total_14d"
	SignalRainfallDeficit14d = "rainfall_deficit_14d"
	SignalSoilMoistureLatest = "soil_moisture_latest"
	SignalSoilMoistureTrend  = "soil_moisture_trend"
	SignalTempMean7d         = "temp_mean_7d"
	SignalHumidityMean7d     = "humidity_mean_7d"
	SignalMissingRatio       = "missing_ratio"
)

// SignalSet is the derived view of one field's metric window at an evaluation
// date. A name absent from Values was not computable from the window; that is
// not an error, rules abstain on it. MissingRatio is always present.
type SignalSet struct {
	FieldID      uuid.UUID
	Date         time.Time
	WindowDays   int
	UsableDays   int
	MissingRatio float64
	// Insufficient marks the whole evaluation as too sparse for trend
	// signals. Values still carries whatever was computable so reports can
	// show partial data, but the evaluator abstains across the board.
	Insufficient bool
	Values       map[string]float64
	// EvidenceID is the newest usable record in the window, the row new
	// advisories point at.
	EvidenceID *uuid.UUID
}

func (s *SignalSet) Value(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	if name == SignalMissingRatio {
		return s.MissingRatio, true
	}
	v, ok := s.Values[name]
	return v, ok
}

type SignalDeriver interface {
	Derive(window *types.MetricWindow, field *types.Field) (*SignalSet, error)
}

type signalDeriver struct {
	log    *logger.Logger
	params SignalParams
}

func NewSignalDeriver(baseLog *logger.Logger, params SignalParams) SignalDeriver {
	return &signalDeriver{
		log:    baseLog.With("service", "SignalDeriver"),
		params: params,
	}
}

// Derive computes the signal set from a gap-explicit window. Low-confidence
// records (valid_pixels under the minimum) are excluded from every aggregate
// but still count toward missing_ratio; gaps are never interpolated.
func (d *signalDeriver) Derive(window *types.MetricWindow, field *types.Field) (*SignalSet, error) {
	if window == nil || len(window.Points) == 0 {
		return nil, pkgerrors.NewValidation("window", "metric window is empty")
	}
	if field == nil {
		return nil, pkgerrors.NewValidation("field", "field metadata is required")
	}

	usable := make([]types.MetricPoint, 0, len(window.Points))
	for _, point := range window.Points {
		if point.Record.Usable(d.params.MinValidPixels) {
			usable = append(usable, point)
		}
	}

	set := &SignalSet{
		FieldID:      window.FieldID,
		Date:         window.End,
		WindowDays:   window.Days,
		UsableDays:   len(usable),
		MissingRatio: 1 - float64(len(usable))/float64(window.Days),
		Values:       map[string]float64{},
	}
	set.Insufficient = set.MissingRatio > d.params.MissingRatioMax

	if latest := window.Latest(d.params.MinValidPixels); latest != nil {
		id := latest.ID
		set.EvidenceID = &id
	}

	d.deriveLatest(set, usable)
	d.deriveRainfall(set, usable, field.Season)
	d.deriveWeeklyMeans(set, window)
	d.deriveNDVIDelta(set, window)
	d.deriveSoilTrend(set, window, usable)

	if set.Insufficient {
		d.log.Debug("window too sparse for trend signals",
			"field_id", window.FieldID,
			"date", window.End.Format("2006-01-02"),
			"missing_ratio", set.MissingRatio,
		)
	}
	return set, nil
}

func (d *signalDeriver) deriveLatest(set *SignalSet, usable []types.MetricPoint) {
	for i := len(usable) - 1; i >= 0; i-- {
		record := usable[i].Record
		if record.NDVIMean != nil {
			set.Values[SignalNDVILatest] = *record.NDVIMean
			break
		}
	}
	for i := len(usable) - 1; i >= 0; i-- {
		record := usable[i].Record
		if record.SoilMoistureEst != nil {
			set.Values[SignalSoilMoistureLatest] = *record.SoilMoistureEst
			break
		}
	}
}

func (d *signalDeriver) deriveRainfall(set *SignalSet, usable []types.MetricPoint, season string) {
	total := 0.0
	readings := 0
	for _, point := range usable {
		if point.Record.RainfallMm != nil {
			total += *point.Record.RainfallMm
			readings++
		}
	}
	if readings == 0 {
		return
	}
	set.Values[SignalRainfallTotal14d] = total

	// Baseline is stated per 14 days; prorate for non-standard windows.
	baseline := d.params.RainfallBaselineFor(season) * float64(set.WindowDays) / 14.0
	set.Values[SignalRainfallDeficit14d] = baseline - total
}

// deriveWeeklyMeans averages temperature and humidity over the trailing 7
// days of the window.
func (d *signalDeriver) deriveWeeklyMeans(set *SignalSet, window *types.MetricWindow) {
	recent := trailingUsable(window, 7, d.params.MinValidPixels)

	if mean, ok := meanOf(recent, func(m *types.SatelliteMetric) *float64 { return m.TempMeanC }); ok {
		set.Values[SignalTempMean7d] = mean
	}
	if mean, ok := meanOf(recent, func(m *types.SatelliteMetric) *float64 { return m.HumidityPct }); ok {
		set.Values[SignalHumidityMean7d] = mean
	}
}

// deriveNDVIDelta compares the trailing 7 days against the 7 days before
// them. Both halves need at least one usable NDVI reading.
func (d *signalDeriver) deriveNDVIDelta(set *SignalSet, window *types.MetricWindow) {
	if window.Days < 14 {
		return
	}
	split := len(window.Points) - 7
	recent := usableSlice(window.Points[split:], d.params.MinValidPixels)
	prior := usableSlice(window.Points[split-7:split], d.params.MinValidPixels)

	recentMean, okRecent := meanOf(recent, func(m *types.SatelliteMetric) *float64 { return m.NDVIMean })
	priorMean, okPrior := meanOf(prior, func(m *types.SatelliteMetric) *float64 { return m.NDVIMean })
	if !okRecent || !okPrior {
		return
	}
	set.Values[SignalNDVIDelta7d] = recentMean - priorMean
}

// deriveSoilTrend fits a least-squares slope (moisture per day) over the
// usable readings. Fewer than three points cannot anchor a trend.
func (d *signalDeriver) deriveSoilTrend(set *SignalSet, window *types.MetricWindow, usable []types.MetricPoint) {
	start := window.Points[0].Date
	xs := make([]float64, 0, len(usable))
	ys := make([]float64, 0, len(usable))
	for _, point := range usable {
		if point.Record.SoilMoistureEst == nil {
			continue
		}
		xs = append(xs, point.Date.Sub(start).Hours()/24.0)
		ys = append(ys, *point.Record.SoilMoistureEst)
	}
	if len(xs) < 3 {
		return
	}

	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return
	}
	set.Values[SignalSoilMoistureTrend] = (n*sumXY - sumX*sumY) / denom
}

func trailingUsable(window *types.MetricWindow, days int, minValidPixels int) []types.MetricPoint {
	if days > len(window.Points) {
		days = len(window.Points)
	}
	return usableSlice(window.Points[len(window.Points)-days:], minValidPixels)
}

func usableSlice(points []types.MetricPoint, minValidPixels int) []types.MetricPoint {
	out := make([]types.MetricPoint, 0, len(points))
	for _, point := range points {
		if point.Record.Usable(minValidPixels) {
			out = append(out, point)
		}
	}
	return out
}

func meanOf(points []types.MetricPoint, pick func(*types.SatelliteMetric) *float64) (float64, bool) {
	sum := 0.0
	n := 0
	for _, point := range points {
		if v := pick(point.Record); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
