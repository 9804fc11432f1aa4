package metric

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SatelliteMetric is one field's observation for one calendar day.
// (field_id, date) is unique; re-ingestion replaces, never duplicates.
// Rows delete hard so a purged metric cannot shadow a later upsert
// through the composite index.
type SatelliteMetric struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FieldID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_metric_field_date" json:"field_id"`
	Date    time.Time `gorm:"column:date;not null;uniqueIndex:idx_metric_field_date" json:"date"`

	NDVIMean *float64 `gorm:"column:ndvi_mean" json:"ndvi_mean,omitempty"`
	NDVIMax  *float64 `gorm:"column:ndvi_max" json:"ndvi_max,omitempty"`
	NDVIMin  *float64 `gorm:"column:ndvi_min" json:"ndvi_min,omitempty"`
	EVIMean  *float64 `gorm:"column:evi_mean" json:"evi_mean,omitempty"`

	TempMeanC     *float64 `gorm:"column:temp_mean_c" json:"temp_mean_c,omitempty"`
	RainfallMm    *float64 `gorm:"column:rainfall_mm" json:"rainfall_mm,omitempty"`
	HumidityPct   *float64 `gorm:"column:humidity_pct" json:"humidity_pct,omitempty"`
	WindSpeedMs   *float64 `gorm:"column:wind_speed_ms" json:"wind_speed_ms,omitempty"`
	CloudCoverPct *float64 `gorm:"column:cloud_cover_pct" json:"cloud_cover_pct,omitempty"`

	SoilMoistureEst *float64 `gorm:"column:soil_moisture_est" json:"soil_moisture_est,omitempty"`

	DataSource  string `gorm:"column:data_source" json:"data_source,omitempty"`
	ValidPixels *int   `gorm:"column:valid_pixels" json:"valid_pixels,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (SatelliteMetric) TableName() string { return "satellite_metric" }

func (m *SatelliteMetric) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.Date = DateOnly(m.Date)
	return nil
}

// Usable reports whether the record may enter aggregations. A record below
// the valid-pixel minimum is kept for continuity but excluded from rule
// input; an absent count means confidence is unknown and the record passes.
func (m *SatelliteMetric) Usable(minValidPixels int) bool {
	if m == nil {
		return false
	}
	if m.ValidPixels == nil {
		return true
	}
	return *m.ValidPixels >= minValidPixels
}

// DateOnly truncates to a UTC calendar day, the granularity every metric
// key and window bound uses.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Point is one calendar-day slot of a window. Record is nil on days with
// no stored metric; gaps stay explicit, they are never interpolated.
type Point struct {
	Date   time.Time        `json:"date"`
	Record *SatelliteMetric `json:"record,omitempty"`
}

func (p Point) Missing() bool { return p.Record == nil }

// Window is an ordered, gap-explicit read of one field's metrics over
// [End-Days, End], ascending by date, one Point per calendar day.
type Window struct {
	FieldID uuid.UUID `json:"field_id"`
	End     time.Time `json:"end"`
	Days    int       `json:"days"`
	Points  []Point   `json:"points"`
}

// Expected is the number of calendar days the window covers.
func (w *Window) Expected() int { return len(w.Points) }

// Latest returns the most recent point whose record is usable, or nil.
func (w *Window) Latest(minValidPixels int) *SatelliteMetric {
	for i := len(w.Points) - 1; i >= 0; i-- {
		if r := w.Points[i].Record; r.Usable(minValidPixels) {
			return r
		}
	}
	return nil
}
