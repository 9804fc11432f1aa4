package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/clients/gcs"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

// ReportDay is one calendar day of the report window. Missing days stay in
// the history so readers see the observation density, not a smoothed series.
type ReportDay struct {
	Date            string   `json:"date"`
	Missing         bool     `json:"missing,omitempty"`
	Usable          bool     `json:"usable,omitempty"`
	Health          string   `json:"health,omitempty"`
	NDVIMean        *float64 `json:"ndvi_mean,omitempty"`
	EVIMean         *float64 `json:"evi_mean,omitempty"`
	TempMeanC       *float64 `json:"temp_mean_c,omitempty"`
	RainfallMm      *float64 `json:"rainfall_mm,omitempty"`
	HumidityPct     *float64 `json:"humidity_pct,omitempty"`
	WindSpeedMs     *float64 `json:"wind_speed_ms,omitempty"`
	SoilMoistureEst *float64 `json:"soil_moisture_est,omitempty"`
	ValidPixels     *int     `json:"valid_pixels,omitempty"`
}

type ReportAdvisory struct {
	ID               uuid.UUID `json:"id"`
	Type             string    `json:"type"`
	Level            string    `json:"level"`
	Priority         int       `json:"priority"`
	Text             string    `json:"text"`
	FirstTriggerDate string    `json:"first_trigger_date"`
	LastTriggerDate  string    `json:"last_trigger_date"`
}

// FieldReport is the JSON summary: identity, health classification, latest
// usable readings, the per-day window history, and the active advisory set
// in display order.
type FieldReport struct {
	FieldID      uuid.UUID        `json:"field_id"`
	Name         string           `json:"name"`
	CropType     string           `json:"crop_type,omitempty"`
	Season       string           `json:"season,omitempty"`
	State        string           `json:"state,omitempty"`
	District     string           `json:"district,omitempty"`
	GeneratedAt  string           `json:"generated_at"`
	WindowDays   int              `json:"window_days"`
	UsableDays   int              `json:"usable_days"`
	HealthStatus string           `json:"health_status"`
	Latest       *ReportDay       `json:"latest,omitempty"`
	History      []ReportDay      `json:"history"`
	Advisories   []ReportAdvisory `json:"advisories"`
}

type ReportService interface {
	Summary(ctx context.Context, fieldID uuid.UUID, days int) (*FieldReport, error)
	TechnicalReport(ctx context.Context, fieldID uuid.UUID, days int) (string, error)
	FarmerReport(ctx context.Context, fieldID uuid.UUID, days int) (string, error)
	HistoryWorkbook(ctx context.Context, fieldID uuid.UUID, days int) ([]byte, error)
	SnapshotCard(ctx context.Context, fieldID uuid.UUID, days int) ([]byte, error)
}

type reportService struct {
	db           *gorm.DB
	log          *logger.Logger
	fieldRepo    repos.FieldRepo
	metricRepo   repos.MetricRepo
	advisoryRepo repos.AdvisoryRepo
	spec         *RuleSpec
	store        gcs.ArtifactStore
	card         *cardRenderer
}

// NewReportService wires the report generators. store may be nil, in which
// case artifacts are returned to the caller but not archived.
func NewReportService(
	db *gorm.DB,
	baseLog *logger.Logger,
	fieldRepo repos.FieldRepo,
	metricRepo repos.MetricRepo,
	advisoryRepo repos.AdvisoryRepo,
	spec *RuleSpec,
	store gcs.ArtifactStore,
) ReportService {
	serviceLog := baseLog.With("service", "ReportService")
	return &reportService{
		db:           db,
		log:          serviceLog,
		fieldRepo:    fieldRepo,
		metricRepo:   metricRepo,
		advisoryRepo: advisoryRepo,
		spec:         spec,
		store:        store,
		card:         newCardRenderer(serviceLog),
	}
}

func (rs *reportService) Summary(ctx context.Context, fieldID uuid.UUID, days int) (*FieldReport, error) {
	report, _, err := rs.assemble(ctx, fieldID, days)
	if err != nil {
		return nil, err
	}
	if data, mErr := json.MarshalIndent(report, "", "  "); mErr == nil {
		rs.persist(ctx, fieldID, "summary.json", data)
	}
	return report, nil
}

// assemble builds the report data every renderer shares and refreshes the
// field's stored health status when the classification moved.
func (rs *reportService) assemble(ctx context.Context, fieldID uuid.UUID, days int) (*FieldReport, *types.MetricWindow, error) {
	if days <= 0 {
		days = rs.spec.Signals.WindowDays
	}

	fieldRow, err := rs.fieldRepo.GetByID(ctx, nil, fieldID)
	if err != nil {
		return nil, nil, fmt.Errorf("load field: %w", err)
	}
	if fieldRow == nil {
		return nil, nil, fmt.Errorf("field %s: %w", fieldID, pkgerrors.ErrNotFound)
	}

	end := types.DateOnly(time.Now())
	window, err := rs.metricRepo.Window(ctx, nil, fieldID, end, days)
	if err != nil {
		return nil, nil, fmt.Errorf("load metric window: %w", err)
	}

	minPixels := rs.spec.Signals.MinValidPixels
	history := make([]ReportDay, 0, len(window.Points))
	usableDays := 0
	for _, point := range window.Points {
		day := ReportDay{Date: point.Date.Format("2006-01-02")}
		if point.Record == nil {
			day.Missing = true
			history = append(history, day)
			continue
		}
		m := point.Record
		day.Usable = m.Usable(minPixels)
		day.Health = rs.spec.Health.Classify(m.NDVIMean, fieldRow.CropType)
		day.NDVIMean = m.NDVIMean
		day.EVIMean = m.EVIMean
		day.TempMeanC = m.TempMeanC
		day.RainfallMm = m.RainfallMm
		day.HumidityPct = m.HumidityPct
		day.WindSpeedMs = m.WindSpeedMs
		day.SoilMoistureEst = m.SoilMoistureEst
		day.ValidPixels = m.ValidPixels
		if day.Usable {
			usableDays++
		}
		history = append(history, day)
	}

	var latest *ReportDay
	health := types.HealthUnknown
	if m := window.Latest(minPixels); m != nil {
		health = rs.spec.Health.Classify(m.NDVIMean, fieldRow.CropType)
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Usable {
				latest = &history[i]
				break
			}
		}
	}

	active, err := rs.advisoryRepo.ListActiveByField(ctx, nil, fieldID)
	if err != nil {
		return nil, nil, fmt.Errorf("load active advisories: %w", err)
	}
	advisories := make([]ReportAdvisory, 0, len(active))
	for _, adv := range active {
		advisories = append(advisories, ReportAdvisory{
			ID:               adv.ID,
			Type:             adv.AdvisoryType,
			Level:            string(adv.AlertLevel),
			Priority:         adv.Priority,
			Text:             adv.AdvisoryText,
			FirstTriggerDate: adv.FirstTriggerDate.Format("2006-01-02"),
			LastTriggerDate:  adv.LastTriggerDate.Format("2006-01-02"),
		})
	}

	if health != fieldRow.Status {
		if uErr := rs.fieldRepo.UpdateStatus(ctx, nil, fieldID, health); uErr != nil {
			rs.log.Warn("field health status update failed", "field_id", fieldID, "error", uErr)
		} else {
			rs.log.Info("field health reclassified", "field_id", fieldID, "from", fieldRow.Status, "to", health)
			fieldRow.Status = health
		}
	}

	report := &FieldReport{
		FieldID:      fieldRow.ID,
		Name:         fieldRow.Name,
		CropType:     fieldRow.CropType,
		Season:       fieldRow.Season,
		State:        fieldRow.State,
		District:     fieldRow.District,
		GeneratedAt:  end.Format("2006-01-02"),
		WindowDays:   days,
		UsableDays:   usableDays,
		HealthStatus: health,
		Latest:       latest,
		History:      history,
		Advisories:   advisories,
	}
	return report, window, nil
}

func (rs *reportService) TechnicalReport(ctx context.Context, fieldID uuid.UUID, days int) (string, error) {
	report, _, err := rs.assemble(ctx, fieldID, days)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Technical Report\n\n")
	fmt.Fprintf(&b, "**Field:** %s (`%s`)\n", report.Name, report.FieldID)
	fmt.Fprintf(&b, "**Location:** %s, %s\n", orUnknown(report.State), orUnknown(report.District))
	fmt.Fprintf(&b, "**Crop:** %s", orUnknown(report.CropType))
	if report.Season != "" {
		fmt.Fprintf(&b, " (%s season)", report.Season)
	}
	fmt.Fprintf(&b, "\n**Window:** %d days to %s (%d usable)\n\n", report.WindowDays, report.GeneratedAt, report.UsableDays)

	fmt.Fprintf(&b, "## Latest Metrics\n")
	if report.Latest == nil {
		fmt.Fprintf(&b, "_No usable observation in the window._\n\n")
	} else {
		l := report.Latest
		fmt.Fprintf(&b, "- Date: %s\n", l.Date)
		fmt.Fprintf(&b, "- NDVI: %s\n", fmtFloat(l.NDVIMean, "%.2f"))
		fmt.Fprintf(&b, "- Temperature: %s C\n", fmtFloat(l.TempMeanC, "%.1f"))
		fmt.Fprintf(&b, "- Rainfall: %s mm\n", fmtFloat(l.RainfallMm, "%.1f"))
		fmt.Fprintf(&b, "- Humidity: %s%%\n", fmtFloat(l.HumidityPct, "%.1f"))
		fmt.Fprintf(&b, "- Wind: %s m/s\n", fmtFloat(l.WindSpeedMs, "%.1f"))
		fmt.Fprintf(&b, "- Soil moisture: %s\n", fmtFloat(l.SoilMoistureEst, "%.2f"))
		fmt.Fprintf(&b, "- Health: %s\n\n", report.HealthStatus)
	}

	fmt.Fprintf(&b, "## NDVI Trend\n")
	for _, day := range report.History {
		if day.Missing {
			fmt.Fprintf(&b, "- %s: no observation\n", day.Date)
			continue
		}
		fmt.Fprintf(&b, "- %s: NDVI %s (%s)\n", day.Date, fmtFloat(day.NDVIMean, "%.2f"), day.Health)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Active Advisories\n")
	if len(report.Advisories) == 0 {
		fmt.Fprintf(&b, "_No active advisories._\n")
	} else {
		for i, adv := range report.Advisories {
			fmt.Fprintf(&b, "%d. **%s** %s: %s (last triggered %s)\n",
				i+1, adv.Level, adv.Type, adv.Text, adv.LastTriggerDate)
		}
	}

	out := b.String()
	rs.persist(ctx, fieldID, "technical.md", []byte(out))
	return out, nil
}

func (rs *reportService) FarmerReport(ctx context.Context, fieldID uuid.UUID, days int) (string, error) {
	report, _, err := rs.assemble(ctx, fieldID, days)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Farmer Advisory\n\n")
	fmt.Fprintf(&b, "**Hello %s!**\n", report.Name)
	fmt.Fprintf(&b, "**Location:** %s, %s\n", orUnknown(report.State), orUnknown(report.District))
	fmt.Fprintf(&b, "**Crop:** %s\n", orUnknown(report.CropType))
	fmt.Fprintf(&b, "**Date:** %s\n\n", report.GeneratedAt)

	fmt.Fprintf(&b, "## Update\n")
	if report.Latest == nil {
		fmt.Fprintf(&b, "- No fresh satellite observation for this field yet.\n\n")
	} else {
		l := report.Latest
		fmt.Fprintf(&b, "- Health: %s (NDVI %s)\n", strings.ToLower(report.HealthStatus), fmtFloat(l.NDVIMean, "%.2f"))
		fmt.Fprintf(&b, "- Weather: %s C, %s%% humidity, %s mm rain\n",
			fmtFloat(l.TempMeanC, "%.1f"), fmtFloat(l.HumidityPct, "%.0f"), fmtFloat(l.RainfallMm, "%.1f"))
		fmt.Fprintf(&b, "- Soil moisture: %s\n\n", fmtFloat(l.SoilMoistureEst, "%.2f"))
	}

	fmt.Fprintf(&b, "## Actions\n")
	if len(report.Advisories) == 0 {
		fmt.Fprintf(&b, "_No actions needed. The field looks good._\n")
	} else {
		for i, adv := range report.Advisories {
			fmt.Fprintf(&b, "%d. **%s:** %s (since %s)\n",
				i+1, farmerUrgency(adv.Level), adv.Text, adv.FirstTriggerDate)
		}
	}

	out := b.String()
	rs.persist(ctx, fieldID, "farmer.md", []byte(out))
	return out, nil
}

// HistoryWorkbook renders the window as an XLSX workbook: a History sheet
// with one row per calendar day and an Advisories sheet with the active set.
func (rs *reportService) HistoryWorkbook(ctx context.Context, fieldID uuid.UUID, days int) ([]byte, error) {
	report, _, err := rs.assemble(ctx, fieldID, days)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const historySheet = "History"
	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	historyHeaders := []string{
		"Date", "NDVI Mean", "EVI Mean", "Temp C", "Rainfall mm",
		"Humidity %", "Wind m/s", "Soil Moisture", "Valid Pixels", "Usable", "Health",
	}
	if err := writeSheetRow(f, historySheet, 1, toCells(historyHeaders)); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(historySheet, "A1", "K1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(historySheet, "A", "A", 12); err != nil {
		return nil, fmt.Errorf("set col width: %w", err)
	}

	for i, day := range report.History {
		row := []interface{}{day.Date}
		if day.Missing {
			row = append(row, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)
		} else {
			row = append(row,
				floatCell(day.NDVIMean), floatCell(day.EVIMean), floatCell(day.TempMeanC),
				floatCell(day.RainfallMm), floatCell(day.HumidityPct), floatCell(day.WindSpeedMs),
				floatCell(day.SoilMoistureEst), intCell(day.ValidPixels), day.Usable, day.Health,
			)
		}
		if err := writeSheetRow(f, historySheet, i+2, row); err != nil {
			return nil, err
		}
	}

	const advisorySheet = "Advisories"
	if _, err := f.NewSheet(advisorySheet); err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	advisoryHeaders := []string{"Type", "Level", "Priority", "First Trigger", "Last Trigger", "Text"}
	if err := writeSheetRow(f, advisorySheet, 1, toCells(advisoryHeaders)); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(advisorySheet, "A1", "F1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(advisorySheet, "F", "F", 80); err != nil {
		return nil, fmt.Errorf("set col width: %w", err)
	}
	for i, adv := range report.Advisories {
		row := []interface{}{adv.Type, adv.Level, adv.Priority, adv.FirstTriggerDate, adv.LastTriggerDate, adv.Text}
		if err := writeSheetRow(f, advisorySheet, i+2, row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	out := buf.Bytes()
	rs.persist(ctx, fieldID, "history.xlsx", out)
	return out, nil
}

func (rs *reportService) SnapshotCard(ctx context.Context, fieldID uuid.UUID, days int) ([]byte, error) {
	report, window, err := rs.assemble(ctx, fieldID, days)
	if err != nil {
		return nil, err
	}
	minPixels := rs.spec.Signals.MinValidPixels
	out, err := rs.card.Render(report, window, minPixels)
	if err != nil {
		return nil, fmt.Errorf("render snapshot card: %w", err)
	}
	rs.persist(ctx, fieldID, "card.png", out)
	return out, nil
}

// persist archives an artifact under reports/<field>/<name>. Archival is a
// side channel; a failed write never fails the report that produced it.
func (rs *reportService) persist(ctx context.Context, fieldID uuid.UUID, name string, data []byte) {
	if rs.store == nil {
		return
	}
	key := fmt.Sprintf("reports/%s/%s", fieldID, name)
	if err := rs.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		rs.log.Warn("report artifact persist failed", "key", key, "error", err)
	}
}

func writeSheetRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intCell(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fmtFloat(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func farmerUrgency(level string) string {
	switch types.AlertLevel(level) {
	case types.LevelCritical:
		return "URGENT"
	case types.LevelHigh:
		return "CAUTION"
	default:
		return "NOTE"
	}
}
