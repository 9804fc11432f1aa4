package services

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

const advisoryRulesEnv = "ADVISORY_RULES_PATH"

//go:embed advisory_rules.yaml
var advisoryRulesFS embed.FS

const (
	ComparatorLT      = "lt"
	ComparatorGT      = "gt"
	ComparatorBetween = "between"
)

// RuleSpec is the full threshold configuration for one deployment: signal
// derivation parameters, resolution policy, and the rule table itself.
// Thresholds are configuration, never code.
type RuleSpec struct {
	Ruleset    string           `yaml:"ruleset"`
	Version    int              `yaml:"version"`
	Signals    SignalParams     `yaml:"signals"`
	Resolution ResolutionParams `yaml:"resolution"`
	Health     HealthParams     `yaml:"health"`
	Rules      []RuleDef        `yaml:"rules"`
}

type SignalParams struct {
	WindowDays         int                `yaml:"window_days"`
	MinValidPixels     int                `yaml:"min_valid_pixels"`
	MissingRatioMax    float64            `yaml:"missing_ratio_max"`
	RainfallBaselineMm float64            `yaml:"rainfall_baseline_mm_per_14d"`
	SeasonBaselineMm   map[string]float64 `yaml:"season_baseline_mm_per_14d"`
}

type ResolutionParams struct {
	// Consecutive data-sufficient evaluations without a re-fire before an
	// advisory is resolved.
	ClearEvaluations int `yaml:"clear_evaluations"`
	// How far back a previous trigger still counts as recent when logging
	// suppressions.
	RecencyWindowDays int `yaml:"recency_window_days"`
}

// HealthParams holds the NDVI band edges the report service classifies
// field health with. The good edge may carry per-crop overrides.
type HealthParams struct {
	ExcellentNDVI float64            `yaml:"excellent_ndvi"`
	GoodNDVI      float64            `yaml:"good_ndvi"`
	ModerateNDVI  float64            `yaml:"moderate_ndvi"`
	CropGoodNDVI  map[string]float64 `yaml:"crop_good_ndvi"`
}

func (h HealthParams) GoodEdgeFor(crop string) float64 {
	if crop != "" {
		for name, edge := range h.CropGoodNDVI {
			if strings.EqualFold(name, crop) {
				return edge
			}
		}
	}
	return h.GoodNDVI
}

// Classify maps a mean NDVI into a health band; a nil reading is Unknown.
func (h HealthParams) Classify(ndvi *float64, crop string) string {
	if ndvi == nil {
		return types.HealthUnknown
	}
	switch {
	case *ndvi > h.ExcellentNDVI:
		return types.HealthExcellent
	case *ndvi > h.GoodEdgeFor(crop):
		return types.HealthGood
	case *ndvi > h.ModerateNDVI:
		return types.HealthModerate
	default:
		return types.HealthPoor
	}
}

// RuleDef is one configured threshold rule. Crops/Seasons empty means the
// rule applies to every field.
type RuleDef struct {
	Type       string           `yaml:"type"`
	Signal     string           `yaml:"signal"`
	Comparator string           `yaml:"comparator"`
	Threshold  float64          `yaml:"threshold"`
	Lower      float64          `yaml:"lower"`
	Upper      float64          `yaml:"upper"`
	Level      types.AlertLevel `yaml:"level"`
	Priority   int              `yaml:"priority"`
	Crops      []string         `yaml:"crops"`
	Seasons    []string         `yaml:"seasons"`
	Text       string           `yaml:"text"`
}

// RainfallBaselineFor returns the 14-day rainfall baseline for a season,
// falling back to the deployment-wide default when the season has no override.
func (p SignalParams) RainfallBaselineFor(season string) float64 {
	if season != "" {
		for name, mm := range p.SeasonBaselineMm {
			if strings.EqualFold(name, season) {
				return mm
			}
		}
	}
	return p.RainfallBaselineMm
}

func DefaultRuleSpec() *RuleSpec {
	return &RuleSpec{
		Ruleset: "advisory_engine",
		Version: 1,
		Signals: SignalParams{
			WindowDays:         14,
			MinValidPixels:     50,
			MissingRatioMax:    0.4,
			RainfallBaselineMm: 60,
			SeasonBaselineMm:   map[string]float64{},
		},
		Resolution: ResolutionParams{
			ClearEvaluations:  3,
			RecencyWindowDays: 3,
		},
		Health: HealthParams{
			ExcellentNDVI: 0.70,
			GoodNDVI:      0.50,
			ModerateNDVI:  0.30,
			CropGoodNDVI: map[string]float64{
				types.CropWheat:     0.60,
				types.CropRice:      0.65,
				types.CropCotton:    0.55,
				types.CropSugarcane: 0.70,
				types.CropMaize:     0.60,
			},
		},
		Rules: []RuleDef{
			{Type: "drought_risk", Signal: SignalRainfallDeficit14d, Comparator: ComparatorGT, Threshold: 45, Level: types.LevelCritical, Priority: 1,
				Text: "Severe rainfall deficit of %.0f mm against the seasonal baseline over the last 14 days. Irrigate immediately and prioritise moisture retention."},
			{Type: "drought_risk", Signal: SignalRainfallDeficit14d, Comparator: ComparatorGT, Threshold: 30, Level: types.LevelHigh, Priority: 2,
				Text: "Rainfall deficit of %.0f mm against the seasonal baseline over the last 14 days. Plan supplemental irrigation."},
			{Type: "irrigation_needed", Signal: SignalSoilMoistureLatest, Comparator: ComparatorLT, Threshold: 0.15, Level: types.LevelCritical, Priority: 1,
				Text: "Soil moisture estimate has dropped to %.2f. Crop is at wilting risk; irrigate within 24 hours."},
			{Type: "waterlogging_risk", Signal: SignalSoilMoistureLatest, Comparator: ComparatorGT, Threshold: 0.70, Level: types.LevelMedium, Priority: 3,
				Text: "Soil moisture estimate of %.2f indicates saturation. Check drainage before the next rainfall."},
			{Type: "moisture_depletion", Signal: SignalSoilMoistureTrend, Comparator: ComparatorLT, Threshold: -0.01, Level: types.LevelMedium, Priority: 3,
				Text: "Soil moisture is depleting at %.3f per day over the window. Schedule irrigation before stress sets in."},
			{Type: "vegetation_stress", Signal: SignalNDVIDelta7d, Comparator: ComparatorLT, Threshold: -0.15, Level: types.LevelHigh, Priority: 2,
				Text: "Vegetation index dropped %.2f against the prior week. Scout the field for stress, pests or disease."},
			{Type: "low_vigor", Signal: SignalNDVILatest, Comparator: ComparatorLT, Threshold: 0.30, Level: types.LevelMedium, Priority: 3,
				Text: "Latest vegetation index is %.2f, below the healthy range for an established crop. Review nutrition and stand density."},
			{Type: "heat_stress", Signal: SignalTempMean7d, Comparator: ComparatorGT, Threshold: 33, Level: types.LevelHigh, Priority: 2,
				Text: "Mean temperature of %.1f C over the last week exceeds the crop stress threshold. Irrigate in the evening and avoid midday operations."},
			{Type: "pest_risk", Signal: SignalHumidityMean7d, Comparator: ComparatorGT, Threshold: 80, Level: types.LevelMedium, Priority: 2,
				Crops: []string{types.CropRice, types.CropCotton}, Seasons: []string{types.SeasonKharif, types.SeasonZaid},
				Text: "Sustained humidity of %.0f%% favours pest and fungal pressure for this crop. Increase scouting frequency."},
		},
	}
}

var ruleSpecOnce sync.Once
var ruleSpecCache *RuleSpec
var ruleSpecErr error

// LoadRuleSpec returns the deployment rule spec: ADVISORY_RULES_PATH if set,
// otherwise the embedded default table. An invalid file falls back to the
// compiled defaults so the engine never starts without thresholds.
func LoadRuleSpec(log *logger.Logger) *RuleSpec {
	ruleSpecOnce.Do(func() {
		ruleSpecCache, ruleSpecErr = loadRuleSpec()
	})
	if ruleSpecErr != nil {
		if log != nil {
			log.Warn("advisory rules: spec load failed; using compiled defaults", "error", ruleSpecErr)
		}
		return DefaultRuleSpec()
	}
	return ruleSpecCache
}

func loadRuleSpec() (*RuleSpec, error) {
	data, err := readRuleSpec()
	if err != nil {
		return nil, err
	}

	var spec RuleSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if err := validateRuleSpec(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func readRuleSpec() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(advisoryRulesEnv)); path != "" {
		return os.ReadFile(path)
	}
	return advisoryRulesFS.ReadFile("advisory_rules.yaml")
}

func validateRuleSpec(spec *RuleSpec) error {
	if spec == nil {
		return errors.New("missing spec")
	}
	if strings.TrimSpace(spec.Ruleset) != "advisory_engine" {
		return fmt.Errorf("unexpected ruleset: %s", spec.Ruleset)
	}
	if len(spec.Rules) == 0 {
		return errors.New("no rules defined")
	}

	defaults := DefaultRuleSpec()
	if spec.Signals.WindowDays <= 0 {
		spec.Signals.WindowDays = defaults.Signals.WindowDays
	}
	if spec.Signals.MinValidPixels < 0 {
		return fmt.Errorf("signals: min_valid_pixels must not be negative")
	}
	if spec.Signals.MissingRatioMax <= 0 || spec.Signals.MissingRatioMax > 1 {
		spec.Signals.MissingRatioMax = defaults.Signals.MissingRatioMax
	}
	if spec.Signals.RainfallBaselineMm <= 0 {
		spec.Signals.RainfallBaselineMm = defaults.Signals.RainfallBaselineMm
	}
	if spec.Resolution.ClearEvaluations <= 0 {
		spec.Resolution.ClearEvaluations = defaults.Resolution.ClearEvaluations
	}
	if spec.Resolution.RecencyWindowDays <= 0 {
		spec.Resolution.RecencyWindowDays = defaults.Resolution.RecencyWindowDays
	}
	if spec.Health.ExcellentNDVI <= 0 {
		spec.Health.ExcellentNDVI = defaults.Health.ExcellentNDVI
	}
	if spec.Health.GoodNDVI <= 0 {
		spec.Health.GoodNDVI = defaults.Health.GoodNDVI
	}
	if spec.Health.ModerateNDVI <= 0 {
		spec.Health.ModerateNDVI = defaults.Health.ModerateNDVI
	}
	if len(spec.Health.CropGoodNDVI) == 0 {
		spec.Health.CropGoodNDVI = defaults.Health.CropGoodNDVI
	}

	for i := range spec.Rules {
		rule := &spec.Rules[i]
		if strings.TrimSpace(rule.Type) == "" {
			return fmt.Errorf("rule %d: type is required", i)
		}
		if strings.TrimSpace(rule.Signal) == "" {
			return fmt.Errorf("rule %s: signal is required", rule.Type)
		}
		comparator, err := normalizeComparator(rule.Comparator)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.Type, err)
		}
		rule.Comparator = comparator
		if comparator == ComparatorBetween && rule.Lower >= rule.Upper {
			return fmt.Errorf("rule %s: between requires lower < upper", rule.Type)
		}
		if !rule.Level.Valid() {
			return fmt.Errorf("rule %s: unknown alert level %q", rule.Type, rule.Level)
		}
		if rule.Priority <= 0 {
			rule.Priority = 1
		}
	}
	return nil
}

func normalizeComparator(raw string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "<", "lt":
		return ComparatorLT, nil
	case ">", "gt":
		return ComparatorGT, nil
	case "between":
		return ComparatorBetween, nil
	default:
		return "", fmt.Errorf("unknown comparator %q", raw)
	}
}
