package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/data/repos/advisory"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/field"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/metric"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/testutil"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/realtime"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (c *captureEmitter) Emit(_ context.Context, ev realtime.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) named(name realtime.EventName, fieldID uuid.UUID) []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []realtime.Event{}
	for _, ev := range c.events {
		if ev.Name == name && ev.FieldID == fieldID {
			out = append(out, ev)
		}
	}
	return out
}

type engineFixture struct {
	db         *gorm.DB
	advisories advisory.AdvisoryRepo
	emitter    *captureEmitter
}

func engineForTest(t *testing.T) (Engine, *engineFixture) {
	t.Helper()

	db := testutil.DB(t)
	log := testutil.Logger(t)

	fieldRepo := field.NewFieldRepo(db, log)
	metricRepo := metric.NewMetricRepo(db, log)
	advisoryRepo := advisory.NewAdvisoryRepo(db, log)

	spec := services.DefaultRuleSpec()
	emitter := &captureEmitter{}

	eng := NewEngine(
		db,
		log,
		fieldRepo,
		metricRepo,
		advisoryRepo,
		services.NewSignalDeriver(log, spec.Signals),
		services.NewRuleEvaluator(log, spec),
		services.NewAdvisoryReconciler(log, spec),
		services.NewAdvisoryNotifier(emitter),
		spec,
	)
	return eng, &engineFixture{db: db, advisories: advisoryRepo, emitter: emitter}
}

// seedObservedDay stores one calm daily record: healthy vegetation, moderate
// moisture, mild weather. Only rainfall varies per scenario.
func seedObservedDay(t *testing.T, db *gorm.DB, fieldID uuid.UUID, day time.Time, rainfallMm float64) *types.SatelliteMetric {
	t.Helper()
	return testutil.SeedMetric(t, db, fieldID, day, func(m *types.SatelliteMetric) {
		m.NDVIMean = testutil.Float(0.55)
		m.SoilMoistureEst = testutil.Float(0.30)
		m.TempMeanC = testutil.Float(28)
		m.HumidityPct = testutil.Float(60)
		m.RainfallMm = testutil.Float(rainfallMm)
		m.ValidPixels = testutil.Int(100)
	})
}

func dayN(base time.Time, n int) time.Time { return base.AddDate(0, 0, n) }

func TestEngineDroughtScenario(t *testing.T) {
	eng, fx := engineForTest(t)
	ctx := context.Background()
	base := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	owner := testutil.SeedUser(t, fx.db)
	fieldRow := testutil.SeedField(t, fx.db, owner.ID)

	// Fourteen observed days totalling 5mm of rain against a 60mm baseline.
	var last *types.SatelliteMetric
	for i := 0; i < 14; i++ {
		rain := 0.0
		if i == 13 {
			rain = 5
		}
		last = seedObservedDay(t, fx.db, fieldRow.ID, dayN(base, i), rain)
	}

	result, err := eng.EvaluateField(ctx, fieldRow.ID, dayN(base, 13))
	if err != nil {
		t.Fatalf("EvaluateField: %v", err)
	}
	if result.Insufficient {
		t.Fatalf("fourteen usable days must be sufficient")
	}
	if result.Created != 1 || result.Escalated != 0 || result.Resolved != 0 {
		t.Fatalf("decisions: want one create, got %+v", result)
	}

	active, err := fx.advisories.ListActiveByField(ctx, nil, fieldRow.ID)
	if err != nil {
		t.Fatalf("ListActiveByField: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active advisories: want=1 got=%d", len(active))
	}
	adv := active[0]
	if adv.AdvisoryType != "drought_risk" {
		t.Fatalf("advisory type: want=drought_risk got=%s", adv.AdvisoryType)
	}
	if adv.AlertLevel != types.LevelCritical || adv.Priority != 1 {
		t.Fatalf("severity: want=CRITICAL p1 got=%s p%d", adv.AlertLevel, adv.Priority)
	}
	if adv.MetricID == nil || *adv.MetricID != last.ID {
		t.Fatalf("trigger reference should be the newest day's record")
	}
	if !adv.FirstTriggerDate.Equal(dayN(base, 13)) || !adv.LastTriggerDate.Equal(dayN(base, 13)) {
		t.Fatalf("trigger dates: first=%v last=%v", adv.FirstTriggerDate, adv.LastTriggerDate)
	}

	created := fx.emitter.named(realtime.EventAdvisoryCreated, fieldRow.ID)
	if len(created) != 1 {
		t.Fatalf("created events: want=1 got=%d", len(created))
	}
	if created[0].AdvisoryID != adv.ID || created[0].Level != string(types.LevelCritical) {
		t.Fatalf("created event payload: %+v", created[0])
	}

	// Re-running the unchanged window plans no new rows and no level change.
	again, err := eng.EvaluateField(ctx, fieldRow.ID, dayN(base, 13))
	if err != nil {
		t.Fatalf("EvaluateField rerun: %v", err)
	}
	if again.Created != 0 || again.Escalated != 0 || again.Suppressed != 1 {
		t.Fatalf("rerun decisions: %+v", again)
	}
	activeAgain, err := fx.advisories.ListActiveByField(ctx, nil, fieldRow.ID)
	if err != nil {
		t.Fatalf("ListActiveByField rerun: %v", err)
	}
	if len(activeAgain) != 1 || activeAgain[0].ID != adv.ID {
		t.Fatalf("rerun must keep the same single advisory row")
	}
}

func TestEngineEscalatesInPlace(t *testing.T) {
	eng, fx := engineForTest(t)
	ctx := context.Background()
	base := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	owner := testutil.SeedUser(t, fx.db)
	fieldRow := testutil.SeedField(t, fx.db, owner.ID)

	// 25mm on the first day holds the first window at a HIGH deficit; the
	// next day's window slides past it into CRITICAL territory.
	for i := 0; i < 14; i++ {
		rain := 0.0
		if i == 0 {
			rain = 25
		}
		seedObservedDay(t, fx.db, fieldRow.ID, dayN(base, i), rain)
	}

	first, err := eng.EvaluateField(ctx, fieldRow.ID, dayN(base, 13))
	if err != nil {
		t.Fatalf("EvaluateField day 13: %v", err)
	}
	if first.Created != 1 {
		t.Fatalf("first evaluation: want one create, got %+v", first)
	}
	active, err := fx.advisories.ListActiveByField(ctx, nil, fieldRow.ID)
	if err != nil {
		t.Fatalf("ListActiveByField: %v", err)
	}
	if len(active) != 1 || active[0].AlertLevel != types.LevelHigh {
		t.Fatalf("first advisory: want HIGH, got %+v", active[0])
	}
	originalID := active[0].ID

	lastMetric := seedObservedDay(t, fx.db, fieldRow.ID, dayN(base, 14), 0)
	second, err := eng.EvaluateField(ctx, fieldRow.ID, dayN(base, 14))
	if err != nil {
		t.Fatalf("EvaluateField day 14: %v", err)
	}
	if second.Escalated != 1 || second.Created != 0 {
		t.Fatalf("second evaluation: want one escalate, got %+v", second)
	}

	active, err = fx.advisories.ListActiveByField(ctx, nil, fieldRow.ID)
	if err != nil {
		t.Fatalf("ListActiveByField after escalation: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("escalation must not add rows, got %d", len(active))
	}
	adv := active[0]
	if adv.ID != originalID {
		t.Fatalf("escalation must keep the advisory id: want=%s got=%s", originalID, adv.ID)
	}
	if adv.AlertLevel != types.LevelCritical || adv.Priority != 1 {
		t.Fatalf("escalated severity: want=CRITICAL p1 got=%s p%d", adv.AlertLevel, adv.Priority)
	}
	if adv.MetricID == nil || *adv.MetricID != lastMetric.ID {
		t.Fatalf("escalation must re-point the trigger reference")
	}
	if !adv.FirstTriggerDate.Equal(dayN(base, 13)) {
		t.Fatalf("first trigger date must survive escalation, got %v", adv.FirstTriggerDate)
	}
	if !adv.LastTriggerDate.Equal(dayN(base, 14)) {
		t.Fatalf("last trigger date must advance, got %v", adv.LastTriggerDate)
	}
	if adv.ClearStreak != 0 {
		t.Fatalf("escalation must reset the clear streak, got %d", adv.ClearStreak)
	}

	escalated := fx.emitter.named(realtime.EventAdvisoryEscalated, fieldRow.ID)
	if len(escalated) != 1 {
		t.Fatalf("escalated events: want=1 got=%d", len(escalated))
	}
	if escalated[0].AdvisoryID != originalID || escalated[0].PrevLevel != string(types.LevelHigh) {
		t.Fatalf("escalated event payload: %+v", escalated[0])
	}
}

func TestEngineNeverDowngradesSilently(t *testing.T) {
	eng, fx := engineForTest(t)
	ctx := context.Background()
	base := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	owner := testutil.SeedUser(t, fx.db)
	fieldRow := testutil.SeedField(t, fx.db, owner.ID)

	for i := 0; i < 14; i++ {
		rain := 0.0
		if i == 13 {
			rain = 5
		}
		seedObservedDay(t, fx.db, fieldRow.ID, dayN(base, i), rain)
	}
	if _, err := eng.EvaluateField(ctx, fieldRow.ID, dayN(base, 13)); err != nil {
		t.Fatalf("EvaluateField day 13: %v", err)
	}
	active, err := fx.advisories.ListActiveByField(ctx, nil, fieldRow.ID)
	if err != nil {
		t.Fatalf("ListActiveByField: %v", err)
	}
	if len(active) != 1 || active[0].AlertLevel != types.LevelCritical {
		t.Fatalf("setup advisory: want CRITICAL, got %+v", active[0])
	}
	originalID := active[0].ID

	// 20mm the next day softens the deficit to HIGH territory; the active
	// CRITICAL advisory must hold its level.
	seedObservedDay(t, fx.db, fieldRow.ID, dayN(base, 14), 20)
	second, err := eng.EvaluateField(ctx, fieldRow.ID, dayN(base, 14))
	if err != nil {
		t.Fatalf("EvaluateField day 14: %v", err)
	}
	if second.Suppressed != 1 || second.Created != 0 || second.Escalated != 0 {
		t.Fatalf("weaker candidate: want one suppress, got %+v", second)
	}

	active, err = fx.advisories.ListActiveByField(ctx, nil, fieldRow.ID)
	if err != nil {
		t.Fatalf("ListActiveByField after suppress: %v", err)
	}
	if len(active) != 1 || active[0].ID != originalID {
		t.Fatalf("suppression must keep the same row")
	}
	adv := active[0]
	if adv.AlertLevel != types.LevelCritical || adv.Priority != 1 {
		t.Fatalf("level must never drop below CRITICAL, got %s p%d", adv.AlertLevel, adv.Priority)
	}
	if !adv.LastTriggerDate.Equal(dayN(base, 14)) {
		t.Fatalf("suppression must refresh the trigger date, got %v", adv.LastTriggerDate)
	}
	if adv.ClearStreak != 0 {
		t.Fatalf("suppression must reset the clear streak, got %d", adv.ClearStreak)
	}

	if n := len(fx.emitter.named(realtime.EventAdvisoryEscalated, fieldRow.ID)); n != 0 {
		t.Fatalf("suppression must not announce an escalation, got %d", n)
	}
}

func TestEngineResolvesAfterConsecutiveClears(t *testing.T) {
	eng, fx := engineForTest(t)
	ctx := context.Background()
	base := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	owner := testutil.SeedUser(t, fx.db)
	fieldRow := testutil.SeedField(t, fx.db, owner.ID)

	for i := 0; i < 14; i++ {
		rain := 0.0
		if i == 13 {
			rain = 5
		}
		seedObservedDay(t, fx.db, fieldRow.ID, dayN(base, i), rain)
	}
	if _, err := eng.EvaluateField(ctx, fieldRow.ID, dayN(base, 13)); err != nil {
		t.Fatalf("EvaluateField day 13: %v", err)
	}

	// 60mm on day 14 erases the deficit; three data-sufficient quiet days
	// then walk the advisory to resolution.
	rains := []float64{60, 0, 0}
	for step, rain := range rains {
		day := dayN(base, 14+step)
		seedObservedDay(t, fx.db, fieldRow.ID, day, rain)
		result, err := eng.EvaluateField(ctx, fieldRow.ID, day)
		if err != nil {
			t.Fatalf("EvaluateField day %d: %v", 14+step, err)
		}
		if step < 2 {
			if result.Cleared != 1 || result.Resolved != 0 {
				t.Fatalf("step %d: want one clear, got %+v", step, result)
			}
		} else {
			if result.Resolved != 1 {
				t.Fatalf("third quiet evaluation must resolve, got %+v", result)
			}
		}
	}

	active, err := fx.advisories.ListActiveByField(ctx, nil, fieldRow.ID)
	if err != nil {
		t.Fatalf("ListActiveByField: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("resolved advisory must leave the active set, got %d", len(active))
	}

	all, err := fx.advisories.ListByField(ctx, nil, fieldRow.ID, true)
	if err != nil {
		t.Fatalf("ListByField: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("history: want=1 got=%d", len(all))
	}
	if all[0].Status != types.AdvisoryStatusResolved || all[0].ResolvedAt == nil {
		t.Fatalf("resolution must set status + timestamp, got %+v", all[0])
	}

	resolved := fx.emitter.named(realtime.EventAdvisoryResolved, fieldRow.ID)
	if len(resolved) != 1 || resolved[0].AdvisoryID != all[0].ID {
		t.Fatalf("resolved events: %+v", resolved)
	}
}

func TestEngineInsufficientEvaluationFreezesStreak(t *testing.T) {
	eng, fx := engineForTest(t)
	ctx := context.Background()
	base := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	owner := testutil.SeedUser(t, fx.db)
	fieldRow := testutil.SeedField(t, fx.db, owner.ID)

	// An advisory one sufficient clear away from resolution.
	adv := &types.Advisory{
		ID:               uuid.New(),
		FieldID:          fieldRow.ID,
		AdvisoryType:     "drought_risk",
		AdvisoryText:     "Severe rainfall deficit.",
		AlertLevel:       types.LevelCritical,
		Priority:         1,
		Status:           types.AdvisoryStatusActive,
		FirstTriggerDate: dayN(base, 0),
		LastTriggerDate:  dayN(base, 9),
		ClearStreak:      2,
	}
	if err := fx.db.Create(adv).Error; err != nil {
		t.Fatalf("seed advisory: %v", err)
	}

	// Three observed days of fourteen: too sparse to trust.
	for i := 11; i <= 13; i++ {
		seedObservedDay(t, fx.db, fieldRow.ID, dayN(base, i), 20)
	}
	result, err := eng.EvaluateField(ctx, fieldRow.ID, dayN(base, 13))
	if err != nil {
		t.Fatalf("EvaluateField sparse: %v", err)
	}
	if !result.Insufficient {
		t.Fatalf("three of fourteen days must be insufficient")
	}
	if result.Cleared != 0 || result.Resolved != 0 {
		t.Fatalf("insufficient evaluation must freeze the streak, got %+v", result)
	}

	var frozen types.Advisory
	if err := fx.db.First(&frozen, "id = ?", adv.ID).Error; err != nil {
		t.Fatalf("reload advisory: %v", err)
	}
	if frozen.ClearStreak != 2 || frozen.Status != types.AdvisoryStatusActive {
		t.Fatalf("frozen advisory: streak=%d status=%s", frozen.ClearStreak, frozen.Status)
	}

	// Backfill the window; the next sufficient quiet evaluation completes
	// the streak.
	for i := 0; i <= 10; i++ {
		seedObservedDay(t, fx.db, fieldRow.ID, dayN(base, i), 20)
	}
	result, err = eng.EvaluateField(ctx, fieldRow.ID, dayN(base, 13))
	if err != nil {
		t.Fatalf("EvaluateField backfilled: %v", err)
	}
	if result.Insufficient {
		t.Fatalf("backfilled window must be sufficient")
	}
	if result.Resolved != 1 {
		t.Fatalf("want resolution on the completed streak, got %+v", result)
	}

	if err := fx.db.First(&frozen, "id = ?", adv.ID).Error; err != nil {
		t.Fatalf("reload advisory: %v", err)
	}
	if frozen.Status != types.AdvisoryStatusResolved || frozen.ResolvedAt == nil {
		t.Fatalf("advisory should resolve after the streak completes, got %+v", frozen)
	}
}

func TestEngineUnknownFieldNotFound(t *testing.T) {
	eng, _ := engineForTest(t)
	if _, err := eng.EvaluateField(context.Background(), uuid.New(), time.Now()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("unknown field: want ErrNotFound, got %v", err)
	}
}

func TestEngineSweepAll(t *testing.T) {
	eng, fx := engineForTest(t)
	ctx := context.Background()
	base := time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)

	owner := testutil.SeedUser(t, fx.db)
	droughtField := testutil.SeedField(t, fx.db, owner.ID)
	sparseField := testutil.SeedField(t, fx.db, owner.ID)

	for i := 0; i < 14; i++ {
		seedObservedDay(t, fx.db, droughtField.ID, dayN(base, i), 0)
	}
	seedObservedDay(t, fx.db, sparseField.ID, dayN(base, 13), 10)

	result, err := eng.SweepAll(ctx, dayN(base, 13))
	if err != nil {
		t.Fatalf("SweepAll: %v", err)
	}
	if result.Total < 2 {
		t.Fatalf("sweep total: want>=2 got=%d", result.Total)
	}
	if result.Failed != 0 || result.Skipped != 0 {
		t.Fatalf("sweep should process every field cleanly: %+v", result)
	}
	if result.Reconciled < 1 || result.Insufficient < 1 {
		t.Fatalf("sweep outcomes: %+v", result)
	}

	active, err := fx.advisories.ListActiveByField(ctx, nil, droughtField.ID)
	if err != nil {
		t.Fatalf("ListActiveByField drought: %v", err)
	}
	if len(active) != 1 || active[0].AdvisoryType != "drought_risk" {
		t.Fatalf("drought field advisories: %+v", active)
	}
	if n := len(fx.emitter.named(realtime.EventAdvisoryCreated, droughtField.ID)); n != 1 {
		t.Fatalf("drought field created events: want=1 got=%d", n)
	}

	sparseActive, err := fx.advisories.ListActiveByField(ctx, nil, sparseField.ID)
	if err != nil {
		t.Fatalf("ListActiveByField sparse: %v", err)
	}
	if len(sparseActive) != 0 {
		t.Fatalf("a sparse window must not accrue advisories, got %d", len(sparseActive))
	}
}
