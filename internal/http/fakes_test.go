package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/engine"
	httpH "github.com/krushibheru/agromonitor-backend/internal/http/handlers"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

// The fakes fail loudly on any call a test did not wire, so an unexpected
// service hit shows up as a 500 in the response under test.
func errNotWired(op string) error { return fmt.Errorf("fake %s not wired", op) }

type fakeUsers struct {
	createFn func(ctx context.Context, input services.CreateUserInput) (*types.User, error)
	getFn    func(ctx context.Context, id uuid.UUID) (*types.User, error)
	listFn   func(ctx context.Context) ([]*types.User, error)
	deleteFn func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeUsers) Create(ctx context.Context, input services.CreateUserInput) (*types.User, error) {
	if f.createFn == nil {
		return nil, errNotWired("users.Create")
	}
	return f.createFn(ctx, input)
}

func (f *fakeUsers) Get(ctx context.Context, id uuid.UUID) (*types.User, error) {
	if f.getFn == nil {
		return nil, errNotWired("users.Get")
	}
	return f.getFn(ctx, id)
}

func (f *fakeUsers) List(ctx context.Context) ([]*types.User, error) {
	if f.listFn == nil {
		return nil, errNotWired("users.List")
	}
	return f.listFn(ctx)
}

func (f *fakeUsers) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		return errNotWired("users.Delete")
	}
	return f.deleteFn(ctx, id)
}

type fakeFields struct {
	createFn     func(ctx context.Context, input services.CreateFieldInput) (*types.Field, error)
	getFn        func(ctx context.Context, id uuid.UUID) (*types.Field, error)
	listFn       func(ctx context.Context, userID *uuid.UUID) ([]*types.Field, error)
	croppingFn   func(ctx context.Context, id uuid.UUID, input services.UpdateCroppingInput) (*types.Field, error)
	advisoriesFn func(ctx context.Context, id uuid.UUID, includeResolved bool) ([]*types.Advisory, error)
	deleteFn     func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeFields) Create(ctx context.Context, input services.CreateFieldInput) (*types.Field, error) {
	if f.createFn == nil {
		return nil, errNotWired("fields.Create")
	}
	return f.createFn(ctx, input)
}

func (f *fakeFields) Get(ctx context.Context, id uuid.UUID) (*types.Field, error) {
	if f.getFn == nil {
		return nil, errNotWired("fields.Get")
	}
	return f.getFn(ctx, id)
}

func (f *fakeFields) List(ctx context.Context, userID *uuid.UUID) ([]*types.Field, error) {
	if f.listFn == nil {
		return nil, errNotWired("fields.List")
	}
	return f.listFn(ctx, userID)
}

func (f *fakeFields) UpdateCropping(ctx context.Context, id uuid.UUID, input services.UpdateCroppingInput) (*types.Field, error) {
	if f.croppingFn == nil {
		return nil, errNotWired("fields.UpdateCropping")
	}
	return f.croppingFn(ctx, id, input)
}

func (f *fakeFields) Advisories(ctx context.Context, id uuid.UUID, includeResolved bool) ([]*types.Advisory, error) {
	if f.advisoriesFn == nil {
		return nil, errNotWired("fields.Advisories")
	}
	return f.advisoriesFn(ctx, id, includeResolved)
}

func (f *fakeFields) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		return errNotWired("fields.Delete")
	}
	return f.deleteFn(ctx, id)
}

type fakeIngest struct {
	ingestFn func(ctx context.Context, rec *types.SatelliteMetric) (*types.SatelliteMetric, error)
	batchFn  func(ctx context.Context, recs []*types.SatelliteMetric) (*services.IngestSummary, error)
	deleteFn func(ctx context.Context, metricID uuid.UUID) error
}

func (f *fakeIngest) Ingest(ctx context.Context, rec *types.SatelliteMetric) (*types.SatelliteMetric, error) {
	if f.ingestFn == nil {
		return nil, errNotWired("ingest.Ingest")
	}
	return f.ingestFn(ctx, rec)
}

func (f *fakeIngest) IngestBatch(ctx context.Context, recs []*types.SatelliteMetric) (*services.IngestSummary, error) {
	if f.batchFn == nil {
		return nil, errNotWired("ingest.IngestBatch")
	}
	return f.batchFn(ctx, recs)
}

func (f *fakeIngest) DeleteMetric(ctx context.Context, metricID uuid.UUID) error {
	if f.deleteFn == nil {
		return errNotWired("ingest.DeleteMetric")
	}
	return f.deleteFn(ctx, metricID)
}

type fakeReports struct {
	summaryFn   func(ctx context.Context, fieldID uuid.UUID, days int) (*services.FieldReport, error)
	technicalFn func(ctx context.Context, fieldID uuid.UUID, days int) (string, error)
	farmerFn    func(ctx context.Context, fieldID uuid.UUID, days int) (string, error)
	workbookFn  func(ctx context.Context, fieldID uuid.UUID, days int) ([]byte, error)
	cardFn      func(ctx context.Context, fieldID uuid.UUID, days int) ([]byte, error)
}

func (f *fakeReports) Summary(ctx context.Context, fieldID uuid.UUID, days int) (*services.FieldReport, error) {
	if f.summaryFn == nil {
		return nil, errNotWired("reports.Summary")
	}
	return f.summaryFn(ctx, fieldID, days)
}

func (f *fakeReports) TechnicalReport(ctx context.Context, fieldID uuid.UUID, days int) (string, error) {
	if f.technicalFn == nil {
		return "", errNotWired("reports.TechnicalReport")
	}
	return f.technicalFn(ctx, fieldID, days)
}

func (f *fakeReports) FarmerReport(ctx context.Context, fieldID uuid.UUID, days int) (string, error) {
	if f.farmerFn == nil {
		return "", errNotWired("reports.FarmerReport")
	}
	return f.farmerFn(ctx, fieldID, days)
}

func (f *fakeReports) HistoryWorkbook(ctx context.Context, fieldID uuid.UUID, days int) ([]byte, error) {
	if f.workbookFn == nil {
		return nil, errNotWired("reports.HistoryWorkbook")
	}
	return f.workbookFn(ctx, fieldID, days)
}

func (f *fakeReports) SnapshotCard(ctx context.Context, fieldID uuid.UUID, days int) ([]byte, error) {
	if f.cardFn == nil {
		return nil, errNotWired("reports.SnapshotCard")
	}
	return f.cardFn(ctx, fieldID, days)
}

type fakeJobs struct {
	enqueueFn   func(ctx context.Context, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	sweepFn     func(ctx context.Context, date *time.Time) (*types.JobRun, bool, error)
	fieldEvalFn func(ctx context.Context, fieldID uuid.UUID, date *time.Time) (*types.JobRun, bool, error)
	getFn       func(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error)
}

func (f *fakeJobs) Enqueue(ctx context.Context, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if f.enqueueFn == nil {
		return nil, errNotWired("jobs.Enqueue")
	}
	return f.enqueueFn(ctx, jobType, entityType, entityID, payload)
}

func (f *fakeJobs) EnqueueSweep(ctx context.Context, date *time.Time) (*types.JobRun, bool, error) {
	if f.sweepFn == nil {
		return nil, false, errNotWired("jobs.EnqueueSweep")
	}
	return f.sweepFn(ctx, date)
}

func (f *fakeJobs) EnqueueFieldEvaluation(ctx context.Context, fieldID uuid.UUID, date *time.Time) (*types.JobRun, bool, error) {
	if f.fieldEvalFn == nil {
		return nil, false, errNotWired("jobs.EnqueueFieldEvaluation")
	}
	return f.fieldEvalFn(ctx, fieldID, date)
}

func (f *fakeJobs) GetByID(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if f.getFn == nil {
		return nil, errNotWired("jobs.GetByID")
	}
	return f.getFn(ctx, jobID)
}

type fakeEngine struct {
	evaluateFn func(ctx context.Context, fieldID uuid.UUID, date time.Time) (*engine.EvaluationResult, error)
	sweepAllFn func(ctx context.Context, date time.Time) (*engine.SweepResult, error)
}

func (f *fakeEngine) EvaluateField(ctx context.Context, fieldID uuid.UUID, date time.Time) (*engine.EvaluationResult, error) {
	if f.evaluateFn == nil {
		return nil, errNotWired("engine.EvaluateField")
	}
	return f.evaluateFn(ctx, fieldID, date)
}

func (f *fakeEngine) SweepAll(ctx context.Context, date time.Time) (*engine.SweepResult, error) {
	if f.sweepAllFn == nil {
		return nil, errNotWired("engine.SweepAll")
	}
	return f.sweepAllFn(ctx, date)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func testRouter(t *testing.T, cfg RouterConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if cfg.Log == nil {
		cfg.Log = testLogger(t)
	}
	return NewRouter(cfg)
}

func perform(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
}

// errorCode digs the machine-readable code out of an error envelope.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, rec, &envelope)
	return envelope.Error.Code
}

func userRouter(t *testing.T, users *fakeUsers) *gin.Engine {
	return testRouter(t, RouterConfig{UserHandler: httpH.NewUserHandler(users)})
}

func fieldRouter(t *testing.T, fields *fakeFields) *gin.Engine {
	return testRouter(t, RouterConfig{
		FieldHandler:    httpH.NewFieldHandler(fields),
		AdvisoryHandler: httpH.NewAdvisoryHandler(fields),
	})
}

func metricRouter(t *testing.T, ingest *fakeIngest) *gin.Engine {
	return testRouter(t, RouterConfig{MetricHandler: httpH.NewMetricHandler(ingest)})
}

func reportRouter(t *testing.T, reports *fakeReports) *gin.Engine {
	return testRouter(t, RouterConfig{ReportHandler: httpH.NewReportHandler(reports)})
}

func systemRouter(t *testing.T, eng *fakeEngine, jobs *fakeJobs) *gin.Engine {
	return testRouter(t, RouterConfig{SystemHandler: httpH.NewSystemHandler(eng, jobs, nil)})
}
