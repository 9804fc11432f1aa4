package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/engine"
	httpH "github.com/krushibheru/agromonitor-backend/internal/http/handlers"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/services"
)

func TestCreateUserReturnsCreated(t *testing.T) {
	var got services.CreateUserInput
	users := &fakeUsers{
		createFn: func(_ context.Context, input services.CreateUserInput) (*types.User, error) {
			got = input
			return &types.User{ID: uuid.New(), Name: input.Name, Email: input.Email}, nil
		},
	}
	r := userRouter(t, users)

	rec := perform(r, http.MethodPost, "/api/v1/users",
		`{"name":"Asha","contact_no":"9876543210","email":"asha@example.com","password":"secret12","state":"Maharashtra","district":"Pune"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got.Name != "Asha" || got.Email != "asha@example.com" || got.District != "Pune" {
		t.Fatalf("input not bound: %+v", got)
	}

	var out struct {
		User struct {
			ID   uuid.UUID `json:"id"`
			Name string    `json:"name"`
		} `json:"user"`
	}
	decodeJSON(t, rec, &out)
	if out.User.ID == uuid.Nil || out.User.Name != "Asha" {
		t.Fatalf("unexpected user envelope: %+v", out.User)
	}
}

func TestCreateUserValidationMapsTo400(t *testing.T) {
	users := &fakeUsers{
		createFn: func(context.Context, services.CreateUserInput) (*types.User, error) {
			return nil, pkgerrors.NewValidation("email", "required")
		},
	}
	r := userRouter(t, users)

	rec := perform(r, http.MethodPost, "/api/v1/users", `{"name":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "validation_failed" {
		t.Fatalf("code=%q", code)
	}
}

func TestGetUserNotFoundMapsTo404(t *testing.T) {
	users := &fakeUsers{
		getFn: func(_ context.Context, id uuid.UUID) (*types.User, error) {
			return nil, fmt.Errorf("user %s: %w", id, pkgerrors.ErrNotFound)
		},
	}
	r := userRouter(t, users)

	rec := perform(r, http.MethodGet, "/api/v1/users/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "not_found" {
		t.Fatalf("code=%q", code)
	}
}

func TestGetUserRejectsMalformedID(t *testing.T) {
	r := userRouter(t, &fakeUsers{})

	rec := perform(r, http.MethodGet, "/api/v1/users/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "invalid_user_id" {
		t.Fatalf("code=%q", code)
	}
}

func TestDeleteUser(t *testing.T) {
	target := uuid.New()
	var deleted uuid.UUID
	users := &fakeUsers{
		deleteFn: func(_ context.Context, id uuid.UUID) error {
			deleted = id
			return nil
		},
	}
	r := userRouter(t, users)

	rec := perform(r, http.MethodDelete, "/api/v1/users/"+target.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if deleted != target {
		t.Fatalf("deleted=%s want=%s", deleted, target)
	}
}

func TestCreateFieldBindsBoundary(t *testing.T) {
	var got services.CreateFieldInput
	fields := &fakeFields{
		createFn: func(_ context.Context, input services.CreateFieldInput) (*types.Field, error) {
			got = input
			return &types.Field{ID: uuid.New(), UserID: input.UserID, Name: input.Name}, nil
		},
	}
	r := fieldRouter(t, fields)

	owner := uuid.New()
	body := fmt.Sprintf(`{"user_id":%q,"name":"North Plot","crop_type":"wheat","season":"rabi",
		"boundary":{"type":"Polygon","coordinates":[[[75.1,19.1],[75.2,19.1],[75.2,19.2],[75.1,19.1]]]}}`, owner)
	rec := perform(r, http.MethodPost, "/api/v1/fields", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got.UserID != owner || got.Name != "North Plot" {
		t.Fatalf("input not bound: %+v", got)
	}
	if !strings.Contains(string(got.Boundary), "Polygon") {
		t.Fatalf("boundary not carried: %s", got.Boundary)
	}
}

func TestCreateFieldUnknownOwnerMapsTo409(t *testing.T) {
	fields := &fakeFields{
		createFn: func(_ context.Context, input services.CreateFieldInput) (*types.Field, error) {
			return nil, pkgerrors.NewConflict("user", input.UserID.String())
		},
	}
	r := fieldRouter(t, fields)

	rec := perform(r, http.MethodPost, "/api/v1/fields", fmt.Sprintf(`{"user_id":%q,"name":"x"}`, uuid.New()))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "conflict" {
		t.Fatalf("code=%q", code)
	}
}

func TestListFieldsFiltersByUser(t *testing.T) {
	owner := uuid.New()
	var gotFilter *uuid.UUID
	fields := &fakeFields{
		listFn: func(_ context.Context, userID *uuid.UUID) ([]*types.Field, error) {
			gotFilter = userID
			return []*types.Field{{ID: uuid.New(), UserID: owner}}, nil
		},
	}
	r := fieldRouter(t, fields)

	rec := perform(r, http.MethodGet, "/api/v1/fields?user_id="+owner.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if gotFilter == nil || *gotFilter != owner {
		t.Fatalf("filter not passed: %v", gotFilter)
	}

	var out struct {
		Count int `json:"count"`
	}
	decodeJSON(t, rec, &out)
	if out.Count != 1 {
		t.Fatalf("count=%d", out.Count)
	}

	rec = perform(r, http.MethodGet, "/api/v1/fields?user_id=garbage", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("garbage filter status=%d", rec.Code)
	}
}

func TestUpdateCroppingRoute(t *testing.T) {
	fieldID := uuid.New()
	fields := &fakeFields{
		croppingFn: func(_ context.Context, id uuid.UUID, input services.UpdateCroppingInput) (*types.Field, error) {
			if id != fieldID {
				t.Fatalf("id=%s want=%s", id, fieldID)
			}
			return &types.Field{ID: id, CropType: input.CropType, Season: input.Season}, nil
		},
	}
	r := fieldRouter(t, fields)

	rec := perform(r, http.MethodPatch, "/api/v1/fields/"+fieldID.String()+"/cropping",
		`{"crop_type":"rice","crop_status":"growing","season":"kharif"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestIngestMetricParsesCalendarDate(t *testing.T) {
	fieldID := uuid.New()
	var got *types.SatelliteMetric
	ingest := &fakeIngest{
		ingestFn: func(_ context.Context, rec *types.SatelliteMetric) (*types.SatelliteMetric, error) {
			got = rec
			stored := *rec
			stored.ID = uuid.New()
			return &stored, nil
		},
	}
	r := metricRouter(t, ingest)

	body := fmt.Sprintf(`{"field_id":%q,"date":"2024-03-14","ndvi_mean":0.58,"soil_moisture_est":0.31,"valid_pixels":120}`, fieldID)
	rec := perform(r, http.MethodPost, "/api/v1/metrics", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got == nil || got.FieldID != fieldID {
		t.Fatalf("record not passed: %+v", got)
	}
	want := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	if !got.Date.Equal(want) {
		t.Fatalf("date=%v want=%v", got.Date, want)
	}
	if got.NDVIMean == nil || *got.NDVIMean != 0.58 {
		t.Fatalf("ndvi_mean not carried: %v", got.NDVIMean)
	}
}

func TestIngestMetricStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", pkgerrors.NewValidationf("ndvi_mean", "%.4f outside [%g, %g]", 1.7, -1.0, 1.0), http.StatusBadRequest, "validation_failed"},
		{"conflict", pkgerrors.NewConflict("field", uuid.NewString()), http.StatusConflict, "conflict"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ingest := &fakeIngest{
				ingestFn: func(context.Context, *types.SatelliteMetric) (*types.SatelliteMetric, error) {
					return nil, tc.err
				},
			}
			r := metricRouter(t, ingest)

			rec := perform(r, http.MethodPost, "/api/v1/metrics",
				fmt.Sprintf(`{"field_id":%q,"date":"2024-03-14"}`, uuid.New()))
			if rec.Code != tc.wantStatus {
				t.Fatalf("status=%d want=%d body=%s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tc.wantCode {
				t.Fatalf("code=%q want=%q", code, tc.wantCode)
			}
		})
	}
}

func TestIngestMetricRejectsBadDateBeforeService(t *testing.T) {
	called := false
	ingest := &fakeIngest{
		ingestFn: func(context.Context, *types.SatelliteMetric) (*types.SatelliteMetric, error) {
			called = true
			return nil, nil
		},
	}
	r := metricRouter(t, ingest)

	rec := perform(r, http.MethodPost, "/api/v1/metrics",
		fmt.Sprintf(`{"field_id":%q,"date":"14-03-2024"}`, uuid.New()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "invalid_date" {
		t.Fatalf("code=%q", code)
	}
	if called {
		t.Fatal("service reached with unparseable date")
	}
}

func TestIngestBatchReportsPerRecordOutcomes(t *testing.T) {
	fieldID := uuid.New()
	ingest := &fakeIngest{
		batchFn: func(_ context.Context, recs []*types.SatelliteMetric) (*services.IngestSummary, error) {
			if len(recs) != 3 {
				t.Fatalf("records=%d want=3", len(recs))
			}
			stored := *recs[0]
			stored.ID = uuid.New()
			return &services.IngestSummary{
				Accepted:  1,
				Rejected:  1,
				Conflicts: 1,
				Outcomes: []services.IngestOutcome{
					{Index: 0, Stored: &stored},
					{Index: 1, Err: pkgerrors.NewValidation("humidity_pct", "out of range")},
					{Index: 2, Err: pkgerrors.NewConflict("field", uuid.NewString())},
				},
			}, nil
		},
	}
	r := metricRouter(t, ingest)

	body := fmt.Sprintf(`{"records":[
		{"field_id":%q,"date":"2024-03-14","ndvi_mean":0.5},
		{"field_id":%q,"date":"2024-03-15","humidity_pct":120},
		{"field_id":%q,"date":"2024-03-16"}
	]}`, fieldID, fieldID, uuid.New())
	rec := perform(r, http.MethodPost, "/api/v1/metrics/batch", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var out struct {
		Accepted  int `json:"accepted"`
		Rejected  int `json:"rejected"`
		Conflicts int `json:"conflicts"`
		Outcomes  []struct {
			Index  int    `json:"index"`
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"outcomes"`
	}
	decodeJSON(t, rec, &out)
	if out.Accepted != 1 || out.Rejected != 1 || out.Conflicts != 1 {
		t.Fatalf("summary=%+v", out)
	}
	if len(out.Outcomes) != 3 {
		t.Fatalf("outcomes=%d", len(out.Outcomes))
	}
	wantStatus := []string{"stored", "rejected", "conflict"}
	for i, o := range out.Outcomes {
		if o.Status != wantStatus[i] {
			t.Fatalf("outcome %d status=%q want=%q", i, o.Status, wantStatus[i])
		}
	}
	if out.Outcomes[1].Error == "" || out.Outcomes[2].Error == "" {
		t.Fatal("failed outcomes carry no error text")
	}
}

func TestIngestBatchNamesBadRecord(t *testing.T) {
	r := metricRouter(t, &fakeIngest{})

	body := fmt.Sprintf(`{"records":[
		{"field_id":%q,"date":"2024-03-14"},
		{"field_id":%q,"date":"not a date"}
	]}`, uuid.New(), uuid.New())
	rec := perform(r, http.MethodPost, "/api/v1/metrics/batch", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeJSON(t, rec, &envelope)
	if !strings.Contains(envelope.Error.Message, "record 1") {
		t.Fatalf("message does not name the record: %q", envelope.Error.Message)
	}
}

func TestDeleteMetricRoute(t *testing.T) {
	metricID := uuid.New()
	var deleted uuid.UUID
	ingest := &fakeIngest{
		deleteFn: func(_ context.Context, id uuid.UUID) error {
			deleted = id
			return nil
		},
	}
	r := metricRouter(t, ingest)

	rec := perform(r, http.MethodDelete, "/api/v1/metrics/"+metricID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if deleted != metricID {
		t.Fatalf("deleted=%s want=%s", deleted, metricID)
	}
}

func TestListAdvisoriesPassesResolvedFlag(t *testing.T) {
	fieldID := uuid.New()
	var gotResolved bool
	fields := &fakeFields{
		advisoriesFn: func(_ context.Context, id uuid.UUID, includeResolved bool) ([]*types.Advisory, error) {
			gotResolved = includeResolved
			return []*types.Advisory{
				{ID: uuid.New(), FieldID: id, AdvisoryType: "drought_risk", AlertLevel: types.LevelHigh, Status: types.AdvisoryStatusActive},
			}, nil
		},
	}
	r := fieldRouter(t, fields)

	rec := perform(r, http.MethodGet, "/api/v1/fields/"+fieldID.String()+"/advisories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if gotResolved {
		t.Fatal("default should list active only")
	}

	var out struct {
		Count      int `json:"count"`
		Advisories []struct {
			AdvisoryType string `json:"advisory_type"`
			AlertLevel   string `json:"alert_level"`
		} `json:"advisories"`
	}
	decodeJSON(t, rec, &out)
	if out.Count != 1 || out.Advisories[0].AdvisoryType != "drought_risk" {
		t.Fatalf("unexpected envelope: %+v", out)
	}

	perform(r, http.MethodGet, "/api/v1/fields/"+fieldID.String()+"/advisories?include_resolved=true", "")
	if !gotResolved {
		t.Fatal("include_resolved not passed through")
	}
}

func TestReportSummaryRoute(t *testing.T) {
	fieldID := uuid.New()
	var gotDays int
	reports := &fakeReports{
		summaryFn: func(_ context.Context, id uuid.UUID, days int) (*services.FieldReport, error) {
			gotDays = days
			return &services.FieldReport{FieldID: id, HealthStatus: types.HealthGood, WindowDays: 14}, nil
		},
	}
	r := reportRouter(t, reports)

	rec := perform(r, http.MethodGet, "/api/v1/fields/"+fieldID.String()+"/report?days=14", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if gotDays != 14 {
		t.Fatalf("days=%d want=14", gotDays)
	}

	var out struct {
		Report struct {
			FieldID      uuid.UUID `json:"field_id"`
			HealthStatus string    `json:"health_status"`
		} `json:"report"`
	}
	decodeJSON(t, rec, &out)
	if out.Report.FieldID != fieldID || out.Report.HealthStatus != types.HealthGood {
		t.Fatalf("unexpected report envelope: %+v", out.Report)
	}

	rec = perform(r, http.MethodGet, "/api/v1/fields/"+fieldID.String()+"/report?days=9001", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized window status=%d", rec.Code)
	}
	if code := errorCode(t, rec); code != "invalid_days" {
		t.Fatalf("code=%q", code)
	}
}

func TestReportDownloadsSetContentTypes(t *testing.T) {
	fieldID := uuid.New()
	reports := &fakeReports{
		workbookFn: func(context.Context, uuid.UUID, int) ([]byte, error) {
			return []byte("PK workbook bytes"), nil
		},
		cardFn: func(context.Context, uuid.UUID, int) ([]byte, error) {
			return []byte("\x89PNG card bytes"), nil
		},
		technicalFn: func(context.Context, uuid.UUID, int) (string, error) {
			return "# Technical Field Report", nil
		},
		farmerFn: func(context.Context, uuid.UUID, int) (string, error) {
			return "# Field Update", nil
		},
	}
	r := reportRouter(t, reports)
	base := "/api/v1/fields/" + fieldID.String() + "/report"

	rec := perform(r, http.MethodGet, base+"/workbook", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("workbook status=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("workbook content-type=%q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, ".xlsx") {
		t.Fatalf("workbook disposition=%q", cd)
	}

	rec = perform(r, http.MethodGet, base+"/card", "")
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("card content-type=%q", ct)
	}

	rec = perform(r, http.MethodGet, base+"/technical", "")
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/markdown") {
		t.Fatalf("technical content-type=%q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Technical") {
		t.Fatalf("technical body=%q", rec.Body.String())
	}

	rec = perform(r, http.MethodGet, base+"/farmer", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("farmer status=%d", rec.Code)
	}
}

func TestEvaluateFieldSynchronous(t *testing.T) {
	fieldID := uuid.New()
	var gotDate time.Time
	eng := &fakeEngine{
		evaluateFn: func(_ context.Context, id uuid.UUID, date time.Time) (*engine.EvaluationResult, error) {
			gotDate = date
			return &engine.EvaluationResult{FieldID: id, Date: date, UsableDays: 12, Created: 1}, nil
		},
	}
	r := systemRouter(t, eng, &fakeJobs{})

	rec := perform(r, http.MethodPost, "/api/v1/fields/"+fieldID.String()+"/evaluate", `{"date":"2024-04-14"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	want := time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC)
	if !gotDate.Equal(want) {
		t.Fatalf("date=%v want=%v", gotDate, want)
	}

	var out struct {
		Evaluation struct {
			FieldID    uuid.UUID `json:"field_id"`
			UsableDays int       `json:"usable_days"`
			Created    int       `json:"created"`
		} `json:"evaluation"`
	}
	decodeJSON(t, rec, &out)
	if out.Evaluation.FieldID != fieldID || out.Evaluation.Created != 1 {
		t.Fatalf("unexpected evaluation envelope: %+v", out.Evaluation)
	}
}

func TestEvaluateFieldDefaultsToToday(t *testing.T) {
	var gotDate time.Time
	eng := &fakeEngine{
		evaluateFn: func(_ context.Context, id uuid.UUID, date time.Time) (*engine.EvaluationResult, error) {
			gotDate = date
			return &engine.EvaluationResult{FieldID: id, Date: date}, nil
		},
	}
	r := systemRouter(t, eng, &fakeJobs{})

	rec := perform(r, http.MethodPost, "/api/v1/fields/"+uuid.NewString()+"/evaluate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if want := types.DateOnly(time.Now()); !gotDate.Equal(want) {
		t.Fatalf("date=%v want=%v", gotDate, want)
	}
}

func TestEvaluateFieldAsyncEnqueues(t *testing.T) {
	fieldID := uuid.New()
	jobs := &fakeJobs{
		fieldEvalFn: func(_ context.Context, id uuid.UUID, date *time.Time) (*types.JobRun, bool, error) {
			if id != fieldID {
				t.Fatalf("field=%s want=%s", id, fieldID)
			}
			if date != nil {
				t.Fatalf("date should be nil without a body date, got %v", *date)
			}
			return &types.JobRun{ID: uuid.New(), JobType: types.JobTypeFieldEvaluate, Status: types.JobStatusQueued}, true, nil
		},
	}
	r := systemRouter(t, &fakeEngine{}, jobs)

	rec := perform(r, http.MethodPost, "/api/v1/fields/"+fieldID.String()+"/evaluate", `{"async":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var out struct {
		Created bool `json:"created"`
		Job     struct {
			JobType string `json:"job_type"`
			Status  string `json:"status"`
		} `json:"job"`
	}
	decodeJSON(t, rec, &out)
	if !out.Created || out.Job.JobType != types.JobTypeFieldEvaluate {
		t.Fatalf("unexpected enqueue envelope: %+v", out)
	}
}

func TestEvaluateFieldAsyncUnknownFieldMapsTo404(t *testing.T) {
	jobs := &fakeJobs{
		fieldEvalFn: func(_ context.Context, id uuid.UUID, _ *time.Time) (*types.JobRun, bool, error) {
			return nil, false, fmt.Errorf("field %s: %w", id, pkgerrors.ErrNotFound)
		},
	}
	r := systemRouter(t, &fakeEngine{}, jobs)

	rec := perform(r, http.MethodPost, "/api/v1/fields/"+uuid.NewString()+"/evaluate", `{"async":true}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestEnqueueSweepReportsDedup(t *testing.T) {
	created := true
	jobs := &fakeJobs{
		sweepFn: func(_ context.Context, date *time.Time) (*types.JobRun, bool, error) {
			if !created {
				return nil, false, nil
			}
			if date == nil || date.Month() != time.May {
				t.Fatalf("sweep date not passed: %v", date)
			}
			return &types.JobRun{ID: uuid.New(), JobType: types.JobTypeAdvisorySweep, Status: types.JobStatusQueued}, true, nil
		},
	}
	r := systemRouter(t, &fakeEngine{}, jobs)

	rec := perform(r, http.MethodPost, "/api/v1/sweeps", `{"date":"2024-05-10"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Created bool `json:"created"`
	}
	decodeJSON(t, rec, &out)
	if !out.Created {
		t.Fatal("first sweep should create")
	}

	created = false
	rec = perform(r, http.MethodPost, "/api/v1/sweeps", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("dedupe status=%d body=%s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &out)
	if out.Created {
		t.Fatal("duplicate sweep should not create")
	}
}

func TestGetJobRoute(t *testing.T) {
	jobID := uuid.New()
	jobs := &fakeJobs{
		getFn: func(_ context.Context, id uuid.UUID) (*types.JobRun, error) {
			if id != jobID {
				return nil, fmt.Errorf("job %s: %w", id, pkgerrors.ErrNotFound)
			}
			return &types.JobRun{ID: id, JobType: types.JobTypeAdvisorySweep, Status: types.JobStatusSucceeded}, nil
		},
	}
	r := systemRouter(t, &fakeEngine{}, jobs)

	rec := perform(r, http.MethodGet, "/api/v1/jobs/"+jobID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Job struct {
			Status string `json:"status"`
		} `json:"job"`
	}
	decodeJSON(t, rec, &out)
	if out.Job.Status != types.JobStatusSucceeded {
		t.Fatalf("status=%q", out.Job.Status)
	}

	rec = perform(r, http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status=%d", rec.Code)
	}
}

func TestHealthzAndTraceHeaders(t *testing.T) {
	r := systemRouter(t, &fakeEngine{}, &fakeJobs{})

	rec := perform(r, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Trace-Id") == "" || rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("trace headers missing")
	}
}

func TestMetricsEndpointWithoutRegistry(t *testing.T) {
	r := systemRouter(t, &fakeEngine{}, &fakeJobs{})

	rec := perform(r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want=%d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRouterSkipsUnwiredHandlers(t *testing.T) {
	r := testRouter(t, RouterConfig{UserHandler: httpH.NewUserHandler(&fakeUsers{})})

	rec := perform(r, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unwired route status=%d want=404", rec.Code)
	}
}
