package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobsrepo "github.com/krushibheru/agromonitor-backend/internal/data/repos/jobs"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/testutil"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
)

type stubHandler struct {
	typ string
	fn  func(ctx context.Context, job *Job) (any, error)
}

func (s *stubHandler) Type() string { return s.typ }

func (s *stubHandler) Run(ctx context.Context, job *Job) (any, error) { return s.fn(ctx, job) }

type workerFixture struct {
	repo   jobsrepo.JobRunRepo
	worker *Worker
}

func workerForTest(t *testing.T, handlers ...Handler) *workerFixture {
	t.Helper()

	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := jobsrepo.NewJobRunRepo(db, log)

	registry := NewRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return &workerFixture{repo: repo, worker: NewWorker(db, log, repo, registry)}
}

func seedJob(t *testing.T, fx *workerFixture, jobType string, payload map[string]any) *types.JobRun {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	job := &types.JobRun{
		ID:      uuid.New(),
		JobType: jobType,
		Payload: datatypes.JSON(b),
	}
	if _, err := fx.repo.Create(context.Background(), nil, []*types.JobRun{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

// drain claims and runs jobs until the queue is empty.
func drain(fx *workerFixture) {
	for fx.worker.runOnce(context.Background(), 1) {
	}
}

func reloadJob(t *testing.T, fx *workerFixture, id uuid.UUID) *types.JobRun {
	t.Helper()
	job, err := fx.repo.GetByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s disappeared", id)
	}
	return job
}

func TestRegistryRejectsBadHandlers(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Fatalf("nil handler must be rejected")
	}
	if err := r.Register(&stubHandler{typ: ""}); err == nil {
		t.Fatalf("empty type must be rejected")
	}
	h := &stubHandler{typ: "wtest_dup"}
	if err := r.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(h); err == nil {
		t.Fatalf("duplicate type must be rejected")
	}
	if got, ok := r.Get("wtest_dup"); !ok || got != Handler(h) {
		t.Fatalf("Get returned %v %v", got, ok)
	}
}

func TestJobPayloadAccessors(t *testing.T) {
	id := uuid.New()
	job := newJob(&types.JobRun{
		ID:      uuid.New(),
		Payload: datatypes.JSON([]byte(`{"field_id":"` + id.String() + `","date":" 2024-06-01 ","blank":"  ","num":7}`)),
	})

	if got, ok := job.UUID("field_id"); !ok || got != id {
		t.Fatalf("UUID: got %v %v", got, ok)
	}
	if _, ok := job.UUID("date"); ok {
		t.Fatalf("non-uuid value must not parse")
	}
	if got, ok := job.Str("date"); !ok || got != "2024-06-01" {
		t.Fatalf("Str must trim, got %q %v", got, ok)
	}
	if _, ok := job.Str("blank"); ok {
		t.Fatalf("whitespace-only value must report absent")
	}
	if _, ok := job.Str("missing"); ok {
		t.Fatalf("missing key must report absent")
	}
	if got, ok := job.Str("num"); !ok || got != "7" {
		t.Fatalf("numeric value must stringify, got %q %v", got, ok)
	}

	malformed := newJob(&types.JobRun{ID: uuid.New(), Payload: datatypes.JSON([]byte(`{broken`))})
	if len(malformed.Payload()) != 0 {
		t.Fatalf("malformed payload must decode to an empty map")
	}
}

func TestWorkerRunsQueuedJob(t *testing.T) {
	var gotNote string
	h := &stubHandler{
		typ: "wtest_ok",
		fn: func(_ context.Context, job *Job) (any, error) {
			gotNote, _ = job.Str("note")
			return map[string]any{"echo": gotNote}, nil
		},
	}
	fx := workerForTest(t, h)
	job := seedJob(t, fx, "wtest_ok", map[string]any{"note": "hello"})

	drain(fx)

	if gotNote != "hello" {
		t.Fatalf("handler payload: got %q", gotNote)
	}
	row := reloadJob(t, fx, job.ID)
	if row.Status != types.JobStatusSucceeded {
		t.Fatalf("status: want succeeded got %q (error=%q)", row.Status, row.Error)
	}
	if row.Progress != 100 || row.Attempts != 1 {
		t.Fatalf("progress/attempts: got %d/%d", row.Progress, row.Attempts)
	}
	if row.LockedAt != nil {
		t.Fatalf("locked_at must clear on success")
	}
	if row.HeartbeatAt == nil {
		t.Fatalf("heartbeat_at must be stamped")
	}
	var result map[string]any
	if err := json.Unmarshal(row.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["echo"] != "hello" {
		t.Fatalf("result: got %+v", result)
	}
}

func TestWorkerRecordsFailureAndRetries(t *testing.T) {
	h := &stubHandler{
		typ: "wtest_fail",
		fn: func(context.Context, *Job) (any, error) {
			return nil, errors.New("upstream unavailable")
		},
	}
	fx := workerForTest(t, h)
	job := seedJob(t, fx, "wtest_fail", nil)

	drain(fx)

	row := reloadJob(t, fx, job.ID)
	if row.Status != types.JobStatusFailed {
		t.Fatalf("status: want failed got %q", row.Status)
	}
	if row.Attempts != 1 || row.Error == "" || row.LastErrorAt == nil {
		t.Fatalf("failure record: %+v", row)
	}
	if row.LockedAt != nil {
		t.Fatalf("locked_at must clear on failure")
	}

	// With the retry delay elapsed the same row is claimable again and the
	// attempt counter moves.
	claimed, err := fx.repo.ClaimNextRunnable(context.Background(), nil, maxAttempts, 0, staleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("reclaim: got %+v", claimed)
	}
	row = reloadJob(t, fx, job.ID)
	if row.Status != types.JobStatusRunning || row.Attempts != 2 {
		t.Fatalf("after reclaim: status=%q attempts=%d", row.Status, row.Attempts)
	}
}

func TestWorkerFailsJobWithoutHandler(t *testing.T) {
	fx := workerForTest(t)
	job := seedJob(t, fx, "wtest_orphan", nil)

	drain(fx)

	row := reloadJob(t, fx, job.ID)
	if row.Status != types.JobStatusFailed {
		t.Fatalf("status: want failed got %q", row.Status)
	}
	if !strings.Contains(row.Error, "no handler registered") {
		t.Fatalf("error: got %q", row.Error)
	}
}

func TestWorkerRecoversHandlerPanic(t *testing.T) {
	h := &stubHandler{
		typ: "wtest_panic",
		fn: func(context.Context, *Job) (any, error) {
			panic("boom")
		},
	}
	fx := workerForTest(t, h)
	job := seedJob(t, fx, "wtest_panic", nil)

	drain(fx)

	row := reloadJob(t, fx, job.ID)
	if row.Status != types.JobStatusFailed {
		t.Fatalf("status: want failed got %q", row.Status)
	}
	if !strings.Contains(row.Error, "handler panic") {
		t.Fatalf("error: got %q", row.Error)
	}
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	fx := workerForTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		fx.worker.runLoop(ctx, 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("runLoop did not stop after cancel")
	}
}
