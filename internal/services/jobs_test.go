package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/krushibheru/agromonitor-backend/internal/data/repos"
	"github.com/krushibheru/agromonitor-backend/internal/data/repos/testutil"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
)

func jobsServiceForTest(t *testing.T) (JobsService, repos.JobRunRepo, *testServiceDeps) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	deps := &testServiceDeps{
		db:           db,
		userRepo:     repos.NewUserRepo(db, log),
		fieldRepo:    repos.NewFieldRepo(db, log),
		metricRepo:   repos.NewMetricRepo(db, log),
		advisoryRepo: repos.NewAdvisoryRepo(db, log),
	}
	jobRepo := repos.NewJobRunRepo(db, log)
	svc := NewJobsService(db, log, jobRepo, deps.fieldRepo)
	return svc, jobRepo, deps
}

func finishJob(t *testing.T, repo repos.JobRunRepo, id uuid.UUID) {
	t.Helper()
	err := repo.UpdateFields(context.Background(), nil, id, map[string]interface{}{
		"status": types.JobStatusSucceeded,
	})
	if err != nil {
		t.Fatalf("finish job: %v", err)
	}
}

func TestJobsServiceEnqueueValidates(t *testing.T) {
	svc, _, _ := jobsServiceForTest(t)

	_, err := svc.Enqueue(context.Background(), "", "", nil, nil)
	if !pkgerrors.IsValidation(err) {
		t.Fatalf("empty job_type: want validation error, got %v", err)
	}
}

func TestJobsServiceEnqueueSweepDedupes(t *testing.T) {
	svc, jobRepo, _ := jobsServiceForTest(t)
	ctx := context.Background()

	when := time.Date(2024, time.May, 10, 9, 30, 0, 0, time.UTC)
	job, created, err := svc.EnqueueSweep(ctx, &when)
	if err != nil {
		t.Fatalf("EnqueueSweep: %v", err)
	}
	if !created || job == nil {
		t.Fatalf("first sweep must enqueue, got created=%v job=%v", created, job)
	}
	if job.JobType != types.JobTypeAdvisorySweep || job.Status != types.JobStatusQueued {
		t.Fatalf("job row: %+v", job)
	}
	if !strings.Contains(string(job.Payload), "2024-05-10") {
		t.Fatalf("payload must carry the date, got %s", job.Payload)
	}

	// A second enqueue while the first is still queued is a no-op.
	dup, created, err := svc.EnqueueSweep(ctx, nil)
	if err != nil {
		t.Fatalf("EnqueueSweep dup: %v", err)
	}
	if created || dup != nil {
		t.Fatalf("duplicate sweep must not enqueue, got created=%v job=%v", created, dup)
	}

	// Once the pending sweep reaches a terminal state the next one goes in.
	finishJob(t, jobRepo, job.ID)
	next, created, err := svc.EnqueueSweep(ctx, nil)
	if err != nil {
		t.Fatalf("EnqueueSweep after finish: %v", err)
	}
	if !created || next == nil || next.ID == job.ID {
		t.Fatalf("expected a fresh sweep job, got created=%v job=%+v", created, next)
	}
	finishJob(t, jobRepo, next.ID)
}

func TestJobsServiceEnqueueFieldEvaluation(t *testing.T) {
	svc, jobRepo, deps := jobsServiceForTest(t)
	ctx := context.Background()

	_, _, err := svc.EnqueueFieldEvaluation(ctx, uuid.New(), nil)
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("unknown field: want not found, got %v", err)
	}

	owner := testutil.SeedUser(t, deps.db)
	first := testutil.SeedField(t, deps.db, owner.ID)
	second := testutil.SeedField(t, deps.db, owner.ID)

	job, created, err := svc.EnqueueFieldEvaluation(ctx, first.ID, nil)
	if err != nil {
		t.Fatalf("EnqueueFieldEvaluation: %v", err)
	}
	if !created || job == nil || job.JobType != types.JobTypeFieldEvaluate {
		t.Fatalf("first enqueue: created=%v job=%+v", created, job)
	}
	if job.EntityID == nil || *job.EntityID != first.ID {
		t.Fatalf("entity id: %+v", job.EntityID)
	}
	if !strings.Contains(string(job.Payload), first.ID.String()) {
		t.Fatalf("payload must carry field_id, got %s", job.Payload)
	}

	// Dedupe is per field: the same field is a no-op, another field enqueues.
	dup, created, err := svc.EnqueueFieldEvaluation(ctx, first.ID, nil)
	if err != nil {
		t.Fatalf("dup enqueue: %v", err)
	}
	if created || dup != nil {
		t.Fatalf("duplicate evaluation must not enqueue")
	}
	other, created, err := svc.EnqueueFieldEvaluation(ctx, second.ID, nil)
	if err != nil {
		t.Fatalf("second field enqueue: %v", err)
	}
	if !created || other == nil {
		t.Fatalf("other field must enqueue independently")
	}

	finishJob(t, jobRepo, job.ID)
	finishJob(t, jobRepo, other.ID)
}

func TestJobsServiceGetByID(t *testing.T) {
	svc, jobRepo, _ := jobsServiceForTest(t)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, "jtest_lookup", "", nil, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got, err := svc.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != job.ID || got.JobType != "jtest_lookup" {
		t.Fatalf("GetByID row: %+v", got)
	}

	if _, err := svc.GetByID(ctx, uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("missing job: want not found, got %v", err)
	}
	finishJob(t, jobRepo, job.ID)
}
