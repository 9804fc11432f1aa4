package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/krushibheru/agromonitor-backend/internal/data/repos"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	pkgerrors "github.com/krushibheru/agromonitor-backend/internal/pkg/errors"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

// JobsService is the enqueue side of the background job queue. The worker
// pool claims and executes what this service creates.
type JobsService interface {
	Enqueue(ctx context.Context, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	// EnqueueSweep queues a full advisory sweep. The bool reports whether a
	// new job was created; false with a nil error means a sweep is already
	// queued or running.
	EnqueueSweep(ctx context.Context, date *time.Time) (*types.JobRun, bool, error)
	// EnqueueFieldEvaluation queues a single-field evaluation, deduplicated
	// per field the same way.
	EnqueueFieldEvaluation(ctx context.Context, fieldID uuid.UUID, date *time.Time) (*types.JobRun, bool, error)
	GetByID(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type jobsService struct {
	db        *gorm.DB
	log       *logger.Logger
	repo      repos.JobRunRepo
	fieldRepo repos.FieldRepo
}

func NewJobsService(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, fieldRepo repos.FieldRepo) JobsService {
	return &jobsService{
		db:        db,
		log:       baseLog.With("service", "JobsService"),
		repo:      repo,
		fieldRepo: fieldRepo,
	}
}

func (s *jobsService) Enqueue(ctx context.Context, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if jobType == "" {
		return nil, pkgerrors.NewValidation("job_type", "is required")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	now := time.Now()
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     types.JobStatusQueued,
		Payload:    datatypes.JSON(payloadJSON),
		Result:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.repo.Create(ctx, nil, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("Job enqueued", "job_id", job.ID, "job_type", jobType)
	return job, nil
}

// EnqueueSweep dedupes on any queued or running sweep. The check and the
// insert are not atomic; a lost race only costs an idempotent re-run.
func (s *jobsService) EnqueueSweep(ctx context.Context, date *time.Time) (*types.JobRun, bool, error) {
	has, err := s.repo.HasRunnable(ctx, nil, types.JobTypeAdvisorySweep, nil)
	if err != nil {
		return nil, false, err
	}
	if has {
		return nil, false, nil
	}

	payload := map[string]any{}
	if date != nil {
		payload["date"] = types.DateOnly(*date).Format("2006-01-02")
	}
	job, err := s.Enqueue(ctx, types.JobTypeAdvisorySweep, "", nil, payload)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (s *jobsService) EnqueueFieldEvaluation(ctx context.Context, fieldID uuid.UUID, date *time.Time) (*types.JobRun, bool, error) {
	if fieldID == uuid.Nil {
		return nil, false, pkgerrors.NewValidation("field_id", "is required")
	}
	exists, err := s.fieldRepo.Exists(ctx, nil, fieldID)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, fmt.Errorf("field %s: %w", fieldID, pkgerrors.ErrNotFound)
	}

	has, err := s.repo.HasRunnable(ctx, nil, types.JobTypeFieldEvaluate, &fieldID)
	if err != nil {
		return nil, false, err
	}
	if has {
		return nil, false, nil
	}

	payload := map[string]any{"field_id": fieldID.String()}
	if date != nil {
		payload["date"] = types.DateOnly(*date).Format("2006-01-02")
	}
	job, err := s.Enqueue(ctx, types.JobTypeFieldEvaluate, "field", &fieldID, payload)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (s *jobsService) GetByID(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("job: %w", pkgerrors.ErrNotFound)
	}
	job, err := s.repo.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, pkgerrors.ErrNotFound)
	}
	return job, nil
}
