package worker

import (
	"context"
	"fmt"
	"time"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/engine"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

const payloadDateLayout = "2006-01-02"

// payloadDate reads the optional "date" payload field. Absent means today;
// a present but unparseable value fails the run instead of silently running
// the wrong day.
func payloadDate(job *Job) (time.Time, error) {
	raw, ok := job.Str("date")
	if !ok {
		return types.DateOnly(time.Now()), nil
	}
	t, err := time.Parse(payloadDateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse payload date %q: %w", raw, err)
	}
	return types.DateOnly(t), nil
}

// SweepHandler runs a full advisory sweep across every field for one date.
type SweepHandler struct {
	log    *logger.Logger
	engine engine.Engine
}

func NewSweepHandler(baseLog *logger.Logger, eng engine.Engine) *SweepHandler {
	return &SweepHandler{
		log:    baseLog.With("handler", "SweepHandler"),
		engine: eng,
	}
}

func (h *SweepHandler) Type() string { return types.JobTypeAdvisorySweep }

func (h *SweepHandler) Run(ctx context.Context, job *Job) (any, error) {
	day, err := payloadDate(job)
	if err != nil {
		return nil, err
	}
	result, err := h.engine.SweepAll(ctx, day)
	if err != nil {
		return nil, err
	}
	if result.Failed > 0 {
		h.log.Warn("Sweep finished with field failures",
			"job_id", job.Row.ID,
			"date", day.Format(payloadDateLayout),
			"failed", result.Failed,
			"total", result.Total,
		)
	}
	return result, nil
}

// EvaluateHandler runs the advisory pipeline for a single field and date.
type EvaluateHandler struct {
	log    *logger.Logger
	engine engine.Engine
}

func NewEvaluateHandler(baseLog *logger.Logger, eng engine.Engine) *EvaluateHandler {
	return &EvaluateHandler{
		log:    baseLog.With("handler", "EvaluateHandler"),
		engine: eng,
	}
}

func (h *EvaluateHandler) Type() string { return types.JobTypeFieldEvaluate }

func (h *EvaluateHandler) Run(ctx context.Context, job *Job) (any, error) {
	fieldID, ok := job.UUID("field_id")
	if !ok {
		return nil, fmt.Errorf("payload is missing a valid field_id")
	}
	day, err := payloadDate(job)
	if err != nil {
		return nil, err
	}
	return h.engine.EvaluateField(ctx, fieldID, day)
}
