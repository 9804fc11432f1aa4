package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobsrepo "github.com/krushibheru/agromonitor-backend/internal/data/repos/jobs"
	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/observability"
	"github.com/krushibheru/agromonitor-backend/internal/platform/envutil"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

const (
	pollInterval   = 1 * time.Second
	heartbeatEvery = 30 * time.Second

	// Claim-side retry policy. A failed run becomes claimable again after
	// retryDelay until maxAttempts is spent; a running row whose heartbeat
	// is older than staleRunning is treated as abandoned and reclaimed.
	maxAttempts  = 5
	retryDelay   = 30 * time.Second
	staleRunning = 30 * time.Minute
)

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobsrepo.JobRunRepo
	registry *Registry
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo jobsrepo.JobRunRepo, registry *Registry) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 2)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting job worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain: keep claiming until the queue is empty so a burst of
			// enqueued jobs is not throttled to one per tick.
			for w.runOnce(ctx, workerID) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// runOnce claims and executes at most one job. Returns whether a job was
// claimed, so callers can loop until the queue is drained.
func (w *Worker) runOnce(ctx context.Context, workerID int) bool {
	job, err := w.repo.ClaimNextRunnable(ctx, nil, maxAttempts, retryDelay, staleRunning)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}
	w.dispatch(ctx, workerID, job)
	return true
}

func (w *Worker) dispatch(ctx context.Context, workerID int, row *types.JobRun) {
	start := time.Now()

	h, ok := w.registry.Get(row.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type",
			"worker_id", workerID,
			"job_type", row.JobType,
			"job_id", row.ID,
		)
		w.fail(ctx, row, fmt.Errorf("no handler registered for job_type=%s", row.JobType))
		observability.Current().ObserveActivity("dispatch", row.JobType, "missing_handler", time.Since(start))
		return
	}

	// Heartbeat for the whole run so long sweeps are never mistaken for
	// abandoned rows and reclaimed mid-flight.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go w.keepAlive(hbCtx, row)
	defer stopHeartbeat()

	result, err := w.execute(ctx, h, newJob(row))
	if err != nil {
		w.log.Error("Job run failed",
			"worker_id", workerID,
			"job_id", row.ID,
			"job_type", row.JobType,
			"attempts", row.Attempts,
			"error", err,
		)
		w.fail(ctx, row, err)
		observability.Current().ObserveActivity("handle", row.JobType, "failed", time.Since(start))
		return
	}

	w.succeed(ctx, row, result)
	observability.Current().ObserveActivity("handle", row.JobType, "succeeded", time.Since(start))
	w.log.Info("Job run succeeded",
		"worker_id", workerID,
		"job_id", row.ID,
		"job_type", row.JobType,
		"duration", time.Since(start).String(),
	)
}

func (w *Worker) execute(ctx context.Context, h Handler, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"job_id", job.Row.ID,
				"job_type", job.Row.JobType,
				"panic", r,
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Run(ctx, job)
}

func (w *Worker) keepAlive(ctx context.Context, row *types.JobRun) {
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.repo.Heartbeat(ctx, nil, row.ID); err != nil {
				w.log.Warn("Job heartbeat failed", "job_id", row.ID, "error", err)
			}
		}
	}
}

func (w *Worker) succeed(ctx context.Context, row *types.JobRun, result any) {
	res := datatypes.JSON([]byte(`{}`))
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	now := time.Now()
	err := w.repo.UpdateFields(ctx, nil, row.ID, map[string]interface{}{
		"status":       types.JobStatusSucceeded,
		"progress":     100,
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
	})
	if err != nil {
		w.log.Error("Record job success failed", "job_id", row.ID, "error", err)
	}
}

func (w *Worker) fail(ctx context.Context, row *types.JobRun, runErr error) {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	now := time.Now()
	err := w.repo.UpdateFields(ctx, nil, row.ID, map[string]interface{}{
		"status":        types.JobStatusFailed,
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
	})
	if err != nil {
		w.log.Error("Record job failure failed", "job_id", row.ID, "error", err)
	}
}
