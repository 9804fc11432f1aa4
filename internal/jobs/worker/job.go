package worker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
)

// Job is the execution handle a handler receives for one claimed run. It
// carries the job_run row and the decoded payload; handlers never write the
// row themselves, the worker records the terminal state from Run's return.
type Job struct {
	Row     *types.JobRun
	payload map[string]any
}

// newJob decodes the payload JSON eagerly. A malformed payload yields an
// empty map; handlers surface missing required fields as run errors.
func newJob(row *types.JobRun) *Job {
	j := &Job{Row: row, payload: map[string]any{}}
	if row == nil || len(row.Payload) == 0 {
		return j
	}
	var m map[string]any
	if err := json.Unmarshal(row.Payload, &m); err == nil && m != nil {
		j.payload = m
	}
	return j
}

// Payload never returns nil.
func (j *Job) Payload() map[string]any {
	if j.payload == nil {
		j.payload = map[string]any{}
	}
	return j.payload
}

// Str reads a payload field as a trimmed string. Missing, nil, or empty
// values report ok=false.
func (j *Job) Str(key string) (string, bool) {
	v, ok := j.Payload()[key]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return "", false
	}
	return s, true
}

// UUID reads a payload field and parses it as a UUID.
func (j *Job) UUID(key string) (uuid.UUID, bool) {
	s, ok := j.Str(key)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
