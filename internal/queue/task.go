package queue

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/lenscat/internal/domain"
)

// Stream message field names.
const (
	FieldJobID      = "job_id"
	FieldJobType    = "job_type"
	FieldAttempt    = "attempt"
	FieldEnqueuedAt = "enqueued_at"
)

// ErrMalformedTask is returned for stream entries that do not decode into a Task.
var ErrMalformedTask = errors.New("malformed task message")

// Task asks a worker to execute one job. It carries only the job id; the
// job row stays the source of truth, so a duplicate task is harmless.
type Task struct {
	MessageID  string
	JobID      string
	JobType    domain.JobType
	Attempt    int
	EnqueuedAt time.Time
}

func (t Task) values() map[string]any {
	enqueuedAt := t.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}
	return map[string]any{
		FieldJobID:      t.JobID,
		FieldJobType:    string(t.JobType),
		FieldAttempt:    strconv.Itoa(t.Attempt),
		FieldEnqueuedAt: enqueuedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseTask(msg redis.XMessage) (Task, error) {
	task := Task{MessageID: msg.ID}

	jobID, _ := msg.Values[FieldJobID].(string)
	if jobID == "" {
		return task, fmt.Errorf("%w: %s has no %s", ErrMalformedTask, msg.ID, FieldJobID)
	}
	task.JobID = jobID

	jobType, _ := msg.Values[FieldJobType].(string)
	task.JobType = domain.JobType(jobType)
	if !task.JobType.Valid() {
		return task, fmt.Errorf("%w: %s has job type %q", ErrMalformedTask, msg.ID, jobType)
	}

	if s, ok := msg.Values[FieldAttempt].(string); ok {
		if n, err := strconv.Atoi(s); err == nil {
			task.Attempt = n
		}
	}
	if s, ok := msg.Values[FieldEnqueuedAt].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			task.EnqueuedAt = ts
		}
	}
	return task, nil
}
