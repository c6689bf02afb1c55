// Package jobs provides a persistent job queue with handler-based execution.
// Infrastructure here is domain-agnostic: integration packages register
// handlers and own their payload structures.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sixfold/sixfold/errors"
)

// Status represents the current state of a job
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusDead means the job exhausted its retry budget and will not run
	// again without manual intervention.
	StatusDead Status = "dead"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusDead:
		return true
	default:
		return false
	}
}

// DefaultMaxAttempts is the retry budget for a job unless overridden
const DefaultMaxAttempts = 3

// Job is a unit of queued work. HandlerName routes it; Payload is owned by
// the handler that decodes it.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	Progress    string          `json:"progress,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewJob creates a queued job with the default retry budget
func NewJob(handlerName string, payload json.RawMessage) (*Job, error) {
	if handlerName == "" {
		return nil, errors.New("handlerName cannot be empty")
	}
	return &Job{
		ID:          uuid.New().String(),
		HandlerName: handlerName,
		Payload:     payload,
		Status:      StatusQueued,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   time.Now(),
	}, nil
}

// Start marks the job as running and counts the attempt
func (j *Job) Start() {
	now := time.Now()
	j.Status = StatusRunning
	j.Attempts++
	j.StartedAt = &now
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.Status = StatusCompleted
	j.CompletedAt = &now
}

// Fail records the error. The job becomes failed (eligible for another
// attempt) until the retry budget is spent, then dead.
func (j *Job) Fail(err error) {
	j.LastError = err.Error()
	if j.Attempts >= j.MaxAttempts {
		now := time.Now()
		j.Status = StatusDead
		j.CompletedAt = &now
		return
	}
	j.Status = StatusFailed
}

// SetProgress records a free-form progress note, e.g. a sync cursor position
func (j *Job) SetProgress(note string) {
	j.Progress = note
}
