package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sixfold/sixfold/errors"
)

// Queue is the persistent job queue. The mutex serializes dequeue so two
// workers cannot claim the same job.
type Queue struct {
	store       *Store
	mu          sync.Mutex
	maxAttempts int
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB) *Queue {
	return &Queue{store: NewStore(db)}
}

// SetMaxAttempts overrides the retry budget for jobs enqueued after the
// call. Zero or negative keeps DefaultMaxAttempts.
func (q *Queue) SetMaxAttempts(n int) {
	q.maxAttempts = n
}

func (q *Queue) newJob(handlerName string, payload json.RawMessage) (*Job, error) {
	job, err := NewJob(handlerName, payload)
	if err != nil {
		return nil, err
	}
	if q.maxAttempts > 0 {
		job.MaxAttempts = q.maxAttempts
	}
	return job, nil
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(ctx context.Context, handlerName string, payload json.RawMessage) (*Job, error) {
	job, err := q.newJob(handlerName, payload)
	if err != nil {
		return nil, err
	}

	if err := q.store.CreateJob(ctx, job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", handlerName))
		return nil, err
	}
	return job, nil
}

// EnqueueTx adds a new job inside the caller's transaction, so the job
// commits or rolls back together with the caller's own writes.
func (q *Queue) EnqueueTx(ctx context.Context, tx *sql.Tx, handlerName string, payload json.RawMessage) (*Job, error) {
	job, err := q.newJob(handlerName, payload)
	if err != nil {
		return nil, err
	}

	if err := q.store.CreateJobTx(ctx, tx, job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", handlerName))
		return nil, err
	}
	return job, nil
}

// Dequeue claims the next runnable job and marks it running.
// Returns nil when no job is available.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.NextRunnable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next runnable job")
	}
	if job == nil {
		return nil, nil
	}

	job.Start()
	if err := q.store.UpdateJob(ctx, job); err != nil {
		err = errors.Wrap(err, "failed to mark job as running")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// UpdateJob persists job state changes
func (q *Queue) UpdateJob(ctx context.Context, job *Job) error {
	return q.store.UpdateJob(ctx, job)
}

// CompleteJob marks a job as completed
func (q *Queue) CompleteJob(ctx context.Context, id string) error {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "failed to complete job %s", id)
	}
	job.Complete()
	return q.store.UpdateJob(ctx, job)
}

// FailJob records a failure. The job is retried until its budget is spent,
// then marked dead.
func (q *Queue) FailJob(ctx context.Context, id string, jobErr error) error {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s as failed", id)
	}
	job.Fail(jobErr)
	if err := q.store.UpdateJob(ctx, job); err != nil {
		err = errors.Wrap(err, "failed to record job failure")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Job error: %s", jobErr.Error()))
		return err
	}
	return nil
}

// ListJobs returns jobs, optionally filtered by status
func (q *Queue) ListJobs(ctx context.Context, status *Status, limit int) ([]*Job, error) {
	return q.store.ListJobs(ctx, status, limit)
}

// Stats holds job counts per status
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Dead      int `json:"dead"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := q.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Queued:    counts[StatusQueued],
		Running:   counts[StatusRunning],
		Completed: counts[StatusCompleted],
		Failed:    counts[StatusFailed],
		Dead:      counts[StatusDead],
	}
	stats.Total = stats.Queued + stats.Running + stats.Completed + stats.Failed + stats.Dead
	return stats, nil
}

// Cleanup removes old terminal jobs
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return q.store.CleanupOldJobs(ctx, olderThan)
}
