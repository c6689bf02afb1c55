package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sixfold/sixfold/errors"
)

// Store handles job persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, handler_name, payload, status, attempts, max_attempts, last_error, progress, created_at, started_at, completed_at`

// execer is the subset of *sql.DB and *sql.Tx the write paths need
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateJob persists a new job
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	return s.createJob(ctx, s.db, job)
}

// CreateJobTx persists a new job inside the caller's transaction
func (s *Store) CreateJobTx(ctx context.Context, tx *sql.Tx, job *Job) error {
	return s.createJob(ctx, tx, job)
}

func (s *Store) createJob(ctx context.Context, db execer, job *Job) error {
	payload := "{}"
	if job.Payload != nil {
		payload = string(job.Payload)
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO jobs (id, handler_name, payload, status, attempts, max_attempts, last_error, progress, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.HandlerName, payload, string(job.Status), job.Attempts,
		job.MaxAttempts, job.LastError, job.Progress, job.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create job %s", job.ID)
	}
	return nil
}

// UpdateJob persists job state changes
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = ?, last_error = ?, progress = ?, started_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(job.Status), job.Attempts, job.LastError, job.Progress,
		job.StartedAt, job.CompletedAt, job.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update job %s", job.ID)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("job not found")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %s", id)
	}
	return job, nil
}

// NextRunnable returns the oldest job eligible to run: queued, or failed
// with retry budget remaining.
func (s *Store) NextRunnable(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ? OR (status = ? AND attempts < max_attempts)
		 ORDER BY created_at LIMIT 1`,
		string(StatusQueued), string(StatusFailed))
	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next runnable job")
	}
	return job, nil
}

// ListJobs returns jobs, optionally filtered by status, newest first
func (s *Store) ListJobs(ctx context.Context, status *Status, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobsList []*Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobsList = append(jobsList, job)
	}
	return jobsList, rows.Err()
}

// ListRunning returns jobs stuck in running state, oldest first
func (s *Store) ListRunning(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at LIMIT ?`,
		string(StatusRunning), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list running jobs")
	}
	defer rows.Close()

	var jobsList []*Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobsList = append(jobsList, job)
	}
	return jobsList, rows.Err()
}

// CountByStatus returns job counts per status
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// CleanupOldJobs removes terminal jobs older than the retention window
func (s *Store) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND completed_at < ?`,
		string(StatusCompleted), string(StatusDead), time.Now().Add(-olderThan))
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}
	return result.RowsAffected()
}

// scanJob builds a Job from a row scan function
func scanJob(scan func(...any) error) (*Job, error) {
	job := &Job{}
	var payload, status string
	var startedAt, completedAt sql.NullTime
	err := scan(&job.ID, &job.HandlerName, &payload, &status, &job.Attempts,
		&job.MaxAttempts, &job.LastError, &job.Progress, &job.CreatedAt,
		&startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	job.Payload = json.RawMessage(payload)
	job.Status = Status(status)
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}
