package jobs

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sixfold/sixfold/errors"
)

const (
	// maxOrphanedJobsToRecover limits how many orphaned jobs are re-queued
	// on startup after a crash
	maxOrphanedJobsToRecover = 1000

	maxConsecutiveErrors = 5
	maxBackoff           = 30 * time.Second

	// cleanupInterval is how often the maintenance loop prunes terminal
	// jobs past their retention window
	cleanupInterval = time.Hour
)

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`
	PollInterval time.Duration `json:"poll_interval"`
	// MaxAttempts is the retry budget for enqueued jobs; zero keeps
	// DefaultMaxAttempts.
	MaxAttempts int `json:"max_attempts"`
	// Retention is how long completed and dead jobs are kept; zero
	// disables the maintenance loop.
	Retention time.Duration `json:"retention"`
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 5 * time.Second,
		MaxAttempts:  DefaultMaxAttempts,
		Retention:    30 * 24 * time.Hour,
	}
}

// WorkerPool manages workers that poll the queue and execute jobs through
// the handler registry. Register handlers before calling Start.
type WorkerPool struct {
	queue     *Queue
	registry  *Registry
	config    WorkerPoolConfig
	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger
	mu        sync.Mutex
}

// NewWorkerPool creates a worker pool with an empty handler registry
func NewWorkerPool(ctx context.Context, db *sql.DB, cfg WorkerPoolConfig, logger *zap.SugaredLogger) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)
	queue := NewQueue(db)
	queue.SetMaxAttempts(cfg.MaxAttempts)
	return &WorkerPool{
		queue:     queue,
		registry:  NewRegistry(),
		config:    cfg,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Queue returns the job queue (useful for enqueuing jobs)
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Registry returns the handler registry for registering job handlers
func (wp *WorkerPool) Registry() *Registry {
	return wp.registry
}

// Start begins processing jobs. Jobs orphaned in running state by a crash
// are re-queued first.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		// Restarted after Stop - recreate worker context from parent
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		if wp.logger != nil {
			wp.logger.Warnw("Failed to recover orphaned jobs", "error", err)
		}
	}

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	if wp.config.Retention > 0 {
		wp.wg.Add(1)
		go wp.maintenance()
	}
}

// maintenance periodically prunes completed and dead jobs past the
// retention window
func (wp *WorkerPool) maintenance() {
	defer wp.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			removed, err := wp.queue.Cleanup(wp.ctx, wp.config.Retention)
			if err != nil {
				if wp.logger != nil && !errors.Is(err, sql.ErrConnDone) {
					wp.logger.Warnw("Failed to cleanup old jobs", "error", err)
				}
				continue
			}
			if removed > 0 && wp.logger != nil {
				wp.logger.Debugw("Pruned old jobs", "count", removed)
			}
		}
	}
}

// Stop gracefully stops the worker pool, waiting for in-flight jobs with a
// 30-second timeout
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if wp.logger != nil {
			wp.logger.Infow("Worker pool stopped cleanly")
		}
	case <-time.After(30 * time.Second):
		if wp.logger != nil {
			wp.logger.Warnw("Worker pool stop timeout, jobs may still be finishing")
		}
	}
}

// recoverOrphanedJobs re-queues jobs stuck in running state from an
// ungraceful shutdown
func (wp *WorkerPool) recoverOrphanedJobs() error {
	orphaned, err := wp.queue.store.ListRunning(wp.parentCtx, maxOrphanedJobsToRecover)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	if len(orphaned) == 0 {
		return nil
	}

	if wp.logger != nil {
		wp.logger.Infow("Recovering orphaned jobs from previous shutdown", "count", len(orphaned))
	}

	for _, job := range orphaned {
		job.Status = StatusQueued
		job.LastError = ""
		if err := wp.queue.UpdateJob(wp.parentCtx, job); err != nil {
			if wp.logger != nil {
				wp.logger.Warnw("Failed to recover orphaned job", "job_id", job.ID, "error", err)
			}
		}
	}
	return nil
}

// worker polls the queue until the pool is stopped
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	interval := wp.config.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	errorCount := 0
	backoffDuration := time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNextJob(); err != nil {
				select {
				case <-wp.ctx.Done():
					return
				default:
					if errors.Is(err, sql.ErrConnDone) {
						// Database closed during shutdown
						return
					}
					errorCount++
					if wp.logger != nil {
						wp.logger.Errorw("Worker error processing job",
							"worker_id", id,
							"error", err,
							"consecutive_errors", errorCount)
					}
					// Exponential backoff after repeated errors
					if errorCount >= maxConsecutiveErrors {
						time.Sleep(backoffDuration)
						backoffDuration = min(backoffDuration*2, maxBackoff)
					}
				}
			} else {
				errorCount = 0
				backoffDuration = time.Second
			}
		}
	}
}

// processNextJob claims and executes one job, recording the outcome
func (wp *WorkerPool) processNextJob() error {
	select {
	case <-wp.ctx.Done():
		return nil
	default:
	}

	job, err := wp.queue.Dequeue(wp.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return nil
	}

	if err := wp.registry.Execute(wp.ctx, job); err != nil {
		select {
		case <-wp.ctx.Done():
			// Cancelled mid-execution: re-queue without burning the attempt's
			// retry budget so the job resumes from its persisted progress
			job.Status = StatusQueued
			job.Attempts--
			if updateErr := wp.queue.UpdateJob(context.Background(), job); updateErr != nil {
				if wp.logger != nil {
					wp.logger.Errorw("Failed to re-queue cancelled job", "job_id", job.ID, "error", updateErr)
				}
			}
			return nil
		default:
			// Fail in place so progress the handler recorded survives
			job.Fail(err)
			return wp.queue.UpdateJob(wp.ctx, job)
		}
	}

	job.Complete()
	return wp.queue.UpdateJob(wp.ctx, job)
}
