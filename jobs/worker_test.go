package jobs_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixfold/sixfold/errors"
	qt "github.com/sixfold/sixfold/internal/testing"
	"github.com/sixfold/sixfold/jobs"
)

func testPoolConfig() jobs.WorkerPoolConfig {
	return jobs.WorkerPoolConfig{Workers: 1, PollInterval: 10 * time.Millisecond}
}

func TestWorkerPoolProcessesJob(t *testing.T) {
	pool := jobs.NewWorkerPool(context.Background(), qt.CreateMigratedTestDB(t), testPoolConfig(), nil)

	var executed atomic.Int32
	pool.Registry().Register(jobs.HandlerFunc{
		HandlerName: "test.ok",
		Fn: func(_ context.Context, _ *jobs.Job) error {
			executed.Add(1)
			return nil
		},
	})

	job, err := pool.Queue().Enqueue(context.Background(), "test.ok", nil)
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := pool.Queue().GetJob(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), executed.Load())
}

func TestWorkerPoolAppliesRetryBudget(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MaxAttempts = 5
	pool := jobs.NewWorkerPool(context.Background(), qt.CreateMigratedTestDB(t), cfg, nil)

	job, err := pool.Queue().Enqueue(context.Background(), "test.ok", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, job.MaxAttempts)
}

func TestWorkerPoolRetriesToDead(t *testing.T) {
	pool := jobs.NewWorkerPool(context.Background(), qt.CreateMigratedTestDB(t), testPoolConfig(), nil)

	var attempts atomic.Int32
	pool.Registry().Register(jobs.HandlerFunc{
		HandlerName: "test.flaky",
		Fn: func(_ context.Context, _ *jobs.Job) error {
			attempts.Add(1)
			return errors.New("persistent failure")
		},
	})

	job, err := pool.Queue().Enqueue(context.Background(), "test.flaky", nil)
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := pool.Queue().GetJob(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusDead
	}, 5*time.Second, 10*time.Millisecond)

	got, err := pool.Queue().GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.DefaultMaxAttempts, got.Attempts)
	assert.Equal(t, "persistent failure", got.LastError)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWorkerPoolUnknownHandler(t *testing.T) {
	pool := jobs.NewWorkerPool(context.Background(), qt.CreateMigratedTestDB(t), testPoolConfig(), nil)

	job, err := pool.Queue().Enqueue(context.Background(), "test.unregistered", nil)
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := pool.Queue().GetJob(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusDead
	}, 5*time.Second, 10*time.Millisecond)
}

func TestOrphanRecovery(t *testing.T) {
	conn := qt.CreateMigratedTestDB(t)
	queue := jobs.NewQueue(conn)
	ctx := context.Background()

	// Simulate a crash: job left in running state
	job, err := queue.Enqueue(ctx, "test.orphan", nil)
	require.NoError(t, err)
	_, err = queue.Dequeue(ctx)
	require.NoError(t, err)

	var executed atomic.Int32
	pool := jobs.NewWorkerPool(context.Background(), conn, testPoolConfig(), nil)
	pool.Registry().Register(jobs.HandlerFunc{
		HandlerName: "test.orphan",
		Fn: func(_ context.Context, _ *jobs.Job) error {
			executed.Add(1)
			return nil
		},
	})

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := queue.GetJob(ctx, job.ID)
		return err == nil && got.Status == jobs.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := jobs.NewRegistry()
	handler := jobs.HandlerFunc{HandlerName: "test.dup", Fn: func(context.Context, *jobs.Job) error { return nil }}

	registry.Register(handler)
	assert.True(t, registry.Has("test.dup"))
	assert.Panics(t, func() { registry.Register(handler) })
}
