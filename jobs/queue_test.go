package jobs_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixfold/sixfold/errors"
	qt "github.com/sixfold/sixfold/internal/testing"
	"github.com/sixfold/sixfold/jobs"
)

func TestEnqueueDequeue(t *testing.T) {
	queue := jobs.NewQueue(qt.CreateMigratedTestDB(t))
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, "test.handler", json.RawMessage(`{"key":"value"}`))
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, job.Status)
	assert.Equal(t, jobs.DefaultMaxAttempts, job.MaxAttempts)

	claimed, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, jobs.StatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	// Nothing else to claim
	empty, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestEnqueueHonorsMaxAttemptsOverride(t *testing.T) {
	queue := jobs.NewQueue(qt.CreateMigratedTestDB(t))
	queue.SetMaxAttempts(7)

	job, err := queue.Enqueue(context.Background(), "test.handler", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, job.MaxAttempts)

	stored, err := queue.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.MaxAttempts)
}

func TestEnqueueRequiresHandler(t *testing.T) {
	queue := jobs.NewQueue(qt.CreateMigratedTestDB(t))

	_, err := queue.Enqueue(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestDequeueOldestFirst(t *testing.T) {
	queue := jobs.NewQueue(qt.CreateMigratedTestDB(t))
	ctx := context.Background()

	first, err := queue.Enqueue(ctx, "test.handler", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = queue.Enqueue(ctx, "test.handler", nil)
	require.NoError(t, err)

	claimed, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, claimed.ID)
}

func TestFailRetriesUntilDead(t *testing.T) {
	queue := jobs.NewQueue(qt.CreateMigratedTestDB(t))
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, "test.handler", nil)
	require.NoError(t, err)

	// Two failures leave the job retryable
	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d should be claimable", attempt)
		require.NoError(t, queue.FailJob(ctx, claimed.ID, errors.New("boom")))

		got, err := queue.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusFailed, got.Status)
		assert.Equal(t, attempt, got.Attempts)
		assert.Equal(t, "boom", got.LastError)
	}

	// Third failure exhausts the budget
	claimed, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, queue.FailJob(ctx, claimed.ID, errors.New("boom again")))

	got, err := queue.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDead, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// Dead jobs are never claimed again
	empty, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestCompleteJob(t *testing.T) {
	queue := jobs.NewQueue(qt.CreateMigratedTestDB(t))
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, "test.handler", nil)
	require.NoError(t, err)

	_, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, queue.CompleteJob(ctx, job.ID))

	got, err := queue.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestGetJobNotFound(t *testing.T) {
	queue := jobs.NewQueue(qt.CreateMigratedTestDB(t))

	_, err := queue.GetJob(context.Background(), "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestGetStats(t *testing.T) {
	queue := jobs.NewQueue(qt.CreateMigratedTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := queue.Enqueue(ctx, "test.handler", nil)
		require.NoError(t, err)
	}
	claimed, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, queue.CompleteJob(ctx, claimed.ID))

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 3, stats.Total)
}

func TestCleanup(t *testing.T) {
	queue := jobs.NewQueue(qt.CreateMigratedTestDB(t))
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, "test.handler", nil)
	require.NoError(t, err)
	_, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, queue.CompleteJob(ctx, job.ID))

	// Completed just now survives a 1-hour retention window
	removed, err := queue.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = queue.Cleanup(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
