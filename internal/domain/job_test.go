package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	now := time.Now()

	_, err := NewJob(uuid.New(), TargetKindHTTP, "api", "", 0, now, 3)
	assert.Error(t, err, "priority 0 is out of [1,10]")

	_, err = NewJob(uuid.New(), TargetKindSQL, "db", "", 5, now, 3)
	assert.Error(t, err, "sql job without a query name is rejected")

	job, err := NewJob(uuid.New(), TargetKindHTTP, "api", "", 5, now, 3)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)
}

func TestJobLifecycle(t *testing.T) {
	now := time.Now()
	job, err := NewJob(uuid.New(), TargetKindHTTP, "api", "", 5, now, 3)
	require.NoError(t, err)

	assert.True(t, job.Ready(now))

	require.NoError(t, job.Start(now.Add(time.Millisecond)))
	assert.Equal(t, JobRunning, job.Status)
	assert.False(t, job.Ready(now), "running job is never ready")

	completedAt := now.Add(10 * time.Millisecond)
	require.NoError(t, job.Complete(completedAt, ResultStatusHealthy, "HTTP 200 OK"))
	assert.Equal(t, JobCompleted, job.Status)
	assert.True(t, job.Terminal())
	require.NotNil(t, job.ResultStatus)
	assert.Equal(t, ResultStatusHealthy, *job.ResultStatus)
}

func TestJobCancelIsIdempotent(t *testing.T) {
	now := time.Now()
	job, err := NewJob(uuid.New(), TargetKindHTTP, "api", "", 5, now, 3)
	require.NoError(t, err)

	cancelled, err := job.Cancel(now)
	require.NoError(t, err)
	assert.True(t, cancelled)

	cancelled, err = job.Cancel(now)
	require.NoError(t, err)
	assert.False(t, cancelled, "second cancel is a no-op, not an error")
}

func TestJobCancelRunningIsNoop(t *testing.T) {
	now := time.Now()
	job, err := NewJob(uuid.New(), TargetKindHTTP, "api", "", 5, now, 3)
	require.NoError(t, err)
	require.NoError(t, job.Start(now))

	cancelled, err := job.Cancel(now)
	require.NoError(t, err)
	assert.False(t, cancelled, "a dispatched job cannot be cancelled this way")
	assert.Equal(t, JobRunning, job.Status)
}

func TestJobFailAndRequeue(t *testing.T) {
	now := time.Now()
	job, err := NewJob(uuid.New(), TargetKindHTTP, "api", "", 5, now, 2)
	require.NoError(t, err)
	require.NoError(t, job.Start(now))

	retryAt := now.Add(time.Second)
	require.NoError(t, job.Fail(now.Add(time.Millisecond), "timeout", &retryAt))
	assert.Equal(t, JobFailed, job.Status)

	require.NoError(t, job.Requeue(retryAt))
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, 1, job.RetryCount)

	require.NoError(t, job.Start(retryAt))
	require.NoError(t, job.Fail(retryAt.Add(time.Millisecond), "timeout", &retryAt))
	require.NoError(t, job.Requeue(retryAt))
	assert.Equal(t, 2, job.RetryCount)

	require.NoError(t, job.Start(retryAt))
	require.NoError(t, job.Fail(retryAt.Add(time.Millisecond), "timeout", &retryAt))
	err = job.Requeue(retryAt)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}
