package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeeper/watchkeeper/internal/domain"
	"github.com/watchkeeper/watchkeeper/internal/store"
)

// fakeJanitorRepo implements store.Repository with only DeleteJobsOlderThan
// exercised; the other methods are never called by the janitor.
type fakeJanitorRepo struct {
	deleteCalls  int32
	lastCutoff   time.Time
	returnCounts []int64
}

func (f *fakeJanitorRepo) InsertResults(context.Context, []*domain.Result, []*domain.Job) error {
	return nil
}
func (f *fakeJanitorRepo) UpsertInstance(context.Context, *domain.Instance) error { return nil }
func (f *fakeJanitorRepo) ListResults(context.Context, store.ResultFilter) ([]*domain.Result, error) {
	return nil, nil
}
func (f *fakeJanitorRepo) Close(context.Context) error { return nil }

func (f *fakeJanitorRepo) DeleteJobsOlderThan(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	i := atomic.AddInt32(&f.deleteCalls, 1) - 1
	f.lastCutoff = cutoff
	if int(i) < len(f.returnCounts) {
		return f.returnCounts[i], nil
	}
	return 0, nil
}

func TestJanitorSweepsOnceImmediatelyWithNoStartupJitter(t *testing.T) {
	repo := &fakeJanitorRepo{returnCounts: []int64{3}}
	j := newJanitor(repo, janitorConfig{
		interval:         time.Hour,
		maxStartupJitter: 0,
		batchLimit:       500,
		retention:        24 * time.Hour,
	}, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	j.Run(ctx)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&repo.deleteCalls), int32(1))
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), repo.lastCutoff, 2*time.Second)
}

func TestJanitorStopsOnContextCancellation(t *testing.T) {
	repo := &fakeJanitorRepo{}
	j := newJanitor(repo, janitorConfig{
		interval:         5 * time.Millisecond,
		maxStartupJitter: 0,
		batchLimit:       10,
		retention:        time.Hour,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop within 1s of cancellation")
	}
}

func TestDefaultJanitorConfigDisabledWithoutRetentionDays(t *testing.T) {
	cfg := defaultJanitorConfig(0)
	require.True(t, cfg.disabled)

	cfg = defaultJanitorConfig(7)
	require.False(t, cfg.disabled)
	require.Equal(t, 7*24*time.Hour, cfg.retention)
}

func TestJanitorDisabledNeverSweeps(t *testing.T) {
	repo := &fakeJanitorRepo{}
	j := newJanitor(repo, janitorConfig{disabled: true}, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	j.Run(ctx)

	assert.Equal(t, int32(0), atomic.LoadInt32(&repo.deleteCalls))
}
