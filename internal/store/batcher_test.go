package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	inserted [][]*domain.Result
	failWith error
}

func (f *fakeRepo) InsertResults(ctx context.Context, results []*domain.Result, jobs []*domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.inserted = append(f.inserted, results)
	return nil
}

func (f *fakeRepo) UpsertInstance(ctx context.Context, instance *domain.Instance) error { return nil }

func (f *fakeRepo) ListResults(ctx context.Context, filter ResultFilter) ([]*domain.Result, error) {
	return nil, nil
}

func (f *fakeRepo) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) Close(ctx context.Context) error { return nil }

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, batch := range f.inserted {
		n += len(batch)
	}
	return n
}

func newTestResult() *domain.Result {
	return &domain.Result{ID: uuid.New(), TargetName: "api", Status: domain.ResultStatusHealthy, Message: "HTTP 200 OK", Timestamp: time.Now()}
}

func TestBatcherFlushesOnTimer(t *testing.T) {
	repo := &fakeRepo{}
	spill := NewSpill(filepath.Join(t.TempDir(), "spill.jsonl"))
	cfg := DefaultBatcherConfig()
	cfg.FlushInterval = 20 * time.Millisecond
	cfg.MaxBatchRows = 1000

	b := NewBatcher(repo, spill, cfg, nil)
	defer b.Close(context.Background())

	require.NoError(t, b.Enqueue(newTestResult(), nil))

	assert.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcherFlushesOnSize(t *testing.T) {
	repo := &fakeRepo{}
	spill := NewSpill(filepath.Join(t.TempDir(), "spill.jsonl"))
	cfg := DefaultBatcherConfig()
	cfg.FlushInterval = time.Hour
	cfg.MaxBatchRows = 3

	b := NewBatcher(repo, spill, cfg, nil)
	defer b.Close(context.Background())

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Enqueue(newTestResult(), nil))
	}

	assert.Eventually(t, func() bool { return repo.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestBatcherSpillsOnPermanentFailure(t *testing.T) {
	repo := &fakeRepo{failWith: ErrPermanent}
	spillPath := filepath.Join(t.TempDir(), "spill.jsonl")
	spill := NewSpill(spillPath)
	cfg := DefaultBatcherConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	cfg.RetryMaxRetries = 0

	b := NewBatcher(repo, spill, cfg, nil)
	require.NoError(t, b.Enqueue(newTestResult(), nil))

	assert.Eventually(t, func() bool {
		info, err := os.Stat(spillPath)
		return err == nil && info.Size() > 0
	}, time.Second, 5*time.Millisecond)

	b.Close(context.Background())
}

func TestBatcherCloseFlushesOutstanding(t *testing.T) {
	repo := &fakeRepo{}
	spill := NewSpill(filepath.Join(t.TempDir(), "spill.jsonl"))
	cfg := DefaultBatcherConfig()
	cfg.FlushInterval = time.Hour
	cfg.MaxBatchRows = 1000

	b := NewBatcher(repo, spill, cfg, nil)
	require.NoError(t, b.Enqueue(newTestResult(), nil))
	require.NoError(t, b.Close(context.Background()))

	assert.Equal(t, 1, repo.count())
}
