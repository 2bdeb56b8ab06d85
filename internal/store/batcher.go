package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

// BatcherConfig controls flush cadence and retry behavior, per §4.9.
type BatcherConfig struct {
	FlushInterval   time.Duration // default 500ms
	MaxBatchRows    int           // default 100
	RetryBase       time.Duration // default 1s
	RetryMax        time.Duration // default 60s
	RetryMaxRetries uint64        // default 5
	ShutdownDeadline time.Duration // default 5s
}

// DefaultBatcherConfig returns the §4.9 defaults.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		FlushInterval:    500 * time.Millisecond,
		MaxBatchRows:     100,
		RetryBase:        time.Second,
		RetryMax:         60 * time.Second,
		RetryMaxRetries:  5,
		ShutdownDeadline: 5 * time.Second,
	}
}

type pendingRow struct {
	result *domain.Result
	job    *domain.Job
}

// Batcher is the Result Store Writer (C9). It accepts individual Results
// (paired with their owning Job for the terminal-state update) and flushes
// them to repo in batches, either on a timer or once MaxBatchRows accumulate,
// whichever comes first. A batch that fails permanently is spilled to disk
// rather than blocking subsequent batches.
type Batcher struct {
	repo   Repository
	spill  *Spill
	cfg    BatcherConfig
	logger *slog.Logger

	mu     sync.Mutex
	buffer []pendingRow
	closed bool

	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBatcher builds a Batcher and starts its background flush loop.
func NewBatcher(repo Repository, spill *Spill, cfg BatcherConfig, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Batcher{
		repo:    repo,
		spill:   spill,
		cfg:     cfg,
		logger:  logger,
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if err := spill.Replay(b.applyBatch(context.Background())); err != nil {
		logger.Warn("store: spill replay failed, will retry on next reconnect", "error", err)
	}
	go b.loop()
	return b
}

// Enqueue adds one result/job pair to the pending buffer. It never blocks on
// I/O; if the buffer reaches MaxBatchRows it signals an immediate flush.
func (b *Batcher) Enqueue(result *domain.Result, job *domain.Job) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.buffer = append(b.buffer, pendingRow{result: result, job: job})
	full := len(b.buffer) >= b.cfg.MaxBatchRows
	b.mu.Unlock()

	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *Batcher) loop() {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()
	defer close(b.doneCh)

	for {
		select {
		case <-ticker.C:
			b.flush(context.Background())
		case <-b.flushCh:
			b.flush(context.Background())
		case <-b.stopCh:
			return
		}
	}
}

func (b *Batcher) take() []pendingRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buffer) == 0 {
		return nil
	}
	rows := b.buffer
	b.buffer = nil
	return rows
}

func (b *Batcher) flush(ctx context.Context) {
	rows := b.take()
	if len(rows) == 0 {
		return
	}

	results := make([]*domain.Result, len(rows))
	jobs := make([]*domain.Job, len(rows))
	for i, r := range rows {
		results[i] = r.result
		jobs[i] = r.job
	}

	if err := b.writeWithRetry(ctx, results, jobs); err != nil {
		b.logger.Error("store: batch permanently failed, spilling to disk", "rows", len(rows), "error", err)
		if spillErr := b.spill.Write(results, jobs); spillErr != nil {
			b.logger.Error("store: failed to spill batch, data lost", "error", spillErr)
		}
	}
}

// writeWithRetry attempts repo.InsertResults, retrying transient failures
// with exponential backoff (base/max/jitter/attempt cap per §7) and giving
// up (returning the error so the caller spills) on a permanent failure or
// retry exhaustion.
func (b *Batcher) writeWithRetry(ctx context.Context, results []*domain.Result, jobs []*domain.Job) error {
	backoff, err := retry.NewExponential(b.cfg.RetryBase)
	if err != nil {
		return err
	}
	backoff = retry.WithMaxRetries(b.cfg.RetryMaxRetries, retry.WithCappedDuration(b.cfg.RetryMax, retry.WithJitterPercent(20, backoff)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := b.repo.InsertResults(ctx, results, jobs)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (b *Batcher) applyBatch(ctx context.Context) func(results []*domain.Result, jobs []*domain.Job) error {
	return func(results []*domain.Result, jobs []*domain.Job) error {
		return b.writeWithRetry(ctx, results, jobs)
	}
}

// Close flushes any outstanding batch with a bounded deadline and stops the
// background loop. Anything not flushed within the deadline is spilled.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stopCh)
	<-b.doneCh

	deadlineCtx, cancel := context.WithTimeout(ctx, b.cfg.ShutdownDeadline)
	defer cancel()
	b.flush(deadlineCtx)
	return nil
}
