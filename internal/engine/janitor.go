package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/watchkeeper/watchkeeper/internal/store"
)

// janitorConfig controls the retention sweep named in §3's Probe Job
// lifecycle clause ("removed by the janitor when older than that window").
// Shaped after the teacher's ReconciliationConfig: a jittered-startup,
// rate-limited, batch-capped sweep rather than a single unbounded DELETE.
type janitorConfig struct {
	interval         time.Duration
	maxStartupJitter time.Duration
	batchLimit       int
	retention        time.Duration
	disabled         bool // data_retention_days unset: accumulate, per the §4.11 validator warning
}

func defaultJanitorConfig(retentionDays int) janitorConfig {
	if retentionDays <= 0 {
		return janitorConfig{disabled: true}
	}
	return janitorConfig{
		interval:         1 * time.Hour,
		maxStartupJitter: 30 * time.Second,
		batchLimit:       500,
		retention:        time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// janitor sweeps terminal Probe Jobs (and their Result Records) past the
// configured retention window. It runs once per instance, with a jittered
// startup delay so a fleet of restarted workers doesn't all sweep at once,
// and caps each pass at batchLimit rows so a large backlog drains over
// several passes rather than holding one long transaction.
type janitor struct {
	repo   store.Repository
	cfg    janitorConfig
	logger *slog.Logger
}

func newJanitor(repo store.Repository, cfg janitorConfig, logger *slog.Logger) *janitor {
	return &janitor{repo: repo, cfg: cfg, logger: logger}
}

// Run loops until ctx is cancelled, sweeping once per interval. It is a
// no-op for the lifetime of ctx when data_retention_days was left unset.
func (j *janitor) Run(ctx context.Context) {
	if j.cfg.disabled {
		<-ctx.Done()
		return
	}
	if j.cfg.maxStartupJitter > 0 {
		jitter := rand.N(j.cfg.maxStartupJitter)
		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	j.sweepOnce(ctx)

	ticker := time.NewTicker(j.cfg.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweepOnce(ctx)
		}
	}
}

func (j *janitor) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-j.cfg.retention)
	deleted, err := j.repo.DeleteJobsOlderThan(ctx, cutoff, j.cfg.batchLimit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		j.logger.Error("engine: janitor sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		j.logger.Info("engine: janitor swept retired jobs", "deleted", deleted, "cutoff", cutoff)
	}
	if deleted == int64(j.cfg.batchLimit) {
		// Backlog likely remains; the next tick picks up where this left off
		// rather than looping here, so a single pass never blocks the next
		// scheduled trigger.
		j.logger.Debug("engine: janitor sweep hit batch limit, backlog may remain", "limit", j.cfg.batchLimit)
	}
}
