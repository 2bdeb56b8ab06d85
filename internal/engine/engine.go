package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/watchkeeper/watchkeeper/internal/classify"
	"github.com/watchkeeper/watchkeeper/internal/config"
	"github.com/watchkeeper/watchkeeper/internal/domain"
	"github.com/watchkeeper/watchkeeper/internal/fanout"
	"github.com/watchkeeper/watchkeeper/internal/metrics"
	"github.com/watchkeeper/watchkeeper/internal/probe"
	"github.com/watchkeeper/watchkeeper/internal/queue"
	"github.com/watchkeeper/watchkeeper/internal/schedule"
	"github.com/watchkeeper/watchkeeper/internal/store"
)

// Engine owns the Clock & Trigger, Job Queue, Concurrency Governor, probe
// executors, classifier, metrics aggregator, fan-out hub and store writer
// for one Worker Instance Record, and drives it through the §4.10 lifecycle.
type Engine struct {
	instance *domain.Instance

	fleet atomic.Pointer[config.Fleet]

	queue    *queue.Queue
	governor *queue.Governor
	trigger  *schedule.Trigger
	http     *probe.HTTPExecutor
	sql      *probe.SQLExecutor
	metrics  *metrics.Aggregator
	hub      *fanout.Hub
	batcher  *store.Batcher
	repo     store.Repository
	janitor  *janitor

	workerCount int
	logger      *slog.Logger

	wg               sync.WaitGroup
	cancel           context.CancelFunc
	shutdownDeadline time.Duration
}

// Option configures an Engine at construction, following the teacher's
// functional-options convention.
type Option func(*Engine)

// WithWorkerCount overrides the default dequeue concurrency (default 4).
func WithWorkerCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workerCount = n
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New builds an Engine from an already-validated fleet snapshot, wiring the
// queue, governor, probe executors and trigger it needs for the lifetime of
// the process. The caller must call Start to begin serving.
func New(instanceName, host, version, environment string, fleet *config.Fleet, repo store.Repository, spillPath string, opts ...Option) (*Engine, error) {
	instance := domain.NewInstance(instanceName, host, version, environment, os.Getpid(), time.Now())

	trigger, err := schedule.New(fleet.CronSchedule)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		instance:         instance,
		queue:            queue.New(fleet.QueueMaxDepth),
		governor:         queue.NewGovernor(fleet.MaxConcurrentHTTP, fleet.MaxConcurrentDB, 0),
		trigger:          trigger,
		http:             probe.NewHTTPExecutor(probe.NewCircuitBreaker(probe.DefaultCircuitBreakerConfig())),
		sql:              probe.NewSQLExecutor(),
		metrics:          metrics.New(time.Now()),
		repo:             repo,
		workerCount:      4,
		logger:           slog.Default(),
		shutdownDeadline: fleet.ShutdownDeadline,
	}
	e.fleet.Store(fleet)
	e.hub = fanout.New(metricsDropAdapter{e.metrics})
	e.batcher = store.NewBatcher(repo, store.NewSpill(spillPath), store.DefaultBatcherConfig(), e.logger)
	e.janitor = newJanitor(repo, defaultJanitorConfig(fleet.DataRetentionDays), e.logger)

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type metricsDropAdapter struct{ m *metrics.Aggregator }

func (a metricsDropAdapter) EventDropped(subscriberID string) { a.m.EventDropped(subscriberID) }

// Registry exposes the Prometheus registry backing the Metrics Aggregator,
// for cmd/apiserver's /metrics scrape route.
func (e *Engine) Registry() *prometheus.Registry {
	return e.metrics.Registry()
}

// Reload validates spec and, if valid, atomically swaps the published target
// and limit definitions (§4.11). In-flight probes keep running against the
// snapshot they started with. Changing cron_schedule, max_concurrent_http or
// max_concurrent_db takes effect only on the next restart: the trigger and
// governor are built once at Start and are not safe to swap out from under
// goroutines already reading them.
func (e *Engine) Reload(spec *config.FleetSpec, jwtSigningKeyLen int) config.ValidationReport {
	fleet, report := config.Validate(spec, jwtSigningKeyLen)
	if !report.OK() {
		return report
	}

	if current := e.currentFleet(); current != nil {
		if fleet.CronSchedule != current.CronSchedule {
			report.Warnings = append(report.Warnings, "cron_schedule change requires a restart to take effect")
		}
		if fleet.MaxConcurrentHTTP != current.MaxConcurrentHTTP || fleet.MaxConcurrentDB != current.MaxConcurrentDB {
			report.Warnings = append(report.Warnings, "concurrency limit change requires a restart to take effect")
		}
	}

	e.fleet.Store(fleet)
	return report
}

func (e *Engine) currentFleet() *config.Fleet {
	return e.fleet.Load()
}

// Start transitions Starting -> Running: registers the instance, starts the
// scheduler loop, heartbeat loop, and the worker pool dequeueing jobs.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if err := e.instance.Transition(domain.InstanceRunning, time.Now()); err != nil {
		_ = e.instance.Transition(domain.InstanceError, time.Now())
		return err
	}
	if err := e.repo.UpsertInstance(ctx, e.instance); err != nil {
		e.logger.Error("engine: failed to register instance", "error", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.trigger.Run(runCtx)
	}()

	e.wg.Add(1)
	go e.scheduleLoop(runCtx)

	e.wg.Add(1)
	go e.heartbeatLoop(runCtx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.janitor.Run(runCtx)
	}()

	for i := 0; i < e.workerCount; i++ {
		e.wg.Add(1)
		go e.dequeueLoop(runCtx)
	}

	return nil
}

// scheduleLoop consumes trigger ticks and enqueues one job per eligible
// target, applying queue-overflow backpressure per §5.
func (e *Engine) scheduleLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-e.trigger.Ticks():
			e.enqueueAllTargets(tick)
		}
	}
}

func (e *Engine) enqueueAllTargets(at time.Time) {
	fleet := e.currentFleet()
	if fleet == nil {
		return
	}
	for name := range fleet.Endpoints {
		e.enqueueTarget(domain.TargetKindHTTP, name, "", at, fleet)
	}
	for name, conn := range fleet.Connections {
		if !conn.Enabled {
			continue
		}
		for _, qn := range conn.QueryNames {
			e.enqueueTarget(domain.TargetKindSQL, name, qn, at, fleet)
		}
	}
}

func (e *Engine) enqueueTarget(kind domain.TargetKind, targetName, queryName string, at time.Time, fleet *config.Fleet) {
	job, err := domain.NewJob(e.instance.ID, kind, targetName, queryName, 5, at, fleet.JobMaxRetries)
	if err != nil {
		e.logger.Error("engine: build job failed", "target", targetName, "error", err)
		return
	}
	if err := e.queue.Enqueue(job); err != nil {
		e.metrics.QueueOverflow()
		e.logger.Warn("engine: trigger tick skipped, queue at capacity", "target", targetName, "error", err)
	}
}

// heartbeatLoop emits a heartbeat to the store every heartbeat_interval.
func (e *Engine) heartbeatLoop(ctx context.Context) {
	defer e.wg.Done()
	fleet := e.currentFleet()
	interval := 30 * time.Second
	if fleet != nil {
		interval = fleet.HeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if err := e.instance.Heartbeat(now); err != nil {
				e.logger.Error("engine: heartbeat rejected", "error", err)
				continue
			}
			e.metrics.Heartbeat()
			if err := e.repo.UpsertInstance(ctx, e.instance); err != nil {
				e.logger.Error("engine: failed to persist heartbeat", "error", err)
			}
		}
	}
}

// dequeueLoop is one of workerCount goroutines dispatching ready jobs to the
// appropriate probe executor.
func (e *Engine) dequeueLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		job, err := e.queue.DequeueReady(ctx)
		if err != nil {
			return
		}
		e.runJob(ctx, job)
	}
}

func (e *Engine) runJob(ctx context.Context, job *domain.Job) {
	fleet := e.currentFleet()
	if fleet == nil {
		return
	}

	e.metrics.ProbeStarted(job.TargetName, string(job.Kind))

	var status domain.ResultStatus
	var message string
	var rawValue string
	var elapsed time.Duration
	var serverVersion, dbName, providerName string

	switch job.Kind {
	case domain.TargetKindHTTP:
		ep, ok := fleet.Endpoints[job.TargetName]
		if !ok {
			status, message = domain.ResultStatusError, "unknown endpoint target"
			break
		}
		release, err := e.governor.AcquireHTTP(ctx, ep.Timeout)
		if err != nil {
			// A cancelled ctx falls through to the ctx.Err() check below and goes
			// Cancelled with no Result; a genuine ErrResourceExhausted is treated
			// like any other probe error so it's counted, retried or failed, and
			// never left Running in the queue map.
			status, message = domain.ResultStatusError, err.Error()
			break
		}
		result := e.http.Execute(ctx, ep, fleet.DefaultTimeout)
		release()
		elapsed = result.Elapsed
		status, message = classify.HTTP(result.Raw, ep)

	case domain.TargetKindSQL:
		conn, ok := fleet.Connections[job.TargetName]
		if !ok {
			status, message = domain.ResultStatusError, "unknown connection target"
			break
		}
		query, ok := fleet.Queries[job.TargetName+"/"+job.QueryName]
		if !ok {
			status, message = domain.ResultStatusError, "unknown query definition"
			break
		}
		release, err := e.governor.AcquireDB(ctx, conn.Name, conn.SerializeProbes, conn.CommandTimeout)
		if err != nil {
			status, message = domain.ResultStatusError, err.Error()
			break
		}
		result := e.sql.Execute(ctx, conn, query)
		release()
		elapsed = result.Elapsed
		serverVersion, dbName, providerName = result.ServerVersion, result.DatabaseName, string(conn.Provider)
		status, message, rawValue = classify.SQL(result.Raw, query)
	}

	if ctx.Err() != nil {
		// Shutdown observed mid-probe: no Result is emitted, job goes Cancelled.
		// Job.Cancel only moves Queued jobs, so the Running job is marked here.
		now := time.Now()
		job.Status = domain.JobCancelled
		job.CompletedAt = &now
		return
	}

	now := time.Now()
	if status == domain.ResultStatusError {
		if job.RetryCount < job.MaxRetries {
			nextRetryAt := queue.RequeueWithBackoff(job.RetryCount+1, fleet.JobRetryBaseBackoff, fleet.JobRetryMaxBackoff, now)
			e.emitResult(job, status, message, rawValue, elapsed, now, providerName, serverVersion, dbName)
			e.failJob(job, message)
			_ = e.queue.Requeue(job, nextRetryAt)
			return
		}
		// Retries exhausted: the job terminates Failed, not Completed, per §8 E3.
		e.emitResult(job, status, message, rawValue, elapsed, now, providerName, serverVersion, dbName)
		e.failJob(job, message)
		e.queue.Remove(job.ID)
		return
	}

	if err := job.Complete(now, status, message); err != nil {
		e.logger.Error("engine: job completion failed", "job", job.ID, "error", err)
		return
	}
	e.emitResult(job, status, message, rawValue, elapsed, now, providerName, serverVersion, dbName)
	e.queue.Remove(job.ID)
}

func (e *Engine) failJob(job *domain.Job, message string) {
	now := time.Now()
	_ = job.Fail(now, message, nil)
}

func (e *Engine) emitResult(job *domain.Job, status domain.ResultStatus, message, rawValue string, elapsed time.Duration, now time.Time, provider, serverVersion, dbName string) {
	result, err := domain.NewResult(job, status, message, rawValue, elapsed, now)
	if err != nil {
		e.logger.Error("engine: failed to build result", "job", job.ID, "error", err)
		return
	}
	result.Provider = provider
	result.ServerVersion = serverVersion
	result.DatabaseName = dbName

	e.metrics.ProbeResult(job.TargetName, string(job.Kind), string(status), elapsed)
	e.hub.Publish(job.Kind, result)
	if err := e.batcher.Enqueue(result, job); err != nil {
		e.logger.Error("engine: failed to enqueue result for persistence", "result", result.ID, "error", err)
	}
}

// Stop transitions Running -> Stopping -> Stopped. It cancels the run
// context at once, so in-flight probes end Cancelled without a Result
// instead of running to completion, and it stops the queue, so jobs still
// queued are neither dispatched nor marked Cancelled. It then waits up to the
// configured shutdown deadline (§4.10) for the worker goroutines to return
// before flushing the result batcher.
func (e *Engine) Stop(ctx context.Context) error {
	now := time.Now()
	if err := e.instance.Transition(domain.InstanceStopping, now); err != nil {
		return err
	}

	if e.cancel != nil {
		e.cancel()
	}
	e.trigger.Stop()
	e.queue.Stop()
	e.hub.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.shutdownDeadline):
		e.logger.Warn("engine: shutdown deadline exceeded, some probes may not have drained")
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = e.batcher.Close(deadlineCtx)

	if err := e.instance.Transition(domain.InstanceStopped, time.Now()); err != nil {
		return err
	}
	if err := e.repo.UpsertInstance(deadlineCtx, e.instance); err != nil {
		e.logger.Error("engine: failed to persist final instance state", "error", err)
	}
	return nil
}
