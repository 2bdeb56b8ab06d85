package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/watchkeeper/watchkeeper/internal/domain"
	"github.com/watchkeeper/watchkeeper/internal/queue"
	"github.com/watchkeeper/watchkeeper/internal/store"
)

// TriggerAll enqueues one immediate job per configured target, bypassing the
// cron schedule, per §6's manual trigger operation.
func (e *Engine) TriggerAll(ctx context.Context) error {
	fleet := e.currentFleet()
	if fleet == nil {
		return ErrNotRunning
	}
	e.enqueueAllTargets(time.Now())
	return nil
}

// TriggerTarget enqueues an immediate job for one named endpoint or
// connection (every query on that connection, if it is one).
func (e *Engine) TriggerTarget(ctx context.Context, targetName string) error {
	fleet := e.currentFleet()
	if fleet == nil {
		return ErrNotRunning
	}

	now := time.Now()
	if _, ok := fleet.Endpoints[targetName]; ok {
		e.enqueueTarget(domain.TargetKindHTTP, targetName, "", now, fleet)
		return nil
	}
	if conn, ok := fleet.Connections[targetName]; ok {
		for _, qn := range conn.QueryNames {
			e.enqueueTarget(domain.TargetKindSQL, targetName, qn, now, fleet)
		}
		return nil
	}
	return ErrUnknownTarget
}

// CancelJob cancels a still-queued job. Returns (false, nil) if the job is
// unknown, already dispatched, or already terminal, matching the queue's
// idempotent semantics.
func (e *Engine) CancelJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	q := e.currentQueue()
	if q == nil {
		return false, ErrNotRunning
	}
	return q.Cancel(jobID, time.Now())
}

// RetryJob forces an immediate retry of a failed job, bypassing backoff.
func (e *Engine) RetryJob(ctx context.Context, jobID uuid.UUID) error {
	q := e.currentQueue()
	if q == nil {
		return ErrNotRunning
	}
	return q.Retry(jobID, time.Now())
}

// GetMetricsSnapshot reads the instance's current health classification
// alongside its uptime, per §6.
func (e *Engine) GetMetricsSnapshot(ctx context.Context, now time.Time) MetricsSnapshot {
	fleet := e.currentFleet()
	interval := 30 * time.Second
	if fleet != nil {
		interval = fleet.HeartbeatInterval
	}
	health := domain.ClassifyHealth(e.instance.Status, e.instance.LastHeartbeat, now, interval)
	return MetricsSnapshot{
		UptimeSeconds: e.metrics.UptimeSeconds(now),
		InstanceID:    e.instance.ID,
		Status:        e.instance.Status,
		Health:        health,
	}
}

// ListResults answers §6's list_results(filter) operation, delegating
// directly to the repository since Result Records are immutable once
// written and need no engine-side reconciliation.
func (e *Engine) ListResults(ctx context.Context, filter store.ResultFilter) ([]*domain.Result, error) {
	return e.repo.ListResults(ctx, filter)
}

// Subscribe registers a new live event listener and returns its channel plus
// an unsubscribe func, per §4.8/§6.
func (e *Engine) Subscribe(principal string, roles []string, permissions []domain.Permission, groups []domain.Group, bufferSize int) (string, <-chan *domain.Result, func()) {
	subscriber := domain.NewSubscriber(principal, roles, permissions, groups)
	id := subscriber.ID.String()
	sub := e.hub.Subscribe(id, subscriber, bufferSize)
	return id, sub.Events(), func() { e.hub.Unsubscribe(id) }
}

// currentQueue is a small indirection so Controller callers have one place
// to go through; the queue itself is built once at New and never swapped.
func (e *Engine) currentQueue() *queue.Queue {
	return e.queue
}
