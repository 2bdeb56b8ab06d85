// Package engine implements the Worker Lifecycle (C10): the state machine
// that owns the Clock & Trigger, Job Queue, Concurrency Governor, probe
// executors, classifier, metrics, fan-out and store writer, and exposes the
// Controller surface collaborators use to drive and observe a running
// instance.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/watchkeeper/watchkeeper/internal/domain"
	"github.com/watchkeeper/watchkeeper/internal/store"
)

// MetricsSnapshot is a point-in-time read of the aggregator, shaped for
// external callers rather than prometheus's own types.
type MetricsSnapshot struct {
	UptimeSeconds float64
	InstanceID    uuid.UUID
	Status        domain.InstanceStatus
	Health        domain.HealthStatus
}

// Controller is the external surface described in §6: trigger probes on
// demand, cancel or retry a queued job, and read back metrics/results, plus
// subscribe to the live event stream.
type Controller interface {
	TriggerAll(ctx context.Context) error
	TriggerTarget(ctx context.Context, targetName string) error
	CancelJob(ctx context.Context, jobID uuid.UUID) (bool, error)
	RetryJob(ctx context.Context, jobID uuid.UUID) error
	GetMetricsSnapshot(ctx context.Context, now time.Time) MetricsSnapshot
	ListResults(ctx context.Context, filter store.ResultFilter) ([]*domain.Result, error)
	Subscribe(principal string, roles []string, permissions []domain.Permission, groups []domain.Group, bufferSize int) (id string, events <-chan *domain.Result, unsubscribe func())
}
