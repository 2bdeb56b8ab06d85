// Package metrics implements the Metrics Aggregator (C7): in-memory
// counters, durations, and derived rates, backed by prometheus/client_golang
// so the registry is scrapeable by cmd/apiserver's /metrics route.
// engine.GetMetricsSnapshot does not read these counters; it reports uptime
// and instance health only.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// durationBucketsMS are the fixed histogram buckets specified in §4.7.
var durationBucketsMS = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000}

// Aggregator owns the process's metric registry. All updates are atomic per
// counter; readers read per-metric values through the prometheus registry
// returned by Registry(), never under a single global lock (§4.7, §5).
type Aggregator struct {
	registry *prometheus.Registry

	probesStarted *prometheus.CounterVec
	probesResult  *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	heartbeats    prometheus.Counter
	queueOverflow prometheus.Counter
	droppedEvents *prometheus.CounterVec

	startedAt time.Time
}

// New builds an Aggregator with a fresh registry.
func New(startedAt time.Time) *Aggregator {
	registry := prometheus.NewRegistry()

	a := &Aggregator{
		registry:  registry,
		startedAt: startedAt,
		probesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probes_started_total",
			Help: "Count of probes dispatched, by target and kind.",
		}, []string{"target", "kind"}),
		probesResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probes_result_total",
			Help: "Count of classified probe results, by target, kind and status.",
		}, []string{"target", "kind", "status"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "probe_duration_ms",
			Help:    "Probe execution duration in milliseconds, by target and kind.",
			Buckets: durationBucketsMS,
		}, []string{"target", "kind"}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heartbeats_total",
			Help: "Count of heartbeats emitted by this worker instance.",
		}),
		queueOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_overflow_total",
			Help: "Count of trigger ticks skipped because the job queue was at max depth.",
		}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropped_events_total",
			Help: "Count of fan-out events dropped because a subscriber's buffer was full.",
		}, []string{"subscriber"}),
	}

	registry.MustRegister(a.probesStarted, a.probesResult, a.probeDuration, a.heartbeats, a.queueOverflow, a.droppedEvents)
	return a
}

// Registry exposes the underlying prometheus registry for promhttp.Handler.
func (a *Aggregator) Registry() *prometheus.Registry {
	return a.registry
}

// ProbeStarted records that a probe was dispatched.
func (a *Aggregator) ProbeStarted(target string, kind string) {
	a.probesStarted.WithLabelValues(target, kind).Inc()
}

// ProbeResult records a classified result and its duration.
func (a *Aggregator) ProbeResult(target, kind, status string, duration time.Duration) {
	a.probesResult.WithLabelValues(target, kind, status).Inc()
	a.probeDuration.WithLabelValues(target, kind).Observe(float64(duration.Milliseconds()))
}

// Heartbeat records one heartbeat emission.
func (a *Aggregator) Heartbeat() {
	a.heartbeats.Inc()
}

// QueueOverflow records one skipped trigger tick.
func (a *Aggregator) QueueOverflow() {
	a.queueOverflow.Inc()
}

// EventDropped records one fan-out drop for a full subscriber buffer.
func (a *Aggregator) EventDropped(subscriberID string) {
	a.droppedEvents.WithLabelValues(subscriberID).Inc()
}

// UptimeSeconds is the gauge computed at read time, per §4.7.
func (a *Aggregator) UptimeSeconds(now time.Time) float64 {
	return now.Sub(a.startedAt).Seconds()
}

// Reset zeros probes_started_total, probes_result_total, probe_duration_ms
// and dropped_events_total, one after another, for tests (§4.7). It does not
// reset heartbeats_total or queue_overflow_total, and concurrent updates may
// land between the individual resets.
func (a *Aggregator) Reset() {
	a.probesStarted.Reset()
	a.probesResult.Reset()
	a.probeDuration.Reset()
	a.droppedEvents.Reset()
	// Counter and Counter-backed single-value metrics cannot be reset
	// in place; callers that need a clean heartbeats/queueOverflow count
	// should build a new Aggregator (mirrors what a test harness does
	// between cases rather than mutating shared process state).
}
