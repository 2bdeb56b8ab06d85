package probe

import (
	"sync"
	"time"
)

type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half_open"
)

// CircuitBreakerConfig controls the HTTP transport breaker, per §7:
// 5 consecutive transport failures within 30s open the circuit for 30s;
// half-open allows exactly 1 trial probe; success closes, failure reopens.
type CircuitBreakerConfig struct {
	FailureThreshold int
	FailureWindow    time.Duration
	Cooldown         time.Duration
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns the §7 defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		FailureWindow:    30 * time.Second,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker gates HTTP transport attempts. Only transport-kind failures
// (DNS/TCP/TLS/connection-reset) count toward the threshold; HTTP responses,
// even 5xx, are a successful transport and reset the failure streak.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	mu  sync.Mutex

	state            breakerState
	failureTimes     []time.Time
	openedAt         time.Time
	halfOpenInFlight int
}

// NewCircuitBreaker builds a closed breaker with cfg, filling in defaults
// for any zero field.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{cfg: cfg, state: stateClosed}
}

// Allow reports whether a transport attempt may proceed now, at time now.
func (b *CircuitBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if now.Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = stateHalfOpen
			b.halfOpenInFlight = 0
			b.halfOpenInFlight++
			return true
		}
		return false
	case stateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return true
	}
}

// RecordTransportSuccess closes the circuit and clears the failure streak.
func (b *CircuitBreaker) RecordTransportSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
	b.state = stateClosed
	b.failureTimes = nil
}

// RecordTransportFailure registers a transport failure at time now. If in
// half-open, any failure reopens immediately. In closed state, the circuit
// opens once FailureThreshold failures have landed within FailureWindow.
func (b *CircuitBreaker) RecordTransportFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.open(now)
		return
	}

	b.failureTimes = append(b.failureTimes, now)
	cutoff := now.Add(-b.cfg.FailureWindow)
	kept := b.failureTimes[:0]
	for _, ft := range b.failureTimes {
		if ft.After(cutoff) {
			kept = append(kept, ft)
		}
	}
	b.failureTimes = kept

	if len(b.failureTimes) >= b.cfg.FailureThreshold {
		b.open(now)
	}
}

func (b *CircuitBreaker) open(now time.Time) {
	b.state = stateOpen
	b.openedAt = now
	b.failureTimes = nil
}

// State reports the current breaker state, for diagnostics and tests.
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.state)
}
