package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThresholdWithinWindow(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, FailureWindow: time.Second, Cooldown: time.Second})
	now := time.Now()

	assert.True(t, b.Allow(now))
	b.RecordTransportFailure(now)
	assert.True(t, b.Allow(now))
	b.RecordTransportFailure(now)
	assert.True(t, b.Allow(now))
	b.RecordTransportFailure(now)

	assert.False(t, b.Allow(now), "breaker opens on the third failure within the window")
}

func TestBreakerFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, FailureWindow: 10 * time.Millisecond, Cooldown: time.Second})
	start := time.Now()

	b.RecordTransportFailure(start)
	later := start.Add(50 * time.Millisecond)
	assert.True(t, b.Allow(later))
	b.RecordTransportFailure(later)

	assert.True(t, b.Allow(later), "the first failure fell outside the window and should not count")
}

func TestBreakerHalfOpenAllowsOneProbeThenCloses(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, FailureWindow: time.Second, Cooldown: 10 * time.Millisecond})
	start := time.Now()

	b.RecordTransportFailure(start)
	assert.False(t, b.Allow(start))

	afterCooldown := start.Add(20 * time.Millisecond)
	assert.True(t, b.Allow(afterCooldown), "half-open admits a trial probe after cooldown")
	assert.False(t, b.Allow(afterCooldown), "half-open only admits one in-flight probe")

	b.RecordTransportSuccess(afterCooldown)
	assert.Equal(t, "closed", b.State())
	assert.True(t, b.Allow(afterCooldown))
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, FailureWindow: time.Second, Cooldown: 10 * time.Millisecond})
	start := time.Now()
	b.RecordTransportFailure(start)

	afterCooldown := start.Add(20 * time.Millisecond)
	require := assert.New(t)
	require.True(b.Allow(afterCooldown))
	b.RecordTransportFailure(afterCooldown)
	require.Equal("open", b.State())
}
