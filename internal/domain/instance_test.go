package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceTransitions(t *testing.T) {
	now := time.Now()
	inst := NewInstance("worker-1", "host-a", "1.0.0", "prod", 1234, now)
	assert.Equal(t, InstanceStarting, inst.Status)

	require.NoError(t, inst.Transition(InstanceRunning, now))
	require.Error(t, inst.Transition(InstanceStarting, now), "no transition back to starting")

	require.NoError(t, inst.Transition(InstanceStopping, now))
	require.NoError(t, inst.Transition(InstanceStopped, now.Add(time.Second)))
	require.NotNil(t, inst.StoppedAt)
}

func TestInstanceHeartbeatMustBeMonotonic(t *testing.T) {
	now := time.Now()
	inst := NewInstance("worker-1", "host-a", "1.0.0", "prod", 1234, now)

	require.NoError(t, inst.Heartbeat(now.Add(time.Second)))
	assert.Error(t, inst.Heartbeat(now))
}

func TestClassifyHealth(t *testing.T) {
	now := time.Now()
	interval := 30 * time.Second

	assert.Equal(t, HealthHealthy, ClassifyHealth(InstanceRunning, now.Add(-10*time.Second), now, interval))
	assert.Equal(t, HealthWarning, ClassifyHealth(InstanceRunning, now.Add(-45*time.Second), now, interval))
	assert.Equal(t, HealthCritical, ClassifyHealth(InstanceRunning, now.Add(-61*time.Second), now, interval))
	assert.Equal(t, HealthCritical, ClassifyHealth(InstanceStopped, now, now, interval))
}
