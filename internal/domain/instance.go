package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InstanceStatus is the Worker Lifecycle state (C10).
type InstanceStatus string

const (
	InstanceStarting InstanceStatus = "starting"
	InstanceRunning  InstanceStatus = "running"
	InstanceStopping InstanceStatus = "stopping"
	InstanceStopped  InstanceStatus = "stopped"
	InstanceError    InstanceStatus = "error"
)

// Instance is the Worker Instance Record (C10 owns the mutable copy; the
// store holds the durable mirror).
type Instance struct {
	ID             uuid.UUID
	Name           string
	Host           string
	PID            int
	Version        string
	Environment    string
	Status         InstanceStatus
	StartedAt      time.Time
	StoppedAt      *time.Time
	LastHeartbeat  time.Time
	Tags           map[string]string
}

// NewInstance starts a new Worker Instance Record in the Starting state.
func NewInstance(name, host, version, environment string, pid int, now time.Time) *Instance {
	return &Instance{
		ID:            uuid.New(),
		Name:          name,
		Host:          host,
		PID:           pid,
		Version:       version,
		Environment:   environment,
		Status:        InstanceStarting,
		StartedAt:     now,
		LastHeartbeat: now,
		Tags:          map[string]string{},
	}
}

var instanceTransitions = map[InstanceStatus]map[InstanceStatus]bool{
	InstanceStarting: {InstanceRunning: true, InstanceError: true},
	InstanceRunning:  {InstanceStopping: true, InstanceError: true},
	InstanceStopping: {InstanceStopped: true, InstanceError: true},
}

// Transition moves the instance to the next lifecycle state, validating the
// state machine defined in §4.10.
func (i *Instance) Transition(to InstanceStatus, at time.Time) error {
	allowed := instanceTransitions[i.Status]
	if !allowed[to] {
		return fmt.Errorf("instance %s: illegal transition %s -> %s", i.ID, i.Status, to)
	}
	i.Status = to
	if to == InstanceStopped || to == InstanceError {
		i.StoppedAt = &at
	}
	return nil
}

// Heartbeat advances last_heartbeat. It rejects a non-monotonic update.
func (i *Instance) Heartbeat(at time.Time) error {
	if at.Before(i.LastHeartbeat) {
		return fmt.Errorf("instance %s: heartbeat at %s precedes previous %s", i.ID, at, i.LastHeartbeat)
	}
	i.LastHeartbeat = at
	return nil
}

// HealthStatus is the externally-observed classification of an instance's
// heartbeat freshness (§4.10 "external instance healthy classifier").
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// ClassifyHealth implements the §4.10 classifier: Healthy if running and
// within one heartbeat interval, Warning within two intervals, Critical otherwise.
func ClassifyHealth(status InstanceStatus, lastHeartbeat, now time.Time, interval time.Duration) HealthStatus {
	if status != InstanceRunning {
		return HealthCritical
	}
	age := now.Sub(lastHeartbeat)
	switch {
	case age <= interval:
		return HealthHealthy
	case age <= 2*interval:
		return HealthWarning
	default:
		return HealthCritical
	}
}
