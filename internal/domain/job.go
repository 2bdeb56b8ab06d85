package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a Probe Job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// terminal reports whether a JobStatus has no further transitions.
func (s JobStatus) terminal() bool {
	switch s {
	case JobCompleted, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is a Probe Job: the scheduling record for one probe attempt.
// Zero value is not valid; construct with NewJob.
type Job struct {
	ID            uuid.UUID
	InstanceID    uuid.UUID
	Kind          TargetKind
	TargetName    string
	QueryName     string // set only when Kind == TargetKindSQL
	Priority      int    // 1..10, lower fires sooner
	ScheduledAt   time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Status        JobStatus
	RetryCount    int
	MaxRetries    int
	NextRetryAt   *time.Time
	ResultStatus  *ResultStatus
	ResultMessage string
}

// NewJob builds a queued Job for one target at the given scheduled time.
func NewJob(instanceID uuid.UUID, kind TargetKind, targetName, queryName string, priority int, scheduledAt time.Time, maxRetries int) (*Job, error) {
	if priority < 1 || priority > 10 {
		return nil, fmt.Errorf("job priority %d outside [1,10]", priority)
	}
	if kind == TargetKindSQL && queryName == "" {
		return nil, fmt.Errorf("sql job requires a query name")
	}
	return &Job{
		ID:          uuid.New(),
		InstanceID:  instanceID,
		Kind:        kind,
		TargetName:  targetName,
		QueryName:   queryName,
		Priority:    priority,
		ScheduledAt: scheduledAt,
		Status:      JobQueued,
		MaxRetries:  maxRetries,
	}, nil
}

// Ready reports whether the job is eligible for dequeue at time now.
func (j *Job) Ready(now time.Time) bool {
	if j.Status != JobQueued {
		return false
	}
	if j.ScheduledAt.After(now) {
		return false
	}
	if j.NextRetryAt != nil && j.NextRetryAt.After(now) {
		return false
	}
	return true
}

// Start transitions Queued -> Running, recording the start time.
func (j *Job) Start(at time.Time) error {
	if j.Status != JobQueued {
		return fmt.Errorf("%w: job %s is %s, not queued", ErrJobNotClaimable, j.ID, j.Status)
	}
	if at.Before(j.ScheduledAt) {
		return fmt.Errorf("job %s: started_at precedes scheduled_at", j.ID)
	}
	j.Status = JobRunning
	j.StartedAt = &at
	return nil
}

// Complete transitions Running -> Completed, recording the classified result.
func (j *Job) Complete(at time.Time, status ResultStatus, message string) error {
	if j.Status != JobRunning {
		return fmt.Errorf("job %s: cannot complete from %s", j.ID, j.Status)
	}
	if j.StartedAt != nil && at.Before(*j.StartedAt) {
		return fmt.Errorf("job %s: completed_at precedes started_at", j.ID)
	}
	j.Status = JobCompleted
	j.CompletedAt = &at
	j.ResultStatus = &status
	j.ResultMessage = message
	return nil
}

// Cancel transitions Queued -> Cancelled. It is idempotent: cancelling an
// already-cancelled job returns (false, nil); cancelling a Running job
// returns (false, nil) since only queued jobs may be cancelled this way.
func (j *Job) Cancel(at time.Time) (cancelled bool, err error) {
	switch j.Status {
	case JobCancelled:
		return false, nil
	case JobQueued:
		j.Status = JobCancelled
		j.CompletedAt = &at
		return true, nil
	default:
		return false, nil
	}
}

// Fail transitions Running -> Failed and stores the caller-supplied
// nextRetryAt (nil when no retry is scheduled); it does not compute backoff.
func (j *Job) Fail(at time.Time, message string, nextRetryAt *time.Time) error {
	if j.Status != JobRunning {
		return fmt.Errorf("job %s: cannot fail from %s", j.ID, j.Status)
	}
	errStatus := ResultStatusError
	j.Status = JobFailed
	j.CompletedAt = &at
	j.ResultStatus = &errStatus
	j.ResultMessage = message
	j.NextRetryAt = nextRetryAt
	return nil
}

// Requeue moves a Failed job awaiting retry back to Queued, incrementing
// retry_count. Returns ErrRetriesExhausted if max_retries has been reached.
func (j *Job) Requeue(now time.Time) error {
	if j.Status != JobFailed {
		return fmt.Errorf("job %s: cannot requeue from %s", j.ID, j.Status)
	}
	if j.RetryCount >= j.MaxRetries {
		return ErrRetriesExhausted
	}
	j.RetryCount++
	j.Status = JobQueued
	j.ScheduledAt = now
	j.CompletedAt = nil
	j.ResultStatus = nil
	j.ResultMessage = ""
	return nil
}

// Terminal reports whether the job has left Running for good (Completed or Cancelled).
func (j *Job) Terminal() bool {
	return j.Status.terminal()
}
