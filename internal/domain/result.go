package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResultStatus is the four-valued classification produced by the classifier.
type ResultStatus string

const (
	ResultStatusHealthy  ResultStatus = "healthy"
	ResultStatusWarning  ResultStatus = "warning"
	ResultStatusCritical ResultStatus = "critical"
	ResultStatusError    ResultStatus = "error"
)

func (s ResultStatus) valid() bool {
	switch s {
	case ResultStatusHealthy, ResultStatusWarning, ResultStatusCritical, ResultStatusError:
		return true
	default:
		return false
	}
}

// Result is the classified, immutable outcome of one probe attempt.
type Result struct {
	ID             uuid.UUID
	JobID          uuid.UUID
	TargetName     string
	QueryName      string // SQL only
	Status         ResultStatus
	Message        string
	RawValue       string
	DurationMS     int64
	Timestamp      time.Time
	Provider       string
	Environment    string
	ServerVersion  string // SQL only
	DatabaseName   string // SQL only
	Tags           map[string]string
}

// NewResult builds a Result for a terminal (non-cancelled) job outcome.
func NewResult(job *Job, status ResultStatus, message, rawValue string, duration time.Duration, occurredAt time.Time) (*Result, error) {
	if !status.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	if duration < 0 {
		return nil, fmt.Errorf("result duration must be >= 0, got %s", duration)
	}
	return &Result{
		ID:         uuid.New(),
		JobID:      job.ID,
		TargetName: job.TargetName,
		QueryName:  job.QueryName,
		Status:     status,
		Message:    message,
		RawValue:   rawValue,
		DurationMS: duration.Milliseconds(),
		Timestamp:  occurredAt,
	}, nil
}
