package store

import (
	"context"
	"time"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

// Repository is the durable backend a Batcher flushes batches to. A single
// call to InsertResults must be atomic with the terminal-state update of
// each result's owning job, per §4.9.
type Repository interface {
	InsertResults(ctx context.Context, results []*domain.Result, jobs []*domain.Job) error
	UpsertInstance(ctx context.Context, instance *domain.Instance) error
	// ListResults answers §6's list_results(filter) interface, ordered by
	// (target, occurred_at DESC) as §6's persisted-state shape specifies.
	ListResults(ctx context.Context, filter ResultFilter) ([]*domain.Result, error)
	// DeleteJobsOlderThan removes terminal worker_jobs rows and their
	// probe_results, scheduled before cutoff, in batches of at most limit
	// rows, returning the number of jobs removed. This is the janitor sweep
	// named in §3's Probe Job lifecycle clause.
	DeleteJobsOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	Close(ctx context.Context) error
}

// ResultFilter narrows ListResults per §6: "filter keys: target, query,
// status, environment, time-range, page, page-size ≤ 200".
type ResultFilter struct {
	Target      string
	Query       string
	Status      domain.ResultStatus // empty means any
	Environment string
	Since       time.Time // zero means unbounded
	Until       time.Time // zero means unbounded
	Page        int       // 1-based; 0 is treated as 1
	PageSize    int       // values below 1 default to 50; capped at MaxPageSize
}

// MaxPageSize is the page-size ceiling §6 specifies for list_results.
const MaxPageSize = 200

// Normalize returns a copy of f with §6's page/page-size defaults and
// ceiling applied; f itself is not modified.
func (f ResultFilter) Normalize() ResultFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 50
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the SQL OFFSET implied by Page/PageSize after Normalize.
func (f ResultFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
