// Package queue implements the Job Queue (C2): a priority-ordered,
// FIFO-within-priority queue of Probe Jobs, and the Concurrency Governor
// (C3): bounded semaphores gating how many probes of each resource class
// run at once.
//
// The queue itself is a single mutex-guarded structure (§5 "Job Queue (C2):
// serialized internally... lock-free is an optimization"), grounded on the
// claim/requeue/dead-letter shape of a generation job coordinator, adapted
// here to an in-memory structure with a durable mirror written by the
// result store rather than a SQL-backed claim.
package queue

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

// Queue holds queued Probe Jobs in memory. The zero value is not usable;
// construct with New.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     map[uuid.UUID]*domain.Job
	stopped  bool
	maxDepth int

	// pollInterval bounds how long DequeueReady sleeps before re-checking
	// jobs whose readiness depends on wall-clock time (scheduled_at,
	// next_retry_at) rather than a queue mutation.
	pollInterval time.Duration
}

// New builds an empty Queue. maxDepth <= 0 means unbounded.
func New(maxDepth int) *Queue {
	q := &Queue{
		jobs:         make(map[uuid.UUID]*domain.Job),
		maxDepth:     maxDepth,
		pollInterval: 100 * time.Millisecond,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Depth returns the number of jobs currently held (any non-terminal status).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Enqueue inserts a job. It is idempotent by job id: re-enqueueing a known
// id leaves its state unchanged and returns nil.
func (q *Queue) Enqueue(job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrShuttingDown
	}
	if _, exists := q.jobs[job.ID]; exists {
		return nil
	}
	if q.maxDepth > 0 && len(q.jobs) >= q.maxDepth {
		return ErrQueueFull
	}

	q.jobs[job.ID] = job
	q.cond.Broadcast()
	return nil
}

// ready returns the queued jobs eligible for dispatch at now, ordered by
// the §4.2 tiebreak: priority asc, then scheduled_at asc, then id asc.
func (q *Queue) ready(now time.Time) []*domain.Job {
	var candidates []*domain.Job
	for _, j := range q.jobs {
		if j.Ready(now) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(i, k int) bool {
		a, b := candidates[i], candidates[k]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return candidates
}

// DequeueReady blocks until a ready job exists, the queue stops, or ctx is
// cancelled. On success the returned job has already transitioned to
// Running.
func (q *Queue) DequeueReady(ctx context.Context) (*domain.Job, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.stopped {
			return nil, ErrShuttingDown
		}

		now := time.Now()
		ready := q.ready(now)
		if len(ready) > 0 {
			job := ready[0]
			if err := job.Start(now); err != nil {
				return nil, err
			}
			return job, nil
		}

		waitDone := make(chan struct{})
		timer := time.AfterFunc(q.pollInterval, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
			close(waitDone)
		})
		q.cond.Wait()
		timer.Stop()
		select {
		case <-waitDone:
		default:
		}
	}
}

// Cancel transitions a Queued job to Cancelled. Returns (false, nil) if the
// job does not exist, is already cancelled, or has already been dispatched —
// per §8's idempotence law, a second cancel is not an error.
func (q *Queue) Cancel(id uuid.UUID, at time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return false, nil
	}
	cancelled, err := job.Cancel(at)
	if err != nil {
		return false, err
	}
	if cancelled {
		delete(q.jobs, id)
	}
	q.cond.Broadcast()
	return cancelled, nil
}

// RequeueWithBackoff computes the next retry time for a failed attempt:
// now + min(maxBackoff, base*2^(attempt-1)) with +/-20% jitter, per §4.2/§7.
// It touches no job; the max_retries check happens in domain.Job.Requeue,
// which Queue.Requeue calls.
func RequeueWithBackoff(attempt int, base, maxBackoff time.Duration, now time.Time) time.Time {
	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	jitterRange := float64(backoff) * 0.2
	jitter := (rand.Float64()*2 - 1) * jitterRange
	delay := time.Duration(float64(backoff) + jitter)
	if delay < 0 {
		delay = 0
	}
	return now.Add(delay)
}

// Requeue moves a Failed job back to Queued with the given retry time and
// re-admits it to the queue so DequeueReady can see it again.
func (q *Queue) Requeue(job *domain.Job, nextRetryAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.NextRetryAt = &nextRetryAt
	if err := job.Requeue(nextRetryAt); err != nil {
		return err
	}
	q.jobs[job.ID] = job
	q.cond.Broadcast()
	return nil
}

// Get returns the job with the given id, if it is still held in memory.
func (q *Queue) Get(id uuid.UUID) (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	return job, ok
}

// Retry forces an immediate retry of a Failed job, bypassing the normal
// backoff delay, by requeuing it with next_retry_at = now. Returns
// ErrNotFound if id is unknown.
func (q *Queue) Retry(id uuid.UUID, now time.Time) error {
	q.mu.Lock()
	job, ok := q.jobs[id]
	q.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return q.Requeue(job, now)
}

// Remove drops a terminal job from the in-memory set (it remains in the
// durable store until the janitor's retention sweep removes it there too).
func (q *Queue) Remove(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, id)
}

// Stop marks the queue as shutting down; blocked DequeueReady callers
// observe ErrShuttingDown instead of waiting forever.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	q.cond.Broadcast()
}
