package queue

import "errors"

// ErrShuttingDown is returned by DequeueReady when the queue has been
// stopped and no job will ever become ready again.
var ErrShuttingDown = errors.New("queue is shutting down")

// ErrNotFound is returned when an operation names a job id the queue does
// not hold.
var ErrNotFound = errors.New("job not found in queue")

// ErrQueueFull is returned by Enqueue when the queue is at max_queue_depth;
// per §5 backpressure, the scheduler skips the trigger tick and increments
// queue_overflow_total rather than blocking.
var ErrQueueFull = errors.New("queue is at max depth")
