package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrResourceExhausted is returned when a slot acquisition waits longer than
// its hard ceiling (default 2x the probe timeout), per §4.3.
var ErrResourceExhausted = errors.New("resource exhausted")

// semaphore is a buffered-channel counting semaphore. Release is safe to
// call from a deferred statement on every exit path, including panics.
type semaphore chan struct{}

func newSemaphore(capacity int) semaphore {
	return make(semaphore, capacity)
}

func (s semaphore) acquire(ctx context.Context, ceiling time.Duration) (func(), error) {
	var timeout <-chan time.Time
	if ceiling > 0 {
		timer := time.NewTimer(ceiling)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case s <- struct{}{}:
		released := false
		release := func() {
			if released {
				return
			}
			released = true
			<-s
		}
		return release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, fmt.Errorf("%w: wait exceeded %s", ErrResourceExhausted, ceiling)
	}
}

// Governor bounds in-flight probe work with two global semaphores (HTTP and
// DB slots) and an optional per-connection mutex for targets that request
// serialized ("one at a time") execution. The default is concurrent.
type Governor struct {
	http semaphore
	db   semaphore

	connMu   sync.Mutex
	connLock map[string]semaphore

	ceiling time.Duration
}

// NewGovernor builds a Governor with the given slot capacities. ceiling is
// the hard wait ceiling before ErrResourceExhausted; pass 0 to derive it as
// 2x the caller's own timeout at acquisition time.
func NewGovernor(httpSlots, dbSlots int, ceiling time.Duration) *Governor {
	return &Governor{
		http:     newSemaphore(httpSlots),
		db:       newSemaphore(dbSlots),
		connLock: make(map[string]semaphore),
		ceiling:  ceiling,
	}
}

// AcquireHTTP blocks until an HTTP slot is available, ctx is cancelled, or
// the wait exceeds the hard ceiling. The returned release func is idempotent
// and must be deferred immediately so it runs on every exit path.
func (g *Governor) AcquireHTTP(ctx context.Context, timeout time.Duration) (func(), error) {
	return g.http.acquire(ctx, g.ceilingFor(timeout))
}

// AcquireDB blocks until a DB slot is available for targetName. If the
// target requested serialized execution, it also takes that target's
// exclusive lock, held until the returned release func runs.
func (g *Governor) AcquireDB(ctx context.Context, targetName string, serialize bool, timeout time.Duration) (func(), error) {
	releaseSlot, err := g.db.acquire(ctx, g.ceilingFor(timeout))
	if err != nil {
		return nil, err
	}

	if !serialize {
		return releaseSlot, nil
	}

	lock := g.connectionLock(targetName)
	releaseLock, err := lock.acquire(ctx, g.ceilingFor(timeout))
	if err != nil {
		releaseSlot()
		return nil, err
	}

	return func() {
		releaseLock()
		releaseSlot()
	}, nil
}

// connectionLock returns the single-slot semaphore serializing probes
// against targetName's connection, creating it on first use. A semaphore is
// used instead of a sync.Mutex so acquisition can select on ctx cancellation
// without leaking a goroutine that later locks a mutex nobody unlocks.
func (g *Governor) connectionLock(name string) semaphore {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	lock, ok := g.connLock[name]
	if !ok {
		lock = newSemaphore(1)
		g.connLock[name] = lock
	}
	return lock
}

func (g *Governor) ceilingFor(timeout time.Duration) time.Duration {
	if g.ceiling > 0 {
		return g.ceiling
	}
	if timeout > 0 {
		return 2 * timeout
	}
	return 0
}
