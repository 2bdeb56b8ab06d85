// Package schedule implements the Clock & Trigger (C1): a 6-field cron
// expression is evaluated against a tick time (not wall-clock-now) so
// successive fire times never drift, and at most one pending trigger is
// buffered while a previous batch is still draining.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned by New when the cron expression has no
// future occurrence within the next year.
var ErrInvalidSchedule = errors.New("schedule: cron expression has no occurrence in the next 365 days")

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger emits a tick each time the cron expression fires. Ticks carry the
// scheduled fire time, not the time the consumer observes it, so job
// scheduling stays anchored to the cron grid even under load.
type Trigger struct {
	schedule cron.Schedule
	clock    func() time.Time
	ticks    chan time.Time
	stop     chan struct{}
}

// New parses expr (6-field: sec min hour dom mon dow) and validates that it
// fires at least once within the next 365 days, per §4.1.
func New(expr string) (*Trigger, error) {
	return newWithClock(expr, time.Now)
}

func newWithClock(expr string, clock func() time.Time) (*Trigger, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid cron expression %q: %w", expr, err)
	}

	now := clock()
	next := sched.Next(now)
	if next.IsZero() || next.After(now.AddDate(1, 0, 0)) {
		return nil, ErrInvalidSchedule
	}

	return &Trigger{
		schedule: sched,
		clock:    clock,
		ticks:    make(chan time.Time, 1),
		stop:     make(chan struct{}),
	}, nil
}

// Run drives the trigger loop until ctx is cancelled. It computes each next
// fire time from the previous tick time rather than wall-clock-now, so a
// slow consumer never causes the schedule itself to drift (§4.1). A tick
// that fires while the channel still holds an undrained tick is coalesced:
// the buffered value is simply overwritten with the newer fire time.
func (t *Trigger) Run(ctx context.Context) {
	from := t.clock()
	for {
		next := t.schedule.Next(from)
		d := next.Sub(t.clock())
		if d < 0 {
			d = 0
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-t.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		select {
		case t.ticks <- next:
		default:
			// Previous tick still undrained; replace it rather than block,
			// coalescing to at most one pending trigger.
			select {
			case <-t.ticks:
			default:
			}
			t.ticks <- next
		}

		from = next
	}
}

// Ticks returns the channel of fire times. Exactly one tick is ever
// buffered; a slow reader observes only the most recent fire time.
func (t *Trigger) Ticks() <-chan time.Time {
	return t.ticks
}

// Stop halts the trigger loop. Safe to call once; does not emit a final tick.
func (t *Trigger) Stop() {
	close(t.stop)
}
