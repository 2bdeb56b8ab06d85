package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsScheduleWithNoNearOccurrence(t *testing.T) {
	// Feb 29 only occurs on leap years; from a non-leap-adjacent date this
	// is further than 365 days out.
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := newWithClock("0 0 0 29 2 *", func() time.Time { return fixed })
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestNewRejectsMalformedExpression(t *testing.T) {
	_, err := New("not a cron expression")
	require.Error(t, err)
}

func TestNewAcceptsEveryMinute(t *testing.T) {
	tr, err := New("0 * * * * *")
	require.NoError(t, err)
	require.NotNil(t, tr)
}

func TestRunEmitsTickAndStopsOnContextCancel(t *testing.T) {
	tr, err := New("* * * * * *") // every second
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()

	select {
	case <-tr.Ticks():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a tick within 2s of an every-second schedule")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRunStopsOnExplicitStop(t *testing.T) {
	tr, err := New("* * * * * *")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		tr.Run(context.Background())
		close(done)
	}()

	tr.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
