package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovernorAcquireHTTPBlocksWhenFull(t *testing.T) {
	g := NewGovernor(1, 1, 0)

	release, err := g.AcquireHTTP(context.Background(), time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.AcquireHTTP(ctx, time.Second)
	assert.Error(t, err, "second acquire blocks until context deadline")

	release()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	release2, err := g.AcquireHTTP(ctx2, time.Second)
	require.NoError(t, err)
	release2()
}

func TestGovernorResourceExhaustedCeiling(t *testing.T) {
	g := NewGovernor(1, 1, 20*time.Millisecond)

	release, err := g.AcquireHTTP(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	_, err = g.AcquireHTTP(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrResourceExhausted)
}

func TestGovernorSerializesPerConnection(t *testing.T) {
	g := NewGovernor(5, 5, 0)

	releaseA, err := g.AcquireDB(context.Background(), "primary", true, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.AcquireDB(ctx, "primary", true, time.Second)
	assert.Error(t, err, "serialized connection rejects a second concurrent probe")

	releaseA()
}

func TestGovernorConcurrentByDefault(t *testing.T) {
	g := NewGovernor(5, 5, 0)

	releaseA, err := g.AcquireDB(context.Background(), "primary", false, time.Second)
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := g.AcquireDB(context.Background(), "primary", false, time.Second)
	require.NoError(t, err)
	defer releaseB()
}
