package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerBoundsConcurrency(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxConcurrent: 5, MinDelay: 0})

	var (
		current atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Do(context.Background(), func(context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, peak.Load(), int64(5))
	require.Positive(t, peak.Load())
	require.Equal(t, 0, c.InFlight())
}

func TestControllerPacesStarts(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxConcurrent: 10, MinDelay: 50 * time.Millisecond})
	ctx := context.Background()

	var starts []time.Time
	for range 3 {
		require.NoError(t, c.Pace(ctx))
		starts = append(starts, time.Now())
	}

	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		require.GreaterOrEqual(t, gap, 40*time.Millisecond, "gap %d was %v", i, gap)
	}
}

func TestControllerReleasesOnError(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxConcurrent: 1})
	boom := errors.New("boom")

	err := c.Do(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, c.InFlight())

	require.NoError(t, c.Do(context.Background(), func(context.Context) error { return nil }))
}

func TestControllerReleasesOnPanic(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxConcurrent: 1})

	require.Panics(t, func() {
		_ = c.Do(context.Background(), func(context.Context) error { panic("kaboom") })
	})
	require.Equal(t, 0, c.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	permit, err := c.Acquire(ctx)
	require.NoError(t, err)
	permit.Release()
}

func TestControllerAcquireHonorsCancellation(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxConcurrent: 1})
	held, err := c.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, c.InFlight())
}

func TestControllerReleasesWhenPaceCanceled(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxConcurrent: 1, MinDelay: time.Hour})
	require.NoError(t, c.Pace(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := c.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
	require.Equal(t, 0, c.InFlight())
}

func TestControllerStartReleasesWhenPaceFails(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxConcurrent: 1, MinDelay: time.Hour})
	first, err := c.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, c.InFlight())
	first.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	permit, err := c.Start(ctx)
	require.Error(t, err)
	require.Nil(t, permit)
	require.Equal(t, 0, c.InFlight())

	// The slot is free again for an unpaced acquire.
	again, err := c.Acquire(context.Background())
	require.NoError(t, err)
	again.Release()
}

func TestPermitReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxConcurrent: 2})
	p, err := c.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, c.InFlight())

	p.Release()
	p.Release()
	require.Equal(t, 0, c.InFlight())

	var nilPermit *Permit
	nilPermit.Release()
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxConcurrent: 0, MinDelay: -1})
	require.Equal(t, DefaultMaxConcurrent, c.Max())
	require.InDelta(t, 1/DefaultMinDelay.Seconds(), float64(c.pacer.Limit()), 0.001)
}
