// Package ratelimit bounds how many rules are fetched at once and how quickly
// successive fetches start.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/pricewatch/internal/metrics"
)

const (
	// DefaultMaxConcurrent is used when Config.MaxConcurrent is not positive.
	DefaultMaxConcurrent = 5
	// DefaultMinDelay is used when Config.MinDelay is negative.
	DefaultMinDelay = 400 * time.Millisecond
)

// Config holds rate controller configuration.
type Config struct {
	MaxConcurrent int
	// MinDelay is the minimum spacing between two fetch starts. Zero disables pacing.
	MinDelay time.Duration
}

// Controller combines a concurrency bound with start pacing.
type Controller struct {
	sem      *semaphore.Weighted
	pacer    *rate.Limiter
	max      int
	inFlight atomic.Int64
}

// Permit is one unit of concurrency held by a caller.
type Permit struct {
	once sync.Once
	c    *Controller
}

// New creates a Controller.
func New(cfg Config) *Controller {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	minDelay := cfg.MinDelay
	if minDelay < 0 {
		minDelay = DefaultMinDelay
	}
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Controller{
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
		pacer: rate.NewLimiter(limit, 1),
		max:   maxConcurrent,
	}
}

// Acquire blocks until a concurrency slot is free or ctx is done.
func (c *Controller) Acquire(ctx context.Context) (*Permit, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire fetch slot: %w", err)
	}
	c.inFlight.Add(1)
	metrics.IncInFlight()
	return &Permit{c: c}, nil
}

// Release returns the slot. Calling it more than once is a no-op.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.c.inFlight.Add(-1)
		metrics.DecInFlight()
		p.c.sem.Release(1)
	})
}

// Pace blocks until at least MinDelay has passed since the previous start.
func (c *Controller) Pace(ctx context.Context) error {
	start := time.Now()
	if err := c.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

// Start acquires a permit and waits for the pacer. If pacing fails the
// permit is released before returning, so callers only release on success.
func (c *Controller) Start(ctx context.Context) (*Permit, error) {
	permit, err := c.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Pace(ctx); err != nil {
		permit.Release()
		return nil, err
	}
	return permit, nil
}

// Do runs fn while holding a paced permit. The permit is released on every
// exit path, including a panic in fn.
func (c *Controller) Do(ctx context.Context, fn func(context.Context) error) error {
	permit, err := c.Start(ctx)
	if err != nil {
		return err
	}
	defer permit.Release()
	return fn(ctx)
}

// InFlight reports how many permits are currently held.
func (c *Controller) InFlight() int {
	return int(c.inFlight.Load())
}

// Max reports the concurrency bound.
func (c *Controller) Max() int {
	return c.max
}
