// Package orchestrator runs many supervised instances of one command.
package orchestrator

import (
	"context"
	"time"

	"github.com/randomizedcoder/go-spawn/internal/supervisor"
)

// RampScheduler controls the rate at which instances are started.
// It ensures instances don't all start at once and adds per-instance
// jitter to prevent synchronization.
type RampScheduler struct {
	rate      int                      // instances per second
	maxJitter time.Duration            // maximum jitter per instance
	jitter    *supervisor.JitterSource // deterministic jitter source
}

// NewRampScheduler creates a new scheduler with the given rate and jitter.
func NewRampScheduler(rate int, maxJitter time.Duration) *RampScheduler {
	return &RampScheduler{
		rate:      rate,
		maxJitter: maxJitter,
		jitter:    supervisor.NewJitterSourceFromTime(),
	}
}

// NewRampSchedulerWithSeed creates a scheduler with a specific seed for reproducibility.
func NewRampSchedulerWithSeed(rate int, maxJitter time.Duration, seed int64) *RampScheduler {
	return &RampScheduler{
		rate:      rate,
		maxJitter: maxJitter,
		jitter:    supervisor.NewJitterSource(seed),
	}
}

// Delay returns how long to wait before starting instance N.
func (r *RampScheduler) Delay(instanceID int) time.Duration {
	// rate=5 means 1 instance per 200ms
	var baseDelay time.Duration
	if r.rate > 0 {
		baseDelay = time.Second / time.Duration(r.rate)
	}
	return baseDelay + r.jitter.InstanceJitter(instanceID, r.maxJitter)
}

// Schedule waits the appropriate amount of time before starting instance N.
// Returns nil on success, or context error if cancelled.
func (r *RampScheduler) Schedule(ctx context.Context, instanceID int) error {
	totalDelay := r.Delay(instanceID)
	if totalDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(totalDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EstimatedRampDuration returns the estimated time to start all instances.
func (r *RampScheduler) EstimatedRampDuration(totalInstances int) time.Duration {
	if r.rate <= 0 || totalInstances <= 1 {
		return 0
	}
	// The first instance starts immediately.
	baseTime := time.Duration(totalInstances-1) * time.Second / time.Duration(r.rate)
	avgJitter := r.maxJitter / 2
	return baseTime + avgJitter
}

// Rate returns the configured rate (instances per second).
func (r *RampScheduler) Rate() int {
	return r.rate
}

// MaxJitter returns the configured maximum jitter.
func (r *RampScheduler) MaxJitter() time.Duration {
	return r.maxJitter
}

// Seed returns the jitter seed, for reproducing a ramp.
func (r *RampScheduler) Seed() int64 {
	return r.jitter.Seed()
}
