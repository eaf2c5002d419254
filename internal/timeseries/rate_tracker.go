// Package timeseries computes rolling event rates.
//
// A RateTracker counts events (child output lines, restarts) and keeps a
// ring of periodic samples of the running total. Rates over a window are
// the difference between now and the sample closest to the window start.
//
// Thread-safe: Add() is lock-free, Stats() and RecordSample() lock the ring.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (2 minutes at 1 sample/sec)
	ringBufferSize = 120

	window1s  = 1 * time.Second
	window30s = 30 * time.Second
	window60s = 60 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type sample struct {
	timestamp time.Time
	total     int64
}

// RateTracker tracks a cumulative event count and its rolling rates.
//
// Usage:
//
//	tracker := NewRateTracker()
//	tracker.Add(1)           // per event, from any goroutine
//	tracker.RecordSample()   // every second, from a ticker
//	stats := tracker.Stats() // for the dashboard
type RateTracker struct {
	total atomic.Int64

	samples  []sample
	writeIdx int
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// RateStats contains rolling rates at a point in time, in events per second.
type RateStats struct {
	Total       int64
	Rate1s      float64
	Rate30s     float64
	Rate60s     float64
	RateOverall float64
}

// NewRateTracker creates a tracker with the real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// Add adds n events. Non-positive values are ignored.
func (t *RateTracker) Add(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// RecordSample records the current total.
func (t *RateTracker) RecordSample() {
	s := sample{timestamp: t.clock.Now(), total: t.total.Load()}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// Stats computes the current rates. With less history than a window, the
// rate is taken over the available history.
func (t *RateTracker) Stats() RateStats {
	now := t.clock.Now()
	total := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{Total: total}
	if elapsed := now.Sub(t.startTime).Seconds(); elapsed > 0 {
		stats.RateOverall = float64(total) / elapsed
	}
	stats.Rate1s = t.rateOverWindow(now, total, window1s)
	stats.Rate30s = t.rateOverWindow(now, total, window30s)
	stats.Rate60s = t.rateOverWindow(now, total, window60s)
	return stats
}

// rateOverWindow must be called with mu held.
func (t *RateTracker) rateOverWindow(now time.Time, total int64, window time.Duration) float64 {
	target := now.Add(-window)

	// Newest sample at or before the window start.
	var best *sample
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		if best == nil || s.timestamp.After(best.timestamp) {
			best = s
		}
	}
	if best == nil {
		best = t.oldestSample()
	}

	elapsed := now.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total-best.total) / elapsed
}

// oldestSample must be called with mu held.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
func (t *RateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.Store(0)
	t.samples = append(t.samples[:0], sample{timestamp: now})
	t.writeIdx = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring buffer.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
