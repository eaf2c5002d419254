package timeseries

import (
	"math"
	"sync"
	"testing"
	"time"
)

// mockClock is a deterministic clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{now: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.001
}

func TestRateTracker_Add(t *testing.T) {
	tests := []struct {
		name string
		adds []int64
		want int64
	}{
		{"single", []int64{5}, 5},
		{"multiple", []int64{1, 2, 3}, 6},
		{"ignores zero", []int64{0, 4}, 4},
		{"ignores negative", []int64{-3, 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewRateTrackerWithClock(newMockClock(time.Unix(0, 0)))
			for _, n := range tt.adds {
				tracker.Add(n)
			}
			if got := tracker.Stats().Total; got != tt.want {
				t.Errorf("Total = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRateTracker_RollingRates(t *testing.T) {
	clock := newMockClock(time.Unix(1000, 0))
	tracker := NewRateTrackerWithClock(clock)

	// 10 events per second for 60 seconds, then 100 per second for 1 second.
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		tracker.Add(10)
		tracker.RecordSample()
	}
	clock.Advance(time.Second)
	tracker.Add(100)
	tracker.RecordSample()

	stats := tracker.Stats()
	if stats.Total != 700 {
		t.Errorf("Total = %d, want 700", stats.Total)
	}
	if !approx(stats.Rate1s, 100) {
		t.Errorf("Rate1s = %v, want 100", stats.Rate1s)
	}
	if want := float64(29*10+100) / 30; !approx(stats.Rate30s, want) {
		t.Errorf("Rate30s = %v, want %v", stats.Rate30s, want)
	}
	if want := float64(59*10+100) / 60; !approx(stats.Rate60s, want) {
		t.Errorf("Rate60s = %v, want %v", stats.Rate60s, want)
	}
	if want := 700.0 / 61; !approx(stats.RateOverall, want) {
		t.Errorf("RateOverall = %v, want %v", stats.RateOverall, want)
	}
}

func TestRateTracker_ShortHistory(t *testing.T) {
	clock := newMockClock(time.Unix(0, 0))
	tracker := NewRateTrackerWithClock(clock)

	clock.Advance(2 * time.Second)
	tracker.Add(8)

	// Only the initial sample exists: every window uses it.
	stats := tracker.Stats()
	for name, got := range map[string]float64{"1s": stats.Rate1s, "30s": stats.Rate30s, "60s": stats.Rate60s} {
		if !approx(got, 4) {
			t.Errorf("Rate%s = %v, want 4", name, got)
		}
	}
}

func TestRateTracker_NoElapsedTime(t *testing.T) {
	tracker := NewRateTrackerWithClock(newMockClock(time.Unix(0, 0)))
	tracker.Add(10)
	stats := tracker.Stats()
	if stats.Rate1s != 0 || stats.RateOverall != 0 {
		t.Errorf("stats = %+v, want zero rates", stats)
	}
}

func TestRateTracker_RingBufferOverflow(t *testing.T) {
	clock := newMockClock(time.Unix(0, 0))
	tracker := NewRateTrackerWithClock(clock)

	for i := 0; i < ringBufferSize*2; i++ {
		clock.Advance(time.Second)
		tracker.Add(1)
		tracker.RecordSample()
	}
	if got := tracker.SampleCount(); got != ringBufferSize {
		t.Errorf("SampleCount() = %d, want %d", got, ringBufferSize)
	}
	if stats := tracker.Stats(); !approx(stats.Rate60s, 1) {
		t.Errorf("Rate60s = %v, want 1", stats.Rate60s)
	}
}

func TestRateTracker_Reset(t *testing.T) {
	clock := newMockClock(time.Unix(0, 0))
	tracker := NewRateTrackerWithClock(clock)
	clock.Advance(time.Second)
	tracker.Add(50)
	tracker.RecordSample()

	tracker.Reset()
	if tracker.Stats().Total != 0 || tracker.SampleCount() != 1 {
		t.Errorf("after Reset: total = %d, samples = %d", tracker.Stats().Total, tracker.SampleCount())
	}
}

func TestRateTracker_ConcurrentAddAndRead(t *testing.T) {
	tracker := NewRateTracker()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				tracker.Add(1)
				if i%100 == 0 {
					tracker.RecordSample()
					_ = tracker.Stats()
				}
			}
		}()
	}
	wg.Wait()

	if got := tracker.Stats().Total; got != 8000 {
		t.Errorf("Total = %d, want 8000", got)
	}
}

func BenchmarkRateTracker_Add(b *testing.B) {
	tracker := NewRateTracker()
	for i := 0; i < b.N; i++ {
		tracker.Add(1)
	}
}
