package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRampScheduler(t *testing.T) {
	rs := NewRampScheduler(10, 500*time.Millisecond)
	if rs.Rate() != 10 {
		t.Errorf("Rate() = %d, want 10", rs.Rate())
	}
	if rs.MaxJitter() != 500*time.Millisecond {
		t.Errorf("MaxJitter() = %v, want 500ms", rs.MaxJitter())
	}
	if rs.jitter == nil {
		t.Error("jitter source should not be nil")
	}
}

func TestNewRampSchedulerWithSeed(t *testing.T) {
	rs := NewRampSchedulerWithSeed(10, 500*time.Millisecond, 12345)
	if rs.Seed() != 12345 {
		t.Errorf("Seed() = %d, want 12345", rs.Seed())
	}
}

func TestRampScheduler_Delay(t *testing.T) {
	tests := []struct {
		name      string
		rate      int
		maxJitter time.Duration
		min, max  time.Duration
	}{
		{"rate only", 5, 0, 200 * time.Millisecond, 200 * time.Millisecond},
		{"rate and jitter", 10, 50 * time.Millisecond, 100 * time.Millisecond, 150*time.Millisecond - 1},
		{"zero rate no jitter", 0, 0, 0, 0},
		{"zero rate with jitter", 0, 50 * time.Millisecond, 0, 50*time.Millisecond - 1},
		{"negative rate", -5, 0, 0, 0},
		{"high rate", 1000, 0, time.Millisecond, time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewRampSchedulerWithSeed(tt.rate, tt.maxJitter, 12345)
			for id := 0; id < 20; id++ {
				if d := rs.Delay(id); d < tt.min || d > tt.max {
					t.Errorf("Delay(%d) = %v, want [%v, %v]", id, d, tt.min, tt.max)
				}
			}
		})
	}
}

func TestRampScheduler_Schedule_RateLimit(t *testing.T) {
	// Rate of 5 = 200ms per instance
	rs := NewRampSchedulerWithSeed(5, 0, 12345)

	start := time.Now()
	if err := rs.Schedule(context.Background(), 1); err != nil {
		t.Errorf("Schedule returned error: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 150*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("Schedule elapsed = %v, want ~200ms", elapsed)
	}
}

func TestRampScheduler_Schedule_ZeroDelay(t *testing.T) {
	rs := NewRampSchedulerWithSeed(0, 0, 1)

	start := time.Now()
	if err := rs.Schedule(context.Background(), 3); err != nil {
		t.Errorf("Schedule returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("zero delay took %v", elapsed)
	}
}

func TestRampScheduler_Schedule_ContextCancelled(t *testing.T) {
	tests := []struct {
		name string
		rate int
	}{
		{"waiting", 1},
		{"zero delay", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewRampScheduler(tt.rate, 0)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			start := time.Now()
			err := rs.Schedule(ctx, 1)
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Schedule() = %v, want context.Canceled", err)
			}
			if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
				t.Errorf("should have returned immediately, took %v", elapsed)
			}
		})
	}
}

func TestRampScheduler_Schedule_ContextTimeout(t *testing.T) {
	rs := NewRampScheduler(1, 0) // 1 per second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := rs.Schedule(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Schedule() = %v, want context.DeadlineExceeded", err)
	}
}

func TestRampScheduler_EstimatedRampDuration(t *testing.T) {
	tests := []struct {
		name      string
		rate      int
		jitter    time.Duration
		instances int
		want      time.Duration
	}{
		{"zero rate", 0, 0, 100, 0},
		{"negative rate", -1, 0, 100, 0},
		{"single instance", 10, time.Second, 1, 0},
		{"zero instances", 10, 0, 0, 0},
		{"normal", 10, 200 * time.Millisecond, 11, time.Second + 100*time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewRampSchedulerWithSeed(tt.rate, tt.jitter, 1)
			if got := rs.EstimatedRampDuration(tt.instances); got != tt.want {
				t.Errorf("EstimatedRampDuration(%d) = %v, want %v", tt.instances, got, tt.want)
			}
		})
	}
}

func TestRampScheduler_DeterministicJitter(t *testing.T) {
	a := NewRampSchedulerWithSeed(10, 100*time.Millisecond, 42)
	b := NewRampSchedulerWithSeed(10, 100*time.Millisecond, 42)
	c := NewRampSchedulerWithSeed(10, 100*time.Millisecond, 43)

	differs := false
	for id := 0; id < 20; id++ {
		if a.Delay(id) != b.Delay(id) {
			t.Errorf("same seed gave different delays for instance %d", id)
		}
		if a.Delay(id) != c.Delay(id) {
			differs = true
		}
	}
	if !differs {
		t.Error("different seeds gave identical delays for 20 instances")
	}
}
