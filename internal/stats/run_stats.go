// Package stats aggregates the outcomes of supervised runs and formats the
// exit summary.
package stats

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

// RunStats collects run outcomes across all instances. Safe for
// concurrent use.
type RunStats struct {
	startTime time.Time

	lines [2]atomic.Int64 // indexed by spawn.Stream

	mu            sync.Mutex
	starts        int64
	restarts      int64
	startFailures int64
	active        int
	peakActive    int
	exitCodes     map[int]int
	runs          int64
	failures      int64
	totalRuntime  time.Duration
	minRuntime    time.Duration
	maxRuntime    time.Duration
	runtimeDigest *tdigest.TDigest
}

// Snapshot is a point-in-time copy of RunStats.
type Snapshot struct {
	Timestamp time.Time
	Elapsed   time.Duration

	Starts        int64
	Restarts      int64
	StartFailures int64
	Active        int
	PeakActive    int

	Runs      int64
	Failures  int64 // runs with a non-zero exit code
	ExitCodes map[int]int

	LinesOut int64
	LinesErr int64

	MinRuntime time.Duration
	MaxRuntime time.Duration
	AvgRuntime time.Duration
	RuntimeP50 time.Duration
	RuntimeP95 time.Duration
	RuntimeP99 time.Duration
}

// NewRunStats creates an empty collector.
func NewRunStats() *RunStats {
	return &RunStats{
		startTime:     time.Now(),
		exitCodes:     make(map[int]int),
		runtimeDigest: tdigest.NewWithCompression(100),
	}
}

// RecordStart records a started process.
func (s *RunStats) RecordStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.active++
	s.peakActive = max(s.peakActive, s.active)
}

// RecordExit records the end of a run. started is false for runs whose
// process never started; they count as start failures.
func (s *RunStats) RecordExit(exitCode int, runtime time.Duration, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exitCodes[exitCode]++
	if !started {
		s.startFailures++
		return
	}
	if s.active > 0 {
		s.active--
	}

	s.runs++
	if exitCode != 0 {
		s.failures++
	}
	s.totalRuntime += runtime
	if s.runs == 1 || runtime < s.minRuntime {
		s.minRuntime = runtime
	}
	s.maxRuntime = max(s.maxRuntime, runtime)
	s.runtimeDigest.Add(float64(runtime.Nanoseconds()), 1)
}

// RecordRestart records a scheduled restart.
func (s *RunStats) RecordRestart() {
	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
}

// RecordLine counts one child line.
func (s *RunStats) RecordLine(stream spawn.Stream) {
	if stream == spawn.StreamOutput || stream == spawn.StreamError {
		s.lines[stream].Add(1)
	}
}

// Snapshot returns the current values.
func (s *RunStats) Snapshot() Snapshot {
	now := time.Now()
	snap := Snapshot{
		Timestamp: now,
		Elapsed:   now.Sub(s.startTime),
		LinesOut:  s.lines[spawn.StreamOutput].Load(),
		LinesErr:  s.lines[spawn.StreamError].Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Starts = s.starts
	snap.Restarts = s.restarts
	snap.StartFailures = s.startFailures
	snap.Active = s.active
	snap.PeakActive = s.peakActive
	snap.Runs = s.runs
	snap.Failures = s.failures
	snap.ExitCodes = maps.Clone(s.exitCodes)

	if s.runs > 0 {
		snap.MinRuntime = s.minRuntime
		snap.MaxRuntime = s.maxRuntime
		snap.AvgRuntime = s.totalRuntime / time.Duration(s.runs)
		snap.RuntimeP50 = time.Duration(s.runtimeDigest.Quantile(0.50))
		snap.RuntimeP95 = time.Duration(s.runtimeDigest.Quantile(0.95))
		snap.RuntimeP99 = time.Duration(s.runtimeDigest.Quantile(0.99))
	}
	return snap
}
