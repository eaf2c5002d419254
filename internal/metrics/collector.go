// Package metrics exposes Prometheus metrics for go-spawn.
//
// Process-level events (starts, exits, lines, terminations) arrive through
// the spawn.Hooks returned by Collector.Hooks. Instance-level events
// (restarts, active count, ramp progress) are recorded by the orchestrator.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

const namespace = "go_spawn"

// Collector owns the go-spawn metrics.
type Collector struct {
	// --- Run overview ---
	info             *prometheus.GaugeVec
	targetInstances  prometheus.Gauge
	activeInstances  prometheus.Gauge
	rampProgress     prometheus.Gauge
	elapsedSeconds   prometheus.Gauge
	remainingSeconds prometheus.Gauge

	// --- Process lifecycle ---
	starts       prometheus.Counter
	restarts     prometheus.Counter
	exits        *prometheus.CounterVec
	exitCodes    *prometheus.CounterVec
	runtime      prometheus.Histogram
	terminations *prometheus.CounterVec

	// --- Output ---
	lines        *prometheus.CounterVec
	linesPerSec  prometheus.Gauge
	feedDropped  prometheus.Counter
	feedDropRate prometheus.Gauge

	startTime time.Time
	duration  time.Duration

	mu              sync.Mutex
	prevFeedDropped int64
	peakActive      int
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version         string
	Program         string
	TargetInstances int
	Duration        time.Duration // 0 = unlimited
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the run (value always 1)",
		}, []string{"version", "program"}),
		targetInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_instances",
			Help:      "Number of instances requested",
		}),
		activeInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_instances",
			Help:      "Instances with a running process",
		}),
		rampProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ramp_progress",
			Help:      "Instance ramp-up progress (0.0 to 1.0)",
		}),
		elapsedSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elapsed_seconds",
			Help:      "Seconds since the run started",
		}),
		remainingSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remaining_seconds",
			Help:      "Seconds until the run ends (-1 = unlimited)",
		}),

		starts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_starts_total",
			Help:      "Processes started",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_restarts_total",
			Help:      "Instance restarts scheduled",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Process exits by category (success, error, signal)",
		}, []string{"category"}),
		exitCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exit_codes_total",
			Help:      "Process exits by exit code",
		}, []string{"code"}),
		runtime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_runtime_seconds",
			Help:      "Process runtime from start to exit",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Termination attempts by result (ok, expected, unexpected)",
		}, []string{"result"}),

		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Child output lines by stream",
		}, []string{"stream"}),
		linesPerSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lines_per_second",
			Help:      "Child output line rate over the last second",
		}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_lines_dropped_total",
			Help:      "Lines dropped by the dashboard feed",
		}),
		feedDropRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_drop_rate",
			Help:      "Fraction of lines dropped by the dashboard feed",
		}),

		startTime: time.Now(),
		duration:  cfg.Duration,
	}

	registry.MustRegister(
		c.info, c.targetInstances, c.activeInstances, c.rampProgress, c.elapsedSeconds, c.remainingSeconds,
		c.starts, c.restarts, c.exits, c.exitCodes, c.runtime, c.terminations,
		c.lines, c.linesPerSec, c.feedDropped, c.feedDropRate,
	)

	c.info.WithLabelValues(cfg.Version, cfg.Program).Set(1)
	c.targetInstances.Set(float64(cfg.TargetInstances))
	c.remainingSeconds.Set(-1)
	return c
}

// Hooks returns spawn hooks that record process events.
func (c *Collector) Hooks() spawn.Hooks {
	return spawn.Hooks{
		OnStart: func(string, int) { c.ProcessStarted() },
		OnLine:  func(_ string, stream spawn.Stream) { c.RecordLine(stream) },
		OnExit: func(_ string, _ int, exitCode int, runtime time.Duration) {
			c.RecordExit(exitCode, runtime)
		},
		OnTerminate: func(_ string, _ int, res spawn.TerminateResult) {
			c.RecordTerminate(res.Status)
		},
	}
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// ProcessStarted records a process start.
func (c *Collector) ProcessStarted() {
	c.starts.Inc()
}

// InstanceRestarted records a scheduled restart.
func (c *Collector) InstanceRestarted() {
	c.restarts.Inc()
}

// RecordExit records a process exit.
func (c *Collector) RecordExit(exitCode int, runtime time.Duration) {
	c.exits.WithLabelValues(exitCategory(exitCode)).Inc()
	c.exitCodes.WithLabelValues(strconv.Itoa(exitCode)).Inc()
	c.runtime.Observe(runtime.Seconds())
}

// RecordLine counts one child line.
func (c *Collector) RecordLine(stream spawn.Stream) {
	c.lines.WithLabelValues(stream.String()).Inc()
}

// RecordTerminate counts a termination attempt.
func (c *Collector) RecordTerminate(status spawn.TerminateStatus) {
	c.terminations.WithLabelValues(status.String()).Inc()
}

// exitCategory buckets exit codes: 128+N means killed by signal N.
func exitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Periodic Update Methods
// =============================================================================

// SetActiveCount updates the active instance count.
func (c *Collector) SetActiveCount(count int) {
	c.activeInstances.Set(float64(count))

	c.mu.Lock()
	c.peakActive = max(c.peakActive, count)
	c.mu.Unlock()
}

// SetRampProgress updates the ramp-up progress.
func (c *Collector) SetRampProgress(progress float64) {
	c.rampProgress.Set(progress)
}

// SetLineRate updates the current line rate.
func (c *Collector) SetLineRate(perSec float64) {
	c.linesPerSec.Set(perSec)
}

// RecordFeed updates the feed counters from the cumulative pipeline stats.
func (c *Collector) RecordFeed(read, dropped int64) {
	c.mu.Lock()
	delta := dropped - c.prevFeedDropped
	c.prevFeedDropped = dropped
	c.mu.Unlock()

	if delta > 0 {
		c.feedDropped.Add(float64(delta))
	}
	if read > 0 {
		c.feedDropRate.Set(float64(dropped) / float64(read))
	}
}

// UpdateElapsed refreshes the elapsed and remaining time gauges.
func (c *Collector) UpdateElapsed() {
	elapsed := time.Since(c.startTime)
	c.elapsedSeconds.Set(elapsed.Seconds())
	if c.duration > 0 {
		c.remainingSeconds.Set(max(c.duration-elapsed, 0).Seconds())
	}
}

// PeakActive returns the peak active instance count.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}
