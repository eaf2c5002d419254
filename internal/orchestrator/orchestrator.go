// Package orchestrator runs many supervised instances of one command.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-spawn/internal/config"
	"github.com/randomizedcoder/go-spawn/internal/feed"
	"github.com/randomizedcoder/go-spawn/internal/metrics"
	"github.com/randomizedcoder/go-spawn/internal/preflight"
	"github.com/randomizedcoder/go-spawn/internal/process"
	"github.com/randomizedcoder/go-spawn/internal/stats"
	"github.com/randomizedcoder/go-spawn/internal/supervisor"
	"github.com/randomizedcoder/go-spawn/internal/timeseries"
	"github.com/randomizedcoder/go-spawn/internal/tui"
	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

const (
	// feedBufferSize bounds the lines queued for the dashboard.
	feedBufferSize = 10000

	// feedDropThreshold marks the feed as degraded.
	feedDropThreshold = 0.01

	// tailSize is the number of lines kept for the dashboard.
	tailSize = 200

	sampleInterval  = time.Second
	shutdownTimeout = 10 * time.Second
)

// ErrPreflight is returned by Run when a preflight check fails.
var ErrPreflight = errors.New("preflight checks failed (use -skip-preflight to override)")

// Orchestrator coordinates all components of a multi-instance run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
	outMu  sync.Mutex

	builder       *process.Builder
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	stats         *stats.RunStats
	feed          *feed.Pipeline
	tail          *feed.Tail
	lineRate      *timeseries.RateTracker
	rampScheduler *RampScheduler
	manager       *InstanceManager

	launched  atomic.Int64
	startTime time.Time
}

// New creates an Orchestrator for cfg. The command run by every instance
// comes from builder.
func New(cfg *config.Config, builder *process.Builder, logger *slog.Logger, version string) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:         version,
		Program:         builder.Name(),
		TargetInstances: cfg.Instances,
		Duration:        cfg.Duration,
	}, registry)

	spawner := spawn.New(spawn.Config{Logger: logger, Hooks: collector.Hooks()})
	seed := time.Now().UnixNano()

	o := &Orchestrator{
		config:        cfg,
		logger:        logger,
		stdout:        os.Stdout,
		stderr:        os.Stderr,
		builder:       builder,
		registry:      registry,
		metrics:       collector,
		stats:         stats.NewRunStats(),
		feed:          feed.NewPipeline(feedBufferSize, feedDropThreshold),
		tail:          feed.NewTail(tailSize),
		lineRate:      timeseries.NewRateTracker(),
		rampScheduler: NewRampSchedulerWithSeed(cfg.RampRate, cfg.RampJitter, seed),
	}
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, registry, logger)
	}

	o.manager = NewInstanceManager(ManagerConfig{
		Command: builder.Lines(spawner),
		Logger:  logger,
		BackoffConfig: supervisor.BackoffConfig{
			Initial:    cfg.BackoffInitial,
			Max:        cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiply,
			JitterPct:  0.4,
		},
		Policy:      supervisor.RestartPolicy(cfg.Restart),
		MaxRestarts: cfg.MaxRestarts,
		Timeout:     cfg.Timeout,
		TailLines:   cfg.TailLines,
		Verbose:     cfg.Verbose,
		Seed:        seed,
		Callbacks: ManagerCallbacks{
			OnInstanceStateChange: o.onStateChange,
			OnInstanceStart:       o.onStart,
			OnInstanceExit:        o.onExit,
			OnInstanceRestart:     o.onRestart,
			OnInstanceLine:        o.onLine,
		},
	})
	return o
}

// SetOutput redirects the printed lines and the exit summary.
func (o *Orchestrator) SetOutput(stdout, stderr io.Writer) {
	o.stdout = stdout
	o.stderr = stderr
}

// Run executes the run. It blocks until every instance stopped, the
// duration elapsed, a signal arrived or ctx was cancelled, and returns the
// aggregate exit code.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	o.startTime = time.Now()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(o.builder.Name(), o.config.Dir, o.config.Instances)
		if !result.Passed || o.config.Verbose {
			preflight.PrintResults(o.stderr, result)
		}
		if !result.Passed {
			return 1, ErrPreflight
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return 1, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		o.feed.Run(o.tail)
	}()

	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		o.sampleLoop(ctx)
	}()

	var program *tea.Program
	tuiDone := make(chan struct{})
	if o.config.TUIEnabled {
		program = tea.NewProgram(tui.New(tui.Config{
			TargetInstances: o.config.Instances,
			Command:         o.builder.CommandString(),
			MetricsAddr:     o.metricsAddr(),
			TailLines:       o.config.TailLines,
			Source:          o,
		}), tea.WithAltScreen())
		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil {
				o.logger.Error("tui_error", "error", err)
			}
		}()
	}

	o.logger.Info("ramp_starting",
		"instances", o.config.Instances,
		"rate", o.config.RampRate,
		"estimated_duration", o.rampScheduler.EstimatedRampDuration(o.config.Instances).String(),
	)

	rampDone := make(chan struct{})
	go func() {
		defer close(rampDone)
		o.rampUp(ctx)
	}()

	allDone := make(chan struct{})
	go func() {
		defer close(allDone)
		<-rampDone
		o.manager.Wait()
	}()

	var durationTimer <-chan time.Time
	if o.config.Duration > 0 {
		timer := time.NewTimer(o.config.Duration)
		defer timer.Stop()
		durationTimer = timer.C
	}

	select {
	case sig := <-sigCh:
		o.logger.Info("received_signal", "signal", sig.String())
	case <-durationTimer:
		o.logger.Info("duration_elapsed", "duration", o.config.Duration.String())
	case <-allDone:
		o.logger.Info("all_instances_finished")
	case <-tuiDone:
		o.logger.Info("tui_quit")
	case <-ctx.Done():
		o.logger.Info("context_cancelled")
	}

	cancel()
	<-rampDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := o.manager.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
	}

	o.feed.Close()
	<-feedDone
	<-samplerDone
	o.sample()

	if program != nil {
		tui.SendQuit(program)
		<-tuiDone
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}
	if o.config.DumpMetrics {
		if err := metrics.Dump(o.stderr, o.registry); err != nil {
			o.logger.Warn("metrics_dump_failed", "error", err)
		}
	}

	code := o.manager.ExitCode()
	o.printExitSummary(code)
	return code, nil
}

// rampUp starts instances at the configured rate.
func (o *Orchestrator) rampUp(ctx context.Context) {
	target := o.config.Instances
	for i := 0; i < target; i++ {
		if ctx.Err() != nil {
			o.logger.Info("ramp_cancelled", "started", i, "target", target)
			return
		}

		// The first instance starts immediately.
		if i > 0 {
			if err := o.rampScheduler.Schedule(ctx, i); err != nil {
				o.logger.Info("ramp_cancelled", "started", i, "target", target)
				return
			}
		}

		o.manager.StartInstance(ctx, i)
		launched := o.launched.Add(1)
		o.metrics.SetRampProgress(float64(launched) / float64(target))

		if (i+1)%10 == 0 || i == target-1 {
			o.logger.Info("ramp_progress",
				"started", i+1,
				"target", target,
				"active", o.manager.ActiveCount(),
			)
		}
	}

	o.logger.Info("ramp_complete",
		"instances", target,
		"active", o.manager.ActiveCount(),
	)
}

// sampleLoop refreshes rates and periodic metrics until ctx is done.
func (o *Orchestrator) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sample()
		}
	}
}

func (o *Orchestrator) sample() {
	o.lineRate.RecordSample()
	o.metrics.SetLineRate(o.lineRate.Stats().Rate1s)
	read, dropped, _ := o.feed.Stats()
	o.metrics.RecordFeed(read, dropped)
	o.metrics.UpdateElapsed()
	o.metrics.SetActiveCount(o.manager.ActiveCount())
}

// =============================================================================
// Callback handlers
// =============================================================================

func (o *Orchestrator) onStateChange(int, supervisor.State, supervisor.State) {
	o.metrics.SetActiveCount(o.manager.ActiveCount())
}

func (o *Orchestrator) onStart(id int, pid int) {
	o.stats.RecordStart()
	if o.config.Verbose {
		o.logger.Debug("instance_process_started", "instance", id, "pid", pid)
	}
}

func (o *Orchestrator) onExit(id int, exitCode int, uptime time.Duration, started bool) {
	o.stats.RecordExit(exitCode, uptime, started)
}

func (o *Orchestrator) onRestart(id int, attempt int, delay time.Duration) {
	o.stats.RecordRestart()
	o.metrics.InstanceRestarted()
	if o.config.Verbose {
		o.logger.Debug("instance_restart_scheduled",
			"instance", id,
			"attempt", attempt,
			"delay", delay.String(),
		)
	}
}

// onLine runs on the child's stream goroutine.
func (o *Orchestrator) onLine(id int, line spawn.Line) {
	o.stats.RecordLine(line.Stream)
	o.lineRate.Add(1)
	o.feed.FeedLine(id, line)
	if !o.config.TUIEnabled {
		o.printLine(id, line)
	}
}

// printLine writes a child line to our own stdout or stderr, tagged with
// its instance when there is more than one.
func (o *Orchestrator) printLine(id int, line spawn.Line) {
	text := process.FormatLine(line, o.config.Prefix)
	if o.config.Instances > 1 {
		text = "[" + strconv.Itoa(id) + "] " + text
	}
	w := spawn.Match(line,
		func(string) io.Writer { return o.stdout },
		func(string) io.Writer { return o.stderr },
	)

	o.outMu.Lock()
	defer o.outMu.Unlock()
	fmt.Fprintln(w, text)
}

// DashboardSnapshot implements tui.Source.
func (o *Orchestrator) DashboardSnapshot(tailLines int) tui.Snapshot {
	read, dropped, _ := o.feed.Stats()
	return tui.Snapshot{
		States:      o.manager.StateCounts(),
		Launched:    int(o.launched.Load()),
		Run:         o.stats.Snapshot(),
		Lines:       o.lineRate.Stats(),
		FeedRead:    read,
		FeedDropped: dropped,
		Tail:        o.tail.Entries(tailLines),
	}
}

func (o *Orchestrator) metricsAddr() string {
	if o.metricsServer == nil {
		return ""
	}
	return o.metricsServer.Addr()
}

// printExitSummary prints a summary of the run.
func (o *Orchestrator) printExitSummary(code int) {
	read, dropped, _ := o.feed.Stats()
	summary := stats.FormatExitSummary(o.stats.Snapshot(), stats.SummaryConfig{
		Command:         o.builder.CommandString(),
		TargetInstances: o.config.Instances,
		Duration:        time.Since(o.startTime),
		MetricsAddr:     o.metricsAddr(),
		FeedRead:        read,
		FeedDropped:     dropped,
		ExitCode:        code,
	})

	o.outMu.Lock()
	defer o.outMu.Unlock()
	fmt.Fprint(o.stdout, summary)
}

// Manager returns the instance manager.
func (o *Orchestrator) Manager() *InstanceManager {
	return o.manager
}

// Stats returns the run statistics.
func (o *Orchestrator) Stats() *stats.RunStats {
	return o.stats
}

// Registry returns the metrics registry of the run.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}
