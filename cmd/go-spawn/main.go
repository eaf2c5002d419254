// Package main provides the go-spawn CLI entry point.
//
// go-spawn runs a program and streams its output line by line. With more
// than one instance, a restart policy, a duration or the dashboard, it
// supervises a swarm of copies of the program instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-spawn/internal/config"
	"github.com/randomizedcoder/go-spawn/internal/logging"
	"github.com/randomizedcoder/go-spawn/internal/metrics"
	"github.com/randomizedcoder/go-spawn/internal/orchestrator"
	"github.com/randomizedcoder/go-spawn/internal/process"
	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-spawn
var version = "dev"

// interruptedExitCode is returned when a signal stopped a single run
// (128 + SIGINT).
const interruptedExitCode = 130

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.ParseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		return 2
	}

	if cfg.Version {
		fmt.Fprintf(stdout, "go-spawn %s\n", version)
		return 0
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 2
	}

	// The dashboard owns the terminal; logs would tear it.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logger, runID := logging.WithRunID(logger)
	logging.SetDefault(logger)

	builder, err := process.NewBuilder(cfg, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 2
	}

	if cfg.PrintCmd {
		fmt.Fprintln(stdout, builder.CommandString())
		return 0
	}

	logger.Info("starting",
		"version", version,
		"run_id", runID,
		"command", builder.CommandString(),
		"instances", cfg.Instances,
		"restart", cfg.Restart,
	)

	if cfg.Orchestrated() {
		orch := orchestrator.New(cfg, builder, logger, version)
		orch.SetOutput(stdout, stderr)
		code, err := orch.Run(context.Background())
		if err != nil {
			logger.Error("orchestrator_failed", "error", err)
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return code
	}

	return runSingle(cfg, builder, logger, stdout, stderr)
}

// runSingle runs one foreground process and returns its exit code.
func runSingle(cfg *config.Config, builder *process.Builder, logger *slog.Logger, stdout, stderr io.Writer) int {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:         version,
		Program:         builder.Name(),
		TargetInstances: 1,
	}, registry)
	spawner := spawn.New(spawn.Config{Logger: logger, Hooks: collector.Hooks()})

	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr, registry, logger)
		if err := server.Start(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Warn("metrics_server_shutdown_error", "error", err)
			}
		}()
	}
	if cfg.DumpMetrics {
		defer func() {
			if err := metrics.Dump(stderr, registry); err != nil {
				logger.Warn("metrics_dump_failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if cfg.Inherit {
		return runInherited(ctx, builder.Exec(spawner), logger, stderr)
	}
	return streamLines(ctx, builder.Lines(spawner), cfg.Prefix, logger, stdout, stderr)
}

// streamLines prints the lines of cmd as they arrive and returns the exit
// code of the process.
func streamLines(ctx context.Context, cmd spawn.Command[spawn.Line], prefix bool, logger *slog.Logger, stdout, stderr io.Writer) int {
	var mu sync.Mutex
	exitCode := -1
	prev := cmd.Options().ExitCodeError()
	cmd = cmd.Configure(func(o spawn.Options) spawn.Options {
		return o.WithExitCodeError(func(a spawn.ExitCodeErrorArgs) error {
			mu.Lock()
			exitCode = a.ExitCode
			mu.Unlock()
			if prev != nil {
				return prev(a)
			}
			if a.ExitCode != 0 {
				return spawn.ExitCode(a.ExitCode).Err()
			}
			return nil
		})
	})

	var runErr error
	for line, err := range cmd.Seq(ctx) {
		if err != nil {
			runErr = err
			break
		}
		w := spawn.Match(line,
			func(string) io.Writer { return stdout },
			func(string) io.Writer { return stderr },
		)
		fmt.Fprintln(w, process.FormatLine(line, prefix))
	}

	mu.Lock()
	code := exitCode
	mu.Unlock()

	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		logger.Warn("process_timeout", "command", cmd.CommandLine())
		return 124
	case errors.Is(runErr, context.Canceled):
		return interruptedExitCode
	case code >= 0:
		// The process ran to completion; its code is the answer even when
		// the policy accepted it.
		return code
	case runErr != nil:
		logger.Error("process_failed", "command", cmd.CommandLine(), "error", runErr)
		fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return 1
	}
	return 0
}

// runInherited runs cmd with our own stdio and returns its exit code.
func runInherited(ctx context.Context, cmd spawn.Command[struct{}], logger *slog.Logger, stderr io.Writer) int {
	code, err := cmd.Run(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("process_timeout", "command", cmd.CommandLine())
		return 124
	case errors.Is(err, context.Canceled):
		return interruptedExitCode
	case err != nil:
		logger.Error("process_failed", "command", cmd.CommandLine(), "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return int(code)
}
