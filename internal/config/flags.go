package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// stringList is a custom flag type for repeatable flags.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ", ")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

// ParseArgs parses args (without the program name) and returns a Config.
// Everything after the first positional argument is the child command line.
// Settings from a -job file apply unless the matching flag was given.
func ParseArgs(args []string, usageOut io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("go-spawn", flag.ContinueOnError)
	fs.SetOutput(usageOut)

	var env, unset stringList

	fs.Usage = func() {
		fmt.Fprintf(usageOut, `go-spawn - run programs and stream their output line by line

Usage:
  go-spawn [flags] [--] PROGRAM [ARGS...]

Program Flags:
`)
		printFlagCategory(fs, usageOut, []string{"dir", "env", "unset-env", "clear-env", "input", "merge-input-errors", "job"})

		fmt.Fprintf(usageOut, "\nExecution:\n")
		printFlagCategory(fs, usageOut, []string{"timeout", "suppress-exit-error", "inherit", "prefix"})

		fmt.Fprintf(usageOut, "\nOrchestration:\n")
		printFlagCategory(fs, usageOut, []string{"instances", "ramp-rate", "ramp-jitter", "duration"})

		fmt.Fprintf(usageOut, "\nRestart Policy:\n")
		printFlagCategory(fs, usageOut, []string{"restart", "max-restarts", "backoff-initial", "backoff-max", "backoff-multiply"})

		fmt.Fprintf(usageOut, "\nObservability:\n")
		printFlagCategory(fs, usageOut, []string{"metrics", "dump-metrics", "tui", "tail", "v", "log-format", "log-level"})

		fmt.Fprintf(usageOut, "\nDiagnostics:\n")
		printFlagCategory(fs, usageOut, []string{"print-cmd", "skip-preflight", "version"})

		fmt.Fprintf(usageOut, `
Examples:
  # Stream a command's output, tagging each line with its stream
  go-spawn -prefix -- ls -la /tmp

  # Feed lines to a filter
  go-spawn -input words.txt -- tr a-z A-Z

  # Keep three workers alive, restarting on failure, with a dashboard
  go-spawn -instances 3 -restart on-failure -tui -- ./worker.sh

`)
	}

	// Program
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "Working directory (default: current)")
	fs.Var(&env, "env", "Set environment variable NAME=value (can repeat)")
	fs.Var(&unset, "unset-env", "Remove environment variable (can repeat)")
	fs.BoolVar(&cfg.ClearEnv, "clear-env", cfg.ClearEnv, "Start from an empty environment")
	fs.StringVar(&cfg.InputFile, "input", cfg.InputFile, `File whose lines are written to stdin ("-" for our stdin)`)
	fs.BoolVar(&cfg.MergeInputErrors, "merge-input-errors", cfg.MergeInputErrors, "Deliver error-tagged input lines on the error stream")
	fs.StringVar(&cfg.JobFile, "job", cfg.JobFile, "YAML job file")

	// Execution
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Terminate a run after this long (0 = none)")
	fs.BoolVar(&cfg.SuppressExitErr, "suppress-exit-error", cfg.SuppressExitErr, "Treat non-zero exit codes as success")
	fs.BoolVar(&cfg.Inherit, "inherit", cfg.Inherit, "Pass stdout/stderr through untouched and exit with the child's code")
	fs.BoolVar(&cfg.Prefix, "prefix", cfg.Prefix, "Prefix printed lines with the stream name")

	// Orchestration
	fs.IntVar(&cfg.Instances, "instances", cfg.Instances, "Number of concurrent instances")
	fs.IntVar(&cfg.RampRate, "ramp-rate", cfg.RampRate, "Instances to start per second")
	fs.DurationVar(&cfg.RampJitter, "ramp-jitter", cfg.RampJitter, "Random jitter per instance start")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Stop all instances after this long (0 = when they finish)")

	// Restart policy
	fs.StringVar(&cfg.Restart, "restart", cfg.Restart, `Restart policy: "never", "on-failure", "always"`)
	fs.IntVar(&cfg.MaxRestarts, "max-restarts", cfg.MaxRestarts, "Restarts per instance (0 = unlimited)")
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "First restart delay")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum restart delay")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Restart delay multiplier")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address, e.g. 127.0.0.1:17091 (empty = disabled)")
	fs.BoolVar(&cfg.DumpMetrics, "dump-metrics", cfg.DumpMetrics, "Print metrics in text exposition format on exit")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.IntVar(&cfg.TailLines, "tail", cfg.TailLines, "Recent lines shown in the dashboard and failure summary")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)

	// Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the command line and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.Version, "version", cfg.Version, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Env = env
	cfg.UnsetEnv = unset

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Program = rest[0]
		cfg.Args = rest[1:]
	}

	if cfg.JobFile != "" {
		job, err := LoadJob(cfg.JobFile)
		if err != nil {
			return nil, err
		}
		set := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		job.ApplyTo(cfg, set)
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}
	return "string"
}
