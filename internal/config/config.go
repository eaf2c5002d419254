// Package config provides configuration management for go-spawn.
package config

import "time"

// Restart policies.
const (
	RestartNever     = "never"
	RestartOnFailure = "on-failure"
	RestartAlways    = "always"
)

// Config holds all configuration options for a go-spawn run.
type Config struct {
	// Program
	Program          string        `json:"program"`
	Args             []string      `json:"args"`
	Dir              string        `json:"dir"`
	Env              []string      `json:"env"`       // NAME=value, applied in order
	UnsetEnv         []string      `json:"unset_env"` // applied after Env
	ClearEnv         bool          `json:"clear_env"`
	InputFile        string        `json:"input_file"` // "-" = our stdin
	InputLines       []string      `json:"input_lines"`
	MergeInputErrors bool          `json:"merge_input_errors"`
	SuppressExitErr  bool          `json:"suppress_exit_error"`
	Timeout          time.Duration `json:"timeout"` // per run, 0 = none
	Inherit          bool          `json:"inherit"` // pass stdio through, just report the exit code
	Prefix           bool          `json:"prefix"`  // prefix printed lines with their stream

	// Orchestration
	Instances  int           `json:"instances"`
	RampRate   int           `json:"ramp_rate"`
	RampJitter time.Duration `json:"ramp_jitter"`
	Duration   time.Duration `json:"duration"` // 0 = until all instances stop

	// Restart policy
	Restart         string        `json:"restart"`
	MaxRestarts     int           `json:"max_restarts"` // 0 = unlimited
	BackoffInitial  time.Duration `json:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = disabled
	DumpMetrics bool   `json:"dump_metrics"`
	TUIEnabled  bool   `json:"tui"`
	TailLines   int    `json:"tail_lines"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`

	// Diagnostic modes
	PrintCmd      bool   `json:"print_cmd"`
	SkipPreflight bool   `json:"skip_preflight"`
	Version       bool   `json:"version"`
	JobFile       string `json:"job_file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Orchestration
		Instances:  1,
		RampRate:   5,
		RampJitter: 200 * time.Millisecond,

		// Restart policy
		Restart:         RestartNever,
		BackoffInitial:  250 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		BackoffMultiply: 1.7,

		// Observability
		TailLines: 20,
		LogFormat: "text",
		LogLevel:  "warn",
	}
}

// Orchestrated reports whether the run needs the multi-instance
// orchestrator rather than a single foreground process.
func (c *Config) Orchestrated() bool {
	return c.Instances > 1 || c.TUIEnabled || c.Restart != RestartNever || c.Duration > 0
}
