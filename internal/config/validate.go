package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	if cfg.Version {
		return nil
	}

	var errs []error

	if cfg.Program == "" {
		errs = append(errs, ValidationError{
			Field:   "program",
			Message: "a program to run is required",
		})
	}

	for _, kv := range cfg.Env {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("must be NAME=value (got %q)", kv),
			})
		}
	}

	if cfg.InputFile != "" && len(cfg.InputLines) > 0 {
		errs = append(errs, ValidationError{
			Field:   "input",
			Message: "input file and inline input lines are mutually exclusive",
		})
	}

	if cfg.Timeout < 0 {
		errs = append(errs, ValidationError{Field: "timeout", Message: "must not be negative"})
	}
	if cfg.Duration < 0 {
		errs = append(errs, ValidationError{Field: "duration", Message: "must not be negative"})
	}

	if cfg.Instances < 1 {
		errs = append(errs, ValidationError{Field: "instances", Message: "must be at least 1"})
	}
	if cfg.RampRate < 1 {
		errs = append(errs, ValidationError{Field: "ramp_rate", Message: "must be at least 1"})
	}

	validRestart := map[string]bool{RestartNever: true, RestartOnFailure: true, RestartAlways: true}
	if !validRestart[cfg.Restart] {
		errs = append(errs, ValidationError{
			Field:   "restart",
			Message: fmt.Sprintf("must be one of: never, on-failure, always (got %q)", cfg.Restart),
		})
	}
	if cfg.MaxRestarts < 0 {
		errs = append(errs, ValidationError{Field: "max_restarts", Message: "must not be negative"})
	}

	if cfg.Inherit && cfg.Orchestrated() {
		errs = append(errs, ValidationError{
			Field:   "inherit",
			Message: "only available for a single instance without restarts or dashboard",
		})
	}
	if cfg.Inherit && cfg.Prefix {
		errs = append(errs, ValidationError{Field: "prefix", Message: "cannot prefix inherited output"})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.TailLines < 0 {
		errs = append(errs, ValidationError{Field: "tail_lines", Message: "must not be negative"})
	}

	// Backoff settings
	if cfg.BackoffInitial <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must be positive",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}

	return errors.Join(errs...)
}
