package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Job is a YAML description of a run, loaded with -job. Fields left empty
// keep their defaults; flags given on the command line win over the file.
type Job struct {
	Program          string            `yaml:"program"`
	Args             []string          `yaml:"args"`
	Dir              string            `yaml:"dir"`
	Env              map[string]string `yaml:"env"`
	UnsetEnv         []string          `yaml:"unset_env"`
	ClearEnv         bool              `yaml:"clear_env"`
	Input            []string          `yaml:"input"`
	InputFile        string            `yaml:"input_file"`
	MergeInputErrors bool              `yaml:"merge_input_errors"`
	SuppressExitErr  bool              `yaml:"suppress_exit_error"`
	Timeout          time.Duration     `yaml:"timeout"`

	Instances   int    `yaml:"instances"`
	Restart     string `yaml:"restart"`
	MaxRestarts int    `yaml:"max_restarts"`
}

// LoadJob reads and decodes a job file. Unknown keys are rejected.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	return ParseJob(data)
}

// ParseJob decodes a job from YAML.
func ParseJob(data []byte) (*Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}
	return &job, nil
}

// ApplyTo copies the job settings into cfg, skipping those whose flag
// name is in set. A program given on the command line replaces the job's
// program and arguments together.
func (j *Job) ApplyTo(cfg *Config, set map[string]bool) {
	if cfg.Program == "" && j.Program != "" {
		cfg.Program = j.Program
		cfg.Args = slices.Clone(j.Args)
	}
	if !set["dir"] && j.Dir != "" {
		cfg.Dir = j.Dir
	}
	if !set["env"] && len(j.Env) > 0 {
		names := make([]string, 0, len(j.Env))
		for name := range j.Env {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			cfg.Env = append(cfg.Env, name+"="+j.Env[name])
		}
	}
	if !set["unset-env"] && len(j.UnsetEnv) > 0 {
		cfg.UnsetEnv = slices.Clone(j.UnsetEnv)
	}
	if !set["clear-env"] && j.ClearEnv {
		cfg.ClearEnv = true
	}
	if !set["input"] {
		if j.InputFile != "" {
			cfg.InputFile = j.InputFile
		}
		if len(j.Input) > 0 {
			cfg.InputLines = slices.Clone(j.Input)
		}
	}
	if !set["merge-input-errors"] && j.MergeInputErrors {
		cfg.MergeInputErrors = true
	}
	if !set["suppress-exit-error"] && j.SuppressExitErr {
		cfg.SuppressExitErr = true
	}
	if !set["timeout"] && j.Timeout > 0 {
		cfg.Timeout = j.Timeout
	}
	if !set["instances"] && j.Instances > 0 {
		cfg.Instances = j.Instances
	}
	if !set["restart"] && j.Restart != "" {
		cfg.Restart = j.Restart
	}
	if !set["max-restarts"] && j.MaxRestarts > 0 {
		cfg.MaxRestarts = j.MaxRestarts
	}
}
