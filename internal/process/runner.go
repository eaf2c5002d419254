// Package process turns a go-spawn configuration into spawn commands.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync"

	"github.com/randomizedcoder/go-spawn/internal/config"
	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

// ErrNoProgram is returned when no program was configured.
var ErrNoProgram = errors.New("no program to run")

// Prefixes written by -prefix and recognised on input lines when error
// lines are merged, so one go-spawn can feed another.
const (
	OutputPrefix = "stdout: "
	ErrorPrefix  = "stderr: "
)

// Builder creates the commands run for every instance.
type Builder struct {
	config *config.Config
	stdin  io.Reader
	env    []spawn.EnvVar

	// Orchestrated runs replay standard input to every instance. It is
	// read once, in the background, independent of any single run.
	replay      bool
	stdinOnce   sync.Once
	stdinLoaded chan struct{}
	stdinLines  []spawn.Line
	stdinErr    error
}

// NewBuilder creates a builder for cfg. stdin backs an input file of "-".
func NewBuilder(cfg *config.Config, stdin io.Reader) (*Builder, error) {
	if cfg.Program == "" {
		return nil, ErrNoProgram
	}
	env := make([]spawn.EnvVar, 0, len(cfg.Env))
	for _, kv := range cfg.Env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid environment entry %q: want NAME=value", kv)
		}
		env = append(env, spawn.EnvVar{Name: name, Value: value})
	}
	return &Builder{
		config: cfg,
		stdin:  stdin,
		env:    env,
		replay:      cfg.Orchestrated(),
		stdinLoaded: make(chan struct{}),
	}, nil
}

// Name returns the configured program.
func (b *Builder) Name() string {
	return b.config.Program
}

// Lines returns the line-capturing command run by s. A nil spawner uses a
// default one per run.
func (b *Builder) Lines(s *spawn.Spawner) spawn.Command[spawn.Line] {
	return spawn.Lines(s, b.config.Program, b.config.Args...).Configure(b.Apply)
}

// Exec returns a command that inherits both output streams.
func (b *Builder) Exec(s *spawn.Spawner) spawn.Command[struct{}] {
	return spawn.Exec(s, b.config.Program, b.config.Args...).Configure(b.Apply)
}

// Apply adds the configured directory, environment, input and exit-code
// policy to opts.
func (b *Builder) Apply(opts spawn.Options) spawn.Options {
	cfg := b.config
	if cfg.Dir != "" {
		opts = opts.WithDir(cfg.Dir)
	}
	if cfg.ClearEnv {
		opts = opts.ClearEnv()
	}
	for _, v := range b.env {
		opts = opts.SetEnv(v.Name, v.Value)
	}
	for _, name := range cfg.UnsetEnv {
		opts = opts.UnsetEnv(name)
	}
	if in := b.input(); in != nil {
		opts = opts.WithInput(in).WithMergedInputErrors(cfg.MergeInputErrors)
	}
	if cfg.SuppressExitErr {
		opts = opts.SuppressNonZeroExitCodeError()
	}
	return opts
}

// CommandString returns the quoted command line, for -print-cmd.
func (b *Builder) CommandString() string {
	return b.Lines(nil).CommandLine()
}

func (b *Builder) input() spawn.Input {
	cfg := b.config
	switch {
	case len(cfg.InputLines) > 0:
		lines := make([]spawn.Line, len(cfg.InputLines))
		for i, text := range cfg.InputLines {
			lines[i] = ParseInputLine(text, cfg.MergeInputErrors)
		}
		return spawn.InputFromLines(lines...)
	case cfg.InputFile == "-" && b.replay:
		return spawn.InputFunc(b.replayStdin)
	case cfg.InputFile == "-":
		return tagged(spawn.InputFromReader(b.stdin), cfg.MergeInputErrors)
	case cfg.InputFile != "":
		return tagged(fileInput(cfg.InputFile), cfg.MergeInputErrors)
	}
	return nil
}

// replayStdin starts reading standard input on first use and yields the
// complete input to every run. A run that ends while the input is still
// being read gets nothing; the read itself carries on for later runs.
func (b *Builder) replayStdin(ctx context.Context) iter.Seq2[spawn.Line, error] {
	b.stdinOnce.Do(func() { go b.loadStdin() })
	return func(yield func(spawn.Line, error) bool) {
		select {
		case <-ctx.Done():
			return
		case <-b.stdinLoaded:
		}
		in := spawn.InputFromLines(b.stdinLines...)
		if b.stdinErr != nil {
			in = spawn.InputFailure(b.stdinErr)
		}
		for line, err := range in.Lines(ctx) {
			if !yield(line, err) {
				return
			}
		}
	}
}

func (b *Builder) loadStdin() {
	defer close(b.stdinLoaded)
	in := tagged(spawn.InputFromReader(b.stdin), b.config.MergeInputErrors)
	for line, err := range in.Lines(context.Background()) {
		if err != nil {
			b.stdinErr = err
			return
		}
		b.stdinLines = append(b.stdinLines, line)
	}
}

// fileInput opens path for every run.
func fileInput(path string) spawn.Input {
	return spawn.InputFunc(func(ctx context.Context) iter.Seq2[spawn.Line, error] {
		return func(yield func(spawn.Line, error) bool) {
			f, err := os.Open(path)
			if err != nil {
				yield(spawn.Line{}, err)
				return
			}
			defer f.Close()
			for line, err := range spawn.InputFromReader(f).Lines(ctx) {
				if !yield(line, err) {
					return
				}
			}
		}
	})
}

// tagged reclassifies the lines of in with ParseInputLine.
func tagged(in spawn.Input, merge bool) spawn.Input {
	if !merge {
		return in
	}
	return spawn.InputFunc(func(ctx context.Context) iter.Seq2[spawn.Line, error] {
		return func(yield func(spawn.Line, error) bool) {
			for line, err := range in.Lines(ctx) {
				if err == nil {
					line = ParseInputLine(line.Text, true)
				}
				if !yield(line, err) {
					return
				}
			}
		}
	})
}

// ParseInputLine turns one input line into a spawn line. With merge set,
// a line carrying ErrorPrefix becomes an error line and OutputPrefix is
// stripped; otherwise the text is passed through untouched.
func ParseInputLine(text string, merge bool) spawn.Line {
	if !merge {
		return spawn.OutputLine(text)
	}
	if rest, ok := strings.CutPrefix(text, ErrorPrefix); ok {
		return spawn.ErrorLine(rest)
	}
	if rest, ok := strings.CutPrefix(text, OutputPrefix); ok {
		return spawn.OutputLine(rest)
	}
	return spawn.OutputLine(text)
}

// FormatLine renders a child line for printing, with its stream prefix
// when prefix is set.
func FormatLine(line spawn.Line, prefix bool) string {
	if !prefix {
		return line.Text
	}
	return spawn.Match(line,
		func(s string) string { return OutputPrefix + s },
		func(s string) string { return ErrorPrefix + s },
	)
}
