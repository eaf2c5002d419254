package spawn

import (
	"errors"
	"os"
	"runtime"
	"slices"
	"strings"
)

// ExitCodeErrorArgs describes a finished process to an ExitCodeErrorFunc.
type ExitCodeErrorArgs struct {
	Path     string
	Args     []string
	PID      int
	ExitCode int
}

// ExitCodeErrorFunc decides whether an exit code is a failure. A nil
// return means success.
type ExitCodeErrorFunc func(ExitCodeErrorArgs) error

// KillErrorFunc filters an unexpected termination error raised while a
// subscription is being closed. A nil return discards the error.
type KillErrorFunc func(error) error

// SuppressExitCodeError is an ExitCodeErrorFunc that treats every exit
// code as success.
func SuppressExitCodeError(ExitCodeErrorArgs) error { return nil }

// EnvVar is one entry of the child environment.
type EnvVar struct {
	Name  string
	Value string
}

func (v EnvVar) String() string { return v.Name + "=" + v.Value }

// Options is the immutable description of how to run a program. Every
// modifier returns a new value and leaves the receiver unchanged.
//
// The zero value runs in the current directory with an empty environment;
// NewOptions snapshots the current directory and environment instead.
type Options struct {
	args  []string
	dir   string
	env   []EnvVar
	input Input

	mergeInputErrors bool
	exitCodeError    ExitCodeErrorFunc
	killError        KillErrorFunc
	processFactory   ProcessFactory
}

// NewOptions returns options with no arguments, the current working
// directory and a snapshot of the current environment. If the working
// directory cannot be determined the directory is left empty and the child
// inherits the parent's.
func NewOptions() Options {
	dir, _ := os.Getwd()
	return Options{
		dir: dir,
		env: parseEnviron(os.Environ()),
	}
}

func parseEnviron(environ []string) []EnvVar {
	env := make([]EnvVar, 0, len(environ))
	for _, kv := range environ {
		name, value, _ := strings.Cut(kv, "=")
		// Windows keeps per-drive directories as "=C:=C:\\".
		if name == "" {
			continue
		}
		env = append(env, EnvVar{Name: name, Value: value})
	}
	return env
}

// Args returns a copy of the argument list.
func (o Options) Args() []string { return slices.Clone(o.args) }

// Dir returns the working directory.
func (o Options) Dir() string { return o.dir }

// Env returns a copy of the environment table.
func (o Options) Env() []EnvVar { return slices.Clone(o.env) }

// Environ returns the environment in "NAME=value" form.
func (o Options) Environ() []string {
	environ := make([]string, 0, len(o.env))
	for _, v := range o.env {
		environ = append(environ, v.String())
	}
	return environ
}

// LookupEnv returns the value of a variable and whether it is set.
func (o Options) LookupEnv(name string) (string, bool) {
	i := o.envIndex(name)
	if i < 0 {
		return "", false
	}
	return o.env[i].Value, true
}

// Input returns the configured input sequence, or nil.
func (o Options) Input() Input { return o.input }

// MergeInputErrors reports whether error-tagged input lines are forwarded
// to the error channel.
func (o Options) MergeInputErrors() bool { return o.mergeInputErrors }

// ExitCodeError returns the exit-code policy, or nil for the default.
func (o Options) ExitCodeError() ExitCodeErrorFunc { return o.exitCodeError }

// KillError returns the kill-error policy, or nil for the default.
func (o Options) KillError() KillErrorFunc { return o.killError }

// ProcessFactory returns the process factory override, or nil.
func (o Options) ProcessFactory() ProcessFactory { return o.processFactory }

// WithArgs replaces the argument list.
func (o Options) WithArgs(args ...string) Options {
	o.args = slices.Clone(args)
	return o
}

// AddArgs appends arguments.
func (o Options) AddArgs(args ...string) Options {
	o.args = append(slices.Clone(o.args), args...)
	return o
}

// ClearArgs removes all arguments.
func (o Options) ClearArgs() Options {
	o.args = nil
	return o
}

// WithDir sets the working directory.
func (o Options) WithDir(dir string) Options {
	o.dir = dir
	return o
}

// WithEnv replaces the whole environment table.
func (o Options) WithEnv(env ...EnvVar) Options {
	o.env = nil
	for _, v := range env {
		o = o.SetEnv(v.Name, v.Value)
	}
	if o.env == nil {
		o.env = []EnvVar{}
	}
	return o
}

// AddEnv sets a variable only if it is not already set.
func (o Options) AddEnv(name, value string) Options {
	if o.envIndex(name) >= 0 {
		return o
	}
	o.env = append(slices.Clone(o.env), EnvVar{Name: name, Value: value})
	return o
}

// SetEnv sets a variable, replacing any existing value.
func (o Options) SetEnv(name, value string) Options {
	env := slices.Clone(o.env)
	if i := o.envIndex(name); i >= 0 {
		env[i].Value = value
	} else {
		env = append(env, EnvVar{Name: name, Value: value})
	}
	o.env = env
	return o
}

// UnsetEnv removes a variable. Names are compared case-insensitively on
// Windows.
func (o Options) UnsetEnv(name string) Options {
	i := o.envIndex(name)
	if i < 0 {
		return o
	}
	o.env = slices.Delete(slices.Clone(o.env), i, i+1)
	return o
}

// ClearEnv empties the environment table.
func (o Options) ClearEnv() Options {
	o.env = []EnvVar{}
	return o
}

func (o Options) envIndex(name string) int {
	return slices.IndexFunc(o.env, func(v EnvVar) bool {
		return envNameEqual(v.Name, name)
	})
}

func envNameEqual(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// WithInput sets the sequence of lines written to the child's standard
// input. A nil input leaves standard input unredirected.
func (o Options) WithInput(in Input) Options {
	o.input = in
	return o
}

// WithMergedInputErrors controls what happens to error-tagged input lines.
// When enabled they are delivered on the error channel as if the child had
// written them (if that channel is subscribed); when disabled, the default,
// they are skipped. They are never written to the child.
func (o Options) WithMergedInputErrors(merge bool) Options {
	o.mergeInputErrors = merge
	return o
}

// WithExitCodeError installs an exit-code policy. A nil policy restores
// the default, under which any non-zero code is an *ExitError.
func (o Options) WithExitCodeError(fn ExitCodeErrorFunc) Options {
	o.exitCodeError = fn
	return o
}

// SuppressNonZeroExitCodeError makes every exit code a success.
func (o Options) SuppressNonZeroExitCodeError() Options {
	return o.WithExitCodeError(SuppressExitCodeError)
}

// WithKillError installs a filter for unexpected termination errors seen
// when a subscription is closed. By default they are discarded.
func (o Options) WithKillError(fn KillErrorFunc) Options {
	o.killError = fn
	return o
}

// WithProcessFactory overrides the spawner's process factory.
func (o Options) WithProcessFactory(f ProcessFactory) Options {
	o.processFactory = f
	return o
}

// Validate reports configuration errors for running path with o.
func (o Options) Validate(path string) error {
	var errs []error
	if path == "" {
		errs = append(errs, ErrEmptyPath)
	}
	for _, v := range o.env {
		if v.Name == "" {
			errs = append(errs, ErrEmptyEnvName)
			break
		}
	}
	return errors.Join(errs...)
}

// launchSpec builds the launch description for path.
func (o Options) launchSpec(path string, stdout, stderr bool) LaunchSpec {
	return LaunchSpec{
		Path:           path,
		Args:           o.Args(),
		Dir:            o.dir,
		Env:            o.Environ(),
		RedirectStdout: stdout,
		RedirectStderr: stderr,
		RedirectStdin:  o.input != nil,
	}
}
