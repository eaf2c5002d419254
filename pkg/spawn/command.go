package spawn

import (
	"context"
	"iter"
)

// Command is an immutable description of a program run whose lines are
// turned into values of type T. Modifiers return a copy. Each call to
// Subscribe, Seq, Collect or Run spawns a new process.
type Command[T any] struct {
	spawner *Spawner
	path    string
	opts    Options
	// A selector turns a line into a value, or drops it. A nil selector
	// leaves the stream unredirected.
	sel [2]func(string) (T, bool)
}

// NewCommand returns a command running path with NewOptions. stdout and
// stderr transform the lines of each stream; nil leaves the stream
// unredirected. A nil spawner uses a new default Spawner for every run.
func NewCommand[T any](s *Spawner, path string, stdout, stderr func(string) T) Command[T] {
	c := Command[T]{spawner: s, path: path, opts: NewOptions()}
	if stdout != nil {
		c.sel[StreamOutput] = func(text string) (T, bool) { return stdout(text), true }
	}
	if stderr != nil {
		c.sel[StreamError] = func(text string) (T, bool) { return stderr(text), true }
	}
	return c
}

func identity(text string) string { return text }

// Lines captures both streams as tagged lines.
func Lines(s *Spawner, path string, args ...string) Command[Line] {
	return NewCommand(s, path, OutputLine, ErrorLine).AddArgs(args...)
}

// Output captures standard output only; standard error is inherited.
func Output(s *Spawner, path string, args ...string) Command[string] {
	return NewCommand(s, path, identity, nil).AddArgs(args...)
}

// Errors captures standard error only; standard output is inherited.
func Errors(s *Spawner, path string, args ...string) Command[string] {
	return NewCommand(s, path, nil, identity).AddArgs(args...)
}

// TaggedLines captures both streams, tagging each line with outKey or errKey.
func TaggedLines[K any](s *Spawner, path string, outKey, errKey K, args ...string) Command[Tagged[K]] {
	return NewCommand(s, path,
		func(text string) Tagged[K] { return Tagged[K]{Key: outKey, Text: text} },
		func(text string) Tagged[K] { return Tagged[K]{Key: errKey, Text: text} },
	).AddArgs(args...)
}

// Exec captures nothing: both streams are inherited and the run concludes
// when the process exits.
func Exec(s *Spawner, path string, args ...string) Command[struct{}] {
	return NewCommand[struct{}](s, path, nil, nil).AddArgs(args...)
}

// Path returns the program path.
func (c Command[T]) Path() string { return c.path }

// Options returns the run options.
func (c Command[T]) Options() Options { return c.opts }

// Captures reports whether the stream is redirected and captured.
func (c Command[T]) Captures(stream Stream) bool {
	return (stream == StreamOutput || stream == StreamError) && c.sel[stream] != nil
}

// CommandLine returns the quoted command line, for display.
func (c Command[T]) CommandLine() string {
	return c.opts.launchSpec(c.path, false, false).CommandLine()
}

// WithPath returns a copy running a different program.
func (c Command[T]) WithPath(path string) Command[T] {
	c.path = path
	return c
}

// WithSpawner returns a copy using s.
func (c Command[T]) WithSpawner(s *Spawner) Command[T] {
	c.spawner = s
	return c
}

// WithOptions returns a copy with opts replacing the current options.
func (c Command[T]) WithOptions(opts Options) Command[T] {
	c.opts = opts
	return c
}

// Configure returns a copy with the options transformed by fn.
func (c Command[T]) Configure(fn func(Options) Options) Command[T] {
	c.opts = fn(c.opts)
	return c
}

// AddArgs returns a copy with args appended.
func (c Command[T]) AddArgs(args ...string) Command[T] {
	if len(args) == 0 {
		return c
	}
	c.opts = c.opts.AddArgs(args...)
	return c
}

// WithDir returns a copy running in dir.
func (c Command[T]) WithDir(dir string) Command[T] {
	c.opts = c.opts.WithDir(dir)
	return c
}

// SetEnv returns a copy with the variable set.
func (c Command[T]) SetEnv(name, value string) Command[T] {
	c.opts = c.opts.SetEnv(name, value)
	return c
}

// UnsetEnv returns a copy with the variable removed.
func (c Command[T]) UnsetEnv(name string) Command[T] {
	c.opts = c.opts.UnsetEnv(name)
	return c
}

// WithInput returns a copy feeding in to standard input.
func (c Command[T]) WithInput(in Input) Command[T] {
	c.opts = c.opts.WithInput(in)
	return c
}

func (c Command[T]) spawnerOrDefault() *Spawner {
	if c.spawner != nil {
		return c.spawner
	}
	return New(Config{})
}

type maybe[T any] struct {
	v  T
	ok bool
}

type droppingObserver[T any] struct {
	obs Observer[T]
}

func (d droppingObserver[T]) OnNext(m maybe[T]) {
	if m.ok {
		d.obs.OnNext(m.v)
	}
}

func (d droppingObserver[T]) OnError(err error) { d.obs.OnError(err) }
func (d droppingObserver[T]) OnCompleted()      { d.obs.OnCompleted() }

// Subscribe spawns the process and delivers its values to obs. See the
// package-level Subscribe for the error contract.
func (c Command[T]) Subscribe(ctx context.Context, obs Observer[T]) (*Subscription, error) {
	var selectors [2]func(string) maybe[T]
	for i, sel := range c.sel {
		if sel == nil {
			continue
		}
		selectors[i] = func(text string) maybe[T] {
			v, ok := sel(text)
			return maybe[T]{v: v, ok: ok}
		}
	}
	return Subscribe[maybe[T]](ctx, c.spawnerOrDefault(), c.path, c.opts,
		selectors[StreamOutput], selectors[StreamError], droppingObserver[T]{obs: obs})
}

// Seq runs the process and yields its values. A failure, including a
// non-zero exit code under the default policy, is yielded last as a
// non-nil error. Stopping the iteration early terminates the process.
func (c Command[T]) Seq(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		type item struct {
			v   T
			err error
			end bool
		}
		items := make(chan item, 64)
		send := func(it item) {
			select {
			case items <- it:
			case <-ctx.Done():
			}
		}

		var zero T
		sub, err := c.Subscribe(ctx, ObserverFuncs[T]{
			Next:      func(v T) { send(item{v: v}) },
			Error:     func(err error) { send(item{err: err, end: true}) },
			Completed: func() { send(item{end: true}) },
		})
		if err != nil {
			yield(zero, err)
			return
		}
		defer sub.Close()

		for {
			select {
			case it := <-items:
				if it.end {
					if it.err != nil {
						yield(zero, it.err)
					}
					return
				}
				if !yield(it.v, nil) {
					return
				}
			case <-ctx.Done():
				yield(zero, ctx.Err())
				return
			}
		}
	}
}

// Collect runs the process and returns all of its values. On failure the
// values received so far are returned with the error.
func (c Command[T]) Collect(ctx context.Context) ([]T, error) {
	var values []T
	for v, err := range c.Seq(ctx) {
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Run runs the process fire-and-forget, with both streams inherited, and
// returns its exit code.
//
// Unlike Subscribe, Seq and Collect, Run does not treat a non-zero exit
// code as a failure and ignores any exit-code policy: the code is the
// result. The error is non-nil only if the process could not be started,
// its input sequence failed, or ctx was cancelled, in which case the
// process is terminated.
func (c Command[T]) Run(ctx context.Context) (ExitCode, error) {
	code := -1
	opts := c.opts.WithExitCodeError(func(a ExitCodeErrorArgs) error {
		code = a.ExitCode
		return nil
	})

	result := make(chan error, 1)
	sub, err := Subscribe[struct{}](ctx, c.spawnerOrDefault(), c.path, opts, nil, nil, ObserverFuncs[struct{}]{
		Error:     func(err error) { result <- err },
		Completed: func() { result <- nil },
	})
	if err != nil {
		return -1, err
	}

	select {
	case err := <-result:
		if err != nil {
			return -1, err
		}
		return ExitCode(code), nil
	case <-ctx.Done():
		sub.Close()
		return -1, ctx.Err()
	}
}

// Map returns a command whose values are f applied to c's values.
func Map[T, U any](c Command[T], f func(T) U) Command[U] {
	out := Command[U]{spawner: c.spawner, path: c.path, opts: c.opts}
	for i, sel := range c.sel {
		if sel == nil {
			continue
		}
		out.sel[i] = func(text string) (U, bool) {
			v, ok := sel(text)
			if !ok {
				var zero U
				return zero, false
			}
			return f(v), true
		}
	}
	return out
}

// Filter returns a command delivering only the values for which keep
// returns true.
func Filter[T any](c Command[T], keep func(T) bool) Command[T] {
	out := c
	for i, sel := range c.sel {
		if sel == nil {
			continue
		}
		out.sel[i] = func(text string) (T, bool) {
			v, ok := sel(text)
			if !ok || !keep(v) {
				var zero T
				return zero, false
			}
			return v, true
		}
	}
	return out
}

// FilterOutput keeps the standard output lines of c as strings. Standard
// error is no longer captured.
func FilterOutput(c Command[Line]) Command[string] {
	return filterStream(c, StreamOutput)
}

// FilterError keeps the standard error lines of c as strings. Standard
// output is no longer captured.
func FilterError(c Command[Line]) Command[string] {
	return filterStream(c, StreamError)
}

func filterStream(c Command[Line], stream Stream) Command[string] {
	out := Command[string]{spawner: c.spawner, path: c.path, opts: c.opts}
	sel := c.sel[stream]
	if sel == nil {
		return out
	}
	out.sel[stream] = func(text string) (string, bool) {
		l, ok := sel(text)
		if !ok || l.Stream != stream {
			return "", false
		}
		return l.Text, true
	}
	return out
}

// AsInput returns an input that runs c and feeds its lines to another
// process. Output lines are written to that process; error lines follow
// its merged-input-errors setting. A failure of c fails the other run.
func AsInput(c Command[Line]) Input {
	return InputFunc(c.Seq)
}

// Pipe returns second with the lines of first as its input. Error lines of
// first are delivered on second's error channel.
func Pipe[T any](first Command[Line], second Command[T]) Command[T] {
	second.opts = second.opts.WithInput(AsInput(first)).WithMergedInputErrors(true)
	return second
}
