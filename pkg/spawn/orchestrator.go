package spawn

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// completion holds the flags that decide when a run may conclude.
type completion struct {
	outputClosed bool
	errorClosed  bool
	exited       bool
	killed       bool
}

// orchestration drives one process from start to its single terminal
// notification. Line and exit callbacks arrive on goroutines owned by the
// Process; the flags are only read and written under mu, and mu is never
// held while the observer runs.
type orchestration[T any] struct {
	path      string
	opts      Options
	proc      Process
	obs       Observer[T]
	logger    *slog.Logger
	hooks     Hooks
	selectors [2]func(string) T // nil: stream not captured

	mu            sync.Mutex
	flags         completion
	state         State
	pid           int
	started       time.Time
	startReturned bool // an exit seen before this is handled by Subscribe

	// emitMu serializes observer calls.
	emitMu sync.Mutex

	inputCtx    context.Context
	cancelInput context.CancelFunc

	disposeOnce sync.Once
	doneOnce    sync.Once
	done        chan struct{}
}

// Subscribe starts path with opts and delivers its lines to obs.
//
// stdout and stderr transform the lines of the corresponding stream into
// values. A nil transform leaves that stream unredirected; with both nil
// the process runs fire-and-forget and concludes on exit alone.
//
// A start failure (*StartError) or a failure to set up a stream
// (*StreamSetupError) is returned here, after the process has been
// terminated and released, and obs is never called. Every later failure,
// including a non-zero exit code under the default policy, is delivered
// to obs as the terminal notification.
//
// Cancelling ctx has the same effect as closing the returned Subscription.
func Subscribe[T any](ctx context.Context, s *Spawner, path string, opts Options,
	stdout, stderr func(string) T, obs Observer[T]) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := opts.Validate(path); err != nil {
		return nil, err
	}

	spec := opts.launchSpec(path, stdout != nil, stderr != nil)
	o := &orchestration[T]{
		path:      path,
		opts:      opts,
		obs:       obs,
		logger:    s.logger,
		hooks:     s.hooks,
		selectors: [2]func(string) T{stdout, stderr},
		state:     StateRunning,
		done:      make(chan struct{}),
	}
	o.inputCtx, o.cancelInput = context.WithCancel(context.Background())

	proc := s.processFactory(opts)(spec)
	o.proc = proc
	for _, stream := range []Stream{StreamOutput, StreamError} {
		if o.required(stream) {
			proc.OnLine(stream, func(ev LineEvent) { o.onLine(stream, ev) })
		}
	}
	proc.OnExited(o.onExited)

	err := proc.Start()
	o.mu.Lock()
	o.startReturned = true
	if err != nil {
		o.state = StateKilled
		o.mu.Unlock()
		o.cancelInput()
		o.release()
		o.logger.Debug("spawn_start_failed", "path", path, "error", err)
		return nil, &StartError{Path: path, Err: err}
	}
	o.pid = proc.PID()
	o.started = time.Now()
	exitedEarly := o.flags.exited
	o.mu.Unlock()

	o.logger.Debug("spawn_started",
		"path", path,
		"pid", o.pid,
		"stdout", spec.RedirectStdout,
		"stderr", spec.RedirectStderr,
		"stdin", spec.RedirectStdin,
	)
	if o.hooks.OnStart != nil {
		o.hooks.OnStart(path, o.pid)
	}
	if exitedEarly {
		o.reportExit()
	}

	for _, stream := range []Stream{StreamOutput, StreamError} {
		if !o.required(stream) {
			continue
		}
		if err := proc.BeginRead(stream); err != nil {
			o.abort()
			return nil, &StreamSetupError{Stream: stream.String(), Err: err}
		}
	}

	if in := opts.Input(); in != nil {
		stdin, err := proc.Stdin()
		if err != nil {
			o.abort()
			return nil, &StreamSetupError{Stream: "stdin", Err: err}
		}
		go o.pumpInput(in, stdin)
	}

	sub := &Subscription{
		close: o.close,
		done:  o.done,
		pid:   o.pid,
		state: o.currentState,
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Close()
			case <-o.done:
			}
		}()
	}
	return sub, nil
}

func (o *orchestration[T]) required(stream Stream) bool {
	return o.selectors[stream] != nil
}

func (o *orchestration[T]) drainedLocked() bool {
	return (!o.required(StreamOutput) || o.flags.outputClosed) &&
		(!o.required(StreamError) || o.flags.errorClosed)
}

func (o *orchestration[T]) markClosedLocked(stream Stream) {
	if stream == StreamOutput {
		o.flags.outputClosed = true
	} else {
		o.flags.errorClosed = true
	}
}

func (o *orchestration[T]) currentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *orchestration[T]) onLine(stream Stream, ev LineEvent) {
	o.mu.Lock()
	if o.flags.killed {
		if ev.EOF {
			o.markClosedLocked(stream)
		}
		release := o.flags.exited && o.drainedLocked()
		o.mu.Unlock()
		if release {
			o.release()
		}
		return
	}
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	if ev.EOF {
		o.markClosedLocked(stream)
	}
	conclude := o.startReturned && o.flags.exited && o.drainedLocked()
	if conclude {
		o.state = StateConcluding
	}
	o.mu.Unlock()

	if !ev.EOF {
		o.emitNext(stream, o.selectors[stream](ev.Text))
	}
	if conclude {
		o.conclude()
	}
}

func (o *orchestration[T]) onExited() {
	o.mu.Lock()
	o.flags.exited = true
	early := !o.startReturned
	o.mu.Unlock()
	if !early {
		o.reportExit()
	}
}

// reportExit runs once the exit has been flagged and Start has returned.
func (o *orchestration[T]) reportExit() {
	code := o.proc.ExitCode()

	o.mu.Lock()
	pid, started := o.pid, o.started
	var conclude, release bool
	switch {
	case o.flags.killed:
		release = o.drainedLocked()
	case o.state == StateRunning && o.drainedLocked():
		o.state = StateConcluding
		conclude = true
	}
	o.mu.Unlock()

	runtime := time.Since(started)
	o.logger.Debug("spawn_exited",
		"path", o.path,
		"pid", pid,
		"exit_code", code,
		"runtime", runtime.String(),
	)
	if o.hooks.OnExit != nil {
		o.hooks.OnExit(o.path, pid, code, runtime)
	}

	if release {
		o.release()
	}
	if conclude {
		o.conclude()
	}
}

// conclude computes the outcome and delivers it. It runs at most once,
// guarded by the transition to StateConcluding.
func (o *orchestration[T]) conclude() {
	o.cancelInput()

	code := o.proc.ExitCode()
	var err error
	if policy := o.opts.ExitCodeError(); policy != nil {
		err = policy(ExitCodeErrorArgs{
			Path:     o.path,
			Args:     o.opts.Args(),
			PID:      o.pid,
			ExitCode: code,
		})
	} else if code != 0 {
		err = newProcessExitError(o.path, o.pid, code)
	}

	o.dispose()
	o.emitTerminal(err)
	o.finish()
}

// close handles cancellation by the subscriber.
func (o *orchestration[T]) close() error {
	o.mu.Lock()
	if o.flags.killed || o.state != StateRunning {
		o.mu.Unlock()
		return nil
	}
	o.flags.killed = true
	o.state = StateKilled
	exited := o.flags.exited
	pid := o.pid
	o.mu.Unlock()

	o.cancelInput()
	o.logger.Debug("spawn_cancelled", "path", o.path, "pid", pid, "exited", exited)

	if exited {
		// Only the pipes are left; a descendant may hold them open forever.
		o.release()
		return nil
	}

	res := o.proc.TryTerminate()
	o.terminated(pid, res)
	if res.Status != TerminateUnexpected {
		return nil
	}
	if filter := o.opts.KillError(); filter != nil {
		return filter(&TerminateError{PID: pid, Err: res.Err})
	}
	return nil
}

// abort undoes a partially set up run.
func (o *orchestration[T]) abort() {
	o.mu.Lock()
	o.flags.killed = true
	o.state = StateKilled
	pid := o.pid
	o.mu.Unlock()

	o.cancelInput()
	o.terminated(pid, o.proc.TryTerminate())
	o.release()
}

func (o *orchestration[T]) pumpInput(in Input, stdin io.WriteCloser) {
	defer stdin.Close()

	ctx := o.inputCtx
	for line, err := range in.Lines(ctx) {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			o.failInput(err)
			return
		}
		if line.IsError() {
			if o.opts.MergeInputErrors() && o.required(StreamError) {
				o.emitNext(StreamError, o.selectors[StreamError](line.Text))
			} else {
				o.logger.Debug("spawn_input_error_line_skipped", "path", o.path, "pid", o.pid)
			}
			continue
		}
		if _, err := io.WriteString(stdin, line.Text+"\n"); err != nil {
			// The child stopped reading; it decides its own outcome.
			o.logger.Debug("spawn_input_write_failed", "path", o.path, "pid", o.pid, "error", err)
			return
		}
	}
}

// failInput terminates the process and reports an input sequence error
// as the terminal notification.
func (o *orchestration[T]) failInput(err error) {
	o.mu.Lock()
	if o.flags.killed || o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	o.flags.killed = true
	o.state = StateConcluding
	pid := o.pid
	o.mu.Unlock()

	o.logger.Debug("spawn_input_failed", "path", o.path, "pid", pid, "error", err)
	o.terminated(pid, o.proc.TryTerminate())
	o.emitTerminal(&InputError{Err: err})
	o.finish()
}

func (o *orchestration[T]) terminated(pid int, res TerminateResult) {
	o.logger.Debug("spawn_terminate_requested",
		"path", o.path,
		"pid", pid,
		"result", res.Status.String(),
		"error", res.Err,
	)
	if o.hooks.OnTerminate != nil {
		o.hooks.OnTerminate(o.path, pid, res)
	}
}

func (o *orchestration[T]) emitNext(stream Stream, v T) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	silent := o.flags.killed || o.state == StateConcluded
	o.mu.Unlock()
	if silent {
		return
	}
	if o.hooks.OnLine != nil {
		o.hooks.OnLine(o.path, stream)
	}
	o.obs.OnNext(v)
}

func (o *orchestration[T]) emitTerminal(err error) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	o.state = StateConcluded
	o.mu.Unlock()

	o.logger.Debug("spawn_concluded", "path", o.path, "pid", o.pid, "error", err)
	if err != nil {
		o.obs.OnError(err)
	} else {
		o.obs.OnCompleted()
	}
}

func (o *orchestration[T]) dispose() {
	o.disposeOnce.Do(func() {
		if err := o.proc.Close(); err != nil {
			o.logger.Debug("spawn_dispose_failed", "path", o.path, "error", err)
		}
	})
}

func (o *orchestration[T]) finish() {
	o.doneOnce.Do(func() { close(o.done) })
}

func (o *orchestration[T]) release() {
	o.dispose()
	o.finish()
}
