package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-spawn/internal/logging"
	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

// TimeoutExitCode is recorded for a run terminated by its per-run timeout.
const TimeoutExitCode = 124

// KilledExitCode is recorded for a run killed because the supervisor was
// stopped (128 + SIGKILL).
const KilledExitCode = 137

// stopTimeout bounds the wait for a cancelled run to release its process.
const stopTimeout = 5 * time.Second

// ErrMaxRestarts is returned by Run when the restart limit is reached.
var ErrMaxRestarts = errors.New("max restarts reached")

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the instance state changes.
	OnStateChange func(instanceID int, oldState, newState State)

	// OnStart is called when a child process starts.
	OnStart func(instanceID int, pid int)

	// OnExit is called when a run ends.
	OnExit func(instanceID int, exitCode int, uptime time.Duration)

	// OnRestart is called before a restart attempt.
	OnRestart func(instanceID int, attempt int, delay time.Duration)

	// OnLine is called for every line of the child. It runs on the
	// child's stream goroutine and must not block.
	OnLine func(instanceID int, line spawn.Line)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	InstanceID  int
	Command     spawn.Command[spawn.Line]
	Policy      RestartPolicy
	Backoff     *Backoff
	Logger      *slog.Logger
	Callbacks   Callbacks
	MaxRestarts int           // 0 = unlimited
	Timeout     time.Duration // per run, 0 = none
	TailLines   int           // lines logged when a run fails
	Verbose     bool
}

// Supervisor runs one instance of a command and restarts it according to
// its policy.
type Supervisor struct {
	instanceID  int
	command     spawn.Command[spawn.Line]
	policy      RestartPolicy
	backoff     *Backoff
	logger      *slog.Logger
	callbacks   Callbacks
	maxRestarts int
	timeout     time.Duration
	tailLines   int
	verbose     bool

	state     State
	stateMu   sync.RWMutex
	startTime time.Time
	pid       int

	restarts     atomic.Int64
	lastExitCode atomic.Int64

	linesMu sync.Mutex
	lines   *logging.LineLogger // last run
}

// runResult is the outcome of one run.
type runResult struct {
	exitCode int
	uptime   time.Duration
	failed   bool
	err      error
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NewBackoff(cfg.InstanceID, 0, DefaultBackoffConfig())
	}
	policy := cfg.Policy
	if policy == "" {
		policy = RestartNever
	}

	s := &Supervisor{
		instanceID:  cfg.InstanceID,
		command:     cfg.Command,
		policy:      policy,
		backoff:     backoff,
		logger:      logger,
		callbacks:   cfg.Callbacks,
		maxRestarts: cfg.MaxRestarts,
		timeout:     cfg.Timeout,
		tailLines:   cfg.TailLines,
		verbose:     cfg.Verbose,
		state:       StateCreated,
	}
	s.lastExitCode.Store(-1)
	return s
}

// Run starts the supervision loop. It returns when the policy declines a
// restart, the restart limit is reached, or ctx is cancelled.
//
// Without restarts the error is that of the last run: nil on success.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Debug("supervisor_starting", "instance", s.instanceID, "policy", string(s.policy))

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			s.logger.Debug("supervisor_stopped", "instance", s.instanceID, "reason", "context_cancelled")
			return ctx.Err()
		default:
		}

		res := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StateStopped)
			return ctx.Err()
		}

		if !s.policy.ShouldRestart(res.failed) {
			s.setState(StateStopped)
			s.logger.Debug("supervisor_stopped", "instance", s.instanceID, "reason", "policy")
			return res.err
		}

		restarts := int(s.restarts.Load())
		if s.maxRestarts > 0 && restarts >= s.maxRestarts {
			s.setState(StateStopped)
			s.logger.Warn("max_restarts_reached",
				"instance", s.instanceID,
				"restarts", restarts,
				"max", s.maxRestarts,
			)
			if res.err != nil {
				return errors.Join(ErrMaxRestarts, res.err)
			}
			return ErrMaxRestarts
		}

		delay := s.backoff.Delay(s.policy, res.uptime, res.exitCode)
		attempt := int(s.restarts.Add(1))

		if s.callbacks.OnRestart != nil {
			s.callbacks.OnRestart(s.instanceID, attempt, delay)
		}
		s.logger.Info("instance_restart_scheduled",
			"instance", s.instanceID,
			"attempt", attempt,
			"delay", delay.String(),
		)

		s.setState(StateBackoff)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateStopped)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runOnce runs the command once and waits for its terminal notification.
func (s *Supervisor) runOnce(ctx context.Context) runResult {
	s.setState(StateStarting)

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	lines := logging.NewLineLogger(s.instanceID, s.logger, s.verbose)
	s.linesMu.Lock()
	s.lines = lines
	s.linesMu.Unlock()

	var exitCode atomic.Int64
	exitCode.Store(-1)
	prev := s.command.Options().ExitCodeError()
	cmd := s.command.Configure(func(o spawn.Options) spawn.Options {
		return o.WithExitCodeError(func(a spawn.ExitCodeErrorArgs) error {
			exitCode.Store(int64(a.ExitCode))
			if prev != nil {
				return prev(a)
			}
			if a.ExitCode != 0 {
				return spawn.ExitCode(a.ExitCode).Err()
			}
			return nil
		})
	})

	result := make(chan error, 1)
	start := time.Now()
	sub, err := cmd.Subscribe(runCtx, spawn.ObserverFuncs[spawn.Line]{
		Next: func(line spawn.Line) {
			lines.HandleLine(line)
			if s.callbacks.OnLine != nil {
				s.callbacks.OnLine(s.instanceID, line)
			}
		},
		Error:     func(err error) { result <- err },
		Completed: func() { result <- nil },
	})
	if err != nil {
		s.logger.Error("failed_to_start_process",
			"instance", s.instanceID,
			"command", cmd.CommandLine(),
			"error", err,
		)
		return s.finishRun(runResult{exitCode: 1, failed: true, err: err})
	}

	s.stateMu.Lock()
	s.startTime = start
	s.pid = sub.PID()
	s.stateMu.Unlock()
	s.setState(StateRunning)

	s.logger.Info("instance_started", "instance", s.instanceID, "pid", sub.PID())
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(s.instanceID, sub.PID())
	}

	var res runResult
	select {
	case err := <-result:
		res = runResult{exitCode: int(exitCode.Load()), err: err, failed: err != nil}
		if res.exitCode < 0 {
			// The run failed before the process reported an exit code.
			res.exitCode = 1
		}
	case <-runCtx.Done():
		sub.Close()
		s.waitReleased(sub)
		res = runResult{exitCode: TimeoutExitCode, failed: true, err: runCtx.Err()}
		if ctx.Err() == nil {
			s.logger.Warn("instance_timeout", "instance", s.instanceID, "timeout", s.timeout.String())
		} else {
			res.exitCode = KilledExitCode
		}
	}
	res.uptime = time.Since(start)
	return s.finishRun(res)
}

// finishRun records and reports the end of a run.
func (s *Supervisor) finishRun(res runResult) runResult {
	s.lastExitCode.Store(int64(res.exitCode))

	s.stateMu.Lock()
	pid := s.pid
	s.pid = 0
	s.stateMu.Unlock()

	s.logger.Info("instance_exited",
		"instance", s.instanceID,
		"pid", pid,
		"exit_code", res.exitCode,
		"uptime", res.uptime.String(),
	)
	if res.failed && s.tailLines > 0 {
		s.logFailureTail(res)
	}

	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(s.instanceID, res.exitCode, res.uptime)
	}
	return res
}

// logFailureTail logs the last lines of a failed run.
func (s *Supervisor) logFailureTail(res runResult) {
	lines := s.RecentLines(s.tailLines)
	if len(lines) == 0 {
		return
	}
	tail := make([]string, len(lines))
	for i, l := range lines {
		tail[i] = l.Stream.String() + ": " + l.Text
	}
	s.logger.Warn("instance_failed",
		"instance", s.instanceID,
		"exit_code", res.exitCode,
		"error", res.err,
		"tail", tail,
		"error_counts", s.errorCounts(),
	)
}

func (s *Supervisor) errorCounts() map[string]int {
	s.linesMu.Lock()
	defer s.linesMu.Unlock()
	if s.lines == nil {
		return nil
	}
	return s.lines.CountErrors()
}

// waitReleased waits for a closed subscription to release its process.
func (s *Supervisor) waitReleased(sub *spawn.Subscription) {
	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-sub.Done():
	case <-timer.C:
		s.logger.Warn("process_release_timeout",
			"instance", s.instanceID,
			"pid", sub.PID(),
			"timeout", stopTimeout.String(),
		)
	}
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(s.instanceID, oldState, newState)
	}
}

// InstanceID returns the instance ID for this supervisor.
func (s *Supervisor) InstanceID() int {
	return s.instanceID
}

// Restarts returns the number of restarts that have occurred.
func (s *Supervisor) Restarts() int {
	return int(s.restarts.Load())
}

// LastExitCode returns the exit code of the last run, or -1 before the
// first run ended.
func (s *Supervisor) LastExitCode() int {
	return int(s.lastExitCode.Load())
}

// PID returns the pid of the running process, or 0.
func (s *Supervisor) PID() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.pid
}

// Uptime returns the current uptime if running, or 0 if not.
func (s *Supervisor) Uptime() time.Duration {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.state != StateRunning {
		return 0
	}
	return time.Since(s.startTime)
}

// RecentLines returns up to n lines of the current or last run.
func (s *Supervisor) RecentLines(n int) []spawn.Line {
	s.linesMu.Lock()
	lines := s.lines
	s.linesMu.Unlock()
	if lines == nil {
		return nil
	}
	return lines.RecentLines(n)
}
