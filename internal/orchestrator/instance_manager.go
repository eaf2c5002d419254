package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-spawn/internal/supervisor"
	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

// InstanceManager coordinates the supervisors of all instances.
// It handles starting instances, tracking their state, and coordinating shutdown.
type InstanceManager struct {
	command spawn.Command[spawn.Line]
	logger  *slog.Logger
	seed    int64

	backoffConfig supervisor.BackoffConfig
	policy        supervisor.RestartPolicy
	maxRestarts   int
	timeout       time.Duration
	tailLines     int
	verbose       bool

	// Supervisors indexed by instance ID
	supervisors map[int]*supervisor.Supervisor
	mu          sync.RWMutex

	// Instances whose current run has a process.
	running   map[int]bool
	runningMu sync.Mutex

	wg sync.WaitGroup

	callbacks ManagerCallbacks

	activeCount  atomic.Int64
	startedCount atomic.Int64
	restartCount atomic.Int64

	exitMu   sync.Mutex
	exitCode int
	exitErr  error
}

// ManagerCallbacks contains optional callbacks for manager events.
type ManagerCallbacks struct {
	// OnInstanceStateChange is called when any instance changes state.
	OnInstanceStateChange func(id int, oldState, newState supervisor.State)

	// OnInstanceStart is called when an instance's process starts.
	OnInstanceStart func(id int, pid int)

	// OnInstanceExit is called when a run ends. started is false when the
	// process could not be started.
	OnInstanceExit func(id int, exitCode int, uptime time.Duration, started bool)

	// OnInstanceRestart is called when an instance is about to restart.
	OnInstanceRestart func(id int, attempt int, delay time.Duration)

	// OnInstanceLine is called for every child line. It must not block.
	OnInstanceLine func(id int, line spawn.Line)
}

// ManagerConfig holds configuration for the InstanceManager.
type ManagerConfig struct {
	Command       spawn.Command[spawn.Line]
	Logger        *slog.Logger
	BackoffConfig supervisor.BackoffConfig
	Policy        supervisor.RestartPolicy
	MaxRestarts   int
	Timeout       time.Duration
	TailLines     int
	Verbose       bool
	Seed          int64
	Callbacks     ManagerCallbacks
}

// NewInstanceManager creates a new InstanceManager.
func NewInstanceManager(cfg ManagerConfig) *InstanceManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &InstanceManager{
		command:       cfg.Command,
		logger:        logger,
		seed:          seed,
		backoffConfig: cfg.BackoffConfig,
		policy:        cfg.Policy,
		maxRestarts:   cfg.MaxRestarts,
		timeout:       cfg.Timeout,
		tailLines:     cfg.TailLines,
		verbose:       cfg.Verbose,
		callbacks:     cfg.Callbacks,
		supervisors:   make(map[int]*supervisor.Supervisor),
		running:       make(map[int]bool),
	}
}

// StartInstance creates and starts a new supervised instance.
// The supervisor runs in a goroutine until its policy stops it or ctx is
// cancelled.
func (m *InstanceManager) StartInstance(ctx context.Context, id int) {
	sup := supervisor.New(supervisor.Config{
		InstanceID:  id,
		Command:     m.command,
		Policy:      m.policy,
		Backoff:     supervisor.NewBackoff(id, m.seed, m.backoffConfig),
		Logger:      m.logger,
		MaxRestarts: m.maxRestarts,
		Timeout:     m.timeout,
		TailLines:   m.tailLines,
		Verbose:     m.verbose,
		Callbacks: supervisor.Callbacks{
			OnStateChange: m.handleStateChange,
			OnStart:       m.handleStart,
			OnExit:        m.handleExit,
			OnRestart:     m.handleRestart,
			OnLine:        m.callbacks.OnInstanceLine,
		},
	})

	m.mu.Lock()
	m.supervisors[id] = sup
	m.mu.Unlock()

	m.startedCount.Add(1)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := sup.Run(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		m.logger.Debug("supervisor_ended", "instance", id, "error", err)
		m.recordFailure(sup.LastExitCode(), err)
	}()
}

// recordFailure keeps the exit code of the first instance that ended
// unsuccessfully.
func (m *InstanceManager) recordFailure(code int, err error) {
	if code <= 0 {
		code = 1
	}
	m.exitMu.Lock()
	defer m.exitMu.Unlock()
	if m.exitCode == 0 {
		m.exitCode = code
		m.exitErr = err
	}
}

func (m *InstanceManager) handleStateChange(id int, oldState, newState supervisor.State) {
	wasActive := oldState == supervisor.StateRunning
	isActive := newState == supervisor.StateRunning

	if !wasActive && isActive {
		m.activeCount.Add(1)
	} else if wasActive && !isActive {
		m.activeCount.Add(-1)
	}

	if m.callbacks.OnInstanceStateChange != nil {
		m.callbacks.OnInstanceStateChange(id, oldState, newState)
	}
}

func (m *InstanceManager) handleStart(id int, pid int) {
	m.runningMu.Lock()
	m.running[id] = true
	m.runningMu.Unlock()

	if m.callbacks.OnInstanceStart != nil {
		m.callbacks.OnInstanceStart(id, pid)
	}
}

func (m *InstanceManager) handleExit(id int, exitCode int, uptime time.Duration) {
	m.runningMu.Lock()
	started := m.running[id]
	delete(m.running, id)
	m.runningMu.Unlock()

	if m.callbacks.OnInstanceExit != nil {
		m.callbacks.OnInstanceExit(id, exitCode, uptime, started)
	}
}

func (m *InstanceManager) handleRestart(id int, attempt int, delay time.Duration) {
	m.restartCount.Add(1)

	if m.callbacks.OnInstanceRestart != nil {
		m.callbacks.OnInstanceRestart(id, attempt, delay)
	}
}

// Wait blocks until every started supervisor has returned.
func (m *InstanceManager) Wait() {
	m.wg.Wait()
}

// Shutdown waits for all supervisors to stop, bounded by ctx. The
// supervisors stop because the context passed to StartInstance is
// cancelled.
func (m *InstanceManager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutdown_initiated", "active_instances", m.ActiveCount())

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all_instances_stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown_timeout", "active_instances", m.ActiveCount())
		return ctx.Err()
	}
}

// ActiveCount returns the number of instances with a running process.
func (m *InstanceManager) ActiveCount() int {
	return int(m.activeCount.Load())
}

// StartedCount returns the number of instances that have been started.
func (m *InstanceManager) StartedCount() int {
	return int(m.startedCount.Load())
}

// RestartCount returns the total number of restart events.
func (m *InstanceManager) RestartCount() int {
	return int(m.restartCount.Load())
}

// InstanceCount returns the number of registered supervisors.
func (m *InstanceManager) InstanceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.supervisors)
}

// GetSupervisor returns the supervisor for an instance, or nil.
func (m *InstanceManager) GetSupervisor(id int) *supervisor.Supervisor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supervisors[id]
}

// States returns a map of instance IDs to their current states.
func (m *InstanceManager) States() map[int]supervisor.State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[int]supervisor.State, len(m.supervisors))
	for id, sup := range m.supervisors {
		states[id] = sup.State()
	}
	return states
}

// StateCounts returns the number of instances in each state.
func (m *InstanceManager) StateCounts() map[supervisor.State]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[supervisor.State]int)
	for _, sup := range m.supervisors {
		counts[sup.State()]++
	}
	return counts
}

// ExitCode returns the exit code of the first instance that ended
// unsuccessfully, or 0.
func (m *InstanceManager) ExitCode() int {
	m.exitMu.Lock()
	defer m.exitMu.Unlock()
	return m.exitCode
}

// Err returns the error of the first instance that ended unsuccessfully.
func (m *InstanceManager) Err() error {
	m.exitMu.Lock()
	defer m.exitMu.Unlock()
	return m.exitErr
}
