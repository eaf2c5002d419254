package spawn

import (
	"log/slog"
	"time"
)

// Hooks are optional callbacks invoked by a Spawner for every process it
// runs. They are called synchronously from the orchestration goroutines
// and must not block.
type Hooks struct {
	// OnStart is called after a process started.
	OnStart func(path string, pid int)

	// OnLine is called for every line delivered to a subscriber.
	OnLine func(path string, stream Stream)

	// OnExit is called when a process exited, whether or not its
	// subscription was closed first.
	OnExit func(path string, pid int, exitCode int, runtime time.Duration)

	// OnTerminate is called after a termination attempt.
	OnTerminate func(path string, pid int, result TerminateResult)
}

// Config holds configuration for creating a new Spawner.
type Config struct {
	// ProcessFactory creates processes. Defaults to NewOSProcess.
	// Options.WithProcessFactory overrides it per run.
	ProcessFactory ProcessFactory
	// Logger receives debug events. Defaults to discarding them.
	Logger *slog.Logger
	Hooks  Hooks
}

// Spawner launches processes. It holds no per-process state and is safe
// for concurrent use.
type Spawner struct {
	factory ProcessFactory
	logger  *slog.Logger
	hooks   Hooks
}

// New creates a new Spawner with the given configuration.
func New(cfg Config) *Spawner {
	factory := cfg.ProcessFactory
	if factory == nil {
		factory = NewOSProcess
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Spawner{
		factory: factory,
		logger:  logger,
		hooks:   cfg.Hooks,
	}
}

// Logger returns the spawner's logger.
func (s *Spawner) Logger() *slog.Logger { return s.logger }

func (s *Spawner) processFactory(opts Options) ProcessFactory {
	if f := opts.ProcessFactory(); f != nil {
		return f
	}
	return s.factory
}
