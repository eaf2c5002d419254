// Package supervisor keeps one instance of a child command running
// according to a restart policy.
package supervisor

// State represents the current state of a supervised instance.
type State int

const (
	// StateCreated is the initial state before the first run.
	StateCreated State = iota

	// StateStarting indicates the child process is being spawned.
	StateStarting

	// StateRunning indicates the child process is running.
	StateRunning

	// StateBackoff indicates the instance is waiting before a restart.
	StateBackoff

	// StateStopped indicates the instance will not run again.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true if the instance is running or about to run again.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateBackoff
}

// IsTerminal returns true if the state is a terminal state (stopped).
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// RestartPolicy decides whether an instance runs again after its process
// exits.
type RestartPolicy string

// Restart policies.
const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartAlways    RestartPolicy = "always"
)

// ShouldRestart reports whether a run that ended with the given outcome
// is followed by another one.
func (p RestartPolicy) ShouldRestart(failed bool) bool {
	switch p {
	case RestartAlways:
		return true
	case RestartOnFailure:
		return failed
	default:
		return false
	}
}
