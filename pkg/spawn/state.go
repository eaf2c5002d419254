package spawn

// State represents the lifecycle of one orchestrated process.
type State int

const (
	// StateRunning means values may still be delivered.
	StateRunning State = iota
	// StateConcluding means the outcome is being computed.
	StateConcluding
	// StateConcluded means the terminal notification was delivered.
	StateConcluded
	// StateKilled means the subscription was closed before conclusion.
	StateKilled
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateConcluding:
		return "concluding"
	case StateConcluded:
		return "concluded"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no further notification can happen.
func (s State) IsTerminal() bool {
	return s == StateConcluded || s == StateKilled
}
