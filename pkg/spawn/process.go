package spawn

import (
	"errors"
	"io"
	"os"
)

// LineEvent is delivered for every line read from a redirected stream.
// The last event of a stream has EOF set and no text.
type LineEvent struct {
	Text string
	EOF  bool
}

// Process is a single operating-system process as seen by the orchestrator.
//
// Handlers registered with OnLine and OnExited are invoked from goroutines
// owned by the implementation. They may also run synchronously from inside
// Start or BeginRead, for a process that finishes immediately, so callers
// must not hold a lock the handlers take across those calls. Lines of one
// stream are delivered in order; there is no ordering between the two
// streams, nor between the final line events and the exited event. Handlers
// must be registered before Start.
type Process interface {
	// Start launches the process. It may be called at most once.
	Start() error
	// PID is valid after a successful Start.
	PID() int
	// ExitCode is valid once the exited handlers have fired.
	ExitCode() int

	// OnLine registers the line handler for a redirected stream.
	OnLine(stream Stream, handler func(LineEvent))
	// OnExited registers a handler fired once when the process exits.
	OnExited(handler func())
	// BeginRead starts delivering lines of a redirected stream.
	BeginRead(stream Stream) error
	// Stdin returns the writer for the child's standard input.
	Stdin() (io.WriteCloser, error)

	// TryTerminate forcibly terminates the process.
	TryTerminate() TerminateResult
	// Close releases the resources held by the process. It is idempotent
	// and does not wait for the process to exit.
	Close() error
}

// ProcessFactory constructs an unstarted Process from a launch description.
type ProcessFactory func(LaunchSpec) Process

// TerminateStatus classifies the outcome of TryTerminate.
type TerminateStatus int

const (
	// TerminateOK means the termination request was delivered.
	TerminateOK TerminateStatus = iota
	// TerminateExpected means termination failed for a benign reason,
	// such as the process having already exited.
	TerminateExpected
	// TerminateUnexpected means termination failed for any other reason.
	TerminateUnexpected
)

func (s TerminateStatus) String() string {
	switch s {
	case TerminateOK:
		return "ok"
	case TerminateExpected:
		return "expected"
	case TerminateUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// TerminateResult is the tagged outcome of TryTerminate.
type TerminateResult struct {
	Status TerminateStatus
	Err    error
}

// ExpectedTerminateErrors lists the errors that TryTerminate treats as
// benign: the process is gone or was never there.
var ExpectedTerminateErrors = []error{
	os.ErrProcessDone,
	ErrNotStarted,
	ErrClosed,
}

// ClassifyTerminateError builds a TerminateResult from the error returned
// by a termination attempt.
func ClassifyTerminateError(err error) TerminateResult {
	if err == nil {
		return TerminateResult{Status: TerminateOK}
	}
	for _, expected := range ExpectedTerminateErrors {
		if errors.Is(err, expected) {
			return TerminateResult{Status: TerminateExpected, Err: err}
		}
	}
	return TerminateResult{Status: TerminateUnexpected, Err: err}
}
