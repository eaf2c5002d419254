package spawn

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice on a process.
	ErrAlreadyStarted = errors.New("process already started")
	// ErrNotStarted is returned by operations that need a running process.
	ErrNotStarted = errors.New("process not started")
	// ErrNotRedirected is returned when reading or writing a stream that was not redirected.
	ErrNotRedirected = errors.New("stream not redirected")
	// ErrAlreadyReading is returned when BeginRead is called twice for a stream.
	ErrAlreadyReading = errors.New("stream already being read")
	// ErrClosed is returned when using a process after Close.
	ErrClosed = errors.New("process closed")
	// ErrEmptyPath is returned when no program path was given.
	ErrEmptyPath = errors.New("program path is empty")
	// ErrEmptyEnvName is returned for an environment variable with no name.
	ErrEmptyEnvName = errors.New("environment variable name is empty")
)

// ExitError reports a process that ended with a non-zero exit code.
type ExitError struct {
	Code int
	// Path and PID are set when the error comes from a spawned process.
	Path string
	PID  int

	msg string
}

// NewExitError returns an ExitError with the generic message.
func NewExitError(code int) *ExitError {
	return &ExitError{
		Code: code,
		msg:  fmt.Sprintf("External process terminated with an exit code of %d.", code),
	}
}

// newProcessExitError returns the error reported by default when a spawned
// process exits with a non-zero code.
func newProcessExitError(path string, pid, code int) *ExitError {
	return &ExitError{
		Code: code,
		Path: path,
		PID:  pid,
		msg: fmt.Sprintf("Process %q (launched as the ID %d) ended with the non-zero exit code %d.",
			filepath.Base(path), pid, code),
	}
}

func (e *ExitError) Error() string { return e.msg }

// ExitCode returns the code as an ExitCode.
func (e *ExitError) ExitCode() ExitCode { return ExitCode(e.Code) }

// StartError reports a process that could not be launched.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// StreamSetupError reports a failure to begin reading a redirected stream
// (or to open standard input) after the process had started.
type StreamSetupError struct {
	Stream string
	Err    error
}

func (e *StreamSetupError) Error() string {
	return fmt.Sprintf("set up %s: %v", e.Stream, e.Err)
}

func (e *StreamSetupError) Unwrap() error { return e.Err }

// InputError wraps an error produced by an input sequence.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input sequence: %v", e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// TerminateError reports an unexpected failure while terminating a process.
type TerminateError struct {
	PID int
	Err error
}

func (e *TerminateError) Error() string {
	return fmt.Sprintf("terminate process %d: %v", e.PID, e.Err)
}

func (e *TerminateError) Unwrap() error { return e.Err }
