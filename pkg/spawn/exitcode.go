package spawn

import "strconv"

// ExitCode is the status a process reported on exit.
type ExitCode int

// IsSuccess reports whether the code is zero.
func (c ExitCode) IsSuccess() bool { return c == 0 }

// IsError reports whether the code is non-zero.
func (c ExitCode) IsError() bool { return c != 0 }

// String returns the decimal form of the code.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }

// Err returns nil for a zero code and an *ExitError otherwise.
func (c ExitCode) Err() error {
	if c.IsSuccess() {
		return nil
	}
	return NewExitError(int(c))
}
