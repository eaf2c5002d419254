package spawn

import (
	"strings"
)

// LaunchSpec is the operating-system level description of a process to
// start. Arguments are passed to the child as an argv array and are never
// re-parsed by a shell.
type LaunchSpec struct {
	Path string
	Args []string
	Dir  string
	// Env is in "NAME=value" form. A nil Env inherits the environment of
	// the current process; an empty non-nil Env is an empty environment.
	Env []string

	RedirectStdout bool
	RedirectStderr bool
	RedirectStdin  bool
}

// Redirected reports whether the given stream is redirected.
func (s LaunchSpec) Redirected(stream Stream) bool {
	switch stream {
	case StreamOutput:
		return s.RedirectStdout
	case StreamError:
		return s.RedirectStderr
	default:
		return false
	}
}

// CommandLine renders the program and its arguments as a single string,
// quoting arguments that a POSIX shell would split or expand. It is meant
// for display and is never used to launch the process.
func (s LaunchSpec) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, quoteArg(s.Path))
	for _, a := range s.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

const shellSpecial = " \t\n\"'\\$`!*?[]{}()<>|&;#~"

func quoteArg(a string) string {
	if a == "" {
		return "''"
	}
	if !strings.ContainsAny(a, shellSpecial) {
		return a
	}
	return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
}
