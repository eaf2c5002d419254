// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// syscall does not export RLIMIT_NPROC everywhere, so the process limit is
// read from /proc/self/limits instead.
const procLimitsPath = "/proc/self/limits"

// Per-instance descriptor estimate: three pipes (six ends), the process
// handle and some slack for whatever the child opens through us.
const (
	fdsPerInstance = 8
	fdOverhead     = 50
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks for launching instances copies of
// program in dir. An empty dir means the current directory and is not checked.
func RunAll(program, dir string, instances int) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	result.add(checkProgram(program))
	result.add(checkWorkingDir(dir))
	result.add(checkFileDescriptors(instances))
	result.add(checkProcessLimit(procLimitsPath, instances))

	return result
}

// checkProgram verifies the program resolves to an executable.
func checkProgram(program string) Check {
	if program == "" {
		return Check{Name: "program", Passed: false, Message: "no program given"}
	}
	path, err := exec.LookPath(program)
	if err != nil {
		return Check{
			Name:    "program",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", program, err),
		}
	}
	return Check{
		Name:    "program",
		Passed:  true,
		Message: fmt.Sprintf("resolved to %s", path),
	}
}

// checkWorkingDir verifies the child's working directory exists.
func checkWorkingDir(dir string) Check {
	if dir == "" {
		return Check{Name: "working_dir", Passed: true, Message: "inherited"}
	}
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		return Check{Name: "working_dir", Passed: false, Message: fmt.Sprintf("%s not found: %v", dir, err)}
	case !info.IsDir():
		return Check{Name: "working_dir", Passed: false, Message: fmt.Sprintf("%s not found: not a directory", dir)}
	}
	return Check{Name: "working_dir", Passed: true, Message: dir}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(instances int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	required := instances*fdsPerInstance + fdOverhead
	actual := int(min(limit.Cur, uint64(1<<31-1)))

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d instances)", actual, required, instances),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(limitsPath string, instances int) Check {
	required := instances + 50

	data, err := os.ReadFile(limitsPath)
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual <= 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from the
// contents of /proc/self/limits. Unlimited maps to one million.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "program":
		return "check the program name or add its directory to PATH"
	case "working_dir":
		return "create the directory or fix -dir"
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
