package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

const (
	// MaxLineLength is the maximum length of a logged child line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per instance.
	MaxBufferedLines = 100
)

// LineLogger records the lines of one supervised instance. It keeps a ring
// of recent lines for the failure summary and logs each line at a level
// derived from its stream and content.
type LineLogger struct {
	instance int
	logger   *slog.Logger
	verbose  bool

	buffer []spawn.Line
	next   int
	filled bool
	mu     sync.Mutex
}

// NewLineLogger creates a line logger for an instance.
func NewLineLogger(instance int, logger *slog.Logger, verbose bool) *LineLogger {
	return &LineLogger{
		instance: instance,
		logger:   logger,
		verbose:  verbose,
		buffer:   make([]spawn.Line, MaxBufferedLines),
	}
}

// HandleLine stores and logs one line.
func (h *LineLogger) HandleLine(line spawn.Line) {
	if len(line.Text) > MaxLineLength {
		line.Text = line.Text[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.next] = line
	h.next = (h.next + 1) % MaxBufferedLines
	if h.next == 0 {
		h.filled = true
	}
	h.mu.Unlock()

	level := ClassifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}
	h.logger.Log(context.Background(), level, "child_line",
		"instance", h.instance,
		"stream", line.Stream.String(),
		"line", line.Text,
	)
}

// ClassifyLine returns the log level for a child line. Standard output is
// debug; standard error is debug unless it looks like a warning or error.
func ClassifyLine(line spawn.Line) slog.Level {
	if line.IsOutput() {
		return slog.LevelDebug
	}
	lower := strings.ToLower(line.Text)
	for _, p := range ErrorPatterns {
		if strings.Contains(lower, p) {
			return slog.LevelWarn
		}
	}
	if strings.Contains(lower, "warn") {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *LineLogger) RecentLines(n int) []spawn.Line {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.next
	if h.filled {
		size = MaxBufferedLines
	}
	if n > size {
		n = size
	}

	lines := make([]spawn.Line, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.next - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// Reset forgets all buffered lines.
func (h *LineLogger) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.buffer)
	h.next = 0
	h.filled = false
}

// ErrorPatterns are lower-case fragments counted in the failure summary.
var ErrorPatterns = []string{
	"error",
	"fatal",
	"panic",
	"exception",
	"permission denied",
	"not found",
	"timeout",
	"refused",
}

// CountErrors counts buffered standard error lines per matching pattern.
func (h *LineLogger) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range h.buffer {
		if line.Text == "" || !line.IsError() {
			continue
		}
		lower := strings.ToLower(line.Text)
		for _, pattern := range ErrorPatterns {
			if strings.Contains(lower, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
