package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Command is the quoted command line that was run
	Command string

	// TargetInstances is the number of instances that were requested
	TargetInstances int

	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// FeedRead and FeedDropped are the dashboard feed counters
	FeedRead    int64
	FeedDropped int64

	// ExitCode is the aggregate exit code of the run
	ExitCode int
}

// FormatExitSummary formats run statistics for display at program exit.
func FormatExitSummary(snap Snapshot, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                            go-spawn Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	if cfg.Command != "" {
		fmt.Fprintf(&b, "Command:                %s\n", cfg.Command)
	}
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Target Instances:       %d\n", cfg.TargetInstances)
	fmt.Fprintf(&b, "Peak Active Instances:  %d\n", snap.PeakActive)
	fmt.Fprintf(&b, "Exit Code:              %d\n\n", cfg.ExitCode)

	// Lifecycle
	b.WriteString(ruleLight)
	b.WriteString("                                Lifecycle\n")
	b.WriteString(ruleLight + "\n")
	fmt.Fprintf(&b, "  Total Starts:         %d\n", snap.Starts)
	fmt.Fprintf(&b, "  Total Restarts:       %d\n", snap.Restarts)
	fmt.Fprintf(&b, "  Failed Runs:          %d\n", snap.Failures)
	if snap.StartFailures > 0 {
		fmt.Fprintf(&b, "  Start Failures:       %d\n", snap.StartFailures)
	}
	b.WriteString("\n")

	// Output
	b.WriteString(ruleLight)
	b.WriteString("                                  Output\n")
	b.WriteString(ruleLight + "\n")
	rate := func(n int64) float64 {
		if snap.Elapsed <= 0 {
			return 0
		}
		return float64(n) / snap.Elapsed.Seconds()
	}
	fmt.Fprintf(&b, "  %-20s %12s %12s\n", "Stream", "Lines", "Rate")
	b.WriteString("  " + strings.Repeat("─", 46) + "\n")
	fmt.Fprintf(&b, "  %-20s %12s %12s\n", "stdout", FormatNumber(snap.LinesOut), FormatRate(rate(snap.LinesOut)))
	fmt.Fprintf(&b, "  %-20s %12s %12s\n\n", "stderr", FormatNumber(snap.LinesErr), FormatRate(rate(snap.LinesErr)))

	// Runtime distribution
	if snap.Runs > 0 {
		b.WriteString(ruleLight)
		b.WriteString("                           Runtime Distribution\n")
		b.WriteString(ruleLight + "\n")
		fmt.Fprintf(&b, "  Min:                  %s\n", FormatMs(snap.MinRuntime))
		fmt.Fprintf(&b, "  Avg:                  %s\n", FormatMs(snap.AvgRuntime))
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(snap.RuntimeP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(snap.RuntimeP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(snap.RuntimeP99))
		fmt.Fprintf(&b, "  Max:                  %s\n\n", FormatMs(snap.MaxRuntime))
	}

	// Exit codes
	if len(snap.ExitCodes) > 0 {
		b.WriteString(ruleLight)
		b.WriteString("                                Exit Codes\n")
		b.WriteString(ruleLight + "\n")

		codes := make([]int, 0, len(snap.ExitCodes))
		for code := range snap.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), snap.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if footnotes := renderFootnotes(cfg); footnotes != "" {
		b.WriteString(footnotes)
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(ruleHeavy)
	return b.String()
}

// renderFootnotes adds diagnostic info that doesn't belong in main metrics.
func renderFootnotes(cfg SummaryConfig) string {
	if cfg.FeedDropped == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(ruleLight)
	b.WriteString("                                 Footnotes\n")
	b.WriteString(ruleLight + "\n")
	pct := 0.0
	if cfg.FeedRead > 0 {
		pct = float64(cfg.FeedDropped) / float64(cfg.FeedRead) * 100
	}
	fmt.Fprintf(&b, "  [1] Dashboard feed dropped %s of %s lines (%.1f%%); counts above are exact\n\n",
		FormatNumber(cfg.FeedDropped), FormatNumber(cfg.FeedRead), pct)
	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 124:
		return "(timeout)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
