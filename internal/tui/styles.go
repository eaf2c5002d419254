// Package tui provides a live terminal dashboard for go-spawn.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays:
//   - instance ramp-up progress and counts per state
//   - starts, restarts, failures and exit codes
//   - line totals and rates per stream
//   - a tail of recent child lines
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-spawn/internal/supervisor"
	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// =============================================================================
// Feed Status Indicator
// =============================================================================

// FeedStatus represents the health of the line feed.
type FeedStatus int

const (
	FeedStatusOK FeedStatus = iota
	FeedStatusDegraded
	FeedStatusSeverelyDegraded
)

// GetFeedStatus returns the status based on drop rate.
func GetFeedStatus(dropRate float64) FeedStatus {
	switch {
	case dropRate > 0.10: // >10% dropped
		return FeedStatusSeverelyDegraded
	case dropRate > 0.0:
		return FeedStatusDegraded
	default:
		return FeedStatusOK
	}
}

// GetFeedLabel returns a styled label based on drop rate.
func GetFeedLabel(dropRate float64) string {
	switch GetFeedStatus(dropRate) {
	case FeedStatusSeverelyDegraded:
		return statusError.Render("● Feed (severely degraded)")
	case FeedStatusDegraded:
		return statusWarning.Render("● Feed (degraded)")
	default:
		return statusOK.Render("● Feed")
	}
}

// =============================================================================
// State and Stream Styles
// =============================================================================

// GetStateStyle returns the style used for an instance state.
func GetStateStyle(s supervisor.State) lipgloss.Style {
	switch s {
	case supervisor.StateRunning:
		return valueGoodStyle
	case supervisor.StateStarting:
		return statusInfo
	case supervisor.StateBackoff:
		return valueWarnStyle
	case supervisor.StateStopped:
		return mutedStyle
	default:
		return valueStyle
	}
}

// GetStreamStyle returns the style used for lines of a stream.
func GetStreamStyle(stream spawn.Stream) lipgloss.Style {
	if stream == spawn.StreamError {
		return valueWarnStyle
	}
	return valueStyle
}

// GetFailureStyle colours a failure count.
func GetFailureStyle(failures int64) lipgloss.Style {
	if failures == 0 {
		return valueGoodStyle
	}
	return valueBadStyle
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a progress bar.
func RenderProgressBar(progress float64, width int) string {
	width = max(width, 10)
	filled := min(max(int(progress*float64(width)), 0), width)

	bar := progressBarStyle.Render(strings.Repeat("█", filled)) +
		progressBarEmptyStyle.Render(strings.Repeat("░", width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))

	return bar + percent
}
