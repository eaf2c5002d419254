package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-spawn/internal/stats"
	"github.com/randomizedcoder/go-spawn/internal/supervisor"
	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

// displayedStates is the order of the instance state row.
var displayedStates = []supervisor.State{
	supervisor.StateRunning,
	supervisor.StateStarting,
	supervisor.StateBackoff,
	supervisor.StateStopped,
}

// maxExitCodes bounds the exit codes listed in the lifecycle box.
const maxExitCodes = 5

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
		m.renderInstances(),
		m.renderLifecycle(),
		m.renderOutput(),
	}
	if m.snapshot.Run.Runs > 0 {
		sections = append(sections, m.renderRuntime())
	}
	sections = append(sections, m.renderTail(), m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) box(title string, rows ...string) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render(title)}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-spawn │ %s │ Instances: %d/%d │ Elapsed: %s ",
		GetFeedLabel(m.snapshot.DropRate()),
		m.ActiveInstances(),
		m.targetInstances,
		stats.FormatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	progress := m.RampProgress()
	bar := RenderProgressBar(progress, m.width-30)

	var status string
	if progress >= 1.0 {
		status = statusOK.Render("✓ All instances launched")
	} else {
		status = statusInfo.Render(fmt.Sprintf("Ramping up... %d/%d", m.snapshot.Launched, m.targetInstances))
	}

	return m.box("Ramp Progress", bar, status)
}

// =============================================================================
// Instances and Lifecycle
// =============================================================================

func (m Model) renderInstances() string {
	parts := make([]string, 0, len(displayedStates))
	for _, s := range displayedStates {
		parts = append(parts, GetStateStyle(s).Render(fmt.Sprintf("%s %d", s, m.snapshot.States[s])))
	}
	return m.box("Instances", strings.Join(parts, mutedStyle.Render("  ·  ")))
}

func (m Model) renderLifecycle() string {
	run := m.snapshot.Run
	rows := []string{
		RenderKeyValue("Starts", stats.FormatNumber(run.Starts)),
		RenderKeyValue("Restarts", stats.FormatNumber(run.Restarts)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Failed Runs:"),
			GetFailureStyle(run.Failures).Render(stats.FormatNumber(run.Failures)),
		),
	}
	if run.StartFailures > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Start Failures:"),
			valueBadStyle.Render(stats.FormatNumber(run.StartFailures)),
		))
	}
	if codes := formatExitCodes(run.ExitCodes); codes != "" {
		rows = append(rows, RenderKeyValue("Exit Codes", codes))
	}
	return m.box("Lifecycle", rows...)
}

// formatExitCodes lists the most frequent exit codes as "code×count".
func formatExitCodes(codes map[int]int) string {
	if len(codes) == 0 {
		return ""
	}
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Slice(keys, func(i, j int) bool {
		if codes[keys[i]] != codes[keys[j]] {
			return codes[keys[i]] > codes[keys[j]]
		}
		return keys[i] < keys[j]
	})

	parts := make([]string, 0, maxExitCodes+1)
	for i, code := range keys {
		if i == maxExitCodes {
			parts = append(parts, fmt.Sprintf("+%d more", len(keys)-maxExitCodes))
			break
		}
		parts = append(parts, fmt.Sprintf("%d×%d", code, codes[code]))
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// Output
// =============================================================================

func (m Model) renderOutput() string {
	run := m.snapshot.Run
	rates := m.snapshot.Lines
	rows := []string{
		RenderKeyValue("stdout", stats.FormatNumber(run.LinesOut)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("stderr:"),
			GetStreamStyle(spawn.StreamError).Render(stats.FormatNumber(run.LinesErr)),
		),
		RenderKeyValue("Rate (1s/30s/60s)", fmt.Sprintf("%s  %s  %s",
			stats.FormatRate(rates.Rate1s),
			stats.FormatRate(rates.Rate30s),
			stats.FormatRate(rates.Rate60s),
		)),
	}
	if m.snapshot.FeedDropped > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Feed Dropped:"),
			valueWarnStyle.Render(fmt.Sprintf("%s (%.2f%%)",
				stats.FormatNumber(m.snapshot.FeedDropped), m.snapshot.DropRate()*100)),
		))
	}
	return m.box("Output", rows...)
}

func (m Model) renderRuntime() string {
	run := m.snapshot.Run
	return m.box("Runtime",
		RenderKeyValue("P50 (median)", stats.FormatMs(run.RuntimeP50)),
		RenderKeyValue("P95", stats.FormatMs(run.RuntimeP95)),
		RenderKeyValue("P99", stats.FormatMs(run.RuntimeP99)),
		RenderKeyValue("Max", stats.FormatMs(run.MaxRuntime)),
	)
}

// =============================================================================
// Tail
// =============================================================================

func (m Model) renderTail() string {
	title := "Recent Lines"
	if m.paused {
		title += " (paused)"
	}
	if len(m.tail) == 0 {
		return m.box(title, dimStyle.Render("no output yet"))
	}

	maxText := max(m.width-20, 10)
	rows := make([]string, 0, len(m.tail))
	for _, e := range m.tail {
		text := e.Line.Text
		if len(text) > maxText {
			text = text[:maxText-3] + "..."
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			dimStyle.Render(fmt.Sprintf("[%3d] %-6s ", e.Instance, e.Line.Stream)),
			GetStreamStyle(e.Line.Stream).UnsetBold().Render(text),
		))
	}
	return m.box(title, rows...)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{"q: quit", "p: pause tail"}

	right := m.command
	if m.metricsAddr != "" {
		right = "Metrics: http://" + m.metricsAddr + "/metrics"
	}
	maxLen := m.width - 40
	if len(right) > maxLen && maxLen > 10 {
		right = right[:maxLen-3] + "..."
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	rightText := dimStyle.Render(right)

	padding := max(m.width-lipgloss.Width(left)-lipgloss.Width(rightText)-2, 1)

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			rightText,
		),
	)
}
