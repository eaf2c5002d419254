package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-spawn/internal/feed"
	"github.com/randomizedcoder/go-spawn/internal/stats"
	"github.com/randomizedcoder/go-spawn/internal/supervisor"
	"github.com/randomizedcoder/go-spawn/internal/timeseries"
)

// tickInterval is how often the dashboard pulls a new snapshot.
const tickInterval = 500 * time.Millisecond

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// SnapshotMsg carries an updated snapshot.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Snapshot is everything the dashboard shows at one point in time.
type Snapshot struct {
	// States counts instances per supervisor state.
	States map[supervisor.State]int

	// Launched is the number of instances started by the ramp so far.
	Launched int

	Run   stats.Snapshot
	Lines timeseries.RateStats

	FeedRead    int64
	FeedDropped int64

	// Tail holds the most recent lines, oldest first.
	Tail []feed.Entry
}

// DropRate returns the share of lines the feed dropped.
func (s Snapshot) DropRate() float64 {
	if s.FeedRead == 0 {
		return 0
	}
	return float64(s.FeedDropped) / float64(s.FeedRead)
}

// Source provides dashboard snapshots. tailLines bounds Snapshot.Tail.
type Source interface {
	DashboardSnapshot(tailLines int) Snapshot
}

// Config holds TUI configuration.
type Config struct {
	TargetInstances int
	Command         string
	MetricsAddr     string
	TailLines       int
	Source          Source
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	targetInstances int
	command         string
	metricsAddr     string
	tailLines       int
	source          Source

	// Current state
	snapshot   Snapshot
	tail       []feed.Entry
	paused     bool
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	tailLines := cfg.TailLines
	if tailLines <= 0 {
		tailLines = 10
	}
	return Model{
		targetInstances: cfg.TargetInstances,
		command:         cfg.Command,
		metricsAddr:     cfg.MetricsAddr,
		tailLines:       tailLines,
		source:          cfg.Source,
		startTime:       time.Now(),
		lastUpdate:      time.Now(),
		width:           80,
		height:          24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
			if !m.paused {
				m.tail = m.snapshot.Tail
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m = m.apply(m.source.DashboardSnapshot(m.tailLines))
		}
		return m, tickCmd()

	case SnapshotMsg:
		return m.apply(msg.Snapshot), nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// apply stores a snapshot. A paused tail keeps the lines it had.
func (m Model) apply(s Snapshot) Model {
	m.snapshot = s
	if !m.paused {
		m.tail = s.Tail
	}
	m.lastUpdate = time.Now()
	return m
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// ActiveInstances returns the number of running instances.
func (m Model) ActiveInstances() int {
	return m.snapshot.States[supervisor.StateRunning]
}

// TargetInstances returns the target instance count.
func (m Model) TargetInstances() int {
	return m.targetInstances
}

// RampProgress returns the share of instances launched (0.0 to 1.0).
func (m Model) RampProgress() float64 {
	if m.targetInstances == 0 {
		return 0
	}
	return min(float64(m.snapshot.Launched)/float64(m.targetInstances), 1)
}

// Paused reports whether the tail is frozen.
func (m Model) Paused() bool {
	return m.paused
}

// Tail returns the lines currently displayed.
func (m Model) Tail() []feed.Entry {
	return m.tail
}

// =============================================================================
// Helpers for external use
// =============================================================================

// SendSnapshot pushes a snapshot to a running program.
func SendSnapshot(p *tea.Program, s Snapshot) {
	if p != nil {
		p.Send(SnapshotMsg{Snapshot: s})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
