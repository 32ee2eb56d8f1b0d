package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

// PlanReader is the read surface the board needs from the plan store.
// This allows decoupling from the concrete state.DB.
type PlanReader interface {
	ListPhaseProgress() ([]state.PhaseProgress, error)
	ActiveSession() (*state.Session, error)
	OrphanedTasks() ([]models.Task, error)
}

// Snapshot is one consistent read of everything the board displays.
type Snapshot struct {
	Phases  []state.PhaseProgress
	Session *state.Session
	Orphans []models.Task
	Taken   time.Time
}

// tickMsg schedules the next poll.
type tickMsg time.Time

// snapshotMsg carries the result of one poll.
type snapshotMsg struct {
	snap Snapshot
	err  error
}

// Board is the bubbletea model for the status board.
type Board struct {
	reader  PlanReader
	refresh time.Duration

	snap    Snapshot
	loadErr error
	loaded  bool

	keys KeyMap
	help help.Model
	bar  progress.Model

	width    int
	height   int
	quitting bool

	// Styles
	headerStyle  lipgloss.Style
	labelStyle   lipgloss.Style
	valueStyle   lipgloss.Style
	dimStyle     lipgloss.Style
	warningStyle lipgloss.Style
	errorStyle   lipgloss.Style
	statusStyles map[models.PhaseStatus]lipgloss.Style
}

// NewBoard creates a Board polling the reader at the given interval.
func NewBoard(reader PlanReader, refresh time.Duration) *Board {
	if refresh <= 0 {
		refresh = time.Second
	}

	return &Board{
		reader:  reader,
		refresh: refresh,

		keys: DefaultKeyMap(),
		help: help.New(),
		bar: progress.New(
			progress.WithSolidFill("34"),
			progress.WithWidth(20),
			progress.WithoutPercentage(),
		),

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		warningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		statusStyles: map[models.PhaseStatus]lipgloss.Style{
			models.PhaseNotStarted:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
			models.PhaseInProgress:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
			models.PhaseTestsWritten: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			models.PhaseGatePending:  lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
			models.PhaseComplete:     lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		},
	}
}

// Init implements tea.Model. The first poll runs immediately; ticks take
// over once it lands.
func (b *Board) Init() tea.Cmd {
	return b.loadCmd()
}

// Update implements tea.Model.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, b.keys.Quit):
			b.quitting = true
			return b, tea.Quit
		case key.Matches(msg, b.keys.Refresh):
			return b, b.loadCmd()
		}

	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		b.help.Width = msg.Width

	case tickMsg:
		return b, b.loadCmd()

	case snapshotMsg:
		if msg.err != nil {
			b.loadErr = msg.err
		} else {
			b.snap = msg.snap
			b.loadErr = nil
			b.loaded = true
		}
		return b, b.tickCmd()
	}

	return b, nil
}

// View implements tea.Model.
func (b *Board) View() string {
	if b.quitting {
		return ""
	}

	var out strings.Builder

	out.WriteString(b.headerStyle.Render("Gantry Plan Status"))
	out.WriteString("\n")

	out.WriteString(b.viewSession())
	out.WriteString("\n\n")

	out.WriteString(b.viewPhases())

	if len(b.snap.Orphans) > 0 {
		out.WriteString("\n")
		out.WriteString(b.viewOrphans())
	}

	if b.loadErr != nil {
		out.WriteString("\n")
		out.WriteString(b.errorStyle.Render(fmt.Sprintf("refresh failed: %v (showing stale data)", b.loadErr)))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(b.viewFooter())

	return out.String()
}

// viewSession renders the active session line.
func (b *Board) viewSession() string {
	s := b.snap.Session
	if s == nil {
		return b.dimStyle.Render("no active session")
	}

	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}

	budget := "unlimited"
	if s.BatchBudget > 0 {
		budget = fmt.Sprintf("%d", s.BatchBudget)
	}

	return fmt.Sprintf("%s %s   %s %s   %s %s",
		b.labelStyle.Render("Session:"),
		b.valueStyle.Render(id),
		b.labelStyle.Render("Batches:"),
		b.valueStyle.Render(fmt.Sprintf("%d/%s", s.BatchCount, budget)),
		b.labelStyle.Render("Running:"),
		b.valueStyle.Render(formatDuration(time.Since(s.StartedAt))))
}

// viewPhases renders one row per phase.
func (b *Board) viewPhases() string {
	if !b.loaded {
		return b.dimStyle.Render("loading...") + "\n"
	}
	if len(b.snap.Phases) == 0 {
		return b.dimStyle.Render("no phases defined") + "\n"
	}

	var out strings.Builder
	for _, p := range b.snap.Phases {
		out.WriteString(b.viewPhaseRow(p))
		out.WriteString("\n")
	}
	return out.String()
}

// viewPhaseRow renders a single phase with status, progress bar, and
// gate state.
func (b *Board) viewPhaseRow(p state.PhaseProgress) string {
	status := p.Status()
	style, ok := b.statusStyles[status]
	if !ok {
		style = b.valueStyle
	}

	name := p.Phase.Name
	if name == "" {
		name = p.Phase.ID
	}
	if len(name) > 28 {
		name = name[:25] + "..."
	}

	pct := float64(0)
	if p.Tasks.Total() > 0 {
		pct = float64(p.Tasks.Terminal()) / float64(p.Tasks.Total()) * 100
	} else if status == models.PhaseComplete {
		pct = 100
	}

	gate := b.dimStyle.Render("gate -")
	switch {
	case p.Phase.GatePassed:
		gate = b.statusStyles[models.PhaseComplete].Render("gate ✓")
	case p.GatesPending > 0:
		gate = b.warningStyle.Render(fmt.Sprintf("%d review(s) due", p.GatesPending))
	}

	return fmt.Sprintf("%s %-28s %s %s  %s  %s  %s",
		b.dimStyle.Render(fmt.Sprintf("%d.", p.Phase.Sequence)),
		name,
		style.Render(fmt.Sprintf("%-13s", string(status))),
		b.bar.ViewAs(pct/100),
		b.valueStyle.Render(fmt.Sprintf("%d/%d tasks", p.Tasks.Terminal(), p.Tasks.Total())),
		b.labelStyle.Render(fmt.Sprintf("%d/%d stories", p.StoriesComplete, p.StoriesTotal)),
		gate)
}

// viewOrphans lists tasks left in flight by an interrupted run.
func (b *Board) viewOrphans() string {
	var out strings.Builder
	out.WriteString(b.warningStyle.Render("Interrupted tasks:"))
	out.WriteString("\n")
	for _, task := range b.snap.Orphans {
		title := task.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		out.WriteString(fmt.Sprintf("  %s %s\n", b.warningStyle.Render(task.ID), title))
	}
	return out.String()
}

// viewFooter renders the refresh stamp and the key help line.
func (b *Board) viewFooter() string {
	refreshed := ""
	if b.loaded {
		refreshed = b.dimStyle.Render(fmt.Sprintf("refreshed %s  ", b.snap.Taken.Format("15:04:05")))
	}
	return refreshed + b.help.View(b.keys)
}

// loadCmd polls the reader for a fresh snapshot.
func (b *Board) loadCmd() tea.Cmd {
	reader := b.reader
	return func() tea.Msg {
		snap, err := loadSnapshot(reader)
		return snapshotMsg{snap: snap, err: err}
	}
}

// tickCmd schedules the next poll after the refresh interval.
func (b *Board) tickCmd() tea.Cmd {
	return tea.Tick(b.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// loadSnapshot reads everything the board displays in one pass.
func loadSnapshot(reader PlanReader) (Snapshot, error) {
	phases, err := reader.ListPhaseProgress()
	if err != nil {
		return Snapshot{}, fmt.Errorf("list phase progress: %w", err)
	}

	session, err := reader.ActiveSession()
	if err != nil {
		return Snapshot{}, fmt.Errorf("active session: %w", err)
	}

	orphans, err := reader.OrphanedTasks()
	if err != nil {
		return Snapshot{}, fmt.Errorf("orphaned tasks: %w", err)
	}

	return Snapshot{
		Phases:  phases,
		Session: session,
		Orphans: orphans,
		Taken:   time.Now(),
	}, nil
}

// NewBoardProgram creates a Bubbletea program running the status board.
func NewBoardProgram(reader PlanReader, refresh time.Duration) (*tea.Program, *Board) {
	board := NewBoard(reader, refresh)
	p := tea.NewProgram(board, tea.WithAltScreen())
	return p, board
}

// RunBoard starts the status board and blocks until the user quits.
func RunBoard(reader PlanReader, refresh time.Duration) error {
	p, _ := NewBoardProgram(reader, refresh)
	_, err := p.Run()
	return err
}

// formatDuration renders a duration in compact h/m/s form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
