package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/config"
	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/internal/tui"
	"github.com/gantrylabs/gantry/pkg/models"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the plan stands",
	Long: `Display the current state of the plan.

Shows:
  - Each phase with its derived status, task and story progress, and gate
  - Epic roll-ups
  - Interrupted tasks left behind by a cut-off run
  - The active session and its batch budget
  - Recent finished sessions

With --watch, opens a live board that refreshes from the plan store.
The board is read-only and safe to keep open while 'gantry run' works
in another terminal.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Open a live board instead of printing once")
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if statusWatch {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return tui.RunBoard(db, cfg.TUI.RefreshRate)
	}

	progress, err := db.ListPhaseProgress()
	if err != nil {
		return fmt.Errorf("list phase progress: %w", err)
	}
	if len(progress) == 0 {
		fmt.Println("No plan imported. Run 'gantry plan import <file>' to start.")
		return nil
	}
	displayPhases(progress)

	epics, err := db.ListEpicProgress()
	if err != nil {
		return fmt.Errorf("list epic progress: %w", err)
	}
	displayEpics(epics)

	orphans, err := db.OrphanedTasks()
	if err != nil {
		return fmt.Errorf("list orphaned tasks: %w", err)
	}
	displayOrphans(orphans)

	session, err := db.ActiveSession()
	if err != nil {
		return fmt.Errorf("look up active session: %w", err)
	}
	displaySession(session)

	fmt.Println()
	return displayRecentSessions(db)
}

func displayPhases(progress []state.PhaseProgress) {
	fmt.Println("Phases:")
	for _, p := range progress {
		status := p.Status()
		padded := fmt.Sprintf("%-13s", status)

		gateCell := color.HiBlackString("gate -")
		switch {
		case p.Phase.GatePassed:
			gateCell = color.GreenString("gate ✓")
		case p.GatesPending > 0:
			gateCell = color.YellowString("%d review(s) due", p.GatesPending)
		}

		fmt.Printf("  %d. %-24s %s  %d/%d tasks  %d/%d stories  %s\n",
			p.Phase.Sequence, p.Phase.Name,
			statusColor(status).Sprint(padded),
			p.Tasks.Terminal(), p.Tasks.Total(),
			p.StoriesComplete, p.StoriesTotal,
			gateCell)
	}
}

func displayEpics(epics []state.EpicProgress) {
	if len(epics) == 0 {
		return
	}
	fmt.Println("\nEpics:")
	for _, e := range epics {
		fmt.Printf("  %s: %s (%s, %d/%d stories, %d/%d tasks)\n",
			e.Epic.ID, e.Epic.Title, e.Epic.Status,
			e.StoriesTerminal, e.StoriesTotal,
			e.TasksTerminal, e.TasksTotal)
	}
}

func displayOrphans(orphans []models.Task) {
	if len(orphans) == 0 {
		return
	}
	fmt.Println()
	printStatus("⚠", fmt.Sprintf("%d interrupted task(s), next run returns them to pending:", len(orphans)), color.FgYellow)
	for _, t := range orphans {
		fmt.Printf("  %s: %s\n", t.ID, t.Title)
	}
}

func displaySession(s *state.Session) {
	fmt.Println()
	if s == nil {
		fmt.Println("No active session. Run 'gantry run' to start one.")
		return
	}

	elapsed := formatDuration(time.Since(s.StartedAt))
	fmt.Printf("Current session: %s\n", s.ID)
	fmt.Printf("  Started: %s ago\n", elapsed)
	fmt.Printf("  Batches: %d/%s\n", s.BatchCount, budgetLabel(s.BatchBudget))
}

func displayRecentSessions(db *state.DB) error {
	sessions, err := db.ListSessions(nil)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	var recent []state.Session
	for _, s := range sessions {
		if s.Status != state.SessionActive {
			recent = append(recent, s)
			if len(recent) >= 5 {
				break
			}
		}
	}
	if len(recent) == 0 {
		return nil
	}

	fmt.Println("Recent sessions:")
	for _, s := range recent {
		elapsed := formatDuration(time.Since(s.StartedAt))
		fmt.Printf("  %s: %s, %d batches (%s ago)\n", shortID(s.ID), s.Status, s.BatchCount, elapsed)
	}
	return nil
}

// statusColor picks a display color for a derived phase status.
func statusColor(s models.PhaseStatus) *color.Color {
	switch s {
	case models.PhaseComplete:
		return color.New(color.FgGreen)
	case models.PhaseGatePending:
		return color.New(color.FgMagenta)
	case models.PhaseTestsWritten:
		return color.New(color.FgHiYellow)
	case models.PhaseInProgress:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
