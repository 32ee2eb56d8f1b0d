package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/config"
	"github.com/gantrylabs/gantry/internal/resume"
	"github.com/gantrylabs/gantry/internal/state"
)

var (
	resumePhase  string
	resumeTasks  int
	resumeBudget int
	resumeDryRun bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Start a fresh session and drive from where the plan stands",
	Long: `Resume a plan after an interruption or an exhausted budget.

The plan store itself is the record of progress, so resuming needs no
saved driver state: gantry reads where every phase stands and picks up
from there. Interrupted tasks are returned to pending and run again.

Any session still marked active is closed as interrupted and a fresh
one starts with a full batch budget. To keep the current session and
its counter instead, use 'gantry run' (optionally --reset-budget).

Examples:
  gantry resume             # Close the old session, drive with a new one
  gantry resume --dry-run   # Show where the plan stands, change nothing`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumePhase, "phase", "", "Drive a single phase by ID instead of the full plan")
	resumeCmd.Flags().IntVar(&resumeTasks, "tasks", 0, "Stop after dispatching this many tasks (0 = no limit)")
	resumeCmd.Flags().IntVar(&resumeBudget, "budget", 0, "Batch budget for the new session (0 = config default, negative = unlimited)")
	resumeCmd.Flags().BoolVar(&resumeDryRun, "dry-run", false, "Show where the plan stands without driving")
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	root, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	detections, err := resume.New(db).DetectAll()
	if err != nil {
		return fmt.Errorf("detect plan position: %w", err)
	}
	printDetections(detections)

	if resumeDryRun {
		return nil
	}

	// Closing the old session and starting fresh is the explicit budget
	// reset that resuming implies
	old, err := db.ActiveSession()
	if err != nil {
		return fmt.Errorf("look up active session: %w", err)
	}
	if old != nil {
		if err := db.FinishSession(old.ID, state.SessionInterrupted); err != nil {
			return fmt.Errorf("close session %s: %w", shortID(old.ID), err)
		}
		fmt.Printf("Closed session %s (%d batches used)\n", shortID(old.ID), old.BatchCount)
	}

	budget := sessionBudget(resumeBudget, cfg.Defaults.BatchBudget)
	session, err := db.StartSession(budget)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	fmt.Printf("Started session %s (budget %s)\n", shortID(session.ID), budgetLabel(budget))

	worker, reviewer, err := buildCollaborators(cfg)
	if err != nil {
		return err
	}

	return driveSession(root, db, cfg, session, worker, reviewer, resumePhase, resumeTasks)
}

// printDetections shows where each phase stands, in sequence order.
func printDetections(detections []resume.Detection) {
	if len(detections) == 0 {
		fmt.Println("No phases defined. Import a plan first.")
		return
	}
	fmt.Println("Plan position:")
	for _, det := range detections {
		fmt.Printf("  %d. %s: %s\n", det.Phase.Sequence, det.Phase.Name, describeDetection(det))
	}
	fmt.Println()
}

// describeDetection explains what the driver would do with a phase.
func describeDetection(det resume.Detection) string {
	switch det.Action {
	case resume.ActionAlreadyComplete:
		return "complete"
	case resume.ActionStartFresh:
		return fmt.Sprintf("not started (%d task(s))", det.Tasks.Total())
	case resume.ActionResumeOrphan:
		return fmt.Sprintf("%d interrupted task(s) to resurface", len(det.Orphans))
	case resume.ActionResumeMixed:
		return fmt.Sprintf("%d interrupted task(s) and %d story review(s) outstanding",
			len(det.Orphans), len(det.PendingGates))
	case resume.ActionRunStoryGate:
		return fmt.Sprintf("%d story review(s) due", len(det.PendingGates))
	case resume.ActionRunPhaseGate:
		return "phase gate review due"
	case resume.ActionFindNextTask:
		return fmt.Sprintf("in progress (%d/%d tasks done)", det.Tasks.Terminal(), det.Tasks.Total())
	default:
		return string(det.Action)
	}
}
