package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/collab"
	"github.com/gantrylabs/gantry/internal/config"
	"github.com/gantrylabs/gantry/internal/driver"
	fsignal "github.com/gantrylabs/gantry/internal/signal"
	"github.com/gantrylabs/gantry/internal/state"
)

var (
	runPhase       string
	runMaxTasks    int
	runBudget      int
	runResetBudget bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the plan forward",
	Long: `Drive the plan by dispatching tasks to the Claude collaborator.

Each cycle picks the earliest phase that still needs attention, then
either dispatches the next eligible task, resurfaces interrupted tasks,
or runs the review gates the phase is waiting on. The loop stops when
the plan completes, the batch budget runs out, a gate fails, no task
can be dispatched, or an operator asks for a checkpoint.

An active session is picked up automatically, keeping its batch count;
otherwise a new session starts. The budget never resets on its own.
Use --reset-budget after reviewing why the last run stopped.

Examples:
  gantry run                      # Drive the whole plan
  gantry run --phase phase-2      # Drive a single phase
  gantry run --tasks 1            # Dispatch one task, then stop
  gantry run --reset-budget       # Zero the counter, then drive`,
	Args: cobra.NoArgs,
	RunE: runDrive,
}

func init() {
	runCmd.Flags().StringVar(&runPhase, "phase", "", "Drive a single phase by ID instead of the full plan")
	runCmd.Flags().IntVar(&runMaxTasks, "tasks", 0, "Stop after dispatching this many tasks (0 = no limit)")
	runCmd.Flags().IntVar(&runBudget, "budget", 0, "Batch budget for a new session (0 = config default, negative = unlimited)")
	runCmd.Flags().BoolVar(&runResetBudget, "reset-budget", false, "Zero the session's batch counter before driving")
}

func runDrive(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	root, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	session, err := db.ActiveSession()
	if err != nil {
		return fmt.Errorf("look up active session: %w", err)
	}

	if session == nil {
		budget := sessionBudget(runBudget, cfg.Defaults.BatchBudget)
		session, err = db.StartSession(budget)
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		fmt.Printf("Started session %s (budget %s)\n", shortID(session.ID), budgetLabel(budget))
	} else {
		fmt.Printf("Picking up session %s (%d/%s batches used)\n",
			shortID(session.ID), session.BatchCount, budgetLabel(session.BatchBudget))
		if runResetBudget {
			if err := db.ResetBatchCount(session.ID); err != nil {
				return fmt.Errorf("reset batch counter: %w", err)
			}
			session.BatchCount = 0
			printStatus("✓", "Batch counter reset", color.FgGreen)
		}
	}

	worker, reviewer, err := buildCollaborators(cfg)
	if err != nil {
		return err
	}

	return driveSession(root, db, cfg, session, worker, reviewer, runPhase, runMaxTasks)
}

// driveSession runs the driver loop for an established session and
// prints the report. Shared by run and resume.
func driveSession(root string, db *state.DB, cfg *config.Config, session *state.Session, worker collab.Worker, reviewer collab.Reviewer, phase string, maxTasks int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, stopping...")
		cancel()
	}()

	watcher, err := fsignal.NewWatcher(root)
	if err != nil {
		return fmt.Errorf("watch signals: %w", err)
	}
	defer watcher.Close()
	// Stale signal files from an earlier run must not stop this one
	watcher.Clear()

	logger := driver.NewDebugLoggerForProject(root)
	defer logger.Close()

	d := driver.New(db, session, worker, reviewer, driver.Options{
		Phase:      phase,
		MaxTasks:   maxTasks,
		Checkpoint: watcher.ShouldHalt,
		Logger:     logger,
	})

	report, runErr := d.Run(ctx)
	printReport(report, d.Budget())

	switch {
	case runErr == nil:
		if report.Halt == driver.HaltComplete {
			if purged, err := db.PurgeOldSessions(cfg.Defaults.SessionRetention); err == nil && purged > 0 {
				fmt.Printf("\nPurged %d old session(s)\n", purged)
			}
		}
		return nil

	case errors.Is(runErr, driver.ErrBudgetExhausted):
		fmt.Println("\nThe session's batch budget is used up. After reviewing progress:")
		fmt.Println("  gantry run --reset-budget   # keep this session, zero the counter")
		fmt.Println("  gantry resume               # close it and start fresh")
		return nil

	case errors.Is(runErr, context.Canceled):
		return fmt.Errorf("run interrupted: %w", runErr)

	default:
		return fmt.Errorf("drive plan: %w", runErr)
	}
}

// sessionBudget picks the batch budget for a new session. The flag wins
// when set; negative asks for unlimited, which the tracker spells zero.
func sessionBudget(flag, fallback int) int {
	switch {
	case flag < 0:
		return 0
	case flag > 0:
		return flag
	default:
		return fallback
	}
}

// budgetLabel renders a batch budget for display.
func budgetLabel(budget int) string {
	if budget <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", budget)
}

// haltMessage describes a halt reason in operator terms.
func haltMessage(halt driver.HaltReason) string {
	switch halt {
	case driver.HaltComplete:
		return "plan complete"
	case driver.HaltBudgetExhausted:
		return "batch budget exhausted"
	case driver.HaltCheckpoint:
		return "checkpoint requested"
	case driver.HaltCanceled:
		return "canceled"
	case driver.HaltGateFailed:
		return "gate review failed"
	case driver.HaltStalled:
		return "stalled, no dispatchable tasks"
	case driver.HaltTaskLimit:
		return "task limit reached"
	default:
		return string(halt)
	}
}

// haltBadge picks the symbol and color for a halt reason.
func haltBadge(halt driver.HaltReason) (string, color.Attribute) {
	switch halt {
	case driver.HaltComplete:
		return "✓", color.FgGreen
	case driver.HaltCanceled, driver.HaltGateFailed, driver.HaltStalled:
		return "✗", color.FgRed
	default:
		return "⚠", color.FgYellow
	}
}

// printReport summarizes what a run did and why it stopped.
func printReport(report *driver.Report, budget *driver.BudgetTracker) {
	fmt.Println()
	symbol, attr := haltBadge(report.Halt)
	printStatus(symbol, "Run halted: "+haltMessage(report.Halt), attr)
	if report.HaltDetail != "" && report.Halt != driver.HaltBudgetExhausted {
		fmt.Printf("  %s\n", report.HaltDetail)
	}

	count, total := budget.Usage()
	fmt.Printf("  Batches: %d this run, %d/%s for the session\n",
		report.BatchCount(), count, budgetLabel(total))
	fmt.Printf("  Tasks: %d dispatched, %d completed", len(report.Dispatched), len(report.Completed))
	if len(report.Partial) > 0 {
		fmt.Printf(", %d partial", len(report.Partial))
	}
	if len(report.Blocked) > 0 {
		fmt.Printf(", %d blocked", len(report.Blocked))
	}
	fmt.Println()

	if len(report.OrphansResurfaced) > 0 {
		fmt.Printf("  Resurfaced: %d interrupted task(s) returned to pending\n", len(report.OrphansResurfaced))
	}
	if len(report.StoriesCompleted) > 0 || len(report.EpicsCompleted) > 0 {
		fmt.Printf("  Rolled up: %d story(ies), %d epic(s) completed\n",
			len(report.StoriesCompleted), len(report.EpicsCompleted))
	}
	if len(report.Gates) > 0 {
		passed := 0
		for _, g := range report.Gates {
			if g.Passed {
				passed++
			}
		}
		fmt.Printf("  Gates: %d passed, %d failed\n", passed, len(report.Gates)-passed)
	}
	if len(report.PhasesPassed) > 0 {
		fmt.Printf("  Phases passed: %s\n", strings.Join(report.PhasesPassed, ", "))
	}

	if report.Stall != nil && !report.Stall.Exhausted() {
		fmt.Println("\nPending tasks that cannot run:")
		for _, b := range report.Stall.Remaining {
			if len(b.Unmet) == 0 {
				fmt.Printf("  %s: %s (excluded by session skips)\n", b.Task.ID, b.Task.Title)
				continue
			}
			var targets []string
			for _, ref := range b.Unmet {
				targets = append(targets, ref.String())
			}
			fmt.Printf("  %s: %s (waiting on %s)\n", b.Task.ID, b.Task.Title, strings.Join(targets, ", "))
		}
	}
}
