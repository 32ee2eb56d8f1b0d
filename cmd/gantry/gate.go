package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/collab"
	"github.com/gantrylabs/gantry/internal/config"
	"github.com/gantrylabs/gantry/internal/gate"
	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

var (
	gateVerdict string
	gateNotes   string
	gateReview  bool
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run a review gate by hand",
	Long: `Run a story or phase review gate outside the driver loop.

Gates normally run inside 'gantry run', where the reviewer collaborator
judges the work. This command covers the manual path: record a verdict
you reached yourself with --verdict, or ask the reviewer for one with
--review.

A passed gate stays passed: running a gate that has already passed
records nothing and reports the no-op. A failed gate can be re-run once
the work is fixed; every recorded verdict stays in the review history.

Examples:
  gantry gate story story-3 --verdict pass
  gantry gate story story-3 --verdict fail --notes "error paths untested"
  gantry gate phase phase-1 --review`,
}

var gateStoryCmd = &cobra.Command{
	Use:   "story <id>",
	Short: "Run the review gate for a completed story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGate(models.GateStory, args[0])
	},
}

var gatePhaseCmd = &cobra.Command{
	Use:   "phase <id>",
	Short: "Run the exit gate for a phase whose stories all passed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGate(models.GatePhase, args[0])
	},
}

func init() {
	gateCmd.PersistentFlags().StringVar(&gateVerdict, "verdict", "", "Record this verdict: pass or fail")
	gateCmd.PersistentFlags().StringVar(&gateNotes, "notes", "", "Review notes to record alongside the verdict")
	gateCmd.PersistentFlags().BoolVar(&gateReview, "review", false, "Ask the reviewer collaborator for the verdict")

	gateCmd.AddCommand(gateStoryCmd)
	gateCmd.AddCommand(gatePhaseCmd)
}

func runGate(scope models.GateScope, targetID string) error {
	if gateReview == (gateVerdict != "") {
		return fmt.Errorf("pass exactly one of --verdict or --review")
	}

	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	verdict := models.ReviewVerdict(gateVerdict)
	notes := gateNotes
	if gateReview {
		verdict, notes, err = requestReview(db, scope, targetID)
		if err != nil {
			return err
		}
	} else if !verdict.Valid() {
		return fmt.Errorf("invalid verdict %q: must be pass or fail", gateVerdict)
	}

	ctrl := gate.New(db)
	var res *gate.Result
	switch scope {
	case models.GateStory:
		res, err = ctrl.RunStoryGate(targetID, verdict, notes)
	case models.GatePhase:
		res, err = ctrl.RunPhaseGate(targetID, verdict, notes)
	}
	if err != nil {
		return err
	}

	printGateResult(res)
	return nil
}

// requestReview sends the gate to the reviewer collaborator and returns
// its verdict.
func requestReview(db *state.DB, scope models.GateScope, targetID string) (models.ReviewVerdict, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", "", fmt.Errorf("load config: %w", err)
	}
	_, reviewer, err := buildCollaborators(cfg)
	if err != nil {
		return "", "", err
	}

	req := collab.ReviewRequest{Scope: scope}
	switch scope {
	case models.GateStory:
		story, err := db.GetStory(targetID)
		if err != nil {
			return "", "", err
		}
		tasks, err := db.ListTasksByStory(targetID)
		if err != nil {
			return "", "", err
		}
		req.Story = story
		req.Tasks = tasks
	case models.GatePhase:
		phase, err := db.GetPhase(targetID)
		if err != nil {
			return "", "", err
		}
		stories, err := db.PhaseStories(targetID)
		if err != nil {
			return "", "", err
		}
		req.Phase = phase
		req.Stories = stories
	}

	fmt.Printf("Requesting %s review of %s...\n", scope, targetID)
	outcome, err := reviewer.Review(context.Background(), req)
	if err != nil {
		return "", "", fmt.Errorf("review %s %s: %w", scope, targetID, err)
	}
	return outcome.Verdict, outcome.Notes, nil
}

// printGateResult reports what the gate recorded.
func printGateResult(res *gate.Result) {
	if res.AlreadyPassed {
		printStatus("✓", fmt.Sprintf("%s %s already passed its gate, nothing recorded", res.Scope, res.TargetID), color.FgGreen)
		return
	}

	if res.Passed {
		printStatus("✓", fmt.Sprintf("%s %s passed review", res.Scope, res.TargetID), color.FgGreen)
	} else {
		printStatus("✗", fmt.Sprintf("%s %s failed review", res.Scope, res.TargetID), color.FgRed)
	}
	if res.Notes != "" {
		fmt.Printf("  Notes: %s\n", res.Notes)
	}
	fmt.Printf("  Review: %s\n", res.ReviewID)
}
