package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/ingest"
	"github.com/gantrylabs/gantry/internal/state"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Validate and import plan files",
	Long: `Work with YAML plan files.

A plan file declares epics containing stories containing tasks, plus
ordered phases that group epics and stories, and dependency edges
between items of the same kind. 'plan validate' checks a file without
touching the store; 'plan import' loads it into .gantry/gantry.db.`,
}

var planValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a plan file without importing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanValidate,
}

var planImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a plan file into the plan store",
	Long: `Import a plan file into the plan store.

The store must be empty: importing over live state would silently reset
progress. To replace a plan, remove .gantry/gantry.db and import again.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanImport,
}

func init() {
	planCmd.AddCommand(planValidateCmd)
	planCmd.AddCommand(planImportCmd)
}

func runPlanValidate(cmd *cobra.Command, args []string) error {
	plan, err := ingest.Load(args[0])
	if err != nil {
		return err
	}

	result := ingest.Validate(plan)
	reportValidation(result)
	if !result.Valid {
		return fmt.Errorf("plan has %d error(s)", len(result.Errors))
	}

	epics, stories, tasks := planCounts(plan)
	fmt.Printf("%s Plan is valid: %d epic(s), %d story(ies), %d task(s), %d phase(s)\n",
		color.GreenString("✓"), epics, stories, tasks, len(plan.Phases))
	return nil
}

func runPlanImport(cmd *cobra.Command, args []string) error {
	plan, err := ingest.Load(args[0])
	if err != nil {
		return err
	}

	// Surface warnings before committing anything; Populate re-checks
	// errors but says nothing about warnings.
	result := ingest.Validate(plan)
	reportValidation(result)
	if !result.Valid {
		return fmt.Errorf("plan has %d error(s), nothing imported", len(result.Errors))
	}

	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := ingest.Populate(db, plan); err != nil {
		if errors.Is(err, state.ErrStoreNotEmpty) {
			return fmt.Errorf("%w\n\n"+
				"Re-importing would reset all progress. To replace the plan,\n"+
				"delete .gantry/gantry.db and run the import again.", err)
		}
		return err
	}

	epics, stories, tasks := planCounts(plan)
	fmt.Printf("%s Imported %d epic(s), %d story(ies), %d task(s), %d phase(s)\n",
		color.GreenString("✓"), epics, stories, tasks, len(plan.Phases))
	fmt.Println("\nDrive it with:")
	fmt.Println("  gantry run")
	return nil
}

// reportValidation prints validation errors and warnings.
func reportValidation(result ingest.ValidationResult) {
	for _, e := range result.Errors {
		printStatus("✗", e, color.FgRed)
	}
	for _, w := range result.Warnings {
		printStatus("⚠", w, color.FgYellow)
	}
}

// planCounts tallies the work items declared in a plan file.
func planCounts(p *ingest.Plan) (epics, stories, tasks int) {
	epics = len(p.Epics)
	for _, e := range p.Epics {
		stories += len(e.Stories)
		for _, s := range e.Stories {
			tasks += len(s.Tasks)
		}
	}
	return epics, stories, tasks
}
