package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the plan store for structural faults",
	Long: `Scan the plan store for inconsistencies.

Checks that every task's epic agrees with its story's epic, that phase
members reference items that exist, and that dependency edges have both
endpoints. Faults are reported, never repaired; a fault usually means
the store was edited outside gantry.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	faults, err := db.CheckIntegrity()
	if err != nil {
		return fmt.Errorf("check integrity: %w", err)
	}

	if len(faults) == 0 {
		printStatus("✓", "plan store is consistent", color.FgGreen)
		return nil
	}

	for _, f := range faults {
		printStatus("✗", fmt.Sprintf("[%s] %s", f.Kind, f.Detail), color.FgRed)
	}
	return fmt.Errorf("found %d integrity fault(s)", len(faults))
}
