package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/config"
	fsignal "github.com/gantrylabs/gantry/internal/signal"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Ask a running driver to stop at the next cycle boundary",
	Long: `Ask a driver running in another terminal to stop cleanly.

The request is a file dropped into .gantry/signals/, so it works across
processes. The driver notices it between dispatch cycles: the task in
flight finishes first, then the run halts with its session still
active, ready for 'gantry run' to pick up.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return requestSignal(fsignal.Checkpoint)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running driver to stop",
	Long: `Ask a driver running in another terminal to stop.

Stop behaves like checkpoint at the driver loop level; both halt at the
next cycle boundary. The separate signal exists for wrappers that treat
stop as final rather than resumable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return requestSignal(fsignal.Stop)
	},
}

func requestSignal(sig fsignal.Signal) error {
	root, err := config.FindProjectRoot()
	if err != nil {
		return fmt.Errorf("find project root: %w", err)
	}
	if err := fsignal.Request(root, sig); err != nil {
		return fmt.Errorf("write %s signal: %w", sig, err)
	}
	printStatus("✓", fmt.Sprintf("%s requested; the driver stops at the next cycle boundary", sig), color.FgGreen)
	return nil
}
