package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/state"
	"github.com/gantrylabs/gantry/pkg/models"
)

var (
	taskSkipReason string
	taskListStatus string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and finish tasks by hand",
	Long: `Work with individual tasks outside the driver loop.

'task complete' and 'task skip' record a terminal outcome directly,
for work finished outside gantry or work that no longer applies. The
same completion cascade runs as when a collaborator finishes the task:
the story completes when its last task turns terminal, the epic when
its last story does.`,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by status",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyTaskOutcome(args[0], state.CompleteOutcome())
	},
}

var taskSkipCmd = &cobra.Command{
	Use:   "skip <id>",
	Short: "Skip a task that should not run",
	Long: `Skip a task that should not run.

A skipped task counts as terminal for every roll-up and dependency
check, the same as a completed one. The reason is recorded on the task.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyTaskOutcome(args[0], state.SkipOutcome(taskSkipReason))
	},
}

func init() {
	taskSkipCmd.Flags().StringVar(&taskSkipReason, "reason", "", "Why the task is being skipped")
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Only show tasks with this status (pending, in_progress, complete, skipped)")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskSkipCmd)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var filter *models.Status
	if taskListStatus != "" {
		status := models.Status(taskListStatus)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q: must be pending, in_progress, complete, or skipped", taskListStatus)
		}
		filter = &status
	}

	tasks, err := db.ListTasks(filter)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	for _, t := range tasks {
		line := fmt.Sprintf("%-12s %-12s %s", t.ID, t.Status, t.Title)
		if t.Status == models.StatusSkipped && t.SkipReason != "" {
			line += fmt.Sprintf(" (skipped: %s)", t.SkipReason)
		}
		fmt.Println(line)
	}
	return nil
}

func applyTaskOutcome(taskID string, outcome state.Outcome) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.ApplyTaskResult(taskID, outcome)
	if err != nil {
		return err
	}

	if !res.Applied {
		printStatus("✓", fmt.Sprintf("task %s was already %s, nothing changed", taskID, res.Task.Status), color.FgGreen)
		return nil
	}

	printStatus("✓", fmt.Sprintf("task %s marked %s", taskID, res.Task.Status), color.FgGreen)
	if res.StoryCompleted != "" {
		fmt.Printf("  Story %s completed\n", res.StoryCompleted)
	}
	if res.EpicCompleted != "" {
		fmt.Printf("  Epic %s completed\n", res.EpicCompleted)
	}
	return nil
}
