package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/state"
)

var (
	initForce      bool
	initWithConfig bool
	initWithPlan   bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a gantry project",
	Long: `Initialize a directory for use with gantry.

This command sets up everything needed to drive a plan:
  - Creates the .gantry directory structure (logs, signals)
  - Creates and migrates the plan store at .gantry/gantry.db
  - Adds .gantry entries to .gitignore when a git repository exists
  - Optionally creates a .gantry.yaml config template and a starter plan

The directory argument is optional and defaults to the current directory.

Examples:
  gantry init                # Initialize current directory
  gantry init ./myproject    # Initialize specific directory
  gantry init --force        # Reinitialize even if already set up
  gantry init --with-config  # Create a .gantry.yaml template
  gantry init --with-plan    # Create a starter plan.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initWithConfig, "with-config", false, "Create a .gantry.yaml config template")
	initCmd.Flags().BoolVar(&initWithPlan, "with-plan", false, "Create a starter plan.yaml")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing gantry in %s...\n\n", absPath)

	gantryDir := filepath.Join(absPath, ".gantry")
	if _, err := os.Stat(gantryDir); err == nil && !initForce {
		fmt.Println("Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (you can set it later, or use Bedrock)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	for _, sub := range []string{"logs", "signals"} {
		if err := os.MkdirAll(filepath.Join(gantryDir, sub), 0755); err != nil {
			return fmt.Errorf("creating .gantry/%s directory: %w", sub, err)
		}
	}
	printStatus("✓", "Created .gantry directory structure", color.FgGreen)

	db, err := state.OpenProject(absPath)
	if err != nil {
		return fmt.Errorf("creating plan store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrating plan store: %w", err)
	}
	db.Close()
	printStatus("✓", "Created plan store at .gantry/gantry.db", color.FgGreen)

	// Only touch .gitignore when the directory is actually a repository
	if _, err := os.Stat(filepath.Join(absPath, ".git")); err == nil {
		if err := updateGitignore(absPath); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		printStatus("✓", "Updated .gitignore with gantry entries", color.FgGreen)
	}

	if initWithConfig {
		created, err := createProjectConfig(absPath)
		if err != nil {
			return fmt.Errorf("creating project config: %w", err)
		}
		if created {
			printStatus("✓", "Created .gantry.yaml template", color.FgGreen)
		} else {
			printStatus("✓", ".gantry.yaml already exists, left untouched", color.FgGreen)
		}
	}

	if initWithPlan {
		created, err := createStarterPlan(absPath)
		if err != nil {
			return fmt.Errorf("creating starter plan: %w", err)
		}
		if created {
			printStatus("✓", "Created starter plan.yaml", color.FgGreen)
		} else {
			printStatus("✓", "plan.yaml already exists, left untouched", color.FgGreen)
		}
	}

	fmt.Printf("\n%s Gantry initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if apiKey == "" {
		fmt.Println("  1. Set your API key:")
		fmt.Println("     export ANTHROPIC_API_KEY=your-key-here")
		fmt.Println()
	}
	fmt.Println("  2. Import a plan:")
	fmt.Println("     gantry plan import plan.yaml")
	fmt.Println()
	fmt.Println("  3. Drive it:")
	fmt.Println("     gantry run")

	return nil
}

// updateGitignore adds gantry entries to .gitignore if not present
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	newContent, changed := appendGantryIgnores(existingContent)
	if !changed {
		return nil
	}
	return os.WriteFile(gitignorePath, []byte(newContent), 0644)
}

// appendGantryIgnores returns the .gitignore content with gantry entries
// appended, and whether anything changed. The plan store and logs are
// local state and never belong in the repository.
func appendGantryIgnores(existing string) (string, bool) {
	gantryEntries := []string{
		".gantry/gantry.db*",
		".gantry/logs/",
		".gantry/signals/",
	}

	needsUpdate := false
	for _, entry := range gantryEntries {
		if !strings.Contains(existing, entry) {
			needsUpdate = true
			break
		}
	}
	if !needsUpdate {
		return existing, false
	}

	var newContent strings.Builder
	newContent.WriteString(existing)
	if len(existing) > 0 && !strings.HasSuffix(existing, "\n") {
		newContent.WriteString("\n")
	}
	newContent.WriteString("\n# Gantry\n")
	for _, entry := range gantryEntries {
		if !strings.Contains(existing, entry) {
			newContent.WriteString(entry + "\n")
		}
	}
	return newContent.String(), true
}

// createProjectConfig creates a .gantry.yaml template. Returns false
// when the file already exists, which is never overwritten.
func createProjectConfig(repoPath string) (bool, error) {
	configPath := filepath.Join(repoPath, ".gantry.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return false, nil
	}

	template := `# Gantry Project Configuration
# This file overrides defaults from ~/.config/gantry/config.yaml

# anthropic:
#   model: claude-sonnet-4-20250514

# defaults:
#   batch_budget: 8
#   session_retention: 720h

# tui:
#   refresh_rate: 1s

# bedrock:
#   enabled: false
#   region: us-west-2
`

	if err := os.WriteFile(configPath, []byte(template), 0644); err != nil {
		return false, err
	}
	return true, nil
}

// starterPlanYAML is the template written by init --with-plan.
// It must stay importable as-is.
const starterPlanYAML = `# Gantry plan file.
#
# Epics group stories, stories group tasks. Phases slice the plan into
# ordered stages by claiming epics or stories as members. Import with:
#
#   gantry plan import plan.yaml

epics:
  - id: epic-example
    title: Example epic
    description: Replace with a real body of work
    priority: high
    stories:
      - id: story-example
        title: Example story
        priority: medium
        tasks:
          - id: task-first
            title: First task
            acceptance_criteria: Describe what done looks like
            complexity: 1
          - id: task-second
            title: Second task
            acceptance_criteria: Builds on the first task
            complexity: 2
            depends_on: [task-first]

phases:
  - id: phase-1
    sequence: 1
    name: Foundation
    exit_criteria: The example epic is complete
    members: ["epic:epic-example"]
`

func createStarterPlan(repoPath string) (bool, error) {
	planPath := filepath.Join(repoPath, "plan.yaml")

	if _, err := os.Stat(planPath); err == nil {
		return false, nil
	}

	if err := os.WriteFile(planPath, []byte(starterPlanYAML), 0644); err != nil {
		return false, err
	}
	return true, nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
