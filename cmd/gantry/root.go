package main

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/collab"
	"github.com/gantrylabs/gantry/internal/config"
	"github.com/gantrylabs/gantry/internal/state"
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Plan-driven work loop for Claude collaborators",
	Long: `Gantry drives a Claude collaborator through a structured plan: epics
broken into stories and tasks, sequenced into phases with review gates
between them.

Import a plan, then let the driver dispatch one task at a time in
dependency order. All progress lives in .gantry/gantry.db, so every run
picks up exactly where the last one stopped, and a batch budget caps how
much work a single session may consume.

Typical flow:
  gantry init
  gantry plan import plan.yaml
  gantry run
  gantry status`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// openStore locates the project root and opens its plan store. Every
// command that needs existing state goes through here.
func openStore() (string, *state.DB, error) {
	root, err := config.FindProjectRoot()
	if err != nil {
		return "", nil, fmt.Errorf("find project root: %w", err)
	}

	dbPath := state.ProjectDBPath(root)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return "", nil, fmt.Errorf("no gantry project found; run 'gantry init' first")
	}

	db, err := state.OpenProject(root)
	if err != nil {
		return "", nil, fmt.Errorf("open plan store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return "", nil, fmt.Errorf("migrate plan store: %w", err)
	}
	return root, db, nil
}

// buildCollaborators constructs the API-backed worker and reviewer from
// configuration. Bedrock runs authenticate through AWS credentials;
// direct API runs need an Anthropic key.
func buildCollaborators(cfg *config.Config) (collab.Worker, collab.Reviewer, error) {
	cc := collab.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		UseAWSBedrock: cfg.Bedrock.Enabled,
		AWSRegion:     cfg.Bedrock.Region,
		AWSProfile:    cfg.Bedrock.Profile,
	}

	if !cfg.Bedrock.Enabled {
		key, _, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%w\n\n"+
				"Set it with:\n"+
				"  export ANTHROPIC_API_KEY=sk-ant-...\n"+
				"or store it in the config:\n"+
				"  gantry config anthropic.api_key sk-ant-...", err)
		}
		cc.APIKey = key
	}

	client, err := collab.NewClient(cc)
	if err != nil {
		return nil, nil, fmt.Errorf("create Anthropic client: %w", err)
	}
	return collab.NewAPIWorker(client), collab.NewAPIReviewer(client), nil
}

// shortID trims a UUID down to its first group for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
