package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantrylabs/gantry/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify gantry configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/gantry/config.yaml
Project-specific overrides can be placed in .gantry.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", describeAPIKey(cfg))
	fmt.Printf("anthropic.model: %s\n", modelOrDefault(cfg))
	fmt.Printf("defaults.batch_budget: %d\n", cfg.Defaults.BatchBudget)
	fmt.Printf("defaults.session_retention: %s\n", cfg.Defaults.SessionRetention)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
	fmt.Printf("bedrock.enabled: %t\n", cfg.Bedrock.Enabled)
	fmt.Printf("bedrock.region: %s\n", cfg.Bedrock.Region)
	fmt.Printf("bedrock.profile: %s\n", cfg.Bedrock.Profile)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	if key == "anthropic.api_key" {
		fmt.Printf("Set %s = %s\n", key, config.MaskAPIKey(value))
		return
	}
	fmt.Printf("Set %s = %s\n", key, value)
}

// describeAPIKey renders the masked key and where it came from.
func describeAPIKey(cfg *config.Config) string {
	key, source, err := config.GetAPIKey(cfg)
	if err != nil {
		return "(not set)"
	}
	return fmt.Sprintf("%s (from %s)", config.MaskAPIKey(key), source)
}

// modelOrDefault shows the configured model or marks the SDK default.
func modelOrDefault(cfg *config.Config) string {
	if cfg.Anthropic.Model == "" {
		return "(default)"
	}
	return cfg.Anthropic.Model
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return describeAPIKey(cfg), nil
	case "anthropic.model":
		return modelOrDefault(cfg), nil
	case "defaults.batch_budget":
		return strconv.Itoa(cfg.Defaults.BatchBudget), nil
	case "defaults.session_retention":
		return cfg.Defaults.SessionRetention.String(), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	case "bedrock.enabled":
		return strconv.FormatBool(cfg.Bedrock.Enabled), nil
	case "bedrock.region":
		return cfg.Bedrock.Region, nil
	case "bedrock.profile":
		return cfg.Bedrock.Profile, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "defaults.batch_budget":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for batch_budget: %w", err)
		}
		cfg.Defaults.BatchBudget = n
	case "defaults.session_retention":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for session_retention: %w", err)
		}
		cfg.Defaults.SessionRetention = d
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for refresh_rate: %w", err)
		}
		cfg.TUI.RefreshRate = d
	case "bedrock.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for bedrock.enabled: %w", err)
		}
		cfg.Bedrock.Enabled = b
	case "bedrock.region":
		cfg.Bedrock.Region = value
	case "bedrock.profile":
		cfg.Bedrock.Profile = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
