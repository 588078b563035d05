package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/goflagship-sdk/internal/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage connection profiles",
	Long:  `Manage the flagsdk configuration file at ~/.flagsdk/config.yaml.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Printf("Default Profile: %s\n\n", cfg.DefaultProfile)
		fmt.Println("Profiles:")
		for name, p := range cfg.Profiles {
			fmt.Printf("  %s:\n", name)
			fmt.Printf("    base_url: %s\n", p.BaseURL)
			// Mask API key for security
			maskedKey := "***"
			if len(p.APIKey) > 4 {
				maskedKey = p.APIKey[:4] + "***"
			}
			fmt.Printf("    api_key: %s\n", maskedKey)
		}

		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <profile.key> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value.

Examples:
  flagsdk config set local.base_url http://localhost:8080
  flagsdk config set prod.api_key my-secret-key`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		parts := strings.Split(args[0], ".")
		if len(parts) != 2 {
			return fmt.Errorf("invalid key format, expected 'profile.key' (e.g., 'local.base_url')")
		}

		name := parts[0]
		key := parts[1]
		value := args[1]

		if cfg.Profiles == nil {
			cfg.Profiles = make(map[string]cli.ProfileConfig)
		}
		p := cfg.Profiles[name]

		switch key {
		case "base_url":
			p.BaseURL = value
		case "api_key":
			p.APIKey = value
		default:
			return fmt.Errorf("unknown key '%s', valid keys: base_url, api_key", key)
		}
		cfg.Profiles[name] = p

		if err := cli.SaveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Successfully set %s.%s\n", name, key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configSetCmd)
}