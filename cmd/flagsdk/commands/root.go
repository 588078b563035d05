package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TimurManjosov/goflagship-sdk/internal/cli"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	profile string
	format  string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "flagsdk",
	Short: "CLI companion for the goflagship client runtime",
	Long: `flagsdk exercises the embedded flag/feedback runtime from a terminal.

It resolves flag state for a given user context, listens for feedback
prompts pushed by the server, and can run a local simulator so everything
works without a deployed flag service.

Examples:
  flagsdk sim --addr :8080
  flagsdk watch --user u-1 --follow
  flagsdk feedback --user u-1`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the flag service")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Connection profile from ~/.flagsdk/config.yaml")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}

// connection resolves the effective base URL and API key from flags and the
// CLI config file.
func connection() (string, string, error) {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return "", "", err
	}
	url, key := cfg.Resolve(profile, baseURL, apiKey)
	if url == "" {
		url = "http://localhost:8080"
	}
	return url, key, nil
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
