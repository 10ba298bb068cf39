package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/artpar/costboard/bootstrap"
	"github.com/artpar/costboard/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	envFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "costboard",
	Short: "Per-period usage billing dashboard for a shared API relay",
	Long: `costboard turns the cumulative usage reported by an API relay into
billing periods, each user's share of a period, and a ranking.

Quick start:
  costboard serve               # Start the dashboard API
  costboard snapshot take       # Close the current period

Reports:
  costboard periods             # List billing periods
  costboard summary --period 0  # Show a period's ranking

Setup:
  costboard hash                # Hash an admin token or API key`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(envFile)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "costboard.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// openApp builds the application for one-shot commands. Logs go to stderr
// so stdout stays parseable.
func openApp() (*bootstrap.App, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return bootstrap.New(cfg, bootstrap.Options{
		Version:   version,
		Commit:    commit,
		LogOutput: os.Stderr,
	})
}
