package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/artpar/costboard/bootstrap"
	"github.com/artpar/costboard/config"
	"github.com/spf13/cobra"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API and the snapshot scheduler",
	Long: `Serve billing periods and rankings over HTTP.

Configuration comes from the --config file when it exists, otherwise from
COSTBOARD_* environment variables. With a config file and --hot-reload,
edits to logging.level and snapshots.interval apply without a restart
(SIGHUP forces a reload).

Common environment variables:
  COSTBOARD_UPSTREAM_URL          relay admin API base URL (required)
  COSTBOARD_UPSTREAM_ADMIN_TOKEN  relay admin token
  COSTBOARD_DATABASE_DSN          snapshot database path
  COSTBOARD_SERVER_PORT           listen port
  COSTBOARD_REDIS_ADDR            enables the usage cache
  COSTBOARD_LOG_LEVEL             debug, info, warn or error

Examples:
  costboard serve -c /etc/costboard/costboard.yaml
  COSTBOARD_UPSTREAM_URL=https://relay.example.com costboard serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "watch the config file and reload on change")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := buildServer()
	if errors.Is(err, config.ErrNoConfig) {
		fmt.Fprintf(cmd.OutOrStdout(), "No configuration found. Create %s or set COSTBOARD_UPSTREAM_URL.\n", cfgFile)
		return err
	}
	if err != nil {
		return err
	}
	return app.Run()
}

// buildServer prefers the watched file path and falls back to a one-time
// load when the file is absent or hot reload is off.
func buildServer() (*bootstrap.App, error) {
	opts := bootstrap.Options{Version: version, Commit: commit}

	if _, statErr := os.Stat(cfgFile); statErr == nil && hotReload {
		app, err := bootstrap.NewWithHotReload(cfgFile, opts)
		if err != nil {
			return nil, fmt.Errorf("start with %s: %w", cfgFile, err)
		}
		return app, nil
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.New(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return app, nil
}
