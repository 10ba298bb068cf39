package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Overridden with -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
	Go      string `json:"go"`
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildInfo{Version: version, Commit: commit, Built: buildDate, Go: runtime.Version()}
		out := cmd.OutOrStdout()
		if versionJSON {
			return printJSON(out, info)
		}
		_, err := fmt.Fprintf(out, "costboard %s (commit %s, built %s, %s)\n", info.Version, info.Commit, info.Built, info.Go)
		return err
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print JSON")
	rootCmd.AddCommand(versionCmd)
}
