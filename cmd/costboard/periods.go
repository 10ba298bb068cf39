package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List billing periods",
	RunE:  runPeriods,
}

func init() {
	rootCmd.AddCommand(periodsCmd)
}

func runPeriods(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	periods, err := app.Billing.Periods(cmd.Context())
	if err != nil {
		return fmt.Errorf("list periods: %w", err)
	}

	printPeriods(cmd.OutOrStdout(), periods)
	return nil
}
