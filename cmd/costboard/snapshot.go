package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage usage snapshots",
	Long: `Manage the snapshots that bound billing periods.

Taking a snapshot closes the current period and opens a new one.

Examples:
  costboard snapshot take
  costboard snapshot list`,
}

var snapshotTakeCmd = &cobra.Command{
	Use:   "take",
	Short: "Close the current period",
	RunE:  runSnapshotTake,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots",
	RunE:  runSnapshotList,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotTakeCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
}

func runSnapshotTake(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	snap, err := app.Snapshots.Close(cmd.Context())
	if err != nil {
		return fmt.Errorf("take snapshot: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %d taken at %s (%s)\n",
		snap.ID, snap.CreatedAt.Format(timeLayout), snap.Timezone)
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	snaps, err := app.Snapshots.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	printSnapshots(cmd.OutOrStdout(), snaps)
	return nil
}
