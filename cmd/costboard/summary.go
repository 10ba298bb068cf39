package main

import (
	"errors"
	"fmt"

	"github.com/artpar/costboard/app"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a period's ranking",
	Long: `Show each user's cost for a billing period.

Without --period the current period is shown. With --user only that
user's entry and rank are printed.

Examples:
  costboard summary
  costboard summary --period 2
  costboard summary --period 2 --user user_123
  costboard summary --period 2 --json`,
	RunE: runSummary,
}

var (
	summaryPeriod int
	summaryUser   string
	summaryJSON   bool
)

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().IntVar(&summaryPeriod, "period", -1, "period index (default: current)")
	summaryCmd.Flags().StringVar(&summaryUser, "user", "", "user ID")
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "print JSON")
}

func runSummary(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	index := summaryPeriod
	if index < 0 {
		periods, err := a.Billing.Periods(ctx)
		if err != nil {
			return fmt.Errorf("list periods: %w", err)
		}
		index = len(periods) - 1
	}

	if summaryUser != "" {
		detail, err := a.Billing.UserDetail(ctx, index, summaryUser)
		if errors.Is(err, app.ErrNotFound) {
			return fmt.Errorf("user %s has no usage in period %d", summaryUser, index)
		}
		if err != nil {
			return err
		}
		if summaryJSON {
			return printJSON(out, detail)
		}
		printUserDetail(out, detail)
		return nil
	}

	sum, err := a.Billing.PeriodSummary(ctx, index, "")
	if errors.Is(err, app.ErrNotFound) {
		return fmt.Errorf("period %d does not exist", index)
	}
	if err != nil {
		return err
	}
	if summaryJSON {
		return printJSON(out, sum)
	}
	printSummary(out, sum)
	return nil
}
