package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/artpar/costboard/app"
	"github.com/artpar/costboard/domain/period"
	"github.com/artpar/costboard/domain/snapshot"
)

const timeLayout = "2006-01-02 15:04:05Z07:00"

func printSnapshots(out io.Writer, snaps []snapshot.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No snapshots. The first period is still open.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tTIMEZONE\tBYTES")
	for _, s := range snaps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", s.ID, s.CreatedAt.Format(timeLayout), s.Timezone, len(s.Payload))
	}
	w.Flush()
}

func printPeriods(out io.Writer, periods []period.Period) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSTART\tEND\tSTATUS")
	for _, p := range periods {
		status := "closed"
		if p.IsCurrent {
			status = "current"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.Index, formatBound(p.StartAt, "-"), formatBound(p.EndAt, "now"), status)
	}
	w.Flush()
}

func printSummary(out io.Writer, sum app.Summary) {
	printPeriodHeader(out, sum.Period)
	fmt.Fprintf(out, "Total cost: %.6f  Users with usage: %d\n\n", sum.Totals.TotalCost, sum.Totals.UserCount)

	if len(sum.Ranking) == 0 {
		fmt.Fprintln(out, "No usage in this period.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tNAME\tCOST\tSHARE\tTOKENS\tREQUESTS")
	for i, r := range sum.Ranking {
		fmt.Fprintf(w, "%d\t%s\t%.6f\t%.1f%%\t%d\t%d\n", i+1, r.Name, r.Cost, r.Share*100, r.PeriodTokens, r.PeriodRequests)
	}
	w.Flush()
}

func printUserDetail(out io.Writer, d app.UserDetail) {
	printPeriodHeader(out, d.Period)
	fmt.Fprintf(out, "User:     %s (%s)\n", d.Entry.ID, d.Entry.Name)
	fmt.Fprintf(out, "Rank:     %d\n", d.Rank)
	fmt.Fprintf(out, "Cost:     %.6f of %.6f (%.1f%%)\n", d.Entry.Cost, d.TotalCost, d.Entry.Share*100)
	fmt.Fprintf(out, "Tokens:   %d (in %d, out %d)\n", d.Entry.PeriodTokens, d.Entry.PeriodInputTokens, d.Entry.PeriodOutputTokens)
	fmt.Fprintf(out, "Requests: %d\n", d.Entry.PeriodRequests)
}

func printPeriodHeader(out io.Writer, p period.Period) {
	fmt.Fprintf(out, "Period %d: %s to %s\n", p.Index, formatBound(p.StartAt, "beginning"), formatBound(p.EndAt, "now"))
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatBound(t *time.Time, empty string) string {
	if t == nil {
		return empty
	}
	return t.Format(timeLayout)
}
