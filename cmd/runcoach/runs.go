package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"runcoach/internal/types"
)

const maxRunsLimit = 100

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the most recent stored runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsLimit < 1 || runsLimit > maxRunsLimit {
			return fmt.Errorf("--limit must be between 1 and %d", maxRunsLimit)
		}
		return withBackend(cmd, false, func(b *backend) error {
			runs, err := b.activities.ListRecent(cmd.Context(), runsLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs stored yet. Use `runcoach sync`.")
				return nil
			}
			return printRuns(cmd.OutOrStdout(), runs)
		})
	},
}

func printRuns(w io.Writer, runs []types.Activity) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "DATE\tNAME\tKM\tTIME\tPACE\tHR\tTEMP\tPLACE")
	for i := range runs {
		a := &runs[i]
		pace := "-"
		if mpk := a.PaceMinPerKm(); mpk > 0 {
			pace = formatClock(int(mpk*60+0.5)) + "/km"
		}
		place := "-"
		if a.Enrichment.CityName != nil {
			place = *a.Enrichment.CityName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.StartDateLocal.Format("2006-01-02"),
			a.Name,
			p.Sprintf("%.2f", a.DistanceKm),
			formatClock(a.MovingTime),
			pace,
			optional(p, "%.0f", a.AverageHeartrate),
			optional(p, "%.1f°C", a.Enrichment.Temperature),
			place,
		)
	}
	return tw.Flush()
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 7, "Number of runs to show")
	rootCmd.AddCommand(runsCmd)
}
