package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"runcoach/internal/types"
)

var statsPeriod string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show average run metrics per period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsPeriod != "" && !slices.Contains(types.StatsPeriods, statsPeriod) {
			return fmt.Errorf("unknown period %q (valid: %s)", statsPeriod, strings.Join(types.StatsPeriods, ", "))
		}
		return withBackend(cmd, false, func(b *backend) error {
			now := time.Now().UTC()
			var rows []types.PeriodStats
			if statsPeriod == "" {
				overview, err := b.stats.Overview(cmd.Context(), now)
				if err != nil {
					return err
				}
				rows = overview
			} else {
				ps, err := b.stats.Period(cmd.Context(), statsPeriod, now)
				if err != nil {
					return err
				}
				rows = []types.PeriodStats{*ps}
			}
			return printStats(cmd.OutOrStdout(), rows)
		})
	},
}

func printStats(w io.Writer, rows []types.PeriodStats) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "PERIOD\tRUNS\tTOTAL KM\tAVG KM\tAVG TIME\tAVG PACE\tAVG HR\tAVG ELEV\tAVG TEMP\tAVG AQI")
	for _, s := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Period,
			p.Sprintf("%d", s.Runs),
			p.Sprintf("%.1f", s.TotalDistanceKm),
			optional(p, "%.2f", s.AvgDistanceKm),
			optionalDuration(s.AvgElapsedTime),
			paceFromSpeed(s.AvgSpeed),
			optional(p, "%.0f", s.AvgHeartrate),
			optional(p, "%.0f m", s.AvgElevationGain),
			optional(p, "%.1f°C", s.AvgTemperature),
			optional(p, "%.1f", s.AvgAQI),
		)
	}
	return tw.Flush()
}

func optional(p *message.Printer, format string, v *float64) string {
	if v == nil {
		return "-"
	}
	return p.Sprintf(format, *v)
}

func optionalDuration(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return formatClock(int(*seconds + 0.5))
}

// paceFromSpeed converts meters per second into minutes per kilometer.
func paceFromSpeed(speed *float64) string {
	if speed == nil || *speed <= 0 {
		return "-"
	}
	return formatClock(int(1000/(*speed)+0.5)) + "/km"
}

// formatClock renders seconds as h:mm:ss, or m:ss under an hour.
func formatClock(total int) string {
	h, m, s := total/3600, total%3600/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func init() {
	statsCmd.Flags().StringVar(&statsPeriod, "period", "", `Single period, e.g. "Last 30 Days" (default: every period)`)
	rootCmd.AddCommand(statsCmd)
}
