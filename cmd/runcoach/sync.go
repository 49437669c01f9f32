package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"runcoach/internal/types"
)

var syncRange string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull new runs from Strava, enrich and store them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, true, func(b *backend) error {
			res := b.syncer.Sync(cmd.Context(), syncRange)
			printSyncResult(cmd.OutOrStdout(), res)
			if !res.Success {
				return fmt.Errorf("sync did not complete: %s", res.State)
			}
			return nil
		})
	},
}

func printSyncResult(w io.Writer, res types.SyncResult) {
	fmt.Fprintln(w, res.Message)
	if res.State == types.SyncStateIdle {
		return
	}
	fmt.Fprintf(w, "processed %d, failed %d\n", res.Processed, res.Failed)
	fmt.Fprintf(w, "skipped: %d not runs, %d already stored, %d empty\n",
		res.SkippedType, res.SkippedExisting, res.SkippedEmpty)
	if res.StreamError != "" {
		fmt.Fprintf(w, "listing stopped early: %s\n", res.StreamError)
	}
	if d := res.Duration(); d > 0 {
		fmt.Fprintf(w, "took %s\n", d.Round(time.Millisecond))
	}
}

func init() {
	syncCmd.Flags().StringVar(&syncRange, "range", "", `Time range, e.g. "Last 30 Days" or "Since Last Sync" (default from SYNC_DEFAULT_RANGE)`)
	rootCmd.AddCommand(syncCmd)
}
