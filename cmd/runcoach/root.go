package main

import (
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "runcoach",
	Short: "runcoach syncs your Strava runs and reports training stats",
	Long: "runcoach pulls running activities from Strava, enriches them with weather and air quality, " +
		"stores them in Postgres and reports per-period averages against your training goal.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a dotenv file (defaults to .env when present)")
}
