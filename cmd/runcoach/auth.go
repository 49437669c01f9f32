package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with Strava and store the tokens",
	Long: "auth refreshes the stored Strava token, falling back to the browser authorization flow " +
		"when no refresh token is available. The resulting tokens are persisted for later syncs.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, true, func(b *backend) error {
			if err := b.auth.Authenticate(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if tok := b.auth.Token(); tok != nil && !tok.Expiry.IsZero() {
				fmt.Fprintf(out, "Authenticated with Strava; access token valid until %s\n",
					tok.Expiry.Local().Format(time.RFC1123))
				return nil
			}
			fmt.Fprintln(out, "Authenticated with Strava")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
