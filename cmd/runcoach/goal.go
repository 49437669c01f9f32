package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

const maxGoalLength = 2000

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Show or set your training goal",
}

var goalShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current training goal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, false, func(b *backend) error {
			g, err := b.goals.Latest(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if g == nil {
				fmt.Fprintln(out, "No goal set. Use `runcoach goal set <text>`.")
				return nil
			}
			fmt.Fprintf(out, "%s\n(set %s)\n", g.Narrative, g.CreatedAt.Local().Format("2006-01-02"))
			return nil
		})
	},
}

var goalSetCmd = &cobra.Command{
	Use:   "set <text>",
	Short: "Replace the training goal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		narrative := strings.TrimSpace(strings.Join(args, " "))
		if narrative == "" {
			return fmt.Errorf("goal must not be blank")
		}
		if utf8.RuneCountInString(narrative) > maxGoalLength {
			return fmt.Errorf("goal must be at most %d characters", maxGoalLength)
		}
		return withBackend(cmd, false, func(b *backend) error {
			if _, err := b.goals.Save(cmd.Context(), narrative); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Goal saved")
			return nil
		})
	},
}

func init() {
	goalCmd.AddCommand(goalShowCmd, goalSetCmd)
	rootCmd.AddCommand(goalCmd)
}
