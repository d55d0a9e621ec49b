// Package cli provides the prune command.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var pruneOlderThanDays int

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneOlderThanDays, "older-than-days", 30, "remove finished runs last updated more than this many days ago")
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old finished runs and their history",
	Long: `Remove succeeded and failed runs last updated before the cutoff,
together with their step results, logs, and events. Paused and running
runs are never pruned.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		cutoff := time.Now().AddDate(0, 0, -pruneOlderThanDays)
		deleted, err := store.PruneRuns(context.Background(), cutoff)
		if err != nil {
			return err
		}

		cmd.Printf("Pruned %d run(s)\n", deleted)
		return nil
	},
}
