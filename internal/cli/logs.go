// Package cli provides log and event stream commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	eventsAfter  int64
	eventsFollow bool
)

func init() {
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().Int64Var(&eventsAfter, "after", 0, "only show events with sequence number greater than this")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "poll for new events until the run settles")
}

var logsCmd = &cobra.Command{
	Use:   "logs <run-id>",
	Short: "Print a run's execution log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := context.Background()
		if _, err := store.GetRun(ctx, args[0]); err != nil {
			return err
		}

		text, err := store.ReadLog(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, text)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "Print a run's event stream",
	Long: `Print a run's ordered event stream. Sequence numbers are strictly
increasing per run, so --after can be used for incremental polling.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := context.Background()
		runID := args[0]
		after := eventsAfter

		for {
			run, err := store.GetRun(ctx, runID)
			if err != nil {
				return err
			}

			events, err := store.EventsAfter(ctx, runID, after)
			if err != nil {
				return err
			}
			for _, event := range events {
				if IsJSONOutput() || IsJSONLOutput() {
					if err := writeJSONLine(os.Stdout, event); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(os.Stdout, "%-6d %-24s %s\n",
						event.Seq, event.Type, event.Timestamp.Local().Format(time.TimeOnly))
				}
				after = event.Seq
			}

			if !eventsFollow || run.Status.Terminal() {
				return nil
			}
			time.Sleep(time.Second)
		}
	},
}
