// Package cli provides run inspection commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmsolberg/conductor/internal/models"
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
}

var listCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List runs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := store.ListRuns(context.Background())
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, runs)
		}

		if len(runs) == 0 {
			fmt.Println("No runs found")
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, run := range runs {
			rows = append(rows, []string{
				run.ID,
				run.Definition.Name,
				string(run.Status),
				fmt.Sprintf("%d/%d", run.CurrentStep, len(run.Definition.Steps)),
				run.CreatedAt.Local().Format(time.DateTime),
			})
		}
		return writeTable(os.Stdout, []string{"ID", "WORKFLOW", "STATUS", "STEP", "CREATED"}, rows)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show run status and step results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		run, err := store.GetRun(context.Background(), args[0])
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, run)
		}

		printRunStatus(run)
		return nil
	},
}

func printRunStatus(run *models.Run) {
	fmt.Printf("Run:       %s\n", run.ID)
	fmt.Printf("Workflow:  %s\n", run.Definition.Name)
	fmt.Printf("Status:    %s\n", run.Status)
	fmt.Printf("Runtime:   %s\n", run.Context.Runtime)
	fmt.Printf("Workspace: %s\n", run.Context.Workspace)
	fmt.Printf("Step:      %d/%d\n", run.CurrentStep, len(run.Definition.Steps))
	if run.LastError != "" {
		fmt.Printf("Error:     %s\n", run.LastError)
	}

	if len(run.StepResults) == 0 {
		return
	}

	fmt.Println()
	rows := make([][]string, 0, len(run.StepResults))
	for _, result := range run.StepResults {
		detail := result.Error
		if result.Status == models.StepStatusCompleted && result.RalphIterations > 0 {
			detail = fmt.Sprintf("%d iterations", result.RalphIterations)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", result.StepIdx),
			result.Title,
			string(result.Status),
			fmt.Sprintf("%d", result.Retries),
			detail,
		})
	}
	_ = writeTable(os.Stdout, []string{"STEP", "TITLE", "STATUS", "RETRIES", "DETAIL"}, rows)
}
