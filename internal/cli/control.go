// Package cli provides run control commands: resume, retry, skip, stop.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tmsolberg/conductor/internal/engine"
	"github.com/tmsolberg/conductor/internal/models"
)

var (
	resumeFrom int
	skipStep   int
)

func init() {
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(stopCmd)

	resumeCmd.Flags().IntVar(&resumeFrom, "from", 0, "step index to resume from (default: the step the run stopped on)")
	skipCmd.Flags().IntVar(&skipStep, "step", 0, "step index to skip (default: the step the run stopped on)")
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a failed or paused run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resumeRun(args[0], func(ctx context.Context, controller *engine.Controller) (*models.Run, error) {
			return controller.Resume(ctx, args[0], resumeFrom)
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <run-id>",
	Short: "Retry the step a failed or paused run stopped on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resumeRun(args[0], func(ctx context.Context, controller *engine.Controller) (*models.Run, error) {
			return controller.RetryCurrentStep(ctx, args[0])
		})
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip <run-id>",
	Short: "Skip a step of a failed or paused run and continue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resumeRun(args[0], func(ctx context.Context, controller *engine.Controller) (*models.Run, error) {
			stepIdx := skipStep
			if stepIdx == 0 {
				run, err := controller.Port.GetRun(ctx, args[0])
				if err != nil {
					return nil, err
				}
				stepIdx = run.CurrentStep
			}
			return controller.SkipStep(ctx, args[0], stepIdx)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Stop a run and kill its agent process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		executor := engine.NewExecutor(store, appConfig.Runtimes, appConfig.Engine)
		controller := engine.NewController(store, executor)

		if err := controller.Stop(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "run %s stopped\n", args[0])
		return nil
	},
}

// resumeRun applies a control operation that repositions the run, then
// continues execution in the foreground.
func resumeRun(runID string, position func(context.Context, *engine.Controller) (*models.Run, error)) error {
	store, database, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	executor := engine.NewExecutor(store, appConfig.Runtimes, appConfig.Engine)
	controller := engine.NewController(store, executor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := position(ctx, controller)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "run %s: continuing at step %d/%d\n",
		run.ID, run.StartFrom, len(run.Definition.Steps))

	if err := controller.Execute(ctx, run); err != nil {
		return err
	}
	return printRunOutcome(run)
}
