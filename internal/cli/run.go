// Package cli provides the run command.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tmsolberg/conductor/internal/command"
	"github.com/tmsolberg/conductor/internal/engine"
	"github.com/tmsolberg/conductor/internal/models"
	"github.com/tmsolberg/conductor/internal/workflows"
)

var (
	runWorkspace       string
	runRuntime         string
	runMaxRetries      int
	runTimeout         int
	runNoOutputTimeout int
	runEnv             []string
	runFrom            int
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runWorkspace, "workspace", "w", ".", "workspace directory the agent operates in")
	runCmd.Flags().StringVarP(&runRuntime, "runtime", "r", "", "agent runtime (claude, codex, opencode, auto)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "per-step retry budget (default from config)")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "wall-clock seconds per agent process (default from config)")
	runCmd.Flags().IntVar(&runNoOutputTimeout, "no-output-timeout", 0, "seconds to wait for first output (default from config)")
	runCmd.Flags().StringArrayVarP(&runEnv, "env", "e", nil, "extra environment variables (KEY=VALUE, repeatable)")
	runCmd.Flags().IntVar(&runFrom, "from", 1, "step index to start from")
}

var runCmd = &cobra.Command{
	Use:   "run <workflow.toml>",
	Short: "Execute a workflow",
	Long: `Execute a workflow file step by step. The command blocks until the
run succeeds, fails, or is interrupted. Interrupting (Ctrl-C) pauses
the run; it can be resumed later with 'conductor resume'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := workflows.Load(args[0])
		if err != nil {
			return err
		}

		if runFrom < 1 || runFrom > len(wf.Steps) {
			return fmt.Errorf("--from %d out of range: workflow has %d steps", runFrom, len(wf.Steps))
		}

		execCtx, err := buildExecutionContext(wf)
		if err != nil {
			return err
		}

		maxRetries := runMaxRetries
		if maxRetries < 1 {
			maxRetries = wf.MaxRetries
		}
		if maxRetries < 1 {
			maxRetries = appConfig.Engine.MaxRetries
		}

		store, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		executor := engine.NewExecutor(store, appConfig.Runtimes, appConfig.Engine)
		controller := engine.NewController(store, executor)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		run, err := controller.CreateRun(ctx, wf.Definition(), execCtx, maxRetries)
		if err != nil {
			return err
		}
		run.StartFrom = runFrom

		fmt.Fprintf(os.Stdout, "run %s: %s (%d steps)\n", run.ID, run.Definition.Name, len(run.Definition.Steps))

		if err := controller.Execute(ctx, run); err != nil {
			return err
		}
		return printRunOutcome(run)
	},
}

// buildExecutionContext resolves the runtime and assembles the frozen
// execution context for a new run.
func buildExecutionContext(wf *workflows.Workflow) (models.ExecutionContext, error) {
	workspace, err := filepath.Abs(runWorkspace)
	if err != nil {
		return models.ExecutionContext{}, fmt.Errorf("invalid workspace path: %w", err)
	}
	info, err := os.Stat(workspace)
	if err != nil || !info.IsDir() {
		return models.ExecutionContext{}, &models.ConfigurationError{
			Missing: fmt.Sprintf("workspace directory %s", workspace),
			Remedy:  "pass an existing directory with --workspace",
		}
	}

	runtime := runRuntime
	if runtime == "" {
		runtime = wf.Runtime
	}
	if runtime == "" {
		runtime = command.AutoRuntime
	}
	resolved, err := command.ResolveRuntime(runtime, appConfig.Runtimes)
	if err != nil {
		return models.ExecutionContext{}, err
	}

	env, err := parseEnvPairs(runEnv)
	if err != nil {
		return models.ExecutionContext{}, err
	}

	timeout := runTimeout
	if timeout <= 0 {
		timeout = appConfig.Engine.ProcessTimeoutSeconds
	}
	noOutput := runNoOutputTimeout
	if noOutput <= 0 {
		noOutput = appConfig.Engine.NoOutputTimeoutSeconds
	}

	return models.ExecutionContext{
		Workspace:       workspace,
		Runtime:         resolved,
		Env:             env,
		ContextText:     wf.Context,
		TimeoutSeconds:  timeout,
		NoOutputSeconds: noOutput,
	}, nil
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env value %q: expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}

func printRunOutcome(run *models.Run) error {
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(os.Stdout, run)
	}

	switch run.Status {
	case models.RunStatusSucceeded:
		fmt.Fprintf(os.Stdout, "run %s succeeded\n", run.ID)
	case models.RunStatusPaused:
		fmt.Fprintf(os.Stdout, "run %s paused at step %d; resume with 'conductor resume %s'\n",
			run.ID, run.CurrentStep, run.ID)
	default:
		fmt.Fprintf(os.Stdout, "run %s %s\n", run.ID, run.Status)
	}
	return nil
}
