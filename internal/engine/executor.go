package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmsolberg/conductor/internal/command"
	"github.com/tmsolberg/conductor/internal/config"
	"github.com/tmsolberg/conductor/internal/logging"
	"github.com/tmsolberg/conductor/internal/models"
	"github.com/tmsolberg/conductor/internal/proc"
	"github.com/tmsolberg/conductor/internal/promise"
)

// errorTailLines bounds how much process output is folded into retry
// prompts and persisted error text.
const errorTailLines = 20

// ExecuteFunc runs one agent process invocation for a step. A non-nil
// error is a configuration failure: deterministic, surfaced before any
// process starts, and never retried.
type ExecuteFunc func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error)

// Executor drives the per-step state machine: an attempt loop bounded
// by the run's retry budget, an inner convergence loop bounded by the
// step's iteration budget, and an optional verification pass.
type Executor struct {
	Port   Port
	Logger zerolog.Logger
	Exec   ExecuteFunc

	runner *proc.Runner
}

// NewExecutor creates an Executor that launches real agent processes
// using the given runtime registry and engine settings.
func NewExecutor(port Port, runtimes map[string]config.RuntimeConfig, engineCfg config.EngineConfig) *Executor {
	e := &Executor{
		Port:   port,
		Logger: logging.Component("executor"),
	}
	e.runner = proc.NewRunner(port)
	e.runner.LogBatchLines = engineCfg.LogBatchLines
	e.Exec = e.processExecute(command.NewBuilder(runtimes), e.runner)
	return e
}

// processExecute is the default ExecuteFunc: build the invocation,
// record the live process id on the run, and stream the process.
func (e *Executor) processExecute(builder *command.Builder, runner *proc.Runner) ExecuteFunc {
	return func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error) {
		opts := map[string]any{}
		if step.Model != "" {
			opts["model"] = step.Model
		}

		invocation, err := builder.Build(run.Context.Runtime, prompt, opts, run.Context.Workspace)
		if err != nil {
			return proc.Result{}, err
		}

		for key, value := range run.Context.Env {
			invocation.Env[key] = value
		}

		result := runner.Run(ctx, proc.Request{
			RunID:           run.ID,
			Binary:          invocation.Binary,
			Args:            invocation.Args,
			Env:             invocation.Env,
			Workspace:       run.Context.Workspace,
			Timeout:         time.Duration(run.Context.TimeoutSeconds) * time.Second,
			NoOutputTimeout: time.Duration(run.Context.NoOutputSeconds) * time.Second,
			OnStart: func(pid int) {
				// The recorded pid is the run's only cancellation handle.
				value := pid
				run.PID = &value
				_ = e.Port.SaveRun(ctx, run)
			},
		})
		return result, nil
	}
}

// ExecuteStep runs one step to a final result. On success the returned
// error is nil; on a configuration failure or an exhausted retry
// budget the failed result has already been persisted and the error is
// terminal for the run.
func (e *Executor) ExecuteStep(ctx context.Context, run *models.Run, stepIdx int) (*models.StepResult, error) {
	step := run.Definition.Steps[stepIdx-1]

	var lastErr string
	for attempt := 0; attempt < run.MaxRetries; attempt++ {
		run.RetryCount = attempt
		if err := e.Port.SaveRun(ctx, run); err != nil {
			return nil, err
		}

		iterations, output, err := e.attempt(ctx, run, step, lastErr)
		if err == nil {
			result := &models.StepResult{
				StepIdx: stepIdx,
				Title:   step.Title,
				Status:  models.StepStatusCompleted,
				Retries: attempt,
			}
			if step.UseInnerLoop {
				result.RalphIterations = iterations
			}
			if seq, evErr := e.Port.AppendEvent(ctx, run.ID, models.EventResultSummary, map[string]any{
				"step_idx": stepIdx,
				"text":     outputTail(output, errorTailLines),
			}); evErr == nil {
				result.RawResultRef = fmt.Sprintf("event:%d", seq)
			}
			if err := e.Port.UpsertStepResult(ctx, run.ID, result); err != nil {
				return nil, err
			}
			e.logf(ctx, run.ID, "step %d (%s) completed after %d retries", stepIdx, step.Title, attempt)
			return result, nil
		}

		var cfgErr *models.ConfigurationError
		if errors.As(err, &cfgErr) {
			// Deterministic failure; retrying cannot fix it.
			result := &models.StepResult{
				StepIdx: stepIdx,
				Title:   step.Title,
				Status:  models.StepStatusFailed,
				Retries: attempt,
				Error:   cfgErr.Error(),
			}
			if upsertErr := e.Port.UpsertStepResult(ctx, run.ID, result); upsertErr != nil {
				return nil, upsertErr
			}
			return result, cfgErr
		}

		lastErr = err.Error()
		e.Logger.Warn().
			Str("run_id", run.ID).
			Int("step", stepIdx).
			Int("attempt", attempt+1).
			Str("error", lastErr).
			Msg("step attempt failed")
		e.logf(ctx, run.ID, "step %d attempt %d/%d failed: %s", stepIdx, attempt+1, run.MaxRetries, lastErr)
	}

	result := &models.StepResult{
		StepIdx: stepIdx,
		Title:   step.Title,
		Status:  models.StepStatusFailed,
		Retries: run.MaxRetries,
		Error:   lastErr,
	}
	if err := e.Port.UpsertStepResult(ctx, run.ID, result); err != nil {
		return nil, err
	}

	return result, &models.StepFailedError{
		StepIdx:   stepIdx,
		Title:     step.Title,
		Retries:   run.MaxRetries,
		LastError: lastErr,
	}
}

// attempt runs the inner convergence loop and the verification pass
// once. A nil error means the attempt succeeded; the returned output
// is the final main-pass output.
func (e *Executor) attempt(ctx context.Context, run *models.Run, step models.StepSpec, previousError string) (int, string, error) {
	maxIterations := step.MaxIterations
	if !step.UseInnerLoop {
		maxIterations = 1
	}

	prompt := buildInitialPrompt(run.Context.ContextText, step.Prompt, previousError)
	converged := false
	iterations := 0
	var output string

	for i := 1; i <= maxIterations; i++ {
		iterations = i

		result, err := e.Exec(ctx, run, step, prompt)
		if err != nil {
			return iterations, output, err
		}
		if !result.Success {
			// A crashed process is not worth iterating on.
			return iterations, output, &models.ProcessError{
				ExitCode: result.ExitCode,
				Detail:   outputTail(result.Output, errorTailLines),
			}
		}

		output = result.Output
		if promise.Detect(output, step.CompletionPromise) {
			converged = true
			break
		}
		if i < maxIterations {
			prompt = buildContinuationPrompt(run.Context.ContextText, step, output)
		}
	}

	if step.UseInnerLoop && !converged {
		return iterations, output, fmt.Errorf("no completion marker %q after %d iterations",
			step.CompletionPromise, iterations)
	}

	if step.VerifyPrompt != "" {
		result, err := e.Exec(ctx, run, step, buildVerifyPrompt(run.Context.ContextText, step))
		if err != nil {
			return iterations, output, err
		}
		if !result.Success {
			return iterations, output, &models.ProcessError{
				ExitCode: result.ExitCode,
				Detail:   outputTail(result.Output, errorTailLines),
			}
		}
		if !promise.Detect(result.Output, step.VerifyPromise) {
			return iterations, output, &models.VerificationError{Expected: step.VerifyPromise}
		}
	}

	return iterations, output, nil
}

func (e *Executor) logf(ctx context.Context, runID, format string, args ...any) {
	stamp := time.Now().UTC().Format(time.RFC3339)
	_ = e.Port.AppendLog(ctx, runID, "["+stamp+"] "+fmt.Sprintf(format, args...)+"\n")
}
