package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmsolberg/conductor/internal/logging"
	"github.com/tmsolberg/conductor/internal/models"
)

var (
	// ErrRunActive is returned when a control operation requires the
	// run to be failed or paused but it is still queued or running.
	ErrRunActive = errors.New("run is still active")

	// ErrRunFinished is returned when a control operation targets a
	// run that already reached a terminal status.
	ErrRunFinished = errors.New("run already finished")
)

// Controller sequences runs end to end and exposes the control
// surface: launch, resume, retry, skip, stop. All state lives in the
// Port; the controller itself is stateless and safe to recreate.
type Controller struct {
	Port     Port
	Executor *Executor
	Logger   zerolog.Logger
}

// NewController creates a Controller around an executor.
func NewController(port Port, executor *Executor) *Controller {
	return &Controller{
		Port:     port,
		Executor: executor,
		Logger:   logging.Component("controller"),
	}
}

// CreateRun validates and persists a new queued run for the given
// definition and execution context.
func (c *Controller) CreateRun(ctx context.Context, definition models.WorkflowDefinition, execCtx models.ExecutionContext, maxRetries int) (*models.Run, error) {
	if maxRetries < 1 {
		maxRetries = models.DefaultMaxRetries
	}

	run := &models.Run{
		Status:     models.RunStatusQueued,
		Definition: definition,
		Context:    execCtx,
		StartFrom:  1,
		MaxRetries: maxRetries,
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}
	if err := c.Port.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Execute runs the workflow from the run's start_from step to
// completion, failure, or cancellation. It is the synchronous core;
// Launch wraps it in a goroutine.
func (c *Controller) Execute(ctx context.Context, run *models.Run) error {
	// StartFrom == len(steps)+1 is valid: every step is already
	// accounted for and the run settles as succeeded immediately.
	if run.StartFrom < 1 || run.StartFrom > len(run.Definition.Steps)+1 {
		return fmt.Errorf("start step %d out of range: workflow has %d steps",
			run.StartFrom, len(run.Definition.Steps))
	}

	run.Status = models.RunStatusRunning
	run.LastError = ""
	if err := c.Port.SaveRun(ctx, run); err != nil {
		return err
	}
	c.emit(ctx, run.ID, models.EventRunStarted, map[string]any{
		"workflow":   run.Definition.Name,
		"start_from": run.StartFrom,
	})
	c.logf(ctx, run.ID, "run started: workflow %q, %d steps, starting at step %d",
		run.Definition.Name, len(run.Definition.Steps), run.StartFrom)

	total := len(run.Definition.Steps)
	for stepIdx := run.StartFrom; stepIdx <= total; stepIdx++ {
		step := run.Definition.Steps[stepIdx-1]

		run.CurrentStep = stepIdx
		run.RetryCount = 0
		if err := c.Port.SaveRun(ctx, run); err != nil {
			return err
		}
		c.emit(ctx, run.ID, models.EventStepStarted, map[string]any{
			"step_idx": stepIdx,
			"title":    step.Title,
		})
		c.logf(ctx, run.ID, "step %d/%d started: %s", stepIdx, total, step.Title)

		result, err := c.Executor.ExecuteStep(ctx, run, stepIdx)
		if ctx.Err() != nil {
			// Cancellation pauses the run so it can resume at the
			// interrupted step.
			return c.pause(run, stepIdx)
		}
		if err != nil {
			return c.fail(ctx, run, stepIdx, err)
		}

		run.PID = nil
		run.StartFrom = stepIdx + 1
		if saveErr := c.Port.SaveRun(ctx, run); saveErr != nil {
			return saveErr
		}
		c.emit(ctx, run.ID, models.EventStepCompleted, map[string]any{
			"step_idx":   stepIdx,
			"title":      step.Title,
			"retries":    result.Retries,
			"iterations": result.RalphIterations,
		})
	}

	run.Status = models.RunStatusSucceeded
	run.PID = nil
	if err := c.Port.SaveRun(ctx, run); err != nil {
		return err
	}
	c.emit(ctx, run.ID, models.EventRunSucceeded, nil)
	c.logf(ctx, run.ID, "run succeeded: %d steps completed", total)
	return nil
}

// Launch starts Execute in its own goroutine. Errors are already
// recorded on the run; the returned channel closes when the run
// settles.
func (c *Controller) Launch(ctx context.Context, run *models.Run) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Execute(ctx, run); err != nil {
			c.Logger.Error().
				Str("run_id", run.ID).
				Err(err).
				Msg("run finished with error")
		}
	}()
	return done
}

// Resume restarts a failed or paused run. With fromStep == 0 the run
// resumes at the step it stopped on; a positive fromStep overrides the
// resume point. Results of untouched steps are preserved.
func (c *Controller) Resume(ctx context.Context, runID string, fromStep int) (*models.Run, error) {
	run, err := c.resumable(ctx, runID)
	if err != nil {
		return nil, err
	}

	if fromStep > 0 {
		if fromStep > len(run.Definition.Steps) {
			return nil, fmt.Errorf("step %d out of range: workflow has %d steps",
				fromStep, len(run.Definition.Steps))
		}
		run.StartFrom = fromStep
	} else if run.CurrentStep > 0 {
		run.StartFrom = run.CurrentStep
	}

	run.RetryCount = 0
	run.LastError = ""
	if err := c.Port.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	c.logf(ctx, run.ID, "resuming from step %d", run.StartFrom)
	return run, nil
}

// RetryCurrentStep resets the retry budget and resumes at the step the
// run stopped on.
func (c *Controller) RetryCurrentStep(ctx context.Context, runID string) (*models.Run, error) {
	return c.Resume(ctx, runID, 0)
}

// SkipStep records a skipped result for the given step and positions
// the run to continue at the step after it. A prior result for the
// step is replaced.
func (c *Controller) SkipStep(ctx context.Context, runID string, stepIdx int) (*models.Run, error) {
	run, err := c.resumable(ctx, runID)
	if err != nil {
		return nil, err
	}
	if stepIdx < 1 || stepIdx > len(run.Definition.Steps) {
		return nil, fmt.Errorf("step %d out of range: workflow has %d steps",
			stepIdx, len(run.Definition.Steps))
	}

	step := run.Definition.Steps[stepIdx-1]
	if err := c.Port.UpsertStepResult(ctx, runID, &models.StepResult{
		StepIdx: stepIdx,
		Title:   step.Title,
		Status:  models.StepStatusSkipped,
	}); err != nil {
		return nil, err
	}

	run.StartFrom = stepIdx + 1
	run.CurrentStep = stepIdx
	run.RetryCount = 0
	run.LastError = ""
	if err := c.Port.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	c.emit(ctx, run.ID, models.EventStepSkipped, map[string]any{
		"step_idx": stepIdx,
		"title":    step.Title,
	})
	c.logf(ctx, run.ID, "step %d (%s) skipped", stepIdx, step.Title)
	return run, nil
}

// Stop kills the run's live agent process, if any, and marks the run
// failed. Stopping an already terminal run is an error.
func (c *Controller) Stop(ctx context.Context, runID string) error {
	run, err := c.Port.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return ErrRunFinished
	}

	if run.PID != nil {
		if proc, findErr := os.FindProcess(*run.PID); findErr == nil {
			// Best effort: the process may already be gone.
			if killErr := proc.Kill(); killErr != nil {
				c.Logger.Debug().
					Str("run_id", runID).
					Int("pid", *run.PID).
					Err(killErr).
					Msg("kill failed")
			}
		}
	}

	run.Status = models.RunStatusFailed
	run.PID = nil
	run.LastError = "stopped by caller"
	if err := c.Port.SaveRun(ctx, run); err != nil {
		return err
	}
	c.emit(ctx, run.ID, models.EventRunStopped, map[string]any{
		"step_idx": run.CurrentStep,
	})
	c.logf(ctx, run.ID, "run stopped by caller at step %d", run.CurrentStep)
	return nil
}

// resumable loads a run and checks that it is in a state the control
// operations accept: failed or paused, never queued, running, or
// succeeded.
func (c *Controller) resumable(ctx context.Context, runID string) (*models.Run, error) {
	run, err := c.Port.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case models.RunStatusFailed, models.RunStatusPaused:
		return run, nil
	case models.RunStatusSucceeded:
		return nil, ErrRunFinished
	default:
		return nil, ErrRunActive
	}
}

func (c *Controller) pause(run *models.Run, stepIdx int) error {
	// The caller's context is gone; persistence uses a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run.Status = models.RunStatusPaused
	run.CurrentStep = stepIdx
	run.PID = nil
	if err := c.Port.SaveRun(ctx, run); err != nil {
		return err
	}
	c.emit(ctx, run.ID, models.EventRunPaused, map[string]any{
		"step_idx": stepIdx,
	})
	c.logf(ctx, run.ID, "run paused at step %d", stepIdx)
	return nil
}

func (c *Controller) fail(ctx context.Context, run *models.Run, stepIdx int, cause error) error {
	run.Status = models.RunStatusFailed
	run.CurrentStep = stepIdx
	run.PID = nil
	run.LastError = cause.Error()
	if err := c.Port.SaveRun(ctx, run); err != nil {
		return err
	}
	c.emit(ctx, run.ID, models.EventRunFailed, map[string]any{
		"step_idx": stepIdx,
		"error":    cause.Error(),
	})
	c.logf(ctx, run.ID, "run failed at step %d: %s", stepIdx, cause.Error())
	return cause
}

func (c *Controller) emit(ctx context.Context, runID, eventType string, payload map[string]any) {
	if _, err := c.Port.AppendEvent(ctx, runID, eventType, payload); err != nil {
		c.Logger.Warn().
			Str("run_id", runID).
			Str("event", eventType).
			Err(err).
			Msg("append event failed")
	}
}

func (c *Controller) logf(ctx context.Context, runID, format string, args ...any) {
	stamp := time.Now().UTC().Format(time.RFC3339)
	_ = c.Port.AppendLog(ctx, runID, "["+stamp+"] "+fmt.Sprintf(format, args...)+"\n")
}
