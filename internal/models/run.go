package models

import (
	"errors"
	"time"
)

// RunStatus represents the overall status of a workflow run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPaused    RunStatus = "paused"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// StepResultStatus represents the outcome of a single step.
type StepResultStatus string

const (
	StepStatusCompleted StepResultStatus = "completed"
	StepStatusFailed    StepResultStatus = "failed"
	StepStatusSkipped   StepResultStatus = "skipped"
)

// StepResult records the outcome of one step. A run holds at most one
// result per step index; later results replace earlier ones.
type StepResult struct {
	StepIdx         int              `json:"step_idx"`
	Title           string           `json:"title"`
	Status          StepResultStatus `json:"status"`
	Retries         int              `json:"retries"`
	RalphIterations int              `json:"ralph_iterations,omitempty"`
	Error           string           `json:"error,omitempty"`
	RawResultRef    string           `json:"raw_result_ref,omitempty"`
}

// Run is one execution attempt of a workflow definition.
type Run struct {
	ID          string             `json:"id"`
	Status      RunStatus          `json:"status"`
	Definition  WorkflowDefinition `json:"definition"`
	Context     ExecutionContext   `json:"context"`
	CurrentStep int                `json:"current_step"`
	StartFrom   int                `json:"start_from"`
	RetryCount  int                `json:"retry_count"`
	MaxRetries  int                `json:"max_retries"`
	PID         *int               `json:"pid,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	StepResults []StepResult       `json:"step_results,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Result returns the recorded result for a step index, if any.
func (r *Run) Result(stepIdx int) *StepResult {
	for i := range r.StepResults {
		if r.StepResults[i].StepIdx == stepIdx {
			return &r.StepResults[i]
		}
	}
	return nil
}

// Validate checks if the run is valid.
func (r *Run) Validate() error {
	validation := &ValidationErrors{}
	if len(r.Definition.Steps) == 0 {
		validation.Add("definition", ErrEmptyWorkflow)
	}
	if r.Context.Workspace == "" {
		validation.Add("context.workspace", ErrInvalidWorkspacePath)
	}
	if r.Context.Runtime == "" || r.Context.Runtime == "auto" {
		validation.Add("context.runtime", ErrUnresolvedRuntime)
	}
	if r.MaxRetries < 1 {
		validation.AddMessage("max_retries", "max_retries must be >= 1")
	}
	if validation.Err() != nil {
		return validation.Err()
	}

	switch r.Status {
	case "", RunStatusQueued, RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusPaused:
		return nil
	default:
		return errors.New("invalid run status")
	}
}

// Event is one entry in a run's ordered event stream. Seq is strictly
// increasing within a run so pollers can request a gap-free suffix.
type Event struct {
	Seq       int64          `json:"id"`
	RunID     string         `json:"run_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event types emitted by the engine.
const (
	EventRunStarted    = "run_started"
	EventRunSucceeded  = "run_succeeded"
	EventRunFailed     = "run_failed"
	EventRunPaused     = "run_paused"
	EventRunStopped    = "run_stopped"
	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepSkipped   = "step_skipped"
	EventModelInit     = "model_init"
	EventAssistantText = "assistant_text"
	EventToolStarted   = "tool_started"
	EventToolCompleted = "tool_completed"
	EventResultSummary = "result_summary"
	EventHeartbeat     = "heartbeat"
)
