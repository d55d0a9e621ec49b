package models

// Default step settings applied during normalization.
const (
	DefaultCompletionPromise = "STEP_DONE"
	DefaultVerifyPromise     = "PASS"
	DefaultMaxIterations     = 5
	DefaultInnerIterations   = 10
	DefaultMaxRetries        = 3
)

// StepSpec describes a single unit of work within a workflow. Steps are
// referenced by 1-based index; index order is the only execution order.
type StepSpec struct {
	Title             string `json:"title"`
	Prompt            string `json:"prompt"`
	CompletionPromise string `json:"completion_promise"`
	MaxIterations     int    `json:"max_iterations"`
	VerifyPrompt      string `json:"verify_prompt,omitempty"`
	VerifyPromise     string `json:"verify_promise,omitempty"`
	Model             string `json:"model,omitempty"`
	UseInnerLoop      bool   `json:"use_inner_loop"`
}

// WorkflowDefinition is an ordered list of steps. It is immutable once a
// run has started.
type WorkflowDefinition struct {
	Name  string     `json:"name"`
	Steps []StepSpec `json:"steps"`
}

// Normalize fills in defaulted step fields in place.
func (d *WorkflowDefinition) Normalize() {
	for i := range d.Steps {
		step := &d.Steps[i]
		if step.CompletionPromise == "" {
			step.CompletionPromise = DefaultCompletionPromise
		}
		if step.MaxIterations < 1 {
			if step.UseInnerLoop {
				step.MaxIterations = DefaultInnerIterations
			} else {
				step.MaxIterations = DefaultMaxIterations
			}
		}
		if step.VerifyPrompt != "" && step.VerifyPromise == "" {
			step.VerifyPromise = DefaultVerifyPromise
		}
	}
}

// Validate checks if the definition is valid.
func (d *WorkflowDefinition) Validate() error {
	validation := &ValidationErrors{}
	if d.Name == "" {
		validation.Add("name", ErrInvalidWorkflowName)
	}
	if len(d.Steps) == 0 {
		validation.Add("steps", ErrEmptyWorkflow)
	}
	for i, step := range d.Steps {
		if step.Prompt == "" {
			validation.AddMessagef("steps[%d].prompt", "step %d requires a prompt", i+1)
		}
		if step.MaxIterations < 1 {
			validation.AddMessagef("steps[%d].max_iterations", "step %d max_iterations must be >= 1", i+1)
		}
	}
	return validation.Err()
}

// ExecutionContext carries per-run execution settings. It is read-only
// after construction; the runtime identifier is always concrete here,
// never the "auto" sentinel.
type ExecutionContext struct {
	Workspace       string            `json:"workspace"`
	Runtime         string            `json:"runtime"`
	Env             map[string]string `json:"env,omitempty"`
	ContextText     string            `json:"context_text,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds"`
	NoOutputSeconds int               `json:"no_output_seconds"`
}
