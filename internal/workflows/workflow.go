// Package workflows defines workflow file schemas and helpers.
package workflows

import "github.com/tmsolberg/conductor/internal/models"

// Workflow defines a workflow file model.
type Workflow struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Runtime     string `toml:"runtime"`
	MaxRetries  int    `toml:"max_retries"`
	Context     string `toml:"context"`
	Steps       []Step `toml:"steps"`
	Source      string `toml:"-"`
}

// Step defines a single step in a workflow file.
type Step struct {
	Title             string `toml:"title"`
	Prompt            string `toml:"prompt"`
	CompletionPromise string `toml:"completion_promise"`
	MaxIterations     int    `toml:"max_iterations"`
	VerifyPrompt      string `toml:"verify_prompt"`
	VerifyPromise     string `toml:"verify_promise"`
	Model             string `toml:"model"`
	UseInnerLoop      bool   `toml:"use_inner_loop"`
}

// Definition converts the file model into an engine definition.
func (w *Workflow) Definition() models.WorkflowDefinition {
	def := models.WorkflowDefinition{
		Name:  w.Name,
		Steps: make([]models.StepSpec, 0, len(w.Steps)),
	}
	for _, step := range w.Steps {
		def.Steps = append(def.Steps, models.StepSpec{
			Title:             step.Title,
			Prompt:            step.Prompt,
			CompletionPromise: step.CompletionPromise,
			MaxIterations:     step.MaxIterations,
			VerifyPrompt:      step.VerifyPrompt,
			VerifyPromise:     step.VerifyPromise,
			Model:             step.Model,
			UseInnerLoop:      step.UseInnerLoop,
		})
	}
	def.Normalize()
	return def
}
