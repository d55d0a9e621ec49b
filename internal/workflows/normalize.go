package workflows

import "github.com/tmsolberg/conductor/internal/models"

// Normalize fills in defaulted fields in place.
func Normalize(wf *Workflow) {
	if wf == nil {
		return
	}
	if wf.MaxRetries < 1 {
		wf.MaxRetries = models.DefaultMaxRetries
	}
	if wf.Runtime == "" {
		wf.Runtime = "auto"
	}
	for i := range wf.Steps {
		step := &wf.Steps[i]
		if step.CompletionPromise == "" {
			step.CompletionPromise = models.DefaultCompletionPromise
		}
		if step.MaxIterations < 1 {
			if step.UseInnerLoop {
				step.MaxIterations = models.DefaultInnerIterations
			} else {
				step.MaxIterations = models.DefaultMaxIterations
			}
		}
		if step.VerifyPrompt != "" && step.VerifyPromise == "" {
			step.VerifyPromise = models.DefaultVerifyPromise
		}
	}
}
