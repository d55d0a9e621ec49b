package workflows

import "strings"

// Validate checks a workflow file model for structural errors. Callers
// should normalize first so defaulted fields are populated.
func Validate(wf *Workflow) error {
	list := &ErrorList{}

	if wf == nil {
		list.Add(WorkflowError{Code: ErrCodeMissingField, Message: "workflow is empty"})
		return list
	}

	if strings.TrimSpace(wf.Name) == "" {
		list.Add(WorkflowError{
			Code:    ErrCodeMissingField,
			Message: "name is required",
			Path:    wf.Source,
			Field:   "name",
		})
	}

	if len(wf.Steps) == 0 {
		list.Add(WorkflowError{
			Code:    ErrCodeMissingField,
			Message: "at least one step is required",
			Path:    wf.Source,
			Field:   "steps",
		})
	}

	for i, step := range wf.Steps {
		index := i + 1
		if strings.TrimSpace(step.Prompt) == "" {
			list.Add(WorkflowError{
				Code:    ErrCodeMissingField,
				Message: "prompt is required",
				Path:    wf.Source,
				Field:   "prompt",
				Index:   index,
			})
		}
		if step.MaxIterations < 1 {
			list.Add(WorkflowError{
				Code:    ErrCodeInvalidField,
				Message: "max_iterations must be >= 1",
				Path:    wf.Source,
				Field:   "max_iterations",
				Index:   index,
			})
		}
		if step.VerifyPrompt == "" && step.VerifyPromise != "" {
			list.Add(WorkflowError{
				Code:    ErrCodeInvalidField,
				Message: "verify_promise requires verify_prompt",
				Path:    wf.Source,
				Field:   "verify_promise",
				Index:   index,
			})
		}
	}

	if list.Empty() {
		return nil
	}
	return list
}
