// Package cli provides structured error output helpers.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/tmsolberg/conductor/internal/db"
	"github.com/tmsolberg/conductor/internal/engine"
	"github.com/tmsolberg/conductor/internal/models"
	"github.com/tmsolberg/conductor/internal/workflows"
)

// ErrorEnvelope is the JSON/JSONL error response shape.
type ErrorEnvelope struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload carries structured error details.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ExitError carries an exit code and whether output was already printed.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func handleCLIError(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Printed {
			return exitErr
		}
		if exitErr.Err != nil {
			err = exitErr.Err
		}
	}

	exitCode := exitCodeFromError(err)
	if exitErr != nil && exitErr.Code != 0 {
		exitCode = exitErr.Code
	}

	if IsJSONOutput() || IsJSONLOutput() {
		_ = WriteOutput(os.Stdout, buildErrorEnvelope(err))
	} else {
		fmt.Fprintln(os.Stderr, err.Error())
	}

	return &ExitError{
		Code:    exitCode,
		Err:     err,
		Printed: true,
	}
}

func buildErrorEnvelope(err error) ErrorEnvelope {
	code, hint, details := classifyError(err)
	return ErrorEnvelope{
		Error: ErrorPayload{
			Code:    code,
			Message: err.Error(),
			Hint:    hint,
			Details: details,
		},
	}
}

func classifyError(err error) (code, hint string, details map[string]any) {
	var cfgErr *models.ConfigurationError
	var stepErr *models.StepFailedError
	var list *workflows.ErrorList

	switch {
	case errors.As(err, &cfgErr):
		details = map[string]any{"missing": cfgErr.Missing}
		return "ERR_CONFIGURATION", cfgErr.Remedy, details
	case errors.As(err, &stepErr):
		details = map[string]any{
			"step_idx": stepErr.StepIdx,
			"title":    stepErr.Title,
			"retries":  stepErr.Retries,
		}
		return "ERR_STEP_FAILED", "inspect logs, then resume, retry, or skip the step", details
	case errors.As(err, &list):
		errs := make([]map[string]any, 0, len(list.Errors))
		for _, we := range list.Errors {
			errs = append(errs, map[string]any{"code": we.Code, "field": we.Field, "message": we.Message})
		}
		return "ERR_WORKFLOW", "fix the workflow file and try again", map[string]any{"errors": errs}
	case errors.Is(err, db.ErrRunNotFound):
		return "ERR_NOT_FOUND", "check the run id with 'conductor ls'", nil
	case errors.Is(err, engine.ErrRunActive):
		return "ERR_RUN_ACTIVE", "stop the run first, or wait for it to settle", nil
	case errors.Is(err, engine.ErrRunFinished):
		return "ERR_RUN_FINISHED", "the run already reached a terminal status", nil
	default:
		return "ERR_UNKNOWN", "", nil
	}
}

func exitCodeFromError(err error) int {
	var cfgErr *models.ConfigurationError
	var stepErr *models.StepFailedError
	switch {
	case errors.As(err, &cfgErr):
		return 2
	case errors.As(err, &stepErr):
		return 3
	default:
		return 1
	}
}
