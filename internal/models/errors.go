package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors for models
var (
	// Workflow errors
	ErrInvalidWorkflowName = errors.New("workflow name is required")
	ErrEmptyWorkflow       = errors.New("workflow requires at least one step")

	// Run errors
	ErrInvalidWorkspacePath = errors.New("workspace path is required")
	ErrUnresolvedRuntime    = errors.New("runtime must be resolved before execution")
)

// ValidationErrors collects field-level validation failures.
type ValidationErrors struct {
	fields   []string
	messages []string
}

// Add records a field error.
func (v *ValidationErrors) Add(field string, err error) {
	v.fields = append(v.fields, field)
	v.messages = append(v.messages, err.Error())
}

// AddMessage records a field error from a plain message.
func (v *ValidationErrors) AddMessage(field, message string) {
	v.fields = append(v.fields, field)
	v.messages = append(v.messages, message)
}

// AddMessagef records a formatted field error.
func (v *ValidationErrors) AddMessagef(field, format string, args ...any) {
	v.AddMessage(field, fmt.Sprintf(format, args...))
}

// Err returns an error if any validation failures were recorded.
func (v *ValidationErrors) Err() error {
	if len(v.messages) == 0 {
		return nil
	}
	parts := make([]string, 0, len(v.messages))
	for i := range v.messages {
		parts = append(parts, v.fields[i]+": "+v.messages[i])
	}
	return errors.New(strings.Join(parts, "; "))
}

// ConfigurationError indicates binary or flag resolution failed. It is
// deterministic; retrying cannot fix it, so it is surfaced before any
// process starts and never enters the retry loop.
type ConfigurationError struct {
	Missing string
	Remedy  string
}

func (e *ConfigurationError) Error() string {
	if e.Remedy == "" {
		return "configuration error: " + e.Missing
	}
	return fmt.Sprintf("configuration error: %s (%s)", e.Missing, e.Remedy)
}

// ProcessError indicates a single process invocation failed: nonzero
// exit, no output within the startup window, or wall-clock timeout.
type ProcessError struct {
	ExitCode int
	Detail   string
}

func (e *ProcessError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("process exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("process exited with code %d: %s", e.ExitCode, e.Detail)
}

// VerificationError indicates a verification pass did not emit the
// expected promise marker.
type VerificationError struct {
	Expected string
}

func (e *VerificationError) Error() string {
	return "Verification failed: expected " + e.Expected
}

// StepFailedError indicates a step exhausted its retry budget. It is
// terminal for the run.
type StepFailedError struct {
	StepIdx   int
	Title     string
	Retries   int
	LastError string
}

func (e *StepFailedError) Error() string {
	msg := fmt.Sprintf("step %d (%s) failed after %d retries", e.StepIdx, e.Title, e.Retries)
	if e.LastError != "" {
		msg += ": " + e.LastError
	}
	return msg
}
