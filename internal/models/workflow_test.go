package models

import (
	"strings"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	def := WorkflowDefinition{
		Name: "wf",
		Steps: []StepSpec{
			{Title: "plain", Prompt: "a"},
			{Title: "loop", Prompt: "b", UseInnerLoop: true},
			{Title: "verified", Prompt: "c", VerifyPrompt: "check it"},
			{Title: "explicit", Prompt: "d", CompletionPromise: "CUSTOM", MaxIterations: 2},
		},
	}
	def.Normalize()

	if def.Steps[0].CompletionPromise != DefaultCompletionPromise {
		t.Fatalf("expected default promise, got %q", def.Steps[0].CompletionPromise)
	}
	if def.Steps[0].MaxIterations != DefaultMaxIterations {
		t.Fatalf("expected default iterations, got %d", def.Steps[0].MaxIterations)
	}
	if def.Steps[1].MaxIterations != DefaultInnerIterations {
		t.Fatalf("expected inner-loop iterations, got %d", def.Steps[1].MaxIterations)
	}
	if def.Steps[2].VerifyPromise != DefaultVerifyPromise {
		t.Fatalf("expected default verify promise, got %q", def.Steps[2].VerifyPromise)
	}
	if def.Steps[3].CompletionPromise != "CUSTOM" || def.Steps[3].MaxIterations != 2 {
		t.Fatalf("explicit values overridden: %+v", def.Steps[3])
	}
}

func TestDefinitionValidate(t *testing.T) {
	def := WorkflowDefinition{}
	if err := def.Validate(); err == nil {
		t.Fatalf("expected empty definition to fail validation")
	}

	def = WorkflowDefinition{
		Name:  "wf",
		Steps: []StepSpec{{Title: "no prompt"}},
	}
	err := def.Validate()
	if err == nil {
		t.Fatalf("expected missing prompt to fail validation")
	}
	if !strings.Contains(err.Error(), "prompt") {
		t.Fatalf("expected prompt mentioned, got %v", err)
	}
}

func TestRunValidateRejectsAutoRuntime(t *testing.T) {
	run := &Run{
		Definition: WorkflowDefinition{Steps: []StepSpec{{Prompt: "x", MaxIterations: 1}}},
		Context:    ExecutionContext{Workspace: "/w", Runtime: "auto"},
		MaxRetries: 1,
	}
	if err := run.Validate(); err == nil {
		t.Fatalf("expected auto runtime to be rejected")
	}

	run.Context.Runtime = "claude"
	if err := run.Validate(); err != nil {
		t.Fatalf("expected valid run, got %v", err)
	}
}

func TestRunResultLookup(t *testing.T) {
	run := &Run{
		StepResults: []StepResult{
			{StepIdx: 1, Status: StepStatusCompleted},
			{StepIdx: 3, Status: StepStatusSkipped},
		},
	}
	if run.Result(1) == nil || run.Result(3) == nil {
		t.Fatalf("expected lookups to succeed")
	}
	if run.Result(2) != nil {
		t.Fatalf("expected nil for absent index")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	terminal := map[RunStatus]bool{
		RunStatusQueued:    false,
		RunStatusRunning:   false,
		RunStatusPaused:    false,
		RunStatusSucceeded: true,
		RunStatusFailed:    true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Fatalf("Terminal(%s) = %v, want %v", status, status.Terminal(), want)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	verification := &VerificationError{Expected: "PASS"}
	if verification.Error() != "Verification failed: expected PASS" {
		t.Fatalf("unexpected verification message %q", verification.Error())
	}

	cfg := &ConfigurationError{Missing: "claude binary", Remedy: "install it"}
	if !strings.Contains(cfg.Error(), "claude binary") || !strings.Contains(cfg.Error(), "install it") {
		t.Fatalf("unexpected configuration message %q", cfg.Error())
	}

	step := &StepFailedError{StepIdx: 2, Title: "build", Retries: 3, LastError: "boom"}
	msg := step.Error()
	if !strings.Contains(msg, "step 2") || !strings.Contains(msg, "3 retries") || !strings.Contains(msg, "boom") {
		t.Fatalf("unexpected step failure message %q", msg)
	}
}
