package workflows

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tmsolberg/conductor/internal/models"
)

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test workflow: %v", err)
	}
	return path
}

const validWorkflow = `
name = "ship-feature"
description = "Plan, build, verify"
runtime = "claude"

[[steps]]
title = "plan"
prompt = "write a plan"

[[steps]]
title = "build"
prompt = "implement the plan"
use_inner_loop = true
completion_promise = "BUILD_DONE"

[[steps]]
title = "verify"
prompt = "tidy up"
verify_prompt = "run the test suite"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeWorkflow(t, validWorkflow)

	wf, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if wf.Source != path {
		t.Fatalf("expected source %q, got %q", path, wf.Source)
	}
	if wf.MaxRetries != models.DefaultMaxRetries {
		t.Fatalf("expected default max retries, got %d", wf.MaxRetries)
	}

	plan := wf.Steps[0]
	if plan.CompletionPromise != models.DefaultCompletionPromise {
		t.Fatalf("expected default completion promise, got %q", plan.CompletionPromise)
	}
	if plan.MaxIterations != models.DefaultMaxIterations {
		t.Fatalf("expected default iterations, got %d", plan.MaxIterations)
	}

	build := wf.Steps[1]
	if build.CompletionPromise != "BUILD_DONE" {
		t.Fatalf("explicit promise overridden: %q", build.CompletionPromise)
	}
	if build.MaxIterations != models.DefaultInnerIterations {
		t.Fatalf("expected inner-loop default iterations, got %d", build.MaxIterations)
	}

	verify := wf.Steps[2]
	if verify.VerifyPromise != models.DefaultVerifyPromise {
		t.Fatalf("expected default verify promise, got %q", verify.VerifyPromise)
	}
}

func TestLoadParseErrorIncludesPosition(t *testing.T) {
	path := writeWorkflow(t, "name = \"bad\"\nsteps = [\n")

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected parse error")
	}

	var list *ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("expected ErrorList, got %T", err)
	}
	if len(list.Errors) == 0 {
		t.Fatalf("expected errors")
	}

	errItem := list.Errors[0]
	if errItem.Code != ErrCodeParse {
		t.Fatalf("expected parse code, got %q", errItem.Code)
	}
	if errItem.Path != path {
		t.Fatalf("expected path %q, got %q", path, errItem.Path)
	}
	if errItem.Line == 0 {
		t.Fatalf("expected line info on parse error")
	}
}

func TestLoadValidationErrors(t *testing.T) {
	path := writeWorkflow(t, `
[[steps]]
title = "no prompt"

[[steps]]
title = "dangling promise"
prompt = "ok"
verify_promise = "PASS"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation errors")
	}

	var list *ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("expected ErrorList, got %T", err)
	}

	byField := map[string]WorkflowError{}
	for _, item := range list.Errors {
		byField[item.Field] = item
	}

	if _, ok := byField["name"]; !ok {
		t.Fatalf("expected missing name error, got %v", list.Errors)
	}
	prompt, ok := byField["prompt"]
	if !ok || prompt.Index != 1 {
		t.Fatalf("expected prompt error on step 1, got %v", list.Errors)
	}
	dangling, ok := byField["verify_promise"]
	if !ok || dangling.Code != ErrCodeInvalidField || dangling.Index != 2 {
		t.Fatalf("expected verify_promise error on step 2, got %v", list.Errors)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefinitionConversion(t *testing.T) {
	path := writeWorkflow(t, validWorkflow)

	wf, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := wf.Definition()
	if def.Name != "ship-feature" {
		t.Fatalf("expected name carried over, got %q", def.Name)
	}
	if len(def.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(def.Steps))
	}
	if !def.Steps[1].UseInnerLoop {
		t.Fatalf("expected inner loop flag carried over")
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("converted definition should validate: %v", err)
	}
}
