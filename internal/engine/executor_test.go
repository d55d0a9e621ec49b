package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tmsolberg/conductor/internal/config"
	"github.com/tmsolberg/conductor/internal/db"
	"github.com/tmsolberg/conductor/internal/models"
	"github.com/tmsolberg/conductor/internal/proc"
	"github.com/tmsolberg/conductor/internal/testutil"
)

func newTestRun(t *testing.T, store *db.Store, steps []models.StepSpec, maxRetries int) *models.Run {
	t.Helper()

	def := models.WorkflowDefinition{Name: "test-workflow", Steps: steps}
	def.Normalize()

	run := &models.Run{
		Definition: def,
		Context: models.ExecutionContext{
			Workspace: t.TempDir(),
			Runtime:   "claude",
		},
		MaxRetries: maxRetries,
	}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

func newTestExecutor(store *db.Store, exec ExecuteFunc) *Executor {
	return &Executor{
		Port:   store,
		Logger: zerolog.Nop(),
		Exec:   exec,
	}
}

func TestNewExecutorAppliesEngineSettings(t *testing.T) {
	store, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	executor := NewExecutor(store, map[string]config.RuntimeConfig{}, config.EngineConfig{LogBatchLines: 25})
	if executor.runner.LogBatchLines != 25 {
		t.Fatalf("expected log batch of 25 lines, got %d", executor.runner.LogBatchLines)
	}
	if executor.Exec == nil {
		t.Fatal("expected a default execute function")
	}
}

func TestExecuteStepSingleIterationSucceedsWithoutMarker(t *testing.T) {
	store, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	run := newTestRun(t, store, []models.StepSpec{
		{Title: "build", Prompt: "build the project"},
	}, 3)

	calls := 0
	executor := newTestExecutor(store, func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error) {
		calls++
		return proc.Result{Success: true, Output: "built fine, no marker here"}, nil
	})

	result, err := executor.ExecuteStep(context.Background(), run, 1)
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 process invocation, got %d", calls)
	}
	if result.Status != models.StepStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Retries != 0 {
		t.Fatalf("expected 0 retries, got %d", result.Retries)
	}
	if result.RalphIterations != 0 {
		t.Fatalf("expected no iteration count for single-pass step, got %d", result.RalphIterations)
	}
}

func TestExecuteStepInnerLoopConverges(t *testing.T) {
	store, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	run := newTestRun(t, store, []models.StepSpec{
		{Title: "refactor", Prompt: "refactor until clean", UseInnerLoop: true, MaxIterations: 5},
	}, 3)

	var prompts []string
	calls := 0
	executor := newTestExecutor(store, func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error) {
		calls++
		prompts = append(prompts, prompt)
		if calls < 3 {
			return proc.Result{Success: true, Output: "still working on it"}, nil
		}
		return proc.Result{Success: true, Output: "all clean <promise>STEP_DONE</promise>"}, nil
	})

	result, err := executor.ExecuteStep(context.Background(), run, 1)
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if result.Status != models.StepStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.RalphIterations != 3 {
		t.Fatalf("expected 3 iterations, got %d", result.RalphIterations)
	}
	if result.Retries != 0 {
		t.Fatalf("expected 0 retries, got %d", result.Retries)
	}

	// Continuation prompts restate the goal and feed back prior output.
	if len(prompts) != 3 {
		t.Fatalf("expected 3 prompts, got %d", len(prompts))
	}
	if !strings.Contains(prompts[1], "refactor until clean") {
		t.Fatalf("continuation prompt missing goal: %q", prompts[1])
	}
	if !strings.Contains(prompts[1], "still working on it") {
		t.Fatalf("continuation prompt missing previous output: %q", prompts[1])
	}
	if !strings.Contains(prompts[1], "<promise>STEP_DONE</promise>") {
		t.Fatalf("continuation prompt missing marker instruction: %q", prompts[1])
	}
}

func TestExecuteStepContextTextOnEveryPrompt(t *testing.T) {
	store, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	run := newTestRun(t, store, []models.StepSpec{
		{Title: "deploy", Prompt: "deploy it", UseInnerLoop: true, MaxIterations: 5,
			VerifyPrompt: "check the deployment", VerifyPromise: "PASS"},
	}, 3)
	run.Context.ContextText = "## Inventory\n\nweb-1: 10.0.0.5"

	var prompts []string
	calls := 0
	executor := newTestExecutor(store, func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error) {
		calls++
		prompts = append(prompts, prompt)
		switch calls {
		case 1:
			return proc.Result{Success: true, Output: "partway there"}, nil
		case 2:
			return proc.Result{Success: true, Output: "<promise>STEP_DONE</promise>"}, nil
		default:
			return proc.Result{Success: true, Output: "<promise>PASS</promise>"}, nil
		}
	})

	if _, err := executor.ExecuteStep(context.Background(), run, 1); err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if len(prompts) != 3 {
		t.Fatalf("expected initial + continuation + verify prompts, got %d", len(prompts))
	}
	for i, prompt := range prompts {
		if !strings.Contains(prompt, "web-1: 10.0.0.5") {
			t.Fatalf("prompt %d missing context text: %q", i+1, prompt)
		}
		if !strings.HasPrefix(prompt, "## Inventory") {
			t.Fatalf("prompt %d does not start with context text: %q", i+1, prompt)
		}
	}
	if !strings.Contains(prompts[2], "check the deployment") {
		t.Fatalf("verify prompt missing verify instruction: %q", prompts[2])
	}
}

func TestExecuteStepInnerLoopExhaustsIterations(t *testing.T) {
	store, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	run := newTestRun(t, store, []models.StepSpec{
		{Title: "converge", Prompt: "try", UseInnerLoop: true, MaxIterations: 2},
	}, 1)

	calls := 0
	executor := newTestExecutor(store, func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error) {
		calls++
		return proc.Result{Success: true, Output: "never converging"}, nil
	})

	result, err := executor.ExecuteStep(context.Background(), run, 1)
	var stepErr *models.StepFailedError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepFailedError, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 iterations, got %d", calls)
	}
	if result.Status != models.StepStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "no completion marker") {
		t.Fatalf("expected convergence failure in error, got %q", result.Error)
	}
}

func TestExecuteStepRetriesAfterVerificationFailure(t *testing.T) {
	store, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	run := newTestRun(t, store, []models.StepSpec{
		{Title: "fix tests", Prompt: "make tests pass", VerifyPrompt: "run the tests"},
	}, 3)

	var prompts []string
	verifyCalls := 0
	executor := newTestExecutor(store, func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error) {
		prompts = append(prompts, prompt)
		if strings.Contains(prompt, "run the tests") {
			verifyCalls++
			if verifyCalls == 1 {
				return proc.Result{Success: true, Output: "2 tests failing"}, nil
			}
			return proc.Result{Success: true, Output: "<promise>PASS</promise>"}, nil
		}
		return proc.Result{Success: true, Output: "changed some code"}, nil
	})

	result, err := executor.ExecuteStep(context.Background(), run, 1)
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if result.Status != models.StepStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Retries != 1 {
		t.Fatalf("expected 1 failed attempt counted, got %d", result.Retries)
	}

	// The verification failure is threaded into the next attempt's prompt.
	found := false
	for _, prompt := range prompts {
		if strings.Contains(prompt, "Verification failed: expected PASS") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected verification error in a retry prompt, got %v", prompts)
	}
}

func TestExecuteStepExhaustsRetryBudget(t *testing.T) {
	store, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	run := newTestRun(t, store, []models.StepSpec{
		{Title: "doomed", Prompt: "this will not work"},
	}, 2)

	calls := 0
	executor := newTestExecutor(store, func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error) {
		calls++
		return proc.Result{Success: false, Output: "agent crashed", ExitCode: 1}, nil
	})

	result, err := executor.ExecuteStep(context.Background(), run, 1)
	var stepErr *models.StepFailedError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepFailedError, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts for budget 2, got %d", calls)
	}
	if result.Status != models.StepStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Retries != 2 {
		t.Fatalf("expected retries equal to budget on exhaustion, got %d", result.Retries)
	}
	if stepErr.Retries != 2 {
		t.Fatalf("expected error to carry retry count, got %d", stepErr.Retries)
	}
}

func TestExecuteStepConfigurationErrorNotRetried(t *testing.T) {
	store, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	run := newTestRun(t, store, []models.StepSpec{
		{Title: "misconfigured", Prompt: "go"},
	}, 3)

	calls := 0
	executor := newTestExecutor(store, func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error) {
		calls++
		return proc.Result{}, &models.ConfigurationError{
			Missing: "claude binary not found in PATH",
			Remedy:  "install it or set CONDUCTOR_CLAUDE_BIN",
		}
	})

	result, err := executor.ExecuteStep(context.Background(), run, 1)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	if result.Status != models.StepStatusFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if result.Retries != 0 {
		t.Fatalf("expected retries 0, got %d", result.Retries)
	}
}

func TestExecuteStepRecordsResultSummaryRef(t *testing.T) {
	store, cleanup := testutil.NewTestStore(t)
	defer cleanup()

	run := newTestRun(t, store, []models.StepSpec{
		{Title: "summarize", Prompt: "go"},
	}, 1)

	executor := newTestExecutor(store, func(ctx context.Context, run *models.Run, step models.StepSpec, prompt string) (proc.Result, error) {
		return proc.Result{Success: true, Output: "final output"}, nil
	})

	result, err := executor.ExecuteStep(context.Background(), run, 1)
	if err != nil {
		t.Fatalf("ExecuteStep failed: %v", err)
	}
	if !strings.HasPrefix(result.RawResultRef, "event:") {
		t.Fatalf("expected event reference, got %q", result.RawResultRef)
	}

	events, err := store.EventsAfter(context.Background(), run.ID, 0)
	if err != nil {
		t.Fatalf("EventsAfter failed: %v", err)
	}
	found := false
	for _, event := range events {
		if event.Type == models.EventResultSummary {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a result_summary event, got %v", events)
	}
}
