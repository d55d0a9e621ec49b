package db

import (
	"context"
	"errors"
	"testing"

	"github.com/tmsolberg/conductor/internal/models"
)

func TestStepResultRepository_UpsertReplaces(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	runRepo := NewRunRepository(db)
	repo := NewStepResultRepository(db)
	ctx := context.Background()

	run := testRun()
	if err := runRepo.Create(ctx, run); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	failed := &models.StepResult{
		StepIdx: 1,
		Title:   "plan",
		Status:  models.StepStatusFailed,
		Retries: 3,
		Error:   "no completion marker",
	}
	if err := repo.Upsert(ctx, run.ID, failed); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	skipped := &models.StepResult{
		StepIdx: 1,
		Title:   "plan",
		Status:  models.StepStatusSkipped,
	}
	if err := repo.Upsert(ctx, run.ID, skipped); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	results, err := repo.ListByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListByRun failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result per step index, got %d", len(results))
	}
	if results[0].Status != models.StepStatusSkipped {
		t.Fatalf("expected later result to win, got %s", results[0].Status)
	}
	if results[0].Error != "" {
		t.Fatalf("expected replaced error cleared, got %q", results[0].Error)
	}
}

func TestStepResultRepository_ListOrderedByStep(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	runRepo := NewRunRepository(db)
	repo := NewStepResultRepository(db)
	ctx := context.Background()

	run := testRun()
	if err := runRepo.Create(ctx, run); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, idx := range []int{3, 1, 2} {
		result := &models.StepResult{
			StepIdx:         idx,
			Title:           "step",
			Status:          models.StepStatusCompleted,
			RalphIterations: idx,
		}
		if err := repo.Upsert(ctx, run.ID, result); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	results, err := repo.ListByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListByRun failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, result := range results {
		if result.StepIdx != i+1 {
			t.Fatalf("expected ascending step order, got %v", results)
		}
	}
}

func TestStepResultRepository_GetNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewStepResultRepository(db)
	_, err := repo.Get(context.Background(), "missing", 1)
	if !errors.Is(err, ErrStepResultNotFound) {
		t.Fatalf("expected ErrStepResultNotFound, got %v", err)
	}
}

func TestRunRepository_GetLoadsStepResults(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	runRepo := NewRunRepository(db)
	stepRepo := NewStepResultRepository(db)
	ctx := context.Background()

	run := testRun()
	if err := runRepo.Create(ctx, run); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := stepRepo.Upsert(ctx, run.ID, &models.StepResult{
		StepIdx: 1,
		Title:   "plan",
		Status:  models.StepStatusCompleted,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	fetched, err := runRepo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(fetched.StepResults) != 1 {
		t.Fatalf("expected step results loaded with run, got %d", len(fetched.StepResults))
	}
	if fetched.Result(1) == nil {
		t.Fatalf("expected result lookup by index to work")
	}
}
