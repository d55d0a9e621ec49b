package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tmsolberg/conductor/internal/models"
)

// Step result repository errors.
var (
	ErrStepResultNotFound = errors.New("step result not found")
)

// StepResultRepository handles step result persistence. The table is
// keyed by (run_id, step_idx), so a run can never hold two results for
// the same step: writing replaces.
type StepResultRepository struct {
	db *DB
}

// NewStepResultRepository creates a new StepResultRepository.
func NewStepResultRepository(db *DB) *StepResultRepository {
	return &StepResultRepository{db: db}
}

// Upsert inserts or replaces the result for a step index.
func (r *StepResultRepository) Upsert(ctx context.Context, runID string, result *models.StepResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO step_results (
			run_id, step_idx, title, status, retries,
			ralph_iterations, error, raw_result_ref, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step_idx) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			retries = excluded.retries,
			ralph_iterations = excluded.ralph_iterations,
			error = excluded.error,
			raw_result_ref = excluded.raw_result_ref,
			updated_at = excluded.updated_at
	`,
		runID,
		result.StepIdx,
		result.Title,
		string(result.Status),
		result.Retries,
		result.RalphIterations,
		nullableString(result.Error),
		nullableString(result.RawResultRef),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert step result: %w", err)
	}
	return nil
}

// Get retrieves the result for one step index.
func (r *StepResultRepository) Get(ctx context.Context, runID string, stepIdx int) (*models.StepResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT step_idx, title, status, retries, ralph_iterations, error, raw_result_ref
		FROM step_results
		WHERE run_id = ? AND step_idx = ?
	`, runID, stepIdx)

	return scanStepResult(row)
}

// ListByRun retrieves all step results for a run in index order.
func (r *StepResultRepository) ListByRun(ctx context.Context, runID string) ([]models.StepResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT step_idx, title, status, retries, ralph_iterations, error, raw_result_ref
		FROM step_results
		WHERE run_id = ?
		ORDER BY step_idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step results: %w", err)
	}
	defer rows.Close()

	results := make([]models.StepResult, 0)
	for rows.Next() {
		result, err := scanStepResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	return results, nil
}

func scanStepResult(scanner interface{ Scan(...any) error }) (*models.StepResult, error) {
	var (
		stepIdx         int
		title           string
		status          string
		retries         int
		ralphIterations int
		errText         sql.NullString
		rawResultRef    sql.NullString
	)

	if err := scanner.Scan(
		&stepIdx,
		&title,
		&status,
		&retries,
		&ralphIterations,
		&errText,
		&rawResultRef,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStepResultNotFound
		}
		return nil, fmt.Errorf("failed to scan step result: %w", err)
	}

	return &models.StepResult{
		StepIdx:         stepIdx,
		Title:           title,
		Status:          models.StepResultStatus(status),
		Retries:         retries,
		RalphIterations: ralphIterations,
		Error:           errText.String,
		RawResultRef:    rawResultRef.String,
	}, nil
}
