package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tmsolberg/conductor/internal/models"
)

// Run repository errors.
var (
	ErrRunNotFound = errors.New("run not found")
)

// RunRepository handles run persistence.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create adds a new run.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CurrentStep < 1 {
		run.CurrentStep = 1
	}
	if run.StartFrom < 1 {
		run.StartFrom = 1
	}
	if run.MaxRetries < 1 {
		run.MaxRetries = models.DefaultMaxRetries
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	definitionJSON, err := json.Marshal(run.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, status, definition_json, context_json,
			current_step, start_from, retry_count, max_retries,
			pid, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		string(run.Status),
		string(definitionJSON),
		string(contextJSON),
		run.CurrentStep,
		run.StartFrom,
		run.RetryCount,
		run.MaxRetries,
		run.PID,
		nullableString(run.LastError),
		run.CreatedAt.Format(time.RFC3339),
		run.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID, including its step results.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, definition_json, context_json,
			current_step, start_from, retry_count, max_retries,
			pid, last_error, created_at, updated_at
		FROM runs WHERE id = ?
	`, id)

	run, err := r.scanRun(row)
	if err != nil {
		return nil, err
	}

	results, err := NewStepResultRepository(r.db).ListByRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.StepResults = results

	return run, nil
}

// List retrieves all runs, newest first, without step results.
func (r *RunRepository) List(ctx context.Context) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, definition_json, context_json,
			current_step, start_from, retry_count, max_retries,
			pid, last_error, created_at, updated_at
		FROM runs
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.Run, 0)
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// Save updates a run's mutable fields. The definition and context are
// immutable once the run exists and are never rewritten.
func (r *RunRepository) Save(ctx context.Context, run *models.Run) error {
	run.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, current_step = ?, start_from = ?, retry_count = ?,
			max_retries = ?, pid = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`,
		string(run.Status),
		run.CurrentStep,
		run.StartFrom,
		run.RetryCount,
		run.MaxRetries,
		run.PID,
		nullableString(run.LastError),
		run.UpdatedAt.Format(time.RFC3339),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// DeleteTerminalBefore removes terminal runs last updated before the
// cutoff. Step results, logs, and events are removed by cascade.
func (r *RunRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE status IN (?, ?) AND updated_at < ?
	`,
		string(models.RunStatusSucceeded),
		string(models.RunStatusFailed),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

func (r *RunRepository) scanRun(scanner interface{ Scan(...any) error }) (*models.Run, error) {
	var (
		id             string
		status         string
		definitionJSON string
		contextJSON    string
		currentStep    int
		startFrom      int
		retryCount     int
		maxRetries     int
		pid            sql.NullInt64
		lastError      sql.NullString
		createdAt      string
		updatedAt      string
	)

	if err := scanner.Scan(
		&id,
		&status,
		&definitionJSON,
		&contextJSON,
		&currentStep,
		&startFrom,
		&retryCount,
		&maxRetries,
		&pid,
		&lastError,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := &models.Run{
		ID:          id,
		Status:      models.RunStatus(status),
		CurrentStep: currentStep,
		StartFrom:   startFrom,
		RetryCount:  retryCount,
		MaxRetries:  maxRetries,
		LastError:   lastError.String,
	}

	if err := json.Unmarshal([]byte(definitionJSON), &run.Definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}
	if err := json.Unmarshal([]byte(contextJSON), &run.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
	}

	if pid.Valid {
		value := int(pid.Int64)
		run.PID = &value
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		run.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		run.UpdatedAt = t
	}

	return run, nil
}
