package db

import (
	"context"
	"time"

	"github.com/tmsolberg/conductor/internal/models"
)

// Store aggregates the repositories into the engine's persistence
// port.
type Store struct {
	runs    *RunRepository
	steps   *StepResultRepository
	events  *EventRepository
	logRepo *LogRepository
}

// NewStore creates a Store over an open database.
func NewStore(database *DB) *Store {
	return &Store{
		runs:    NewRunRepository(database),
		steps:   NewStepResultRepository(database),
		events:  NewEventRepository(database),
		logRepo: NewLogRepository(database),
	}
}

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, run *models.Run) error {
	return s.runs.Create(ctx, run)
}

// GetRun loads a run with its step results.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return s.runs.Get(ctx, id)
}

// SaveRun persists a run's mutable fields.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	return s.runs.Save(ctx, run)
}

// UpsertStepResult writes the result for a step index, replacing any
// prior entry.
func (s *Store) UpsertStepResult(ctx context.Context, runID string, result *models.StepResult) error {
	return s.steps.Upsert(ctx, runID, result)
}

// AppendLog appends a chunk to the run log.
func (s *Store) AppendLog(ctx context.Context, runID, text string) error {
	return s.logRepo.Append(ctx, runID, text)
}

// ReadLog returns the full run log.
func (s *Store) ReadLog(ctx context.Context, runID string) (string, error) {
	return s.logRepo.Read(ctx, runID)
}

// AppendEvent stores an event and returns its sequence number.
func (s *Store) AppendEvent(ctx context.Context, runID, eventType string, payload map[string]any) (int64, error) {
	return s.events.Append(ctx, runID, eventType, payload)
}

// EventsAfter returns the gap-free event suffix after seq.
func (s *Store) EventsAfter(ctx context.Context, runID string, after int64) ([]*models.Event, error) {
	return s.events.ListAfter(ctx, runID, after)
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*models.Run, error) {
	return s.runs.List(ctx)
}

// PruneRuns removes terminal runs older than the cutoff along with
// their step results, logs, and events.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.runs.DeleteTerminalBefore(ctx, cutoff)
}
