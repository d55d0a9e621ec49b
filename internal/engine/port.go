// Package engine executes workflow runs: it sequences steps, drives
// the per-step state machine, and persists state through a storage
// port at every transition.
package engine

import (
	"context"

	"github.com/tmsolberg/conductor/internal/models"
)

// Port is the persistence boundary the engine writes through. The
// engine never assumes a specific storage technology; it requires only
// atomic-enough field updates and append semantics. Implementations
// are expected to serialize concurrent writers.
type Port interface {
	// CreateRun persists a new run.
	CreateRun(ctx context.Context, run *models.Run) error

	// GetRun loads a run with its step results.
	GetRun(ctx context.Context, id string) (*models.Run, error)

	// SaveRun persists a run's mutable fields.
	SaveRun(ctx context.Context, run *models.Run) error

	// UpsertStepResult writes the result for a step index, replacing
	// any prior entry for that index.
	UpsertStepResult(ctx context.Context, runID string, result *models.StepResult) error

	// AppendLog appends a chunk to the run's append-only log.
	AppendLog(ctx context.Context, runID, text string) error

	// AppendEvent stores an event and returns its strictly increasing
	// per-run sequence number.
	AppendEvent(ctx context.Context, runID, eventType string, payload map[string]any) (int64, error)

	// EventsAfter returns the gap-free event suffix after seq.
	EventsAfter(ctx context.Context, runID string, after int64) ([]*models.Event, error)
}
