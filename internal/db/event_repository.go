package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmsolberg/conductor/internal/models"
)

// EventRepository handles run event persistence. Events carry a
// strictly increasing per-run sequence number so pollers can request
// "events after N" and receive a gap-free suffix. There is no ordering
// across runs.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append stores an event and returns its assigned sequence number.
func (r *EventRepository) Append(ctx context.Context, runID, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON *string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		value := string(data)
		payloadJSON = &value
	}

	var seq int64
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(seq), 0) + 1 FROM run_events WHERE run_id = ?", runID)
		if err := row.Scan(&seq); err != nil {
			return fmt.Errorf("failed to allocate event seq: %w", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_events (run_id, seq, type, payload_json, created_at)
			VALUES (?, ?, ?, ?, ?)
		`,
			runID,
			seq,
			eventType,
			payloadJSON,
			time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return seq, nil
}

// ListAfter retrieves events for a run with seq greater than after,
// in ascending order.
func (r *EventRepository) ListAfter(ctx context.Context, runID string, after int64) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, seq, type, payload_json, created_at
		FROM run_events
		WHERE run_id = ? AND seq > ?
		ORDER BY seq ASC
	`, runID, after)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.Event, 0)
	for rows.Next() {
		var (
			event       models.Event
			payloadJSON sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&event.RunID, &event.Seq, &event.Type, &payloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if payloadJSON.Valid && payloadJSON.String != "" {
			_ = json.Unmarshal([]byte(payloadJSON.String), &event.Payload)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			event.Timestamp = t
		}
		events = append(events, &event)
	}

	return events, nil
}
