package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LogRepository handles append-only run log persistence. Writers batch
// their chunks; the database serializes concurrent appenders.
type LogRepository struct {
	db *DB
}

// NewLogRepository creates a new LogRepository.
func NewLogRepository(db *DB) *LogRepository {
	return &LogRepository{db: db}
}

// Append stores a chunk of log text for a run.
func (r *LogRepository) Append(ctx context.Context, runID, text string) error {
	if text == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO run_logs (run_id, chunk, created_at)
		VALUES (?, ?, ?)
	`,
		runID,
		text,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// Read returns the full concatenated log for a run.
func (r *LogRepository) Read(ctx context.Context, runID string) (string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chunk FROM run_logs
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return "", fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var builder strings.Builder
	for rows.Next() {
		var chunk string
		if err := rows.Scan(&chunk); err != nil {
			return "", fmt.Errorf("failed to scan log chunk: %w", err)
		}
		builder.WriteString(chunk)
	}

	return builder.String(), nil
}
