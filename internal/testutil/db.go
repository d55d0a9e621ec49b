// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tmsolberg/conductor/internal/db"
)

// NewTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a cleanup function.
func NewTestDB(t *testing.T) (*db.DB, func()) {
	t.Helper()

	database, err := db.OpenInMemory()
	require.NoError(t, err, "failed to open test database")

	ctx := context.Background()
	err = database.Migrate(ctx)
	require.NoError(t, err, "failed to run migrations")

	cleanup := func() {
		_ = database.Close()
	}

	return database, cleanup
}

// NewTestStore creates a Store backed by an in-memory database.
func NewTestStore(t *testing.T) (*db.Store, func()) {
	t.Helper()

	database, cleanup := NewTestDB(t)
	return db.NewStore(database), cleanup
}
