// Package cli provides database migration commands.
package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmsolberg/conductor/internal/db"
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabaseNoMigrate()
		if err != nil {
			return err
		}
		defer database.Close()

		applied, err := database.MigrateUp(context.Background())
		if err != nil {
			return err
		}

		if applied == 0 {
			cmd.Println("Database is up to date")
		} else {
			cmd.Printf("Applied %d migration(s)\n", applied)
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabaseNoMigrate()
		if err != nil {
			return err
		}
		defer database.Close()

		version, err := database.SchemaVersion(context.Background())
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			return enc.Encode(map[string]int{"version": version})
		}

		cmd.Printf("Schema version: %d\n", version)
		return nil
	},
}

func openDatabaseNoMigrate() (*db.DB, error) {
	if appConfig == nil {
		return nil, errConfigNotLoaded
	}
	return db.Open(db.Config{
		Path:          appConfig.Database.Path,
		MaxOpenConns:  appConfig.Database.MaxConnections,
		BusyTimeoutMs: appConfig.Database.BusyTimeoutMs,
	})
}
