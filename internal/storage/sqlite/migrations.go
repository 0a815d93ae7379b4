// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/CivicPress/civicpress-sub010/internal/storage/sqlite/migrations"
)

// Migration represents a single database migration
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations to run.
// Migrations are run in order during database initialization; each is
// idempotent so databases created at any schema version converge.
var migrationsList = []Migration{
	{"commit_hash_column", migrations.MigrateCommitHashColumn},
	{"record_drafts_table", migrations.MigrateRecordDraftsTable},
	{"saga_correlation_index", migrations.MigrateSagaCorrelationIndex},
	{"populate_records_fts", migrations.MigratePopulateRecordsFTS},
}

// MigrationInfo contains metadata about a migration for inspection
type MigrationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListMigrations returns the list of all registered migrations with
// descriptions. All migrations are idempotent, so this reports every
// registered migration, not just pending ones.
func ListMigrations() []MigrationInfo {
	result := make([]MigrationInfo, len(migrationsList))
	for i, m := range migrationsList {
		result[i] = MigrationInfo{
			Name:        m.Name,
			Description: getMigrationDescription(m.Name),
		}
	}
	return result
}

func getMigrationDescription(name string) string {
	descriptions := map[string]string{
		"commit_hash_column":     "Adds commit_hash column to records for git provenance",
		"record_drafts_table":    "Adds record_drafts table for the draft publication workflow",
		"saga_correlation_index": "Adds index on saga_states.correlation_id for request tracing",
		"populate_records_fts":   "Rebuilds the records FTS index for databases that predate it",
	}

	if desc, ok := descriptions[name]; ok {
		return desc
	}
	return "Unknown migration"
}

// RunMigrations executes all registered migrations in order.
// Uses an EXCLUSIVE transaction to prevent race conditions when multiple
// processes open the database simultaneously: without it, parallel
// processes can race on check-then-modify operations (e.g., checking if a
// column exists then adding it) and fail with "duplicate column" errors.
func RunMigrations(db *sql.DB) error {
	_, err := db.Exec("BEGIN EXCLUSIVE")
	if err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true

	return nil
}
