package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateCommitHashColumn adds the commit_hash column to records.
// Databases created before git provenance tracking landed lack it; fresh
// databases get it from the schema and this migration is a no-op.
func MigrateCommitHashColumn(db *sql.DB) error {
	var colName string
	err := db.QueryRow(`
		SELECT name FROM pragma_table_info('records')
		WHERE name = 'commit_hash'
	`).Scan(&colName)

	if err == sql.ErrNoRows {
		if _, err := db.Exec(`ALTER TABLE records ADD COLUMN commit_hash TEXT DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add commit_hash column: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check commit_hash column: %w", err)
	}
	return nil
}
