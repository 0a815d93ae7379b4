package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateRecordDraftsTable creates the record_drafts table for databases
// that predate the draft publication workflow. The definition mirrors the
// one in schema.go; both use IF NOT EXISTS so either path may create it.
func MigrateRecordDraftsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS record_drafts (
		    id TEXT PRIMARY KEY,
		    title TEXT NOT NULL CHECK(length(title) <= 500),
		    type TEXT NOT NULL,
		    status TEXT NOT NULL DEFAULT 'draft',
		    workflow_state TEXT NOT NULL DEFAULT '',
		    content TEXT NOT NULL DEFAULT '',
		    author TEXT NOT NULL DEFAULT '',
		    authors TEXT NOT NULL DEFAULT '[]',
		    created_at TEXT NOT NULL,
		    updated_at TEXT NOT NULL,
		    source TEXT,
		    commit_hash TEXT DEFAULT '',
		    signature TEXT DEFAULT '',
		    path TEXT DEFAULT '',
		    geography TEXT,
		    linked_records TEXT NOT NULL DEFAULT '[]',
		    linked_geography_files TEXT NOT NULL DEFAULT '[]',
		    attached_files TEXT NOT NULL DEFAULT '[]',
		    metadata TEXT NOT NULL DEFAULT '{}'
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create record_drafts table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_record_drafts_type ON record_drafts(type)`)
	if err != nil {
		return fmt.Errorf("failed to create record_drafts type index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_record_drafts_updated_at ON record_drafts(updated_at)`)
	if err != nil {
		return fmt.Errorf("failed to create record_drafts updated_at index: %w", err)
	}
	return nil
}
