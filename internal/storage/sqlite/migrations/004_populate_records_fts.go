package migrations

import (
	"database/sql"
	"fmt"
)

// MigratePopulateRecordsFTS rebuilds the records FTS index when records
// exist. The FTS table uses content='records', so rows inserted before
// the index (or its triggers) existed are not searchable until a rebuild.
func MigratePopulateRecordsFTS(db *sql.DB) error {
	var recordCount int
	err := db.QueryRow("SELECT COUNT(*) FROM records").Scan(&recordCount)
	if err == nil && recordCount > 0 {
		_, err = db.Exec("INSERT INTO records_fts(records_fts) VALUES('rebuild')")
		if err != nil {
			return fmt.Errorf("failed to rebuild records_fts: %w", err)
		}
	}
	return nil
}
