package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateSagaCorrelationIndex indexes saga_states.correlation_id so
// request tracing can find every saga a correlation id touched without a
// table scan.
func MigrateSagaCorrelationIndex(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_saga_states_correlation ON saga_states(correlation_id)`)
	if err != nil {
		return fmt.Errorf("failed to create saga correlation index: %w", err)
	}
	return nil
}
