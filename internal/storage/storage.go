// Package storage defines the interface for record storage backends.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// ErrDBNotInitialized is returned when attempting to use a database storage
// feature before the database has been initialized.
var ErrDBNotInitialized = errors.New("database not initialized")

// Transaction provides atomic multi-operation support within a single database transaction.
//
// The Transaction interface exposes a subset of Storage methods that execute within
// a single database transaction. This enables atomic workflows where multiple operations
// must either all succeed or all fail (e.g., moving a draft into the records table).
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same database connection
//   - Changes are not visible to other connections until commit
//   - If any operation returns an error, the transaction is rolled back
//   - If the callback function panics, the transaction is rolled back
//   - On successful return from the callback, the transaction is committed
//
// # Example Usage
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    if err := tx.CreateRecord(ctx, rec); err != nil {
//	        return err // Triggers rollback
//	    }
//	    if err := tx.DeleteDraft(ctx, rec.ID); err != nil {
//	        return err // Triggers rollback
//	    }
//	    return nil // Triggers commit
//	})
type Transaction interface {
	// Record operations
	CreateRecord(ctx context.Context, rec *records.Record) error
	UpdateRecord(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteRecord(ctx context.Context, id string) error
	GetRecord(ctx context.Context, id string) (*records.Record, error) // For read-your-writes within transaction

	// Draft operations
	CreateDraft(ctx context.Context, draft *records.Draft) error
	UpdateDraft(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteDraft(ctx context.Context, id string) error
	GetDraft(ctx context.Context, id string) (*records.Draft, error)
}

// Storage defines the interface for record storage backends.
//
// Get methods return (nil, nil) when the row does not exist; callers
// distinguish "absent" from "failed" without a sentinel.
type Storage interface {
	// Records
	CreateRecord(ctx context.Context, rec *records.Record) error
	GetRecord(ctx context.Context, id string) (*records.Record, error)
	UpdateRecord(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context, filter records.Filter) ([]*records.Record, error)
	SearchRecords(ctx context.Context, query string, filter records.Filter) ([]*records.Record, error)
	CountRecords(ctx context.Context, filter records.Filter) (int, error)

	// Drafts
	CreateDraft(ctx context.Context, draft *records.Draft) error
	GetDraft(ctx context.Context, id string) (*records.Draft, error)
	UpdateDraft(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteDraft(ctx context.Context, id string) error
	ListDrafts(ctx context.Context, filter records.Filter) ([]*records.Draft, error)

	// Search index maintenance
	RebuildSearchIndex(ctx context.Context) error

	// Transactions
	//
	// RunInTransaction executes a function within a database transaction.
	// The Transaction interface provides atomic multi-operation support.
	//
	// Transaction behavior:
	//   - If fn returns nil, the transaction is committed
	//   - If fn returns an error, the transaction is rolled back
	//   - If fn panics, the transaction is rolled back and the panic is re-raised
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error

	// Database path (for daemon validation)
	Path() string

	// UnderlyingDB returns the underlying *sql.DB connection.
	// This is provided for components (like the saga state store) that keep
	// their own tables in the same database. Direct access bypasses the
	// storage layer; use with caution.
	UnderlyingDB() *sql.DB
}

// Config holds database configuration.
type Config struct {
	Backend string // "sqlite" is the only backend today
	Path    string // database file path
}
