// Package sqlite implements the record storage interface on SQLite using
// the ncruces wazero-based driver. The same database file also carries the
// saga coordinator's tables so a record write and its saga state share one
// durability domain.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
	"github.com/CivicPress/civicpress-sub010/internal/storage"
)

const (
	tableRecords = "records"
	tableDrafts  = "record_drafts"
)

// Store is the SQLite implementation of storage.Storage.
type Store struct {
	db   *sql.DB
	path string
}

var _ storage.Storage = (*Store)(nil)

// New opens (creating if necessary) the database at dbPath, applies the
// schema and all pending migrations, and returns a ready store. The saga
// state tables are created alongside the record tables.
func New(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Build connection string with pragmas. Busy timeout keeps concurrent
	// CLI invocations and the recovery daemon from failing on transient
	// write locks.
	busyMs := int64(30 * time.Second / time.Millisecond)
	if v := strings.TrimSpace(os.Getenv("CIVIC_LOCK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busyMs = int64(d / time.Millisecond)
		}
	}
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)&_time_format=sqlite",
		dbPath, busyMs)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway, and a pool of
	// one makes the manual BEGIN EXCLUSIVE in RunMigrations bind to the
	// same connection as the statements that follow it.
	db.SetMaxOpenConns(1)

	// WAL lets readers proceed while a saga holds a write transaction.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, saga.Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize saga schema: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// UnderlyingDB returns the underlying *sql.DB. The saga state store and
// lock manager run their queries through this handle so their tables live
// in the same database file.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// RunInTransaction executes fn within a single database transaction.
// The transaction commits when fn returns nil and rolls back when fn
// returns an error or panics.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// txStore adapts a *sql.Tx to the storage.Transaction interface by running
// the shared statement helpers against the transaction connection.
type txStore struct {
	tx *sql.Tx
}

var _ storage.Transaction = (*txStore)(nil)

func (t *txStore) CreateRecord(ctx context.Context, rec *records.Record) error {
	return insertRow(ctx, t.tx, tableRecords, rec)
}

func (t *txStore) UpdateRecord(ctx context.Context, id string, updates map[string]interface{}) error {
	return updateRow(ctx, t.tx, tableRecords, id, updates)
}

func (t *txStore) DeleteRecord(ctx context.Context, id string) error {
	return deleteRow(ctx, t.tx, tableRecords, id)
}

func (t *txStore) GetRecord(ctx context.Context, id string) (*records.Record, error) {
	return getRow(ctx, t.tx, tableRecords, id)
}

func (t *txStore) CreateDraft(ctx context.Context, draft *records.Draft) error {
	return insertRow(ctx, t.tx, tableDrafts, draft)
}

func (t *txStore) UpdateDraft(ctx context.Context, id string, updates map[string]interface{}) error {
	return updateRow(ctx, t.tx, tableDrafts, id, updates)
}

func (t *txStore) DeleteDraft(ctx context.Context, id string) error {
	return deleteRow(ctx, t.tx, tableDrafts, id)
}

func (t *txStore) GetDraft(ctx context.Context, id string) (*records.Draft, error) {
	return getRow(ctx, t.tx, tableDrafts, id)
}
