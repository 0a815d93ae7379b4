// Package civic provides a minimal public API for building custom tooling
// on top of a civic repository.
//
// Most integrations should read the metadata database directly. This
// package exports only the essential types and functions needed for
// Go programs that want to use civic's storage layer and record model
// programmatically. The saga machinery and the git layer stay internal;
// drive those through the civic CLI.
package civic

import (
	"context"
	"path/filepath"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/storage"
	"github.com/CivicPress/civicpress-sub010/internal/storage/sqlite"
	"github.com/CivicPress/civicpress-sub010/internal/workflows"
)

// Storage is the interface over the metadata store.
type Storage = storage.Storage

// Transaction provides atomic multi-operation support within a database
// transaction. Use Storage.RunInTransaction() to obtain one.
type Transaction = storage.Transaction

// NewSQLiteStorage opens the SQLite metadata store at dbPath, creating
// the file and migrating its schema when needed.
func NewSQLiteStorage(ctx context.Context, dbPath string) (Storage, error) {
	return sqlite.New(ctx, dbPath)
}

// FindRoot walks up from startDir to the repository root, the directory
// containing .civic/.
func FindRoot(startDir string) (string, error) {
	return config.FindRoot(startDir)
}

// DatabasePath returns the default metadata database location for a
// repository root.
func DatabasePath(root string) string {
	return filepath.Join(root, ".civic", "civic.db")
}

// Core record types.
type (
	Record = records.Record
	Draft  = records.Draft
	Author = records.Author
	Source = records.Source
	Filter = records.Filter
)

// Parse reads a record from its markdown form: YAML front matter
// between --- delimiters, then the body.
func Parse(text, path string) (*Record, error) {
	return records.Parse(text, path)
}

// Serialize renders a record into its canonical on-disk form.
func Serialize(r *Record) (string, error) {
	return records.Serialize(r)
}

// NewID derives a record id from its type and title.
func NewID(recordType, title string) string {
	return records.NewID(recordType, title)
}

// Slugify lowercases s and collapses every non-alphanumeric run into a
// single hyphen.
func Slugify(s string) string {
	return records.Slugify(s)
}

// RecordPath returns the repository-relative file path for an active
// record.
func RecordPath(recordType, id string) string {
	return records.RecordPath(recordType, id)
}

// ArchivePath returns the repository-relative file path a record moves
// to when archived.
func ArchivePath(rec *Record) (string, error) {
	return records.ArchivePath(rec)
}

// Catalogue is the workflow state machine governing record status
// transitions.
type Catalogue = workflows.Catalogue

// DefaultWorkflows returns the built-in status catalogue.
func DefaultWorkflows() *Catalogue {
	return workflows.Default()
}

// LoadWorkflows reads a repository's workflow catalogue
// (.civic/workflows.toml), falling back to the default when the file
// is absent.
func LoadWorkflows(root string) (*Catalogue, error) {
	return workflows.LoadFromRoot(root)
}
