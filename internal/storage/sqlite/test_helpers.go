package sqlite

import (
	"context"
	"testing"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// testEnv provides a test environment with common setup and helpers.
// Use newTestEnv(t) to create a test environment with automatic cleanup.
type testEnv struct {
	t     *testing.T
	Store *Store
	Ctx   context.Context
}

// newTestEnv creates a new test environment with a configured store.
// The store is automatically cleaned up when the test completes.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newTestStore(t, "")
	return &testEnv{
		t:     t,
		Store: store,
		Ctx:   context.Background(),
	}
}

// CreateRecord creates a test record with the given title and defaults.
func (e *testEnv) CreateRecord(title string) *records.Record {
	e.t.Helper()
	return e.CreateRecordWith(title, "policy", "draft")
}

// CreateRecordWith creates a test record with specified attributes.
func (e *testEnv) CreateRecordWith(title, recordType, status string) *records.Record {
	e.t.Helper()
	rec := &records.Record{
		ID:      records.NewID(recordType, title),
		Title:   title,
		Type:    recordType,
		Status:  status,
		Author:  "test-user",
		Created: "2024-01-15",
		Updated: "2024-01-15",
	}
	if err := e.Store.CreateRecord(e.Ctx, rec); err != nil {
		e.t.Fatalf("CreateRecord(%q) failed: %v", title, err)
	}
	return rec
}

// CreateDraft creates a test draft with the given title.
func (e *testEnv) CreateDraft(title string) *records.Draft {
	e.t.Helper()
	draft := &records.Draft{
		ID:      records.NewID("policy", title),
		Title:   title,
		Type:    "policy",
		Status:  "draft",
		Author:  "test-user",
		Created: "2024-01-15",
		Updated: "2024-01-15",
	}
	if err := e.Store.CreateDraft(e.Ctx, draft); err != nil {
		e.t.Fatalf("CreateDraft(%q) failed: %v", title, err)
	}
	return draft
}

// MustGet fetches a record and fails the test if it is absent.
func (e *testEnv) MustGet(id string) *records.Record {
	e.t.Helper()
	rec, err := e.Store.GetRecord(e.Ctx, id)
	if err != nil {
		e.t.Fatalf("GetRecord(%s) failed: %v", id, err)
	}
	if rec == nil {
		e.t.Fatalf("GetRecord(%s) returned nil", id)
	}
	return rec
}

// newTestStore creates a Store backed by a temp-dir database file.
//
// File-based databases are more reliable than in-memory for connection
// pool scenarios: ":memory:" gives every pooled connection its own empty
// database, so the second connection sees no schema.
func newTestStore(t *testing.T, dbPath string) *Store {
	t.Helper()

	if dbPath == "" {
		dbPath = t.TempDir() + "/test.db"
	}

	ctx := context.Background()
	store, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	return store
}
