// Package storage tests for interface compliance and contract verification.
package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// Compile-time interface conformance checks.
// These verify that mock implementations can satisfy the interfaces.
// Real conformance tests for the sqlite backend are in its own package.
var (
	_ Storage     = (*mockStorage)(nil)
	_ Transaction = (*mockTransaction)(nil)
)

// mockStorage is a minimal mock for interface testing.
type mockStorage struct{}

func (m *mockStorage) CreateRecord(ctx context.Context, rec *records.Record) error {
	return nil
}
func (m *mockStorage) GetRecord(ctx context.Context, id string) (*records.Record, error) {
	return nil, nil
}
func (m *mockStorage) UpdateRecord(ctx context.Context, id string, updates map[string]interface{}) error {
	return nil
}
func (m *mockStorage) DeleteRecord(ctx context.Context, id string) error {
	return nil
}
func (m *mockStorage) ListRecords(ctx context.Context, filter records.Filter) ([]*records.Record, error) {
	return nil, nil
}
func (m *mockStorage) SearchRecords(ctx context.Context, query string, filter records.Filter) ([]*records.Record, error) {
	return nil, nil
}
func (m *mockStorage) CountRecords(ctx context.Context, filter records.Filter) (int, error) {
	return 0, nil
}
func (m *mockStorage) CreateDraft(ctx context.Context, draft *records.Draft) error {
	return nil
}
func (m *mockStorage) GetDraft(ctx context.Context, id string) (*records.Draft, error) {
	return nil, nil
}
func (m *mockStorage) UpdateDraft(ctx context.Context, id string, updates map[string]interface{}) error {
	return nil
}
func (m *mockStorage) DeleteDraft(ctx context.Context, id string) error {
	return nil
}
func (m *mockStorage) ListDrafts(ctx context.Context, filter records.Filter) ([]*records.Draft, error) {
	return nil, nil
}
func (m *mockStorage) RebuildSearchIndex(ctx context.Context) error {
	return nil
}
func (m *mockStorage) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	return fn(&mockTransaction{})
}
func (m *mockStorage) Close() error {
	return nil
}
func (m *mockStorage) Path() string {
	return ""
}
func (m *mockStorage) UnderlyingDB() *sql.DB {
	return nil
}

// mockTransaction is a minimal mock for Transaction interface testing.
type mockTransaction struct{}

func (m *mockTransaction) CreateRecord(ctx context.Context, rec *records.Record) error {
	return nil
}
func (m *mockTransaction) UpdateRecord(ctx context.Context, id string, updates map[string]interface{}) error {
	return nil
}
func (m *mockTransaction) DeleteRecord(ctx context.Context, id string) error {
	return nil
}
func (m *mockTransaction) GetRecord(ctx context.Context, id string) (*records.Record, error) {
	return nil, nil
}
func (m *mockTransaction) CreateDraft(ctx context.Context, draft *records.Draft) error {
	return nil
}
func (m *mockTransaction) UpdateDraft(ctx context.Context, id string, updates map[string]interface{}) error {
	return nil
}
func (m *mockTransaction) DeleteDraft(ctx context.Context, id string) error {
	return nil
}
func (m *mockTransaction) GetDraft(ctx context.Context, id string) (*records.Draft, error) {
	return nil, nil
}

// TestTransactionPassesThrough verifies the mock plumbing used by other
// packages' tests: RunInTransaction must invoke the callback exactly once.
func TestTransactionPassesThrough(t *testing.T) {
	var store Storage = &mockStorage{}
	calls := 0
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}
