package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/storage/sqlite"
)

func newTestIndexer(t *testing.T) (*Indexer, *sqlite.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := sqlite.New(context.Background(), filepath.Join(root, ".civic", "civic.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store, root), store, root
}

func seedRecord(t *testing.T, store *sqlite.Store, id, title, recordType, status string) {
	t.Helper()
	rec := &records.Record{
		ID:      id,
		Title:   title,
		Type:    recordType,
		Status:  status,
		Author:  "clerk",
		Created: "2024-01-15",
		Updated: "2024-01-15",
		Path:    records.RecordPath(recordType, id),
	}
	if err := store.CreateRecord(context.Background(), rec); err != nil {
		t.Fatalf("failed to seed record %s: %v", id, err)
	}
}

func TestGenerateIndexesWritesListing(t *testing.T) {
	ix, store, root := newTestIndexer(t)
	ctx := context.Background()

	seedRecord(t, store, "bylaw-curfew", "Curfew Hours", "bylaw", "active")
	seedRecord(t, store, "bylaw-noise", "Noise Limits", "bylaw", "draft")

	if err := ix.GenerateIndexes(ctx, Options{Types: []string{"bylaw"}}); err != nil {
		t.Fatalf("GenerateIndexes: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "records", "bylaw", "index.md"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "# Bylaw records") {
		t.Errorf("missing heading:\n%s", content)
	}
	if !strings.Contains(content, "[bylaw-curfew](bylaw-curfew.md)") {
		t.Errorf("missing curfew row:\n%s", content)
	}
	if !strings.Contains(content, "Noise Limits") {
		t.Errorf("missing noise row:\n%s", content)
	}
	if !strings.Contains(content, "2 records") {
		t.Errorf("missing count:\n%s", content)
	}

	// IDs sort lexically regardless of update order.
	if strings.Index(content, "bylaw-curfew") > strings.Index(content, "bylaw-noise") {
		t.Errorf("rows out of order:\n%s", content)
	}
}

func TestGenerateIndexesSkipsArchived(t *testing.T) {
	ix, store, root := newTestIndexer(t)
	ctx := context.Background()

	seedRecord(t, store, "policy-open", "Open Policy", "policy", "active")
	seedRecord(t, store, "policy-closed", "Closed Policy", "policy", "archived")

	if err := ix.GenerateIndexes(ctx, Options{Types: []string{"policy"}}); err != nil {
		t.Fatalf("GenerateIndexes: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "records", "policy", "index.md"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if strings.Contains(string(data), "policy-closed") {
		t.Errorf("archived record listed:\n%s", data)
	}
	if !strings.Contains(string(data), "1 records") {
		t.Errorf("wrong count:\n%s", data)
	}
}

func TestGenerateIndexesAllConfiguredTypes(t *testing.T) {
	ix, store, root := newTestIndexer(t)
	ctx := context.Background()

	seedRecord(t, store, "bylaw-curfew", "Curfew", "bylaw", "active")
	seedRecord(t, store, "resolution-budget", "Budget", "resolution", "active")

	// No Types restriction: every configured type regenerates.
	if err := ix.GenerateIndexes(ctx, Options{}); err != nil {
		t.Fatalf("GenerateIndexes: %v", err)
	}

	for _, typ := range []string{"bylaw", "resolution"} {
		if _, err := os.Stat(filepath.Join(root, "records", typ, "index.md")); err != nil {
			t.Errorf("missing %s index: %v", typ, err)
		}
	}
}

func TestRemoveRecordFromIndex(t *testing.T) {
	ix, store, root := newTestIndexer(t)
	ctx := context.Background()

	seedRecord(t, store, "bylaw-curfew", "Curfew", "bylaw", "active")
	if err := ix.GenerateIndexes(ctx, Options{Types: []string{"bylaw"}}); err != nil {
		t.Fatalf("GenerateIndexes: %v", err)
	}

	// Archive the record, then refresh: the listing disappears because no
	// active records remain.
	if err := store.UpdateRecord(ctx, "bylaw-curfew", map[string]interface{}{"status": "archived"}); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if err := ix.RemoveRecordFromIndex(ctx, "bylaw-curfew", "bylaw"); err != nil {
		t.Fatalf("RemoveRecordFromIndex: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "records", "bylaw", "index.md")); !os.IsNotExist(err) {
		t.Errorf("expected listing removed, stat err = %v", err)
	}
}

func TestGenerateIndexesRebuild(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	seedRecord(t, store, "bylaw-curfew", "Curfew", "bylaw", "active")

	if err := ix.GenerateIndexes(ctx, Options{Types: []string{"bylaw"}, Rebuild: true}); err != nil {
		t.Fatalf("GenerateIndexes with rebuild: %v", err)
	}

	// The record must still be findable after the rebuild.
	found, err := store.SearchRecords(ctx, "curfew", records.Filter{})
	if err != nil {
		t.Fatalf("SearchRecords: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("search after rebuild = %d records, want 1", len(found))
	}
}

func TestBuildTypeIndexEscapesPipes(t *testing.T) {
	recs := []*records.Record{{
		ID:      "bylaw-odd",
		Title:   "Odd | Title",
		Status:  "active",
		Updated: "2024-01-15",
	}}
	content := buildTypeIndex("bylaw", recs)
	if !strings.Contains(content, `Odd \| Title`) {
		t.Errorf("pipe not escaped:\n%s", content)
	}
}
