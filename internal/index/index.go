// Package index maintains the derived views of the record corpus: the
// full-text search tables and the per-type markdown listings written to
// records/<type>/index.md. Saga steps call it fire-and-forget; the CLI
// calls it directly for civic index.
package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/fsutil"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/storage"
)

// maxConcurrentTypes bounds how many type listings regenerate in parallel.
const maxConcurrentTypes = 4

// Indexer regenerates derived views from the metadata store.
type Indexer struct {
	store storage.Storage
	root  string
}

// Options controls a GenerateIndexes run.
type Options struct {
	// Types restricts regeneration to the named record types.
	// Empty means every configured type.
	Types []string

	// Rebuild repopulates the full-text index from the record rows
	// before regenerating listings.
	Rebuild bool
}

// New creates an Indexer writing listings under the data root.
func New(store storage.Storage, root string) *Indexer {
	return &Indexer{store: store, root: root}
}

// GenerateIndexes regenerates the per-type markdown listings, optionally
// rebuilding the full-text index first. Types regenerate concurrently.
func (ix *Indexer) GenerateIndexes(ctx context.Context, opts Options) error {
	if opts.Rebuild {
		if err := ix.store.RebuildSearchIndex(ctx); err != nil {
			return fmt.Errorf("failed to rebuild search index: %w", err)
		}
	}

	types := opts.Types
	if len(types) == 0 {
		types = config.GetRecordTypes()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTypes)
	for _, recordType := range types {
		recordType := recordType
		g.Go(func() error {
			return ix.generateTypeIndex(gctx, recordType)
		})
	}
	return g.Wait()
}

// RemoveRecordFromIndex refreshes the listing for a type after a record
// left it (archived or deleted). The record id is accepted for symmetry
// with the saga step contract; regeneration reads current state, so a
// stale id is harmless.
func (ix *Indexer) RemoveRecordFromIndex(ctx context.Context, id, recordType string) error {
	_ = id
	return ix.generateTypeIndex(ctx, recordType)
}

// generateTypeIndex rewrites records/<type>/index.md from the store.
// Archived records do not appear; a type with no active records gets its
// listing removed.
func (ix *Indexer) generateTypeIndex(ctx context.Context, recordType string) error {
	recs, err := ix.store.ListRecords(ctx, records.Filter{Type: recordType})
	if err != nil {
		return fmt.Errorf("failed to list %s records: %w", recordType, err)
	}

	active := make([]*records.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.Status == "archived" {
			continue
		}
		active = append(active, rec)
	}

	indexPath := filepath.Join(ix.root, "records", recordType, "index.md")
	if len(active) == 0 {
		return fsutil.RemoveIfExists(indexPath)
	}

	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	content := buildTypeIndex(recordType, active)
	if err := fsutil.WriteFileAtomic(indexPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s index: %w", recordType, err)
	}
	return nil
}

// buildTypeIndex renders the markdown listing for one record type.
func buildTypeIndex(recordType string, recs []*records.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s records\n\n", titleCase(recordType))
	b.WriteString("| ID | Title | Status | Updated |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, rec := range recs {
		fmt.Fprintf(&b, "| [%s](%s) | %s | %s | %s |\n",
			rec.ID, listingLink(recordType, rec), escapeCell(rec.Title), rec.Status, rec.Updated)
	}
	fmt.Fprintf(&b, "\n%d records\n", len(recs))

	return b.String()
}

// listingLink computes the link target relative to records/<type>/.
func listingLink(recordType string, rec *records.Record) string {
	p := records.ToSlash(rec.Path)
	if p == "" {
		p = records.RecordPath(recordType, rec.ID)
	}
	return strings.TrimPrefix(p, "records/"+recordType+"/")
}

// escapeCell keeps titles from breaking the markdown table.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
