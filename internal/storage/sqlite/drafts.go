package sqlite

import (
	"context"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// CreateDraft inserts a new draft, failing if the id already exists in
// the drafts table. A draft may share its id with the published record it
// will replace; the two tables are keyed independently.
func (s *Store) CreateDraft(ctx context.Context, draft *records.Draft) error {
	return insertRow(ctx, s.db, tableDrafts, draft)
}

// GetDraft returns the draft with the given id, or (nil, nil) when no
// such draft exists.
func (s *Store) GetDraft(ctx context.Context, id string) (*records.Draft, error) {
	return getRow(ctx, s.db, tableDrafts, id)
}

// UpdateDraft applies a partial update to a draft.
func (s *Store) UpdateDraft(ctx context.Context, id string, updates map[string]interface{}) error {
	return updateRow(ctx, s.db, tableDrafts, id, updates)
}

// DeleteDraft removes a draft by id.
func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	return deleteRow(ctx, s.db, tableDrafts, id)
}

// ListDrafts returns drafts matching the filter, most recently updated
// first.
func (s *Store) ListDrafts(ctx context.Context, filter records.Filter) ([]*records.Draft, error) {
	return listRows(ctx, s.db, tableDrafts, filter)
}
