package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// SearchRecords runs a full-text query over record titles and bodies,
// ranked by BM25, intersected with the structured filter. Bare terms get
// a trailing * so partial words match; queries already using FTS syntax
// pass through untouched. A query the FTS parser rejects falls back to a
// LIKE scan rather than erroring.
func (s *Store) SearchRecords(ctx context.Context, query string, filter records.Filter) ([]*records.Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListRecords(ctx, filter)
	}

	matchQuery := query
	if !strings.ContainsAny(matchQuery, " \"*:()") {
		matchQuery = matchQuery + "*"
	}

	where, args := filterClauses(filter)
	sqlQuery := fmt.Sprintf(`
		SELECT %s
		FROM records_fts
		JOIN records r ON records_fts.rowid = r.rowid
		WHERE records_fts MATCH ?
	`, prefixColumns("r", rowColumns))
	matchArgs := append([]interface{}{matchQuery}, args...)
	for _, clause := range where {
		sqlQuery += " AND r." + clause
	}
	sqlQuery += " ORDER BY bm25(records_fts)"
	if filter.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, matchArgs...)
	if err != nil {
		// FTS5 rejects some user input outright (unbalanced quotes,
		// stray operators). Degrade to a substring scan.
		return s.likeSearch(ctx, query, filter)
	}
	defer rows.Close()

	var out []*records.Record
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return out, nil
}

func (s *Store) likeSearch(ctx context.Context, query string, filter records.Filter) ([]*records.Record, error) {
	where, args := filterClauses(filter)
	pattern := "%" + query + "%"
	where = append(where, "(title LIKE ? OR content LIKE ?)")
	args = append(args, pattern, pattern)

	sqlQuery := fmt.Sprintf(`SELECT %s FROM records WHERE %s ORDER BY updated_at DESC`,
		rowColumns, strings.Join(where, " AND "))
	if filter.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close()

	var out []*records.Record
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return out, nil
}

// RebuildSearchIndex rebuilds the FTS index from the records table. The
// external-content index only tracks writes made through this store, so a
// database restored from backup or touched by another tool needs a
// rebuild before search results are trustworthy.
func (s *Store) RebuildSearchIndex(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "INSERT INTO records_fts(records_fts) VALUES('rebuild')"); err != nil {
		return fmt.Errorf("failed to rebuild records_fts: %w", err)
	}
	return nil
}

// prefixColumns qualifies each column in a comma-separated list with a
// table alias for use in joins.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
