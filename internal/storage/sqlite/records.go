package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// isUniqueConstraintError checks if error is a UNIQUE constraint violation.
// Used to turn duplicate-id inserts into a stable "already exists" error.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "constraint failed: UNIQUE")
}

// dbtx is the subset of database/sql methods shared by *sql.DB and
// *sql.Tx. The row helpers below run against either.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowColumns is the canonical column list shared by the records and
// record_drafts tables. Scan order in scanRow must match.
const rowColumns = `id, title, type, status, workflow_state, content, author, authors,
	created_at, updated_at, source, commit_hash, signature, path, geography,
	linked_records, linked_geography_files, attached_files, metadata`

// updatableColumns maps update keys accepted by UpdateRecord/UpdateDraft
// to their columns. Keys absent here are rejected rather than silently
// dropped. The jsonValue flag marks columns stored as JSON text.
var updatableColumns = map[string]struct {
	column    string
	jsonValue bool
}{
	"title":                  {"title", false},
	"type":                   {"type", false},
	"status":                 {"status", false},
	"workflow_state":         {"workflow_state", false},
	"content":                {"content", false},
	"author":                 {"author", false},
	"authors":                {"authors", true},
	"created_at":             {"created_at", false},
	"updated_at":             {"updated_at", false},
	"source":                 {"source", true},
	"commit_hash":            {"commit_hash", false},
	"signature":              {"signature", false},
	"path":                   {"path", false},
	"geography":              {"geography", true},
	"linked_records":         {"linked_records", true},
	"linked_geography_files": {"linked_geography_files", true},
	"attached_files":         {"attached_files", true},
	"metadata":               {"metadata", true},
}

func insertRow(ctx context.Context, q dbtx, table string, rec *records.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is empty")
	}

	authors, err := marshalJSON(rec.Authors, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode authors: %w", err)
	}
	source, err := marshalJSONNullable(rec.Source)
	if err != nil {
		return fmt.Errorf("failed to encode source: %w", err)
	}
	geography, err := marshalJSONNullable(rec.Geography)
	if err != nil {
		return fmt.Errorf("failed to encode geography: %w", err)
	}
	metadata, err := marshalJSON(rec.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, table, rowColumns),
		rec.ID, rec.Title, rec.Type, rec.Status, rec.WorkflowState, rec.Content,
		rec.Author, authors, rec.Created, rec.Updated, source,
		rec.Commit, rec.Signature, rec.Path, geography,
		formatJSONStringArray(rec.LinkedRecords),
		formatJSONStringArray(rec.LinkedGeographyFiles),
		formatJSONStringArray(rec.AttachedFiles),
		metadata,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("record %s already exists", rec.ID)
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func getRow(ctx context.Context, q dbtx, table, id string) (*records.Record, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, rowColumns, table), id)
	rec, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

func updateRow(ctx context.Context, q dbtx, table, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(updates))
	args := make([]interface{}, 0, len(updates)+1)
	for key, value := range updates {
		col, ok := updatableColumns[key]
		if !ok {
			return fmt.Errorf("unknown field %q", key)
		}
		if col.jsonValue {
			encoded, err := marshalJSONNullable(value)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", key, err)
			}
			value = encoded
		}
		setClauses = append(setClauses, col.column+" = ?")
		args = append(args, value)
	}
	args = append(args, id)

	result, err := q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, strings.Join(setClauses, ", ")),
		args...)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("record not found: %s", id)
	}
	return nil
}

func deleteRow(ctx context.Context, q dbtx, table, id string) error {
	result, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("record not found: %s", id)
	}
	return nil
}

func listRows(ctx context.Context, q dbtx, table string, filter records.Filter) ([]*records.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s`, rowColumns, table)
	where, args := filterClauses(filter)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*records.Record
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return out, nil
}

// filterClauses translates a filter into WHERE fragments. The module
// filter matches the module key inside the metadata JSON column.
func filterClauses(filter records.Filter) ([]string, []interface{}) {
	var where []string
	var args []interface{}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ExcludeStatus != "" {
		where = append(where, "status != ?")
		args = append(args, filter.ExcludeStatus)
	}
	if filter.Author != "" {
		where = append(where, "author = ?")
		args = append(args, filter.Author)
	}
	if filter.Module != "" {
		where = append(where, "json_extract(metadata, '$.module') = ?")
		args = append(args, filter.Module)
	}
	return where, args
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRow(row scannable) (*records.Record, error) {
	var rec records.Record
	var authors, linkedRecords, linkedGeo, attached, metadata string
	var source, geography, commit, signature, path sql.NullString

	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Type, &rec.Status, &rec.WorkflowState, &rec.Content,
		&rec.Author, &authors, &rec.Created, &rec.Updated, &source,
		&commit, &signature, &path, &geography,
		&linkedRecords, &linkedGeo, &attached, &metadata,
	)
	if err != nil {
		return nil, err
	}

	rec.Commit = commit.String
	rec.Signature = signature.String
	rec.Path = path.String

	if authors != "" && authors != "[]" {
		if err := json.Unmarshal([]byte(authors), &rec.Authors); err != nil {
			return nil, fmt.Errorf("failed to decode authors: %w", err)
		}
	}
	if source.Valid && source.String != "" {
		var src records.Source
		if err := json.Unmarshal([]byte(source.String), &src); err != nil {
			return nil, fmt.Errorf("failed to decode source: %w", err)
		}
		rec.Source = &src
	}
	if geography.Valid && geography.String != "" {
		var geo interface{}
		if err := json.Unmarshal([]byte(geography.String), &geo); err != nil {
			return nil, fmt.Errorf("failed to decode geography: %w", err)
		}
		rec.Geography = geo
	}
	rec.LinkedRecords = parseJSONStringArray(linkedRecords)
	rec.LinkedGeographyFiles = parseJSONStringArray(linkedGeo)
	rec.AttachedFiles = parseJSONStringArray(attached)
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &rec, nil
}

// marshalJSON encodes v, substituting empty for nil values.
func marshalJSON(v interface{}, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// marshalJSONNullable encodes v for a nullable column: nil values (and
// typed nil pointers) store as NULL.
func marshalJSONNullable(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *records.Source:
		if val == nil {
			return nil, nil
		}
	case string:
		// Pre-encoded JSON from an update path passes through.
		return val, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// formatJSONStringArray encodes a string slice as JSON, with nil encoding
// as the empty array.
func formatJSONStringArray(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	data, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// parseJSONStringArray decodes a JSON string array, tolerating empty and
// malformed values as nil.
func parseJSONStringArray(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// CreateRecord inserts a new record, failing if the id already exists.
func (s *Store) CreateRecord(ctx context.Context, rec *records.Record) error {
	return insertRow(ctx, s.db, tableRecords, rec)
}

// GetRecord returns the record with the given id, or (nil, nil) when no
// such record exists.
func (s *Store) GetRecord(ctx context.Context, id string) (*records.Record, error) {
	return getRow(ctx, s.db, tableRecords, id)
}

// UpdateRecord applies a partial update. Keys must name updatable fields;
// unknown keys are an error so saga steps fail loudly instead of silently
// dropping a change.
func (s *Store) UpdateRecord(ctx context.Context, id string, updates map[string]interface{}) error {
	return updateRow(ctx, s.db, tableRecords, id, updates)
}

// DeleteRecord removes a record by id.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	return deleteRow(ctx, s.db, tableRecords, id)
}

// ListRecords returns records matching the filter, most recently updated
// first.
func (s *Store) ListRecords(ctx context.Context, filter records.Filter) ([]*records.Record, error) {
	return listRows(ctx, s.db, tableRecords, filter)
}

// CountRecords returns the number of records matching the filter.
func (s *Store) CountRecords(ctx context.Context, filter records.Filter) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tableRecords)
	where, args := filterClauses(filter)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}
