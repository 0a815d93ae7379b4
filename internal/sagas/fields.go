package sagas

import (
	"encoding/json"
	"fmt"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// Fields that can never change through an update: the id is the lock
// key, the type fixes the file location, created is provenance, and
// the commit hash is stamped by the commit step.
var immutableFields = map[string]bool{
	"id":          true,
	"type":        true,
	"created":     true,
	"created_at":  true,
	"commit":      true,
	"commit_hash": true,
	"path":        true,
}

// applyFieldUpdates mutates rec in memory and returns the column
// updates for its row. Top-level header fields map to their columns;
// any other key merges into metadata, where a nil value deletes the
// entry.
func applyFieldUpdates(rec *records.Record, updates map[string]interface{}) (map[string]interface{}, error) {
	row := make(map[string]interface{}, len(updates)+1)
	metaTouched := false

	for key, value := range updates {
		if immutableFields[key] {
			return nil, fmt.Errorf("field %q cannot be updated", key)
		}
		switch key {
		case "title":
			s, err := stringUpdate(key, value)
			if err != nil {
				return nil, err
			}
			rec.Title = s
			row["title"] = s
		case "content":
			s, err := stringUpdate(key, value)
			if err != nil {
				return nil, err
			}
			rec.Content = s
			row["content"] = s
		case "status":
			s, err := stringUpdate(key, value)
			if err != nil {
				return nil, err
			}
			rec.Status = s
			row["status"] = s
		case "workflow_state":
			s, err := stringUpdate(key, value)
			if err != nil {
				return nil, err
			}
			rec.WorkflowState = s
			row["workflow_state"] = s
		case "author":
			s, err := stringUpdate(key, value)
			if err != nil {
				return nil, err
			}
			rec.Author = s
			row["author"] = s
		case "signature":
			s, err := stringUpdate(key, value)
			if err != nil {
				return nil, err
			}
			rec.Signature = s
			row["signature"] = s
		case "updated", "updated_at":
			s, err := stringUpdate(key, value)
			if err != nil {
				return nil, err
			}
			rec.Updated = records.CanonicalizeDate(s)
			row["updated_at"] = rec.Updated
		case "authors":
			list, err := authorList(value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			rec.Authors = list
			row["authors"] = encodeJSONList(list)
		case "source":
			src, err := sourceValue(value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			rec.Source = src
			row["source"] = src
		case "geography":
			rec.Geography = value
			row["geography"] = value
		case "linked_records", "linked_geography_files", "attached_files":
			list, err := stringList(value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			switch key {
			case "linked_records":
				rec.LinkedRecords = list
			case "linked_geography_files":
				rec.LinkedGeographyFiles = list
			default:
				rec.AttachedFiles = list
			}
			row[key] = encodeJSONList(list)
		case "metadata":
			m, ok := value.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("field %q requires an object, got %T", key, value)
			}
			mergeMetadata(rec, m)
			metaTouched = true
		default:
			mergeMetadata(rec, map[string]interface{}{key: value})
			metaTouched = true
		}
	}
	if metaTouched {
		row["metadata"] = metadataValue(rec.Metadata)
	}
	return row, nil
}

func mergeMetadata(rec *records.Record, m map[string]interface{}) {
	for k, v := range m {
		if v == nil {
			delete(rec.Metadata, k)
			continue
		}
		rec.SetMeta(k, v)
	}
}

// originalColumnValues snapshots the named row columns from a record
// so compensation can restore them with a single update. Values are
// JSON-safe so the snapshot survives saga state persistence.
func originalColumnValues(rec *records.Record, keys ...string) map[string]interface{} {
	out := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		switch key {
		case "title":
			out[key] = rec.Title
		case "type":
			out[key] = rec.Type
		case "status":
			out[key] = rec.Status
		case "workflow_state":
			out[key] = rec.WorkflowState
		case "content":
			out[key] = rec.Content
		case "author":
			out[key] = rec.Author
		case "authors":
			out[key] = encodeJSONList(rec.Authors)
		case "created_at":
			out[key] = rec.Created
		case "updated_at":
			out[key] = rec.Updated
		case "source":
			out[key] = rec.Source
		case "commit_hash":
			out[key] = rec.Commit
		case "signature":
			out[key] = rec.Signature
		case "path":
			out[key] = rec.Path
		case "geography":
			out[key] = rec.Geography
		case "linked_records":
			out[key] = encodeJSONList(rec.LinkedRecords)
		case "linked_geography_files":
			out[key] = encodeJSONList(rec.LinkedGeographyFiles)
		case "attached_files":
			out[key] = encodeJSONList(rec.AttachedFiles)
		case "metadata":
			out[key] = metadataValue(rec.Metadata)
		}
	}
	return out
}

// encodeJSONList pre-encodes a slice for a NOT NULL json column, with
// nil encoding as the empty array.
func encodeJSONList(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return "[]"
	}
	return string(data)
}

// metadataValue substitutes the empty object for nil metadata; the
// column is NOT NULL.
func metadataValue(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func stringUpdate(key string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q requires a string value, got %T", key, v)
	}
	return s, nil
}

func authorList(v interface{}) ([]records.Author, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []records.Author:
		return list, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("not an author list: %w", err)
		}
		var out []records.Author
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("not an author list: %w", err)
		}
		return out, nil
	}
}

func sourceValue(v interface{}) (*records.Source, error) {
	switch src := v.(type) {
	case nil:
		return nil, nil
	case *records.Source:
		return src, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("not a source: %w", err)
		}
		var out records.Source
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("not a source: %w", err)
		}
		return &out, nil
	}
}

func stringList(v interface{}) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return list, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("not a string list: element %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a string list: %T", v)
	}
}
