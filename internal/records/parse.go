package records

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field-name aliases accepted on read for relations, attachments, and
// geography. Canonical names are snake_case.
var headerAliases = map[string]string{
	"linkedRecords":        "linked_records",
	"linkedGeographyFiles": "linked_geography_files",
	"attachedFiles":        "attached_files",
	"geographyData":        "geography",
	"geography_data":       "geography",
}

// Parse decodes the canonical on-disk form back into a record. The path
// argument, when non-empty, is stored on the record; it never influences
// parsing. Missing required fields are reported together in a single
// MissingFieldsError.
func Parse(text string, path string) (*Record, error) {
	headerText, body, err := splitHeader(text)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(headerText), &raw); err != nil {
		return nil, fmt.Errorf("parsing record header: %w", err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	// Canonicalize aliases before extraction: canonical name wins when both
	// spellings are present.
	for alias, canonical := range headerAliases {
		if v, ok := raw[alias]; ok {
			if _, exists := raw[canonical]; !exists {
				raw[canonical] = v
			}
			delete(raw, alias)
		}
	}

	// The header never carries workflow state; the metadata store owns it.
	// Stray values are dropped rather than passed through.
	delete(raw, "workflow_state")
	delete(raw, "workflowState")

	rec := &Record{
		ID:      takeString(raw, "id"),
		Title:   takeString(raw, "title"),
		Type:    takeString(raw, "type"),
		Status:  takeString(raw, "status"),
		Created: CanonicalizeDate(take(raw, "created")),
		Updated: CanonicalizeDate(take(raw, "updated")),
		Path:    path,
		Content: strings.TrimRight(strings.TrimLeft(body, "\n"), "\n"),
	}

	rec.Author = takeString(raw, "author")
	rec.Authors = parseAuthors(take(raw, "authors"))
	if rec.Author == "" {
		rec.Author = deriveAuthor(rec.Authors)
	}

	rec.Source = parseSource(take(raw, "source"))
	rec.Commit = takeString(raw, "commit")
	rec.Signature = takeString(raw, "signature")

	if geo, ok := raw["geography"]; ok {
		rec.Geography = canonicalizeValue(geo)
		delete(raw, "geography")
	}
	rec.LinkedRecords = takeStringSlice(raw, "linked_records")
	rec.LinkedGeographyFiles = takeStringSlice(raw, "linked_geography_files")
	rec.AttachedFiles = takeStringSlice(raw, "attached_files")

	// Everything left is sectioned or unknown metadata.
	if len(raw) > 0 {
		rec.Metadata = make(map[string]interface{}, len(raw))
		for k, v := range raw {
			if k == "date" {
				rec.Metadata[k] = CanonicalizeDate(v)
				continue
			}
			rec.Metadata[k] = canonicalizeValue(v)
		}
	}

	var missing []string
	for _, field := range RequiredHeaderFields {
		switch field {
		case "id":
			if rec.ID == "" {
				missing = append(missing, field)
			}
		case "title":
			if rec.Title == "" {
				missing = append(missing, field)
			}
		case "type":
			if rec.Type == "" {
				missing = append(missing, field)
			}
		case "status":
			if rec.Status == "" {
				missing = append(missing, field)
			}
		case "author":
			if rec.Author == "" {
				missing = append(missing, field)
			}
		case "created":
			if rec.Created == "" {
				missing = append(missing, field)
			}
		case "updated":
			if rec.Updated == "" {
				missing = append(missing, field)
			}
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}

	return rec, nil
}

// splitHeader separates the delimited YAML header from the markdown body.
func splitHeader(text string) (header, body string, err error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], " ") != "---" {
		return "", "", fmt.Errorf("record file must start with a --- header delimiter")
	}

	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " ") == "---" {
			closing = i
			break
		}
	}
	if closing == -1 {
		return "", "", fmt.Errorf("record header is missing its closing --- delimiter")
	}

	header = strings.Join(lines[1:closing], "\n")
	body = strings.Join(lines[closing+1:], "\n")
	return header, body, nil
}

func take(raw map[string]interface{}, key string) interface{} {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	delete(raw, key)
	return v
}

func takeString(raw map[string]interface{}, key string) string {
	v := take(raw, key)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func takeStringSlice(raw map[string]interface{}, key string) []string {
	v := take(raw, key)
	if v == nil {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		if s, sok := v.(string); sok && s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprintf("%v", item))
		}
	}
	return out
}

func parseAuthors(v interface{}) []Author {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	authors := make([]Author, 0, len(items))
	for _, item := range items {
		switch a := item.(type) {
		case map[string]interface{}:
			authors = append(authors, Author{
				Username: stringOf(a["username"]),
				Name:     stringOf(a["name"]),
				Role:     stringOf(a["role"]),
				Email:    stringOf(a["email"]),
			})
		case string:
			authors = append(authors, Author{Username: a})
		}
	}
	return authors
}

// deriveAuthor resolves the primary author from the author list: the first
// entry's username, else its slugified name, else the literal "unknown".
func deriveAuthor(authors []Author) string {
	if len(authors) > 0 {
		first := authors[0]
		if first.Username != "" {
			return first.Username
		}
		if first.Name != "" {
			if slug := Slugify(first.Name); slug != "" {
				return slug
			}
		}
	}
	return "unknown"
}

// parseSource accepts both the mapping form and the legacy scalar form,
// which normalizes to {reference: <scalar>}.
func parseSource(v interface{}) *Source {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		if s == "" {
			return nil
		}
		return &Source{Reference: s}
	case map[string]interface{}:
		src := &Source{
			Reference:     stringOf(s["reference"]),
			OriginalTitle: stringOf(s["original_title"]),
			Filename:      stringOf(s["filename"]),
			URL:           stringOf(s["url"]),
			SourceType:    stringOf(s["source_type"]),
			ImportedBy:    stringOf(s["imported_by"]),
		}
		if at, ok := s["imported_at"]; ok {
			src.ImportedAt = CanonicalizeDate(at)
		}
		return src
	default:
		return &Source{Reference: fmt.Sprintf("%v", v)}
	}
}

func stringOf(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
