package records

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Header fields are grouped into fixed sections, emitted in this order and
// separated by single blank lines. Unknown fields follow the last section.
//
//	1. id, title, type, status
//	2. author, authors
//	3. created, updated
//	4. tags, module, slug, version, priority, department
//	5. source
//	6. commit, signature
//	7. geography, category, session_type, date, duration, location,
//	   attendees, topics, media
//	8. linked_records, linked_geography_files
//	9. attached_files

var classificationKeys = []string{"tags", "module", "slug", "version", "priority", "department"}

var typeSpecificKeys = []string{"category", "session_type", "date", "duration", "location", "attendees", "topics", "media"}

// sectionedMetaKeys is the set of metadata keys claimed by a fixed section;
// everything else is an unknown field.
var sectionedMetaKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, k := range classificationKeys {
		m[k] = true
	}
	for _, k := range typeSpecificKeys {
		m[k] = true
	}
	return m
}()

// Serialize renders a record into its canonical on-disk form: a YAML
// header between --- delimiters, one blank line, then the markdown body.
// WorkflowState is never written.
func Serialize(r *Record) (string, error) {
	sections, err := headerSections(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	for i, sec := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.Write(sec)
	}
	sb.WriteString("---\n")

	body := strings.TrimRight(r.Content, "\n")
	if body != "" {
		sb.WriteString("\n")
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func headerSections(r *Record) ([][]byte, error) {
	var sections [][]byte

	appendSection := func(s *section) error {
		if s.err != nil {
			return s.err
		}
		if s.empty() {
			return nil
		}
		rendered, err := s.render()
		if err != nil {
			return err
		}
		sections = append(sections, rendered)
		return nil
	}

	core := newSection()
	core.add("id", r.ID)
	core.add("title", r.Title)
	core.add("type", r.Type)
	core.add("status", r.Status)

	authorship := newSection()
	authorship.add("author", r.Author)
	if len(r.Authors) > 0 {
		authorship.add("authors", r.Authors)
	}

	timestamps := newSection()
	timestamps.add("created", CanonicalizeDate(r.Created))
	timestamps.add("updated", CanonicalizeDate(r.Updated))

	classification := newSection()
	for _, key := range classificationKeys {
		if v, ok := metaValue(r, key); ok {
			classification.add(key, v)
		}
	}

	source := newSection()
	if r.Source != nil {
		source.add("source", r.Source)
	}

	commit := newSection()
	if r.Commit != "" {
		commit.add("commit", r.Commit)
	}
	if r.Signature != "" {
		commit.add("signature", r.Signature)
	}

	typeSpecific := newSection()
	if r.Geography != nil {
		typeSpecific.add("geography", r.Geography)
	}
	for _, key := range typeSpecificKeys {
		v, ok := metaValue(r, key)
		if !ok {
			continue
		}
		if key == "date" {
			v = CanonicalizeDate(v)
		}
		typeSpecific.add(key, v)
	}

	relationships := newSection()
	if len(r.LinkedRecords) > 0 {
		relationships.add("linked_records", r.LinkedRecords)
	}
	if len(r.LinkedGeographyFiles) > 0 {
		relationships.add("linked_geography_files", r.LinkedGeographyFiles)
	}

	attachments := newSection()
	if len(r.AttachedFiles) > 0 {
		attachments.add("attached_files", r.AttachedFiles)
	}

	unknown := newSection()
	for _, key := range r.MetaKeys() {
		if sectionedMetaKeys[key] {
			continue
		}
		unknown.add(key, r.Metadata[key])
	}

	for _, s := range []*section{
		core, authorship, timestamps, classification, source,
		commit, typeSpecific, relationships, attachments, unknown,
	} {
		if err := appendSection(s); err != nil {
			return nil, err
		}
	}
	return sections, nil
}

func metaValue(r *Record, key string) (interface{}, bool) {
	if r.Metadata == nil {
		return nil, false
	}
	v, ok := r.Metadata[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// section accumulates ordered key/value pairs as a YAML mapping node.
type section struct {
	node *yaml.Node
	err  error
}

func newSection() *section {
	return &section{node: &yaml.Node{Kind: yaml.MappingNode}}
}

func (s *section) add(key string, value interface{}) {
	if s.err != nil {
		return
	}
	valNode := &yaml.Node{}
	if err := valNode.Encode(canonicalizeValue(value)); err != nil {
		s.err = fmt.Errorf("encoding header field %q: %w", key, err)
		return
	}
	s.node.Content = append(s.node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		valNode,
	)
}

func (s *section) empty() bool {
	return len(s.node.Content) == 0
}

func (s *section) render() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s.node); err != nil {
		return nil, fmt.Errorf("rendering header section: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("rendering header section: %w", err)
	}
	return buf.Bytes(), nil
}

// canonicalizeValue converts native times to ISO-8601 strings anywhere in
// the value, so the emitted header never contains a YAML timestamp.
func canonicalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time, *time.Time:
		return CanonicalizeDate(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = canonicalizeValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			out[i] = canonicalizeValue(inner)
		}
		return out
	default:
		return value
	}
}
