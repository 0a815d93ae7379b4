// Package records defines the civic record model and its canonical
// on-disk representation: a YAML header between --- delimiters followed
// by a markdown body. Serialize and Parse are inverses for every field
// that round-trips; dates are always carried as ISO-8601 strings.
package records

import (
	"fmt"
	"sort"
	"strings"
)

// Author describes one entry in a record's ordered author list.
type Author struct {
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Role     string `yaml:"role,omitempty" json:"role,omitempty"`
	Email    string `yaml:"email,omitempty" json:"email,omitempty"`
}

// Source captures import provenance. Reference is the only required field;
// a legacy scalar source is normalized to {reference: <scalar>} on read.
type Source struct {
	Reference     string `yaml:"reference" json:"reference"`
	OriginalTitle string `yaml:"original_title,omitempty" json:"original_title,omitempty"`
	Filename      string `yaml:"filename,omitempty" json:"filename,omitempty"`
	URL           string `yaml:"url,omitempty" json:"url,omitempty"`
	SourceType    string `yaml:"source_type,omitempty" json:"source_type,omitempty"`
	ImportedAt    string `yaml:"imported_at,omitempty" json:"imported_at,omitempty"`
	ImportedBy    string `yaml:"imported_by,omitempty" json:"imported_by,omitempty"`
}

// Record is a civic document. The header fields are authoritative for
// content; the metadata store is authoritative for WorkflowState, which is
// never written to the on-disk header.
type Record struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Status        string   `json:"status"`
	WorkflowState string   `json:"workflow_state,omitempty"`
	Content       string   `json:"content,omitempty"`
	Author        string   `json:"author"`
	Authors       []Author `json:"authors,omitempty"`
	Created       string   `json:"created"`
	Updated       string   `json:"updated"`
	Source        *Source  `json:"source,omitempty"`
	Commit        string   `json:"commit,omitempty"`
	Signature     string   `json:"signature,omitempty"`
	Path          string   `json:"path,omitempty"`

	Geography            interface{} `json:"geography,omitempty"`
	LinkedRecords        []string    `json:"linked_records,omitempty"`
	LinkedGeographyFiles []string    `json:"linked_geography_files,omitempty"`
	AttachedFiles        []string    `json:"attached_files,omitempty"`

	// Metadata carries every header field that is not modeled above
	// (tags, module, slug, version, priority, department, category,
	// session_type, ... and any unknown keys).
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Draft is a pre-publication working copy. Drafts have the same shape as
// records but live only in the metadata store until published.
type Draft = Record

// RequiredHeaderFields are the header fields a record file must carry.
var RequiredHeaderFields = []string{"id", "title", "type", "status", "author", "created", "updated"}

// MissingFieldsError reports every required header field absent from a
// parsed record, not just the first one found.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Validate checks the structural invariants that hold for every record
// regardless of type: required fields present and timestamps canonical.
// Type and status enum membership is the schema validator's job.
func (r *Record) Validate() error {
	var missing []string
	if r.ID == "" {
		missing = append(missing, "id")
	}
	if r.Title == "" {
		missing = append(missing, "title")
	}
	if r.Type == "" {
		missing = append(missing, "type")
	}
	if r.Status == "" {
		missing = append(missing, "status")
	}
	if r.Author == "" {
		missing = append(missing, "author")
	}
	if r.Created == "" {
		missing = append(missing, "created")
	}
	if r.Updated == "" {
		missing = append(missing, "updated")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}

	if !IsCanonicalDate(r.Created) {
		return fmt.Errorf("created %q is not an ISO-8601 date", r.Created)
	}
	if !IsCanonicalDate(r.Updated) {
		return fmt.Errorf("updated %q is not an ISO-8601 date", r.Updated)
	}
	return nil
}

// Clone returns a deep copy. Sagas snapshot records before mutating them
// so compensation can restore the original.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Authors != nil {
		out.Authors = append([]Author(nil), r.Authors...)
	}
	if r.Source != nil {
		src := *r.Source
		out.Source = &src
	}
	if r.LinkedRecords != nil {
		out.LinkedRecords = append([]string(nil), r.LinkedRecords...)
	}
	if r.LinkedGeographyFiles != nil {
		out.LinkedGeographyFiles = append([]string(nil), r.LinkedGeographyFiles...)
	}
	if r.AttachedFiles != nil {
		out.AttachedFiles = append([]string(nil), r.AttachedFiles...)
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// SetMeta stores a metadata value, allocating the map on first use.
func (r *Record) SetMeta(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// Meta returns a metadata value, or nil when unset.
func (r *Record) Meta(key string) interface{} {
	if r.Metadata == nil {
		return nil
	}
	return r.Metadata[key]
}

// MetaKeys returns the metadata keys in sorted order for deterministic
// serialization.
func (r *Record) MetaKeys() []string {
	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Filter narrows record listings and searches. Zero-valued fields do not
// constrain.
type Filter struct {
	Type   string
	Status string
	Module string
	Author string

	// ExcludeStatus drops rows in that status. Listings set it to
	// "archived" unless the caller filters by status explicitly.
	ExcludeStatus string

	Limit  int
	Offset int
}

// Slugify lowercases s and collapses every non-alphanumeric run into a
// single hyphen. Used for derived ids and author fallbacks.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// NewID derives a record id from type and title, e.g. "policy-open-data".
func NewID(recordType, title string) string {
	slug := Slugify(title)
	if slug == "" {
		slug = "untitled"
	}
	return recordType + "-" + slug
}
