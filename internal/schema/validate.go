package schema

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// Severity grades a diagnostic. Only errors make a header invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic codes for the common violations. Messages are templated from
// these codes so callers can match on them.
const (
	CodeRequired = "required"
	CodeType     = "type"
	CodeEnum     = "enum"
	CodeFormat   = "format"
	CodePattern  = "pattern"
	CodeLength   = "length"
	CodeRange    = "range"
	CodeUnknown  = "unknown_field"
)

// Diagnostic is one validation finding.
type Diagnostic struct {
	Severity   Severity `json:"severity"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Field      string   `json:"field"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Result groups diagnostics by severity. Valid is true when no
// error-severity diagnostics were produced.
type Result struct {
	Valid    bool         `json:"valid"`
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
	Info     []Diagnostic `json:"info"`
}

func (r *Result) add(d Diagnostic) {
	switch d.Severity {
	case SeverityError:
		r.Errors = append(r.Errors, d)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, d)
	default:
		r.Info = append(r.Info, d)
	}
}

// Validate checks a header map against the composed schema for recordType.
// The business-rule layer runs only when the schema layer found no errors.
func (v *Validator) Validate(header map[string]interface{}, recordType string, opts Options) *Result {
	result := &Result{}
	schema := v.schemaFor(recordType, opts)

	for _, field := range schema.order {
		rule := schema.fields[field]
		value, present := header[field]

		if !present || value == nil {
			if rule.Required {
				result.add(Diagnostic{
					Severity: SeverityError,
					Code:     CodeRequired,
					Field:    field,
					Message:  fmt.Sprintf("missing required field '%s'", field),
				})
			}
			continue
		}
		checkField(result, field, value, rule)
	}

	// Unknown fields pass through; surface them as info so operators can
	// spot typos without blocking imports.
	for field := range header {
		if _, known := schema.fields[field]; known {
			continue
		}
		d := Diagnostic{
			Severity: SeverityInfo,
			Code:     CodeUnknown,
			Field:    field,
			Message:  fmt.Sprintf("field '%s' is not part of the %s schema and passes through unvalidated", field, recordType),
		}
		if match := ClosestMatch(field, schema.order, 3); match != "" {
			d.Suggestion = fmt.Sprintf("did you mean '%s'?", match)
		}
		result.add(d)
	}

	result.Valid = len(result.Errors) == 0

	if result.Valid {
		v.mu.RLock()
		rules := make([]BusinessRule, len(v.rules))
		copy(rules, v.rules)
		v.mu.RUnlock()
		for _, rule := range rules {
			for _, d := range rule(header) {
				result.add(d)
			}
		}
		result.Valid = len(result.Errors) == 0
	}

	return result
}

// ValidateRecord is a convenience wrapper that projects a record onto its
// header map before validation.
func (v *Validator) ValidateRecord(rec *records.Record, opts Options) *Result {
	return v.Validate(HeaderMap(rec), rec.Type, opts)
}

// HeaderMap flattens a record into the header fields the schema sees.
func HeaderMap(rec *records.Record) map[string]interface{} {
	header := map[string]interface{}{
		"id":      rec.ID,
		"title":   rec.Title,
		"type":    rec.Type,
		"status":  rec.Status,
		"author":  rec.Author,
		"created": rec.Created,
		"updated": rec.Updated,
	}
	if len(rec.Authors) > 0 {
		authors := make([]interface{}, len(rec.Authors))
		for i, a := range rec.Authors {
			authors[i] = map[string]interface{}{
				"username": a.Username, "name": a.Name, "role": a.Role, "email": a.Email,
			}
		}
		header["authors"] = authors
	} else if rec.Authors != nil {
		header["authors"] = []interface{}{}
	}
	if rec.Source != nil {
		header["source"] = map[string]interface{}{"reference": rec.Source.Reference}
	}
	if rec.Commit != "" {
		header["commit"] = rec.Commit
	}
	if rec.Signature != "" {
		header["signature"] = rec.Signature
	}
	if rec.Geography != nil {
		header["geography"] = rec.Geography
	}
	if rec.LinkedRecords != nil {
		header["linked_records"] = toInterfaceSlice(rec.LinkedRecords)
	}
	if rec.LinkedGeographyFiles != nil {
		header["linked_geography_files"] = toInterfaceSlice(rec.LinkedGeographyFiles)
	}
	if rec.AttachedFiles != nil {
		header["attached_files"] = toInterfaceSlice(rec.AttachedFiles)
	}
	for k, v := range rec.Metadata {
		header[k] = v
	}
	return header
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func checkField(result *Result, field string, value interface{}, rule FieldRule) {
	if rule.Type != "" && !typeMatches(value, rule.Type) {
		result.add(Diagnostic{
			Severity: SeverityError,
			Code:     CodeType,
			Field:    field,
			Message:  fmt.Sprintf("field '%s' must be a %s, got %s", field, rule.Type, typeName(value)),
		})
		return
	}

	str, isStr := value.(string)

	if len(rule.Enum) > 0 && isStr {
		if !contains(rule.Enum, str) {
			d := Diagnostic{
				Severity: SeverityError,
				Code:     CodeEnum,
				Field:    field,
				Message:  fmt.Sprintf("field '%s' must be one of [%s], got '%s'", field, strings.Join(rule.Enum, ", "), str),
			}
			if match := ClosestMatch(str, rule.Enum, 3); match != "" {
				d.Suggestion = fmt.Sprintf("did you mean '%s'?", match)
			}
			result.add(d)
		}
	}

	if rule.Pattern != "" && isStr {
		re, err := regexp.Compile(rule.Pattern)
		if err == nil && !re.MatchString(str) {
			result.add(Diagnostic{
				Severity: SeverityError,
				Code:     CodePattern,
				Field:    field,
				Message:  fmt.Sprintf("field '%s' does not match pattern %s", field, rule.Pattern),
			})
		}
	}

	if rule.Format != "" && isStr {
		if msg := checkFormat(str, rule.Format); msg != "" {
			result.add(Diagnostic{
				Severity: SeverityError,
				Code:     CodeFormat,
				Field:    field,
				Message:  fmt.Sprintf("field '%s' %s", field, msg),
			})
		}
	}

	if isStr && (rule.MinLength > 0 || rule.MaxLength > 0) {
		n := len(str)
		if rule.MinLength > 0 && n < rule.MinLength {
			result.add(Diagnostic{
				Severity: SeverityError,
				Code:     CodeLength,
				Field:    field,
				Message:  fmt.Sprintf("field '%s' must be at least %d characters, got %d", field, rule.MinLength, n),
			})
		}
		if rule.MaxLength > 0 && n > rule.MaxLength {
			result.add(Diagnostic{
				Severity: SeverityError,
				Code:     CodeLength,
				Field:    field,
				Message:  fmt.Sprintf("field '%s' must be at most %d characters, got %d", field, rule.MaxLength, n),
			})
		}
	}

	if num, ok := numberOf(value); ok && (rule.Min != nil || rule.Max != nil) {
		if rule.Min != nil && num < *rule.Min {
			result.add(Diagnostic{
				Severity: SeverityError,
				Code:     CodeRange,
				Field:    field,
				Message:  fmt.Sprintf("field '%s' must be >= %v, got %v", field, *rule.Min, num),
			})
		}
		if rule.Max != nil && num > *rule.Max {
			result.add(Diagnostic{
				Severity: SeverityError,
				Code:     CodeRange,
				Field:    field,
				Message:  fmt.Sprintf("field '%s' must be <= %v, got %v", field, *rule.Max, num),
			})
		}
	}
}

// Format validators. These are shared with the template engine's custom
// field validators.

func checkFormat(value, format string) string {
	switch format {
	case "date":
		if !ValidDate(value) {
			return fmt.Sprintf("must be an ISO-8601 date, got '%s'", value)
		}
	case "email":
		if !ValidEmail(value) {
			return fmt.Sprintf("must be a valid email address, got '%s'", value)
		}
	case "url":
		if !ValidURL(value) {
			return fmt.Sprintf("must be a valid URL, got '%s'", value)
		}
	case "phone":
		if !ValidPhone(value) {
			return fmt.Sprintf("must be a valid phone number, got '%s'", value)
		}
	case "semver":
		if !ValidSemver(value) {
			return fmt.Sprintf("must be a semantic version, got '%s'", value)
		}
	}
	return ""
}

// ValidDate reports whether s is a canonical ISO-8601 date or timestamp.
func ValidDate(s string) bool {
	return records.IsCanonicalDate(s)
}

// ValidEmail checks address syntax.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// ValidURL requires an absolute http(s) URL.
func ValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidPhone strips common separators and requires 7 to 15 digits, with an
// optional leading +.
func ValidPhone(s string) bool {
	s = strings.TrimPrefix(s, "+")
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, s)
	if len(stripped) < 7 || len(stripped) > 15 {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidSemver accepts semantic versions with or without a leading v.
func ValidSemver(s string) bool {
	if s == "" {
		return false
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	// semver.IsValid accepts shorthand like v1; require major.minor.patch.
	return semver.IsValid(s) && strings.Count(strings.SplitN(s, "-", 2)[0], ".") == 2
}

func typeMatches(value interface{}, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := numberOf(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		switch value.(type) {
		case []interface{}, []string:
			return true
		}
		return false
	case "object":
		switch value.(type) {
		case map[string]interface{}, map[interface{}]interface{}:
			return true
		}
		return false
	default:
		return true
	}
}

func typeName(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, float64, uint64:
		return "number"
	case []interface{}, []string:
		return "array"
	case map[string]interface{}, map[interface{}]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func numberOf(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
