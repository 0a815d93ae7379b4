package schema

import (
	"fmt"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// BusinessRule inspects a schema-clean header and returns diagnostics.
// Rules run only after the schema layer passed without errors.
type BusinessRule func(header map[string]interface{}) []Diagnostic

func defaultBusinessRules() []BusinessRule {
	return []BusinessRule{emptyAuthorsRule, timestampOrderRule}
}

// emptyAuthorsRule warns when an authors sequence exists but is empty:
// the header will omit it and only the derived primary author survives.
func emptyAuthorsRule(header map[string]interface{}) []Diagnostic {
	v, ok := header["authors"]
	if !ok {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok || len(items) > 0 {
		return nil
	}
	return []Diagnostic{{
		Severity: SeverityWarning,
		Code:     "empty_authors",
		Field:    "authors",
		Message:  "authors list is present but empty; only the primary author will be recorded",
	}}
}

// timestampOrderRule warns when created is later than updated.
func timestampOrderRule(header map[string]interface{}) []Diagnostic {
	created, cok := header["created"].(string)
	updated, uok := header["updated"].(string)
	if !cok || !uok || created == "" || updated == "" {
		return nil
	}
	if records.CompareDates(created, updated) > 0 {
		return []Diagnostic{{
			Severity: SeverityWarning,
			Code:     "timestamp_order",
			Field:    "created",
			Message:  fmt.Sprintf("created (%s) is later than updated (%s)", created, updated),
		}}
	}
	return nil
}
