package template

import (
	"fmt"
	"strings"

	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/schema"
)

// EvaluateRules runs a merged template's advanced rules, relationships,
// and field validators against a record header and body. The returned
// diagnostics carry the rule type as their code.
func (e *Engine) EvaluateRules(t *Template, header map[string]interface{}, body string) []schema.Diagnostic {
	var diags []schema.Diagnostic
	diags = append(diags, e.checkAdvancedRules(t, header, body)...)
	diags = append(diags, checkRelationships(t, header)...)
	diags = append(diags, checkValidators(t, header)...)
	return diags
}

// MissingRequired lists the template's required fields absent or empty in
// the header.
func MissingRequired(t *Template, header map[string]interface{}) []string {
	var missing []string
	for _, field := range t.RequiredFields {
		if !present(header, field) {
			missing = append(missing, field)
		}
	}
	return missing
}

func (e *Engine) checkAdvancedRules(t *Template, header map[string]interface{}, body string) []schema.Diagnostic {
	var diags []schema.Diagnostic
	for _, rule := range t.AdvancedRules {
		switch rule.Type {
		case "date_sequence":
			diags = append(diags, checkDateSequence(rule, header)...)
		case "field_dependency":
			if present(header, rule.Field) && !present(header, rule.DependsOn) {
				diags = append(diags, schema.Diagnostic{
					Severity: schema.SeverityError,
					Code:     "field_dependency",
					Field:    rule.DependsOn,
					Message:  message(rule.Message, "%s requires %s to be set", rule.Field, rule.DependsOn),
				})
			}
		case "content_quality":
			diags = append(diags, checkContentQuality(rule, header, body)...)
		case "business_logic":
			e.mu.RLock()
			fn := e.businessLogic[rule.Name]
			e.mu.RUnlock()
			if fn == nil {
				continue
			}
			if err := fn(header); err != nil {
				diags = append(diags, schema.Diagnostic{
					Severity: schema.SeverityError,
					Code:     "business_logic",
					Message:  message(rule.Message, "rule %s: %v", rule.Name, err),
				})
			}
		}
	}
	return diags
}

// checkDateSequence verifies the listed date fields are non-decreasing.
// Absent fields and values that are not canonical dates are skipped.
func checkDateSequence(rule AdvancedRule, header map[string]interface{}) []schema.Diagnostic {
	var diags []schema.Diagnostic
	prevField, prevValue := "", ""
	for _, field := range rule.Fields {
		value := stringValue(header, field)
		if value == "" || !records.IsCanonicalDate(value) {
			continue
		}
		if prevValue != "" && records.CompareDates(prevValue, value) > 0 {
			diags = append(diags, schema.Diagnostic{
				Severity: schema.SeverityError,
				Code:     "date_sequence",
				Field:    field,
				Message:  message(rule.Message, "%s (%s) must not precede %s (%s)", field, value, prevField, prevValue),
			})
		}
		prevField, prevValue = field, value
	}
	return diags
}

const minContentLength = 50

var placeholderMarkers = []string{"[Add", "[TODO"}

// checkContentQuality concatenates the rule's listed fields (the field
// name "content" selects the record body; an empty list means the body
// alone) and flags short text and leftover placeholder markers.
// Violations are warnings.
func checkContentQuality(rule AdvancedRule, header map[string]interface{}, body string) []schema.Diagnostic {
	var parts []string
	if len(rule.Fields) == 0 {
		parts = append(parts, body)
	}
	for _, field := range rule.Fields {
		if field == "content" {
			parts = append(parts, body)
			continue
		}
		parts = append(parts, stringValue(header, field))
	}
	text := strings.Join(parts, " ")

	var diags []schema.Diagnostic
	if len(strings.TrimSpace(text)) < minContentLength {
		diags = append(diags, schema.Diagnostic{
			Severity: schema.SeverityWarning,
			Code:     "content_quality",
			Message:  message(rule.Message, "content is shorter than %d characters", minContentLength),
		})
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(text, marker) {
			diags = append(diags, schema.Diagnostic{
				Severity: schema.SeverityWarning,
				Code:     "content_quality",
				Message:  fmt.Sprintf("content contains placeholder marker %q", marker),
			})
		}
	}
	return diags
}

func checkRelationships(t *Template, header map[string]interface{}) []schema.Diagnostic {
	var diags []schema.Diagnostic
	for _, rel := range t.Relationships {
		switch rel.Type {
		case "required_together":
			set := 0
			for _, field := range rel.Fields {
				if present(header, field) {
					set++
				}
			}
			if set > 0 && set < len(rel.Fields) {
				diags = append(diags, schema.Diagnostic{
					Severity: schema.SeverityError,
					Code:     "required_together",
					Message:  message(rel.Message, "fields %s must be set together", strings.Join(rel.Fields, ", ")),
				})
			}
		case "mutually_exclusive":
			var set []string
			for _, field := range rel.Fields {
				if present(header, field) {
					set = append(set, field)
				}
			}
			if len(set) > 1 {
				diags = append(diags, schema.Diagnostic{
					Severity: schema.SeverityError,
					Code:     "mutually_exclusive",
					Message:  message(rel.Message, "fields %s are mutually exclusive", strings.Join(set, ", ")),
				})
			}
		case "dependent_on":
			if present(header, rel.Field) && !present(header, rel.DependsOn) {
				diags = append(diags, schema.Diagnostic{
					Severity: schema.SeverityError,
					Code:     "dependent_on",
					Field:    rel.DependsOn,
					Message:  message(rel.Message, "%s requires %s to be set", rel.Field, rel.DependsOn),
				})
			}
		case "conditional":
			if !EvalCondition(rel.If, header) {
				continue
			}
			if !present(header, rel.Field) {
				diags = append(diags, schema.Diagnostic{
					Severity: schema.SeverityError,
					Code:     "conditional",
					Field:    rel.Field,
					Message:  message(rel.Message, "%s is required when %s", rel.Field, rel.If),
				})
			}
		}
	}
	return diags
}

func checkValidators(t *Template, header map[string]interface{}) []schema.Diagnostic {
	var diags []schema.Diagnostic
	for _, v := range t.Validators {
		if v.Type == "required_if" {
			if requiredIfHolds(v, header) && !present(header, v.Field) {
				diags = append(diags, schema.Diagnostic{
					Severity: schema.SeverityError,
					Code:     "required_if",
					Field:    v.Field,
					Message:  message(v.Message, "%s is required when %s is %s", v.Field, v.ConditionField, v.ConditionValue),
				})
			}
			continue
		}

		value := stringValue(header, v.Field)
		if value == "" {
			continue
		}
		ok := true
		switch v.Type {
		case "email":
			ok = schema.ValidEmail(value)
		case "url":
			ok = schema.ValidURL(value)
		case "phone":
			ok = schema.ValidPhone(value)
		case "date":
			ok = schema.ValidDate(value)
		case "semver":
			ok = schema.ValidSemver(value)
		}
		if !ok {
			diags = append(diags, schema.Diagnostic{
				Severity: schema.SeverityError,
				Code:     v.Type,
				Field:    v.Field,
				Message:  message(v.Message, "%s is not a valid %s", v.Field, v.Type),
			})
		}
	}
	return diags
}

func requiredIfHolds(v FieldValidator, header map[string]interface{}) bool {
	if v.ConditionField == "" {
		return false
	}
	if v.ConditionValue == "" {
		return present(header, v.ConditionField)
	}
	return stringValue(header, v.ConditionField) == v.ConditionValue
}

func present(header map[string]interface{}, field string) bool {
	v, ok := header[field]
	return ok && Truthy(v)
}

func stringValue(header map[string]interface{}, field string) string {
	v, ok := header[field]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func message(custom, format string, args ...interface{}) string {
	if custom != "" {
		return custom
	}
	return fmt.Sprintf(format, args...)
}
