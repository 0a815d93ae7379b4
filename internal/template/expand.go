package template

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	partialRe     = regexp.MustCompile(`\{\{>\s*([A-Za-z0-9_-]+)((?:\s+[A-Za-z_][A-Za-z0-9_]*=(?:'[^']*'|"[^"]*"|[^\s}]+))*)\s*\}\}`)
	partialArgRe  = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)=('[^']*'|"[^"]*"|[^\s}]+)`)
	variableRe    = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	conditionalRe = regexp.MustCompile(`(?s)\{\{#if\s+([^}]+?)\s*\}\}(.*?)\{\{/if\}\}`)
	exprRe        = regexp.MustCompile(`^(!?)([A-Za-z_][A-Za-z0-9_]*)\s*(?:(==|!=)\s*'([^']*)')?$`)
)

// partial is a named fragment with an optional declared parameter list.
type partial struct {
	Parameters []string
	Body       string
}

type partialHeader struct {
	Parameters []string `yaml:"parameters"`
}

// Render expands a merged template against the given variables: smart
// defaults are applied to a copy of the scope, then partials, variables,
// and conditional blocks are processed in that order.
func (e *Engine) Render(t *Template, vars map[string]interface{}) (string, error) {
	scope := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		scope[k] = v
	}
	ApplyDefaults(scope, t.Type)

	out, err := e.expandPartials(t.Body, scope)
	if err != nil {
		return "", err
	}
	out = expandVariables(out, scope)
	out = expandConditionals(out, scope)
	return out, nil
}

// RenderScope returns the scope Render would expand with, defaults
// applied. Callers use it to materialize the record header.
func (e *Engine) RenderScope(t *Template, vars map[string]interface{}) map[string]interface{} {
	scope := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		scope[k] = v
	}
	ApplyDefaults(scope, t.Type)
	return scope
}

// expandPartials substitutes every {{> name k=v}} invocation. Unquoted
// argument values naming a caller variable bind by reference; quoted
// values are literals with the quotes stripped. The partial expands with
// its own scope only.
func (e *Engine) expandPartials(body string, scope map[string]interface{}) (string, error) {
	var expandErr error
	out := partialRe.ReplaceAllStringFunc(body, func(m string) string {
		groups := partialRe.FindStringSubmatch(m)
		name, rawArgs := groups[1], groups[2]

		p, err := e.loadPartial(name)
		if err != nil {
			if os.IsNotExist(err) || strings.Contains(err.Error(), "not found") {
				return fmt.Sprintf("<!-- partial not found: %s -->", name)
			}
			expandErr = err
			return m
		}

		args := parsePartialArgs(rawArgs, scope)
		pScope := make(map[string]interface{}, len(args))
		if len(p.Parameters) > 0 {
			for _, param := range p.Parameters {
				if v, ok := args[param]; ok {
					pScope[param] = v
				}
			}
		} else {
			for k, v := range args {
				pScope[k] = v
			}
		}

		rendered := expandVariables(p.Body, pScope)
		rendered = expandConditionals(rendered, pScope)
		return rendered
	})
	return out, expandErr
}

func parsePartialArgs(raw string, scope map[string]interface{}) map[string]interface{} {
	args := make(map[string]interface{})
	for _, m := range partialArgRe.FindAllStringSubmatch(raw, -1) {
		key, val := m[1], m[2]
		switch {
		case strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'"),
			strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`):
			args[key] = val[1 : len(val)-1]
		default:
			if ref, ok := scope[val]; ok {
				args[key] = ref
			} else {
				args[key] = val
			}
		}
	}
	return args
}

// loadPartial reads partials/<name>.md, custom dir first, with caching.
func (e *Engine) loadPartial(name string) (*partial, error) {
	e.mu.RLock()
	if p, ok := e.partials[name]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	rel := filepath.Join("partials", name+".md")
	for _, dir := range e.searchDirs() {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading partial %s: %w", name, err)
		}
		p, err := parsePartial(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing partial %s: %w", name, err)
		}
		e.mu.Lock()
		e.partials[name] = p
		e.mu.Unlock()
		return p, nil
	}
	return nil, fmt.Errorf("partial %s not found", name)
}

func parsePartial(text string) (*partial, error) {
	header, body := splitFrontMatter(text)
	p := &partial{Body: body}
	if header != "" {
		var h partialHeader
		if err := yaml.Unmarshal([]byte(header), &h); err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
		p.Parameters = h.Parameters
	}
	return p, nil
}

// expandVariables substitutes {{ name }} with the string form of the
// scope value. Unset names render as empty strings.
func expandVariables(body string, scope map[string]interface{}) string {
	return variableRe.ReplaceAllStringFunc(body, func(m string) string {
		name := variableRe.FindStringSubmatch(m)[1]
		v, ok := scope[name]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
}

// expandConditionals keeps or drops {{#if expr}}...{{/if}} blocks. Blocks
// do not nest; the innermost-first loop handles sequential blocks.
func expandConditionals(body string, scope map[string]interface{}) string {
	for {
		replaced := false
		body = conditionalRe.ReplaceAllStringFunc(body, func(m string) string {
			replaced = true
			groups := conditionalRe.FindStringSubmatch(m)
			if EvalCondition(groups[1], scope) {
				return groups[2]
			}
			return ""
		})
		if !replaced {
			return body
		}
	}
}

// EvalCondition evaluates the conditional grammar: `field`, `!field`,
// `field == 'value'`, `field != 'value'`. Malformed expressions are
// false.
func EvalCondition(expr string, scope map[string]interface{}) bool {
	m := exprRe.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return false
	}
	negate, field, op, literal := m[1] == "!", m[2], m[3], m[4]

	value, ok := scope[field]
	switch op {
	case "==":
		return ok && fmt.Sprintf("%v", value) == literal
	case "!=":
		return !ok || fmt.Sprintf("%v", value) != literal
	default:
		truthy := Truthy(value)
		if negate {
			return !truthy
		}
		return truthy
	}
}

// Truthy reports whether a bare field is set: non-nil and, for strings,
// non-empty.
func Truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// Per-type document number prefixes for the smart defaults.
var numberPrefixes = map[string]string{
	"bylaw":      "BL",
	"policy":     "POL",
	"resolution": "RES",
}

// ApplyDefaults fills the conventional fields of a creation scope, only
// where unset: today's date, matching created/updated, a neutral author,
// version 1.0.0, draft status, a per-type document number, and the
// fiscal year.
func ApplyDefaults(scope map[string]interface{}, recordType string) {
	now := time.Now()
	today := now.Format("2006-01-02")

	setDefault(scope, "date", today)
	date, _ := scope["date"].(string)
	if date == "" {
		date = today
	}
	setDefault(scope, "created", date)
	setDefault(scope, "updated", date)
	setDefault(scope, "author", "unknown")
	setDefault(scope, "version", "1.0.0")
	setDefault(scope, "status", "draft")

	if prefix, ok := numberPrefixes[recordType]; ok {
		setDefault(scope, recordType+"_number", fmt.Sprintf("%s-%d-001", prefix, now.Year()))
	}
	setDefault(scope, "fiscal_year", fmt.Sprintf("%d", now.Year()))
}

func setDefault(scope map[string]interface{}, key string, value interface{}) {
	if v, ok := scope[key]; ok && Truthy(v) {
		return
	}
	scope[key] = value
}
