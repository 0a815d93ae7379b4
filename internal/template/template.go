// Package template loads record templates with inheritance, expands
// variables, partials and conditional blocks, and evaluates the
// validation rules a template declares against a record header.
//
// Templates live under <dir>/<type>/<name>.md with partials in
// <dir>/partials/<name>.md. A customization directory is searched before
// the base directory, so deployments can override shipped templates
// file by file.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Section is one structural section a template expects in a record body.
type Section struct {
	Name     string `yaml:"name"`
	Title    string `yaml:"title,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

// AdvancedRule is a header-level validation rule. Type selects the rule:
// date_sequence, field_dependency, content_quality, or business_logic.
type AdvancedRule struct {
	Type      string   `yaml:"type"`
	Fields    []string `yaml:"fields,omitempty"`
	Field     string   `yaml:"field,omitempty"`
	DependsOn string   `yaml:"depends_on,omitempty"`
	Message   string   `yaml:"message,omitempty"`
	Name      string   `yaml:"name,omitempty"`
}

// Relationship constrains how header fields appear together:
// required_together, mutually_exclusive, dependent_on, or conditional.
type Relationship struct {
	Type      string   `yaml:"type"`
	Fields    []string `yaml:"fields,omitempty"`
	Field     string   `yaml:"field,omitempty"`
	DependsOn string   `yaml:"depends_on,omitempty"`
	If        string   `yaml:"if,omitempty"`
	Message   string   `yaml:"message,omitempty"`
}

// FieldValidator attaches a format check to a single field: email, url,
// phone, date, semver, or required_if.
type FieldValidator struct {
	Field          string `yaml:"field"`
	Type           string `yaml:"type"`
	ConditionField string `yaml:"condition_field,omitempty"`
	ConditionValue string `yaml:"condition_value,omitempty"`
	Message        string `yaml:"message,omitempty"`
}

// Template is a fully parsed template file. After Load resolves the
// extends chain the result is a merged template with no parent left.
type Template struct {
	Name           string
	Type           string
	Extends        string `yaml:"extends,omitempty"`
	RequiredFields []string
	Statuses       []string
	Sections       []Section
	BusinessRules  []string
	AdvancedRules  []AdvancedRule
	Relationships  []Relationship
	Validators     []FieldValidator
	Partials       []string
	Body           string
}

// templateHeader is the YAML front matter of a template file.
type templateHeader struct {
	Name           string           `yaml:"name"`
	Type           string           `yaml:"type"`
	Extends        string           `yaml:"extends"`
	RequiredFields []string         `yaml:"required_fields"`
	Statuses       []string         `yaml:"statuses"`
	Sections       []Section        `yaml:"sections"`
	BusinessRules  []string         `yaml:"validation_rules"`
	AdvancedRules  []AdvancedRule   `yaml:"advanced_rules"`
	Relationships  []Relationship   `yaml:"relationships"`
	Validators     []FieldValidator `yaml:"validators"`
	Partials       []string         `yaml:"partials"`
}

const maxInheritanceDepth = 10

// Engine resolves, merges, caches, and renders templates.
type Engine struct {
	baseDir   string
	customDir string

	mu       sync.RWMutex
	cache    map[string]*Template
	partials map[string]*partial

	businessLogic map[string]func(header map[string]interface{}) error
}

// NewEngine creates an engine over a base directory and an optional
// customization directory searched first.
func NewEngine(baseDir, customDir string) *Engine {
	return &Engine{
		baseDir:       baseDir,
		customDir:     customDir,
		cache:         make(map[string]*Template),
		partials:      make(map[string]*partial),
		businessLogic: make(map[string]func(map[string]interface{}) error),
	}
}

// RegisterBusinessLogic installs the handler for a named business_logic
// rule. Rules without a handler accept every header.
func (e *Engine) RegisterBusinessLogic(name string, fn func(header map[string]interface{}) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.businessLogic[name] = fn
}

// Invalidate drops every cached template and partial. The file watcher
// calls this when anything under the template directories changes.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*Template)
	e.partials = make(map[string]*partial)
}

// Load resolves a template by record type and name, following the extends
// chain and returning the merged result. Results are cached until
// Invalidate.
func (e *Engine) Load(recordType, name string) (*Template, error) {
	key := recordType + "/" + name

	e.mu.RLock()
	if t, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return t, nil
	}
	e.mu.RUnlock()

	t, err := e.loadChain(recordType, name, map[string]bool{}, 0)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = t
	e.mu.Unlock()
	return t, nil
}

func (e *Engine) loadChain(recordType, name string, seen map[string]bool, depth int) (*Template, error) {
	key := recordType + "/" + name
	if depth > maxInheritanceDepth {
		return nil, fmt.Errorf("template inheritance deeper than %d levels at %s", maxInheritanceDepth, key)
	}
	if seen[key] {
		return nil, fmt.Errorf("template inheritance cycle at %s", key)
	}
	seen[key] = true

	t, err := e.readTemplate(recordType, name)
	if err != nil {
		return nil, err
	}

	if t.Extends == "" {
		return t, nil
	}

	parentType, parentName, err := splitRef(t.Extends)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", key, err)
	}
	parent, err := e.loadChain(parentType, parentName, seen, depth+1)
	if err != nil {
		return nil, fmt.Errorf("template %s extends %s: %w", key, t.Extends, err)
	}
	return merge(parent, t), nil
}

// readTemplate reads and parses one template file, custom dir first.
func (e *Engine) readTemplate(recordType, name string) (*Template, error) {
	rel := filepath.Join(recordType, name+".md")
	for _, dir := range e.searchDirs() {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading template %s/%s: %w", recordType, name, err)
		}
		t, err := parseTemplate(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s/%s: %w", recordType, name, err)
		}
		if t.Name == "" {
			t.Name = name
		}
		if t.Type == "" {
			t.Type = recordType
		}
		return t, nil
	}
	return nil, fmt.Errorf("template %s/%s not found", recordType, name)
}

func (e *Engine) searchDirs() []string {
	dirs := make([]string, 0, 2)
	if e.customDir != "" {
		dirs = append(dirs, e.customDir)
	}
	if e.baseDir != "" {
		dirs = append(dirs, e.baseDir)
	}
	return dirs
}

// parseTemplate splits optional YAML front matter from the body.
func parseTemplate(text string) (*Template, error) {
	header, body := splitFrontMatter(text)

	t := &Template{Body: body}
	if header != "" {
		var h templateHeader
		if err := yaml.Unmarshal([]byte(header), &h); err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
		t.Name = h.Name
		t.Type = h.Type
		t.Extends = h.Extends
		t.RequiredFields = h.RequiredFields
		t.Statuses = h.Statuses
		t.Sections = h.Sections
		t.BusinessRules = h.BusinessRules
		t.AdvancedRules = h.AdvancedRules
		t.Relationships = h.Relationships
		t.Validators = h.Validators
		t.Partials = h.Partials
	}
	return t, nil
}

// splitFrontMatter returns ("", text) when the file has no front matter.
func splitFrontMatter(text string) (header, body string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return "", strings.TrimLeft(text, "\n")
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return "", strings.TrimLeft(text, "\n")
	}
	header = rest[:end+1]
	body = rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")
	return header, body
}

// splitRef parses a "type/name" parent reference.
func splitRef(ref string) (recordType, name string, err error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid extends reference %q, want \"type/name\"", ref)
	}
	return parts[0], parts[1], nil
}

// merge combines a resolved parent with its child. Lists concatenate
// parent-first; sections merge with the child winning by name; the body
// is inherited only when the child body is empty; statuses follow the
// body rule.
func merge(parent, child *Template) *Template {
	out := &Template{
		Name:    child.Name,
		Type:    child.Type,
		Extends: "",
	}

	out.RequiredFields = append(append([]string{}, parent.RequiredFields...), child.RequiredFields...)
	out.BusinessRules = append(append([]string{}, parent.BusinessRules...), child.BusinessRules...)
	out.AdvancedRules = append(append([]AdvancedRule{}, parent.AdvancedRules...), child.AdvancedRules...)
	out.Relationships = append(append([]Relationship{}, parent.Relationships...), child.Relationships...)
	out.Validators = append(append([]FieldValidator{}, parent.Validators...), child.Validators...)
	out.Partials = append(append([]string{}, parent.Partials...), child.Partials...)

	out.Sections = mergeSections(parent.Sections, child.Sections)

	if strings.TrimSpace(child.Body) != "" {
		out.Body = child.Body
	} else {
		out.Body = parent.Body
	}
	if len(child.Statuses) > 0 {
		out.Statuses = child.Statuses
	} else {
		out.Statuses = parent.Statuses
	}
	return out
}

func mergeSections(parent, child []Section) []Section {
	if len(parent) == 0 {
		return append([]Section{}, child...)
	}
	out := make([]Section, 0, len(parent)+len(child))
	childByName := make(map[string]Section, len(child))
	for _, s := range child {
		childByName[s.Name] = s
	}
	used := make(map[string]bool, len(child))
	for _, s := range parent {
		if override, ok := childByName[s.Name]; ok {
			out = append(out, override)
			used[s.Name] = true
			continue
		}
		out = append(out, s)
	}
	for _, s := range child {
		if !used[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
