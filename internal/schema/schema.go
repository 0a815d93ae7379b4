// Package schema validates record headers against a composable schema:
// a base layer shared by every record type, an optional per-type
// extension, module extensions that claim sets of record types, and
// plugin extensions registered at runtime with a record-type predicate.
// Composition is cached per (recordType, options) and invalidated when
// the plugin set changes.
package schema

import (
	"fmt"
	"sort"
	"sync"
)

// FieldRule constrains one header field. A zero rule accepts anything.
type FieldRule struct {
	Type      string   // "string", "number", "boolean", "array", "object"; "" accepts any
	Required  bool
	Enum      []string
	Pattern   string // RE2, matched against the string form
	Format    string // "date", "email", "url", "phone", "semver"
	MinLength int
	MaxLength int // 0 means unbounded
	Min       *float64
	Max       *float64
}

// moduleExtension applies its fields to the record types it claims.
type moduleExtension struct {
	name        string
	recordTypes map[string]bool
	fields      map[string]FieldRule
}

// pluginExtension applies its fields when its predicate accepts the type.
type pluginExtension struct {
	name    string
	applies func(recordType string) bool
	fields  map[string]FieldRule
}

// Options select which composition layers participate. The zero value
// enables everything.
type Options struct {
	DisableModules bool
	DisablePlugins bool
}

func (o Options) cacheKey(recordType string) string {
	return fmt.Sprintf("%s|m=%t|p=%t", recordType, o.DisableModules, o.DisablePlugins)
}

// Validator composes and caches schemas. The type and status enums are
// injected at construction from the configured catalogues.
type Validator struct {
	mu       sync.RWMutex
	base     map[string]FieldRule
	typeExts map[string]map[string]FieldRule
	modules  []moduleExtension
	plugins  []pluginExtension
	cache    map[string]*compiled
	rules    []BusinessRule
}

// compiled is a fully merged schema for one (recordType, options) pair.
type compiled struct {
	fields map[string]FieldRule
	order  []string
}

// New builds a validator with the base schema and the injected type and
// status enums. Module and plugin layers start empty.
func New(recordTypes, recordStatuses []string) *Validator {
	v := &Validator{
		base:     baseSchema(recordTypes, recordStatuses),
		typeExts: make(map[string]map[string]FieldRule),
		cache:    make(map[string]*compiled),
	}
	v.rules = defaultBusinessRules()
	return v
}

func baseSchema(recordTypes, recordStatuses []string) map[string]FieldRule {
	return map[string]FieldRule{
		"id":         {Type: "string", Required: true, Pattern: `^[a-z0-9][a-z0-9._-]*$`},
		"title":      {Type: "string", Required: true, MinLength: 1, MaxLength: 200},
		"type":       {Type: "string", Required: true, Enum: recordTypes},
		"status":     {Type: "string", Required: true, Enum: recordStatuses},
		"author":     {Type: "string", Required: true, MinLength: 1},
		"authors":    {Type: "array"},
		"created":    {Type: "string", Required: true, Format: "date"},
		"updated":    {Type: "string", Required: true, Format: "date"},
		"tags":       {Type: "array"},
		"module":     {Type: "string"},
		"slug":       {Type: "string", Pattern: `^[a-z0-9][a-z0-9-]*$`},
		"version":    {Type: "string", Format: "semver"},
		"priority":   {Type: "string", Enum: []string{"low", "medium", "high", "urgent"}},
		"department": {Type: "string"},
		"source":     {Type: "object"},
		"commit":     {Type: "string"},
		"signature":  {Type: "string"},

		"linked_records":         {Type: "array"},
		"linked_geography_files": {Type: "array"},
		"attached_files":         {Type: "array"},
	}
}

// RegisterTypeExtension installs (or replaces) the extension schema for one
// record type.
func (v *Validator) RegisterTypeExtension(recordType string, fields map[string]FieldRule) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.typeExts[recordType] = fields
	v.invalidateLocked()
}

// RegisterModule installs a module extension claiming the given record
// types. Registering a module with a known name replaces it.
func (v *Validator) RegisterModule(name string, recordTypes []string, fields map[string]FieldRule) {
	v.mu.Lock()
	defer v.mu.Unlock()

	claimed := make(map[string]bool, len(recordTypes))
	for _, rt := range recordTypes {
		claimed[rt] = true
	}
	ext := moduleExtension{name: name, recordTypes: claimed, fields: fields}

	for i, m := range v.modules {
		if m.name == name {
			v.modules[i] = ext
			v.invalidateLocked()
			return
		}
	}
	v.modules = append(v.modules, ext)
	v.invalidateLocked()
}

// RegisterPlugin installs a runtime extension with a record-type predicate.
// Any plugin change invalidates the composition cache.
func (v *Validator) RegisterPlugin(name string, applies func(recordType string) bool, fields map[string]FieldRule) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ext := pluginExtension{name: name, applies: applies, fields: fields}
	for i, p := range v.plugins {
		if p.name == name {
			v.plugins[i] = ext
			v.invalidateLocked()
			return
		}
	}
	v.plugins = append(v.plugins, ext)
	v.invalidateLocked()
}

// UnregisterPlugin removes a plugin by name. Unknown names are a no-op.
func (v *Validator) UnregisterPlugin(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, p := range v.plugins {
		if p.name == name {
			v.plugins = append(v.plugins[:i], v.plugins[i+1:]...)
			v.invalidateLocked()
			return
		}
	}
}

// RegisterBusinessRule appends a rule to the post-schema layer.
func (v *Validator) RegisterBusinessRule(rule BusinessRule) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules = append(v.rules, rule)
}

func (v *Validator) invalidateLocked() {
	v.cache = make(map[string]*compiled)
}

// schemaFor returns the merged schema for a record type, composing layers
// in order: base, type extension, modules, plugins. Later layers replace
// earlier rules for the same field.
func (v *Validator) schemaFor(recordType string, opts Options) *compiled {
	key := opts.cacheKey(recordType)

	v.mu.RLock()
	if c, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return c
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.cache[key]; ok {
		return c
	}

	fields := make(map[string]FieldRule, len(v.base))
	for name, rule := range v.base {
		fields[name] = rule
	}
	if ext, ok := v.typeExts[recordType]; ok {
		for name, rule := range ext {
			fields[name] = rule
		}
	}
	if !opts.DisableModules {
		for _, m := range v.modules {
			if !m.recordTypes[recordType] {
				continue
			}
			for name, rule := range m.fields {
				fields[name] = rule
			}
		}
	}
	if !opts.DisablePlugins {
		for _, p := range v.plugins {
			if p.applies == nil || !p.applies(recordType) {
				continue
			}
			for name, rule := range p.fields {
				fields[name] = rule
			}
		}
	}

	order := make([]string, 0, len(fields))
	for name := range fields {
		order = append(order, name)
	}
	sort.Strings(order)

	c := &compiled{fields: fields, order: order}
	v.cache[key] = c
	return c
}

// LegalRegisterFields is the module extension carried by the legal-register
// module for legislative record types.
func LegalRegisterFields() map[string]FieldRule {
	return map[string]FieldRule{
		"number":          {Type: "string", Pattern: `^[A-Z]{2,4}-\d{4}-\d{1,4}$`},
		"adoption_date":   {Type: "string", Format: "date"},
		"effective_date":  {Type: "string", Format: "date"},
		"repeal_date":     {Type: "string", Format: "date"},
		"legal_reference": {Type: "string"},
	}
}

// MinutesFields is the type extension for meeting minutes.
func MinutesFields() map[string]FieldRule {
	return map[string]FieldRule{
		"session_type": {Type: "string", Enum: []string{"regular", "special", "emergency"}},
		"date":         {Type: "string", Format: "date"},
		"location":     {Type: "string"},
		"attendees":    {Type: "array"},
		"topics":       {Type: "array"},
		"duration":     {Type: "string"},
	}
}

// ModuleFields maps a configured module name to its built-in field set.
// Unknown modules contribute no fields but still participate in claims.
func ModuleFields(name string) map[string]FieldRule {
	switch name {
	case "legal-register":
		return LegalRegisterFields()
	default:
		return map[string]FieldRule{}
	}
}
