// Package workflows loads the record status catalogue from
// .civic/workflows.toml: the set of valid statuses and the transitions
// allowed between them. The catalogue feeds the schema validator's status
// enum and the CLI status display.
package workflows

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/CivicPress/civicpress-sub010/internal/config"
)

// Catalogue describes the status workflow for civic records.
type Catalogue struct {
	Statuses    []string            `toml:"statuses"`
	Transitions map[string][]string `toml:"transitions"`
}

// DefaultTOML is the workflows.toml scaffolded by civic init.
const DefaultTOML = `# Record status workflow.
# statuses lists every status a record may carry; transitions maps each
# status to the statuses it may move to. A status with no entry is terminal.

statuses = [
  "draft",
  "proposed",
  "reviewed",
  "approved",
  "active",
  "published",
  "archived",
]

[transitions]
draft = ["proposed", "active"]
proposed = ["reviewed", "approved", "draft"]
reviewed = ["approved", "proposed"]
approved = ["active", "published"]
active = ["published", "archived"]
published = ["archived"]
archived = []
`

// Default returns the built-in catalogue, aligned with the configured
// status enum.
func Default() *Catalogue {
	return &Catalogue{
		Statuses: config.GetRecordStatuses(),
		Transitions: map[string][]string{
			"draft":     {"proposed", "active"},
			"proposed":  {"reviewed", "approved", "draft"},
			"reviewed":  {"approved", "proposed"},
			"approved":  {"active", "published"},
			"active":    {"published", "archived"},
			"published": {"archived"},
			"archived":  {},
		},
	}
}

// Load reads a workflow catalogue from path. A missing file yields the
// default catalogue so a repository works before civic init writes one.
func Load(path string) (*Catalogue, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	var c Catalogue
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow catalogue %s: %w", path, err)
	}
	return &c, nil
}

// LoadFromRoot loads the catalogue from root/.civic/workflows.toml.
func LoadFromRoot(root string) (*Catalogue, error) {
	return Load(filepath.Join(root, ".civic", "workflows.toml"))
}

// validate checks that every transition references a declared status.
func (c *Catalogue) validate() error {
	if len(c.Statuses) == 0 {
		return fmt.Errorf("no statuses declared")
	}

	valid := make(map[string]bool, len(c.Statuses))
	for _, s := range c.Statuses {
		valid[s] = true
	}

	for from, targets := range c.Transitions {
		if !valid[from] {
			return fmt.Errorf("transition source %q is not a declared status", from)
		}
		for _, to := range targets {
			if !valid[to] {
				return fmt.Errorf("transition %s -> %s references undeclared status %q", from, to, to)
			}
		}
	}
	return nil
}

// ValidStatus reports whether status is part of the catalogue.
func (c *Catalogue) ValidStatus(status string) bool {
	for _, s := range c.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// CanTransition reports whether a record may move from one status to
// another. A catalogue with no transition table allows any move between
// declared statuses.
func (c *Catalogue) CanTransition(from, to string) bool {
	if !c.ValidStatus(from) || !c.ValidStatus(to) {
		return false
	}
	if len(c.Transitions) == 0 {
		return true
	}
	for _, t := range c.Transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// TransitionsFrom returns the statuses reachable from status.
func (c *Catalogue) TransitionsFrom(status string) []string {
	if len(c.Transitions) == 0 {
		return nil
	}
	return c.Transitions[status]
}
