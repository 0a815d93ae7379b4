package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/CivicPress/civicpress-sub010/internal/workflows"
)

// createConfigYaml writes the .civic/config.yml template. Existing
// files are preserved so re-running init never clobbers local settings.
func createConfigYaml(civicDir, version string) error {
	configPath := filepath.Join(civicDir, "config.yml")

	// Skip if already exists
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	configTemplate := fmt.Sprintf(`# CivicPress configuration
# Settings here apply to every civic command run in this repository.
# All keys can also be set via environment variables (CIVIC_* prefix,
# dots and dashes become underscores) or overridden with flags.

# Version of civic this repository was initialized with.
version: "%s"

# Record types accepted by create/validate.
# records:
#   types: [bylaw, ordinance, policy, proclamation, resolution, minutes]
#   statuses: [draft, proposed, reviewed, approved, active, published, archived]

# Default author for record operations (overridden by CIVIC_AUTHOR or --author).
# author: ""

# Path to the metadata database (overridden by CIVIC_DB or --db).
# db: ""

# Saga execution limits.
# saga:
#   step-timeout: "60s"
#   timeout: "5m"
#   lock-timeout: "30s"
#   idempotency-ttl: "24h"

# Recovery daemon tuning (civic recover --watch).
# recovery:
#   interval: "60s"
#   stuck-timeout: "5m"

# Template directories, relative to the repository root.
# templates:
#   dir: "templates"
#   custom-dir: ".civic/templates"

# Git commit behavior.
# git:
#   author: ""          # override "Name <email>" for record commits
#   no-gpg-sign: false

# Hook script execution.
# hooks:
#   dir: ""             # default: .civic/hooks
#   timeout: "30s"

# Daemon log rotation (civic recover --watch).
# log:
#   file: ""            # default: .civic/logs/civicd.log
#   max-size-mb: 10
#   max-backups: 3
#   max-age-days: 28

# Enable JSON output by default.
# json: false
`, version)

	if err := os.WriteFile(configPath, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("failed to write config.yml: %w", err)
	}

	return nil
}

// createWorkflowsToml writes the default workflow catalogue. Existing
// catalogues are preserved.
func createWorkflowsToml(civicDir string) error {
	workflowPath := filepath.Join(civicDir, "workflows.toml")

	if _, err := os.Stat(workflowPath); err == nil {
		return nil
	}

	if err := os.WriteFile(workflowPath, []byte(workflows.DefaultTOML), 0600); err != nil {
		return fmt.Errorf("failed to write workflows.toml: %w", err)
	}

	return nil
}

// createReadme writes a short orientation README next to the record
// directories.
func createReadme(root string) error {
	readmePath := filepath.Join(root, "README.md")

	if _, err := os.Stat(readmePath); err == nil {
		return nil
	}

	readmeTemplate := `# Civic Records

This repository manages municipal records with **civic**: markdown files
under git, indexed in a local SQLite database, with every lifecycle
change run as an all-or-nothing operation.

## Layout

` + "```" + `
records/<type>/       active records (one markdown file each)
archive/<type>/<year> archived records
templates/            record templates (override in .civic/templates/)
.civic/               configuration, workflows, database, hooks, logs
` + "```" + `

## Essential commands

` + "```bash" + `
# Create a record from its default template
civic create policy "Open Data Policy"

# Change fields or move it through the workflow
civic update policy-open-data-policy --set status=proposed

# Inspect and search
civic show policy-open-data-policy
civic list --type policy --status draft
civic list --search "open data"

# Retire a record
civic archive policy-open-data-policy

# Check saga state, locks, and metrics
civic status
` + "```" + `

Record files are plain markdown with YAML front matter; edit them with
any editor and run ` + "`civic index --rebuild`" + ` to resynchronize the
database.
`

	// #nosec G306 - README needs to be readable
	if err := os.WriteFile(readmePath, []byte(readmeTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write README.md: %w", err)
	}

	return nil
}

// baseTemplateMd is the parent template every scaffolded type extends.
// The first front matter block is template metadata; the body is the
// record file that Render produces, including the record's own front
// matter.
const baseTemplateMd = `---
name: default
type: base
required_fields:
  - title
  - author
validators:
  - field: created
    type: date
  - field: updated
    type: date
  - field: version
    type: semver
---
---
id: {{id}}
title: '{{title}}'
type: {{type}}
status: {{status}}
author: {{author}}
version: '{{version}}'
created: '{{date}}'
updated: '{{date}}'
---

# {{title}}

## Purpose

_Describe why this {{type}} exists._

## Provisions

_Describe what this {{type}} establishes._
`

const bylawTemplateMd = `---
name: default
type: bylaw
extends: base/default
required_fields:
  - bylaw_number
sections:
  - name: purpose
    title: Purpose
    required: true
  - name: provisions
    title: Provisions
    required: true
  - name: penalties
    title: Penalties
---
---
id: {{id}}
title: '{{title}}'
type: bylaw
status: {{status}}
author: {{author}}
version: '{{version}}'
created: '{{date}}'
updated: '{{date}}'
bylaw_number: '{{bylaw_number}}'
---

# Bylaw: {{title}}

## Purpose

_State the intent of this bylaw._

## Provisions

_Enumerate the binding provisions._

## Penalties

_Describe enforcement and penalties, if any._
`

const ordinanceTemplateMd = `---
name: default
type: ordinance
extends: base/default
sections:
  - name: purpose
    title: Purpose
    required: true
  - name: provisions
    title: Provisions
    required: true
  - name: effective-date
    title: Effective Date
---
---
id: {{id}}
title: '{{title}}'
type: ordinance
status: {{status}}
author: {{author}}
version: '{{version}}'
created: '{{date}}'
updated: '{{date}}'
---

# Ordinance: {{title}}

## Purpose

_State the intent of this ordinance._

## Provisions

_Enumerate the binding provisions._

## Effective Date

_When this ordinance takes effect._
`

const policyTemplateMd = `---
name: default
type: policy
extends: base/default
required_fields:
  - policy_number
sections:
  - name: purpose
    title: Purpose
    required: true
  - name: scope
    title: Scope
    required: true
  - name: policy-statement
    title: Policy Statement
    required: true
---
---
id: {{id}}
title: '{{title}}'
type: policy
status: {{status}}
author: {{author}}
version: '{{version}}'
created: '{{date}}'
updated: '{{date}}'
policy_number: '{{policy_number}}'
---

# Policy: {{title}}

## Purpose

_Why this policy exists._

## Scope

_Who and what this policy applies to._

## Policy Statement

_The policy itself._
`

const proclamationTemplateMd = `---
name: default
type: proclamation
extends: base/default
sections:
  - name: whereas
    title: Whereas
    required: true
  - name: proclamation
    title: Proclamation
    required: true
---
---
id: {{id}}
title: '{{title}}'
type: proclamation
status: {{status}}
author: {{author}}
version: '{{version}}'
created: '{{date}}'
updated: '{{date}}'
---

# Proclamation: {{title}}

## Whereas

_The recitals supporting this proclamation._

## Proclamation

_The proclamation itself._
`

const resolutionTemplateMd = `---
name: default
type: resolution
extends: base/default
required_fields:
  - resolution_number
sections:
  - name: whereas
    title: Whereas
    required: true
  - name: resolved
    title: Resolved
    required: true
---
---
id: {{id}}
title: '{{title}}'
type: resolution
status: {{status}}
author: {{author}}
version: '{{version}}'
created: '{{date}}'
updated: '{{date}}'
resolution_number: '{{resolution_number}}'
---

# Resolution: {{title}}

## Whereas

_The recitals supporting this resolution._

## Resolved

_What the council resolves._
`

const minutesTemplateMd = `---
name: default
type: minutes
extends: base/default
sections:
  - name: attendees
    title: Attendees
    required: true
  - name: agenda
    title: Agenda
    required: true
  - name: decisions
    title: Decisions
---
---
id: {{id}}
title: '{{title}}'
type: minutes
status: {{status}}
author: {{author}}
version: '{{version}}'
created: '{{date}}'
updated: '{{date}}'
meeting_date: '{{date}}'
---

# Minutes: {{title}}

## Attendees

_Who attended._

## Agenda

_Items discussed._

## Decisions

_Motions and outcomes._
`

// createDefaultTemplates scaffolds the stock templates under
// templatesDir, one default per record type plus the shared base.
// Existing files are left alone; the returned list names what was
// written.
func createDefaultTemplates(templatesDir string) ([]string, error) {
	stock := []struct {
		rel     string
		content string
	}{
		{"base/default.md", baseTemplateMd},
		{"bylaw/default.md", bylawTemplateMd},
		{"minutes/default.md", minutesTemplateMd},
		{"ordinance/default.md", ordinanceTemplateMd},
		{"policy/default.md", policyTemplateMd},
		{"proclamation/default.md", proclamationTemplateMd},
		{"resolution/default.md", resolutionTemplateMd},
	}

	var created []string
	for _, s := range stock {
		rel, content := s.rel, s.content
		path := filepath.Join(templatesDir, filepath.FromSlash(rel))
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return created, fmt.Errorf("failed to create template directory: %w", err)
		}
		// #nosec G306 - templates are content, not secrets
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return created, fmt.Errorf("failed to write template %s: %w", rel, err)
		}
		created = append(created, rel)
	}
	return created, nil
}
