package workflows

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCatalogue(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflows.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
	return path
}

func TestLoadDefaultTOML(t *testing.T) {
	path := writeCatalogue(t, DefaultTOML)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(c.Statuses) != 7 {
		t.Errorf("statuses = %d, want 7", len(c.Statuses))
	}
	if !c.ValidStatus("draft") || !c.ValidStatus("archived") {
		t.Error("expected draft and archived to be valid statuses")
	}
	if c.ValidStatus("bogus") {
		t.Error("bogus should not be a valid status")
	}
}

func TestLoadMissingFileYieldsDefault(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c == nil || len(c.Statuses) == 0 {
		t.Fatal("expected default catalogue")
	}
}

func TestLoadRejectsUndeclaredStatus(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "undeclared target",
			content: `statuses = ["draft", "active"]
[transitions]
draft = ["published"]
`,
		},
		{
			name: "undeclared source",
			content: `statuses = ["draft", "active"]
[transitions]
published = ["draft"]
`,
		},
		{
			name:    "no statuses",
			content: `statuses = []`,
		},
		{
			name:    "malformed toml",
			content: `statuses = [`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCatalogue(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	c := Default()

	tests := []struct {
		from, to string
		want     bool
	}{
		{"draft", "proposed", true},
		{"draft", "active", true},
		{"active", "archived", true},
		{"archived", "draft", false},
		{"draft", "archived", false},
		{"bogus", "draft", false},
		{"draft", "bogus", false},
	}

	for _, tt := range tests {
		if got := c.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransitionWithoutTable(t *testing.T) {
	c := &Catalogue{Statuses: []string{"draft", "active"}}

	if !c.CanTransition("draft", "active") {
		t.Error("catalogue without transitions should allow any declared move")
	}
	if c.CanTransition("draft", "published") {
		t.Error("undeclared status should still be rejected")
	}
}

func TestTransitionsFrom(t *testing.T) {
	c := Default()

	from := c.TransitionsFrom("published")
	if len(from) != 1 || from[0] != "archived" {
		t.Errorf("TransitionsFrom(published) = %v, want [archived]", from)
	}
	if got := c.TransitionsFrom("archived"); len(got) != 0 {
		t.Errorf("TransitionsFrom(archived) = %v, want none", got)
	}
}
