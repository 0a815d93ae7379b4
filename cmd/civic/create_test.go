package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CivicPress/civicpress-sub010/internal/records"
)

func resetCreateFlags(t *testing.T) {
	t.Helper()
	_ = createCmd.Flags().Set("template", "default")
	_ = createCmd.Flags().Set("author", "")
	_ = createCmd.Flags().Set("draft", "false")
	_ = createCmd.Flags().Set("dry-run", "false")
	_ = createCmd.Flags().Set("interactive", "false")
}

func TestCreateRecordEndToEnd(t *testing.T) {
	root := setupTestRepo(t)
	resetCreateFlags(t)

	output := runCommand(t, "create", "policy", "Open Data Policy", "--author", "Ada Lovelace")

	if !strings.Contains(output, "Created record: policy-open-data-policy") {
		t.Errorf("unexpected create output:\n%s", output)
	}

	// The record file lands under records/<type>/ and parses back.
	path := filepath.Join(root, "records", "policy", "policy-open-data-policy.md")
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("record file was not written: %v", err)
	}
	rec, err := records.Parse(string(content), path)
	if err != nil {
		t.Fatalf("record file does not parse: %v", err)
	}
	if rec.Title != "Open Data Policy" {
		t.Errorf("title = %q, want Open Data Policy", rec.Title)
	}
	if rec.Author != "Ada Lovelace" {
		t.Errorf("author = %q, want Ada Lovelace", rec.Author)
	}
	if rec.Status != "draft" {
		t.Errorf("status = %q, want draft", rec.Status)
	}

	// The file was committed.
	log := runGit(t, root, "log", "--oneline")
	if !strings.Contains(log, "Create record: Open Data Policy") {
		t.Errorf("expected create commit in git log, got:\n%s", log)
	}
}

func TestCreateJSONOutput(t *testing.T) {
	setupTestRepo(t)
	resetCreateFlags(t)

	output := runCommand(t, "create", "bylaw", "Noise Curfew", "--author", "Clerk", "--json")

	var rec records.Record
	if err := json.Unmarshal([]byte(output), &rec); err != nil {
		t.Fatalf("create --json output is not a record: %v\n%s", err, output)
	}
	if rec.ID != "bylaw-noise-curfew" {
		t.Errorf("id = %q, want bylaw-noise-curfew", rec.ID)
	}
	if rec.Commit == "" {
		t.Error("record should carry the commit hash")
	}
	if rec.Path != "records/bylaw/bylaw-noise-curfew.md" {
		t.Errorf("path = %q", rec.Path)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	root := setupTestRepo(t)
	resetCreateFlags(t)

	runCommand(t, "create", "policy", "Tree Protection", "--author", "Clerk")
	output := runCommand(t, "create", "policy", "Tree Protection", "--author", "Clerk")

	if !strings.Contains(output, "replayed from a previous run") {
		t.Errorf("second identical create should replay, got:\n%s", output)
	}

	// Exactly one create commit for the record.
	log := runGit(t, root, "log", "--oneline")
	if n := strings.Count(log, "Create record: Tree Protection"); n != 1 {
		t.Errorf("expected 1 create commit, got %d:\n%s", n, log)
	}
}

func TestCreateDryRunWritesNothing(t *testing.T) {
	root := setupTestRepo(t)
	resetCreateFlags(t)

	output := runCommand(t, "create", "resolution", "Budget 2026", "--dry-run")

	if !strings.Contains(output, "title: 'Budget 2026'") {
		t.Errorf("dry-run should print the rendered record, got:\n%s", output)
	}
	if _, err := os.Stat(filepath.Join(root, "records", "resolution", "resolution-budget-2026.md")); err == nil {
		t.Error("dry-run must not write the record file")
	}
}

func TestCreateDraftSkipsSaga(t *testing.T) {
	root := setupTestRepo(t)
	resetCreateFlags(t)

	output := runCommand(t, "create", "minutes", "Council Session", "--draft", "--author", "Clerk")

	if !strings.Contains(output, "Created draft: minutes-council-session") {
		t.Errorf("unexpected draft output:\n%s", output)
	}
	if !strings.Contains(output, "civic publish minutes-council-session") {
		t.Errorf("draft output should hint at publish, got:\n%s", output)
	}

	// Drafts live in the database only.
	if _, err := os.Stat(filepath.Join(root, "records", "minutes", "minutes-council-session.md")); err == nil {
		t.Error("draft must not write a record file")
	}

	env := mustOpenEnv(rootCtx)
	defer env.Close()
	draft, err := env.store.GetDraft(rootCtx, "minutes-council-session")
	if err != nil || draft == nil {
		t.Fatalf("draft not stored: %v", err)
	}
	if draft.Title != "Council Session" {
		t.Errorf("draft title = %q", draft.Title)
	}
}

func TestValidRecordType(t *testing.T) {
	setupTestEnvOnly(t)

	for _, knownType := range []string{"bylaw", "ordinance", "policy", "proclamation", "resolution", "minutes"} {
		if !validRecordType(knownType) {
			t.Errorf("%s should be a valid record type", knownType)
		}
	}
	for _, unknown := range []string{"", "memo", "POLICY", "by-law"} {
		if validRecordType(unknown) {
			t.Errorf("%q should not be a valid record type", unknown)
		}
	}
}
