package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestArchiveRecordEndToEnd(t *testing.T) {
	root := setupTestRepo(t)
	resetCreateFlags(t)

	runCommand(t, "create", "bylaw", "Old Curfew", "--author", "Clerk")
	output := runCommand(t, "archive", "bylaw-old-curfew", "--yes")

	if !strings.Contains(output, "Archived record: bylaw-old-curfew") {
		t.Errorf("unexpected archive output:\n%s", output)
	}

	year := time.Now().Format("2006")
	archived := filepath.Join(root, "archive", "bylaw", year, "bylaw-old-curfew.md")
	if _, err := os.Stat(archived); err != nil {
		t.Errorf("archived file missing at %s: %v", archived, err)
	}
	if _, err := os.Stat(filepath.Join(root, "records", "bylaw", "bylaw-old-curfew.md")); !os.IsNotExist(err) {
		t.Error("active record file should be gone after archive")
	}

	env := mustOpenEnv(rootCtx)
	stored, err := env.store.GetRecord(rootCtx, "bylaw-old-curfew")
	if err != nil || stored == nil {
		t.Fatalf("archived record missing from store: %v", err)
	}
	if stored.Status != "archived" {
		t.Errorf("status = %q, want archived", stored.Status)
	}
	if stored.Meta("archived_by") == nil || stored.Meta("archived_at") == nil {
		t.Errorf("archive metadata not recorded: %v", stored.Metadata)
	}
	env.Close()

	// Archived records drop out of default listings.
	resetListFlags(t)
	listOutput := runCommand(t, "list")
	if strings.Contains(listOutput, "bylaw-old-curfew") {
		t.Errorf("archived record should not appear in listings:\n%s", listOutput)
	}

	log := runGit(t, root, "log", "--oneline")
	if !strings.Contains(log, "Archive record: Old Curfew") {
		t.Errorf("expected archive commit, got:\n%s", log)
	}
}

func TestArchiveRepeatIsNotAnError(t *testing.T) {
	setupTestRepo(t)
	resetCreateFlags(t)

	runCommand(t, "create", "policy", "Sunset Clause", "--author", "Clerk")
	runCommand(t, "archive", "policy-sunset-clause", "--yes")

	output := runCommand(t, "archive", "policy-sunset-clause", "--yes")
	if !strings.Contains(output, "already archived") {
		t.Errorf("repeat archive should report already archived, got:\n%s", output)
	}
}
