package sagas

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CivicPress/civicpress-sub010/internal/hooks"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
)

func seedDraft(t *testing.T, env *sagaEnv, draft *records.Draft) {
	t.Helper()
	if err := env.store.CreateDraft(context.Background(), draft); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
}

func TestPublishDraftCreatesRecord(t *testing.T) {
	env := newSagaEnv(t)
	ctx := context.Background()

	seedDraft(t, env, &records.Draft{
		ID:            "resolution-budget",
		Title:         "Budget 2026",
		Type:          "resolution",
		Status:        "approved",
		Author:        "clerk",
		Content:       "Adopted at the January session.",
		WorkflowState: "pending_publish",
		Created:       "2026-01-15",
		Updated:       "2026-01-15",
	})

	res, err := env.coord.Execute(ctx, PublishDraft(env.deps), NewPublishRequest("resolution-budget", "clerk"))
	if err != nil {
		t.Fatalf("publish saga failed: %v", err)
	}
	if res.Status != saga.StatusCompleted {
		t.Fatalf("status = %s, want %s", res.Status, saga.StatusCompleted)
	}
	if len(res.StepResults) != 6 {
		t.Fatalf("step results = %d, want 6", len(res.StepResults))
	}

	row, err := env.store.GetRecord(ctx, "resolution-budget")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if row == nil {
		t.Fatal("published record missing")
	}
	if row.Title != "Budget 2026" || row.Status != "approved" {
		t.Errorf("row = %q/%q, want Budget 2026/approved", row.Title, row.Status)
	}
	if row.WorkflowState != "" {
		t.Errorf("workflow state should be cleared, got %q", row.WorkflowState)
	}

	data, err := os.ReadFile(filepath.Join(env.root, "records", "resolution", "resolution-budget.md"))
	if err != nil {
		t.Fatalf("record file: %v", err)
	}
	if !strings.Contains(string(data), "title: Budget 2026") {
		t.Errorf("file content:\n%s", data)
	}

	if msg := runGit(t, env.root, "log", "-1", "--format=%s"); msg != "Publish record: Budget 2026" {
		t.Errorf("commit message = %q", msg)
	}

	draft, err := env.store.GetDraft(ctx, "resolution-budget")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if draft != nil {
		t.Error("draft should be deleted after publish")
	}

	if events := env.emitter.byEvent(hooks.EventRecordPublished); len(events) != 1 {
		t.Errorf("record:published emitted %d times, want 1", len(events))
	}
}

func TestPublishDraftUpdatesExistingRecord(t *testing.T) {
	env := newSagaEnv(t)
	ctx := context.Background()
	env.createSeedRecord(t, "policy-open-data", "Open Data", "policy")

	seedDraft(t, env, &records.Draft{
		ID:       "policy-open-data",
		Title:    "Open Data v2",
		Type:     "policy",
		Status:   "active",
		Author:   "clerk",
		Content:  "Second edition.",
		Metadata: map[string]interface{}{"reviewed_by": "counsel"},
		Created:  "2026-01-15",
		Updated:  "2026-02-01",
	})

	res, err := env.coord.Execute(ctx, PublishDraft(env.deps), NewPublishRequest("policy-open-data", "clerk"))
	if err != nil {
		t.Fatalf("publish saga failed: %v", err)
	}
	if res.Status != saga.StatusCompleted {
		t.Fatalf("status = %s, want %s", res.Status, saga.StatusCompleted)
	}

	row, err := env.store.GetRecord(ctx, "policy-open-data")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if row.Title != "Open Data v2" || row.Status != "active" {
		t.Errorf("row = %q/%q, want Open Data v2/active", row.Title, row.Status)
	}
	if row.Content != "Second edition." {
		t.Errorf("content = %q", row.Content)
	}
	if by, _ := row.Meta("reviewed_by").(string); by != "counsel" {
		t.Errorf("reviewed_by = %v", row.Meta("reviewed_by"))
	}

	data, err := os.ReadFile(filepath.Join(env.root, "records", "policy", "policy-open-data.md"))
	if err != nil {
		t.Fatalf("record file: %v", err)
	}
	if !strings.Contains(string(data), "title: Open Data v2") {
		t.Errorf("file not rewritten:\n%s", data)
	}

	if msg := runGit(t, env.root, "log", "-1", "--format=%s"); msg != "Update record: Open Data v2" {
		t.Errorf("commit message = %q", msg)
	}

	draft, err := env.store.GetDraft(ctx, "policy-open-data")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if draft != nil {
		t.Error("draft should be deleted after publish")
	}
}

func TestPublishDraftCommitFailureRestoresRecordAndFile(t *testing.T) {
	env := newSagaEnv(t)
	ctx := context.Background()
	env.createSeedRecord(t, "policy-open-data", "Open Data", "policy")

	seedDraft(t, env, &records.Draft{
		ID: "policy-open-data", Title: "Open Data v2", Type: "policy",
		Status: "active", Author: "clerk", Content: "Second edition.",
	})

	if err := os.RemoveAll(filepath.Join(env.root, ".git")); err != nil {
		t.Fatalf("failed to remove .git: %v", err)
	}

	res, err := env.coord.Execute(ctx, PublishDraft(env.deps), NewPublishRequest("policy-open-data", "clerk"))
	if err == nil {
		t.Fatal("expected commit failure")
	}
	if !strings.Contains(err.Error(), "CommitToGit") {
		t.Errorf("error does not name the failed step: %v", err)
	}
	if res.Status != saga.StatusCompensated {
		t.Errorf("status = %s, want %s", res.Status, saga.StatusCompensated)
	}
	if res.CompensationStatus != saga.CompensationCompleted {
		t.Errorf("compensation = %s, want %s", res.CompensationStatus, saga.CompensationCompleted)
	}

	row, err := env.store.GetRecord(ctx, "policy-open-data")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if row.Title != "Open Data" || row.Status != "draft" {
		t.Errorf("row = %q/%q, want the original Open Data/draft", row.Title, row.Status)
	}

	data, err := os.ReadFile(filepath.Join(env.root, "records", "policy", "policy-open-data.md"))
	if err != nil {
		t.Fatalf("record file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "title: Open Data") || strings.Contains(content, "Open Data v2") {
		t.Errorf("file not restored:\n%s", content)
	}

	draft, err := env.store.GetDraft(ctx, "policy-open-data")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if draft == nil {
		t.Error("draft should survive a rolled-back publish")
	}
}

func TestPublishDraftCommitFailureRemovesCreatedRecord(t *testing.T) {
	env := newSagaEnv(t)
	ctx := context.Background()

	seedDraft(t, env, &records.Draft{
		ID: "resolution-budget", Title: "Budget 2026", Type: "resolution",
		Status: "approved", Author: "clerk", Content: "Adopted.",
	})

	if err := os.RemoveAll(filepath.Join(env.root, ".git")); err != nil {
		t.Fatalf("failed to remove .git: %v", err)
	}

	res, err := env.coord.Execute(ctx, PublishDraft(env.deps), NewPublishRequest("resolution-budget", "clerk"))
	if err == nil {
		t.Fatal("expected commit failure")
	}
	if res.Status != saga.StatusCompensated {
		t.Errorf("status = %s, want %s", res.Status, saga.StatusCompensated)
	}

	row, err := env.store.GetRecord(ctx, "resolution-budget")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if row != nil {
		t.Error("created row should have been deleted by compensation")
	}
	if _, err := os.Stat(filepath.Join(env.root, "records", "resolution", "resolution-budget.md")); !os.IsNotExist(err) {
		t.Error("created file should have been deleted by compensation")
	}

	draft, err := env.store.GetDraft(ctx, "resolution-budget")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if draft == nil {
		t.Error("draft should survive a rolled-back publish")
	}
}

func TestPublishDraftNotFound(t *testing.T) {
	env := newSagaEnv(t)

	_, err := env.coord.Execute(context.Background(), PublishDraft(env.deps), NewPublishRequest("resolution-ghost", "clerk"))
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if !strings.Contains(err.Error(), "draft not found: resolution-ghost") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDeleteDraftCompensationRestoresDraft(t *testing.T) {
	env := newSagaEnv(t)
	ctx := context.Background()

	seedDraft(t, env, &records.Draft{
		ID: "minutes-jan", Title: "January Minutes", Type: "minutes",
		Status: "draft", Author: "clerk", Content: "Roll call.",
	})

	sctx := &saga.Context{Values: map[string]interface{}{keyDraftID: "minutes-jan"}}
	data, err := env.deps.deleteDraft(ctx, sctx)
	if err != nil {
		t.Fatalf("delete draft step: %v", err)
	}
	if deleted, _ := data["deleted"].(bool); !deleted {
		t.Fatalf("step data = %v, want deleted true", data)
	}

	gone, err := env.store.GetDraft(ctx, "minutes-jan")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if gone != nil {
		t.Fatal("draft should be gone after the step")
	}

	result := &saga.StepResult{Step: "DeleteDraft", Status: saga.StepCompleted, Data: data}
	if err := env.deps.compensateDeleteDraft(ctx, sctx, result); err != nil {
		t.Fatalf("compensate delete draft: %v", err)
	}

	restored, err := env.store.GetDraft(ctx, "minutes-jan")
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if restored == nil {
		t.Fatal("draft should be restored by compensation")
	}
	if restored.Title != "January Minutes" || restored.Content != "Roll call." {
		t.Errorf("restored draft = %q/%q", restored.Title, restored.Content)
	}
}
