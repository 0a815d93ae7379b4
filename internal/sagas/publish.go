package sagas

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/CivicPress/civicpress-sub010/internal/fsutil"
	"github.com/CivicPress/civicpress-sub010/internal/hooks"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
)

// PublishDraft builds the draft-promotion saga: move the draft row
// into the records table (updating in place when the id already
// exists), write the record file, commit it, delete the draft, index,
// and notify. Compensation data is snapshotted as the steps run: the
// pre-existing record's columns, the previous file content, and the
// deleted draft itself all land in step results so rollback can
// restore them.
func PublishDraft(deps *Dependencies) *saga.Definition {
	return &saga.Definition{
		Type:    TypePublishDraft,
		Version: "1.0.0",
		Validate: func(values map[string]interface{}) error {
			if id, _ := values[keyDraftID].(string); id == "" {
				return fmt.Errorf("publish requires a draft id")
			}
			return nil
		},
		Steps: []*saga.Step{
			saga.NewStep("MoveToRecords", deps.moveToRecords, deps.compensateMoveToRecords),
			saga.NewStep("CreateOrUpdateFile", deps.createOrUpdateFile, deps.compensateCreateOrUpdateFile),
			saga.NewStep("CommitToGit", deps.commitPublish, nil),
			saga.NewStep("DeleteDraft", deps.deleteDraft, deps.compensateDeleteDraft),
			saga.NewStep("QueueIndexing", deps.queueIndexingStep, nil),
			saga.NewStep("EmitHooks", deps.emitPublished, nil),
		},
	}
}

// NewPublishRequest builds the coordinator request for publishing a
// draft. The draft id doubles as the lock key.
func NewPublishRequest(draftID, user string) saga.Request {
	return saga.Request{
		Context: map[string]interface{}{keyDraftID: draftID},
		User:    user,
	}
}

// moveToRecords promotes the draft row. A record with the same id is
// updated in place, carrying the draft's title, content, status, and
// metadata and clearing the workflow state; otherwise a new record is
// created from the draft.
func (d *Dependencies) moveToRecords(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	draftID := sctx.StringValue(keyDraftID)
	draft, err := d.Store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, fmt.Errorf("draft not found: %s", draftID)
	}

	existing, err := d.Store.GetRecord(ctx, draft.ID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		rec := draft.Clone()
		rec.WorkflowState = ""
		if rec.Path == "" {
			rec.Path = records.RecordPath(rec.Type, rec.ID)
		}
		if err := d.Store.CreateRecord(ctx, rec); err != nil {
			return nil, err
		}
		sctx.SetValue(keyRecord, rec)
		return map[string]interface{}{"record_id": rec.ID, "created": true}, nil
	}

	original := existing.Clone()
	rec := existing.Clone()
	rec.Title = draft.Title
	rec.Content = draft.Content
	rec.Status = draft.Status
	rec.WorkflowState = ""
	rec.Metadata = nil
	for k, v := range draft.Metadata {
		rec.SetMeta(k, v)
	}
	rec.Updated = records.Today()

	row := map[string]interface{}{
		"title":          rec.Title,
		"content":        rec.Content,
		"status":         rec.Status,
		"workflow_state": "",
		"metadata":       metadataValue(rec.Metadata),
		"updated_at":     rec.Updated,
	}
	originalFields := originalColumnValues(original,
		"title", "content", "status", "workflow_state", "metadata", "updated_at")

	if err := d.Store.UpdateRecord(ctx, rec.ID, row); err != nil {
		return nil, err
	}
	sctx.SetValue(keyRecord, rec)
	sctx.SetValue(keyOriginal, original)
	return map[string]interface{}{
		"record_id":       rec.ID,
		"created":         false,
		"original_fields": originalFields,
	}, nil
}

// compensateMoveToRecords deletes a row the step created, or restores
// the column values it overwrote.
func (d *Dependencies) compensateMoveToRecords(ctx context.Context, sctx *saga.Context, result *saga.StepResult) error {
	id := stepString(result, "record_id")
	if id == "" {
		id = sctx.StringValue(keyDraftID)
	}
	if stepBool(result, "created") {
		existing, err := d.Store.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		return d.Store.DeleteRecord(ctx, id)
	}
	fields := stepFields(result, "original_fields")
	if len(fields) == 0 {
		return nil
	}
	return d.Store.UpdateRecord(ctx, id, fields)
}

// createOrUpdateFile writes the published record file, snapshotting
// any previous content into the step result so compensation puts it
// back instead of deleting.
func (d *Dependencies) createOrUpdateFile(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		return nil, err
	}
	if rec.Path == "" {
		rec.Path = records.RecordPath(rec.Type, rec.ID)
	}

	data := map[string]interface{}{"path": rec.Path}
	if prev, err := os.ReadFile(d.abs(rec.Path)); err == nil {
		data["existed"] = true
		data["previous_content"] = string(prev)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read existing file %s: %w", rec.Path, err)
	}

	if _, err := d.writeRecordFile(rec); err != nil {
		return nil, err
	}
	return data, nil
}

func (d *Dependencies) compensateCreateOrUpdateFile(ctx context.Context, sctx *saga.Context, result *saga.StepResult) error {
	rel := stepString(result, "path")
	if rel == "" {
		return nil
	}
	if stepBool(result, "existed") {
		return fsutil.WriteFileAtomic(d.abs(rel), []byte(stepString(result, "previous_content")), 0o644)
	}
	return fsutil.RemoveIfExists(d.abs(rel))
}

// commitPublish commits the published file. The message reads as a
// publish for a new record and as an update over an existing one.
func (d *Dependencies) commitPublish(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		return nil, err
	}
	rel := stepString(sctx.Result("CreateOrUpdateFile"), "path")
	if rel == "" {
		rel = rec.Path
	}
	message := "Publish record: " + rec.Title
	if !stepBool(sctx.Result("MoveToRecords"), "created") {
		message = "Update record: " + rec.Title
	}
	hash, err := d.commitPaths(ctx, rec.ID, message, rel)
	if err != nil {
		return nil, err
	}
	rec.Commit = hash
	return map[string]interface{}{"commit_hash": hash}, nil
}

// deleteDraft removes the draft row, keeping a JSON snapshot in the
// step result so compensation can re-insert it.
func (d *Dependencies) deleteDraft(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	draftID := sctx.StringValue(keyDraftID)
	draft, err := d.Store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return map[string]interface{}{"draft_id": draftID, "deleted": false}, nil
	}

	snapshot, err := draftSnapshot(draft)
	if err != nil {
		return nil, err
	}
	if err := d.Store.DeleteDraft(ctx, draftID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"draft_id": draftID, "deleted": true, "draft": snapshot}, nil
}

// compensateDeleteDraft re-inserts the deleted draft from its
// snapshot. A draft that reappeared in the meantime is left alone.
func (d *Dependencies) compensateDeleteDraft(ctx context.Context, sctx *saga.Context, result *saga.StepResult) error {
	if !stepBool(result, "deleted") {
		return nil
	}
	v, ok := result.Data["draft"]
	if !ok {
		return nil
	}
	draft, err := recordValue(v)
	if err != nil {
		return err
	}
	existing, err := d.Store.GetDraft(ctx, draft.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return d.Store.CreateDraft(ctx, draft)
}

// draftSnapshot flattens a draft into a JSON-safe map for the step
// result.
func draftSnapshot(draft *records.Draft) (map[string]interface{}, error) {
	data, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot draft %s: %w", draft.ID, err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to snapshot draft %s: %w", draft.ID, err)
	}
	return out, nil
}

func (d *Dependencies) emitPublished(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		d.logf("hook emission skipped: %v", err)
		return map[string]interface{}{"emitted": false}, nil
	}
	return d.emitEvent(hooks.EventRecordPublished, hooks.Payload{RecordID: rec.ID, Record: rec}), nil
}
