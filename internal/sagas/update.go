package sagas

import (
	"context"
	"fmt"

	"github.com/CivicPress/civicpress-sub010/internal/hooks"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
)

// UpdateRecord builds the record-update saga: apply field updates to
// the row, rewrite the file, commit, re-index, and notify. The first
// step snapshots the original column values so compensation can
// restore them with one update.
func UpdateRecord(deps *Dependencies) *saga.Definition {
	return &saga.Definition{
		Type:    TypeUpdateRecord,
		Version: "1.0.0",
		Validate: func(values map[string]interface{}) error {
			if id, _ := values[keyRecordID].(string); id == "" {
				return fmt.Errorf("update requires a record id")
			}
			updates, ok := values[keyUpdates].(map[string]interface{})
			if !ok || len(updates) == 0 {
				return fmt.Errorf("update requires at least one field")
			}
			return nil
		},
		Steps: []*saga.Step{
			saga.NewStep("UpdateInRecords", deps.updateInRecords, deps.compensateRestoreFields),
			saga.NewStep("UpdateFile", deps.updateFile, deps.compensateUpdateFile),
			saga.NewStep("CommitToGit", deps.commitUpdate, nil),
			saga.NewStep("QueueReIndexing", deps.queueIndexingStep, nil),
			saga.NewStep("EmitHooks", deps.emitUpdated, nil),
		},
	}
}

// NewUpdateRequest builds the coordinator request for updating a
// record's fields. Keys name header fields; unknown keys merge into
// metadata, where a nil value deletes the entry.
func NewUpdateRequest(recordID string, updates map[string]interface{}, user string) saga.Request {
	return saga.Request{
		Context: map[string]interface{}{
			keyRecordID: recordID,
			keyUpdates:  updates,
		},
		User: user,
	}
}

// updateInRecords loads the record, applies the updates in memory and
// to the row, and snapshots the overwritten columns for compensation.
// Status changes go through the workflow catalogue when one is
// configured.
func (d *Dependencies) updateInRecords(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	id := sctx.StringValue(keyRecordID)
	rec, err := d.Store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record not found: %s", id)
	}
	updates, err := contextUpdates(sctx)
	if err != nil {
		return nil, err
	}

	original := rec.Clone()
	if next, ok := updates["status"].(string); ok && d.Workflows != nil {
		if !d.Workflows.CanTransition(original.Status, next) {
			return nil, fmt.Errorf("status %q cannot transition to %q", original.Status, next)
		}
	}

	row, err := applyFieldUpdates(rec, updates)
	if err != nil {
		return nil, err
	}
	if _, ok := row["updated_at"]; !ok {
		rec.Updated = records.Today()
		row["updated_at"] = rec.Updated
	}

	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	originalFields := originalColumnValues(original, keys...)

	if err := d.Store.UpdateRecord(ctx, id, row); err != nil {
		return nil, err
	}

	sctx.SetValue(keyRecord, rec)
	sctx.SetValue(keyOriginal, original)
	return map[string]interface{}{
		"record_id":       id,
		"original_fields": originalFields,
	}, nil
}

// updateFile rewrites the record file from the updated state.
func (d *Dependencies) updateFile(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		return nil, err
	}
	rel, err := d.writeRecordFile(rec)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"path": rel}, nil
}

// compensateUpdateFile re-serializes the original record over the
// updated file.
func (d *Dependencies) compensateUpdateFile(ctx context.Context, sctx *saga.Context, result *saga.StepResult) error {
	original, err := contextRecord(sctx, keyOriginal)
	if err != nil {
		return err
	}
	_, err = d.serializeAndWrite(original)
	return err
}

func (d *Dependencies) commitUpdate(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		return nil, err
	}
	rel := stepString(sctx.Result("UpdateFile"), "path")
	if rel == "" {
		rel = rec.Path
	}
	hash, err := d.commitPaths(ctx, rec.ID, "Update record: "+rec.Title, rel)
	if err != nil {
		return nil, err
	}
	rec.Commit = hash
	return map[string]interface{}{"commit_hash": hash}, nil
}

func (d *Dependencies) emitUpdated(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		d.logf("hook emission skipped: %v", err)
		return map[string]interface{}{"emitted": false}, nil
	}
	return d.emitEvent(hooks.EventRecordUpdated, hooks.Payload{RecordID: rec.ID, Record: rec}), nil
}
