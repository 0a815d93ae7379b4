package sagas

import (
	"context"
	"fmt"
	"time"

	"github.com/CivicPress/civicpress-sub010/internal/fsutil"
	"github.com/CivicPress/civicpress-sub010/internal/hooks"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
)

// ArchiveRecord builds the archival saga: mark the row archived, move
// the file under archive/, commit the move, drop the record from its
// type listing, and notify. The commit stages both the old and new
// paths so git records the relocation.
func ArchiveRecord(deps *Dependencies) *saga.Definition {
	remove := saga.NewStep("RemoveFromIndex", deps.removeFromIndexStep, nil)
	// Regenerating a listing is repeatable; the name trips the critical
	// heuristic only because it contains "move".
	remove.Critical = false

	return &saga.Definition{
		Type:    TypeArchiveRecord,
		Version: "1.0.0",
		Validate: func(values map[string]interface{}) error {
			if id, _ := values[keyRecordID].(string); id == "" {
				return fmt.Errorf("archive requires a record id")
			}
			return nil
		},
		Steps: []*saga.Step{
			saga.NewStep("UpdateStatusToArchived", deps.updateStatusToArchived, deps.compensateRestoreFields),
			saga.NewStep("MoveFileToArchive", deps.moveFileToArchive, deps.compensateMoveFileToArchive),
			saga.NewStep("CommitToGit", deps.commitArchive, nil),
			remove,
			saga.NewStep("EmitHooks", deps.emitArchived, nil),
		},
	}
}

// NewArchiveRequest builds the coordinator request for archiving a
// record.
func NewArchiveRequest(recordID, user string) saga.Request {
	return saga.Request{
		Context: map[string]interface{}{keyRecordID: recordID},
		User:    user,
	}
}

// updateStatusToArchived sets the row status to archived and stamps
// who archived it and when, snapshotting the overwritten columns.
func (d *Dependencies) updateStatusToArchived(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	id := sctx.StringValue(keyRecordID)
	rec, err := d.Store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record not found: %s", id)
	}
	if rec.Status == "archived" {
		return nil, fmt.Errorf("record %s is already archived", id)
	}

	original := rec.Clone()
	rec.Status = "archived"
	rec.SetMeta("archived_by", sctx.User)
	rec.SetMeta("archived_at", time.Now().UTC().Format(time.RFC3339))
	rec.Updated = records.Today()

	row := map[string]interface{}{
		"status":     rec.Status,
		"metadata":   metadataValue(rec.Metadata),
		"updated_at": rec.Updated,
	}
	originalFields := originalColumnValues(original, "status", "metadata", "updated_at")

	if err := d.Store.UpdateRecord(ctx, id, row); err != nil {
		return nil, err
	}
	sctx.SetValue(keyRecord, rec)
	sctx.SetValue(keyOriginal, original)
	return map[string]interface{}{"record_id": id, "original_fields": originalFields}, nil
}

// moveFileToArchive renames the record file into the archive tree and
// points the row path at the new location. If the row update fails the
// file is moved back before the step reports the error, so a failed
// step leaves nothing stranded.
func (d *Dependencies) moveFileToArchive(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		return nil, err
	}
	from := rec.Path
	if from == "" {
		from = records.RecordPath(rec.Type, rec.ID)
	}
	to, err := records.ArchivePath(rec)
	if err != nil {
		return nil, err
	}

	if err := fsutil.Move(d.abs(from), d.abs(to)); err != nil {
		return nil, fmt.Errorf("failed to move %s to %s: %w", from, to, err)
	}
	if err := d.Store.UpdateRecord(ctx, rec.ID, map[string]interface{}{"path": to}); err != nil {
		if mvErr := fsutil.Move(d.abs(to), d.abs(from)); mvErr != nil {
			d.logf("failed to restore %s after row update failure: %v", from, mvErr)
		}
		return nil, err
	}
	rec.Path = to
	return map[string]interface{}{"from": from, "to": to}, nil
}

// compensateMoveFileToArchive renames the file back and restores the
// row path. Safe to repeat: a file already moved back is left alone.
func (d *Dependencies) compensateMoveFileToArchive(ctx context.Context, sctx *saga.Context, result *saga.StepResult) error {
	from := stepString(result, "from")
	to := stepString(result, "to")
	if from == "" || to == "" {
		return nil
	}
	if fsutil.Exists(d.abs(to)) {
		if err := fsutil.Move(d.abs(to), d.abs(from)); err != nil {
			return fmt.Errorf("failed to move %s back to %s: %w", to, from, err)
		}
	}
	id := stepString(result, "record_id")
	if id == "" {
		id = sctx.StringValue(keyRecordID)
	}
	if err := d.Store.UpdateRecord(ctx, id, map[string]interface{}{"path": from}); err != nil {
		return err
	}
	if rec, recErr := contextRecord(sctx, keyRecord); recErr == nil {
		rec.Path = from
	}
	return nil
}

func (d *Dependencies) commitArchive(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		return nil, err
	}
	move := sctx.Result("MoveFileToArchive")
	hash, err := d.commitPaths(ctx, rec.ID, "Archive record: "+rec.Title,
		stepString(move, "from"), stepString(move, "to"))
	if err != nil {
		return nil, err
	}
	rec.Commit = hash
	return map[string]interface{}{"commit_hash": hash}, nil
}

// removeFromIndexStep drops the record from its type listing. Derived
// state: failures are logged, never returned.
func (d *Dependencies) removeFromIndexStep(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		d.logf("index removal skipped: %v", err)
		return map[string]interface{}{"queued": false}, nil
	}
	if d.Indexer == nil {
		return map[string]interface{}{"queued": false}, nil
	}
	if err := d.Indexer.RemoveRecordFromIndex(ctx, rec.ID, rec.Type); err != nil {
		d.logf("index removal for record %s failed: %v", rec.ID, err)
		return map[string]interface{}{"queued": false, "error": err.Error()}, nil
	}
	return map[string]interface{}{"queued": true}, nil
}

func (d *Dependencies) emitArchived(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		d.logf("hook emission skipped: %v", err)
		return map[string]interface{}{"emitted": false}, nil
	}
	return d.emitEvent(hooks.EventRecordArchived, hooks.Payload{RecordID: rec.ID, Record: rec}), nil
}
