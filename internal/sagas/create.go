package sagas

import (
	"context"
	"fmt"

	"github.com/CivicPress/civicpress-sub010/internal/fsutil"
	"github.com/CivicPress/civicpress-sub010/internal/hooks"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
)

// CreateRecord builds the record-creation saga: insert the metadata
// row, write the canonical file, commit it, refresh the type listing,
// and notify subscribers. The commit is the point of no return; the
// row and file roll back, the commit does not.
func CreateRecord(deps *Dependencies) *saga.Definition {
	return &saga.Definition{
		Type:    TypeCreateRecord,
		Version: "1.0.0",
		Validate: func(values map[string]interface{}) error {
			if _, ok := values[keyRecord]; !ok {
				return fmt.Errorf("create requires a record")
			}
			if id, _ := values[keyRecordID].(string); id == "" {
				return fmt.Errorf("create requires a record id")
			}
			return nil
		},
		Steps: []*saga.Step{
			saga.NewStep("CreateInRecords", deps.createInRecords, deps.compensateCreateInRecords),
			saga.NewStep("CreateFile", deps.createFile, deps.compensateCreateFile),
			saga.NewStep("CommitToGit", deps.commitCreate, nil),
			saga.NewStep("QueueIndexing", deps.queueIndexingStep, nil),
			saga.NewStep("EmitHooks", deps.emitCreated, deps.compensateEmitCreated),
		},
	}
}

// NewCreateRequest builds the coordinator request for creating rec.
// The record id doubles as the lock key.
func NewCreateRequest(rec *records.Record, user string) saga.Request {
	return saga.Request{
		Context: map[string]interface{}{
			keyRecord:   rec,
			keyRecordID: rec.ID,
		},
		User: user,
	}
}

// createInRecords fills the defaults a bare record is missing, then
// inserts the row.
func (d *Dependencies) createInRecords(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		return nil, err
	}
	if rec.Status == "" {
		rec.Status = "draft"
	}
	if rec.Author == "" {
		rec.Author = sctx.User
	}
	if rec.Created == "" {
		rec.Created = records.Today()
	}
	if rec.Updated == "" {
		rec.Updated = rec.Created
	}
	if rec.Path == "" {
		rec.Path = records.RecordPath(rec.Type, rec.ID)
	}
	sctx.SetValue(keyRecord, rec)

	if err := d.Store.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	return map[string]interface{}{"record_id": rec.ID, "path": rec.Path}, nil
}

// compensateCreateInRecords deletes the inserted row. A row already
// gone is fine; compensation may run more than once.
func (d *Dependencies) compensateCreateInRecords(ctx context.Context, sctx *saga.Context, result *saga.StepResult) error {
	id := stepString(result, "record_id")
	if id == "" {
		id = sctx.StringValue(keyRecordID)
	}
	existing, err := d.Store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	return d.Store.DeleteRecord(ctx, id)
}

// createFile validates the header, serializes the record, and writes
// its file. A validation failure here rolls the row back.
func (d *Dependencies) createFile(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
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

func (d *Dependencies) compensateCreateFile(ctx context.Context, sctx *saga.Context, result *saga.StepResult) error {
	rel := stepString(result, "path")
	if rel == "" {
		return nil
	}
	return fsutil.RemoveIfExists(d.abs(rel))
}

func (d *Dependencies) commitCreate(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		return nil, err
	}
	rel := stepString(sctx.Result("CreateFile"), "path")
	if rel == "" {
		rel = rec.Path
	}
	hash, err := d.commitPaths(ctx, rec.ID, "Create record: "+rec.Title, rel)
	if err != nil {
		return nil, err
	}
	rec.Commit = hash
	return map[string]interface{}{"commit_hash": hash}, nil
}

func (d *Dependencies) emitCreated(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		d.logf("hook emission skipped: %v", err)
		return map[string]interface{}{"emitted": false}, nil
	}
	return d.emitEvent(hooks.EventRecordCreated, hooks.Payload{RecordID: rec.ID, Record: rec}), nil
}

// compensateEmitCreated announces that the creation was rolled back.
// EmitHooks is the final step today, so this runs only if a step is
// ever added behind it.
func (d *Dependencies) compensateEmitCreated(ctx context.Context, sctx *saga.Context, result *saga.StepResult) error {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		return err
	}
	d.emitEvent(hooks.EventRecordCreateReverted, hooks.Payload{
		RecordID: rec.ID,
		Record:   rec,
		Reason:   "saga_compensation",
	})
	return nil
}
