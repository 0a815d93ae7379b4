// Package sagas defines the record lifecycle operations as saga
// definitions: create, update, archive, and publish. Each definition
// lists its forward steps with their compensations; the saga package
// drives execution, locking, and rollback. Git commits are never
// compensated, and derived-state steps (indexing, hook emission) log
// their failures instead of failing the saga.
package sagas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/CivicPress/civicpress-sub010/internal/fsutil"
	"github.com/CivicPress/civicpress-sub010/internal/git"
	"github.com/CivicPress/civicpress-sub010/internal/hooks"
	"github.com/CivicPress/civicpress-sub010/internal/index"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
	"github.com/CivicPress/civicpress-sub010/internal/schema"
	"github.com/CivicPress/civicpress-sub010/internal/storage"
	"github.com/CivicPress/civicpress-sub010/internal/workflows"
)

// Saga type names, as persisted in saga state rows.
const (
	TypeCreateRecord  = "CreateRecord"
	TypeUpdateRecord  = "UpdateRecord"
	TypeArchiveRecord = "ArchiveRecord"
	TypePublishDraft  = "PublishDraft"
)

// RequestKey derives a stable idempotency key from the parts that make
// an operation distinct. Submitting the same operation twice within the
// idempotency TTL replays the first result instead of running again, so
// parts must cover everything that should force a fresh run. Maps are
// serialized with sorted keys, so field order never changes the key.
func RequestKey(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		data, err := json.Marshal(part)
		if err != nil {
			data = []byte(fmt.Sprintf("%v", part))
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Dependencies carries the services the saga steps run against. Store,
// Repo, and Root are required. Validator, Indexer, Hooks, and Workflows
// may be nil: steps then skip validation, indexing, hook emission, or
// transition checks respectively.
type Dependencies struct {
	Store     storage.Storage
	Repo      *git.Repository
	Validator *schema.Validator
	Indexer   *index.Indexer
	Hooks     hooks.Emitter
	Workflows *workflows.Catalogue
	Root      string
	Logf      func(format string, args ...interface{})
}

// Definitions returns every saga definition wired to deps, keyed by
// saga type.
func Definitions(deps *Dependencies) map[string]*saga.Definition {
	defs := []*saga.Definition{
		CreateRecord(deps),
		UpdateRecord(deps),
		ArchiveRecord(deps),
		PublishDraft(deps),
	}
	out := make(map[string]*saga.Definition, len(defs))
	for _, def := range defs {
		out[def.Type] = def
	}
	return out
}

func (d *Dependencies) logf(format string, args ...interface{}) {
	if d.Logf != nil {
		d.Logf(format, args...)
	}
}

// abs joins a canonical relative record path to the data root.
func (d *Dependencies) abs(rel string) string {
	return filepath.Join(d.Root, filepath.FromSlash(rel))
}

// validateRecord aborts a file-writing step when the header fails
// schema validation.
func (d *Dependencies) validateRecord(rec *records.Record) error {
	if d.Validator == nil {
		return nil
	}
	res := d.Validator.ValidateRecord(rec, schema.Options{})
	if !res.Valid {
		return &ValidationError{RecordID: rec.ID, Result: res}
	}
	return nil
}

// serializeAndWrite renders rec into its canonical form and writes it
// at its path under the data root, returning the relative path written.
func (d *Dependencies) serializeAndWrite(rec *records.Record) (string, error) {
	content, err := records.Serialize(rec)
	if err != nil {
		return "", fmt.Errorf("failed to serialize record %s: %w", rec.ID, err)
	}
	rel := rec.Path
	if rel == "" {
		rel = records.RecordPath(rec.Type, rec.ID)
	}
	if err := fsutil.WriteFileAtomic(d.abs(rel), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write record file %s: %w", rel, err)
	}
	return rel, nil
}

// writeRecordFile validates the header, then serializes and writes the
// record. Compensations restore files through serializeAndWrite
// directly: an original written before a schema change must still be
// restorable.
func (d *Dependencies) writeRecordFile(rec *records.Record) (string, error) {
	if err := d.validateRecord(rec); err != nil {
		return "", err
	}
	return d.serializeAndWrite(rec)
}

// commitPaths commits the given record paths and stamps the resulting
// hash on the record row.
func (d *Dependencies) commitPaths(ctx context.Context, recordID, message string, rels ...string) (string, error) {
	paths := make([]string, 0, len(rels))
	for _, rel := range rels {
		if rel == "" {
			continue
		}
		paths = append(paths, d.abs(rel))
	}
	hash, err := d.Repo.Commit(ctx, message, paths)
	if err != nil {
		return "", err
	}
	if err := d.Store.UpdateRecord(ctx, recordID, map[string]interface{}{"commit_hash": hash}); err != nil {
		return "", fmt.Errorf("failed to stamp commit %s on record %s: %w", hash, recordID, err)
	}
	return hash, nil
}

// regenerateTypeIndex refreshes the listing for the record's type.
// Derived state: failures are logged, never returned.
func (d *Dependencies) regenerateTypeIndex(ctx context.Context, rec *records.Record) map[string]interface{} {
	if d.Indexer == nil {
		return map[string]interface{}{"queued": false}
	}
	if err := d.Indexer.GenerateIndexes(ctx, index.Options{Types: []string{rec.Type}}); err != nil {
		d.logf("indexing for record %s failed: %v", rec.ID, err)
		return map[string]interface{}{"queued": false, "error": err.Error()}
	}
	return map[string]interface{}{"queued": true}
}

// queueIndexingStep is the shared fire-and-forget indexing step body.
func (d *Dependencies) queueIndexingStep(ctx context.Context, sctx *saga.Context) (map[string]interface{}, error) {
	rec, err := contextRecord(sctx, keyRecord)
	if err != nil {
		d.logf("indexing skipped: %v", err)
		return map[string]interface{}{"queued": false}, nil
	}
	return d.regenerateTypeIndex(ctx, rec), nil
}

// emitEvent dispatches a subscriber event. The runner detaches script
// execution, so failures never reach the saga.
func (d *Dependencies) emitEvent(event string, payload hooks.Payload) map[string]interface{} {
	if d.Hooks == nil {
		return map[string]interface{}{"emitted": false}
	}
	d.Hooks.Emit(event, payload)
	return map[string]interface{}{"emitted": true, "event": event}
}

// compensateRestoreFields puts back the column values a step
// snapshotted under original_fields.
func (d *Dependencies) compensateRestoreFields(ctx context.Context, sctx *saga.Context, result *saga.StepResult) error {
	id := stepString(result, "record_id")
	if id == "" {
		id = sctx.StringValue(keyRecordID)
	}
	fields := stepFields(result, "original_fields")
	if len(fields) == 0 {
		return nil
	}
	return d.Store.UpdateRecord(ctx, id, fields)
}
