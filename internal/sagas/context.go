package sagas

import (
	"encoding/json"
	"fmt"

	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
)

// Saga context keys. The record travels through the context as a live
// pointer; a context reloaded from persistence degrades it to a JSON
// map, which recordValue converts back.
const (
	keyRecord   = "record"
	keyRecordID = "record_id"
	keyDraftID  = "draft_id"
	keyUpdates  = "updates"
	keyOriginal = "original_record"
)

// recordValue coerces a context or step value into a record: live
// pointers pass through, JSON maps round-trip through encoding.
func recordValue(v interface{}) (*records.Record, error) {
	switch rec := v.(type) {
	case *records.Record:
		return rec, nil
	case records.Record:
		return &rec, nil
	case map[string]interface{}:
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode record value: %w", err)
		}
		var out records.Record
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("failed to decode record value: %w", err)
		}
		return &out, nil
	case nil:
		return nil, fmt.Errorf("record value is missing")
	default:
		return nil, fmt.Errorf("record value has unexpected type %T", v)
	}
}

// contextRecord returns the record stored under key in the saga
// context.
func contextRecord(sctx *saga.Context, key string) (*records.Record, error) {
	v, ok := sctx.Value(key)
	if !ok {
		return nil, fmt.Errorf("saga context has no %s", key)
	}
	return recordValue(v)
}

// contextUpdates returns the field updates the caller submitted.
func contextUpdates(sctx *saga.Context) (map[string]interface{}, error) {
	v, ok := sctx.Value(keyUpdates)
	if !ok {
		return nil, fmt.Errorf("saga context has no updates")
	}
	updates, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("saga context updates have unexpected type %T", v)
	}
	return updates, nil
}

// stepString reads a string from a recorded step result.
func stepString(result *saga.StepResult, key string) string {
	if result == nil || result.Data == nil {
		return ""
	}
	if s, ok := result.Data[key].(string); ok {
		return s
	}
	return ""
}

// stepBool reads a bool from a recorded step result.
func stepBool(result *saga.StepResult, key string) bool {
	if result == nil || result.Data == nil {
		return false
	}
	b, _ := result.Data[key].(bool)
	return b
}

// stepFields reads a column/value map from a recorded step result.
func stepFields(result *saga.StepResult, key string) map[string]interface{} {
	if result == nil || result.Data == nil {
		return nil
	}
	if m, ok := result.Data[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}
