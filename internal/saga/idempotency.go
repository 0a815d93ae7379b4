package saga

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultIdempotencyTTL is how long a completed saga's result is
// replayed for re-submissions of the same idempotency key.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyManager deduplicates saga submissions through the state
// store's idempotency-key index.
type IdempotencyManager struct {
	store *StateStore
	ttl   time.Duration
}

// NewIdempotencyManager wraps the state store. A non-positive ttl uses
// the default of 24 hours.
func NewIdempotencyManager(store *StateStore, ttl time.Duration) *IdempotencyManager {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyManager{store: store, ttl: ttl}
}

// TTL returns the replay window.
func (m *IdempotencyManager) TTL() time.Duration { return m.ttl }

// DeriveKey builds a deterministic key for submissions that did not
// supply one, from the saga type, the acting user, the start time, and
// the record or draft the context names. Because the start time
// participates, derived keys identify a single run and never replay.
func DeriveKey(sagaType, user string, startedAt time.Time, sagaContext map[string]interface{}) string {
	recordID := contextString(sagaContext, "record_id", "recordId")
	draftID := contextString(sagaContext, "draft_id", "draftId")
	raw := fmt.Sprintf("%s|%s|%s|%s|%s",
		sagaType, user, startedAt.UTC().Format(time.RFC3339Nano), recordID, draftID)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CachedResult returns the completed saga whose result should be
// replayed for the key, or nil when there is none within the TTL.
// Executing and failed prior runs never short-circuit a new submission.
func (m *IdempotencyManager) CachedResult(ctx context.Context, key string) (*Instance, error) {
	if key == "" {
		return nil, nil
	}
	in, err := m.store.GetStateByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup for key %s: %w", key, err)
	}
	if in == nil {
		return nil, nil
	}

	anchor := in.StartedAt
	if in.CompletedAt != nil {
		anchor = *in.CompletedAt
	}
	if time.Since(anchor) > m.ttl {
		return nil, nil
	}
	return in, nil
}

// contextString returns the first non-empty string under any of the
// given keys.
func contextString(values map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := values[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
