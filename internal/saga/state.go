package saga

import (
	"time"
)

// Status is the lifecycle state of a saga instance. Transitions are
// monotonic: pending, executing, then completed on success, or failed,
// compensating, and either compensated or failed with a compensation
// status recorded.
type Status string

const (
	StatusPending      Status = "pending"
	StatusExecuting    Status = "executing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCompensating Status = "compensating"
	StatusCompensated  Status = "compensated"
)

// Terminal reports whether a saga in this status will not transition
// again except by a recovery sweep.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusFailed
}

// CompensationStatus records the outcome of a compensation pass.
type CompensationStatus string

const (
	CompensationPending   CompensationStatus = "pending"
	CompensationExecuting CompensationStatus = "executing"
	CompensationCompleted CompensationStatus = "completed"
	CompensationFailed    CompensationStatus = "failed"
	CompensationPartial   CompensationStatus = "partial"
)

// Step result statuses.
const (
	StepCompleted          = "completed"
	StepFailed             = "failed"
	StepCompensated        = "compensated"
	StepCompensationFailed = "compensation_failed"
)

// StepResult is the persisted outcome of one step, indexable by step
// position in Instance.StepResults.
type StepResult struct {
	Step        string                 `json:"step"`
	Status      string                 `json:"status"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Instance is a persisted saga execution.
type Instance struct {
	ID                      string                 `json:"id"`
	SagaType                string                 `json:"saga_type"`
	SagaVersion             string                 `json:"saga_version"`
	Context                 map[string]interface{} `json:"context"`
	Status                  Status                 `json:"status"`
	CurrentStep             int                    `json:"current_step"`
	StepResults             []*StepResult          `json:"step_results"`
	StartedAt               time.Time              `json:"started_at"`
	CompletedAt             *time.Time             `json:"completed_at,omitempty"`
	Error                   string                 `json:"error,omitempty"`
	CompensationStatus      CompensationStatus     `json:"compensation_status,omitempty"`
	CompensationCompletedAt *time.Time             `json:"compensation_completed_at,omitempty"`
	CompensationError       string                 `json:"compensation_error,omitempty"`
	IdempotencyKey          string                 `json:"idempotency_key,omitempty"`
	CorrelationID           string                 `json:"correlation_id,omitempty"`
}

// LastStepResult returns the final entry of the step results, or nil.
func (in *Instance) LastStepResult() *StepResult {
	if len(in.StepResults) == 0 {
		return nil
	}
	return in.StepResults[len(in.StepResults)-1]
}

// ResourceLock is a time-bounded exclusive claim on a logical resource,
// held by a saga instance.
type ResourceLock struct {
	ResourceKey string    `json:"resource_key"`
	SagaID      string    `json:"saga_id"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the lock's expiry has elapsed at now.
func (l *ResourceLock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// Schema creates the saga tables. The sqlite store runs it as part of
// database initialization; tests run it directly on a fresh database.
const Schema = `
-- Saga instances
CREATE TABLE IF NOT EXISTS saga_states (
    id TEXT PRIMARY KEY,
    saga_type TEXT NOT NULL,
    saga_version TEXT NOT NULL DEFAULT '1.0.0',
    context TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'pending',
    current_step INTEGER NOT NULL DEFAULT 0,
    step_results TEXT NOT NULL DEFAULT '[]',
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    error TEXT DEFAULT '',
    compensation_status TEXT DEFAULT '',
    compensation_completed_at DATETIME,
    compensation_error TEXT DEFAULT '',
    idempotency_key TEXT DEFAULT '',
    correlation_id TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_saga_states_status ON saga_states(status);
CREATE INDEX IF NOT EXISTS idx_saga_states_type ON saga_states(saga_type);
CREATE INDEX IF NOT EXISTS idx_saga_states_idempotency ON saga_states(idempotency_key);
CREATE INDEX IF NOT EXISTS idx_saga_states_started ON saga_states(started_at);

-- Resource locks (one row per held resource)
CREATE TABLE IF NOT EXISTS saga_resource_locks (
    resource_key TEXT PRIMARY KEY,
    saga_id TEXT NOT NULL,
    acquired_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_locks_expires ON saga_resource_locks(expires_at);
`
