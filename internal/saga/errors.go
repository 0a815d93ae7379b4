// Package saga provides the coordination engine for multi-step civic
// record operations: durable instance state, resource locking,
// idempotency, metrics, compensation, and recovery sweeps.
package saga

import (
	"errors"
	"fmt"
)

// Code classifies saga failures. Codes are stable strings surfaced in
// API responses and logs.
type Code string

const (
	CodeStepError       Code = "SAGA_STEP_ERROR"
	CodeCompensation    Code = "SAGA_COMPENSATION_ERROR"
	CodeUncompensatable Code = "UNCOMPENSATABLE_FAILURE"
	CodeContextError    Code = "SAGA_CONTEXT_ERROR"
	CodeTimeout         Code = "SAGA_TIMEOUT"
	CodeLockError       Code = "SAGA_LOCK_ERROR"
	CodeRecoveryError   Code = "SAGA_RECOVERY_ERROR"
)

// Error is a coded saga failure. Step and SagaID are set when known.
type Error struct {
	Code    Code
	Step    string
	SagaID  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Step != "" {
		return fmt.Sprintf("%s: step %s: %s", e.Code, e.Step, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewStepError wraps a step execution failure.
func NewStepError(sagaID, step string, err error) *Error {
	return &Error{Code: CodeStepError, SagaID: sagaID, Step: step, Err: err}
}

// NewCompensationError wraps a compensation failure.
func NewCompensationError(sagaID, step string, err error) *Error {
	return &Error{Code: CodeCompensation, SagaID: sagaID, Step: step, Err: err}
}

// NewTimeoutError reports a step or saga exceeding its budget.
func NewTimeoutError(sagaID, step string, message string) *Error {
	return &Error{Code: CodeTimeout, SagaID: sagaID, Step: step, Message: message}
}

// NewContextError reports invalid saga input before any state is
// persisted.
func NewContextError(err error) *Error {
	return &Error{Code: CodeContextError, Err: err}
}

// NewLockError reports a lock held by another saga.
func NewLockError(resourceKey, holder string, message string) *Error {
	return &Error{
		Code:    CodeLockError,
		Message: fmt.Sprintf("resource %s: %s (held by %s)", resourceKey, message, holder),
	}
}

// ErrorCode extracts the saga code from err, or "" when err is not a
// saga error.
func ErrorCode(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries the given saga code.
func IsCode(err error, code Code) bool {
	return ErrorCode(err) == code
}
