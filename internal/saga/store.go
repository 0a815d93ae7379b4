package saga

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a saga instance does not exist.
var ErrNotFound = errors.New("saga state not found")

// DB is the minimal execute/query surface the saga tables need. It is
// satisfied by *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// StateStore persists saga instances. Every operation is a single
// statement, so concurrent coordinators can share one database.
type StateStore struct {
	db DB
}

// NewStateStore wraps an open database. The saga tables must exist;
// call Init or include Schema in the database setup.
func NewStateStore(db DB) *StateStore {
	return &StateStore{db: db}
}

// Init creates the saga tables if they are missing.
func (s *StateStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create saga tables: %w", err)
	}
	return nil
}

const stateColumns = `id, saga_type, saga_version, context, status, current_step, step_results,
	started_at, completed_at, error, compensation_status, compensation_completed_at,
	compensation_error, idempotency_key, correlation_id`

// SaveState inserts a new saga instance. The id must be unique.
func (s *StateStore) SaveState(ctx context.Context, in *Instance) error {
	contextJSON, err := json.Marshal(in.Context)
	if err != nil {
		return fmt.Errorf("failed to serialize saga context: %w", err)
	}
	resultsJSON, err := marshalStepResults(in.StepResults)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saga_states (`+stateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		in.ID, in.SagaType, in.SagaVersion, string(contextJSON), string(in.Status),
		in.CurrentStep, resultsJSON, in.StartedAt.UTC(), nullableTime(in.CompletedAt),
		in.Error, string(in.CompensationStatus), nullableTime(in.CompensationCompletedAt),
		in.CompensationError, in.IdempotencyKey, in.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("failed to save saga state %s: %w", in.ID, err)
	}
	return nil
}

// GetState loads one saga instance by id.
func (s *StateStore) GetState(ctx context.Context, id string) (*Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stateColumns+` FROM saga_states WHERE id = ?
	`, id)
	in, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return in, err
}

// GetStateByIdempotencyKey returns the most recent completed saga for
// the key, or nil when none exists. TTL filtering is the idempotency
// manager's concern.
func (s *StateStore) GetStateByIdempotencyKey(ctx context.Context, key string) (*Instance, error) {
	if key == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stateColumns+` FROM saga_states
		WHERE idempotency_key = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1
	`, key, string(StatusCompleted))
	in, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return in, err
}

// UpdateStatus sets the status. A negative currentStep and an empty
// errMsg leave those columns unchanged. Terminal statuses stamp
// completed_at.
func (s *StateStore) UpdateStatus(ctx context.Context, id string, status Status, currentStep int, errMsg string) error {
	sets := []string{"status = ?"}
	args := []interface{}{string(status)}
	if currentStep >= 0 {
		sets = append(sets, "current_step = ?")
		args = append(args, currentStep)
	}
	if errMsg != "" {
		sets = append(sets, "error = ?")
		args = append(args, errMsg)
	}
	if status.Terminal() {
		sets = append(sets, "completed_at = ?")
		args = append(args, time.Now().UTC())
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE saga_states SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update saga %s status: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateStepResults replaces the persisted step-result array.
func (s *StateStore) UpdateStepResults(ctx context.Context, id string, results []*StepResult) error {
	resultsJSON, err := marshalStepResults(results)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE saga_states SET step_results = ? WHERE id = ?
	`, resultsJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update saga %s step results: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateCompensationStatus records the compensation outcome. Terminal
// compensation statuses stamp compensation_completed_at.
func (s *StateStore) UpdateCompensationStatus(ctx context.Context, id string, status CompensationStatus, errMsg string) error {
	var res sql.Result
	var err error
	switch status {
	case CompensationCompleted, CompensationFailed, CompensationPartial:
		res, err = s.db.ExecContext(ctx, `
			UPDATE saga_states SET compensation_status = ?, compensation_error = ?, compensation_completed_at = ? WHERE id = ?
		`, string(status), errMsg, time.Now().UTC(), id)
	default:
		res, err = s.db.ExecContext(ctx, `
			UPDATE saga_states SET compensation_status = ?, compensation_error = ? WHERE id = ?
		`, string(status), errMsg, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update saga %s compensation status: %w", id, err)
	}
	return requireRow(res, id)
}

// GetStuckSagas returns executing sagas older than the timeout.
func (s *StateStore) GetStuckSagas(ctx context.Context, timeout time.Duration) ([]*Instance, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stateColumns+` FROM saga_states
		WHERE status = ? AND started_at < ?
		ORDER BY started_at ASC
	`, string(StatusExecuting), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck sagas: %w", err)
	}
	return collectInstances(rows)
}

// GetFailedSagas returns failed sagas, most recent first.
func (s *StateStore) GetFailedSagas(ctx context.Context) ([]*Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stateColumns+` FROM saga_states
		WHERE status = ?
		ORDER BY started_at DESC
	`, string(StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to query failed sagas: %w", err)
	}
	return collectInstances(rows)
}

// CountByStatus returns how many saga instances sit in each status.
func (s *StateStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM saga_states GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sagas by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// ListByType returns the most recent sagas of one type, newest first.
// A non-positive limit returns all of them.
func (s *StateStore) ListByType(ctx context.Context, sagaType string, limit int) ([]*Instance, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stateColumns+` FROM saga_states
		WHERE saga_type = ?
		ORDER BY started_at DESC LIMIT ?
	`, sagaType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sagas of type %s: %w", sagaType, err)
	}
	return collectInstances(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*Instance, error) {
	var in Instance
	var contextJSON, resultsJSON string
	var status, compStatus string
	var completedAt, compCompletedAt sql.NullTime

	err := row.Scan(
		&in.ID, &in.SagaType, &in.SagaVersion, &contextJSON, &status,
		&in.CurrentStep, &resultsJSON, &in.StartedAt, &completedAt,
		&in.Error, &compStatus, &compCompletedAt,
		&in.CompensationError, &in.IdempotencyKey, &in.CorrelationID,
	)
	if err != nil {
		return nil, err
	}

	in.Status = Status(status)
	in.CompensationStatus = CompensationStatus(compStatus)
	if completedAt.Valid {
		t := completedAt.Time
		in.CompletedAt = &t
	}
	if compCompletedAt.Valid {
		t := compCompletedAt.Time
		in.CompensationCompletedAt = &t
	}
	if err := json.Unmarshal([]byte(contextJSON), &in.Context); err != nil {
		return nil, fmt.Errorf("failed to parse saga %s context: %w", in.ID, err)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &in.StepResults); err != nil {
		return nil, fmt.Errorf("failed to parse saga %s step results: %w", in.ID, err)
	}
	return &in, nil
}

func collectInstances(rows *sql.Rows) ([]*Instance, error) {
	defer func() { _ = rows.Close() }()
	var out []*Instance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func marshalStepResults(results []*StepResult) (string, error) {
	if results == nil {
		results = []*StepResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("failed to serialize step results: %w", err)
	}
	return string(data), nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return fmt.Errorf("saga %s: %w", id, ErrNotFound)
	}
	return nil
}
