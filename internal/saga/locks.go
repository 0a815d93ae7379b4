package saga

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultLockTimeout bounds a lock's lifetime when the caller does not
// pass one. Expired locks are reclaimable by the next acquirer.
const DefaultLockTimeout = 30 * time.Second

// ErrLockNotHeld is returned when releasing or extending a lock the
// caller does not hold.
var ErrLockNotHeld = errors.New("lock not held")

// LockManager grants exclusive, time-bounded claims on resource keys.
// Acquisition relies on the primary-key constraint of the lock table,
// so it is atomic across processes sharing the database.
type LockManager struct {
	db DB
}

// NewLockManager wraps an open database with the saga tables present.
func NewLockManager(db DB) *LockManager {
	return &LockManager{db: db}
}

// AcquireLock claims the resource for the holder until now+timeout. On a
// conflict with an expired lock, the stale row is deleted and the insert
// retried once. A live conflict fails with a lock error naming the
// current holder and its expiry.
func (m *LockManager) AcquireLock(ctx context.Context, resourceKey, holder string, timeout time.Duration) (*ResourceLock, error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	lock, err := m.tryInsert(ctx, resourceKey, holder, timeout)
	if err == nil {
		return lock, nil
	}
	if !isUniqueConstraintError(err) {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", resourceKey, err)
	}

	existing, err := m.GetLock(ctx, resourceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect held lock %s: %w", resourceKey, err)
	}
	if existing != nil && existing.Expired(time.Now().UTC()) {
		_, err = m.db.ExecContext(ctx, `
			DELETE FROM saga_resource_locks WHERE resource_key = ? AND saga_id = ?
		`, resourceKey, existing.SagaID)
		if err != nil {
			return nil, fmt.Errorf("failed to reclaim expired lock %s: %w", resourceKey, err)
		}
		lock, err = m.tryInsert(ctx, resourceKey, holder, timeout)
		if err == nil {
			return lock, nil
		}
		if !isUniqueConstraintError(err) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", resourceKey, err)
		}
		existing, err = m.GetLock(ctx, resourceKey)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect held lock %s: %w", resourceKey, err)
		}
	}

	holderID, expiry := "unknown", "unknown"
	if existing != nil {
		holderID = existing.SagaID
		expiry = existing.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return nil, NewLockError(resourceKey, holderID, "already locked until "+expiry)
}

func (m *LockManager) tryInsert(ctx context.Context, resourceKey, holder string, timeout time.Duration) (*ResourceLock, error) {
	now := time.Now().UTC()
	lock := &ResourceLock{
		ResourceKey: resourceKey,
		SagaID:      holder,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(timeout),
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO saga_resource_locks (resource_key, saga_id, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, lock.ResourceKey, lock.SagaID, lock.AcquiredAt, lock.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// ReleaseLock frees the resource. With a holder the release is scoped:
// releasing someone else's lock returns ErrLockNotHeld. An empty holder
// releases unconditionally.
func (m *LockManager) ReleaseLock(ctx context.Context, resourceKey, holder string) error {
	var res sql.Result
	var err error
	if holder == "" {
		res, err = m.db.ExecContext(ctx, `
			DELETE FROM saga_resource_locks WHERE resource_key = ?
		`, resourceKey)
	} else {
		res, err = m.db.ExecContext(ctx, `
			DELETE FROM saga_resource_locks WHERE resource_key = ? AND saga_id = ?
		`, resourceKey, holder)
	}
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", resourceKey, err)
	}
	if n, rerr := res.RowsAffected(); rerr == nil && n == 0 {
		return fmt.Errorf("lock %s: %w", resourceKey, ErrLockNotHeld)
	}
	return nil
}

// GetLock returns the current lock row, or nil when the resource is
// free.
func (m *LockManager) GetLock(ctx context.Context, resourceKey string) (*ResourceLock, error) {
	var lock ResourceLock
	err := m.db.QueryRowContext(ctx, `
		SELECT resource_key, saga_id, acquired_at, expires_at
		FROM saga_resource_locks WHERE resource_key = ?
	`, resourceKey).Scan(&lock.ResourceKey, &lock.SagaID, &lock.AcquiredAt, &lock.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock %s: %w", resourceKey, err)
	}
	return &lock, nil
}

// ListLocks returns every lock row, oldest acquisition first. Expired
// rows are included; they disappear on the next cleanup or reclaim.
func (m *LockManager) ListLocks(ctx context.Context) ([]*ResourceLock, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT resource_key, saga_id, acquired_at, expires_at
		FROM saga_resource_locks ORDER BY acquired_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ResourceLock
	for rows.Next() {
		var lock ResourceLock
		if err := rows.Scan(&lock.ResourceKey, &lock.SagaID, &lock.AcquiredAt, &lock.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, &lock)
	}
	return out, rows.Err()
}

// ExtendLock pushes the holder's expiry out by the additional duration.
func (m *LockManager) ExtendLock(ctx context.Context, resourceKey, holder string, additional time.Duration) error {
	lock, err := m.GetLock(ctx, resourceKey)
	if err != nil {
		return err
	}
	if lock == nil || lock.SagaID != holder {
		return fmt.Errorf("lock %s: %w", resourceKey, ErrLockNotHeld)
	}
	_, err = m.db.ExecContext(ctx, `
		UPDATE saga_resource_locks SET expires_at = ? WHERE resource_key = ? AND saga_id = ?
	`, lock.ExpiresAt.Add(additional).UTC(), resourceKey, holder)
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", resourceKey, err)
	}
	return nil
}

// CleanupExpiredLocks deletes every lock whose expiry has elapsed and
// returns how many were removed.
func (m *LockManager) CleanupExpiredLocks(ctx context.Context) (int64, error) {
	res, err := m.db.ExecContext(ctx, `
		DELETE FROM saga_resource_locks WHERE expires_at <= ?
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired locks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// isUniqueConstraintError checks for a primary-key or UNIQUE violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
