package saga

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAcquireLockConflict(t *testing.T) {
	locks := NewLockManager(newTestDB(t))
	ctx := context.Background()

	lock, err := locks.AcquireLock(ctx, "record:bylaw-1", "saga-a", time.Minute)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if lock.SagaID != "saga-a" {
		t.Errorf("holder = %s, want saga-a", lock.SagaID)
	}

	_, err = locks.AcquireLock(ctx, "record:bylaw-1", "saga-b", time.Minute)
	if !IsCode(err, CodeLockError) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if !strings.Contains(err.Error(), "saga-a") {
		t.Errorf("lock error should name the holder: %v", err)
	}

	// A different resource is free.
	if _, err := locks.AcquireLock(ctx, "record:bylaw-2", "saga-b", time.Minute); err != nil {
		t.Errorf("unrelated resource should lock: %v", err)
	}
}

func TestReleaseLock(t *testing.T) {
	locks := NewLockManager(newTestDB(t))
	ctx := context.Background()

	if _, err := locks.AcquireLock(ctx, "record:policy-1", "saga-a", time.Minute); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := locks.ReleaseLock(ctx, "record:policy-1", "saga-b"); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("release by non-holder should fail, got %v", err)
	}
	if err := locks.ReleaseLock(ctx, "record:policy-1", "saga-a"); err != nil {
		t.Fatalf("release by holder failed: %v", err)
	}

	got, err := locks.GetLock(ctx, "record:policy-1")
	if err != nil {
		t.Fatalf("GetLock failed: %v", err)
	}
	if got != nil {
		t.Errorf("lock should be gone, got %+v", got)
	}

	if err := locks.ReleaseLock(ctx, "record:policy-1", "saga-a"); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("double release should fail, got %v", err)
	}

	// Unconditional release takes whatever is there.
	if _, err := locks.AcquireLock(ctx, "record:policy-1", "saga-c", time.Minute); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := locks.ReleaseLock(ctx, "record:policy-1", ""); err != nil {
		t.Errorf("unconditional release failed: %v", err)
	}
}

func TestAcquireLockReclaimsExpired(t *testing.T) {
	locks := NewLockManager(newTestDB(t))
	ctx := context.Background()

	if _, err := locks.tryInsert(ctx, "draft:budget-2026", "saga-dead", -time.Second); err != nil {
		t.Fatalf("seeding expired lock failed: %v", err)
	}

	lock, err := locks.AcquireLock(ctx, "draft:budget-2026", "saga-live", time.Minute)
	if err != nil {
		t.Fatalf("acquire over expired lock failed: %v", err)
	}
	if lock.SagaID != "saga-live" {
		t.Errorf("holder = %s, want saga-live", lock.SagaID)
	}

	got, err := locks.GetLock(ctx, "draft:budget-2026")
	if err != nil {
		t.Fatalf("GetLock failed: %v", err)
	}
	if got == nil || got.SagaID != "saga-live" {
		t.Errorf("expected saga-live to hold the lock, got %+v", got)
	}
}

func TestExtendLock(t *testing.T) {
	locks := NewLockManager(newTestDB(t))
	ctx := context.Background()

	lock, err := locks.AcquireLock(ctx, "record:res-7", "saga-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := locks.ExtendLock(ctx, "record:res-7", "saga-b", time.Minute); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("extend by non-holder should fail, got %v", err)
	}
	if err := locks.ExtendLock(ctx, "record:res-7", "saga-a", time.Minute); err != nil {
		t.Fatalf("extend failed: %v", err)
	}

	got, err := locks.GetLock(ctx, "record:res-7")
	if err != nil {
		t.Fatalf("GetLock failed: %v", err)
	}
	if !got.ExpiresAt.After(lock.ExpiresAt) {
		t.Errorf("expiry did not move: was %v, now %v", lock.ExpiresAt, got.ExpiresAt)
	}
}

func TestCleanupExpiredLocks(t *testing.T) {
	locks := NewLockManager(newTestDB(t))
	ctx := context.Background()

	if _, err := locks.tryInsert(ctx, "record:old-1", "saga-dead", -time.Second); err != nil {
		t.Fatalf("seeding expired lock failed: %v", err)
	}
	if _, err := locks.AcquireLock(ctx, "record:live-1", "saga-live", time.Minute); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	removed, err := locks.CleanupExpiredLocks(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if got, _ := locks.GetLock(ctx, "record:old-1"); got != nil {
		t.Errorf("expired lock survived cleanup: %+v", got)
	}
	if got, _ := locks.GetLock(ctx, "record:live-1"); got == nil {
		t.Error("live lock was removed")
	}
}
