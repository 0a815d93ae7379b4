package saga

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRecoverySweep(t *testing.T) {
	db := newTestDB(t)
	store := NewStateStore(db)
	locks := NewLockManager(db)
	rm := NewRecoveryManager(store, locks)
	rm.StuckTimeout = 5 * time.Minute
	rm.Logf = t.Logf
	ctx := context.Background()
	now := time.Now().UTC()

	stuck := testInstance("saga-stuck", "createRecord", StatusExecuting, now.Add(-10*time.Minute))
	fresh := testInstance("saga-fresh", "createRecord", StatusExecuting, now)
	manual := testInstance("saga-manual", "archiveRecord", StatusFailed, now.Add(-20*time.Minute))
	manual.Error = "SAGA_STEP_ERROR: step MoveFileToArchive: disk full"
	manual.CompensationStatus = CompensationFailed
	partial := testInstance("saga-partial", "archiveRecord", StatusFailed, now.Add(-30*time.Minute))
	partial.CompensationStatus = CompensationPartial
	for _, in := range []*Instance{stuck, fresh, manual, partial} {
		if err := store.SaveState(ctx, in); err != nil {
			t.Fatalf("SaveState failed: %v", err)
		}
	}
	if _, err := locks.tryInsert(ctx, "record:stale", "saga-stuck", -time.Second); err != nil {
		t.Fatalf("seeding expired lock failed: %v", err)
	}
	if _, err := locks.AcquireLock(ctx, "record:live", "saga-fresh", time.Minute); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	report, err := rm.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.StuckMarked != 1 || report.Annotated != 1 || report.LocksRemoved != 1 {
		t.Errorf("report = %+v, want 1/1/1", report)
	}

	got, err := store.GetState(ctx, "saga-stuck")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("stuck saga status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "stuck in executing") {
		t.Errorf("stuck saga error = %q", got.Error)
	}

	got, err = store.GetState(ctx, "saga-fresh")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got.Status != StatusExecuting {
		t.Errorf("fresh saga should be untouched, got %s", got.Status)
	}

	got, err = store.GetState(ctx, "saga-manual")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if !strings.HasPrefix(got.Error, ManualInterventionSentinel) {
		t.Errorf("manual saga error = %q, want sentinel prefix", got.Error)
	}
	if !strings.Contains(got.Error, "disk full") {
		t.Errorf("original error lost: %q", got.Error)
	}

	got, err = store.GetState(ctx, "saga-partial")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if strings.HasPrefix(got.Error, ManualInterventionSentinel) {
		t.Errorf("partial compensation must not be flagged: %q", got.Error)
	}

	if lock, _ := locks.GetLock(ctx, "record:stale"); lock != nil {
		t.Errorf("expired lock survived: %+v", lock)
	}
	if lock, _ := locks.GetLock(ctx, "record:live"); lock == nil {
		t.Error("live lock was removed")
	}

	// The sweep settles: a second pass changes nothing.
	report, err = rm.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce failed: %v", err)
	}
	if report.StuckMarked != 0 || report.Annotated != 0 || report.LocksRemoved != 0 {
		t.Errorf("second report = %+v, want 0/0/0", report)
	}
	got, _ = store.GetState(ctx, "saga-manual")
	if strings.HasPrefix(strings.TrimPrefix(got.Error, ManualInterventionSentinel+" "), ManualInterventionSentinel) {
		t.Errorf("sentinel applied twice: %q", got.Error)
	}
}

func TestRecoveryRunLoop(t *testing.T) {
	db := newTestDB(t)
	store := NewStateStore(db)
	locks := NewLockManager(db)
	rm := NewRecoveryManager(store, locks)
	rm.Interval = 10 * time.Millisecond
	rm.StuckTimeout = time.Minute
	ctx := context.Background()

	stuck := testInstance("saga-stuck", "publishDraft", StatusExecuting, time.Now().UTC().Add(-2*time.Minute))
	if err := store.SaveState(ctx, stuck); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- rm.Run(runCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.GetState(ctx, "saga-stuck")
		if err != nil {
			t.Fatalf("GetState failed: %v", err)
		}
		if got.Status == StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("recovery loop never marked the stuck saga")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
