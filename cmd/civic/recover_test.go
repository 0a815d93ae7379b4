package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/CivicPress/civicpress-sub010/internal/saga"
)

func TestRecoverCleanSweep(t *testing.T) {
	setupTestRepo(t)

	output := runCommand(t, "recover")
	if !strings.Contains(output, "Recovery sweep complete") {
		t.Errorf("unexpected recover output:\n%s", output)
	}
	if !strings.Contains(output, "Stuck sagas marked failed:   0") {
		t.Errorf("clean repository should have nothing to repair:\n%s", output)
	}
}

func TestRecoverRepairsDeadState(t *testing.T) {
	setupTestRepo(t)

	// Seed the three failure shapes a sweep repairs: an execution that
	// died mid-flight, a failed saga whose compensation also failed,
	// and a lock whose holder never released it.
	env := mustOpenEnv(rootCtx)
	stuck := &saga.Instance{
		ID: "saga-stuck", SagaType: "CreateRecord", SagaVersion: "1.0.0",
		Status: saga.StatusExecuting, StartedAt: time.Now().Add(-time.Hour),
	}
	if err := env.stateStore.SaveState(rootCtx, stuck); err != nil {
		t.Fatalf("seeding stuck saga failed: %v", err)
	}
	broken := &saga.Instance{
		ID: "saga-broken", SagaType: "UpdateRecord", SagaVersion: "1.0.0",
		Status: saga.StatusFailed, StartedAt: time.Now().Add(-time.Hour),
		Error:              "write step exploded",
		CompensationStatus: saga.CompensationFailed,
	}
	if err := env.stateStore.SaveState(rootCtx, broken); err != nil {
		t.Fatalf("seeding broken saga failed: %v", err)
	}
	if _, err := env.locks.AcquireLock(rootCtx, "record:orphaned", "saga-dead", 20*time.Millisecond); err != nil {
		t.Fatalf("seeding lock failed: %v", err)
	}
	env.Close()
	time.Sleep(50 * time.Millisecond)

	output := runCommand(t, "recover", "--json")
	var report struct {
		StuckMarked  int   `json:"stuck_marked"`
		Annotated    int   `json:"annotated"`
		LocksRemoved int64 `json:"locks_removed"`
	}
	if err := json.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("recover --json is not a report: %v\n%s", err, output)
	}
	if report.StuckMarked != 1 || report.Annotated != 1 || report.LocksRemoved != 1 {
		t.Errorf("report = %+v, want 1/1/1", report)
	}

	env = mustOpenEnv(rootCtx)
	defer env.Close()
	in, err := env.stateStore.GetState(rootCtx, "saga-stuck")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if in.Status != saga.StatusFailed {
		t.Errorf("stuck saga status = %q, want failed", in.Status)
	}
	in, err = env.stateStore.GetState(rootCtx, "saga-broken")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if !strings.HasPrefix(in.Error, saga.ManualInterventionSentinel) {
		t.Errorf("broken saga not flagged for manual intervention: %q", in.Error)
	}
	if lock, _ := env.locks.GetLock(rootCtx, "record:orphaned"); lock != nil {
		t.Errorf("expired lock survived the sweep: %+v", lock)
	}
}
