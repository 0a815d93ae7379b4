package saga

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *StateStore, *LockManager) {
	t.Helper()
	db := newTestDB(t)
	store := NewStateStore(db)
	locks := NewLockManager(db)
	c := NewCoordinator(store, locks, NewIdempotencyManager(store, 0), NewMetrics())
	c.Logf = t.Logf
	return c, store, locks
}

func recordingStep(name string, trace *[]string, data map[string]interface{}) *Step {
	return NewStep(name,
		func(ctx context.Context, sctx *Context) (map[string]interface{}, error) {
			*trace = append(*trace, name)
			return data, nil
		},
		func(ctx context.Context, sctx *Context, result *StepResult) error {
			*trace = append(*trace, "undo:"+name)
			return nil
		})
}

func failingStep(name string, trace *[]string, err error) *Step {
	return NewStep(name,
		func(ctx context.Context, sctx *Context) (map[string]interface{}, error) {
			*trace = append(*trace, name)
			return nil, err
		}, nil)
}

// sleepStep waits for d but honors cancellation, like any well-behaved
// long step.
func sleepStep(name string, d time.Duration, trace *[]string) *Step {
	return NewStep(name,
		func(ctx context.Context, sctx *Context) (map[string]interface{}, error) {
			select {
			case <-time.After(d):
				return map[string]interface{}{"slept": name}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		func(ctx context.Context, sctx *Context, result *StepResult) error {
			*trace = append(*trace, "undo:"+name)
			return nil
		})
}

func sameTrace(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trace = %v, want %v", got, want)
		}
	}
}

func TestExecuteSuccess(t *testing.T) {
	c, store, locks := newTestCoordinator(t)
	ctx := context.Background()
	var trace []string

	def := &Definition{
		Type:    "createRecord",
		Version: "1.0.0",
		Steps: []*Step{
			NewStep("CreateInRecords", func(ctx context.Context, sctx *Context) (map[string]interface{}, error) {
				trace = append(trace, "CreateInRecords")
				return map[string]interface{}{"record_id": sctx.StringValue("record_id")}, nil
			}, func(ctx context.Context, sctx *Context, result *StepResult) error {
				trace = append(trace, "undo:CreateInRecords")
				return nil
			}),
			NewStep("CreateFile", func(ctx context.Context, sctx *Context) (map[string]interface{}, error) {
				trace = append(trace, "CreateFile")
				id, _ := sctx.StepData("CreateInRecords")["record_id"].(string)
				return map[string]interface{}{"path": "records/bylaw/" + id + ".md"}, nil
			}, nil),
		},
	}

	res, err := c.Execute(ctx, def, Request{
		Context: map[string]interface{}{"record_id": "bylaw-quiet-hours"},
		User:    "clerk",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
	// The second step saw the first step's output.
	if res.Output["path"] != "records/bylaw/bylaw-quiet-hours.md" {
		t.Errorf("output = %v", res.Output)
	}
	sameTrace(t, trace, []string{"CreateInRecords", "CreateFile"})

	state, err := store.GetState(ctx, res.SagaID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Status != StatusCompleted || state.CompletedAt == nil {
		t.Errorf("persisted state = %s, completed_at = %v", state.Status, state.CompletedAt)
	}
	if state.CurrentStep != 1 {
		t.Errorf("current step = %d, want 1", state.CurrentStep)
	}
	if len(state.StepResults) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(state.StepResults))
	}
	for i, r := range state.StepResults {
		if r.Status != StepCompleted {
			t.Errorf("step %d status = %s, want completed", i, r.Status)
		}
	}
	if len(state.IdempotencyKey) != 64 {
		t.Errorf("expected derived idempotency key, got %q", state.IdempotencyKey)
	}

	if lock, _ := locks.GetLock(ctx, "record:bylaw-quiet-hours"); lock != nil {
		t.Errorf("lock not released: %+v", lock)
	}

	stats := c.Metrics().Stats("createRecord")
	if stats.Executions != 1 || stats.Successes != 1 {
		t.Errorf("metrics wrong: %+v", stats)
	}
}

func TestExecuteCompensatesInReverse(t *testing.T) {
	c, store, locks := newTestCoordinator(t)
	ctx := context.Background()
	var trace []string

	def := &Definition{
		Type: "updateRecord",
		Steps: []*Step{
			recordingStep("AllocateRevision", &trace, map[string]interface{}{"rev": "2"}),
			recordingStep("WriteRecordFile", &trace, nil),
			failingStep("RefreshSearch", &trace, errors.New("index offline")),
		},
	}

	res, err := c.Execute(ctx, def, Request{Context: map[string]interface{}{"record_id": "bylaw-1"}})
	if !IsCode(err, CodeStepError) {
		t.Fatalf("expected step error, got %v", err)
	}
	sameTrace(t, trace, []string{
		"AllocateRevision", "WriteRecordFile", "RefreshSearch",
		"undo:WriteRecordFile", "undo:AllocateRevision",
	})
	if res.Status != StatusCompensated || res.CompensationStatus != CompensationCompleted {
		t.Errorf("result = %s/%s, want compensated/completed", res.Status, res.CompensationStatus)
	}

	state, err := store.GetState(ctx, res.SagaID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Status != StatusCompensated {
		t.Errorf("persisted status = %s, want compensated", state.Status)
	}
	if state.CurrentStep != 2 {
		t.Errorf("current step = %d, want 2", state.CurrentStep)
	}
	if !strings.Contains(state.Error, "index offline") {
		t.Errorf("step error lost: %q", state.Error)
	}
	wantStatuses := []string{StepCompensated, StepCompensated, StepFailed}
	for i, r := range state.StepResults {
		if r.Status != wantStatuses[i] {
			t.Errorf("step %d status = %s, want %s", i, r.Status, wantStatuses[i])
		}
	}
	if state.CompensationCompletedAt == nil {
		t.Error("compensation_completed_at not stamped")
	}

	if lock, _ := locks.GetLock(ctx, "record:bylaw-1"); lock != nil {
		t.Errorf("lock not released: %+v", lock)
	}

	stats := c.Metrics().Stats("updateRecord")
	if stats.Failures != 1 || stats.Compensations != 1 || stats.CompensationFailures != 0 {
		t.Errorf("metrics wrong: %+v", stats)
	}
}

func TestExecuteSkipsUncompensatableCritical(t *testing.T) {
	c, store, _ := newTestCoordinator(t)
	ctx := context.Background()
	var trace []string

	def := &Definition{
		Type: "archiveRecord",
		Steps: []*Step{
			recordingStep("UpdateStatusToArchived", &trace, nil),
			NewStep("CommitToGit", func(ctx context.Context, sctx *Context) (map[string]interface{}, error) {
				trace = append(trace, "CommitToGit")
				return map[string]interface{}{"commit": "abc123"}, nil
			}, nil),
			failingStep("QueueReindex", &trace, errors.New("queue full")),
		},
	}

	res, err := c.Execute(ctx, def, Request{Context: map[string]interface{}{"record_id": "bylaw-2"}})
	if !IsCode(err, CodeUncompensatable) {
		t.Fatalf("expected uncompensatable failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "CommitToGit") {
		t.Errorf("error should name the stranded step: %v", err)
	}
	sameTrace(t, trace, []string{
		"UpdateStatusToArchived", "CommitToGit", "QueueReindex",
		"undo:UpdateStatusToArchived",
	})
	if res.Status != StatusFailed || res.CompensationStatus != CompensationPartial {
		t.Errorf("result = %s/%s, want failed/partial", res.Status, res.CompensationStatus)
	}

	state, err := store.GetState(ctx, res.SagaID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	// The commit stays in history untouched.
	if state.StepResults[1].Status != StepCompleted {
		t.Errorf("git step status = %s, want completed", state.StepResults[1].Status)
	}
	if !strings.Contains(state.CompensationError, "CommitToGit") {
		t.Errorf("compensation error should name the step: %q", state.CompensationError)
	}
}

func TestExecuteCriticalCompensationFailure(t *testing.T) {
	c, store, _ := newTestCoordinator(t)
	ctx := context.Background()
	var trace []string

	def := &Definition{
		Type: "archiveRecord",
		Steps: []*Step{
			NewStep("MoveFileToArchive", func(ctx context.Context, sctx *Context) (map[string]interface{}, error) {
				trace = append(trace, "MoveFileToArchive")
				return map[string]interface{}{"from": "records/bylaw/b.md", "to": "archive/bylaw/2026/b.md"}, nil
			}, func(ctx context.Context, sctx *Context, result *StepResult) error {
				trace = append(trace, "undo:MoveFileToArchive")
				return errors.New("restore failed")
			}),
			failingStep("NotifySubscribers", &trace, errors.New("smtp down")),
		},
	}

	res, err := c.Execute(ctx, def, Request{Context: map[string]interface{}{"record_id": "bylaw-3"}})
	if !IsCode(err, CodeUncompensatable) {
		t.Fatalf("expected uncompensatable failure, got %v", err)
	}
	if res.Status != StatusFailed || res.CompensationStatus != CompensationFailed {
		t.Errorf("result = %s/%s, want failed/failed", res.Status, res.CompensationStatus)
	}

	state, err := store.GetState(ctx, res.SagaID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.StepResults[0].Status != StepCompensationFailed {
		t.Errorf("step 0 status = %s, want compensation_failed", state.StepResults[0].Status)
	}
	if state.CompensationStatus != CompensationFailed {
		t.Errorf("persisted compensation status = %s, want failed", state.CompensationStatus)
	}

	stats := c.Metrics().Stats("archiveRecord")
	if stats.CompensationFailures != 1 {
		t.Errorf("metrics wrong: %+v", stats)
	}
}

func TestExecuteRejectsInvalidContext(t *testing.T) {
	c, store, _ := newTestCoordinator(t)
	ctx := context.Background()
	var trace []string

	def := &Definition{
		Type:  "createRecord",
		Steps: []*Step{recordingStep("CreateInRecords", &trace, nil)},
		Validate: func(values map[string]interface{}) error {
			if _, ok := values["record_id"]; !ok {
				return errors.New("record_id is required")
			}
			return nil
		},
	}

	res, err := c.Execute(ctx, def, Request{Context: map[string]interface{}{}})
	if !IsCode(err, CodeContextError) {
		t.Fatalf("expected context error, got %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if !strings.Contains(err.Error(), "record_id") {
		t.Errorf("error should carry the validation message: %v", err)
	}
	if len(trace) != 0 {
		t.Errorf("no step should run, got %v", trace)
	}

	// Nothing was persisted for the rejected run.
	saved, err := store.ListByType(ctx, "createRecord", 0)
	if err != nil {
		t.Fatalf("ListByType failed: %v", err)
	}
	if len(saved) != 0 {
		t.Errorf("expected no saved state, got %d", len(saved))
	}
}

func TestExecuteFailsFastOnHeldLock(t *testing.T) {
	c, store, locks := newTestCoordinator(t)
	ctx := context.Background()
	var trace []string

	if _, err := locks.AcquireLock(ctx, "record:bylaw-9", "saga-elsewhere", time.Minute); err != nil {
		t.Fatalf("seeding lock failed: %v", err)
	}

	def := &Definition{
		Type:  "updateRecord",
		Steps: []*Step{recordingStep("UpdateInRecords", &trace, nil)},
	}
	res, err := c.Execute(ctx, def, Request{Context: map[string]interface{}{"record_id": "bylaw-9"}})
	if !IsCode(err, CodeLockError) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if !strings.Contains(err.Error(), "saga-elsewhere") {
		t.Errorf("lock error should name the holder: %v", err)
	}
	if res != nil || len(trace) != 0 {
		t.Errorf("nothing should run while locked: res=%+v trace=%v", res, trace)
	}

	saved, _ := store.ListByType(ctx, "updateRecord", 0)
	if len(saved) != 0 {
		t.Errorf("expected no saved state, got %d", len(saved))
	}
}

func TestExecuteReplaysCompletedRun(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	calls := 0

	def := &Definition{
		Type: "publishDraft",
		Steps: []*Step{
			NewStep("MoveToRecords", func(ctx context.Context, sctx *Context) (map[string]interface{}, error) {
				calls++
				return map[string]interface{}{"record_id": "bylaw-4"}, nil
			}, nil),
			NewStep("EmitHooks", func(ctx context.Context, sctx *Context) (map[string]interface{}, error) {
				calls++
				return map[string]interface{}{"event": "record:published"}, nil
			}, nil),
		},
	}
	req := Request{
		Context:        map[string]interface{}{"draft_id": "draft-4"},
		User:           "clerk",
		IdempotencyKey: "publish-draft-4",
	}

	res1, err := c.Execute(ctx, def, req)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 step calls, got %d", calls)
	}

	res2, err := c.Execute(ctx, def, req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !res2.Replayed {
		t.Error("second run should be a replay")
	}
	if res2.SagaID != res1.SagaID {
		t.Errorf("replay returned a different saga: %s vs %s", res2.SagaID, res1.SagaID)
	}
	if calls != 2 {
		t.Errorf("replay must not re-run steps, calls = %d", calls)
	}
	if res2.Output["event"] != "record:published" {
		t.Errorf("replay output = %v", res2.Output)
	}

	// Without an explicit key every submission is a distinct run.
	res3, err := c.Execute(ctx, def, Request{Context: map[string]interface{}{"draft_id": "draft-4"}, User: "clerk"})
	if err != nil {
		t.Fatalf("derived-key run failed: %v", err)
	}
	res4, err := c.Execute(ctx, def, Request{Context: map[string]interface{}{"draft_id": "draft-4"}, User: "clerk"})
	if err != nil {
		t.Fatalf("derived-key run failed: %v", err)
	}
	if res3.Replayed || res4.Replayed {
		t.Error("derived keys must never replay")
	}
	if res3.SagaID == res4.SagaID {
		t.Error("derived-key runs should be distinct sagas")
	}
	if calls != 6 {
		t.Errorf("expected 6 step calls after two more runs, got %d", calls)
	}
}

func TestExecuteStepTimeout(t *testing.T) {
	c, store, _ := newTestCoordinator(t)
	ctx := context.Background()
	var trace []string

	step := sleepStep("GenerateRenderings", 300*time.Millisecond, &trace)
	step.Timeout = 30 * time.Millisecond
	def := &Definition{Type: "updateRecord", Steps: []*Step{step}}

	res, err := c.Execute(ctx, def, Request{Context: map[string]interface{}{"record_id": "bylaw-5"}})
	if !IsCode(err, CodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "step timed out") {
		t.Errorf("wrong timeout message: %v", err)
	}
	// A failed step is never compensated.
	if len(trace) != 0 {
		t.Errorf("timed-out step must not be compensated, trace = %v", trace)
	}
	if res.Status != StatusCompensated || res.CompensationStatus != CompensationCompleted {
		t.Errorf("result = %s/%s, want compensated/completed", res.Status, res.CompensationStatus)
	}

	state, err := store.GetState(ctx, res.SagaID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.StepResults[0].Status != StepFailed {
		t.Errorf("step status = %s, want failed", state.StepResults[0].Status)
	}
}

func TestExecuteSagaTimeout(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	var trace []string

	c.SagaTimeout = 350 * time.Millisecond
	def := &Definition{
		Type: "publishDraft",
		Steps: []*Step{
			sleepStep("PrepareNotice", 200*time.Millisecond, &trace),
			sleepStep("DistributeNotice", 10*time.Second, &trace),
		},
	}

	res, err := c.Execute(ctx, def, Request{Context: map[string]interface{}{"draft_id": "draft-6"}})
	if !IsCode(err, CodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "saga timed out") {
		t.Errorf("wrong timeout message: %v", err)
	}
	// Compensation still runs after the deadline.
	sameTrace(t, trace, []string{"undo:PrepareNotice"})
	if res.Status != StatusCompensated {
		t.Errorf("status = %s, want compensated", res.Status)
	}
}

func TestResourceKey(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
		want   string
	}{
		{"record id", map[string]interface{}{"record_id": "bylaw-1"}, "record:bylaw-1"},
		{"record id camel", map[string]interface{}{"recordId": "bylaw-2"}, "record:bylaw-2"},
		{"draft id", map[string]interface{}{"draft_id": "draft-1"}, "draft:draft-1"},
		{"draft id camel", map[string]interface{}{"draftId": "draft-2"}, "draft:draft-2"},
		{"record wins over draft", map[string]interface{}{"record_id": "r", "draft_id": "d"}, "record:r"},
		{"non-string ignored", map[string]interface{}{"record_id": 42, "draft_id": "d"}, "draft:d"},
		{"empty", map[string]interface{}{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResourceKey(tt.values); got != tt.want {
				t.Errorf("ResourceKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCriticalStep(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"CommitToGit", true},
		{"MoveFileToArchive", true},
		{"MoveToRecords", true},
		{"DeleteDraft", true},
		{"PublishNotice", true},
		{"CreateInRecords", false},
		{"QueueIndexing", false},
		{"EmitHooks", false},
		{"UpdateStatusToArchived", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCriticalStep(tt.name); got != tt.want {
				t.Errorf("IsCriticalStep(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNewStepDefaults(t *testing.T) {
	exec := func(ctx context.Context, sctx *Context) (map[string]interface{}, error) { return nil, nil }
	comp := func(ctx context.Context, sctx *Context, result *StepResult) error { return nil }

	git := NewStep("CommitToGit", exec, nil)
	if git.Compensatable || !git.Critical {
		t.Errorf("CommitToGit: compensatable=%v critical=%v", git.Compensatable, git.Critical)
	}
	file := NewStep("CreateFile", exec, comp)
	if !file.Compensatable || file.Critical {
		t.Errorf("CreateFile: compensatable=%v critical=%v", file.Compensatable, file.Critical)
	}
}

func TestContextHelpers(t *testing.T) {
	sctx := &Context{Values: map[string]interface{}{"record_id": "bylaw-1", "count": 3}}

	if v := sctx.StringValue("record_id"); v != "bylaw-1" {
		t.Errorf("StringValue = %q", v)
	}
	if v := sctx.StringValue("count"); v != "" {
		t.Errorf("non-string should yield empty, got %q", v)
	}
	if _, ok := sctx.Value("missing"); ok {
		t.Error("missing key reported present")
	}

	sctx.SetValue("title", "Noise Bylaw")
	if v, _ := sctx.Value("title"); v != "Noise Bylaw" {
		t.Errorf("SetValue lost: %v", v)
	}

	if r := sctx.Result("nothing"); r != nil {
		t.Errorf("expected nil result, got %+v", r)
	}
	if d := sctx.StepData("nothing"); d != nil {
		t.Errorf("expected nil data, got %+v", d)
	}
}
