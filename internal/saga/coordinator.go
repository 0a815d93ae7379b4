package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default execution limits. Definitions and individual steps can
// override them.
const (
	DefaultStepTimeout = 60 * time.Second
	DefaultSagaTimeout = 5 * time.Minute
)

// criticalMarkers flags steps whose effects reach shared state that
// cannot be rolled back blindly (git history, published files).
var criticalMarkers = []string{"git", "commit", "publish", "move", "delete"}

// IsCriticalStep reports whether a step name marks a critical side
// effect. NewStep uses this to default the Critical flag.
func IsCriticalStep(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range criticalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ExecuteFunc runs a step's forward action and returns the data to
// record in the step result.
type ExecuteFunc func(ctx context.Context, sctx *Context) (map[string]interface{}, error)

// CompensateFunc undoes a completed step using its recorded result.
type CompensateFunc func(ctx context.Context, sctx *Context, result *StepResult) error

// Step is one unit of work inside a saga definition.
type Step struct {
	Name          string
	Compensatable bool
	Critical      bool
	Timeout       time.Duration
	Execute       ExecuteFunc
	Compensate    CompensateFunc
}

// NewStep builds a step, deriving Compensatable from the presence of a
// compensate function and Critical from the step name.
func NewStep(name string, execute ExecuteFunc, compensate CompensateFunc) *Step {
	return &Step{
		Name:          name,
		Compensatable: compensate != nil,
		Critical:      IsCriticalStep(name),
		Execute:       execute,
		Compensate:    compensate,
	}
}

// Definition describes a saga type: its ordered steps plus optional
// context validation and an overall timeout override.
type Definition struct {
	Type     string
	Version  string
	Steps    []*Step
	Validate func(values map[string]interface{}) error
	Timeout  time.Duration
}

// Context carries the shared saga state that steps read and write.
// Step results accumulate here so later steps can see earlier output.
type Context struct {
	SagaID         string
	CorrelationID  string
	User           string
	IdempotencyKey string
	Values         map[string]interface{}

	results []*StepResult
}

// Value returns a context value and whether it is set.
func (c *Context) Value(key string) (interface{}, bool) {
	v, ok := c.Values[key]
	return v, ok
}

// SetValue stores a context value for later steps.
func (c *Context) SetValue(key string, v interface{}) {
	if c.Values == nil {
		c.Values = make(map[string]interface{})
	}
	c.Values[key] = v
}

// StringValue returns a context value as a string, or "" when unset or
// not a string.
func (c *Context) StringValue(key string) string {
	if s, ok := c.Values[key].(string); ok {
		return s
	}
	return ""
}

// Results returns the step results recorded so far, in execution order.
func (c *Context) Results() []*StepResult {
	return c.results
}

// Result returns the recorded result for a named step, or nil.
func (c *Context) Result(step string) *StepResult {
	for _, r := range c.results {
		if r.Step == step {
			return r
		}
	}
	return nil
}

// StepData returns the data recorded by a named step, or nil.
func (c *Context) StepData(step string) map[string]interface{} {
	if r := c.Result(step); r != nil {
		return r.Data
	}
	return nil
}

// Request carries the caller-supplied inputs for one saga run.
type Request struct {
	Context        map[string]interface{}
	User           string
	CorrelationID  string
	IdempotencyKey string
}

// Result reports the outcome of a saga run.
type Result struct {
	SagaID             string
	CorrelationID      string
	Status             Status
	StepResults        []*StepResult
	Output             map[string]interface{}
	CompensationStatus CompensationStatus
	Replayed           bool
}

// Coordinator drives saga execution: locking, state persistence, step
// timeouts, and reverse-order compensation on failure.
type Coordinator struct {
	store       *StateStore
	locks       *LockManager
	idempotency *IdempotencyManager
	metrics     *Metrics

	StepTimeout time.Duration
	SagaTimeout time.Duration
	LockTimeout time.Duration
	Logf        func(format string, args ...interface{})
}

// NewCoordinator wires a coordinator with default timeouts.
func NewCoordinator(store *StateStore, locks *LockManager, idem *IdempotencyManager, metrics *Metrics) *Coordinator {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Coordinator{
		store:       store,
		locks:       locks,
		idempotency: idem,
		metrics:     metrics,
		StepTimeout: DefaultStepTimeout,
		SagaTimeout: DefaultSagaTimeout,
		LockTimeout: DefaultLockTimeout,
	}
}

// Metrics exposes the collector for status reporting.
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

func (c *Coordinator) logf(format string, args ...interface{}) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// ResourceKey derives the lock key for a saga context. Record sagas
// lock record:<id>, draft sagas lock draft:<id>.
func ResourceKey(values map[string]interface{}) string {
	for _, key := range []string{"record_id", "recordId"} {
		if id, ok := values[key].(string); ok && id != "" {
			return "record:" + id
		}
	}
	for _, key := range []string{"draft_id", "draftId"} {
		if id, ok := values[key].(string); ok && id != "" {
			return "draft:" + id
		}
	}
	return ""
}

// Execute runs a saga definition to completion or through compensation.
// Completed runs repeated under the same idempotency key replay the
// cached result instead of executing again.
func (c *Coordinator) Execute(ctx context.Context, def *Definition, req Request) (*Result, error) {
	if def == nil || len(def.Steps) == 0 {
		return nil, fmt.Errorf("saga definition has no steps")
	}

	startedAt := time.Now().UTC()

	key := req.IdempotencyKey
	if key != "" && c.idempotency != nil {
		cached, err := c.idempotency.CachedResult(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency cache: %w", err)
		}
		if cached != nil {
			return replayResult(cached), nil
		}
	}
	if key == "" {
		key = DeriveKey(def.Type, req.User, startedAt, req.Context)
	}

	if def.Validate != nil {
		if err := def.Validate(req.Context); err != nil {
			return nil, NewContextError(err)
		}
	}

	id := uuid.New().String()
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	sctx := &Context{
		SagaID:         id,
		CorrelationID:  correlationID,
		User:           req.User,
		IdempotencyKey: key,
		Values:         copyValues(req.Context),
	}

	// State writes and compensation must survive caller cancellation
	// and the saga deadline.
	persist := context.WithoutCancel(ctx)

	if c.locks != nil {
		if resourceKey := ResourceKey(sctx.Values); resourceKey != "" {
			if _, err := c.locks.AcquireLock(ctx, resourceKey, id, c.LockTimeout); err != nil {
				return nil, err
			}
			defer func() {
				if err := c.locks.ReleaseLock(persist, resourceKey, id); err != nil {
					c.logf("saga %s: failed to release lock %s: %v", id, resourceKey, err)
				}
			}()
		}
	}

	instance := &Instance{
		ID:             id,
		SagaType:       def.Type,
		SagaVersion:    def.Version,
		Context:        sctx.Values,
		Status:         StatusExecuting,
		CurrentStep:    0,
		StartedAt:      startedAt,
		IdempotencyKey: key,
		CorrelationID:  correlationID,
	}
	if err := c.store.SaveState(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save saga state: %w", err)
	}

	sagaTimeout := def.Timeout
	if sagaTimeout <= 0 {
		sagaTimeout = c.SagaTimeout
	}
	sagaCtx, cancel := context.WithTimeout(ctx, sagaTimeout)
	defer cancel()

	results := make([]*StepResult, 0, len(def.Steps))
	for i, step := range def.Steps {
		if i > 0 {
			if err := c.store.UpdateStatus(persist, id, StatusExecuting, i, ""); err != nil {
				c.logf("saga %s: failed to update current step: %v", id, err)
			}
		}

		result, stepErr := c.runStep(sagaCtx, id, step, sctx, sagaTimeout)
		results = append(results, result)
		sctx.results = results
		if err := c.store.UpdateStepResults(persist, id, results); err != nil {
			c.logf("saga %s: failed to persist step results: %v", id, err)
		}

		if stepErr != nil {
			return c.compensate(persist, def, sctx, results, i, stepErr, startedAt)
		}
	}

	if err := c.store.UpdateStatus(persist, id, StatusCompleted, -1, ""); err != nil {
		c.logf("saga %s: failed to mark completed: %v", id, err)
	}
	c.metrics.RecordExecution(def.Type, time.Since(startedAt), true)

	res := &Result{
		SagaID:        id,
		CorrelationID: correlationID,
		Status:        StatusCompleted,
		StepResults:   results,
	}
	if last := len(results) - 1; last >= 0 {
		res.Output = results[last].Data
	}
	return res, nil
}

// runStep executes one step under its timeout and records the outcome.
func (c *Coordinator) runStep(sagaCtx context.Context, sagaID string, step *Step, sctx *Context, sagaTimeout time.Duration) (*StepResult, error) {
	stepTimeout := step.Timeout
	if stepTimeout <= 0 {
		stepTimeout = c.StepTimeout
	}
	stepCtx, cancel := context.WithTimeout(sagaCtx, stepTimeout)
	defer cancel()

	start := time.Now().UTC()
	result := &StepResult{Step: step.Name, StartedAt: start}

	type outcome struct {
		data map[string]interface{}
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := step.Execute(stepCtx, sctx)
		done <- outcome{data: data, err: err}
	}()

	timeoutErr := func() *Error {
		if sagaCtx.Err() != nil {
			return NewTimeoutError(sagaID, step.Name, fmt.Sprintf("saga timed out after %s", sagaTimeout))
		}
		return NewTimeoutError(sagaID, step.Name, fmt.Sprintf("step timed out after %s", stepTimeout))
	}

	var stepErr error
	select {
	case out := <-done:
		switch {
		case out.err == nil:
			result.Data = out.data
		case errors.Is(out.err, context.DeadlineExceeded):
			stepErr = timeoutErr()
		default:
			stepErr = NewStepError(sagaID, step.Name, out.err)
		}
	case <-stepCtx.Done():
		stepErr = timeoutErr()
	}

	result.CompletedAt = time.Now().UTC()
	if stepErr != nil {
		result.Status = StepFailed
		result.Error = stepErr.Error()
	} else {
		result.Status = StepCompleted
	}
	return result, stepErr
}

// compensate walks completed steps in reverse, undoing what it can and
// deciding the compensation outcome. It always runs on a context that
// outlives the saga deadline.
func (c *Coordinator) compensate(persist context.Context, def *Definition, sctx *Context, results []*StepResult, failedIdx int, stepErr error, startedAt time.Time) (*Result, error) {
	id := sctx.SagaID
	c.logf("saga %s (%s) step %s failed: %v", id, def.Type, def.Steps[failedIdx].Name, stepErr)

	if err := c.store.UpdateStatus(persist, id, StatusFailed, failedIdx, stepErr.Error()); err != nil {
		c.logf("saga %s: failed to mark failed: %v", id, err)
	}
	c.metrics.RecordExecution(def.Type, time.Since(startedAt), false)

	if err := c.store.UpdateStatus(persist, id, StatusCompensating, -1, ""); err != nil {
		c.logf("saga %s: failed to mark compensating: %v", id, err)
	}
	if err := c.store.UpdateCompensationStatus(persist, id, CompensationExecuting, ""); err != nil {
		c.logf("saga %s: failed to mark compensation executing: %v", id, err)
	}

	var (
		failedSteps     []string
		skippedCritical []string
		criticalFailed  bool
	)
	for j := failedIdx - 1; j >= 0; j-- {
		step := def.Steps[j]
		if results[j].Status != StepCompleted {
			continue
		}
		if !step.Compensatable || step.Compensate == nil {
			if step.Critical {
				skippedCritical = append(skippedCritical, step.Name)
				c.logf("saga %s: critical step %s cannot be compensated", id, step.Name)
			}
			continue
		}

		compTimeout := step.Timeout
		if compTimeout <= 0 {
			compTimeout = c.StepTimeout
		}
		compCtx, cancel := context.WithTimeout(persist, compTimeout)
		err := step.Compensate(compCtx, sctx, results[j])
		cancel()

		if err != nil {
			results[j].Status = StepCompensationFailed
			results[j].Error = err.Error()
			failedSteps = append(failedSteps, step.Name)
			if step.Critical {
				criticalFailed = true
			}
			c.logf("saga %s: compensation for step %s failed: %v", id, step.Name, err)
			continue
		}
		results[j].Status = StepCompensated
	}
	sctx.results = results
	if err := c.store.UpdateStepResults(persist, id, results); err != nil {
		c.logf("saga %s: failed to persist compensation results: %v", id, err)
	}

	compStatus := CompensationCompleted
	switch {
	case criticalFailed:
		compStatus = CompensationFailed
	case len(failedSteps) > 0 || len(skippedCritical) > 0:
		compStatus = CompensationPartial
	}

	var compMsgs []string
	if len(failedSteps) > 0 {
		compMsgs = append(compMsgs, fmt.Sprintf("compensation failed for steps: %s", strings.Join(failedSteps, ", ")))
	}
	if len(skippedCritical) > 0 {
		compMsgs = append(compMsgs, fmt.Sprintf("critical steps not compensatable: %s", strings.Join(skippedCritical, ", ")))
	}
	compMsg := strings.Join(compMsgs, "; ")
	if err := c.store.UpdateCompensationStatus(persist, id, compStatus, compMsg); err != nil {
		c.logf("saga %s: failed to record compensation status: %v", id, err)
	}

	finalStatus := StatusFailed
	if compStatus == CompensationCompleted {
		finalStatus = StatusCompensated
	}
	if err := c.store.UpdateStatus(persist, id, finalStatus, -1, ""); err != nil {
		c.logf("saga %s: failed to record final status: %v", id, err)
	}
	c.metrics.RecordCompensation(def.Type, compStatus == CompensationFailed)

	runErr := stepErr
	if criticalFailed || len(skippedCritical) > 0 {
		runErr = &Error{
			Code:    CodeUncompensatable,
			SagaID:  id,
			Step:    def.Steps[failedIdx].Name,
			Message: compMsg,
			Err:     stepErr,
		}
	}

	return &Result{
		SagaID:             id,
		CorrelationID:      sctx.CorrelationID,
		Status:             finalStatus,
		StepResults:        results,
		CompensationStatus: compStatus,
	}, runErr
}

// replayResult rebuilds a Result from a cached completed saga.
func replayResult(cached *Instance) *Result {
	res := &Result{
		SagaID:             cached.ID,
		CorrelationID:      cached.CorrelationID,
		Status:             cached.Status,
		StepResults:        cached.StepResults,
		CompensationStatus: cached.CompensationStatus,
		Replayed:           true,
	}
	if last := cached.LastStepResult(); last != nil {
		res.Output = last.Data
	}
	return res
}

func copyValues(values map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
