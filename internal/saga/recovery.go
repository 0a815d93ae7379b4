package saga

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ManualInterventionSentinel prefixes the error of sagas whose
// compensation failed and which now need an operator to reconcile
// state by hand. Recovery never re-runs compensation.
const ManualInterventionSentinel = "[MANUAL_INTERVENTION_REQUIRED]"

// Recovery defaults, overridable per manager.
const (
	DefaultRecoveryInterval = 60 * time.Second
	DefaultStuckTimeout     = 5 * time.Minute
)

// RecoveryReport summarizes one recovery sweep.
type RecoveryReport struct {
	StuckMarked  int
	Annotated    int
	LocksRemoved int64
}

// RecoveryManager sweeps the saga store for runs that died mid-flight:
// it fails stuck executions, flags unrecoverable failures for manual
// intervention, and clears expired resource locks.
type RecoveryManager struct {
	store *StateStore
	locks *LockManager

	StuckTimeout time.Duration
	Interval     time.Duration
	Logf         func(format string, args ...interface{})
}

// NewRecoveryManager wires a manager with default timing.
func NewRecoveryManager(store *StateStore, locks *LockManager) *RecoveryManager {
	return &RecoveryManager{
		store:        store,
		locks:        locks,
		StuckTimeout: DefaultStuckTimeout,
		Interval:     DefaultRecoveryInterval,
	}
}

func (r *RecoveryManager) logf(format string, args ...interface{}) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// RunOnce performs a single sweep. The three phases are independent
// and run concurrently.
func (r *RecoveryManager) RunOnce(ctx context.Context) (*RecoveryReport, error) {
	report := &RecoveryReport{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := r.markStuck(gctx)
		report.StuckMarked = n
		return err
	})
	g.Go(func() error {
		n, err := r.annotateFailed(gctx)
		report.Annotated = n
		return err
	})
	g.Go(func() error {
		n, err := r.locks.CleanupExpiredLocks(gctx)
		report.LocksRemoved = n
		return err
	})
	if err := g.Wait(); err != nil {
		return report, &Error{Code: CodeRecoveryError, Message: "recovery sweep failed", Err: err}
	}
	return report, nil
}

// markStuck fails sagas that have stayed in executing longer than the
// stuck timeout. Their compensation is left to an operator; recovery
// only records the failure.
func (r *RecoveryManager) markStuck(ctx context.Context) (int, error) {
	stuck, err := r.store.GetStuckSagas(ctx, r.StuckTimeout)
	if err != nil {
		return 0, fmt.Errorf("failed to list stuck sagas: %w", err)
	}

	marked := 0
	for _, in := range stuck {
		reason := fmt.Sprintf("saga stuck in executing for more than %s", r.StuckTimeout)
		if err := r.store.UpdateStatus(ctx, in.ID, StatusFailed, -1, reason); err != nil {
			r.logf("recovery: failed to mark stuck saga %s: %v", in.ID, err)
			continue
		}
		r.logf("recovery: marked stuck saga %s (%s) as failed", in.ID, in.SagaType)
		marked++
	}
	return marked, nil
}

// annotateFailed prefixes the manual-intervention sentinel onto failed
// sagas whose compensation itself failed, once.
func (r *RecoveryManager) annotateFailed(ctx context.Context) (int, error) {
	failed, err := r.store.GetFailedSagas(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed sagas: %w", err)
	}

	annotated := 0
	for _, in := range failed {
		if in.CompensationStatus != CompensationFailed {
			continue
		}
		if strings.HasPrefix(in.Error, ManualInterventionSentinel) {
			continue
		}
		msg := ManualInterventionSentinel + " " + in.Error
		if err := r.store.UpdateStatus(ctx, in.ID, StatusFailed, -1, msg); err != nil {
			r.logf("recovery: failed to annotate saga %s: %v", in.ID, err)
			continue
		}
		r.logf("recovery: saga %s (%s) requires manual intervention", in.ID, in.SagaType)
		annotated++
	}
	return annotated, nil
}

// Run sweeps on the manager's interval until the context is canceled.
func (r *RecoveryManager) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := r.RunOnce(ctx)
			if err != nil {
				r.logf("recovery: sweep failed: %v", err)
				continue
			}
			if report.StuckMarked > 0 || report.Annotated > 0 || report.LocksRemoved > 0 {
				r.logf("recovery: marked %d stuck, annotated %d, removed %d expired locks",
					report.StuckMarked, report.Annotated, report.LocksRemoved)
			}
		}
	}
}
