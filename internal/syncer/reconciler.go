package syncer

import (
	"context"
	"time"

	"github.com/banshee-data/fieldtrack/internal/timeutil"
)

// DefaultReconcileInterval is how often queued sessions are retried.
const DefaultReconcileInterval = 5 * time.Minute

// Reconciler periodically re-pushes sessions left unsynced, for example
// because the device was offline at finish time.
type Reconciler struct {
	svc      *Service
	clock    timeutil.Clock
	interval time.Duration
}

func NewReconciler(svc *Service, clock timeutil.Clock, interval time.Duration) *Reconciler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{svc: svc, clock: clock, interval: interval}
}

// Run makes one pass immediately and then one per interval until ctx is
// done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.pass(ctx)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	n, err := r.svc.PushPending(ctx)
	if err != nil && ctx.Err() == nil {
		logf("reconcile pass failed: %v", err)
		return
	}
	if n > 0 {
		logf("reconciled %d queued session(s)", n)
	}
}
