package recorder

import (
	"context"
	"time"

	"github.com/banshee-data/fieldtrack/internal/geosource"
	"github.com/banshee-data/fieldtrack/internal/timeutil"
	"github.com/banshee-data/fieldtrack/internal/track"
)

// startStreamLocked subscribes under a new generation, takes the wake lock
// and starts the tick task.
func (r *Recorder) startStreamLocked() {
	r.generation++
	gen := r.generation
	sub := r.source.Subscribe()
	r.subID = sub.ID
	go r.pump(gen, sub)

	if err := r.guard.Acquire(); err != nil {
		logf("wake lock unavailable: %v", err)
	}
	r.tick = startTick(r.clock, r.tickInterval, func() { r.onTick(gen) })
}

// stopStreamLocked undoes startStreamLocked. Fixes already in flight carry
// the old generation and are dropped.
func (r *Recorder) stopStreamLocked() {
	r.generation++
	if r.subID != "" {
		r.source.Unsubscribe(r.subID)
		r.subID = ""
	}
	if err := r.guard.Release(); err != nil {
		logf("wake lock release failed: %v", err)
	}
	if r.tick != nil {
		r.tick.stop()
		r.tick = nil
	}
}

func (r *Recorder) pump(gen uint64, sub geosource.Subscription) {
	fixes, errs := sub.Fixes, sub.Errors
	for fixes != nil || errs != nil {
		select {
		case fix, ok := <-fixes:
			if !ok {
				fixes = nil
				continue
			}
			r.ingest(gen, fix)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.sourceError(gen, err)
		}
	}
}

// ingest runs one fix through the point filter. ok is false when the fix
// belongs to a stale subscription or arrived outside Recording.
func (r *Recorder) ingest(gen uint64, fix track.Fix) (decision track.Decision, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation || r.state != StateRecording {
		return decision, false
	}
	next, decision := r.filter.Apply(r.session, fix)
	if decision != track.Accepted {
		return decision, true
	}
	r.session = next
	if r.snapInterval <= 0 || r.clock.Now().Sub(r.lastSnapshot) >= r.snapInterval {
		r.snapshotLocked()
	}
	return decision, true
}

func (r *Recorder) sourceError(gen uint64, err error) {
	r.mu.Lock()
	current := gen == r.generation
	if current {
		r.lastErr = err
	}
	hook := r.onSourceError
	r.mu.Unlock()
	if !current {
		return
	}
	logf("geolocation error: %v", err)
	if hook != nil {
		hook(err)
	}
}

func (r *Recorder) onTick(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen == r.generation && r.state == StateRecording {
		r.elapsed += r.tickInterval
	}
}

// snapshotLocked writes the in-progress session to the active slot.
// Failures are logged; recording goes on.
func (r *Recorder) snapshotLocked() {
	r.lastSnapshot = r.clock.Now()
	if err := r.store.PutActive(context.Background(), r.session.Clone()); err != nil {
		logf("failed to snapshot session %s: %v", r.session.ID, err)
	}
}

// tickTask calls fn on every tick until stopped.
type tickTask struct {
	ticker timeutil.Ticker
	cancel context.CancelFunc
	done   chan struct{}
}

func startTick(clock timeutil.Clock, interval time.Duration, fn func()) *tickTask {
	ctx, cancel := context.WithCancel(context.Background())
	t := &tickTask{ticker: clock.NewTicker(interval), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.ticker.C():
				fn()
			}
		}
	}()
	return t
}

// stop cancels the task without waiting for it: fn may be blocked on the
// recorder mutex held by the caller.
func (t *tickTask) stop() {
	t.ticker.Stop()
	t.cancel()
}
