package recorder

import (
	"context"
	"errors"

	"github.com/banshee-data/fieldtrack/internal/store"
	"github.com/banshee-data/fieldtrack/internal/syncer"
	"github.com/banshee-data/fieldtrack/internal/track"
)

// StartOptions tags the new session.
type StartOptions struct {
	CompanyID string   `json:"company_id"`
	FieldIDs  []string `json:"field_ids"`
}

// FinishOptions controls how a recording ends. Save=false discards it.
type FinishOptions struct {
	Save  bool   `json:"save"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// Start begins a new session for the signed-in user. A failed Start leaves
// the recorder unchanged.
func (r *Recorder) Start(ctx context.Context, opts StartOptions) (track.Session, error) {
	id, err := r.authorize(ctx)
	if err != nil {
		return track.Session{}, err
	}
	if !r.source.Available() {
		return track.Session{}, ErrUnsupportedEnvironment
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateIdle:
	case StateClosed:
		return track.Session{}, ErrClosed
	default:
		return track.Session{}, ErrAlreadyRecording
	}

	r.session = track.NewSession(r.newID(), id.UserID, id.UserName, opts.CompanyID, opts.FieldIDs, r.clock.Now())
	r.elapsed = 0
	r.lastErr = nil
	r.state = StateRecording
	r.startStreamLocked()
	r.snapshotLocked()
	logf("started session %s for %s", r.session.ID, id.UserID)
	return r.session.Clone(), nil
}

// Pause stops listening for fixes. Pausing a paused recording is a no-op.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StatePaused:
		return nil
	case StateRecording:
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotRecording
	}
	r.stopStreamLocked()
	r.state = StatePaused
	r.snapshotLocked()
	return nil
}

// Resume continues a paused recording. Resuming a running recording is a
// no-op.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateRecording:
		return nil
	case StatePaused:
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotRecording
	}
	r.state = StateRecording
	r.startStreamLocked()
	return nil
}

// Finish ends the recording. With Save the session is sealed, written to
// the local queue and pushed once; the push result only shows in the
// returned session's Synced flag. Once the session is sealed the work is
// not cancelled by ctx. Without Save the session is discarded and nil is
// returned.
func (r *Recorder) Finish(ctx context.Context, opts FinishOptions) (*track.Session, error) {
	r.mu.Lock()
	switch r.state {
	case StateRecording, StatePaused:
	case StateClosed:
		r.mu.Unlock()
		return nil, ErrClosed
	default:
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.stopStreamLocked()

	if !opts.Save {
		logf("discarded session %s", r.session.ID)
		r.session = track.Session{}
		r.state = StateIdle
		r.elapsed = 0
		r.mu.Unlock()
		if err := r.store.DeleteActive(context.WithoutCancel(ctx)); err != nil {
			logf("failed to clear active session: %v", err)
		}
		return nil, nil
	}

	sealed := r.session
	final := track.Complete(sealed, r.clock.Now(), opts.Name, opts.Notes)
	r.state = StateFinalizing
	r.finalizing.Add(1)
	r.mu.Unlock()
	defer r.finalizing.Done()

	wctx := context.WithoutCancel(ctx)
	if err := r.store.Put(wctx, final); err != nil {
		r.mu.Lock()
		if r.state == StateFinalizing {
			r.session = sealed
			r.state = StatePaused
		}
		r.mu.Unlock()
		logf("failed to queue session %s: %v", final.ID, err)
		return nil, &StorageError{Op: "queue write", Err: err}
	}
	if err := r.store.DeleteActive(wctx); err != nil {
		logf("failed to clear active session: %v", err)
	}

	if r.sync != nil && r.sync.Push(wctx, final) == syncer.ResultSynced {
		final = r.reloadSynced(wctx, final)
	}

	r.mu.Lock()
	if r.state == StateFinalizing {
		r.state = StateIdle
		r.session = track.Session{}
		r.elapsed = 0
	}
	r.mu.Unlock()
	logf("finished session %s: %d points, %.3f km, synced=%t", final.ID, len(final.Points), final.DistanceKm, final.Synced)
	return &final, nil
}

// Recover restores a session left in the active slot by an unclean
// shutdown. It comes back paused; nil means there was nothing to recover
// for the signed-in user.
func (r *Recorder) Recover(ctx context.Context) (*track.Session, error) {
	id, err := r.authorize(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := r.store.GetActive(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "active slot read", Err: err}
	}
	if snap.UserID != id.UserID {
		logf("active session %s belongs to %s, not recovering", snap.ID, snap.UserID)
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateIdle:
	case StateClosed:
		return nil, ErrClosed
	default:
		return nil, ErrAlreadyRecording
	}
	snap.Status = track.StatusRecording
	r.session = snap
	r.state = StatePaused
	r.elapsed = 0
	r.lastErr = nil
	logf("recovered session %s with %d points", snap.ID, len(snap.Points))
	s := snap.Clone()
	return &s, nil
}

// Close stops any recording, waits for an in-flight Finish and makes the
// recorder unusable. An unfinished session stays in the active slot for
// Recover.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return nil
	}
	if r.state == StateRecording || r.state == StatePaused {
		r.stopStreamLocked()
		r.snapshotLocked()
	}
	r.state = StateClosed
	r.mu.Unlock()

	r.finalizing.Wait()
	return nil
}
