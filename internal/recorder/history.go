package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/fieldtrack/internal/geo"
	"github.com/banshee-data/fieldtrack/internal/importer"
	"github.com/banshee-data/fieldtrack/internal/store"
	"github.com/banshee-data/fieldtrack/internal/syncer"
	"github.com/banshee-data/fieldtrack/internal/track"
)

// List returns finished sessions, most recent first. An empty UserID in f
// means the signed-in user; only admins may list another user.
func (r *Recorder) List(ctx context.Context, f store.Filter) ([]track.Session, error) {
	id, ok := r.auth.Current(ctx)
	if !ok {
		return nil, fmt.Errorf("not signed in: %w", ErrPermission)
	}
	if f.UserID == "" {
		f.UserID = id.UserID
	}
	if err := r.checkOwner(ctx, f.UserID); err != nil {
		return nil, err
	}
	return r.store.All(ctx, f)
}

// ListRemote returns the signed-in user's sessions as the remote service
// has them, including ones this device never recorded.
func (r *Recorder) ListRemote(ctx context.Context, companyID string) ([]track.Session, error) {
	id, ok := r.auth.Current(ctx)
	if !ok {
		return nil, fmt.Errorf("not signed in: %w", ErrPermission)
	}
	if r.remote == nil {
		return nil, ErrNoRemote
	}
	sessions, err := r.remote.List(ctx, id.UserID, companyID)
	if err != nil {
		return nil, fmt.Errorf("list remote sessions: %w", err)
	}
	if sessions == nil {
		sessions = []track.Session{}
	}
	return sessions, nil
}

// Session returns a finished session, or the in-progress one when id
// matches it. Only the owner and admins may read it.
func (r *Recorder) Session(ctx context.Context, id string) (track.Session, error) {
	s, err := r.lookup(ctx, id)
	if err != nil {
		return track.Session{}, err
	}
	if err := r.checkOwner(ctx, s.UserID); err != nil {
		return track.Session{}, err
	}
	return s, nil
}

func (r *Recorder) lookup(ctx context.Context, id string) (track.Session, error) {
	r.mu.Lock()
	if r.session.ID == id && (r.state == StateRecording || r.state == StatePaused || r.state == StateFinalizing) {
		s := r.session.Clone()
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()
	return r.store.Get(ctx, id)
}

// Delete removes a finished session of the signed-in user. A synced
// session is deleted remotely first, by the id the remote assigned; if that
// fails the local copy is kept and the error returned.
func (r *Recorder) Delete(ctx context.Context, id string) error {
	s, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.checkOwner(ctx, s.UserID); err != nil {
		return err
	}
	if s.Synced {
		if r.remote == nil {
			return fmt.Errorf("delete session %s: %w", id, ErrNoRemote)
		}
		// entries synced before remote ids were recorded used the local id
		remoteID := s.RemoteID
		if remoteID == "" {
			remoteID = s.ID
		}
		if err := r.remote.Delete(ctx, remoteID); err != nil {
			return fmt.Errorf("delete remote copy %s of session %s: %w", remoteID, id, err)
		}
	}
	if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	logf("deleted session %s", id)
	return nil
}

// Stops returns the stationary intervals of a session.
func (r *Recorder) Stops(ctx context.Context, id string) ([]geo.Stop, error) {
	s, err := r.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	stops := geo.DetectStops(s.GeoPoints(), r.stopOpts)
	if stops == nil {
		stops = []geo.Stop{}
	}
	return stops, nil
}

// Summary returns derived statistics for a session.
func (r *Recorder) Summary(ctx context.Context, id string) (geo.Summary, error) {
	s, err := r.Session(ctx, id)
	if err != nil {
		return geo.Summary{}, err
	}
	return geo.Summarize(s.GeoPoints(), r.stopOpts), nil
}

// Import turns a GPX document into a completed session for the signed-in
// user, queues it and pushes it once. The active recording, if any, is not
// touched.
func (r *Recorder) Import(ctx context.Context, name string, src io.Reader) (track.Session, error) {
	who, err := r.authorize(ctx)
	if err != nil {
		return track.Session{}, err
	}
	if r.State() == StateClosed {
		return track.Session{}, ErrClosed
	}

	s, err := importer.ParseGPX(name, src, importer.Owner{
		ID:       r.newID(),
		UserID:   who.UserID,
		UserName: who.UserName,
	}, r.clock.Now())
	if err != nil {
		return track.Session{}, err
	}

	wctx := context.WithoutCancel(ctx)
	if err := r.store.Put(wctx, s); err != nil {
		return track.Session{}, &StorageError{Op: "queue write", Err: err}
	}
	if r.sync != nil && r.sync.Push(wctx, s) == syncer.ResultSynced {
		s = r.reloadSynced(wctx, s)
	}
	logf("imported %s as session %s with %d points", name, s.ID, len(s.Points))
	return s, nil
}

// reloadSynced returns the queue entry after a successful push so the
// caller sees the remote id recorded by the sync service.
func (r *Recorder) reloadSynced(ctx context.Context, s track.Session) track.Session {
	got, err := r.store.Get(ctx, s.ID)
	if err != nil {
		logf("reload synced session %s: %v", s.ID, err)
		return track.MarkSynced(s, "")
	}
	return got
}
