package recorder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fieldtrack/internal/geosource"
	"github.com/banshee-data/fieldtrack/internal/importer"
	"github.com/banshee-data/fieldtrack/internal/monitoring"
	"github.com/banshee-data/fieldtrack/internal/store"
	"github.com/banshee-data/fieldtrack/internal/syncer"
	"github.com/banshee-data/fieldtrack/internal/timeutil"
	"github.com/banshee-data/fieldtrack/internal/track"
	"github.com/banshee-data/fieldtrack/internal/wakelock"
)

func init() {
	monitoring.SetLogger(nil)
}

var (
	t0         = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	technician = Identity{UserID: "u1", UserName: "Ana", Role: "technician"}
)

// fakeSource hands out buffered subscriptions the test can feed.
type fakeSource struct {
	mu        sync.Mutex
	available bool
	n         int
	subs      map[string]chan track.Fix
	errs      map[string]chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{available: true, subs: map[string]chan track.Fix{}, errs: map[string]chan error{}}
}

func (f *fakeSource) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeSource) Subscribe() geosource.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	id := fmt.Sprintf("sub-%d", f.n)
	fixes, errs := make(chan track.Fix, 16), make(chan error, 4)
	f.subs[id], f.errs[id] = fixes, errs
	return geosource.Subscription{ID: id, Fixes: fixes, Errors: errs}
}

func (f *fakeSource) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		close(ch)
		close(f.errs[id])
		delete(f.subs, id)
		delete(f.errs, id)
	}
}

func (f *fakeSource) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSource) send(fix track.Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- fix
	}
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.errs {
		ch <- err
	}
}

// flakyStore fails queue writes on demand.
type flakyStore struct {
	*store.Store
	mu     sync.Mutex
	putErr error
}

func (f *flakyStore) Put(ctx context.Context, s track.Session) error {
	f.mu.Lock()
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Put(ctx, s)
}

func (f *flakyStore) setPutErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putErr = err
}

// recordingPusher checks the session is already queued when pushed.
type recordingPusher struct {
	t      *testing.T
	st     *store.Store
	result syncer.Result
	mu     sync.Mutex
	pushed []string
}

func (p *recordingPusher) Push(ctx context.Context, s track.Session) syncer.Result {
	queued, err := p.st.Get(ctx, s.ID)
	assert.NoError(p.t, err, "push before queue write")
	assert.False(p.t, queued.Synced)
	p.mu.Lock()
	p.pushed = append(p.pushed, s.ID)
	p.mu.Unlock()
	if p.result == syncer.ResultSynced {
		require.NoError(p.t, p.st.MarkSynced(ctx, s.ID, "remote-"+s.ID))
	}
	return p.result
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushed)
}

type countingPlatform struct {
	mu       sync.Mutex
	requests int
	releases int
}

type countingHandle struct{ p *countingPlatform }

func (p *countingPlatform) Request() (wakelock.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	return countingHandle{p}, nil
}

func (h countingHandle) Release() error {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	h.p.releases++
	return nil
}

func (countingHandle) OnRelease(func()) {}

type fakeRemote struct {
	mu       sync.Mutex
	err      error
	deleted  []string
	listed   []string
	sessions []track.Session
}

func (f *fakeRemote) List(_ context.Context, userID, companyID string) ([]track.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.listed = append(f.listed, userID+"/"+companyID)
	return f.sessions, nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type env struct {
	rec      *Recorder
	source   *fakeSource
	store    *flakyStore
	pusher   *recordingPusher
	remote   *fakeRemote
	clock    *timeutil.MockClock
	platform *countingPlatform
	guard    *wakelock.Guard
}

func newEnv(t *testing.T, mods ...func(*Options)) *env {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "fieldtrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	e := &env{
		source:   newFakeSource(),
		store:    &flakyStore{Store: st},
		pusher:   &recordingPusher{t: t, st: st, result: syncer.ResultFailed},
		remote:   &fakeRemote{},
		clock:    timeutil.NewMockClock(t0),
		platform: &countingPlatform{},
	}
	e.guard = wakelock.NewGuard(e.platform)
	n := 0
	opts := Options{
		Auth:   StaticAuth{Who: technician},
		Source: e.source,
		Store:  e.store,
		Sync:   e.pusher,
		Remote: e.remote,
		Guard:  e.guard,
		Clock:  e.clock,
		NewID: func() string {
			n++
			return fmt.Sprintf("session-%d", n)
		},
	}
	for _, mod := range mods {
		mod(&opts)
	}
	e.rec, err = New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.rec.Close() })
	return e
}

func fixAt(lat, lng, accuracy float64, ts time.Time) track.Fix {
	return track.Fix{Lat: lat, Lng: lng, AccuracyMeters: accuracy, Timestamp: ts}
}

func waitForPoints(t *testing.T, r *Recorder, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := r.Active().Session
		return s != nil && len(s.Points) == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestStart_Permission(t *testing.T) {
	tests := []struct {
		name string
		who  Identity
	}{
		{"signed out", Identity{}},
		{"viewer role", Identity{UserID: "u2", Role: "viewer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, func(o *Options) { o.Auth = StaticAuth{Who: tt.who} })
			_, err := e.rec.Start(context.Background(), StartOptions{})
			assert.ErrorIs(t, err, ErrPermission)
			assert.Equal(t, StateIdle, e.rec.State())
			assert.Zero(t, e.source.active())
		})
	}
}

func TestStart_AllowedRolesConfigurable(t *testing.T) {
	e := newEnv(t, func(o *Options) {
		o.Auth = StaticAuth{Who: Identity{UserID: "u3", Role: "agronomist"}}
		o.AllowedRoles = []string{"agronomist"}
	})
	_, err := e.rec.Start(context.Background(), StartOptions{})
	assert.NoError(t, err)
}

func TestStart_UnsupportedEnvironment(t *testing.T) {
	e := newEnv(t)
	e.source.available = false
	_, err := e.rec.Start(context.Background(), StartOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedEnvironment)
	assert.Equal(t, StateIdle, e.rec.State())
	assert.False(t, e.guard.Held())
}

func TestStart(t *testing.T) {
	e := newEnv(t)
	s, err := e.rec.Start(context.Background(), StartOptions{CompanyID: "c1", FieldIDs: []string{"f1"}})
	require.NoError(t, err)

	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "Ana", s.UserName)
	assert.Equal(t, "c1", s.CompanyID)
	assert.Equal(t, []string{"f1"}, s.FieldIDs)
	assert.Equal(t, track.StatusRecording, s.Status)
	assert.Empty(t, s.Points)
	assert.Equal(t, t0, s.StartTime)

	assert.Equal(t, StateRecording, e.rec.State())
	assert.Equal(t, 1, e.source.active())
	assert.True(t, e.guard.Held())
	assert.Equal(t, 1, e.clock.ActiveTickers())

	active, err := e.store.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-1", active.ID)

	_, err = e.rec.Start(context.Background(), StartOptions{})
	assert.ErrorIs(t, err, ErrAlreadyRecording)
	assert.Equal(t, 1, e.source.active())
}

func TestRecording_FiltersFixes(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	e.source.send(fixAt(-33.9, 18.4, 80, t0))
	e.source.send(fixAt(-33.9, 18.4, 5, t0.Add(time.Second)))
	waitForPoints(t, e.rec, 1)

	// 5.5 m away: dropped.
	e.source.send(fixAt(-33.90005, 18.4, 5, t0.Add(2*time.Second)))
	// 111 m away: kept.
	e.source.send(fixAt(-33.901, 18.4, 5, t0.Add(3*time.Second)))
	waitForPoints(t, e.rec, 2)

	s := e.rec.Active().Session
	assert.InDelta(t, 0.1112, s.DistanceKm, 0.001)
	assert.Equal(t, t0.Add(3*time.Second), s.Points[1].Timestamp)

	// Every accepted point is snapshotted by default.
	active, err := e.store.GetActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, active.Points, 2)
}

func TestPause_TwiceIsNoop(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	require.NoError(t, e.rec.Pause())
	require.NoError(t, e.rec.Pause())

	assert.Equal(t, StatePaused, e.rec.State())
	assert.Zero(t, e.source.active())
	assert.False(t, e.guard.Held())
	assert.Zero(t, e.clock.ActiveTickers())
	assert.Equal(t, 1, e.platform.releases)
}

func TestPauseResume_Errors(t *testing.T) {
	e := newEnv(t)
	assert.ErrorIs(t, e.rec.Pause(), ErrNotRecording)
	assert.ErrorIs(t, e.rec.Resume(), ErrNotRecording)
	_, err := e.rec.Finish(context.Background(), FinishOptions{Save: true})
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestResume(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	e.source.send(fixAt(1, 1, 5, t0))
	waitForPoints(t, e.rec, 1)
	require.NoError(t, e.rec.Pause())

	require.NoError(t, e.rec.Resume())
	require.NoError(t, e.rec.Resume())
	assert.Equal(t, StateRecording, e.rec.State())
	assert.Equal(t, 1, e.source.active())
	assert.True(t, e.guard.Held())
	assert.Equal(t, 1, e.clock.ActiveTickers())

	e.source.send(fixAt(1.001, 1, 5, t0.Add(time.Minute)))
	waitForPoints(t, e.rec, 2)
}

func TestIngest_DropsStaleGeneration(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	e.rec.mu.Lock()
	stale := e.rec.generation
	e.rec.mu.Unlock()

	require.NoError(t, e.rec.Pause())
	_, ok := e.rec.ingest(stale, fixAt(1, 1, 5, t0))
	assert.False(t, ok, "paused")

	require.NoError(t, e.rec.Resume())
	_, ok = e.rec.ingest(stale, fixAt(1, 1, 5, t0))
	assert.False(t, ok, "old generation after resume")
	assert.Empty(t, e.rec.Active().Session.Points)

	e.rec.mu.Lock()
	current := e.rec.generation
	e.rec.mu.Unlock()
	decision, ok := e.rec.ingest(current, fixAt(1, 1, 5, t0))
	assert.True(t, ok)
	assert.Equal(t, track.Accepted, decision)
}

func TestFinish_Discard(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	s, err := e.rec.Finish(context.Background(), FinishOptions{Save: false})
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, StateIdle, e.rec.State())
	assert.False(t, e.guard.Held())
	assert.Zero(t, e.source.active())
	assert.Zero(t, e.pusher.count())

	all, err := e.store.All(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = e.store.GetActive(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFinish_QueuesBeforePushAndKeepsUnsyncedOnFailure(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	e.source.send(fixAt(1, 1, 5, t0))
	waitForPoints(t, e.rec, 1)
	e.clock.Set(t0.Add(30 * time.Minute))

	s, err := e.rec.Finish(context.Background(), FinishOptions{Save: true, Name: "North block", Notes: "wet"})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.False(t, s.Synced)
	assert.Equal(t, track.StatusCompleted, s.Status)
	assert.Equal(t, "North block", s.Name)
	require.NotNil(t, s.EndTime)
	assert.Equal(t, t0.Add(30*time.Minute), *s.EndTime)
	assert.Equal(t, 1, e.pusher.count())
	assert.Equal(t, StateIdle, e.rec.State())

	queued, err := e.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, queued.Synced)
	assert.Equal(t, track.StatusCompleted, queued.Status)
	assert.Len(t, queued.Points, 1)

	_, err = e.store.GetActive(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFinish_Synced(t *testing.T) {
	e := newEnv(t)
	e.pusher.result = syncer.ResultSynced
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	s, err := e.rec.Finish(context.Background(), FinishOptions{Save: true})
	require.NoError(t, err)
	assert.True(t, s.Synced)
	assert.Equal(t, track.StatusSynced, s.Status)

	assert.Equal(t, "remote-"+s.ID, s.RemoteID)

	queued, err := e.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, queued.Synced)
	assert.Equal(t, "remote-"+s.ID, queued.RemoteID)
}

func TestFinish_NotCancelledByContext(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := e.rec.Finish(ctx, FinishOptions{Save: true})
	require.NoError(t, err)
	_, err = e.store.Get(context.Background(), s.ID)
	assert.NoError(t, err)
}

func TestFinish_StorageFailureKeepsSessionPaused(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	e.source.send(fixAt(1, 1, 5, t0))
	waitForPoints(t, e.rec, 1)

	e.store.setPutErr(errors.New("disk full"))
	s, err := e.rec.Finish(context.Background(), FinishOptions{Save: true})
	assert.Nil(t, s)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.EqualError(t, se.Err, "disk full")
	assert.Zero(t, e.pusher.count())

	snap := e.rec.Active()
	assert.Equal(t, StatePaused, snap.State)
	require.NotNil(t, snap.Session)
	assert.Len(t, snap.Session.Points, 1)
	assert.Nil(t, snap.Session.EndTime)

	e.store.setPutErr(nil)
	s, err = e.rec.Finish(context.Background(), FinishOptions{Save: true})
	require.NoError(t, err)
	assert.Len(t, s.Points, 1)
}

func TestTick_OnlyWhileRecording(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return e.rec.Elapsed() == time.Second }, time.Second, 5*time.Millisecond)
	e.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return e.rec.Elapsed() == 2*time.Second }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.rec.Pause())
	assert.Zero(t, e.clock.ActiveTickers())
	e.clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2*time.Second, e.rec.Elapsed())

	require.NoError(t, e.rec.Resume())
	e.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return e.rec.Elapsed() == 3*time.Second }, time.Second, 5*time.Millisecond)
}

func TestSourceErrorsDoNotChangeState(t *testing.T) {
	var mu sync.Mutex
	var seen []error
	e := newEnv(t, func(o *Options) {
		o.OnSourceError = func(err error) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, err)
		}
	})
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	e.source.fail(geosource.ErrNoFix)
	require.Eventually(t, func() bool { return errors.Is(e.rec.LastError(), geosource.ErrNoFix) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRecording, e.rec.State())
	assert.Equal(t, geosource.ErrNoFix.Error(), e.rec.Active().LastError)
	mu.Lock()
	assert.Len(t, seen, 1)
	mu.Unlock()
}

func TestSnapshotThrottle(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.SnapshotInterval = time.Minute })
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	e.source.send(fixAt(1, 1, 5, t0))
	waitForPoints(t, e.rec, 1)
	active, err := e.store.GetActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active.Points)

	e.clock.Set(t0.Add(time.Minute))
	e.source.send(fixAt(1.001, 1, 5, t0.Add(time.Minute)))
	waitForPoints(t, e.rec, 2)
	active, err = e.store.GetActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, active.Points, 2)
}

func TestRecover(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	got, err := e.rec.Recover(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	left := track.NewSession("crashed", "u1", "Ana", "c1", nil, t0)
	left = track.Append(left, track.TrackPoint{Lat: 1, Lng: 1, Timestamp: t0, AccuracyMeters: 5}, 0)
	require.NoError(t, e.store.PutActive(ctx, left))

	got, err = e.rec.Recover(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "crashed", got.ID)
	assert.Equal(t, StatePaused, e.rec.State())

	require.NoError(t, e.rec.Resume())
	e.source.send(fixAt(1.001, 1, 5, t0.Add(time.Minute)))
	waitForPoints(t, e.rec, 2)
}

func TestRecover_OtherUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.PutActive(ctx, track.NewSession("theirs", "u9", "Bo", "", nil, t0)))

	got, err := e.rec.Recover(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, StateIdle, e.rec.State())
}

func TestClose(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	require.NoError(t, e.rec.Close())
	require.NoError(t, e.rec.Close())
	assert.Equal(t, StateClosed, e.rec.State())
	assert.False(t, e.guard.Held())
	assert.Zero(t, e.source.active())
	assert.Zero(t, e.clock.ActiveTickers())

	_, err = e.rec.Start(context.Background(), StartOptions{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.rec.Pause(), ErrClosed)
	assert.ErrorIs(t, e.rec.Resume(), ErrClosed)
	_, err = e.rec.Finish(context.Background(), FinishOptions{Save: true})
	assert.ErrorIs(t, err, ErrClosed)

	// The unfinished session stays recoverable.
	active, err := e.store.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-1", active.ID)
}

func queueSession(t *testing.T, e *env, id string, synced bool) {
	t.Helper()
	s := track.NewSession(id, "u1", "Ana", "c1", nil, t0)
	for i, lat := range []float64{1, 1.00001, 1.00002, 1.01} {
		s = track.Append(s, track.TrackPoint{Lat: lat, Lng: 1, Timestamp: t0.Add(time.Duration(i) * time.Minute), AccuracyMeters: 5}, 0)
	}
	s = track.Complete(s, t0.Add(time.Hour), "", "")
	require.NoError(t, e.store.Put(context.Background(), s))
	if synced {
		require.NoError(t, e.store.MarkSynced(context.Background(), id, "remote-"+id))
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("unsynced is local only", func(t *testing.T) {
		e := newEnv(t)
		queueSession(t, e, "a", false)
		require.NoError(t, e.rec.Delete(ctx, "a"))
		assert.Empty(t, e.remote.deleted)
		_, err := e.store.Get(ctx, "a")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("synced deletes remote first by remote id", func(t *testing.T) {
		e := newEnv(t)
		queueSession(t, e, "a", true)
		require.NoError(t, e.rec.Delete(ctx, "a"))
		assert.Equal(t, []string{"remote-a"}, e.remote.deleted)
		_, err := e.store.Get(ctx, "a")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("synced without recorded remote id falls back to local id", func(t *testing.T) {
		e := newEnv(t)
		s := track.MarkSynced(track.Complete(track.NewSession("old", "u1", "Ana", "", nil, t0), t0, "", ""), "")
		require.NoError(t, e.store.Put(ctx, s))
		require.NoError(t, e.rec.Delete(ctx, "old"))
		assert.Equal(t, []string{"old"}, e.remote.deleted)
	})

	t.Run("synced without remote configured", func(t *testing.T) {
		e := newEnv(t, func(o *Options) { o.Remote = nil })
		queueSession(t, e, "a", true)
		assert.ErrorIs(t, e.rec.Delete(ctx, "a"), ErrNoRemote)
	})

	t.Run("another user's session", func(t *testing.T) {
		e := newEnv(t)
		theirs := track.Complete(track.NewSession("theirs", "u2", "Bo", "", nil, t0), t0, "", "")
		require.NoError(t, e.store.Put(ctx, theirs))
		assert.ErrorIs(t, e.rec.Delete(ctx, "theirs"), ErrPermission)
		_, err := e.store.Get(ctx, "theirs")
		assert.NoError(t, err)
	})

	t.Run("signed out", func(t *testing.T) {
		e := newEnv(t, func(o *Options) { o.Auth = StaticAuth{} })
		queueSession(t, e, "a", false)
		assert.ErrorIs(t, e.rec.Delete(ctx, "a"), ErrPermission)
	})

	t.Run("admin may delete any session", func(t *testing.T) {
		e := newEnv(t, func(o *Options) {
			o.Auth = StaticAuth{Who: Identity{UserID: "boss", Role: RoleAdmin}}
		})
		queueSession(t, e, "a", false)
		require.NoError(t, e.rec.Delete(ctx, "a"))
	})

	t.Run("remote failure keeps local copy", func(t *testing.T) {
		e := newEnv(t)
		e.remote.err = errors.New("503")
		queueSession(t, e, "a", true)
		assert.Error(t, e.rec.Delete(ctx, "a"))
		_, err := e.store.Get(ctx, "a")
		assert.NoError(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		e := newEnv(t)
		assert.ErrorIs(t, e.rec.Delete(ctx, "nope"), store.ErrNotFound)
	})
}

func TestList(t *testing.T) {
	e := newEnv(t)
	queueSession(t, e, "mine", false)
	other := track.Complete(track.NewSession("theirs", "u2", "Bo", "c1", nil, t0), t0, "", "")
	require.NoError(t, e.store.Put(context.Background(), other))

	sessions, err := e.rec.List(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "mine", sessions[0].ID)

	_, err = e.rec.List(context.Background(), store.Filter{UserID: "u2"})
	assert.ErrorIs(t, err, ErrPermission)

	admin := newEnv(t, func(o *Options) {
		o.Auth = StaticAuth{Who: Identity{UserID: "boss", Role: RoleAdmin}}
	})
	require.NoError(t, admin.store.Put(context.Background(), other))
	sessions, err = admin.rec.List(context.Background(), store.Filter{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "theirs", sessions[0].ID)
}

func TestListRemote(t *testing.T) {
	e := newEnv(t)
	e.remote.sessions = []track.Session{track.NewSession("srv-1", "u1", "Ana", "c1", nil, t0)}

	sessions, err := e.rec.ListRemote(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "srv-1", sessions[0].ID)
	assert.Equal(t, []string{"u1/c1"}, e.remote.listed)

	e.remote.err = errors.New("503")
	_, err = e.rec.ListRemote(context.Background(), "")
	assert.Error(t, err)

	noRemote := newEnv(t, func(o *Options) { o.Remote = nil })
	_, err = noRemote.rec.ListRemote(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoRemote)

	signedOut := newEnv(t, func(o *Options) { o.Auth = StaticAuth{} })
	_, err = signedOut.rec.ListRemote(context.Background(), "")
	assert.ErrorIs(t, err, ErrPermission)
}

func TestSession_Ownership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	queueSession(t, e, "mine", false)
	theirs := track.Complete(track.NewSession("theirs", "u2", "Bo", "", nil, t0), t0, "", "")
	require.NoError(t, e.store.Put(ctx, theirs))

	_, err := e.rec.Session(ctx, "mine")
	assert.NoError(t, err)
	_, err = e.rec.Session(ctx, "theirs")
	assert.ErrorIs(t, err, ErrPermission)
	_, err = e.rec.Stops(ctx, "theirs")
	assert.ErrorIs(t, err, ErrPermission)
	_, err = e.rec.Summary(ctx, "theirs")
	assert.ErrorIs(t, err, ErrPermission)
}

func TestStopsAndSummary(t *testing.T) {
	e := newEnv(t)
	queueSession(t, e, "a", false)

	stops, err := e.rec.Stops(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, 2.0, stops[0].DurationMinutes)

	sum, err := e.rec.Summary(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 4, sum.PointCount)
	assert.Len(t, sum.Stops, 1)

	_, err = e.rec.Stops(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStops_ActiveSession(t *testing.T) {
	e := newEnv(t)
	s, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	stops, err := e.rec.Stops(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, stops)
}

const importDoc = `<gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>Boundary</name><trkseg>
    <trkpt lat="1" lon="1"><time>2026-03-01T08:00:00Z</time></trkpt>
    <trkpt lat="1.000001" lon="1"><time>2026-03-01T08:00:01Z</time></trkpt>
    <trkpt lat="1.000002" lon="1"><time>2026-03-01T08:00:02Z</time></trkpt>
  </trkseg></trk>
</gpx>`

func TestImport(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	s, err := e.rec.Import(context.Background(), "boundary.gpx", strings.NewReader(importDoc))
	require.NoError(t, err)
	assert.Len(t, s.Points, 3)
	assert.Equal(t, "Imported: Boundary", s.Name)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, 1, e.pusher.count())
	assert.Equal(t, StateRecording, e.rec.State(), "import leaves the recording alone")

	queued, err := e.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, queued.Points, 3)
}

func TestImport_Errors(t *testing.T) {
	e := newEnv(t)
	_, err := e.rec.Import(context.Background(), "bad.gpx", strings.NewReader("not xml"))
	var pe *importer.ParseError
	assert.ErrorAs(t, err, &pe)

	e = newEnv(t, func(o *Options) { o.Auth = StaticAuth{} })
	_, err = e.rec.Import(context.Background(), "x.gpx", strings.NewReader(importDoc))
	assert.ErrorIs(t, err, ErrPermission)
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle:       "idle",
		StateRecording:  "recording",
		StatePaused:     "paused",
		StateFinalizing: "finalizing",
		StateClosed:     "closed",
		State(42):       "State(42)",
	} {
		assert.Equal(t, want, state.String())
	}
}
