// Package recorder drives a single user's track recording: it owns the
// session state machine, feeds accepted fixes into the active session,
// keeps a crash-recovery snapshot and hands finished sessions to the
// offline queue and the sync service.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/fieldtrack/internal/geo"
	"github.com/banshee-data/fieldtrack/internal/geosource"
	"github.com/banshee-data/fieldtrack/internal/monitoring"
	"github.com/banshee-data/fieldtrack/internal/store"
	"github.com/banshee-data/fieldtrack/internal/syncer"
	"github.com/banshee-data/fieldtrack/internal/timeutil"
	"github.com/banshee-data/fieldtrack/internal/track"
	"github.com/banshee-data/fieldtrack/internal/wakelock"
)

var logf = monitoring.Tagged("recorder")

// State is the recorder lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Identity is the signed-in user.
type Identity struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Role     string `json:"role"`
}

// Authenticator returns the current identity; ok is false when nobody is
// signed in.
type Authenticator interface {
	Current(ctx context.Context) (id Identity, ok bool)
}

// StaticAuth always reports the same identity. An empty UserID means
// signed out.
type StaticAuth struct {
	Who Identity
}

func (a StaticAuth) Current(context.Context) (Identity, bool) {
	return a.Who, a.Who.UserID != ""
}

// FixSource is the geolocation stream.
type FixSource interface {
	Available() bool
	Subscribe() geosource.Subscription
	Unsubscribe(id string)
}

// Store is the durable local storage the recorder needs.
type Store interface {
	Put(ctx context.Context, s track.Session) error
	Get(ctx context.Context, id string) (track.Session, error)
	All(ctx context.Context, f store.Filter) ([]track.Session, error)
	Delete(ctx context.Context, id string) error
	PutActive(ctx context.Context, s track.Session) error
	GetActive(ctx context.Context) (track.Session, error)
	DeleteActive(ctx context.Context) error
}

// Pusher makes a single attempt to sync a queued session.
type Pusher interface {
	Push(ctx context.Context, s track.Session) syncer.Result
}

// Remote is the remote session service. Ids are the ones the service
// assigned, not local session ids.
type Remote interface {
	List(ctx context.Context, userID, companyID string) ([]track.Session, error)
	Delete(ctx context.Context, id string) error
}

// RoleAdmin may read and delete other users' sessions.
const RoleAdmin = "admin"

// DefaultAllowedRoles may start recordings when Options.AllowedRoles is
// empty.
var DefaultAllowedRoles = []string{RoleAdmin, "technician"}

// Options configures a Recorder. Auth, Source and Store are required.
type Options struct {
	Auth   Authenticator
	Source FixSource
	Store  Store
	// Sync and Remote are optional; without them finished sessions stay
	// queued and synced sessions cannot be deleted.
	Sync   Pusher
	Remote Remote
	// Guard keeps the device awake while recording. Nil uses a guard over
	// an unsupported platform.
	Guard *wakelock.Guard
	Clock timeutil.Clock

	Filter       track.Filter
	StopOptions  geo.StopOptions
	AllowedRoles []string
	// TickInterval is how often elapsed time advances while recording.
	TickInterval time.Duration
	// SnapshotInterval throttles active-slot writes after accepted
	// points; zero writes after every point.
	SnapshotInterval time.Duration

	NewID         func() string
	OnSourceError func(error)
}

// Snapshot is a point-in-time view of the recorder.
type Snapshot struct {
	State     State          `json:"state"`
	Session   *track.Session `json:"session,omitempty"`
	Elapsed   time.Duration  `json:"elapsed_ns"`
	LastError string         `json:"last_error,omitempty"`
}

// Recorder owns at most one in-progress session.
type Recorder struct {
	auth          Authenticator
	source        FixSource
	store         Store
	sync          Pusher
	remote        Remote
	guard         *wakelock.Guard
	clock         timeutil.Clock
	filter        track.Filter
	stopOpts      geo.StopOptions
	roles         []string
	tickInterval  time.Duration
	snapInterval  time.Duration
	newID         func() string
	onSourceError func(error)

	finalizing sync.WaitGroup

	mu           sync.Mutex
	state        State
	session      track.Session
	generation   uint64
	subID        string
	tick         *tickTask
	elapsed      time.Duration
	lastErr      error
	lastSnapshot time.Time
}

// New returns an idle Recorder.
func New(opts Options) (*Recorder, error) {
	if opts.Auth == nil || opts.Source == nil || opts.Store == nil {
		return nil, errors.New("recorder: auth, source and store are required")
	}
	r := &Recorder{
		auth:          opts.Auth,
		source:        opts.Source,
		store:         opts.Store,
		sync:          opts.Sync,
		remote:        opts.Remote,
		guard:         opts.Guard,
		clock:         opts.Clock,
		filter:        opts.Filter,
		stopOpts:      opts.StopOptions,
		roles:         opts.AllowedRoles,
		tickInterval:  opts.TickInterval,
		snapInterval:  opts.SnapshotInterval,
		newID:         opts.NewID,
		onSourceError: opts.OnSourceError,
	}
	if r.guard == nil {
		r.guard = wakelock.NewGuard(nil)
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}
	if r.filter == (track.Filter{}) {
		r.filter = track.DefaultFilter()
	}
	if len(r.roles) == 0 {
		r.roles = DefaultAllowedRoles
	}
	if r.tickInterval <= 0 {
		r.tickInterval = time.Second
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r, nil
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed is the recording time counted by the tick task; pauses do not
// count.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// LastError is the most recent geolocation error of the current session.
func (r *Recorder) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Active returns a copy of the in-progress session, if any.
func (r *Recorder) Active() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{State: r.state, Elapsed: r.elapsed}
	if r.state == StateRecording || r.state == StatePaused || r.state == StateFinalizing {
		s := r.session.Clone()
		snap.Session = &s
	}
	if r.lastErr != nil {
		snap.LastError = r.lastErr.Error()
	}
	return snap
}

// authorize returns the signed-in identity if it may record.
func (r *Recorder) authorize(ctx context.Context) (Identity, error) {
	id, ok := r.auth.Current(ctx)
	if !ok {
		return Identity{}, fmt.Errorf("not signed in: %w", ErrPermission)
	}
	if !slices.Contains(r.roles, id.Role) {
		return Identity{}, fmt.Errorf("role %q: %w", id.Role, ErrPermission)
	}
	return id, nil
}

// checkOwner allows the owner of a session and admins.
func (r *Recorder) checkOwner(ctx context.Context, owner string) error {
	id, ok := r.auth.Current(ctx)
	if !ok {
		return fmt.Errorf("not signed in: %w", ErrPermission)
	}
	if id.UserID != owner && id.Role != RoleAdmin {
		return fmt.Errorf("session of user %q: %w", owner, ErrPermission)
	}
	return nil
}
