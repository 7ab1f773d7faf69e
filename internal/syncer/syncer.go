// Package syncer pushes finished sessions from the offline queue to the
// remote service.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/fieldtrack/internal/monitoring"
	"github.com/banshee-data/fieldtrack/internal/track"
)

var logf = monitoring.Tagged("sync")

// DefaultTimeout bounds a single push attempt.
const DefaultTimeout = 15 * time.Second

// Result is the outcome of one push attempt.
type Result int

const (
	ResultSynced Result = iota
	ResultFailed
	ResultOffline
)

func (r Result) String() string {
	switch r {
	case ResultSynced:
		return "synced"
	case ResultFailed:
		return "failed"
	case ResultOffline:
		return "offline"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Remote creates sessions on the remote service.
type Remote interface {
	Create(ctx context.Context, s track.Session) (string, error)
}

// Connectivity reports whether the remote is worth trying.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Queue is the part of the offline store the service updates.
type Queue interface {
	MarkSynced(ctx context.Context, id, remoteID string) error
	Unsynced(ctx context.Context) ([]track.Session, error)
}

// Service performs single push attempts. It never retries on its own; the
// Reconciler re-drives entries left unsynced.
type Service struct {
	remote  Remote
	conn    Connectivity
	queue   Queue
	timeout time.Duration
}

// New returns a Service. A nil conn is treated as always online; a
// non-positive timeout uses DefaultTimeout.
func New(remote Remote, conn Connectivity, queue Queue, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{remote: remote, conn: conn, queue: queue, timeout: timeout}
}

// Push makes one attempt to create s remotely and, on success, marks the
// queue entry synced. Failures are logged and reported through the result;
// the queue entry is left as it was.
//
// The connectivity probe and the create share one timeout, so a remote that
// never answers costs at most the configured timeout.
func (s *Service) Push(ctx context.Context, session track.Session) Result {
	pushCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.conn != nil && !s.conn.Online(pushCtx) {
		logf("offline, session %s stays queued", session.ID)
		return ResultOffline
	}

	remoteID, err := s.remote.Create(pushCtx, session)
	if err != nil {
		logf("push session %s failed: %v", session.ID, err)
		return ResultFailed
	}

	if err := s.queue.MarkSynced(ctx, session.ID, remoteID); err != nil {
		logf("session %s stored remotely as %s but marking synced failed: %v", session.ID, remoteID, err)
		return ResultFailed
	}
	logf("session %s synced as %s", session.ID, remoteID)
	return ResultSynced
}

// MarkSynced flags a queue entry synced without pushing it, for callers
// that confirmed the remote copy some other way. remoteID is the id the
// remote service knows the session by.
func (s *Service) MarkSynced(ctx context.Context, id, remoteID string) error {
	return s.queue.MarkSynced(ctx, id, remoteID)
}

// PushPending pushes every unsynced queue entry once, oldest first, and
// returns how many were synced. It stops early when the remote is offline
// or ctx is done.
func (s *Service) PushPending(ctx context.Context) (int, error) {
	pending, err := s.queue.Unsynced(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unsynced sessions: %w", err)
	}
	synced := 0
	for i := len(pending) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		switch s.Push(ctx, pending[i]) {
		case ResultSynced:
			synced++
		case ResultOffline:
			return synced, nil
		}
	}
	return synced, nil
}
