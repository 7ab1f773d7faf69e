// Package wakelock scopes a platform power-saving lock (keep the device
// awake) to active sampling.
package wakelock

import (
	"errors"
	"sync"

	"github.com/banshee-data/fieldtrack/internal/monitoring"
)

var logf = monitoring.Tagged("wakelock")

// ErrUnsupported is returned by a Platform that cannot provide the lock.
var ErrUnsupported = errors.New("wake lock not supported on this platform")

// Platform requests wake locks from the operating system.
type Platform interface {
	Request() (Handle, error)
}

// Handle is one granted lock. The platform may release it on its own (for
// example when the display turns off); OnRelease registers the callback
// fired when that happens.
type Handle interface {
	Release() error
	OnRelease(func())
}

// Guard owns at most one Handle at a time. It is safe for concurrent use:
// Acquire and Release are serialized so a lock is never overwritten
// without being released.
type Guard struct {
	platform Platform

	// op serializes Acquire and Release; mu guards handle and is also
	// taken by platform release callbacks.
	op     sync.Mutex
	mu     sync.Mutex
	handle Handle
}

// NewGuard returns a Guard backed by p. A nil platform behaves like
// Unsupported.
func NewGuard(p Platform) *Guard {
	if p == nil {
		p = Unsupported{}
	}
	return &Guard{platform: p}
}

// Acquire replaces any held lock with a fresh one. A platform without wake
// lock support is not an error: the lock is an optimisation.
func (g *Guard) Acquire() error {
	g.op.Lock()
	defer g.op.Unlock()

	if err := g.release(); err != nil {
		logf("releasing previous lock: %v", err)
	}

	h, err := g.platform.Request()
	if errors.Is(err, ErrUnsupported) {
		return nil
	}
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.handle = h
	g.mu.Unlock()

	h.OnRelease(func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.handle == h {
			g.handle = nil
			logf("released by platform")
		}
	})
	return nil
}

// Release drops the held lock. It is a no-op without one.
func (g *Guard) Release() error {
	g.op.Lock()
	defer g.op.Unlock()
	return g.release()
}

func (g *Guard) release() error {
	g.mu.Lock()
	h := g.handle
	g.handle = nil
	g.mu.Unlock()

	if h == nil {
		return nil
	}
	// outside the lock: platforms may fire the release callback synchronously
	return h.Release()
}

// Held reports whether the guard currently owns a lock.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handle != nil
}

// Unsupported is a Platform with no wake lock capability.
type Unsupported struct{}

// Request always fails with ErrUnsupported.
func (Unsupported) Request() (Handle, error) { return nil, ErrUnsupported }
