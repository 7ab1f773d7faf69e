// Package geosource reads position fixes from an NMEA 0183 GPS receiver and
// fans them out to any number of subscribers.
package geosource

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/banshee-data/fieldtrack/internal/monitoring"
	"github.com/banshee-data/fieldtrack/internal/track"
)

var logf = monitoring.Tagged("gps")

const (
	fixBuffer   = 16
	errorBuffer = 4
)

// Subscription is one consumer's view of the stream. Both channels are
// closed on Unsubscribe or Close.
type Subscription struct {
	ID     string
	Fixes  <-chan track.Fix
	Errors <-chan error
}

type subscriber struct {
	fixes  chan track.Fix
	errors chan error
}

func (s subscriber) close() {
	close(s.fixes)
	close(s.errors)
}

// Mux reads sentences from a single receiver and fans fixes out to
// subscribers. Slow subscribers miss fixes rather than stall the reader.
type Mux[T SerialPorter] struct {
	port T
	now  func() time.Time

	mu          sync.Mutex
	subscribers map[string]subscriber
	closing     bool
}

// NewMux returns a Mux over port. now stamps fixes whose sentences carry
// no date; nil means time.Now.
func NewMux[T SerialPorter](port T, now func() time.Time) *Mux[T] {
	if now == nil {
		now = time.Now
	}
	return &Mux[T]{
		port:        port,
		now:         now,
		subscribers: make(map[string]subscriber),
	}
}

// randomID generates a random subscription id (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Available reports whether the receiver can still deliver fixes.
func (m *Mux[T]) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closing
}

func (m *Mux[T]) Subscribe() Subscription {
	id := randomID()
	sub := subscriber{
		fixes:  make(chan track.Fix, fixBuffer),
		errors: make(chan error, errorBuffer),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		sub.close()
	} else {
		m.subscribers[id] = sub
	}
	return Subscription{ID: id, Fixes: sub.fixes, Errors: sub.errors}
}

// Unsubscribe closes and forgets the subscription. Unknown ids are ignored.
func (m *Mux[T]) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subscribers[id]; ok {
		sub.close()
		delete(m.subscribers, id)
	}
}

// Monitor reads the port until ctx is done, the port reaches EOF, or Close
// is called.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs on its own goroutine so cancellation is
	// observed between lines.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	dec := &decoder{now: m.now}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			m.publishError(err)
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					m.publishError(err)
					return err
				default:
					return nil
				}
			}
			m.mu.Lock()
			closing := m.closing
			m.mu.Unlock()
			if closing {
				return nil
			}

			fix, err := dec.decode(line)
			if err != nil {
				m.publishError(err)
			}
			if fix != nil {
				m.publishFix(*fix)
			}
		}
	}
}

func (m *Mux[T]) publishFix(fix track.Fix) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subscribers {
		select {
		case sub.fixes <- fix:
		default:
		}
	}
}

func (m *Mux[T]) publishError(err error) {
	logf("%v", err)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subscribers {
		select {
		case sub.errors <- err:
		default:
		}
	}
}

// Close closes every subscription and the port.
func (m *Mux[T]) Close() error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	for id, sub := range m.subscribers {
		sub.close()
		delete(m.subscribers, id)
	}
	m.mu.Unlock()
	return m.port.Close()
}
