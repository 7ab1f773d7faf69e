package geosource

import (
	"bytes"
	"errors"
	"sync"
)

// TestableSerialPort is an in-memory receiver for tests. Reads block until
// data is added or the port is closed.
type TestableSerialPort struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	readErr  error
	closed   bool
	readCond *sync.Cond

	// CloseCalls records how often Close was called.
	CloseCalls int
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.readErr == nil && p.buf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.buf.Len() > 0 {
		return p.buf.Read(b)
	}
	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}
	return 0, errors.New("serial port closed")
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.CloseCalls++
	p.readCond.Broadcast()
	return nil
}

// AddLines queues NMEA sentences, each terminated with CRLF.
func (p *TestableSerialPort) AddLines(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		p.buf.WriteString(l + "\r\n")
	}
	p.readCond.Broadcast()
}

// FailReads makes the next Read return err once buffered data is drained.
func (p *TestableSerialPort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.readCond.Broadcast()
}
