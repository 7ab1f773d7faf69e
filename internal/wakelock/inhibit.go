package wakelock

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// InhibitPlatform takes systemd sleep/idle inhibitor locks by holding a
// `systemd-inhibit ... sleep infinity` child process. The lock lasts as long
// as the child; if it exits on its own the handle reports an external
// release.
type InhibitPlatform struct {
	// Who and Why are shown by `systemd-inhibit --list`.
	Who  string
	Why  string
	What string // defaults to "idle:sleep"

	lookPath func(string) (string, error)
	command  func(name string, args ...string) *exec.Cmd
}

// NewInhibitPlatform returns a platform labelled for the recorder.
func NewInhibitPlatform() *InhibitPlatform {
	return &InhibitPlatform{
		Who:      "fieldtrack",
		Why:      "recording a GPS track",
		What:     "idle:sleep",
		lookPath: exec.LookPath,
		command:  exec.Command,
	}
}

// Request starts the inhibitor process.
func (p *InhibitPlatform) Request() (Handle, error) {
	lookPath, command := p.lookPath, p.command
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if command == nil {
		command = exec.Command
	}

	bin, err := lookPath("systemd-inhibit")
	if err != nil {
		return nil, ErrUnsupported
	}
	what := p.What
	if what == "" {
		what = "idle:sleep"
	}

	cmd := command(bin,
		"--what="+what,
		"--who="+p.Who,
		"--why="+p.Why,
		"--mode=block",
		"sleep", "infinity",
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start systemd-inhibit: %w", err)
	}

	h := &processHandle{cmd: cmd, done: make(chan struct{})}
	go h.wait()
	return h, nil
}

type processHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu        sync.Mutex
	releasing bool
	callbacks []func()
}

func (h *processHandle) wait() {
	_ = h.cmd.Wait()
	close(h.done)

	h.mu.Lock()
	external := !h.releasing
	callbacks := h.callbacks
	h.mu.Unlock()

	if !external {
		return
	}
	for _, cb := range callbacks {
		cb()
	}
}

func (h *processHandle) OnRelease(cb func()) {
	h.mu.Lock()
	select {
	case <-h.done:
		// exited before the callback was registered
		external := !h.releasing
		h.mu.Unlock()
		if external {
			cb()
		}
		return
	default:
	}
	h.callbacks = append(h.callbacks, cb)
	h.mu.Unlock()
}

func (h *processHandle) Release() error {
	h.mu.Lock()
	if h.releasing {
		h.mu.Unlock()
		return nil
	}
	h.releasing = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stop systemd-inhibit: %w", err)
	}
	<-h.done
	return nil
}
