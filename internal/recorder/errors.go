package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrPermission is returned when the caller is not signed in, lacks a
	// role allowed to record, or asks for another user's session.
	ErrPermission = errors.New("permission denied")
	// ErrUnsupportedEnvironment is returned when no geolocation source is
	// available.
	ErrUnsupportedEnvironment = errors.New("geolocation is not available on this device")
	ErrAlreadyRecording       = errors.New("a recording is already in progress")
	ErrNotRecording           = errors.New("no recording in progress")
	ErrClosed                 = errors.New("recorder closed")
	// ErrNoRemote is returned by operations that need the remote service
	// when none is configured.
	ErrNoRemote = errors.New("remote service not configured")
)

// StorageError reports a failed write to the local queue. The session that
// was being finished is kept in memory, paused, so the caller can retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("local storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
