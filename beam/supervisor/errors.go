package supervisor

import (
	"errors"
	"fmt"

	"github.com/uberbrodt/beamgo/beam"
)

var (
	// no child spec has the given id
	ErrNotFound = errors.New("child not found")
	// a child spec with the id exists but is not running
	ErrAlreadyPresent = errors.New("child already present")
	// a child with the id is already running; see [AlreadyStartedError]
	ErrAlreadyStarted = errors.New("child already started")
	// the operation needs the child to be stopped first
	ErrRunning = errors.New("child is running")
	// the supervisor restarted children more than Intensity times in Period
	// and shut down. It is the shutdown reason of the supervisor's exit.
	ErrMaxIntensity = errors.New("supervisor restart intensity exceeded")
)

// AlreadyStartedError carries the pid of the running child. It matches
// [ErrAlreadyStarted] with errors.Is.
type AlreadyStartedError struct {
	PID beam.PID
}

func (e AlreadyStartedError) Error() string {
	return fmt.Sprintf("child already started with PID %v", e.PID)
}

func (e AlreadyStartedError) Unwrap() error {
	return ErrAlreadyStarted
}
