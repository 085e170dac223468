// Package exitreason defines why a process stopped.
//
// Every process exits with an [*S]. The kind of reason decides what happens
// next: linked processes die with abnormal reasons but ignore normal ones,
// supervisors restart transient children only on abnormal reasons, and crash
// reports are only published for abnormal exits.
//
// A process that panics exits with an Exception reason carrying the panic.
package exitreason

import (
	"errors"
	"fmt"
)

// Kind is the short name of an exit reason, as it appears in logs and crash
// reports.
type Kind string

const (
	KindNormal             Kind = "normal"
	KindShutdown           Kind = "shutdown"
	KindSupervisorShutdown Kind = "supervisor_shutdown"
	KindException          Kind = "error"
	KindNoProc             Kind = "noproc"
	KindTimeout            Kind = "timeout"
	KindKill               Kind = "kill"
	KindIgnore             Kind = "ignore"
	KindStopped            Kind = "stopped"
	KindTestExit           Kind = "test_exit"
)

// Opaque return type. Use functions in this package to create new instances and
// test with the `Is*(exitreason) bool` functions.
//
// For convienence it implements the [errors] and [stringer] interfaces.
type S struct {
	kind           Kind
	err            error
	shutdownReason any
	exception      error
}

func (s *S) Error() string {
	switch s.kind {
	case KindException:
		return fmt.Sprintf("EXIT{error: %v}", s.exception)
	case KindShutdown:
		return fmt.Sprintf("EXIT{shutdown: %v}", s.shutdownReason)
	default:
		return fmt.Sprintf("EXIT{%s}", s.kind)
	}
}

// Kind reports the reason's short name.
func (s *S) Kind() Kind {
	return s.kind
}

// Shutdown exitreasons include optional information
func (s *S) ShutdownReason() any {
	return s.shutdownReason
}

func (s *S) ExceptionDetail() error {
	return s.exception
}

// Unwrap exposes the sentinel a Shutdown or Exception reason was built from,
// and for exceptions, the underlying error, so errors.Is works on both.
func (s *S) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s.err != nil {
		errs = append(errs, s.err)
	}
	if s.exception != nil {
		errs = append(errs, s.exception)
	}
	if err, ok := s.shutdownReason.(error); ok {
		errs = append(errs, err)
	}
	return errs
}

// private Sentinel Errors that get wrapped
var (
	shutdownErr  = &S{kind: KindShutdown}
	exceptionErr = &S{kind: KindException}
)

// Sentinel errors
var (
	// A normal process exit.
	Normal = &S{kind: KindNormal}
	// Indicates a process's Supervisor terminated the process. Also considered a "Normal" exit.
	SupervisorShutdown = &S{kind: KindSupervisorShutdown}
	// The pid or name does not identifiy an active process
	NoProc = &S{kind: KindNoProc}
	// Returned when a receive or request exceeds it's specified timeout.
	Timeout = &S{kind: KindTimeout}
	// Lets a Supervisor skip a child that declines to start while keeping its
	// child specification around so it can be started later.
	Ignore = &S{kind: KindIgnore}
	// Untrappable exit signal.
	Kill = &S{kind: KindKill}
	// The process stopped after replying to a Call
	Stopped = &S{kind: KindStopped}
	// sent to test receivers to stop them
	TestExit = &S{kind: KindTestExit}
)

// Tests to see if error is or wraps a *S. If not, returns nil
func IsExitReason(e error) (err *S) {
	if errors.As(e, &err) {
		return err
	}
	return nil
}

// Test if [exitReason] is "Normal"
func IsNormal(e error) bool {
	return errors.Is(e, Normal)
}

// Returned when a process is exiting cleanly. Optionally provide additional info that will
// be returned to monitors/links. Considered a "Normal" exit.
func Shutdown(reason any) error {
	return &S{kind: KindShutdown, shutdownReason: reason, err: shutdownErr}
}

// Test if [exitReason] is "Shutdown"
func IsShutdown(e error) bool {
	return errors.Is(e, shutdownErr)
}

// General "error" exitreason. Returned when a process panicks or exits with an error.
func Exception(reason error) error {
	return &S{exception: reason, err: exceptionErr, kind: KindException}
}

// Test if [exitReason] is "Exception"
func IsException(e error) bool {
	return errors.Is(e, exceptionErr)
}

// IsAbnormal reports whether e should be treated as a failure: anything other
// than normal, shutdown and supervisor shutdown. A nil error is normal.
func IsAbnormal(e error) bool {
	if e == nil {
		return false
	}
	return !(IsNormal(e) || IsShutdown(e) || errors.Is(e, SupervisorShutdown))
}

func To(e error) *S {
	return IsExitReason(e)
}

// Takes any error and if it is not a *S, then wraps it as an [exitreason.Exception]
func Wrap(e error) error {
	if er := IsExitReason(e); er != nil {
		return er
	}
	return Exception(e)
}

// From converts any error (nil included) into an *S. nil becomes [Normal].
func From(e error) *S {
	if e == nil {
		return Normal
	}
	if er := IsExitReason(e); er != nil {
		return er
	}
	return Exception(e).(*S)
}
