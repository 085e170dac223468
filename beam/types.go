package beam

import "github.com/uberbrodt/beamgo/beam/internal/copyterm"

// an opaque unique string. Don't rely on structure format or even size for that matter.
type Ref string

// UndefinedRef is the zero value for [Ref], representing no reference.
var UndefinedRef Ref = Ref("")

// A Runnable is the code a process runs. Receive is called once, on the
// process's own goroutine, and the process exits when it returns. A nil
// return is a normal exit.
type Runnable interface {
	Receive(self PID, inbox *Inbox) error
}

// RunnableFunc adapts a function to [Runnable].
type RunnableFunc func(self PID, inbox *Inbox) error

func (f RunnableFunc) Receive(self PID, inbox *Inbox) error {
	return f(self, inbox)
}

type ProcFlag string

var TrapExit ProcFlag = "trap_exit"

// Shared marks a message type whose values are delivered by reference
// instead of being copied. Only use it for immutable data or handles that
// are safe for concurrent use.
type Shared = copyterm.Shared

// Copier lets a message type provide its own copy.
type Copier = copyterm.Copier
