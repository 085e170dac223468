package beam

import (
	"errors"
	"iter"
	"time"

	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/internal/mailbox"
	"github.com/uberbrodt/beamgo/beam/timeout"
)

// Matcher selects messages in [Inbox.ReceiveMatch].
type Matcher func(msg any) bool

// MatchAny accepts every message.
func MatchAny(any) bool { return true }

// MatchType accepts messages of type T.
func MatchType[T any]() Matcher {
	return func(msg any) bool {
		_, ok := msg.(T)
		return ok
	}
}

// MatchDown accepts the [DownMsg] for the monitor identified by ref.
func MatchDown(ref Ref) Matcher {
	return func(msg any) bool {
		down, ok := msg.(DownMsg)
		return ok && down.Ref == ref
	}
}

// MatchExit accepts an [ExitMsg] sent by pid.
func MatchExit(pid PID) Matcher {
	return func(msg any) bool {
		exit, ok := msg.(ExitMsg)
		return ok && exit.Proc.Equals(pid)
	}
}

// MatchAll accepts a message only if every matcher does.
func MatchAll(matchers ...Matcher) Matcher {
	return func(msg any) bool {
		for _, m := range matchers {
			if !m(msg) {
				return false
			}
		}
		return true
	}
}

// MatchOneOf accepts a message if any matcher does.
func MatchOneOf(matchers ...Matcher) Matcher {
	return func(msg any) bool {
		for _, m := range matchers {
			if m(msg) {
				return true
			}
		}
		return false
	}
}

// Inbox is a process's view of its own mailbox, and its only way to talk to
// the scheduler. It must only be used from the Runnable's goroutine.
type Inbox struct {
	p *process
}

// Receive returns the oldest message, waiting up to tout. See [Inbox.ReceiveMatch].
func (ib *Inbox) Receive(tout time.Duration) (any, error) {
	return ib.ReceiveMatch(nil, tout)
}

// ReceiveMatch removes and returns the oldest message accepted by m. Messages
// that don't match stay queued in their original order. A nil m matches
// anything.
//
// While nothing matches the process is parked and its scheduler serves other
// processes. After tout the error is [exitreason.Timeout]; [timeout.Infinity]
// waits forever and a zero tout only looks at what is already queued. Once the
// process is exiting the error is the process exit reason.
func (ib *Inbox) ReceiveMatch(m Matcher, tout time.Duration) (any, error) {
	p := ib.p

	msg, ok, closed := p.messages.TakeMatch(m)
	if closed != nil {
		return nil, p.exitReason
	}
	if ok {
		p.thread.Reduce(1)
		return msg, nil
	}
	if tout == 0 {
		return nil, exitreason.Timeout
	}

	wait := tout
	if timeout.IsInfinite(tout) {
		wait = -1
	}

	p.casStatus(StatusRunnable, StatusWaiting)
	p.thread.Release()
	msg, err := p.messages.Receive(m, wait)
	p.casStatus(StatusWaiting, StatusRunnable)
	p.thread.Acquire()

	switch {
	case errors.Is(err, mailbox.ErrTimeout):
		return nil, exitreason.Timeout
	case errors.Is(err, mailbox.ErrClosed):
		return nil, p.exitReason
	}
	p.thread.Reduce(1)
	return msg, nil
}

// Messages ranges over incoming messages until the process starts exiting.
func (ib *Inbox) Messages() iter.Seq[any] {
	return func(yield func(any) bool) {
		for {
			msg, err := ib.Receive(timeout.Infinity)
			if err != nil {
				return
			}
			if !yield(msg) {
				return
			}
		}
	}
}

// Yield moves the process to the back of the run queue.
func (ib *Inbox) Yield() {
	ib.p.thread.Yield()
}

// Reduce charges n reductions of work. The process is preempted once its
// budget is spent. Long computations should call this periodically.
func (ib *Inbox) Reduce(n int) {
	ib.p.thread.Reduce(n)
}

// Block runs fn with the scheduler released, for I/O and other waits the
// runtime can't see. fn must not use the inbox.
func (ib *Inbox) Block(fn func()) {
	ib.p.block(fn)
}

// Len is the number of messages waiting to be received.
func (ib *Inbox) Len() int {
	return ib.p.messages.Size()
}

// Reductions spent since the process was last scheduled.
func (ib *Inbox) Reductions() int {
	return ib.p.thread.Used()
}
