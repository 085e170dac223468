package beam

import (
	"github.com/rs/xid"

	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/internal/copyterm"
)

// Link establishes a bi-directional relationship between two processes.
//
// Once linked, if either process exits, the other receives an exit signal. By
// default, this causes the receiving process to exit with the same reason.
//
// To handle exit signals instead of dying, use [ProcessFlag] to set [TrapExit]
// to true. The process will then receive [ExitMsg] messages.
//
// Links are idempotent. If pid refers to a dead or non-existent process,
// self receives an exit signal with reason [exitreason.NoProc].
func Link(self PID, pid PID) {
	sendSignal(self, linkSignal{pid})
	sendSignal(pid, linkSignal{self})
}

// Unlink removes a link between two processes. Calling Unlink when no link
// exists has no effect. An exit signal from pid that arrives after the
// unlink is ignored.
func Unlink(self PID, pid PID) {
	sendSignal(self, unlinkSignal{pid})
	sendSignal(pid, unlinkSignal{self})
}

// SpawnLink creates a new process and atomically links it to the caller, so
// the child cannot exit before the link exists.
func SpawnLink(self PID, r Runnable) PID {
	return doSpawn(r, spawnOpts{link: self})
}

// Monitor establishes a one-way observation relationship between processes.
//
// The monitoring process (self) receives a [DownMsg] when the monitored process
// (pid) exits. Multiple monitors can exist between the same pair of
// processes, each with its own [Ref]. If pid refers to a dead or
// non-existent process, self immediately receives a [DownMsg] with reason
// [exitreason.NoProc].
func Monitor(self PID, pid PID) Ref {
	ref := MakeRef()
	signal := monitorSignal{ref: ref, monitor: self, monitored: pid}
	sendSignal(self, signal)
	sendSignal(pid, signal)
	return ref
}

// Demonitor removes a previously established monitor. A [DownMsg] that was
// already delivered to the inbox is not removed.
func Demonitor(self PID, ref Ref) bool {
	sendSignal(self, demonitorSignal{ref: ref, origin: self})
	return true
}

// SpawnMonitor creates a new process and atomically monitors it from the caller.
func SpawnMonitor(self PID, r Runnable) (PID, Ref) {
	ref := MakeRef()
	pid := doSpawn(r, spawnOpts{monitor: self, ref: ref})
	return pid, ref
}

// Spawn creates a new process and returns its PID. The new process runs
// independently of the caller with no link or monitor relationship.
func Spawn(r Runnable) PID {
	return doSpawn(r, spawnOpts{})
}

type spawnOpts struct {
	link    PID
	monitor PID
	ref     Ref
}

func doSpawn(r Runnable, opts spawnOpts) PID {
	p := newProcess(r)
	pid := p.self()

	if !opts.link.IsNil() {
		p.links = append(p.links, opts.link)
		sendSignal(opts.link, linkSignal{pid})
	}
	if !opts.monitor.IsNil() {
		p.monitors = append(p.monitors, pMonitor{pid: opts.monitor, ref: opts.ref})
		sendSignal(opts.monitor, monitorSignal{ref: opts.ref, monitor: opts.monitor, monitored: pid})
	}

	table.add(p)
	p.start()
	return pid
}

// Block runs fn, a wait the runtime can't see, such as a channel receive or
// a network call. When called from self's own goroutine, self gives up its
// scheduler worker while fn runs, like [Inbox.Block]. From any other
// goroutine fn simply runs.
//
// Synchronous helpers that wait on a reply, e.g. a GenServer call, use this
// so a waiting process doesn't hold back the processes queued behind it.
func Block(self PID, fn func()) {
	if self.p == nil || !self.p.ownedByCaller() {
		fn()
		return
	}
	self.p.block(fn)
}

// NewMsg wraps a value in a message signal for internal use.
func NewMsg(body any) Signal {
	return messageSignal{term: body}
}

// Send delivers a copy of term to a process asynchronously.
//
// Send never blocks and never returns an error. If the target process doesn't
// exist or has already exited, the message is silently discarded. Messages
// from one sender to one receiver arrive in the order they were sent.
func Send(pid PID, term any) {
	if pid.IsNil() {
		return
	}
	sendSignal(pid, messageSignal{term: CopyTerm(term)})
}

// CopyTerm returns the copy of term a receiver would get from [Send]. Use it
// for values handed to another process outside of a message, such as
// arguments to a process being started. With [Config.CopyMessages] off it
// returns term unchanged.
func CopyTerm(term any) any {
	if !copyMessages() {
		return term
	}
	return copyterm.Copy(term)
}

// SendTo resolves dest and sends term to it. Unknown names are dropped like
// dead pids.
func SendTo(dest Dest, term any) {
	pid, err := dest.ResolvePID()
	if err != nil {
		return
	}
	Send(pid, term)
}

// sendSignal delivers a signal to a process. If the target is dead or
// undefined, link and monitor requests are answered with noproc.
func sendSignal(pid PID, signal Signal) {
	if pid.IsNil() || !pid.p.signals.Enqueue(signal) {
		deadLetter(pid, signal)
	}
}

// the process is dead, reply with exit/down signals as needed. All other signals are dropped.
func deadLetter(pid PID, signal Signal) {
	switch sig := signal.(type) {
	case linkSignal:
		sendSignal(sig.pid, exitSignal{sender: pid, receiver: sig.pid, reason: exitreason.NoProc, link: true})
	case monitorSignal:
		if !sig.monitor.Equals(pid) {
			sendSignal(sig.monitor, downSignal{proc: pid, ref: sig.ref, reason: exitreason.NoProc})
		}
	default:
		// just ignore
	}
}

// MakeRef generates a new unique reference.
func MakeRef() Ref {
	return Ref(xid.New().String())
}

// IsAlive checks if a process is currently running. This is a point-in-time
// check; prefer [Monitor] for tracking lifecycle.
func IsAlive(pid PID) bool {
	return !pid.IsNil() && pid.p.alive()
}

// Done returns a channel that is closed once the process has completely
// exited: links and monitors were notified and the runnable returned.
func Done(pid PID) <-chan struct{} {
	if pid.IsNil() {
		return closedChan
	}
	return pid.p.done
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// ExitReason returns why the process exited, or nil while it is alive.
func ExitReason(pid PID) *exitreason.S {
	if pid.IsNil() {
		return exitreason.NoProc
	}
	select {
	case <-pid.p.done:
		return pid.p.exitReason
	default:
		return nil
	}
}

// ProcessFlag sets process configuration flags that modify behavior.
//
// Supported flags:
//
//	TrapExit (bool): When true, exit signals from linked processes are
//	converted to [ExitMsg] messages instead of killing the process.
//
// Panics if self is nil.
func ProcessFlag(self PID, flag ProcFlag, value any) {
	if self.IsNil() {
		panic("pid cannot be nil")
	}
	if flag == TrapExit {
		v := value.(bool)

		self.p.trapExits.Store(v)
	}
}

// TrappingExits reports whether a process has exit trapping enabled.
func TrappingExits(self PID) bool {
	if self.IsNil() {
		return false
	}

	return self.p.trapExits.Load()
}

// Exit sends an exit signal to a process.
//
// If pid is trapping exits the signal becomes an [ExitMsg], except for
// [exitreason.Kill], which always kills. Otherwise a normal reason is
// ignored (unless pid == self) and any other reason makes pid exit with it.
//
// A nil reason is [exitreason.Normal]; a plain error becomes an exception.
func Exit(self PID, pid PID, reason error) {
	es := exitSignal{sender: self, receiver: pid, reason: exitreason.From(reason)}

	sendSignal(pid, es)
}
