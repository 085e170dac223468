package beam

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uberbrodt/fungo/fun"
	"golang.org/x/exp/slices"

	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/internal/mailbox"
	"github.com/uberbrodt/beamgo/beam/internal/sched"
)

var nextProcessID atomic.Int64

type pMonitor struct {
	pid PID
	ref Ref
}

type process struct {
	id       int64
	runnable Runnable
	thread   *sched.Thread
	// signals from other processes, consumed by the signal loop
	signals *mailbox.Mailbox[Signal]
	// messages for the runnable, consumed through [Inbox]
	messages *mailbox.Mailbox[any]
	// closed once the runnable goroutine has returned
	userDone chan struct{}
	// closed once the process has fully exited
	done chan struct{}

	// links, monitors and monitoring are owned by the signal loop; mx only
	// guards them against [Info] readers
	mx         sync.Mutex
	links      []PID
	monitors   []pMonitor
	monitoring map[Ref]PID

	// goroutine running the runnable, see [Block]
	goid atomic.Uint64
	// set while the runnable is inside block; only touched by that goroutine
	blocked bool

	status     atomic.Int32
	exitReason *exitreason.S
	trapExits  atomic.Bool
	nameMutex  sync.RWMutex
	// the local name of the pid, optional
	_name     Name
	startedAt time.Time
}

func newProcess(r Runnable) *process {
	return &process{
		id:         nextProcessID.Add(1),
		runnable:   r,
		thread:     scheduler().NewThread(),
		signals:    mailbox.New[Signal](),
		messages:   mailbox.New[any](),
		userDone:   make(chan struct{}),
		done:       make(chan struct{}),
		links:      make([]PID, 0),
		monitors:   make([]pMonitor, 0),
		monitoring: make(map[Ref]PID),
		startedAt:  time.Now(),
	}
}

func (p *process) String() string {
	if p.getName() != "" {
		return fmt.Sprintf("Process<%d|%s>", p.id, p.getName())
	} else {
		return fmt.Sprintf("Process<%d>", p.id)
	}
}

func (p *process) self() PID {
	return PID{p: p}
}

func (p *process) start() {
	go p.runUser()
	go p.signalLoop()
}

// runUser runs the [Runnable] on a scheduled thread.
func (p *process) runUser() {
	defer close(p.userDone)

	p.goid.Store(goroutineID())
	p.thread.Acquire()
	reason := p.callRunnable()
	p.thread.Release()

	if reason == nil {
		reason = exitreason.Normal
	}
	DebugPrintf("%v runnable exited: %v", p, reason)

	// if the process is already exiting this is dropped
	p.signals.Enqueue(returnedSignal{reason: reason})
}

func (p *process) callRunnable() (result error) {
	// if the [Runnable] panics, we log it and exit with an Exception reason
	defer func() {
		if r := recover(); r != nil {
			var err error
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%v Runnable.Receive panicked: %w, stack: %s", p, e, debug.Stack())
			} else {
				err = fmt.Errorf("%v Runnable.Receive panicked: %v, stack: %s", p, r, debug.Stack())
			}
			Logger.Error("process panicked", "pid", p.self(), "panic", r)
			result = exitreason.Exception(err)
		}
	}()

	return p.runnable.Receive(p.self(), &Inbox{p: p})
}

// signalLoop handles signals in arrival order until the process exits. It is
// not scheduled: signal handling never waits behind busy processes.
func (p *process) signalLoop() {
	for {
		signal, ok, closed := p.signals.BlockingPop()
		if closed != nil {
			return
		}
		if !ok {
			continue
		}
		if DebugLogEnabled() {
			DebugPrintf("%v received %s signal", p.self(), signal.SignalName())
		}
		if exit := p.handleSignal(signal); exit != nil {
			p.exit(exit)
			return
		}
	}
}

// handleSignal returns a non-nil reason when the signal causes the process
// to exit.
func (p *process) handleSignal(signal Signal) error {
	switch sig := signal.(type) {
	case returnedSignal:
		return sig.reason

	case monitorSignal:
		p.mx.Lock()
		if sig.monitor.Equals(p.self()) {
			p.monitoring[sig.ref] = sig.monitored
		} else {
			p.monitors = append(p.monitors, pMonitor{pid: sig.monitor, ref: sig.ref})
		}
		p.mx.Unlock()

	case demonitorSignal:
		p.mx.Lock()
		if sig.origin.Equals(p.self()) {
			monitoredPid, ok := p.monitoring[sig.ref]
			delete(p.monitoring, sig.ref)
			p.mx.Unlock()
			if ok {
				sendSignal(monitoredPid, sig)
			}
			return nil
		}
		p.monitors = fun.Filter(p.monitors, func(v pMonitor) bool {
			return v.ref != sig.ref || !v.pid.Equals(sig.origin)
		})
		p.mx.Unlock()

	case linkSignal:
		p.mx.Lock()
		if !slices.Contains(p.links, sig.pid) {
			p.links = append(p.links, sig.pid)
		}
		p.mx.Unlock()

	case unlinkSignal:
		p.mx.Lock()
		idx := slices.Index(p.links, sig.pid)
		if idx != -1 {
			p.links = slices.Delete(p.links, idx, idx+1)
		}
		p.mx.Unlock()
		if idx == -1 {
			DebugPrintf("%v received an unlink signal for %v, but one could not be found", p.self(), sig.pid)
		}

	case messageSignal:
		p.messages.Enqueue(sig.term)

	case downSignal:
		p.mx.Lock()
		_, ok := p.monitoring[sig.ref]
		delete(p.monitoring, sig.ref)
		p.mx.Unlock()
		if !ok {
			DebugPrintf("%v got a DOWN signal but could not match Ref %v", p.self(), sig.ref)
			return nil
		}
		p.messages.Enqueue(downMsgFromSignal(sig))

	case exitSignal:
		return p.handleExit(sig)
	}
	return nil
}

func (p *process) handleExit(sig exitSignal) error {
	// can't trap Kill if it's sent to us, but if a linked process exited with reason Kill,
	// then we can still trap the exit below
	if errors.Is(sig.reason, exitreason.Kill) && !sig.link {
		return sig.reason
	}

	if sig.link {
		p.mx.Lock()
		idx := slices.Index(p.links, sig.sender)
		if idx != -1 {
			p.links = slices.Delete(p.links, idx, idx+1)
		}
		p.mx.Unlock()
		// unlinked before the exit arrived
		if idx == -1 {
			return nil
		}
	}

	// if we're trapping exits, send the signal to the runnable for them to deal with, don't exit.
	if p.trapExits.Load() {
		DebugPrintf("%v trapped exit signal from %v", p.self(), sig.sender)
		p.messages.Enqueue(exitMsgFromSignal(sig))
		return nil
	}

	// ignore normal exits from other processes when not trapping exits; [exitreason.Normal] is
	// a valid way to exit from within a process, but an external process can't stop us with it.
	if exitreason.IsNormal(sig.reason) && !sig.sender.Equals(p.self()) {
		return nil
	}
	return sig.reason
}

func (p *process) exit(e error) {
	name := names.markExiting(p)
	if name != "" {
		DebugPrintf("%v released name: %s", p, name)
	}

	exitReason := exitreason.From(e)
	p.exitReason = exitReason

	p.mx.Lock()
	links := p.links
	monitors := p.monitors
	p.links = nil
	p.monitors = nil
	p.mx.Unlock()

	for _, linked := range links {
		sendSignal(linked, exitSignal{sender: p.self(), receiver: linked, reason: exitReason, link: true})
	}
	for _, monit := range monitors {
		sendSignal(monit.pid, downSignal{proc: p.self(), ref: monit.ref, reason: exitReason})
	}

	// Receive returns the exit reason from now on
	p.messages.Close()
	<-p.userDone

	p.setStatus(StatusExited)
	table.remove(p)
	if exitreason.IsAbnormal(exitReason) {
		publishCrash(p, name, exitReason)
	}
	close(p.done)

	// anybody that raced our exit still gets their noproc replies
	for _, sig := range p.signals.Drain() {
		deadLetter(p.self(), sig)
	}
}

// block releases the scheduler thread around fn. Nested calls run fn as is,
// the outermost call already gave the worker back.
func (p *process) block(fn func()) {
	if p.blocked {
		fn()
		return
	}
	p.blocked = true
	p.casStatus(StatusRunnable, StatusWaiting)
	p.thread.Release()
	defer func() {
		p.blocked = false
		p.casStatus(StatusWaiting, StatusRunnable)
		p.thread.Acquire()
	}()
	fn()
}

// ownedByCaller reports whether the calling goroutine is the one running p's
// [Runnable].
func (p *process) ownedByCaller() bool {
	id := p.goid.Load()
	return id != 0 && id == goroutineID()
}

// goroutineID parses the id out of the "goroutine N [running]:" header that
// runtime.Stack writes first.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (p *process) getStatus() Status {
	if p == nil {
		return StatusExited
	}
	return Status(p.status.Load())
}

func (p *process) setStatus(s Status) {
	p.status.Store(int32(s))
}

func (p *process) casStatus(from, to Status) bool {
	return p.status.CompareAndSwap(int32(from), int32(to))
}

func (p *process) alive() bool {
	s := p.getStatus()
	return s == StatusRunnable || s == StatusWaiting
}

func (p *process) getName() Name {
	p.nameMutex.RLock()
	defer p.nameMutex.RUnlock()
	return p._name
}

func (p *process) setName(name Name) {
	p.nameMutex.Lock()
	defer p.nameMutex.Unlock()

	p._name = name
}
