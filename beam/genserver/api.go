package genserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/timeout"
)

var errCallSelf = errors.New("cannot call self")

// StartLink starts a GenServer linked to self and waits for Init to return.
//
// If Init returns an error, StartLink returns it once the server process has
// fully exited. If Init returns [exitreason.Ignore] the error is
// [exitreason.Ignore] and the process exits normally. If Init does not return
// within the start timeout the server is killed and the error is
// [exitreason.Timeout].
func StartLink[STATE any](self beam.PID, callbackStruct GenServer[STATE], args any, opts ...StartOpt) (beam.PID, error) {
	result := doStart(self, link, callbackStruct, args, opts...)
	return result.pid, result.err
}

// StartMonitor is like [StartLink] but monitors the server instead.
func StartMonitor[STATE any](self beam.PID, callbackStruct GenServer[STATE], args any, opts ...StartOpt) (beam.PID, beam.Ref, error) {
	result := doStart(self, monitor, callbackStruct, args, opts...)
	return result.pid, result.monref, result.err
}

// Start starts a GenServer with no relationship to self.
func Start[STATE any](self beam.PID, callbackStruct GenServer[STATE], args any, opts ...StartOpt) (beam.PID, error) {
	result := doStart(self, noLink, callbackStruct, args, opts...)
	return result.pid, result.err
}

// Reply answers a [Call] that HandleCall returned with NoReply set.
func Reply(client From, reply any) {
	beam.Send(client.caller, CallReply{Status: OK, Term: reply})
}

// Cast sends an asynchronous request. It only fails if gensrv is a name that
// is not registered.
func Cast(gensrv beam.Dest, request any) error {
	pid, err := gensrv.ResolvePID()
	if err != nil {
		return exitreason.NoProc
	}
	beam.Send(pid, CastRequest{Msg: request})
	return nil
}

// Call sends a synchronous request and waits up to tout for the reply.
//
// Errors:
//   - [exitreason.NoProc]: the server does not exist
//   - [exitreason.Stopped]: the server exited normally before replying
//   - [exitreason.Timeout]: no reply within tout
//   - the server's exit reason if it crashed before replying
func Call(self beam.PID, gensrv beam.Dest, request any, tout time.Duration) (any, error) {
	pid, err := gensrv.ResolvePID()
	if err != nil {
		return nil, exitreason.NoProc
	}

	if self.Equals(pid) {
		return nil, exitreason.Exception(errCallSelf)
	}

	resp := make(chan CallReply, 1)
	beam.Spawn(&genCaller{out: resp, gensrv: pid, tout: tout, request: request})

	var reply CallReply
	beam.Block(self, func() { reply = <-resp })
	switch reply.Status {
	case OK:
		return reply.Term, nil
	case NoProc:
		return nil, exitreason.NoProc
	case Stopped:
		return nil, exitreason.Stopped
	case Timeout:
		return nil, exitreason.Timeout
	default:
		if e, ok := reply.Term.(error); ok {
			return nil, e
		}
		return nil, exitreason.Exception(fmt.Errorf("call failed: %v", reply.Term))
	}
}

// Stop asks the server to terminate with the given reason (default
// [exitreason.Normal]) and waits for it to exit. The server's Terminate
// callback is called first.
//
// Returns nil if the server exited with the requested reason,
// [exitreason.NoProc] if it was not alive, [exitreason.Timeout] if it did not
// exit in time, and the actual exit reason otherwise.
func Stop(self beam.PID, gensrv beam.Dest, opts ...ExitOpt) error {
	myOpts := exitOptS{
		tout:       timeout.Infinity,
		exitReason: exitreason.Normal,
	}
	for _, opt := range opts {
		myOpts = opt(myOpts)
	}
	if self.IsNil() {
		return exitreason.Exception(fmt.Errorf("self/parent pid cannot be undefined"))
	}

	gensrvPID, err := gensrv.ResolvePID()
	if err != nil {
		return fmt.Errorf("%w detail: %s", exitreason.NoProc, err)
	}

	if !beam.IsAlive(gensrvPID) {
		return exitreason.NoProc
	}

	reply := make(chan *exitreason.S, 1)
	beam.Spawn(&genStopper{out: reply, gensrv: gensrvPID, tout: myOpts.tout, exitReason: myOpts.exitReason})

	var exit *exitreason.S
	beam.Block(self, func() { exit = <-reply })
	if errors.Is(exit, myOpts.exitReason) {
		return nil
	}

	return exit
}

type exitOptS struct {
	tout       time.Duration
	exitReason *exitreason.S
}

type ExitOpt func(opts exitOptS) exitOptS

// StopTimeout bounds how long [Stop] waits for the server to exit.
func StopTimeout(tout time.Duration) ExitOpt {
	return func(opts exitOptS) exitOptS {
		opts.tout = tout
		return opts
	}
}

// StopReason sets the exit reason passed to Terminate. A plain error becomes
// an exception.
func StopReason(e error) ExitOpt {
	return func(opts exitOptS) exitOptS {
		opts.exitReason = exitreason.From(e)
		return opts
	}
}

type CallReturnStatus string

const (
	OK      CallReturnStatus = "ok"
	NoProc  CallReturnStatus = "noproc"
	Timeout CallReturnStatus = "timeout"
	// the server exited normally or with a shutdown before replying
	Stopped CallReturnStatus = "normal_shutdown"
	// the server crashed before replying; Term holds the reason
	Other CallReturnStatus = "other"
)

// CallReply is what the server sends back to the caller.
type CallReply struct {
	Status CallReturnStatus
	Term   any
}

type startRet struct {
	pid    beam.PID
	monref beam.Ref
	err    error
}

type startType string

const (
	noLink  startType = "nolink"
	monitor startType = "monitor"
	link    startType = "link"
)

func doStart[STATE any](self beam.PID, start startType, callbackStruct GenServer[STATE], args any, opts ...StartOpt) startRet {
	if self.IsNil() {
		return startRet{err: exitreason.Exception(fmt.Errorf("self/parent pid cannot be undefined"))}
	}
	finalOpts := buildOpts(opts)
	initAckChan := make(chan initAck, 1)

	gs := &GenServerS[STATE]{
		callback:    callbackStruct,
		opts:        finalOpts,
		args:        beam.CopyTerm(args),
		parent:      self,
		initAckChan: initAckChan,
	}
	var pid beam.PID
	var monref beam.Ref
	switch start {
	case noLink:
		pid = beam.Spawn(gs)
	case monitor:
		pid, monref = beam.SpawnMonitor(self, gs)
	case link:
		pid = beam.SpawnLink(self, gs)
	}

	var ack initAck
	var ret *startRet
	beam.Block(self, func() {
		select {
		case ack = <-initAckChan:
		case <-beam.Done(pid):
			select {
			case ack = <-initAckChan:
			default:
				// died before acknowledging, e.g. killed while in Init
				ret = &startRet{pid: pid, err: beam.ExitReason(pid), monref: monref}
			}
		case <-finalOpts.startDeadline():
			beam.Exit(self, pid, exitreason.Kill)
			ret = &startRet{pid: pid, err: exitreason.Timeout, monref: monref}
		}
		// the caller should never see a failed server as alive
		if ret == nil && (ack.ignore || ack.err != nil) {
			<-beam.Done(pid)
		}
	})
	if ret != nil {
		return *ret
	}

	beam.DebugPrintf("GenServer[%v] received initAck: %+v", pid, ack)
	switch {
	case ack.ignore:
		return startRet{pid: pid, err: exitreason.Ignore, monref: monref}
	case ack.err != nil:
		return startRet{pid: pid, err: ack.err, monref: monref}
	}
	return startRet{pid: pid, monref: monref}
}
