package genserver

import (
	"errors"
	"fmt"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/timeout"
)

// From identifies the caller of a [Call]. Pass it to [Reply] to answer a
// request that was not answered from HandleCall.
type From struct {
	caller beam.PID
	mref   beam.Ref
}

// CallRequest is the message [Call] delivers to the server.
type CallRequest struct {
	From From
	Msg  any
}

// CastRequest is the message [Cast] delivers to the server.
type CastRequest struct {
	Msg any
}

// stopRequest asks the server to run Terminate and exit with reason.
type stopRequest struct {
	reason *exitreason.S
}

type initAck struct {
	ignore bool
	err    error
}

type (
	InitResult[STATE any] struct {
		State STATE
		// if set, HandleContinue is called with it before any message is received
		Continue any
	}
	CallResult[STATE any] struct {
		// don't reply to the caller. Someone must eventually call [Reply] or the caller times out.
		NoReply bool
		// the reply, ignored if NoReply is set
		Msg      any
		State    STATE
		Continue any
	}
	CastResult[STATE any] struct {
		State    STATE
		Continue any
	}
	InfoResult[STATE any] struct {
		State    STATE
		Continue any
	}
)

// GenServer is the set of callbacks a server implements. Any callback that
// returns an error stops the server after Terminate is called; the error
// becomes the exit reason.
type GenServer[STATE any] interface {
	// Called in the new process before Start returns. Return [exitreason.Ignore]
	// to exit normally without an error being returned by Start.
	Init(self beam.PID, args any) (InitResult[STATE], error)
	HandleCall(self beam.PID, request any, from From, state STATE) (CallResult[STATE], error)
	HandleCast(self beam.PID, request any, state STATE) (CastResult[STATE], error)
	// Every message that is not a call, cast or stop request.
	HandleInfo(self beam.PID, msg any, state STATE) (InfoResult[STATE], error)
	// Called until it returns a nil continueTerm.
	HandleContinue(self beam.PID, continuation any, state STATE) (newState STATE, continueTerm any, err error)
	Terminate(self beam.PID, reason error, state STATE)
}

// GenServerS is the [beam.Runnable] driving a [GenServer].
type GenServerS[STATE any] struct {
	callback    GenServer[STATE]
	state       STATE
	opts        Options
	args        any
	parent      beam.PID
	initAckChan chan<- initAck
}

func (gs *GenServerS[STATE]) Receive(self beam.PID, inbox *beam.Inbox) error {
	if gs.opts.Name != "" {
		if err := beam.Register(gs.opts.Name, self); err != nil {
			gs.initAckChan <- initAck{err: err}
			return exitreason.Exception(err)
		}
	}
	initReturn, err := gs.handleInit(self, gs.args)
	if err != nil {
		if errors.Is(err, exitreason.Ignore) {
			gs.initAckChan <- initAck{ignore: true}
			return exitreason.Normal
		}
		beam.DebugPrintf("GenServer[%v] returned an error from init callback: %v", self, err)
		err = exitreason.Wrap(err)
		gs.initAckChan <- initAck{err: err}
		return err
	}
	gs.initAckChan <- initAck{}
	gs.state = initReturn.State

	if initReturn.Continue != nil {
		if err := gs.doContinue(self, initReturn.Continue); err != nil {
			return gs.terminate(self, err)
		}
	}

	for {
		msg, err := inbox.Receive(timeout.Infinity)
		if err != nil {
			// killed or exited by a signal; there is no chance to run Terminate
			return err
		}
		switch msgT := msg.(type) {
		case CallRequest:
			if err := gs.handleCallRequest(self, msgT); err != nil {
				return err
			}
		case CastRequest:
			if err := gs.handleCastRequest(self, msgT); err != nil {
				return err
			}
		case stopRequest:
			gs.callback.Terminate(self, msgT.reason, gs.state)
			return msgT.reason
		case beam.ExitMsg:
			if msgT.Proc.Equals(gs.parent) {
				beam.DebugPrintf("GenServer[%v] parent exited with %v, terminating", self, msgT.Reason)
				gs.callback.Terminate(self, msgT.Reason, gs.state)
				return msgT.Reason
			}
			if err := gs.handleInfoRequest(self, msg); err != nil {
				return err
			}
		default:
			if err := gs.handleInfoRequest(self, msg); err != nil {
				return err
			}
		}
	}
}

func (gs *GenServerS[STATE]) handleInit(self beam.PID, args any) (result InitResult[STATE], err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				err = exitreason.Exception(fmt.Errorf("panic in init: %v", r))
			} else {
				err = exitreason.Wrap(e)
			}
		}
	}()
	return gs.callback.Init(self, args)
}

// terminate runs the Terminate callback and returns the exit reason for err.
func (gs *GenServerS[STATE]) terminate(self beam.PID, err error) error {
	exit := exitreason.Wrap(err)
	gs.callback.Terminate(self, exit, gs.state)
	return exit
}

func (gs *GenServerS[STATE]) doContinue(self beam.PID, cont any) error {
	for cont != nil {
		s, next, err := gs.callback.HandleContinue(self, cont, gs.state)
		gs.state = s
		if err != nil {
			return err
		}
		cont = next
	}
	return nil
}

func (gs *GenServerS[STATE]) handleInfoRequest(self beam.PID, msg any) error {
	result, err := gs.callback.HandleInfo(self, msg, gs.state)
	if err != nil {
		return gs.terminate(self, err)
	}
	gs.state = result.State

	if err := gs.doContinue(self, result.Continue); err != nil {
		return gs.terminate(self, err)
	}
	return nil
}

func (gs *GenServerS[STATE]) handleCallRequest(self beam.PID, msg CallRequest) error {
	result, err := gs.callback.HandleCall(self, msg.Msg, msg.From, gs.state)
	if !result.NoReply {
		Reply(msg.From, result.Msg)
	}
	if err != nil {
		return gs.terminate(self, err)
	}
	gs.state = result.State

	if err := gs.doContinue(self, result.Continue); err != nil {
		return gs.terminate(self, err)
	}
	return nil
}

func (gs *GenServerS[STATE]) handleCastRequest(self beam.PID, msg CastRequest) error {
	result, err := gs.callback.HandleCast(self, msg.Msg, gs.state)
	if err != nil {
		return gs.terminate(self, err)
	}
	gs.state = result.State

	if err := gs.doContinue(self, result.Continue); err != nil {
		return gs.terminate(self, err)
	}
	return nil
}
