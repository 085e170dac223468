package genserver_test

import (
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/chronos"
)

var testTimeout time.Duration = chronos.Dur("5s")

type gsState struct {
	Count     int
	terminate chan<- error
}

type gsArgs struct {
	count     int
	trapExit  bool
	terminate chan<- error
	initFn    func(self beam.PID) (gsState, any, error)
}

type request struct {
	value      any
	callFn     func(self beam.PID, arg any, from genserver.From, state gsState) (reply any, newState gsState)
	castFn     func(self beam.PID, state gsState) gsState
	continueFn func(self beam.PID, state gsState) (gsState, any, error)
	err        error
	cont       bool
}

type getState struct{}

// TestGS is driven by funcs carried in the requests it receives.
type TestGS struct{}

var _ genserver.GenServer[gsState] = TestGS{}

func (TestGS) Init(self beam.PID, args any) (genserver.InitResult[gsState], error) {
	a := args.(gsArgs)
	if a.trapExit {
		beam.ProcessFlag(self, beam.TrapExit, true)
	}
	if a.initFn != nil {
		state, cont, err := a.initFn(self)
		state.terminate = a.terminate
		return genserver.InitResult[gsState]{State: state, Continue: cont}, err
	}
	return genserver.InitResult[gsState]{State: gsState{Count: a.count, terminate: a.terminate}}, nil
}

func (TestGS) HandleCall(self beam.PID, req any, from genserver.From, state gsState) (genserver.CallResult[gsState], error) {
	if _, ok := req.(getState); ok {
		return genserver.CallResult[gsState]{Msg: state.Count, State: state}, nil
	}
	r := req.(request)
	reply, state := r.callFn(self, r.value, from, state)
	result := genserver.CallResult[gsState]{NoReply: reply == nil, Msg: reply, State: state}
	if r.cont {
		result.Continue = r
	}
	return result, r.err
}

func (TestGS) HandleCast(self beam.PID, req any, state gsState) (genserver.CastResult[gsState], error) {
	r := req.(request)
	if r.err != nil {
		return genserver.CastResult[gsState]{State: state}, r.err
	}
	if r.castFn != nil {
		state = r.castFn(self, state)
	}
	if r.cont {
		return genserver.CastResult[gsState]{State: state, Continue: r}, nil
	}
	return genserver.CastResult[gsState]{State: state}, nil
}

func (TestGS) HandleInfo(self beam.PID, msg any, state gsState) (genserver.InfoResult[gsState], error) {
	r, ok := msg.(request)
	if !ok {
		return genserver.InfoResult[gsState]{State: state}, nil
	}
	if r.err != nil {
		return genserver.InfoResult[gsState]{State: state}, r.err
	}
	if r.castFn != nil {
		state = r.castFn(self, state)
	}
	if r.cont {
		return genserver.InfoResult[gsState]{State: state, Continue: r}, nil
	}
	return genserver.InfoResult[gsState]{State: state}, nil
}

func (TestGS) HandleContinue(self beam.PID, continuation any, state gsState) (gsState, any, error) {
	r := continuation.(request)
	if r.continueFn != nil {
		return r.continueFn(self, state)
	}
	return state, nil, nil
}

func (TestGS) Terminate(self beam.PID, reason error, state gsState) {
	if state.terminate != nil {
		state.terminate <- reason
	}
}

func getCount(pid beam.PID) (int, error) {
	reply, err := genserver.Call(beam.RootPID(), pid, getState{}, testTimeout)
	if err != nil {
		return 0, err
	}
	return reply.(int), nil
}

func add(n int) request {
	return request{
		value: n,
		callFn: func(self beam.PID, arg any, from genserver.From, state gsState) (any, gsState) {
			state.Count += arg.(int)
			return state.Count, state
		},
		castFn: func(self beam.PID, state gsState) gsState {
			state.Count += n
			return state
		},
	}
}

func expectTerminate(c <-chan error) error {
	select {
	case reason := <-c:
		return reason
	case <-time.After(testTimeout):
		return nil
	}
}
