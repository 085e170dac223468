package genserver

import (
	"github.com/uberbrodt/beamgo/beam"
)

// CoreGenServer is the minimum a server needs to implement. Wrap it with
// [NewCoreGenServer] to get a full [GenServer].
type CoreGenServer[STATE any] interface {
	Init(self beam.PID, args any) (InitResult[STATE], error)
	HandleCall(self beam.PID, request any, from From, state STATE) (CallResult[STATE], error)
	HandleInfo(self beam.PID, msg any, state STATE) (InfoResult[STATE], error)
}

// CoreGenServerS fills in the optional callbacks: casts and continuations are
// logged and ignored, Terminate does nothing.
type CoreGenServerS[STATE any] struct {
	cgs CoreGenServer[STATE]
}

var _ GenServer[int] = CoreGenServerS[int]{}

func (s CoreGenServerS[STATE]) Init(self beam.PID, args any) (InitResult[STATE], error) {
	return s.cgs.Init(self, args)
}

func (s CoreGenServerS[STATE]) HandleCall(self beam.PID, request any, from From, state STATE) (CallResult[STATE], error) {
	return s.cgs.HandleCall(self, request, from, state)
}

func (s CoreGenServerS[STATE]) HandleCast(self beam.PID, request any, state STATE) (CastResult[STATE], error) {
	beam.Logger.Warn("cast to a server that does not handle casts", "pid", self, "request", request)
	return CastResult[STATE]{State: state}, nil
}

func (s CoreGenServerS[STATE]) HandleInfo(self beam.PID, request any, state STATE) (InfoResult[STATE], error) {
	return s.cgs.HandleInfo(self, request, state)
}

func (s CoreGenServerS[STATE]) HandleContinue(self beam.PID, continuation any, state STATE) (STATE, any, error) {
	beam.Logger.Warn("continue used without implementing HandleContinue", "pid", self, "continuation", continuation)
	return state, nil, nil
}

func (s CoreGenServerS[STATE]) Terminate(self beam.PID, reason error, state STATE) {
}

func NewCoreGenServer[STATE any](cgs CoreGenServer[STATE]) CoreGenServerS[STATE] {
	return CoreGenServerS[STATE]{cgs: cgs}
}
