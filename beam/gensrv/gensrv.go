// Package gensrv builds a [genserver.GenServer] from handlers registered per
// message type, instead of one type implementing every callback.
//
//	pid, err := gensrv.StartLink[Counter](self, 10,
//		gensrv.RegisterInit(func(self beam.PID, start int) (Counter, any, error) {
//			return Counter{Value: start}, nil, nil
//		}),
//		gensrv.RegisterCast(Incr{}, func(self beam.PID, _ Incr, c Counter) (Counter, any, error) {
//			c.Value++
//			return c, nil, nil
//		}),
//		gensrv.RegisterCall(Get{}, func(self beam.PID, _ Get, from genserver.From, c Counter) (genserver.CallResult[Counter], error) {
//			return genserver.CallResult[Counter]{Msg: c.Value, State: c}, nil
//		}),
//	)
//
// A call or cast with no registered handler stops the server with an
// exception. Info messages with no handler are logged and dropped.
package gensrv

import (
	"fmt"
	"reflect"
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/genserver"
)

type handler[State any] func(self beam.PID, arg any, state State) (newState State, continu any, err error)

type callHandler[State any] func(self beam.PID, request any, from genserver.From, state State) (genserver.CallResult[State], error)

type config[State any] struct {
	name         beam.Name
	startTimeout time.Duration
	initFun      func(self beam.PID, arg any) (genserver.InitResult[State], error)
	terminateFun func(self beam.PID, reason error, state State)
	castFuns     map[reflect.Type]handler[State]
	infoFuns     map[reflect.Type]handler[State]
	callFuns     map[reflect.Type]callHandler[State]
	continueFuns map[reflect.Type]handler[State]
}

func (o *config[State]) StartOptions() genserver.Options {
	return genserver.Options{Name: o.name, StartTimeout: o.startTimeout}
}

type GenSrvOpt[State any] func(c *config[State])

func Start[State any](self beam.PID, arg any, opts ...GenSrvOpt[State]) (beam.PID, error) {
	conf := doConf(opts...)
	return genserver.Start[State](self, &CB[State]{conf: conf}, arg, genserver.InheritOpts(conf))
}

func StartLink[State any](self beam.PID, arg any, opts ...GenSrvOpt[State]) (beam.PID, error) {
	conf := doConf(opts...)
	return genserver.StartLink[State](self, &CB[State]{conf: conf}, arg, genserver.InheritOpts(conf))
}

func StartMonitor[State any](self beam.PID, arg any, opts ...GenSrvOpt[State]) (beam.PID, beam.Ref, error) {
	conf := doConf(opts...)
	return genserver.StartMonitor[State](self, &CB[State]{conf: conf}, arg, genserver.InheritOpts(conf))
}

func doConf[State any](opts ...GenSrvOpt[State]) *config[State] {
	conf := &config[State]{
		castFuns:     make(map[reflect.Type]handler[State]),
		callFuns:     make(map[reflect.Type]callHandler[State]),
		infoFuns:     make(map[reflect.Type]handler[State]),
		continueFuns: make(map[reflect.Type]handler[State]),
	}

	for _, opt := range opts {
		opt(conf)
	}
	return conf
}

func SetName[State any](name beam.Name) GenSrvOpt[State] {
	return func(c *config[State]) {
		c.name = name
	}
}

func SetStartTimeout[State any](tout time.Duration) GenSrvOpt[State] {
	return func(c *config[State]) {
		c.startTimeout = tout
	}
}

// RegisterInit sets the Init callback. The start arg must be an Arg.
func RegisterInit[State any, Arg any](init func(self beam.PID, arg Arg) (State, any, error)) GenSrvOpt[State] {
	return func(c *config[State]) {
		c.initFun = func(self beam.PID, a any) (genserver.InitResult[State], error) {
			msg, ok := a.(Arg)
			if !ok && a != nil {
				var want Arg
				return genserver.InitResult[State]{}, exitreason.Exception(fmt.Errorf("init arg is %T, want %T", a, want))
			}
			s, cont, err := init(self, msg)
			return genserver.InitResult[State]{Continue: cont, State: s}, err
		}
	}
}

// RegisterCast handles casts whose body has the same type as matchType.
func RegisterCast[State any, Msg any](matchType Msg, fn func(self beam.PID, msg Msg, state State) (newState State, continu any, err error)) GenSrvOpt[State] {
	return func(c *config[State]) {
		c.castFuns[reflect.TypeOf(matchType)] = wrap(fn)
	}
}

// RegisterInfo handles plain messages with the same type as matchType, such
// as [beam.DownMsg] or timer messages.
func RegisterInfo[State any, Msg any](matchType Msg, fn func(self beam.PID, msg Msg, state State) (newState State, continu any, err error)) GenSrvOpt[State] {
	return func(c *config[State]) {
		c.infoFuns[reflect.TypeOf(matchType)] = wrap(fn)
	}
}

// RegisterCall handles calls whose request has the same type as matchType.
func RegisterCall[State any, Msg any](matchType Msg, fn func(self beam.PID, request Msg, from genserver.From, state State) (result genserver.CallResult[State], err error)) GenSrvOpt[State] {
	return func(c *config[State]) {
		c.callFuns[reflect.TypeOf(matchType)] = func(self beam.PID, m any, f genserver.From, s State) (genserver.CallResult[State], error) {
			return fn(self, m.(Msg), f, s)
		}
	}
}

// RegisterContinue handles continuation terms with the same type as matchType.
func RegisterContinue[State any, Msg any](matchType Msg, fn func(self beam.PID, cont Msg, state State) (newState State, continu any, err error)) GenSrvOpt[State] {
	return func(c *config[State]) {
		c.continueFuns[reflect.TypeOf(matchType)] = wrap(fn)
	}
}

func RegisterTerminate[State any](terminate func(self beam.PID, reason error, state State)) GenSrvOpt[State] {
	return func(c *config[State]) {
		c.terminateFun = terminate
	}
}

func wrap[State any, Msg any](fn func(self beam.PID, msg Msg, state State) (State, any, error)) handler[State] {
	return func(self beam.PID, m any, s State) (State, any, error) {
		return fn(self, m.(Msg), s)
	}
}

// CB is the [genserver.GenServer] that dispatches to registered handlers.
type CB[State any] struct {
	conf *config[State]
}

var _ genserver.GenServer[int] = &CB[int]{}

func (s *CB[State]) Init(self beam.PID, args any) (genserver.InitResult[State], error) {
	if s.conf.initFun != nil {
		return s.conf.initFun(self, args)
	}
	var state State
	return genserver.InitResult[State]{State: state}, nil
}

func (s *CB[State]) HandleCall(self beam.PID, request any, from genserver.From, state State) (genserver.CallResult[State], error) {
	if fn, ok := s.conf.callFuns[reflect.TypeOf(request)]; ok {
		return fn(self, request, from, state)
	}
	// no reply, so the caller sees the crash instead of a nil answer
	return genserver.CallResult[State]{NoReply: true, State: state}, exitreason.Exception(fmt.Errorf("no handler for call arg: %+v", request))
}

func (s *CB[State]) HandleCast(self beam.PID, request any, state State) (genserver.CastResult[State], error) {
	if fn, ok := s.conf.castFuns[reflect.TypeOf(request)]; ok {
		newState, cont, err := fn(self, request, state)
		return genserver.CastResult[State]{State: newState, Continue: cont}, err
	}
	return genserver.CastResult[State]{State: state}, exitreason.Exception(fmt.Errorf("no handler for cast arg: %+v", request))
}

func (s *CB[State]) HandleInfo(self beam.PID, msg any, state State) (genserver.InfoResult[State], error) {
	if fn, ok := s.conf.infoFuns[reflect.TypeOf(msg)]; ok {
		newState, cont, err := fn(self, msg, state)
		return genserver.InfoResult[State]{State: newState, Continue: cont}, err
	}
	beam.Logger.Warn("gensrv dropped unexpected message", "pid", self, "msg", fmt.Sprintf("%+v", msg))
	return genserver.InfoResult[State]{State: state}, nil
}

func (s *CB[State]) HandleContinue(self beam.PID, continuation any, state State) (State, any, error) {
	if fn, ok := s.conf.continueFuns[reflect.TypeOf(continuation)]; ok {
		return fn(self, continuation, state)
	}
	return state, nil, exitreason.Exception(fmt.Errorf("no handler for continuation arg: %+v", continuation))
}

func (s *CB[State]) Terminate(self beam.PID, reason error, state State) {
	if s.conf.terminateFun != nil {
		s.conf.terminateFun(self, reason, state)
	}
}
