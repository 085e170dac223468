/*
Package testserver provides a [gensrv] server whose handlers are set per
test. Use it as a stub collaborator, or as a supervised child whose
behaviour on start and restart a test controls.

	conf := testserver.NewConfig().
		AddCallHandler(ping{}, func(self beam.PID, req any, from genserver.From, s testserver.TestServer) (genserver.CallResult[testserver.TestServer], error) {
			return genserver.CallResult[testserver.TestServer]{Msg: "pong", State: s}, nil
		})
	pid, err := testserver.StartLink(self, conf)
*/
package testserver

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/beam/gensrv"
	"github.com/uberbrodt/beamgo/beam/supervisor"
)

type (
	Handler     func(self beam.PID, arg any, state TestServer) (newState TestServer, continu any, err error)
	CallHandler func(self beam.PID, request any, from genserver.From, state TestServer) (genserver.CallResult[TestServer], error)
)

// NewConfig returns a [Config] whose Init is [InitOK].
func NewConfig() *Config {
	return &Config{
		InitFn:  InitOK,
		castFns: make(map[reflect.Type]msgHandler),
		infoFns: make(map[reflect.Type]msgHandler),
		callFns: make(map[reflect.Type]msgCallHandler),
	}
}

type msgHandler struct {
	msg any
	fn  Handler
}

type msgCallHandler struct {
	msg any
	fn  CallHandler
}

// Config is both the set of handlers and the Init arg of the server.
type Config struct {
	// called on start and on every restart
	InitFn      func(self beam.PID, args *Config) (TestServer, any, error)
	TerminateFn func(self beam.PID, reason error, state TestServer)
	Name        beam.Name
	castFns     map[reflect.Type]msgHandler
	infoFns     map[reflect.Type]msgHandler
	callFns     map[reflect.Type]msgCallHandler
}

func (c *Config) SetInit(fn func(self beam.PID, args *Config) (TestServer, any, error)) *Config {
	c.InitFn = fn
	return c
}

func (c *Config) SetTerminate(fn func(self beam.PID, reason error, state TestServer)) *Config {
	c.TerminateFn = fn
	return c
}

// SetName registers the server under name on every start.
func (c *Config) SetName(name beam.Name) *Config {
	c.Name = name
	return c
}

// AddCastHandler panics if msg's type already has a cast handler.
func (c *Config) AddCastHandler(msg any, fn Handler) *Config {
	addHandler(c.castFns, msg, msgHandler{msg: msg, fn: fn})
	return c
}

// AddInfoHandler panics if msg's type already has an info handler.
func (c *Config) AddInfoHandler(msg any, fn Handler) *Config {
	addHandler(c.infoFns, msg, msgHandler{msg: msg, fn: fn})
	return c
}

// AddCallHandler panics if msg's type already has a call handler.
func (c *Config) AddCallHandler(msg any, fn CallHandler) *Config {
	addHandler(c.callFns, msg, msgCallHandler{msg: msg, fn: fn})
	return c
}

func addHandler[H any](m map[reflect.Type]H, msg any, h H) {
	t := reflect.TypeOf(msg)
	if _, ok := m[t]; ok {
		panic(fmt.Errorf("a handler for %T already exists", msg))
	}
	m[t] = h
}

type TestServer struct {
	Conf *Config
	// free for handlers to use
	Data any
}

// ChildSpec starts the server under a supervisor.
func ChildSpec(id string, config *Config, opts ...supervisor.ChildSpecOpt) supervisor.ChildSpec {
	return supervisor.NewChildSpec(id,
		func(sup beam.PID) (beam.PID, error) {
			return StartLink(sup, config)
		}, opts...,
	)
}

func buildOpts(conf *Config) []gensrv.GenSrvOpt[TestServer] {
	opts := []gensrv.GenSrvOpt[TestServer]{gensrv.RegisterInit(conf.InitFn)}

	if conf.Name != "" {
		opts = append(opts, gensrv.SetName[TestServer](conf.Name))
	}
	for _, h := range conf.castFns {
		opts = append(opts, gensrv.RegisterCast[TestServer, any](h.msg, h.fn))
	}
	for _, h := range conf.infoFns {
		opts = append(opts, gensrv.RegisterInfo[TestServer, any](h.msg, h.fn))
	}
	for _, h := range conf.callFns {
		opts = append(opts, gensrv.RegisterCall[TestServer, any](h.msg, h.fn))
	}
	if conf.TerminateFn != nil {
		opts = append(opts, gensrv.RegisterTerminate(conf.TerminateFn))
	}
	return opts
}

func StartLink(self beam.PID, conf *Config) (beam.PID, error) {
	return gensrv.StartLink(self, conf, buildOpts(conf)...)
}

func StartMonitor(self beam.PID, conf *Config) (beam.PID, beam.Ref, error) {
	return gensrv.StartMonitor(self, conf, buildOpts(conf)...)
}

// Start starts an unlinked server.
func Start(self beam.PID, conf *Config) (beam.PID, error) {
	return gensrv.Start(self, conf, buildOpts(conf)...)
}

var errNoConfig = errors.New("init arg must be a *testserver.Config")

func InitOK(self beam.PID, conf *Config) (TestServer, any, error) {
	if conf == nil {
		return TestServer{}, nil, exitreason.Exception(errNoConfig)
	}
	return TestServer{Conf: conf}, nil, nil
}

func InitError(self beam.PID, conf *Config) (TestServer, any, error) {
	if conf == nil {
		return TestServer{}, nil, exitreason.Exception(errNoConfig)
	}
	return TestServer{Conf: conf}, nil, exitreason.Shutdown("exited in init")
}

func InitIgnore(self beam.PID, conf *Config) (TestServer, any, error) {
	if conf == nil {
		return TestServer{}, nil, exitreason.Exception(errNoConfig)
	}
	return TestServer{Conf: conf}, nil, exitreason.Ignore
}
