package supervisor

import (
	"errors"
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/beam/timeout"
	"github.com/uberbrodt/beamgo/chronos"
)

type linkOpts struct {
	name         beam.Name
	clock        chronos.Clock
	startTimeout time.Duration
}

type LinkOpts func(flags linkOpts) linkOpts

// SetName registers the supervisor under name.
func SetName(name beam.Name) LinkOpts {
	return func(flags linkOpts) linkOpts {
		flags.name = name
		return flags
	}
}

// SetClock replaces the clock restart intensity is measured with.
func SetClock(clock chronos.Clock) LinkOpts {
	return func(flags linkOpts) linkOpts {
		flags.clock = clock
		return flags
	}
}

// SetStartTimeout bounds how long starting all children may take. The
// default is to wait forever.
func SetStartTimeout(tout time.Duration) LinkOpts {
	return func(flags linkOpts) linkOpts {
		flags.startTimeout = tout
		return flags
	}
}

type defaultSup struct {
	children []ChildSpec
	supflags SupFlagsS
}

func (ds defaultSup) Init(self beam.PID, args any) InitResult {
	return InitResult{SupFlags: ds.supflags, ChildSpecs: ds.children}
}

// StartDefaultLink starts a supervisor for a fixed list of children.
func StartDefaultLink(self beam.PID, children []ChildSpec, supFlags SupFlagsS, optFuns ...LinkOpts) (beam.PID, error) {
	ds := defaultSup{children: children, supflags: supFlags}
	return StartLink(self, ds, nil, optFuns...)
}

// StartLink starts a supervisor linked to self and returns once every child
// has started. If a child fails to start, the children already started are
// stopped and the error is returned.
func StartLink(self beam.PID, callback Supervisor, args any, optFuns ...LinkOpts) (beam.PID, error) {
	opts := linkOpts{startTimeout: timeout.Infinity}

	for _, fn := range optFuns {
		opts = fn(opts)
	}

	gsOpts := []genserver.StartOpt{genserver.StartTimeout(opts.startTimeout)}

	if opts.name != "" {
		gsOpts = append(gsOpts, genserver.SetName(opts.name))
	}

	sup := SupervisorS{
		callback: callback,
		clock:    opts.clock,
	}

	return genserver.StartLink[supervisorState](self, sup, args, gsOpts...)
}

type (
	startChildReq     struct{ spec ChildSpec }
	terminateChildReq struct{ id string }
	restartChildReq   struct{ id string }
	deleteChildReq    struct{ id string }
	whichChildrenReq  struct{}
	countChildrenReq  struct{}
)

type childReply struct {
	pid beam.PID
	err error
}

func callChild(self beam.PID, sup beam.Dest, req any) (beam.PID, error) {
	reply, err := genserver.Call(self, sup, req, timeout.Infinity)
	if err != nil {
		return beam.UndefinedPID, err
	}
	r := reply.(childReply)
	return r.pid, r.err
}

// StartChild adds spec to the supervisor and starts it.
//
// Errors:
//   - [AlreadyStartedError]: a child with the same id is running
//   - [ErrAlreadyPresent]: a child with the same id exists but is not running
//   - the error returned by the child's start function. The spec is not added.
//
// If the start function returns exitreason.Ignore the spec is added and the
// returned pid is undefined.
func StartChild(self beam.PID, sup beam.Dest, spec ChildSpec) (beam.PID, error) {
	return callChild(self, sup, startChildReq{spec: spec})
}

// TerminateChild stops the child but keeps its spec, unless it is temporary.
func TerminateChild(self beam.PID, sup beam.Dest, id string) error {
	_, err := callChild(self, sup, terminateChildReq{id: id})
	return err
}

// RestartChild starts a terminated child again. Returns [ErrRunning] if it
// is running.
func RestartChild(self beam.PID, sup beam.Dest, id string) (beam.PID, error) {
	return callChild(self, sup, restartChildReq{id: id})
}

// DeleteChild removes a terminated child's spec. Returns [ErrRunning] if it
// is running.
func DeleteChild(self beam.PID, sup beam.Dest, id string) error {
	_, err := callChild(self, sup, deleteChildReq{id: id})
	return err
}

// WhichChildren lists children in start order.
func WhichChildren(self beam.PID, sup beam.Dest) ([]ChildInfo, error) {
	reply, err := genserver.Call(self, sup, whichChildrenReq{}, timeout.Infinity)
	if err != nil {
		return nil, err
	}
	return reply.([]ChildInfo), nil
}

func CountChildren(self beam.PID, sup beam.Dest) (ChildCount, error) {
	reply, err := genserver.Call(self, sup, countChildrenReq{}, timeout.Infinity)
	if err != nil {
		return ChildCount{}, err
	}
	return reply.(ChildCount), nil
}

// Status returns the supervisor's state without calling it, so it can be
// used while the supervisor is busy restarting. An exited supervisor is
// [StateFailed] if it gave up on restarts and [StateStopped] otherwise.
func Status(sup beam.PID) (State, error) {
	if reason := beam.ExitReason(sup); reason != nil {
		if errors.Is(reason, exitreason.NoProc) {
			return "", exitreason.NoProc
		}
		if errors.Is(reason, ErrMaxIntensity) {
			return StateFailed, nil
		}
		return StateStopped, nil
	}
	st, ok := statuses.Load(sup.ID())
	if !ok {
		// still in Init, or not a supervisor
		return "", exitreason.NoProc
	}
	return st.(State), nil
}
