package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/chronos"
)

var _ genserver.GenServer[supervisorState] = SupervisorS{}

const tracerName = "github.com/uberbrodt/beamgo/beam/supervisor"

// live supervisor states, keyed by PID.ID()
var statuses sync.Map

// SupFlagsS configures the restart strategy and intensity of a supervisor.
// Use [NewSupFlags] to get the defaults.
type SupFlagsS struct {
	Strategy Strategy
	// the window, in seconds, that Intensity is measured over
	Period int
	// restarts allowed within Period. One more and the supervisor shuts down.
	Intensity int
}

type SupFlag func(flags SupFlagsS) SupFlagsS

func SetStrategy(strategy Strategy) SupFlag {
	return func(flags SupFlagsS) SupFlagsS {
		flags.Strategy = strategy
		return flags
	}
}

func SetPeriod(period int) SupFlag {
	return func(flags SupFlagsS) SupFlagsS {
		flags.Period = period
		return flags
	}
}

func SetIntensity(intensity int) SupFlag {
	return func(flags SupFlagsS) SupFlagsS {
		flags.Intensity = intensity
		return flags
	}
}

// NewSupFlags defaults to [OneForOne] with at most 1 restart in 5 seconds.
func NewSupFlags(flags ...SupFlag) SupFlagsS {
	f := SupFlagsS{
		Strategy:  OneForOne,
		Period:    5,
		Intensity: 1,
	}

	for _, x := range flags {
		f = x(f)
	}
	return f
}

func (f SupFlagsS) validate() error {
	switch f.Strategy {
	case OneForOne, OneForAll, RestForOne:
	default:
		return fmt.Errorf("unknown supervisor strategy %q", f.Strategy)
	}
	if f.Intensity < 0 || f.Period <= 0 {
		return fmt.Errorf("invalid restart intensity %d/%ds", f.Intensity, f.Period)
	}
	return nil
}

// InitResult is returned by [Supervisor.Init].
type InitResult struct {
	SupFlags SupFlagsS
	// started in order, stopped in reverse order
	ChildSpecs []ChildSpec
	// don't start the supervisor; StartLink returns exitreason.Ignore
	Ignore bool
}

// Supervisor decides the flags and children of a supervisor when it starts.
// For a fixed list of children use [StartDefaultLink] instead.
type Supervisor interface {
	// Don't start children here, return them in ChildSpecs.
	Init(self beam.PID, args any) InitResult
}

// SupervisorS is the [genserver.GenServer] behind every supervisor.
type SupervisorS struct {
	callback Supervisor
	clock    chronos.Clock
}

func (s SupervisorS) Init(self beam.PID, args any) (genserver.InitResult[supervisorState], error) {
	beam.ProcessFlag(self, beam.TrapExit, true)
	initResult := s.callback.Init(self, args)
	if initResult.Ignore {
		return genserver.InitResult[supervisorState]{}, exitreason.Ignore
	}
	if err := initResult.SupFlags.validate(); err != nil {
		return genserver.InitResult[supervisorState]{}, exitreason.Shutdown(err)
	}
	children, err := newChildSpecs(initResult.ChildSpecs)
	if err != nil {
		return genserver.InitResult[supervisorState]{}, exitreason.Shutdown(err)
	}
	clock := s.clock
	if clock == nil {
		clock = chronos.UTC
	}
	state := supervisorState{
		children: children,
		flags:    initResult.SupFlags,
		history:  &restartHistory{clock: clock},
	}

	if _, err := s.startChildren(self, state.children, state.children.ids()); err != nil {
		beam.DebugPrintf("Supervisor[%v] error starting children: %v", self, err)
		if exitreason.IsShutdown(err) {
			return genserver.InitResult[supervisorState]{}, err
		}
		return genserver.InitResult[supervisorState]{}, exitreason.Shutdown(err)
	}

	s.setStatus(self, &state, StateRunning)
	go func() {
		<-beam.Done(self)
		statuses.Delete(self.ID())
	}()

	beam.DebugPrintf("Supervisor[%v] done initializing: %+v", self, state.children.ids())
	return genserver.InitResult[supervisorState]{State: state}, nil
}

func (s SupervisorS) HandleCall(self beam.PID, request any, from genserver.From, state supervisorState) (genserver.CallResult[supervisorState], error) {
	var reply any
	switch req := request.(type) {
	case startChildReq:
		reply = s.handleStartChild(self, req.spec, &state)
	case terminateChildReq:
		reply = s.handleTerminateChild(self, req.id, &state)
	case restartChildReq:
		reply = s.handleRestartChild(self, req.id, &state)
	case deleteChildReq:
		reply = s.handleDeleteChild(req.id, &state)
	case whichChildrenReq:
		infos := make([]ChildInfo, 0, len(state.children.list()))
		for _, c := range state.children.list() {
			infos = append(infos, c.info())
		}
		reply = infos
	case countChildrenReq:
		reply = state.children.count()
	default:
		return genserver.CallResult[supervisorState]{State: state}, exitreason.Exception(fmt.Errorf("unknown supervisor call: %+v", request))
	}
	return genserver.CallResult[supervisorState]{Msg: reply, State: state}, nil
}

func (s SupervisorS) handleStartChild(self beam.PID, spec ChildSpec, state *supervisorState) childReply {
	if existing, ok := state.children.get(spec.ID); ok {
		if existing.running() {
			return childReply{err: AlreadyStartedError{PID: existing.pid}}
		}
		return childReply{err: ErrAlreadyPresent}
	}
	child, err := s.startChild(self, spec)
	if err != nil {
		return childReply{err: err}
	}
	state.children.add(child)
	return childReply{pid: child.pid}
}

func (s SupervisorS) handleTerminateChild(self beam.PID, id string, state *supervisorState) childReply {
	child, ok := state.children.get(id)
	if !ok {
		return childReply{err: ErrNotFound}
	}
	if c, keep := s.terminateChild(self, child); keep {
		state.children.update(c)
	} else {
		state.children.delete(id)
	}
	return childReply{}
}

func (s SupervisorS) handleRestartChild(self beam.PID, id string, state *supervisorState) childReply {
	child, ok := state.children.get(id)
	if !ok {
		return childReply{err: ErrNotFound}
	}
	if child.running() {
		return childReply{err: ErrRunning}
	}
	child, err := s.startChild(self, child)
	if err != nil {
		return childReply{err: err}
	}
	state.children.update(child)
	return childReply{pid: child.pid}
}

func (s SupervisorS) handleDeleteChild(id string, state *supervisorState) childReply {
	child, ok := state.children.get(id)
	if !ok {
		return childReply{err: ErrNotFound}
	}
	if child.running() {
		return childReply{err: ErrRunning}
	}
	state.children.delete(id)
	return childReply{}
}

func (s SupervisorS) HandleInfo(self beam.PID, request any, state supervisorState) (genserver.InfoResult[supervisorState], error) {
	switch msg := request.(type) {
	case beam.ExitMsg:
		beam.DebugPrintf("Supervisor[%v] got exit msg: %+v", self, msg)
		newState, err := s.handleChildExit(self, msg, state)
		return genserver.InfoResult[supervisorState]{State: newState}, err
	default:
		beam.Logger.Warn("supervisor got unexpected message", "supervisor", self, "msg", msg)
	}

	return genserver.InfoResult[supervisorState]{State: state}, nil
}

// handleChildExit applies the child's restart type. Exits from processes that
// are not current children are stale and ignored.
func (s SupervisorS) handleChildExit(self beam.PID, msg beam.ExitMsg, state supervisorState) (supervisorState, error) {
	child, ok := state.children.findByPID(msg.Proc)
	if !ok {
		beam.DebugPrintf("Supervisor[%v]: no child with pid %v", self, msg.Proc)
		return state, nil
	}

	switch {
	case child.Restart == Temporary:
		// not restarted and not counted toward intensity
		state.children.delete(child.ID)
		return state, nil
	case child.Restart == Transient && !exitreason.IsAbnormal(msg.Reason):
		beam.DebugPrintf("Supervisor[%v] transient child %s exited cleanly: %v", self, child.ID, msg.Reason)
		child.pid = beam.UndefinedPID
		child.terminated = true
		state.children.update(child)
		return state, nil
	default:
		child.pid = beam.UndefinedPID
		state.children.update(child)
		return s.restartChild(self, child, msg.Reason, state)
	}
}

// restartChild restarts child, and the children its strategy includes, until
// every start succeeds or intensity is exceeded. Each attempt counts.
func (s SupervisorS) restartChild(self beam.PID, child ChildSpec, reason error, state supervisorState) (supervisorState, error) {
	s.setStatus(self, &state, StateRestarting)

	// the global provider may be replaced after startup
	tracer := otel.GetTracerProvider().Tracer(tracerName)
	_, span := tracer.Start(context.Background(), "supervisor.restart",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("supervisor.pid", self.String()),
			attribute.String("supervisor.strategy", string(state.flags.Strategy)),
			attribute.String("supervisor.child_id", child.ID),
			attribute.String("supervisor.exit_reason", fmt.Sprint(reason)),
		))
	defer span.End()

	for attempt := 1; ; attempt++ {
		if state.history.add(state.flags.Intensity, state.flags.Period) {
			err := exitreason.Shutdown(ErrMaxIntensity)
			s.setStatus(self, &state, StateFailed)
			span.SetStatus(codes.Error, ErrMaxIntensity.Error())
			beam.Logger.Error("supervisor restart intensity exceeded, shutting down",
				"supervisor", self, "child", child.ID, "intensity", state.flags.Intensity, "period", state.flags.Period)
			s.report(self, err, fmt.Sprintf("child %s: more than %d restarts in %ds", child.ID, state.flags.Intensity, state.flags.Period))
			return state, err
		}
		span.SetAttributes(attribute.Int("supervisor.attempts", attempt))
		span.AddEvent("restart", trace.WithAttributes(attribute.String("supervisor.child_id", child.ID)))
		s.report(self, reason, fmt.Sprintf("restarting child %s", child.ID))

		failed, err := s.applyStrategy(self, child, &state)
		if err == nil {
			s.setStatus(self, &state, StateRunning)
			return state, nil
		}
		beam.Logger.Warn("supervisor failed to restart child", "supervisor", self, "child", failed.ID, "err", err)
		child = failed
		reason = err
	}
}

// applyStrategy returns the child that failed to start, if any.
func (s SupervisorS) applyStrategy(self beam.PID, child ChildSpec, state *supervisorState) (ChildSpec, error) {
	var ids []string
	switch state.flags.Strategy {
	case OneForOne:
		ids = []string{child.ID}
	case OneForAll:
		ids = state.children.ids()
	case RestForOne:
		ids = state.children.from(child.ID)
	default:
		return child, fmt.Errorf("unknown supervisor strategy %q", state.flags.Strategy)
	}

	s.stopChildren(self, state.children, reverse(ids))
	return s.startChildren(self, state.children, ids)
}

func (s SupervisorS) HandleCast(self beam.PID, arg any, state supervisorState) (genserver.CastResult[supervisorState], error) {
	beam.Logger.Warn("supervisor got unexpected cast", "supervisor", self, "msg", arg)
	return genserver.CastResult[supervisorState]{State: state}, nil
}

func (s SupervisorS) HandleContinue(self beam.PID, continuation any, state supervisorState) (supervisorState, any, error) {
	return state, nil, nil
}

// Terminate stops every child in reverse start order.
func (s SupervisorS) Terminate(self beam.PID, reason error, state supervisorState) {
	beam.DebugPrintf("Supervisor[%v] stopping: %v", self, reason)
	if !errors.Is(reason, ErrMaxIntensity) {
		s.setStatus(self, &state, StateStopped)
	}
	s.stopChildren(self, state.children, reverse(state.children.ids()))
}

func (s SupervisorS) setStatus(self beam.PID, state *supervisorState, status State) {
	state.status = status
	statuses.Store(self.ID(), status)
}

func (s SupervisorS) report(self beam.PID, reason error, detail string) {
	var name beam.Name
	if info, ok := beam.Info(self); ok {
		name = info.Name
	}
	beam.Publish(beam.Report{
		Kind:   beam.SupervisorReportKind,
		PID:    self,
		Name:   name,
		Reason: exitreason.From(reason),
		Detail: detail,
	})
}

// startChild runs the child's start function. A panic in it is an exception.
func (s SupervisorS) startChild(self beam.PID, child ChildSpec) (cs ChildSpec, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = exitreason.Wrap(e)
			} else {
				err = exitreason.Exception(fmt.Errorf("panic starting child %s: %v", child.ID, r))
			}
			cs = child
		}
	}()
	childPID, err := child.Start(self)

	switch {
	case err == nil:
		child.pid = childPID
		child.ignored = false
		child.terminated = false
		return child, nil
	case errors.Is(err, exitreason.Ignore):
		beam.DebugPrintf("Supervisor[%v] child %s returned ignore", self, child.ID)
		child.pid = beam.UndefinedPID
		child.ignored = true
		return child, nil
	default:
		return child, exitreason.Wrap(err)
	}
}

// startChildren starts ids in order. If one fails, the ones started before it
// are stopped again and the failed child is returned with the error.
func (s SupervisorS) startChildren(self beam.PID, children *childSpecs, ids []string) (ChildSpec, error) {
	for i, id := range ids {
		spec, ok := children.get(id)
		if !ok {
			continue
		}
		child, err := s.startChild(self, spec)
		if err != nil {
			beam.DebugPrintf("Supervisor[%v]: child %s returned an error: %v", self, id, err)
			s.stopChildren(self, children, reverse(ids[:i]))
			return spec, err
		}
		children.update(child)
	}
	return ChildSpec{}, nil
}

// stopChildren stops ids in the given order. Temporary children are removed.
func (s SupervisorS) stopChildren(self beam.PID, children *childSpecs, ids []string) {
	for _, id := range ids {
		child, ok := children.get(id)
		if !ok {
			continue
		}
		if c, keep := s.terminateChild(self, child); keep {
			children.update(c)
		} else {
			children.delete(id)
		}
	}
}

// terminateChild stops c through a childKiller and waits for it. The bool is
// false if the spec should be dropped.
func (s SupervisorS) terminateChild(self beam.PID, c ChildSpec) (ChildSpec, bool) {
	if c.running() && beam.IsAlive(c.pid) {
		done := make(chan childKillerDoneMsg, 1)
		beam.Spawn(&childKiller{done: done, parentPID: self, child: c})
		var result childKillerDoneMsg
		beam.Block(self, func() { result = <-done })
		if result.err != nil {
			beam.Logger.Warn("supervisor child exited with error during shutdown", "supervisor", self, "child", c.ID, "err", result.err)
		}
	} else if c.running() {
		beam.Unlink(self, c.pid)
	}
	c.pid = beam.UndefinedPID
	c.terminated = true
	return c, c.Restart != Temporary
}

func reverse(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
