package supervisor_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/beamtest"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/beam/supervisor"
)

const testTimeout = 5 * time.Second

type childState struct {
	id string
}

// childServer reports its Init and Terminate to trPID.
type childServer struct {
	trPID    beam.PID
	id       string
	trapExit bool
}

func (cs childServer) Init(self beam.PID, args any) (genserver.InitResult[childState], error) {
	if cs.trapExit {
		beam.ProcessFlag(self, beam.TrapExit, true)
	}
	beam.Send(cs.trPID, childInitMsg{id: cs.id, pid: self})
	return genserver.InitResult[childState]{State: childState{id: cs.id}}, nil
}

func (cs childServer) Terminate(self beam.PID, reason error, state childState) {
	beam.Send(cs.trPID, childTerminateMsg{id: state.id, pid: self, reason: reason})
}

func (cs childServer) HandleCall(self beam.PID, request any, from genserver.From, state childState) (genserver.CallResult[childState], error) {
	return genserver.CallResult[childState]{Msg: request, State: state}, nil
}

func (cs childServer) HandleCast(self beam.PID, request any, state childState) (genserver.CastResult[childState], error) {
	return genserver.CastResult[childState]{State: state}, nil
}

func (cs childServer) HandleInfo(self beam.PID, msg any, state childState) (genserver.InfoResult[childState], error) {
	return genserver.InfoResult[childState]{State: state}, nil
}

func (cs childServer) HandleContinue(self beam.PID, continuation any, state childState) (childState, any, error) {
	return state, nil, nil
}

type childInitMsg struct {
	id  string
	pid beam.PID
}

type childTerminateMsg struct {
	id     string
	pid    beam.PID
	reason error
}

// recorder collects the order children start and stop in.
type recorder struct {
	mx    sync.Mutex
	inits []string
	terms []string
}

func (r *recorder) initCount() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.inits)
}

func (r *recorder) termCount() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.terms)
}

func (r *recorder) reset() {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.inits = nil
	r.terms = nil
}

func (r *recorder) started() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]string(nil), r.inits...)
}

func (r *recorder) stopped() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]string(nil), r.terms...)
}

func newRecorder(t *testing.T) (beam.PID, *beamtest.TestReceiver, *recorder) {
	t.Helper()
	trPID, tr := beamtest.NewReceiver(t, beamtest.WaitTimeout(testTimeout))
	rec := &recorder{}
	tr.Expect(childInitMsg{}, gomock.Any()).AnyTimes().Do(func(arg beamtest.ExpectArg) {
		rec.mx.Lock()
		defer rec.mx.Unlock()
		rec.inits = append(rec.inits, arg.Msg.(childInitMsg).id)
	})
	tr.Expect(childTerminateMsg{}, gomock.Any()).AnyTimes().Do(func(arg beamtest.ExpectArg) {
		rec.mx.Lock()
		defer rec.mx.Unlock()
		rec.terms = append(rec.terms, arg.Msg.(childTerminateMsg).id)
	})
	return trPID, tr, rec
}

func childName(t *testing.T, id string) beam.Name {
	return beam.Name(fmt.Sprintf("%s/%s", t.Name(), id))
}

func childSpec(t *testing.T, id string, trPID beam.PID, opts ...supervisor.ChildSpecOpt) supervisor.ChildSpec {
	cs := childServer{trPID: trPID, id: id}
	return supervisor.NewChildSpec(id,
		func(sup beam.PID) (beam.PID, error) {
			return genserver.StartLink[childState](sup, cs, nil, genserver.SetName(childName(t, id)))
		},
		opts...,
	)
}

func startSupervisor(t *testing.T, flags supervisor.SupFlagsS, children []supervisor.ChildSpec, opts ...supervisor.LinkOpts) beam.PID {
	t.Helper()
	supPID, err := supervisor.StartDefaultLink(beam.RootPID(), children, flags, opts...)
	assert.NilError(t, err)
	t.Cleanup(func() {
		beam.Exit(beam.RootPID(), supPID, exitreason.Kill)
		<-beam.Done(supPID)
	})
	return supPID
}

func whereIs(t *testing.T, id string) beam.PID {
	t.Helper()
	pid, ok := beam.WhereIs(childName(t, id))
	assert.Assert(t, ok, "child %s is not registered", id)
	return pid
}

// waitRestarted waits until id is registered to a pid other than old.
func waitRestarted(t *testing.T, id string, old beam.PID) beam.PID {
	t.Helper()
	var pid beam.PID
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		p, ok := beam.WhereIs(childName(t, id))
		if !ok || p.Equals(old) {
			return poll.Continue("%s not restarted yet", id)
		}
		pid = p
		return poll.Success()
	}, poll.WithTimeout(testTimeout))
	return pid
}

func kill(pid beam.PID) {
	beam.Exit(beam.RootPID(), pid, exitreason.Kill)
	<-beam.Done(pid)
}

func startChild(t *testing.T, sup beam.PID, cs childServer) (beam.PID, error) {
	return genserver.StartLink[childState](sup, cs, nil, genserver.SetName(childName(t, cs.id)))
}

type fakeClock struct {
	mx  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.now = c.now.Add(d)
}
