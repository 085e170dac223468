package gensrv_test

import (
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"gotest.tools/v3/assert"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/beamtest"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/beam/gensrv"
)

type testState struct {
	sum int
}

type (
	add    int
	sub    int
	getSum struct{}
	notify struct{}
)

var initFn = gensrv.RegisterInit(func(self beam.PID, start int) (testState, any, error) {
	return testState{sum: start}, nil, nil
})

func addFn(self beam.PID, a add, state testState) (testState, any, error) {
	state.sum += int(a)
	return state, nil, nil
}

func subFn(self beam.PID, s sub, state testState) (testState, any, error) {
	state.sum -= int(s)
	return state, nil, nil
}

var sumCall = gensrv.RegisterCall(getSum{}, func(self beam.PID, _ getSum, from genserver.From, state testState) (genserver.CallResult[testState], error) {
	return genserver.CallResult[testState]{Msg: state.sum, State: state}, nil
})

func getSumOf(t *testing.T, pid beam.PID) int {
	t.Helper()
	result, err := genserver.Call(beam.RootPID(), pid, getSum{}, 5*time.Second)
	assert.NilError(t, err)
	return result.(int)
}

func TestServer_MatchesCast(t *testing.T) {
	_, tr := beamtest.NewReceiver(t)

	pid := tr.StartSupervised(func(self beam.PID) (beam.PID, error) {
		return gensrv.StartLink[testState](self, nil,
			gensrv.RegisterCast(add(0), addFn),
			gensrv.RegisterCast(sub(0), subFn),
			sumCall,
		)
	})

	genserver.Cast(pid, add(12))
	genserver.Cast(pid, add(3))
	assert.Equal(t, getSumOf(t, pid), 15)

	genserver.Cast(pid, sub(4))
	assert.Equal(t, getSumOf(t, pid), 11)
}

func TestServer_InitArgAndContinue(t *testing.T) {
	testPID, tr := beamtest.NewReceiver(t)
	tr.Expect(0, beamtest.Eq(22)).Times(1)

	pid := tr.StartSupervised(func(self beam.PID) (beam.PID, error) {
		return gensrv.StartLink[testState](self, 10, initFn, sumCall,
			gensrv.RegisterCast(add(0), func(self beam.PID, a add, state testState) (testState, any, error) {
				state, _, err := addFn(self, a, state)
				return state, notify{}, err
			}),
			gensrv.RegisterContinue(notify{}, func(self beam.PID, _ notify, state testState) (testState, any, error) {
				beam.Send(testPID, state.sum)
				return state, nil, nil
			}),
		)
	})

	genserver.Cast(pid, add(12))
	assert.Equal(t, getSumOf(t, pid), 22)
	tr.Wait()
}

func TestServer_RegisterInfo(t *testing.T) {
	_, tr := beamtest.NewReceiver(t)

	pid := tr.StartSupervised(func(self beam.PID) (beam.PID, error) {
		return gensrv.StartLink[testState](self, 10, initFn, sumCall, gensrv.RegisterInfo(sub(0), subFn))
	})

	beam.Send(pid, sub(3))
	// no handler, dropped
	beam.Send(pid, "unexpected")

	assert.Equal(t, getSumOf(t, pid), 7)
}

func TestServer_UnknownCallIsAnException(t *testing.T) {
	pid, ref, err := gensrv.StartMonitor[testState](beam.RootPID(), 1, initFn)
	assert.NilError(t, err)
	t.Cleanup(func() { beam.Demonitor(beam.RootPID(), ref) })

	reply, err := genserver.Call(beam.RootPID(), pid, getSum{}, 5*time.Second)

	assert.Assert(t, reply == nil)
	assert.Assert(t, exitreason.IsException(err), "got %v", err)
	<-beam.Done(pid)
	assert.Assert(t, exitreason.IsException(beam.ExitReason(pid)))
}

func TestServer_InitArgIsCopied(t *testing.T) {
	arg := []int{1, 2, 3}
	pid, err := gensrv.Start[testState](beam.RootPID(), arg, sumCall,
		gensrv.RegisterInit(func(self beam.PID, nums []int) (testState, any, error) {
			nums[0] = 100
			return testState{sum: nums[0] + nums[1] + nums[2]}, nil, nil
		}),
	)
	assert.NilError(t, err)
	t.Cleanup(func() { _ = genserver.Stop(beam.RootPID(), pid) })

	assert.Equal(t, getSumOf(t, pid), 105)
	assert.DeepEqual(t, arg, []int{1, 2, 3})
}

func TestServer_BadInitArg(t *testing.T) {
	_, err := gensrv.Start[testState](beam.RootPID(), "ten", initFn)

	assert.ErrorContains(t, err, "init arg is string, want int")
}

func TestServer_NameAndTerminate(t *testing.T) {
	testPID, tr := beamtest.NewReceiver(t)
	tr.Expect(exitreason.Normal, gomock.Any()).Times(1)

	pid, err := gensrv.Start[testState](beam.RootPID(), 0, initFn,
		gensrv.SetName[testState]("gensrv-named-test"),
		gensrv.SetStartTimeout[testState](time.Second),
		gensrv.RegisterTerminate(func(self beam.PID, reason error, state testState) {
			beam.Send(testPID, reason)
		}),
	)
	assert.NilError(t, err)

	found, ok := beam.WhereIs("gensrv-named-test")
	assert.Assert(t, ok)
	assert.Assert(t, found.Equals(pid))

	assert.NilError(t, genserver.Stop(beam.RootPID(), pid))
	tr.Wait()
}
