package supervisor_test

import (
	"errors"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/supervisor"
)

var pidsEqual = gocmp.Comparer(func(a, b beam.PID) bool { return a.Equals(b) })

func TestStartChild_AddsAndStarts(t *testing.T) {
	trPID, tr, rec := newRecorder(t)
	supPID := startSupervisor(t, supervisor.NewSupFlags(), nil)

	pid, err := supervisor.StartChild(beam.RootPID(), supPID, childSpec(t, "dyn", trPID))

	assert.NilError(t, err)
	assert.Assert(t, pid.Equals(whereIs(t, "dyn")))
	tr.WaitOnFunc(func() bool { return rec.initCount() >= 1 })

	children, err := supervisor.WhichChildren(beam.RootPID(), supPID)
	assert.NilError(t, err)
	assert.DeepEqual(t, children, []supervisor.ChildInfo{{
		ID:      "dyn",
		PID:     pid,
		Type:    supervisor.WorkerChild,
		Status:  supervisor.ChildRunning,
		Restart: supervisor.Permanent,
	}}, pidsEqual)
}

func TestStartChild_AlreadyStarted(t *testing.T) {
	trPID, _, _ := newRecorder(t)
	supPID := startSupervisor(t, supervisor.NewSupFlags(), []supervisor.ChildSpec{childSpec(t, "a", trPID)})

	_, err := supervisor.StartChild(beam.RootPID(), supPID, childSpec(t, "a", trPID))

	assert.ErrorIs(t, err, supervisor.ErrAlreadyStarted)
	var started supervisor.AlreadyStartedError
	assert.Assert(t, errors.As(err, &started))
	assert.Assert(t, started.PID.Equals(whereIs(t, "a")))
}

func TestStartChild_AlreadyPresent(t *testing.T) {
	trPID, _, _ := newRecorder(t)
	supPID := startSupervisor(t, supervisor.NewSupFlags(), []supervisor.ChildSpec{childSpec(t, "a", trPID)})
	assert.NilError(t, supervisor.TerminateChild(beam.RootPID(), supPID, "a"))

	_, err := supervisor.StartChild(beam.RootPID(), supPID, childSpec(t, "a", trPID))

	assert.ErrorIs(t, err, supervisor.ErrAlreadyPresent)
}

func TestStartChild_StartErrorIsReturned(t *testing.T) {
	supPID := startSupervisor(t, supervisor.NewSupFlags(), nil)
	failure := errors.New("nope")

	_, err := supervisor.StartChild(beam.RootPID(), supPID, supervisor.NewChildSpec("bad", func(sup beam.PID) (beam.PID, error) {
		return beam.UndefinedPID, failure
	}))

	assert.ErrorIs(t, err, failure)
	count, err := supervisor.CountChildren(beam.RootPID(), supPID)
	assert.NilError(t, err)
	assert.Equal(t, count.Specs, 0)
}

func TestTerminateChild_KeepsSpec(t *testing.T) {
	trPID, _, _ := newRecorder(t)
	supPID := startSupervisor(t, supervisor.NewSupFlags(), []supervisor.ChildSpec{childSpec(t, "a", trPID)})
	pid := whereIs(t, "a")

	err := supervisor.TerminateChild(beam.RootPID(), supPID, "a")

	assert.NilError(t, err)
	<-beam.Done(pid)
	assert.ErrorIs(t, beam.ExitReason(pid), exitreason.SupervisorShutdown)
	children, err := supervisor.WhichChildren(beam.RootPID(), supPID)
	assert.NilError(t, err)
	assert.Equal(t, len(children), 1)
	assert.Equal(t, children[0].Status, supervisor.ChildTerminated)
	// a terminated child is not restarted
	assert.Assert(t, beam.IsAlive(supPID))
	status, err := supervisor.Status(supPID)
	assert.NilError(t, err)
	assert.Equal(t, status, supervisor.StateRunning)
}

func TestTerminateChild_TemporaryIsRemoved(t *testing.T) {
	trPID, _, _ := newRecorder(t)
	supPID := startSupervisor(t, supervisor.NewSupFlags(), []supervisor.ChildSpec{
		childSpec(t, "a", trPID, supervisor.SetRestart(supervisor.Temporary)),
	})

	assert.NilError(t, supervisor.TerminateChild(beam.RootPID(), supPID, "a"))

	count, err := supervisor.CountChildren(beam.RootPID(), supPID)
	assert.NilError(t, err)
	assert.Equal(t, count.Specs, 0)
}

func TestTerminateChild_NotFound(t *testing.T) {
	supPID := startSupervisor(t, supervisor.NewSupFlags(), nil)

	err := supervisor.TerminateChild(beam.RootPID(), supPID, "missing")

	assert.ErrorIs(t, err, supervisor.ErrNotFound)
}

func TestRestartChild(t *testing.T) {
	trPID, _, _ := newRecorder(t)
	supPID := startSupervisor(t, supervisor.NewSupFlags(), []supervisor.ChildSpec{childSpec(t, "a", trPID)})
	old := whereIs(t, "a")

	_, err := supervisor.RestartChild(beam.RootPID(), supPID, "a")
	assert.ErrorIs(t, err, supervisor.ErrRunning)

	assert.NilError(t, supervisor.TerminateChild(beam.RootPID(), supPID, "a"))
	pid, err := supervisor.RestartChild(beam.RootPID(), supPID, "a")

	assert.NilError(t, err)
	assert.Assert(t, !pid.Equals(old))
	assert.Assert(t, pid.Equals(whereIs(t, "a")))

	_, err = supervisor.RestartChild(beam.RootPID(), supPID, "missing")
	assert.ErrorIs(t, err, supervisor.ErrNotFound)
}

func TestDeleteChild(t *testing.T) {
	trPID, _, _ := newRecorder(t)
	supPID := startSupervisor(t, supervisor.NewSupFlags(), []supervisor.ChildSpec{
		childSpec(t, "a", trPID),
		childSpec(t, "b", trPID),
	})

	assert.ErrorIs(t, supervisor.DeleteChild(beam.RootPID(), supPID, "a"), supervisor.ErrRunning)
	assert.ErrorIs(t, supervisor.DeleteChild(beam.RootPID(), supPID, "missing"), supervisor.ErrNotFound)

	assert.NilError(t, supervisor.TerminateChild(beam.RootPID(), supPID, "a"))
	assert.NilError(t, supervisor.DeleteChild(beam.RootPID(), supPID, "a"))

	children, err := supervisor.WhichChildren(beam.RootPID(), supPID)
	assert.NilError(t, err)
	assert.Equal(t, len(children), 1)
	assert.Equal(t, children[0].ID, "b")
}

func TestCountChildren(t *testing.T) {
	trPID, _, _ := newRecorder(t)
	supPID := startSupervisor(t, supervisor.NewSupFlags(), []supervisor.ChildSpec{
		childSpec(t, "a", trPID),
		childSpec(t, "b", trPID),
		supervisor.NewChildSpec("sub", func(sup beam.PID) (beam.PID, error) {
			return supervisor.StartDefaultLink(sup, nil, supervisor.NewSupFlags())
		}, supervisor.SetChildType(supervisor.SupervisorChild)),
	})
	assert.NilError(t, supervisor.TerminateChild(beam.RootPID(), supPID, "b"))

	count, err := supervisor.CountChildren(beam.RootPID(), supPID)

	assert.NilError(t, err)
	assert.DeepEqual(t, count, supervisor.ChildCount{Specs: 3, Active: 2, Supervisors: 1, Workers: 2})
}

func TestDynamicAPI_DeadSupervisor(t *testing.T) {
	supPID := startSupervisor(t, supervisor.NewSupFlags(), nil)
	kill(supPID)

	_, err := supervisor.WhichChildren(beam.RootPID(), supPID)

	assert.ErrorIs(t, err, exitreason.NoProc)
}
