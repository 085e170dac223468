package beam

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/timeout"
	"github.com/uberbrodt/beamgo/chronos"
)

func TestSpawn_RunsRunnable(t *testing.T) {
	self, c := newTestReceiver(t)

	pid := Spawn(RunnableFunc(func(me PID, inbox *Inbox) error {
		msg, err := inbox.Receive(timeout.Infinity)
		if err != nil {
			return err
		}
		Send(self, msg)
		return nil
	}))
	Send(pid, "foo")

	assert.Equal(t, expectMsg[string](t, c), "foo")
	assert.Assert(t, exitreason.IsNormal(waitExit(t, pid)))
	assert.Assert(t, !IsAlive(pid))
}

func TestSpawn_NilReturnIsNormal(t *testing.T) {
	pid := Spawn(RunnableFunc(func(PID, *Inbox) error { return nil }))

	assert.Equal(t, waitExit(t, pid), exitreason.Normal)
}

func TestSpawn_PanicBecomesException(t *testing.T) {
	pid := Spawn(RunnableFunc(func(PID, *Inbox) error { panic("my error") }))

	reason := waitExit(t, pid)
	assert.Assert(t, exitreason.IsException(reason))
	assert.ErrorContains(t, reason, "my error")
}

func TestMonitor_SendsDown(t *testing.T) {
	self, c := newTestReceiver(t)
	target := Spawn(stopOnMsg())

	ref := Monitor(self, target)
	Send(target, "stop")

	down := expectMsg[DownMsg](t, c)
	assert.Equal(t, down.Ref, ref)
	assert.Assert(t, down.Proc.Equals(target))
	assert.Assert(t, exitreason.IsNormal(down.Reason))
}

func TestMonitor_DeadProcessSendsNoProc(t *testing.T) {
	self, c := newTestReceiver(t)
	target := Spawn(stopOnMsg())
	Send(target, "stop")
	waitExit(t, target)

	ref := Monitor(self, target)

	down := expectMsg[DownMsg](t, c)
	assert.Equal(t, down.Ref, ref)
	assert.ErrorIs(t, down.Reason, exitreason.NoProc)
}

func TestSpawnMonitor_SendsDownWithException(t *testing.T) {
	self, c := newTestReceiver(t)

	pid, ref := SpawnMonitor(self, RunnableFunc(func(PID, *Inbox) error {
		return errors.New("boom")
	}))

	down := expectMsg[DownMsg](t, c)
	assert.Equal(t, down.Ref, ref)
	assert.Assert(t, down.Proc.Equals(pid))
	assert.Assert(t, exitreason.IsException(down.Reason))
}

func TestDemonitor_PreventsDownSignal(t *testing.T) {
	self, c := newTestReceiver(t)
	target := Spawn(stopOnMsg())

	ref := Monitor(self, target)
	Demonitor(self, ref)
	Send(target, "stop")
	waitExit(t, target)

	expectNoMsg(t, c, chronos.Dur("200ms"))
	assert.Assert(t, IsAlive(self))
}

func TestLink_SendsExits(t *testing.T) {
	srv := Spawn(idle())

	task := SpawnLink(srv, RunnableFunc(func(PID, *Inbox) error {
		return exitreason.Exception(errors.New("foo"))
	}))

	waitExit(t, task)
	reason := waitExit(t, srv)
	assert.Assert(t, exitreason.IsException(reason))
	assert.Assert(t, !IsAlive(srv))
}

func TestLink_SendsExitsWhenPanic(t *testing.T) {
	srv := Spawn(idle())

	SpawnLink(srv, RunnableFunc(func(PID, *Inbox) error {
		panic("my error")
	}))

	reason := waitExit(t, srv)
	assert.Assert(t, exitreason.IsException(reason))
}

func TestLink_NormalExitIsIgnored(t *testing.T) {
	srv := Spawn(idle())
	t.Cleanup(func() { Exit(RootPID(), srv, exitreason.Kill) })

	task := SpawnLink(srv, RunnableFunc(func(PID, *Inbox) error { return nil }))
	waitExit(t, task)

	time.Sleep(chronos.Dur("100ms"))
	assert.Assert(t, IsAlive(srv))
}

func TestLink_ShutdownExitPropagatesWithoutTrap(t *testing.T) {
	srv := Spawn(idle())

	SpawnLink(srv, RunnableFunc(func(PID, *Inbox) error { return exitreason.Shutdown("bye") }))

	assert.Assert(t, exitreason.IsShutdown(waitExit(t, srv)))
}

func TestLink_TrapExitDeliversExitMsg(t *testing.T) {
	self, c := newTestReceiver(t)
	ProcessFlag(self, TrapExit, true)

	task := SpawnLink(self, RunnableFunc(func(PID, *Inbox) error {
		return exitreason.Shutdown("bye")
	}))

	exit := expectMsg[ExitMsg](t, c)
	assert.Assert(t, exit.Proc.Equals(task))
	assert.Assert(t, exit.Link)
	assert.Assert(t, exitreason.IsShutdown(exit.Reason))
	assert.Assert(t, IsAlive(self))
}

func TestLink_DeadProcessSendsNoProc(t *testing.T) {
	self, c := newTestReceiver(t)
	ProcessFlag(self, TrapExit, true)

	dead := Spawn(RunnableFunc(func(PID, *Inbox) error { return nil }))
	waitExit(t, dead)

	Link(self, dead)

	exit := expectMsg[ExitMsg](t, c)
	assert.Assert(t, exit.Proc.Equals(dead))
	assert.ErrorIs(t, exit.Reason, exitreason.NoProc)
}

func TestUnlink_RemovesLink(t *testing.T) {
	srv := Spawn(idle())
	t.Cleanup(func() { Exit(RootPID(), srv, exitreason.Kill) })

	task := SpawnLink(srv, stopOnMsg())
	Unlink(srv, task)
	Send(task, errors.New("boom"))

	assert.Assert(t, exitreason.IsException(waitExit(t, task)))
	time.Sleep(chronos.Dur("100ms"))
	assert.Assert(t, IsAlive(srv))
}

func TestExit_KillCannotBeTrapped(t *testing.T) {
	self, _ := newTestReceiver(t)
	ProcessFlag(self, TrapExit, true)

	Exit(RootPID(), self, exitreason.Kill)

	assert.Equal(t, waitExit(t, self), exitreason.Kill)
}

func TestExit_NormalFromOtherProcessIsIgnored(t *testing.T) {
	pid := Spawn(idle())
	t.Cleanup(func() { Exit(RootPID(), pid, exitreason.Kill) })

	Exit(RootPID(), pid, exitreason.Normal)

	time.Sleep(chronos.Dur("100ms"))
	assert.Assert(t, IsAlive(pid))
}

func TestExit_TrappedBecomesMessage(t *testing.T) {
	self, c := newTestReceiver(t)
	ProcessFlag(self, TrapExit, true)

	Exit(RootPID(), self, exitreason.Shutdown("please"))

	exit := expectMsg[ExitMsg](t, c)
	assert.Assert(t, !exit.Link)
	assert.Assert(t, exit.Proc.Equals(RootPID()))
	assert.Assert(t, IsAlive(self))
}

func TestExit_ReasonReachesReceive(t *testing.T) {
	self, c := newTestReceiver(t)

	pid := Spawn(RunnableFunc(func(me PID, inbox *Inbox) error {
		_, err := inbox.Receive(timeout.Infinity)
		Send(self, err)
		return err
	}))
	Exit(RootPID(), pid, exitreason.Shutdown("stop"))

	err := expectMsg[error](t, c)
	assert.Assert(t, exitreason.IsShutdown(err))
	assert.Assert(t, exitreason.IsShutdown(waitExit(t, pid)))
}

func TestExit_UndefinedPID(t *testing.T) {
	Exit(RootPID(), UndefinedPID, exitreason.Kill)
	Send(UndefinedPID, "nobody")
	Link(RootPID(), UndefinedPID)

	assert.Assert(t, IsAlive(RootPID()))
}

func TestDone_UndefinedPIDIsClosed(t *testing.T) {
	select {
	case <-Done(UndefinedPID):
	default:
		t.Fatal("Done(UndefinedPID) should be closed")
	}
	assert.Equal(t, ExitReason(UndefinedPID), exitreason.NoProc)
}

func TestMakeRef_Unique(t *testing.T) {
	refs := make(map[Ref]bool)
	for range 1000 {
		ref := MakeRef()
		assert.Assert(t, !refs[ref])
		refs[ref] = true
	}
}

func TestPID_String(t *testing.T) {
	assert.Equal(t, UndefinedPID.String(), "PID<undefined>")

	pid := Spawn(idle())
	t.Cleanup(func() { Exit(RootPID(), pid, exitreason.Kill) })

	assert.Assert(t, pid.ID() > 0)
	assert.Assert(t, Register("pid-string-test", pid) == nil)
	assert.Equal(t, pid.String(), fmt.Sprintf("PID<%d|pid-string-test>", pid.ID()))
}
