package beam

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/timeout"
	"github.com/uberbrodt/beamgo/chronos"
)

var testTimeout time.Duration = chronos.Dur("10s")

// testReceiver forwards everything it receives to a channel the test can read.
type testReceiver struct {
	c chan any
}

func (tr *testReceiver) Receive(self PID, inbox *Inbox) error {
	for msg := range inbox.Messages() {
		tr.c <- msg
	}
	return nil
}

func newTestReceiver(t *testing.T) (PID, <-chan any) {
	t.Helper()
	c := make(chan any, 1000)
	pid := Spawn(&testReceiver{c: c})
	t.Cleanup(func() {
		Exit(RootPID(), pid, exitreason.Kill)
	})
	return pid, c
}

func expectMsg[T any](t *testing.T, c <-chan any) T {
	t.Helper()
	select {
	case msg := <-c:
		v, ok := msg.(T)
		assert.Assert(t, ok, "expected a %T, got %#v", v, msg)
		return v
	case <-time.After(testTimeout):
		var zero T
		t.Fatalf("timed out waiting for %T", zero)
		return zero
	}
}

func expectNoMsg(t *testing.T, c <-chan any, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-c:
		t.Fatalf("expected no message, got %#v", msg)
	case <-time.After(wait):
	}
}

func waitExit(t *testing.T, pid PID) *exitreason.S {
	t.Helper()
	select {
	case <-Done(pid):
		return ExitReason(pid)
	case <-time.After(testTimeout):
		t.Fatalf("%v did not exit", pid)
		return nil
	}
}

// waits for one message, then exits with whatever error that message is
func stopOnMsg() Runnable {
	return RunnableFunc(func(self PID, inbox *Inbox) error {
		msg, err := inbox.Receive(timeout.Infinity)
		if err != nil {
			return err
		}
		if e, ok := msg.(error); ok {
			return e
		}
		return nil
	})
}

// receives forever; never exits on its own
func idle() Runnable {
	return RunnableFunc(func(self PID, inbox *Inbox) error {
		for range inbox.Messages() {
		}
		return nil
	})
}
