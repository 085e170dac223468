/*
Package testcase structures a beamtest test in three steps: [Case.Arrange]
sets expectations and starts servers, [Case.Act] runs the code under test and
[Case.Assert] waits for every receiver before running final assertions.

	tc := testcase.New(t, beamtest.WaitTimeout(time.Second))

	var pid beam.PID
	tc.Arrange(func(self beam.PID) {
		tc.Receiver().Expect(beam.ExitMsg{}, gomock.Any()).Times(1)
		pid = tc.StartServer(func(self beam.PID) (beam.PID, error) {
			return testserver.StartLink(self, testserver.NewConfig())
		})
	})

	tc.Act(func() {
		beam.Exit(tc.TestPID(), pid, exitreason.Kill)
	})

	tc.Assert(func() {
		assert.Assert(t, !beam.IsAlive(pid))
	})
*/
package testcase

import (
	"sync"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/beamtest"
	"github.com/uberbrodt/beamgo/beam/exitreason"
)

type Waitable interface {
	Wait()
}

type Case struct {
	t         *testing.T
	tr        *beamtest.TestReceiver
	self      beam.PID
	waitables []Waitable
}

func New(t *testing.T, opts ...beamtest.ReceiverOpt) *Case {
	self, tr := beamtest.NewReceiver(t, opts...)

	return &Case{
		t:         t,
		tr:        tr,
		self:      self,
		waitables: []Waitable{tr},
	}
}

func (c *Case) TestPID() beam.PID {
	return c.self
}

func (c *Case) Receiver() *beamtest.TestReceiver {
	return c.tr
}

func (c *Case) Arrange(f func(self beam.PID)) {
	f(c.self)
}

func (c *Case) Act(f func()) {
	f()
}

// Assert waits on every receiver, then runs f.
func (c *Case) Assert(f func()) {
	var wg sync.WaitGroup
	for _, waitable := range c.waitables {
		wg.Add(1)
		go func() {
			defer wg.Done()
			waitable.Wait()
		}()
	}
	wg.Wait()
	f()
}

// WaitOn adds something that must finish waiting before [Case.Assert] runs,
// usually another [beamtest.TestReceiver].
func (c *Case) WaitOn(w Waitable) {
	c.waitables = append(c.waitables, w)
}

// StartServer starts a server linked to the test pid and fails the test if
// it does not start.
func (c *Case) StartServer(startLink func(self beam.PID) (beam.PID, error)) beam.PID {
	c.t.Helper()
	pid, err := startLink(c.TestPID())

	assert.NilError(c.t, err)

	return pid
}

// Spawn starts a process that is sent a TestExit when the test ends.
func (c *Case) Spawn(r beam.Runnable) beam.PID {
	pid := beam.Spawn(r)

	c.t.Cleanup(func() {
		beam.Exit(c.TestPID(), pid, exitreason.TestExit)
	})
	return pid
}
