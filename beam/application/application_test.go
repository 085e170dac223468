package application_test

import (
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/application"
	"github.com/uberbrodt/beamgo/beam/beamtest/testserver"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/beam/supervisor"
)

type testApp struct {
	startRet func(self beam.PID, args any) (beam.PID, error)
	stopRet  func() error
}

func (ta *testApp) Start(self beam.PID, args any) (beam.PID, error) {
	return ta.startRet(self, args)
}

func (ta *testApp) Stop() error {
	return ta.stopRet()
}

type boom struct{}

func crashingServer() *testserver.Config {
	return testserver.NewConfig().
		AddCastHandler(boom{}, func(self beam.PID, arg any, s testserver.TestServer) (testserver.TestServer, any, error) {
			return s, nil, errors.New("uh-oh")
		})
}

func waitCancelled(t *testing.T, c <-chan struct{}) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(5 * time.Second):
		t.Fatal("cancel was not called")
	}
}

func TestStart_NoErrors(t *testing.T) {
	ta := &testApp{
		startRet: func(self beam.PID, args any) (beam.PID, error) {
			assert.Check(t, cmp.Equal(args, "hello"))
			return supervisor.StartDefaultLink(self, []supervisor.ChildSpec{
				testserver.ChildSpec("child1", testserver.NewConfig()),
			}, supervisor.NewSupFlags())
		},
		stopRet: func() error { return nil },
	}

	app, err := application.Start(ta, "hello", func() {})

	assert.NilError(t, err)
	t.Cleanup(func() { app.Stop() })
	assert.Assert(t, beam.IsAlive(app.PID()))
	assert.Assert(t, !app.Stopped())
	sup, err := app.RootSupervisor()
	assert.NilError(t, err)
	status, err := supervisor.Status(sup)
	assert.NilError(t, err)
	assert.Equal(t, status, supervisor.StateRunning)
}

func TestStart_ChildStartError(t *testing.T) {
	ta := &testApp{
		startRet: func(self beam.PID, args any) (beam.PID, error) {
			return supervisor.StartDefaultLink(self, []supervisor.ChildSpec{
				testserver.ChildSpec("child1", testserver.NewConfig()),
				testserver.ChildSpec("child2", testserver.NewConfig().SetInit(testserver.InitError)),
			}, supervisor.NewSupFlags())
		},
		stopRet: func() error { return nil },
	}

	app, err := application.Start(ta, nil, func() {})

	assert.ErrorContains(t, err, "application failed to start")
	assert.Assert(t, app == nil)
}

func TestApp_SupervisorExitCallsCancel(t *testing.T) {
	cancelled := make(chan struct{})
	var sup beam.PID
	ta := &testApp{
		startRet: func(self beam.PID, args any) (beam.PID, error) {
			pid, err := supervisor.StartDefaultLink(self, []supervisor.ChildSpec{
				testserver.ChildSpec("child1", crashingServer().SetName("app-test-child1")),
			}, supervisor.NewSupFlags(supervisor.SetIntensity(0)))
			sup = pid
			return pid, err
		},
		stopRet: func() error { return nil },
	}

	app, err := application.Start(ta, nil, func() { close(cancelled) })
	assert.NilError(t, err)

	assert.NilError(t, genserver.Cast(beam.Name("app-test-child1"), boom{}))

	waitCancelled(t, cancelled)
	<-beam.Done(app.PID())
	assert.Assert(t, app.Stopped())
	status, err := supervisor.Status(sup)
	assert.NilError(t, err)
	assert.Equal(t, status, supervisor.StateFailed)
}

func TestApp_StopShutsDownTree(t *testing.T) {
	cancelled := make(chan struct{})
	stopCalled := false
	var sup beam.PID
	ta := &testApp{
		startRet: func(self beam.PID, args any) (beam.PID, error) {
			pid, err := supervisor.StartDefaultLink(self, []supervisor.ChildSpec{
				testserver.ChildSpec("child1", testserver.NewConfig()),
			}, supervisor.NewSupFlags())
			sup = pid
			return pid, err
		},
		stopRet: func() error {
			stopCalled = true
			return errors.New("stop error is returned")
		},
	}
	app, err := application.Start(ta, nil, func() { close(cancelled) })
	assert.NilError(t, err)

	err = app.Stop()

	assert.ErrorContains(t, err, "stop error is returned")
	assert.Assert(t, stopCalled)
	assert.Assert(t, app.Stopped())
	assert.Assert(t, !beam.IsAlive(sup))
	waitCancelled(t, cancelled)
}
