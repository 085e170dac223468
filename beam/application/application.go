/*
Package application runs the root of a supervision tree and cancels a
[context.Context] when that tree gives up.

	type MyApp struct{}

	func (a *MyApp) Start(self beam.PID, args any) (beam.PID, error) {
		return supervisor.StartDefaultLink(self, children, supervisor.NewSupFlags())
	}

	func (a *MyApp) Stop() error { return nil }

	func main() {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		app, err := application.Start(&MyApp{}, conf, cancel)
		if err != nil {
			log.Fatal(err)
		}

		<-ctx.Done()
		if !app.Stopped() {
			app.Stop()
		}
	}
*/
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/beam/gensrv"
	"github.com/uberbrodt/beamgo/chronos"
)

type Application interface {
	// Start the root supervisor, linked to self.
	Start(self beam.PID, args any) (beam.PID, error)
	// Called by [App.Stop] before the tree is shut down.
	Stop() error
}

type appState struct {
	app     Application
	rootSup beam.PID
	cancel  context.CancelFunc
	stopped *atomic.Bool
}

type appArgs struct {
	app     Application
	args    any
	cancel  context.CancelFunc
	stopped *atomic.Bool
}

// Start starts app's supervision tree. cancel is called once, when the root
// supervisor exits or the application stops for any other reason.
func Start(app Application, args any, cancel context.CancelFunc) (*App, error) {
	stopped := &atomic.Bool{}
	initArgs := appArgs{
		app:     app,
		args:    args,
		cancel:  sync.OnceFunc(cancel),
		stopped: stopped,
	}

	selfPID, err := gensrv.StartLink(beam.RootPID(), initArgs, buildOpts()...)
	if err != nil {
		return nil, fmt.Errorf("application failed to start: %w", err)
	}

	return &App{
		app:     app,
		self:    selfPID,
		stopped: stopped,
	}, nil
}

type App struct {
	app     Application
	self    beam.PID
	stopped *atomic.Bool
}

// Stop calls the application's Stop and then shuts the tree down, waiting
// up to 60s for it.
func (ap *App) Stop() error {
	beam.Logger.Info("application asked to stop")
	ap.stopped.Store(true)
	stopErr := ap.app.Stop()
	beam.Logger.Info("application shutting down supervision tree")

	err := genserver.Stop(beam.RootPID(), ap.self,
		genserver.StopReason(exitreason.SupervisorShutdown),
		genserver.StopTimeout(chronos.Dur("60s")))
	if err != nil && !errors.Is(err, exitreason.NoProc) {
		beam.Logger.Error("application stop error", "err", err)
	}

	beam.Logger.Info("application stopped")
	return stopErr
}

func (ap *App) Stopped() bool {
	return ap.stopped.Load() || !beam.IsAlive(ap.self)
}

// PID of the process that owns the root supervisor.
func (ap *App) PID() beam.PID {
	return ap.self
}

func buildOpts() []gensrv.GenSrvOpt[appState] {
	return []gensrv.GenSrvOpt[appState]{
		gensrv.RegisterInit(appInit),
		gensrv.RegisterInfo(beam.ExitMsg{}, handleExitMsg),
		gensrv.RegisterCall(rootSupReq{}, handleRootSup),
		gensrv.RegisterTerminate(handleTerminate),
	}
}

func appInit(self beam.PID, initArgs appArgs) (appState, any, error) {
	// trap before the tree starts so an early root supervisor exit is seen
	beam.ProcessFlag(self, beam.TrapExit, true)

	supPID, startErr := initArgs.app.Start(self, initArgs.args)
	if startErr != nil {
		return appState{}, nil, startErr
	}

	state := appState{
		app:     initArgs.app,
		rootSup: supPID,
		cancel:  initArgs.cancel,
		stopped: initArgs.stopped,
	}

	return state, nil, nil
}

func handleExitMsg(self beam.PID, msg beam.ExitMsg, state appState) (appState, any, error) {
	if msg.Proc.Equals(state.rootSup) {
		beam.Logger.Error("application root supervisor exited", "reason", msg.Reason)
		state.stopped.Store(true)
		state.cancel()
		return state, nil, exitreason.Normal
	}

	beam.DebugPrintf("Application got ExitMsg from %v: %v", msg.Proc, msg.Reason)
	return state, nil, nil
}

type rootSupReq struct{}

func handleRootSup(self beam.PID, _ rootSupReq, from genserver.From, state appState) (genserver.CallResult[appState], error) {
	return genserver.CallResult[appState]{Msg: state.rootSup, State: state}, nil
}

// RootSupervisor returns the pid of the application's root supervisor.
func (ap *App) RootSupervisor() (beam.PID, error) {
	pid, err := genserver.Call(beam.RootPID(), ap.self, rootSupReq{}, chronos.Dur("5s"))
	if err != nil {
		return beam.UndefinedPID, err
	}
	return pid.(beam.PID), nil
}

func handleTerminate(self beam.PID, reason error, state appState) {
	beam.Logger.Info("application terminating", "reason", reason)

	if beam.IsAlive(state.rootSup) {
		if err := genserver.Stop(self, state.rootSup, genserver.StopReason(exitreason.SupervisorShutdown)); err != nil {
			beam.Logger.Warn("application root supervisor stop failed", "err", err)
		}
	}

	state.stopped.Store(true)
	state.cancel()
}
