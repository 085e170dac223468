// Package recurringtask runs a function every interval in its own
// process, like a soft cron job that only supports "run every X".
//
// A run starts only after the previous one finished, so runs never overlap
// and the effective period is the interval plus the run time. A run that
// returns an error stops the process with that error, which makes the task a
// natural supervisor child.
package recurringtask

import (
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/beam/gensrv"
	"github.com/uberbrodt/beamgo/chronos"
)

type taskOpts struct {
	name         beam.Name
	startTimeout time.Duration
	interval     time.Duration
	runAtStart   bool
}

type StartOpt func(opts taskOpts) taskOpts

// SetName registers the task under name.
func SetName(name beam.Name) StartOpt {
	return func(opts taskOpts) taskOpts {
		opts.name = name
		return opts
	}
}

// SetInterval is the pause between the end of one run and the start of the
// next. Defaults to 5m.
func SetInterval(interval time.Duration) StartOpt {
	return func(opts taskOpts) taskOpts {
		opts.interval = interval
		return opts
	}
}

// SetStartTimeout bounds how long Start waits for the init function.
func SetStartTimeout(tout time.Duration) StartOpt {
	return func(opts taskOpts) taskOpts {
		opts.startTimeout = tout
		return opts
	}
}

// RunAtStart runs the task once right after init instead of waiting an
// interval first. This is the default.
func RunAtStart(v bool) StartOpt {
	return func(opts taskOpts) taskOpts {
		opts.runAtStart = v
		return opts
	}
}

type TaskFun[S any] func(self beam.PID, state S) (S, error)

type InitFun[S any, A any] func(self beam.PID, args A) (S, error)

type runTask struct{}

type taskState[S any] struct {
	state    S
	interval time.Duration
}

func build[S any, A any](taskFun TaskFun[S], initFun InitFun[S, A], opts []StartOpt) []gensrv.GenSrvOpt[taskState[S]] {
	topts := taskOpts{interval: chronos.Dur("5m"), runAtStart: true}
	for _, opt := range opts {
		topts = opt(topts)
	}

	gopts := []gensrv.GenSrvOpt[taskState[S]]{
		gensrv.RegisterInit(func(self beam.PID, args A) (taskState[S], any, error) {
			state, err := initFun(self, args)
			if err != nil {
				return taskState[S]{}, nil, err
			}
			if topts.runAtStart {
				beam.Send(self, runTask{})
			} else {
				beam.SendAfter(self, runTask{}, topts.interval)
			}
			return taskState[S]{state: state, interval: topts.interval}, nil, nil
		}),
		gensrv.RegisterInfo(runTask{}, func(self beam.PID, _ runTask, ts taskState[S]) (taskState[S], any, error) {
			beam.DebugPrintf("%v running task", self)
			state, err := taskFun(self, ts.state)
			if err != nil {
				return ts, nil, err
			}
			ts.state = state
			beam.SendAfter(self, runTask{}, ts.interval)
			return ts, nil, nil
		}),
	}
	if topts.name != "" {
		gopts = append(gopts, gensrv.SetName[taskState[S]](topts.name))
	}
	if topts.startTimeout != 0 {
		gopts = append(gopts, gensrv.SetStartTimeout[taskState[S]](topts.startTimeout))
	}
	return gopts
}

// See [StartLink]
func Start[S any, A any](self beam.PID, taskFun TaskFun[S], initFun InitFun[S, A], args A, opts ...StartOpt) (beam.PID, error) {
	return gensrv.Start[taskState[S]](self, args, build(taskFun, initFun, opts)...)
}

// StartLink runs initFun once in the new process, then taskFun every
// interval, threading the state through each run.
func StartLink[S any, A any](self beam.PID, taskFun TaskFun[S], initFun InitFun[S, A], args A, opts ...StartOpt) (beam.PID, error) {
	return gensrv.StartLink[taskState[S]](self, args, build(taskFun, initFun, opts)...)
}

// See [StartLink]
func StartMonitor[S any, A any](self beam.PID, taskFun TaskFun[S], initFun InitFun[S, A], args A, opts ...StartOpt) (beam.PID, beam.Ref, error) {
	return gensrv.StartMonitor[taskState[S]](self, args, build(taskFun, initFun, opts)...)
}

// Stop stops the task and waits for it to exit. A run in progress finishes
// first.
func Stop(self beam.PID, task beam.PID, opts ...genserver.ExitOpt) error {
	return genserver.Stop(self, task, opts...)
}
