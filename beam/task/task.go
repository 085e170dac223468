// Package task runs blocking Go work, such as a server's ListenAndServe, as
// a process.
//
// The work runs on its own goroutine while the task process waits in
// receive, so it holds no scheduler worker. The task exits normally when the
// work returns nil and with an exception when it returns an error. If the
// parent exits or [Stop] is called, the cleanup function runs first. It
// should make the work return, e.g. by closing the server.
package task

import (
	"fmt"
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/timeout"
)

type taskOpts struct {
	name beam.Name
}

type StartOpt func(opts taskOpts) taskOpts

func SetName(name beam.Name) StartOpt {
	return func(opts taskOpts) taskOpts {
		opts.name = name
		return opts
	}
}

func newTask(self beam.PID, taskFun func() error, cleanupFun func() error, opts []StartOpt) *Task {
	topts := taskOpts{}
	for _, opt := range opts {
		topts = opt(topts)
	}
	if cleanupFun == nil {
		cleanupFun = func() error { return nil }
	}
	return &Task{taskFun: taskFun, cleanup: cleanupFun, parent: self, opts: topts, started: make(chan error, 1)}
}

// Start runs taskFun in a process with no relationship to self. It returns
// once the task is registered under its name, if it has one.
func Start(self beam.PID, taskFun func() error, cleanupFun func() error, opts ...StartOpt) (beam.PID, error) {
	t := newTask(self, taskFun, cleanupFun, opts)
	pid := beam.Spawn(t)
	return pid, t.awaitStart(pid)
}

func StartLink(self beam.PID, taskFun func() error, cleanupFun func() error, opts ...StartOpt) (beam.PID, error) {
	t := newTask(self, taskFun, cleanupFun, opts)
	pid := beam.SpawnLink(self, t)
	return pid, t.awaitStart(pid)
}

func StartMonitor(self beam.PID, taskFun func() error, cleanupFun func() error, opts ...StartOpt) (beam.PID, beam.Ref, error) {
	t := newTask(self, taskFun, cleanupFun, opts)
	pid, ref := beam.SpawnMonitor(self, t)
	return pid, ref, t.awaitStart(pid)
}

// awaitStart waits for the task to register its name. A task that fails to
// register exits before awaitStart returns.
func (t *Task) awaitStart(pid beam.PID) error {
	var err error
	beam.Block(t.parent, func() {
		select {
		case err = <-t.started:
		case <-beam.Done(pid):
			select {
			case err = <-t.started:
			default:
				err = beam.ExitReason(pid)
			}
		}
		if err != nil {
			<-beam.Done(pid)
		}
	})
	return err
}

// Stop runs the task's cleanup and waits up to tout for the task to exit.
// It returns the cleanup error, if any. self is the caller; it gives up its
// scheduler worker while it waits.
func Stop(self beam.PID, task beam.PID, tout time.Duration) error {
	if !beam.IsAlive(task) {
		return exitreason.NoProc
	}
	beam.Send(task, stopTask{})

	var expired <-chan time.Time
	if !timeout.IsInfinite(tout) {
		expired = time.After(tout)
	}
	timedOut := false
	beam.Block(self, func() {
		select {
		case <-beam.Done(task):
		case <-expired:
			timedOut = true
		}
	})
	if timedOut {
		return exitreason.Timeout
	}

	reason := beam.ExitReason(task)
	if exitreason.IsException(reason) {
		return reason
	}
	return nil
}

type Task struct {
	taskFun func() error
	cleanup func() error
	parent  beam.PID
	opts    taskOpts
	// receives the registration result once
	started chan error
}

type taskFunExited struct {
	err error
}

type stopTask struct{}

func (t *Task) Receive(self beam.PID, inbox *beam.Inbox) error {
	if t.opts.name != "" {
		if err := beam.Register(t.opts.name, self); err != nil {
			t.started <- err
			return exitreason.Exception(err)
		}
	}
	beam.ProcessFlag(self, beam.TrapExit, true)
	t.started <- nil
	go func() {
		err := t.taskFun()
		beam.Send(self, taskFunExited{err: err})
	}()

	for {
		anymsg, err := inbox.Receive(timeout.Infinity)
		if err != nil {
			return err
		}

		switch msg := anymsg.(type) {
		case beam.ExitMsg:
			if msg.Proc.Equals(t.parent) {
				if err := t.runCleanup(inbox); err != nil {
					return exitreason.Shutdown(fmt.Errorf("task cleanup after parent exit failed: %w", err))
				}
				return msg.Reason
			}
			beam.DebugPrintf("task[%v] ignoring exit from %v: %v", self, msg.Proc, msg.Reason)
		case taskFunExited:
			if msg.err == nil {
				return exitreason.Normal
			}
			return exitreason.Exception(msg.err)
		case stopTask:
			if err := t.runCleanup(inbox); err != nil {
				return exitreason.Exception(err)
			}
			return exitreason.Normal
		}
	}
}

// runCleanup may block, so it runs as an I/O wait.
func (t *Task) runCleanup(inbox *beam.Inbox) error {
	var err error
	inbox.Block(func() {
		err = t.cleanup()
	})
	return err
}
