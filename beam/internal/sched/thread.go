package sched

import "sync/atomic"

const (
	stateIdle int32 = iota
	stateQueued
	stateRunning
	stateDetached
)

// Thread is the scheduling handle of one process goroutine. Only the owning
// goroutine may call its methods.
type Thread struct {
	s     *Scheduler
	state atomic.Int32
	grant chan struct{}
	// done channel of the worker that granted us. Written by the worker
	// before the grant, so reading it after the grant is safe.
	slot chan struct{}
	used int
}

// Acquire waits in the run queue until a worker grants this thread.
func (t *Thread) Acquire() {
	s := t.s
	if s == nil || s.isStopped() {
		return
	}

	t.state.Store(stateQueued)
	if !s.runQ.Enqueue(t) {
		t.state.Store(stateDetached)
		return
	}

	select {
	case <-t.grant:
	case <-s.stopped:
		t.state.Store(stateDetached)
	}
	t.used = 0
}

// Release hands the worker back. Call it before parking on anything that
// is not another scheduling call.
func (t *Thread) Release() {
	if t.s == nil {
		return
	}
	if t.state.CompareAndSwap(stateRunning, stateIdle) {
		select {
		case t.slot <- struct{}{}:
		default:
		}
		return
	}
	t.state.Store(stateIdle)
}

// Yield moves the thread to the tail of the run queue.
func (t *Thread) Yield() {
	if t.s == nil {
		return
	}
	t.s.yields.Add(1)
	t.Release()
	t.Acquire()
}

// Reduce charges n reductions against the current grant and yields once the
// budget is spent. A thread the worker has detached from rejoins the queue
// here.
func (t *Thread) Reduce(n int) {
	if t.s == nil || t.s.isStopped() {
		return
	}
	t.used += n
	if t.used >= t.s.cfg.Budget || t.state.Load() == stateDetached {
		t.Yield()
	}
}

// Used returns the reductions spent since the last grant.
func (t *Thread) Used() int {
	return t.used
}

// Detached reports whether the granting worker has moved on without us.
func (t *Thread) Detached() bool {
	return t.state.Load() == stateDetached
}
