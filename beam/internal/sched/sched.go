// Package sched multiplexes process goroutines over a fixed number of
// workers.
//
// Every process goroutine owns a [Thread]. A thread only executes process
// code while it holds a worker; it gets one by calling [Thread.Acquire],
// which puts it at the tail of the run queue. A worker pops the head,
// grants it, and waits until the thread hands the worker back with
// [Thread.Release] (receive, I/O wait, exit) or [Thread.Yield] (budget
// exhausted).
//
// Threads that keep a worker for longer than [Config.Handoff] without
// reaching a scheduling point are detached: the worker moves on to the next
// thread in the queue and the detached thread rejoins the queue at its next
// scheduling point. This bounds how long a blocked or CPU-bound process can
// hold back everyone else.
package sched

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uberbrodt/beamgo/beam/internal/mailbox"
	"github.com/uberbrodt/beamgo/chronos"
)

const (
	DefaultBudget = 2000
)

var DefaultHandoff = chronos.Dur("2ms")

type Config struct {
	// Number of worker goroutines. Defaults to GOMAXPROCS.
	Workers int
	// Reductions a thread may spend per grant before it must yield.
	Budget int
	// How long a worker waits for a granted thread to reach a scheduling
	// point before detaching from it.
	Handoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Budget <= 0 {
		c.Budget = DefaultBudget
	}
	if c.Handoff <= 0 {
		c.Handoff = DefaultHandoff
	}
	return c
}

type Stats struct {
	Workers    int
	Queued     int
	Dispatches int64
	Yields     int64
	Handoffs   int64
}

type Scheduler struct {
	cfg      Config
	runQ     *mailbox.Mailbox[*Thread]
	stopped  chan struct{}
	stopOnce sync.Once
	group    *errgroup.Group
	started  atomic.Bool

	dispatches atomic.Int64
	yields     atomic.Int64
	handoffs   atomic.Int64
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		runQ:    mailbox.New[*Thread](),
		stopped: make(chan struct{}),
		group:   &errgroup.Group{},
	}
}

func (s *Scheduler) Config() Config {
	return s.cfg
}

// Start launches the workers. Threads that called Acquire before Start stay
// queued until then. Cancelling ctx stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	for range s.cfg.Workers {
		w := &worker{s: s, done: make(chan struct{}, 1)}
		s.group.Go(w.loop)
	}
	context.AfterFunc(ctx, s.shutdown)
}

// Stop halts the workers and waits for them to return. Threads blocked in
// Acquire are released and from then on run unscheduled.
func (s *Scheduler) Stop() {
	s.shutdown()
	_ = s.group.Wait()
}

func (s *Scheduler) shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.runQ.Close()
	})
}

func (s *Scheduler) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Workers:    s.cfg.Workers,
		Queued:     s.runQ.Size(),
		Dispatches: s.dispatches.Load(),
		Yields:     s.yields.Load(),
		Handoffs:   s.handoffs.Load(),
	}
}

// NewThread returns a thread bound to this scheduler. A nil scheduler
// returns a thread whose scheduling calls are no-ops.
func (s *Scheduler) NewThread() *Thread {
	return &Thread{s: s, grant: make(chan struct{}, 1)}
}

type worker struct {
	s    *Scheduler
	done chan struct{}
}

func (w *worker) loop() error {
	s := w.s
	timer := time.NewTimer(s.cfg.Handoff)
	timer.Stop()

	for {
		t, ok, closed := s.runQ.BlockingPop()
		if closed != nil {
			return nil
		}
		if !ok {
			continue
		}

		t.slot = w.done
		t.state.Store(stateRunning)
		s.dispatches.Add(1)
		t.grant <- struct{}{}

		timer.Reset(s.cfg.Handoff)
		select {
		case <-w.done:
			timer.Stop()
		case <-timer.C:
			if t.state.CompareAndSwap(stateRunning, stateDetached) {
				s.handoffs.Add(1)
			} else {
				// released between the timer firing and the CAS
				<-w.done
			}
		case <-s.stopped:
			timer.Stop()
			return nil
		}
	}
}
