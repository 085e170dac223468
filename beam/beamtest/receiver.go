// Package beamtest provides [TestReceiver], a process that tests can set
// message expectations on. Expectations match the messages delivered to the
// receiver's inbox, optionally run a [DoFun], and fail the test when a
// message is unexpected or an expectation is never satisfied.
package beamtest

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
	"github.com/uberbrodt/beamgo/beam/genserver"
	"github.com/uberbrodt/beamgo/chronos"
)

var (
	// a signal value to indicate that the CallExpect should not reply to the caller
	NoCallReply any = "\x07"
	// how long a receiver lives when the test has no deadline
	DefaultReceiverTimeout time.Duration = chronos.Dur("9m59s")
	// minimum time Wait gives bounded expectations to see extra messages
	DefaultWaitTimeout time.Duration = chronos.Dur("5s")
)

// TLike is the part of [testing.T] the receiver uses.
type TLike interface {
	Errorf(format string, args ...any)
	Logf(format string, args ...any)
	Fatalf(format string, args ...any)
	Failed() bool
	Helper()
	Deadline() (time.Time, bool)
	Cleanup(func())
}

type ReceiverOpt func(ro receiverOptions) receiverOptions

type receiverOptions struct {
	timeout     time.Duration
	waitTimeout time.Duration
	waitExit    time.Duration
	name        string
	parent      beam.PID
}

// ReceiverTimeout sets how long the receiver waits for a message before
// failing the test. It defaults to just under the test deadline.
func ReceiverTimeout(t time.Duration) ReceiverOpt {
	return func(ro receiverOptions) receiverOptions {
		ro.timeout = t
		ro.waitExit = t - time.Second
		return ro
	}
}

// WaitTimeout is the minimum time [TestReceiver.Wait] runs when an expectation
// has an upper bound such as Times or MaxTimes, so that extra messages get a
// chance to arrive. See [DefaultWaitTimeout].
func WaitTimeout(t time.Duration) ReceiverOpt {
	return func(ro receiverOptions) receiverOptions {
		ro.waitTimeout = t
		return ro
	}
}

// Set a name for the test receiver, that will be used in log messages
func Name(name string) ReceiverOpt {
	return func(ro receiverOptions) receiverOptions {
		ro.name = name
		return ro
	}
}

// Set a parent for this test process. Defaults to [beam.RootPID]
func Parent(parent beam.PID) ReceiverOpt {
	return func(ro receiverOptions) receiverOptions {
		ro.parent = parent
		return ro
	}
}

// NewReceiver spawns a [TestReceiver] that traps exits. It is stopped when
// the test ends.
func NewReceiver(t TLike, opts ...ReceiverOpt) (beam.PID, *TestReceiver) {
	rOpts := receiverOptions{
		timeout:     DefaultReceiverTimeout,
		waitExit:    DefaultReceiverTimeout - time.Second,
		waitTimeout: DefaultWaitTimeout,
		name:        fmt.Sprintf("%s-test-receiver", xid.New().String()),
		parent:      beam.RootPID(),
	}

	if tout, ok := t.Deadline(); ok {
		testExit := time.Until(tout) - time.Second
		rOpts.timeout = testExit
		rOpts.waitExit = testExit - time.Second
	}

	for _, o := range opts {
		rOpts = o(rOpts)
	}

	tr := &TestReceiver{
		t:            t,
		opts:         rOpts,
		expectations: newExpectationSet(),
		log:          beam.Logger.With("beamtest.receiver", rOpts.name),
	}
	pid := beam.Spawn(tr)
	tr.setSelf(pid)

	beam.ProcessFlag(pid, beam.TrapExit, true)
	t.Cleanup(func() {
		tr.Stop()
	})
	return pid, tr
}

type TestReceiver struct {
	t            TLike
	expectations *expectationSet
	failures     []*ExpectationFailure
	deps         []beam.PID
	self         beam.PID
	stopping     bool
	opts         receiverOptions
	log          *slog.Logger
	mx           sync.RWMutex
}

func (tr *TestReceiver) Self() beam.PID {
	tr.mx.RLock()
	defer tr.mx.RUnlock()
	return tr.self
}

func (tr *TestReceiver) setSelf(pid beam.PID) {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	tr.self = pid
}

func (tr *TestReceiver) isStopping() bool {
	tr.mx.RLock()
	defer tr.mx.RUnlock()
	return tr.stopping
}

func (tr *TestReceiver) Receive(self beam.PID, inbox *beam.Inbox) error {
	for {
		msg, err := inbox.Receive(tr.opts.timeout)
		if errors.Is(err, exitreason.Timeout) {
			tr.t.Errorf("[%v] receive timeout", tr)
			tr.report()
			return exitreason.Timeout
		}
		if err != nil {
			return err
		}

		if v, ok := msg.(beam.ExitMsg); ok && errors.Is(v.Reason, exitreason.TestExit) {
			tr.log.Debug("received a TestExit, shutting down", "sending-proc", v.Proc)
			return exitreason.Normal
		}
		if tr.isStopping() {
			continue
		}
		tr.check(self, msg)
	}
}

func (tr *TestReceiver) check(self beam.PID, msg any) {
	var callReq *genserver.CallRequest
	term := msg

	switch v := msg.(type) {
	case genserver.CastRequest:
		term = v.Msg
	case genserver.CallRequest:
		callReq = &v
		term = v.Msg
	}

	match, err := tr.expectations.findMatch(term)
	if err != nil {
		e := fmt.Errorf("expectation failed: %w", err)
		tr.appendFailure(&ExpectationFailure{Msg: term, Reason: e})
		tr.t.Errorf("%v", e)
		return
	}

	do := match.call()

	arg := ExpectArg{Msg: term, Self: self, Exp: match}
	if callReq != nil {
		arg.From = &callReq.From
		if match.reply != NoCallReply {
			genserver.Reply(callReq.From, match.reply)
		}
	}
	if do != nil {
		do(arg)
	}

	// a matched expectation no longer needs its prerequisites, and they are
	// no longer expected
	for _, preReq := range match.dropPrereqs() {
		tr.expectations.retire(preReq)
	}

	if match.exhausted() {
		tr.expectations.retire(match)
	}
}

// StartSupervised starts a process with the receiver as its parent. The test
// fails if startLink returns an error. The process is killed by [Stop].
func (tr *TestReceiver) StartSupervised(startLink func(self beam.PID) (beam.PID, error)) beam.PID {
	tr.t.Helper()
	pid, err := startLink(tr.Self())
	if err != nil {
		tr.t.Fatalf("failed starting supervised process: %v", err)
	}

	tr.mx.Lock()
	tr.deps = append(tr.deps, pid)
	tr.mx.Unlock()

	return pid
}

// Expect matches every message of matchTerm's type against m.
func (tr *TestReceiver) Expect(matchTerm any, m Matcher) *Expectation {
	e := newExpect(tr.t, m, reflect.TypeOf(matchTerm))
	tr.expectations.add(e)
	return e
}

// ExpectCast is [Expect] for the body of a [genserver.Cast].
func (tr *TestReceiver) ExpectCast(matchTerm any, m Matcher) *Expectation {
	return tr.Expect(matchTerm, m)
}

// ExpectCall matches the body of a [genserver.Call] and answers it with
// reply, unless reply is [NoCallReply].
func (tr *TestReceiver) ExpectCall(matchTerm any, m Matcher, reply any) *Expectation {
	return tr.Expect(matchTerm, m).Reply(reply)
}

func (tr *TestReceiver) report() {
	buf := new(bytes.Buffer)

	fmt.Fprintln(buf, "UNSATISFIED EXPECTATIONS: [")
	for _, e := range tr.expectations.unsatisfied() {
		tr.appendFailure(&ExpectationFailure{Exp: e, Reason: fmt.Errorf("unsatisfied expectation: %v", e)})
		fmt.Fprintf(buf, "%v\n", e)
	}
	fmt.Fprintln(buf, "]")

	fmt.Fprintln(buf, "UNMATCHED MSGS: [")
	for _, missed := range tr.expectations.missed() {
		fmt.Fprintf(buf, "%+v\n", missed)
	}
	fmt.Fprintln(buf, "]")

	tr.t.Logf("%s", buf)
}

// Wait blocks until every expectation is satisfied, the test fails, or the
// receiver times out. If any expectation has an upper bound it waits at least
// [WaitTimeout], so that a message arriving too often is still caught.
//
// Call this after the messages have been sent.
func (tr *TestReceiver) Wait() {
	start := time.Now()

	if tr.expectations.count() == 0 {
		return
	}

	if tr.expectations.mustWait() {
		tr.poll(start, tr.opts.waitTimeout, func() bool { return false })
		if tr.t.Failed() {
			tr.report()
			return
		}
	}

	if !tr.poll(start, tr.opts.waitExit, tr.expectations.satisfied) {
		if !tr.t.Failed() {
			tr.t.Errorf("[%v] timed out waiting for expectations to be fulfilled", tr)
		}
		tr.report()
	}
}

// WaitOnChannel blocks until ch is closed or receives a value. Use it with
// AnyTimes expectations, which are always satisfied, to signal from a [DoFun]
// that the test can proceed.
func (tr *TestReceiver) WaitOnChannel(ch <-chan struct{}) {
	tr.WaitOnFunc(func() bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	})
}

// WaitOnFunc polls fn every 10ms until it returns true. The test fails if that
// does not happen before the receiver times out.
func (tr *TestReceiver) WaitOnFunc(fn func() bool) {
	if !tr.poll(time.Now(), tr.opts.waitExit, fn) && !tr.t.Failed() {
		tr.t.Errorf("[%v] timed out waiting for condition", tr)
	}
}

// poll returns true once done does, false if the test failed or limit passed.
func (tr *TestReceiver) poll(start time.Time, limit time.Duration, done func() bool) bool {
	for {
		if done() {
			return true
		}
		if tr.t.Failed() || time.Since(start) >= limit {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Stop kills the processes started by [StartSupervised], then stops the
// receiver and waits for it to exit. Cleanup calls it automatically.
func (tr *TestReceiver) Stop() {
	self := tr.Self()
	if !beam.IsAlive(self) {
		return
	}

	tr.mx.Lock()
	tr.stopping = true
	deps := tr.deps
	tr.mx.Unlock()

	for _, dep := range deps {
		beam.Exit(tr.opts.parent, dep, exitreason.Kill)
	}
	for _, dep := range deps {
		tr.awaitExit(dep)
	}

	beam.Exit(tr.opts.parent, self, exitreason.TestExit)
	tr.awaitExit(self)
}

func (tr *TestReceiver) awaitExit(pid beam.PID) {
	select {
	case <-beam.Done(pid):
	case <-time.After(tr.opts.waitTimeout):
		tr.log.Warn("process did not exit", "pid", pid)
	}
}

// Failures lists the unexpected messages and unsatisfied expectations seen so far.
func (tr *TestReceiver) Failures() []*ExpectationFailure {
	tr.mx.RLock()
	defer tr.mx.RUnlock()

	out := make([]*ExpectationFailure, len(tr.failures))
	copy(out, tr.failures)
	return out
}

func (tr *TestReceiver) appendFailure(f *ExpectationFailure) {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	tr.failures = append(tr.failures, f)
}

func (tr *TestReceiver) String() string {
	return fmt.Sprintf("TestReceiver[%s|%v]", tr.opts.name, tr.Self())
}
