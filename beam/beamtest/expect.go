package beamtest

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/xid"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/genserver"
)

// ExpectArg is passed to the [DoFun] of a matched [Expectation].
type ExpectArg struct {
	Msg any
	// only set when the message was a genserver call
	From *genserver.From
	// the receiver's pid
	Self beam.PID
	Exp  *Expectation
}

// A function that can be used as a  [Expectation.Do]
type DoFun func(ExpectArg)

// TestHelper is satisfied by *testing.T.
type TestHelper interface {
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Helper()
}

// Expectation is a rule the [TestReceiver] checks messages of one type
// against.
type Expectation struct {
	msgT     reflect.Type
	do       DoFun
	minCalls int
	maxCalls int
	numCalls int
	id       string
	name     string
	t        TestHelper
	preReqs  []*Expectation
	reply    any
	matcher  Matcher
	mx       sync.Mutex
}

func newExpect(t TestHelper, m Matcher, matchTerm reflect.Type) *Expectation {
	return &Expectation{t: t, matcher: m, msgT: matchTerm, id: xid.New().String(), minCalls: 1, maxCalls: 1}
}

func (e *Expectation) CallCount() int {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.numCalls
}

// Match returns an error describing why msg is not accepted.
func (e *Expectation) Match(msg any) error {
	if !e.matcher.Matches(msg) {
		return fmt.Errorf(
			"expectation doesn't match the msg \nGot: %v\nWant: %v",
			formatGottenArg(e.matcher, msg), e.matcher,
		)
	}

	for _, preReqCall := range e.preReqs {
		if !preReqCall.satisfied() {
			return fmt.Errorf("msg %T doesn't have a prerequisite expectation satisfied:\n%v\nshould be called before:\n%v",
				msg, preReqCall, e)
		}
	}

	if e.exhausted() {
		return fmt.Errorf("expected %+v has already been called the max number of times", e)
	}
	return nil
}

func (e *Expectation) call() DoFun {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.numCalls++
	return e.do
}

// AnyTimes allows the expectation to be called 0 or more times
func (e *Expectation) AnyTimes() *Expectation {
	e.minCalls, e.maxCalls = 0, 1e8
	return e
}

// MinTimes requires at least n matches. Unless a maximum was set, there is
// no upper bound.
func (e *Expectation) MinTimes(n int) *Expectation {
	e.minCalls = n
	if e.maxCalls == 1 {
		e.maxCalls = 1e8
	}
	return e
}

// MaxTimes limits the number of matches to n. Unless a minimum was set, zero
// matches also pass.
func (e *Expectation) MaxTimes(n int) *Expectation {
	e.maxCalls = n
	if e.minCalls == 1 {
		e.minCalls = 0
	}
	return e
}

// Times declares the exact number of matches.
func (e *Expectation) Times(n int) *Expectation {
	e.minCalls, e.maxCalls = n, n
	return e
}

// sets the name for the [Expectation], which will be used in error msgs
func (e *Expectation) Name(name string) *Expectation {
	e.name = name
	return e
}

// Reply is returned to the caller when this expectation matches a
// genserver call. Use [NoCallReply] to leave the caller waiting.
func (e *Expectation) Reply(reply any) *Expectation {
	e.reply = reply
	return e
}

// After declares that the expectation may only match once preReq is satisfied.
func (e *Expectation) After(preReq *Expectation) *Expectation {
	e.t.Helper()

	if e == preReq {
		e.t.Fatalf("A call isn't allowed to be its own prerequisite")
	}
	if preReq.isPreReq(e) {
		e.t.Fatalf("Loop in call order: %v is a prerequisite to %v (possibly indirectly).", e, preReq)
	}

	e.preReqs = append(e.preReqs, preReq)
	return e
}

// Do runs f on every match, in the receiver process. A panic in f fails the
// test instead of crashing the receiver.
func (e *Expectation) Do(f DoFun) *Expectation {
	e.do = func(arg ExpectArg) {
		defer func() {
			if r := recover(); r != nil {
				e.t.Errorf("the Do() handler for [%s - %s] expectation panicked: %v", e.id, e.name, r)
			}
		}()
		f(arg)
	}
	return e
}

// mustWait is true when a later message could still violate the expectation,
// so Wait has to give messages time to arrive.
func (e *Expectation) mustWait() bool {
	return e.maxCalls < 1e8
}

func (e *Expectation) satisfied() bool {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.numCalls >= e.minCalls
}

func (e *Expectation) exhausted() bool {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.numCalls >= e.maxCalls
}

// dropPrereqs stops re-checking prerequisites and returns them.
func (e *Expectation) dropPrereqs() (preReqs []*Expectation) {
	e.mx.Lock()
	defer e.mx.Unlock()
	preReqs = e.preReqs
	e.preReqs = nil
	return
}

// isPreReq returns true if other is a direct or indirect prerequisite to e.
func (e *Expectation) isPreReq(other *Expectation) bool {
	e.mx.Lock()
	defer e.mx.Unlock()
	for _, preReq := range e.preReqs {
		if other == preReq || preReq.isPreReq(other) {
			return true
		}
	}
	return false
}

func (e *Expectation) String() string {
	return fmt.Sprintf("beamtest.Expectation{id: %s, name: %s}{%s matches %v} MinTimes: %d, MaxTimes: %d, CallCount: %d",
		e.id, e.name, e.msgT, e.matcher, e.minCalls, e.maxCalls, e.CallCount())
}

// ExpectationFailure records a message that broke an expectation, or an
// expectation that was never satisfied.
type ExpectationFailure struct {
	Exp    *Expectation
	Msg    any
	Reason error
}

func (ef *ExpectationFailure) String() string {
	return fmt.Sprintf("%v", ef.Reason)
}
