package beamtest

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/exp/slices"
)

type expectationSet struct {
	expected  map[reflect.Type][]*Expectation
	exhausted map[reflect.Type][]*Expectation
	misses    []any
	mx        sync.Mutex
}

func newExpectationSet() *expectationSet {
	return &expectationSet{
		expected:  make(map[reflect.Type][]*Expectation),
		exhausted: make(map[reflect.Type][]*Expectation),
	}
}

// findMatch returns the first pending expectation that accepts msg. A message
// that only matches exhausted expectations is an error; a message nothing
// expects is recorded as a miss.
func (es *expectationSet) findMatch(msg any) (*Expectation, error) {
	es.mx.Lock()
	defer es.mx.Unlock()
	msgT := reflect.TypeOf(msg)
	expects := es.expected[msgT]

	errs := new(bytes.Buffer)

	for _, ex := range expects {
		err := ex.Match(msg)
		if err == nil {
			return ex, nil
		}
		fmt.Fprintf(errs, "%v\n", err)
	}

	exhausted := es.exhausted[msgT]
	for _, ex := range exhausted {
		if ex.matcher.Matches(msg) {
			return nil, fmt.Errorf("all expectations for msg '%#v' have been exhausted", msg)
		}
	}

	if len(expects)+len(exhausted) == 0 {
		fmt.Fprintf(errs, "there are no expected calls for msg %#v", msg)
	}

	es.misses = append(es.misses, msg)
	return nil, errors.New(errs.String())
}

func (es *expectationSet) add(ex *Expectation) {
	es.mx.Lock()
	defer es.mx.Unlock()
	es.expected[ex.msgT] = append(es.expected[ex.msgT], ex)
}

// retire moves ex to the exhausted list.
func (es *expectationSet) retire(ex *Expectation) {
	es.mx.Lock()
	defer es.mx.Unlock()

	key := ex.msgT
	expects := es.expected[key]
	if i := slices.Index(expects, ex); i >= 0 {
		es.expected[key] = slices.Delete(expects, i, i+1)
		es.exhausted[key] = append(es.exhausted[key], ex)
	}
}

func (es *expectationSet) mustWait() bool {
	es.mx.Lock()
	defer es.mx.Unlock()
	for _, expects := range es.expected {
		for _, e := range expects {
			if e.mustWait() {
				return true
			}
		}
	}
	return false
}

func (es *expectationSet) satisfied() bool {
	return len(es.unsatisfied()) == 0
}

func (es *expectationSet) count() int {
	es.mx.Lock()
	defer es.mx.Unlock()
	var cnt int
	for _, exs := range es.expected {
		cnt += len(exs)
	}
	for _, exs := range es.exhausted {
		cnt += len(exs)
	}
	return cnt
}

func (es *expectationSet) unsatisfied() []*Expectation {
	es.mx.Lock()
	defer es.mx.Unlock()

	var results []*Expectation
	for _, expects := range es.expected {
		for _, e := range expects {
			if !e.satisfied() {
				results = append(results, e)
			}
		}
	}
	return results
}

func (es *expectationSet) missed() []any {
	es.mx.Lock()
	defer es.mx.Unlock()
	return slices.Clone(es.misses)
}
