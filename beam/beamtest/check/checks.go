// Package check has non-fatal versions of the gotest.tools assertions, for
// use inside a [beamtest.DoFun].
//
// [testing.T.FailNow] must be called from the test goroutine, and a DoFun runs
// in the receiver process, so these mark the test failed and return false
// instead of stopping it.
package check

import (
	gocmp "github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/exitreason"
)

// T is satisfied by *testing.T.
type T interface {
	assert.TestingT
	Helper()
	Logf(format string, args ...any)
}

// Chain returns false at the first failed check.
func Chain(t T, checks ...bool) bool {
	t.Helper()
	for idx, check := range checks {
		if !check {
			t.Logf("[check.Chain] check #%d failed", idx)
			return false
		}
	}
	return true
}

// accepts binary comparisons or booleans and returns the result
func Assert(t T, comparison assert.BoolOrComparison, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Check(t, comparison, msgAndArgs...)
}

// Compares two values using [go-cmp/cmp]
func DeepEqual(t T, actual, expected any, opts ...gocmp.Option) bool {
	t.Helper()
	return assert.Check(t, cmp.DeepEqual(actual, expected, opts...))
}

func Equal(t T, actual, expected any, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Check(t, cmp.Equal(actual, expected), msgAndArgs...)
}

func NilError(t T, e error, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Check(t, cmp.Nil(e), msgAndArgs...)
}

func ErrorIs(t T, actual error, expected error) bool {
	t.Helper()
	return assert.Check(t, cmp.ErrorIs(actual, expected))
}

func ErrorContains(t T, e error, expected string, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Check(t, cmp.ErrorContains(e, expected), msgAndArgs...)
}

// ExitKind checks that e is an exit reason of the given kind.
func ExitKind(t T, e error, kind exitreason.Kind) bool {
	t.Helper()
	er := exitreason.To(e)
	if er == nil {
		return assert.Check(t, false, "%v is not an exit reason", e)
	}
	return assert.Check(t, cmp.Equal(er.Kind(), kind))
}

// Alive checks whether pid is alive.
func Alive(t T, pid beam.PID, want bool) bool {
	t.Helper()
	return assert.Check(t, beam.IsAlive(pid) == want, "expected IsAlive(%v) == %t", pid, want)
}
