package beamtest

import (
	"fmt"

	"github.com/budougumi0617/cmpmock"
	gocmp "github.com/google/go-cmp/cmp"
)

// A Matcher decides whether a received message satisfies an [Expectation].
//
// The interface is the one gomock uses, so [gomock.Eq], [gomock.Any] and
// friends can be passed directly.
type Matcher interface {
	Matches(x any) bool
	String() string
}

// GotFormatter is used to better print failure messages. If a matcher
// implements GotFormatter, it will use the result from Got when printing
// the failure message.
type GotFormatter interface {
	Got(got any) string
}

// Eq matches messages that are cmp.Equal to want, and prints a diff on
// mismatch. Use opts to ignore fields such as PIDs or timestamps.
func Eq(want any, opts ...gocmp.Option) Matcher {
	return cmpmock.DiffEq(want, opts...)
}

// MatchFunc adapts a predicate into a Matcher.
func MatchFunc[T any](desc string, f func(T) bool) Matcher {
	return funcMatcher[T]{desc: desc, f: f}
}

type funcMatcher[T any] struct {
	desc string
	f    func(T) bool
}

func (m funcMatcher[T]) Matches(x any) bool {
	v, ok := x.(T)
	return ok && m.f(v)
}

func (m funcMatcher[T]) String() string {
	return m.desc
}

func formatGottenArg(m Matcher, arg any) string {
	got := fmt.Sprintf("%v (%T)", arg, arg)
	if gs, ok := m.(GotFormatter); ok {
		got = gs.Got(arg)
	}
	return got
}
