// Package chronos holds the small time helpers shared across beamgo.
package chronos

import "time"

// Clock returns the current time. Components that reason about time windows
// (restart intensity, timers) take a Clock so tests can drive them.
type Clock func() time.Time

// UTC is the default [Clock].
var UTC Clock = func() time.Time { return time.Now().UTC() }

// Dur parses a duration literal and panics if it is malformed. Only use it
// with constants.
func Dur(s string) time.Duration {
	t, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Seconds converts a whole number of seconds to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a whole number of milliseconds to a duration.
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
