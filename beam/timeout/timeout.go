// Package timeout holds the durations used when a caller has no opinion.
package timeout

import (
	"time"

	"github.com/uberbrodt/beamgo/chronos"
)

const (
	// Infinity waits forever. Receives and calls treat any negative duration
	// the same way.
	Infinity time.Duration = 1<<63 - 1
)

// Default is used by Call and Start when no timeout is given.
var Default time.Duration = chronos.Dur("5s")

// IsInfinite reports whether d means "wait forever".
func IsInfinite(d time.Duration) bool {
	return d == Infinity || d < 0
}
