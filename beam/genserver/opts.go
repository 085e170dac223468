package genserver

import (
	"time"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/beam/timeout"
)

// Options control how a GenServer process is started.
type Options struct {
	// registered before Init runs; empty means unnamed
	Name beam.Name
	// how long Start waits for Init. [timeout.Infinity] waits forever.
	StartTimeout time.Duration
}

// DefaultOpts returns the options used when no [StartOpt] is given.
func DefaultOpts() Options {
	return Options{StartTimeout: timeout.Default}
}

// StartOpt changes one start option.
type StartOpt func(opts *Options)

func buildOpts(opts []StartOpt) Options {
	o := DefaultOpts()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// startDeadline is nil when the start timeout is infinite.
func (o Options) startDeadline() <-chan time.Time {
	if timeout.IsInfinite(o.StartTimeout) {
		return nil
	}
	return time.After(o.StartTimeout)
}

// OptionSource is implemented by behaviours built on top of GenServer that
// collect their own start options, such as gensrv.
type OptionSource interface {
	StartOptions() Options
}

// InheritOpts applies the non-zero options of src.
func InheritOpts(src OptionSource) StartOpt {
	inherited := src.StartOptions()
	return func(opts *Options) {
		if inherited.Name != "" {
			opts.Name = inherited.Name
		}
		if inherited.StartTimeout != 0 {
			opts.StartTimeout = inherited.StartTimeout
		}
	}
}

// SetName registers the GenServer under name before Init is called. Start
// fails with a [beam.RegistrationError] if the name is taken.
func SetName(name beam.Name) StartOpt {
	return func(opts *Options) {
		opts.Name = name
	}
}

// StartTimeout bounds how long Start waits for Init to return.
func StartTimeout(tout time.Duration) StartOpt {
	return func(opts *Options) {
		opts.StartTimeout = tout
	}
}
