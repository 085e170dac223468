package supervisor

import "github.com/uberbrodt/beamgo/beam"

type ChildSpecOpt func(cs ChildSpec) ChildSpec

func SetRestart(restart Restart) ChildSpecOpt {
	return func(cs ChildSpec) ChildSpec {
		cs.Restart = restart
		return cs
	}
}

func SetShutdown(shutdown ShutdownOpt) ChildSpecOpt {
	return func(cs ChildSpec) ChildSpec {
		cs.Shutdown = shutdown
		return cs
	}
}

func SetChildType(t ChildType) ChildSpecOpt {
	return func(cs ChildSpec) ChildSpec {
		cs.Type = t
		return cs
	}
}

// StartFunSpec starts a child linked to sup. Returning exitreason.Ignore
// keeps the spec without a running process.
type StartFunSpec func(sup beam.PID) (beam.PID, error)

// NewChildSpec returns a permanent worker spec with a 5s shutdown timeout.
func NewChildSpec(id string, start StartFunSpec, opts ...ChildSpecOpt) ChildSpec {
	cs := ChildSpec{
		ID:       id,
		Start:    start,
		Restart:  Permanent,
		Shutdown: ShutdownOpt{Timeout: 5_000},
		Type:     WorkerChild,
	}

	for _, opt := range opts {
		cs = opt(cs)
	}
	return cs
}

type ChildSpec struct {
	// unique within a supervisor
	ID       string
	Start    StartFunSpec
	Restart  Restart
	Shutdown ShutdownOpt
	Type     ChildType

	pid        beam.PID
	ignored    bool
	terminated bool
}

func (c ChildSpec) running() bool {
	return !c.pid.IsNil()
}

func (c ChildSpec) status() ChildStatus {
	switch {
	case c.running():
		return ChildRunning
	case c.ignored:
		return ChildUndefined
	default:
		return ChildTerminated
	}
}

func (c ChildSpec) info() ChildInfo {
	return ChildInfo{ID: c.ID, PID: c.pid, Type: c.Type, Status: c.status(), Restart: c.Restart}
}
