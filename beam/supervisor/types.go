package supervisor

import "github.com/uberbrodt/beamgo/beam"

// Strategy decides which children are restarted when one of them fails.
type Strategy string

const (
	OneForOne  Strategy = "one_for_one"
	OneForAll  Strategy = "one_for_all"
	RestForOne Strategy = "rest_for_one"
)

// Restart decides whether a child is restarted when it exits.
type Restart string

const (
	// always restarted
	Permanent Restart = "permanent"
	// never restarted; its spec is removed once it exits
	Temporary Restart = "temporary"
	// restarted only after an abnormal exit
	Transient Restart = "transient"
)

// ShutdownOpt is how a child is stopped. The zero value kills it without
// waiting, so use [NewChildSpec] to get the default 5s timeout.
type ShutdownOpt struct {
	// kill the child with exitreason.Kill immediately
	BrutalKill bool
	// milliseconds to wait after exitreason.SupervisorShutdown before killing
	Timeout int
	// wait forever for the child to exit. Use this for supervisor children.
	Infinity bool
}

type ChildType string

const (
	SupervisorChild ChildType = "supervisor"
	WorkerChild     ChildType = "worker"
)

type ChildStatus string

const (
	ChildRunning    ChildStatus = "running"
	ChildTerminated ChildStatus = "terminated"
	// the child's start function returned exitreason.Ignore
	ChildUndefined ChildStatus = "undefined"
)

// ChildInfo is returned by [WhichChildren], in start order.
type ChildInfo struct {
	ID      string
	PID     beam.PID
	Type    ChildType
	Status  ChildStatus
	Restart Restart
}

// ChildCount is returned by [CountChildren].
type ChildCount struct {
	// child specifications, running or not
	Specs int
	// children with a live process
	Active      int
	Supervisors int
	Workers     int
}

// State is where a supervisor is in its lifecycle.
type State string

const (
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	// restart intensity was exceeded; the supervisor has shut down
	StateFailed State = "failed"
	// the supervisor exited for any other reason
	StateStopped State = "stopped"
)
