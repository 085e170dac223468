package beam

import (
	"cmp"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// Status is the lifecycle state of a process.
type Status int32

const (
	// queued for, or running on, a scheduler
	StatusRunnable Status = iota
	// parked in a receive or an I/O wait
	StatusWaiting
	// notifying links and monitors, waiting for the runnable to return
	StatusExiting
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusRunnable:
		return "runnable"
	case StatusWaiting:
		return "waiting"
	case StatusExiting:
		return "exiting"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

type processTable struct {
	mx    sync.RWMutex
	procs map[int64]*process
}

var table = &processTable{procs: make(map[int64]*process)}

func (t *processTable) add(p *process) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.procs[p.id] = p
}

func (t *processTable) remove(p *process) {
	t.mx.Lock()
	defer t.mx.Unlock()
	delete(t.procs, p.id)
}

func (t *processTable) get(id int64) (*process, bool) {
	t.mx.RLock()
	defer t.mx.RUnlock()
	p, ok := t.procs[id]
	return p, ok
}

// Processes returns every process that has not finished exiting, ordered by
// [PID.ID].
func Processes() []PID {
	table.mx.RLock()
	pids := make([]PID, 0, len(table.procs))
	for _, p := range table.procs {
		pids = append(pids, p.self())
	}
	table.mx.RUnlock()

	slices.SortFunc(pids, func(a, b PID) int {
		return cmp.Compare(a.ID(), b.ID())
	})
	return pids
}

func ProcessCount() int {
	table.mx.RLock()
	defer table.mx.RUnlock()
	return len(table.procs)
}

// Lookup finds a process by [PID.ID].
func Lookup(id int64) (PID, bool) {
	p, ok := table.get(id)
	if !ok {
		return UndefinedPID, false
	}
	return p.self(), true
}

// ProcessInfo is a point-in-time snapshot of a process.
type ProcessInfo struct {
	PID             PID
	Name            Name
	Status          Status
	MessageQueueLen int
	Links           []PID
	Monitors        int
	Monitoring      int
	TrapExit        bool
	StartedAt       time.Time
}

// Info returns a snapshot of the process. ok is false once it has exited.
func Info(pid PID) (info ProcessInfo, ok bool) {
	if pid.IsNil() {
		return info, false
	}
	p := pid.p
	status := p.getStatus()
	if status == StatusExited {
		return info, false
	}

	p.mx.Lock()
	links := slices.Clone(p.links)
	monitors := len(p.monitors)
	monitoring := len(p.monitoring)
	p.mx.Unlock()

	return ProcessInfo{
		PID:             pid,
		Name:            p.getName(),
		Status:          status,
		MessageQueueLen: p.messages.Size(),
		Links:           links,
		Monitors:        monitors,
		Monitoring:      monitoring,
		TrapExit:        p.trapExits.Load(),
		StartedAt:       p.startedAt,
	}, true
}
