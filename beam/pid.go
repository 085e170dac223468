package beam

import "fmt"

// A Process Identifier; wraps the underlying process so we can reference it
// without exposing process internals. PIDs are comparable and are passed by
// reference when sent inside messages.
type PID struct {
	p *process
}

var UndefinedPID PID = PID{}

func (pid PID) String() string {
	if pid.p != nil {
		if pid.p.getName() == "" {
			return fmt.Sprintf("PID<%d>", pid.p.id)
		} else {
			return fmt.Sprintf("PID<%d|%s>", pid.p.id, pid.p.getName())
		}
	} else {
		return "PID<undefined>"
	}
}

// ID is the process's unique, monotonically assigned number. Zero for
// [UndefinedPID].
func (pid PID) ID() int64 {
	if pid.p == nil {
		return 0
	}
	return pid.p.id
}

func (pid PID) IsNil() bool {
	return pid.p == nil
}

func (self PID) Equals(pid PID) bool {
	if self.IsNil() && pid.IsNil() {
		return true
	}

	if self.IsNil() || pid.IsNil() {
		return false
	}

	return self.p.id == pid.p.id
}

func (pid PID) ResolvePID() (PID, error) {
	return pid, nil
}

// PIDs are handles, never copied into messages.
func (PID) SharedTerm() {}

type Name string

func (n Name) ResolvePID() (PID, error) {
	pid, exists := WhereIs(n)
	if !exists {
		return pid, fmt.Errorf("no PID found for name %s", n)
	}
	return pid, nil
}

// Dest is anything that can be resolved to a PID: a [PID] or a registered [Name].
type Dest interface {
	ResolvePID() (PID, error)
}
