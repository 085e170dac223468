package beam

import (
	"fmt"
	"sync"
)

type RegistrationErrorKind string

const (
	// pid already has a name; [Unregister] it first
	AlreadyRegistered RegistrationErrorKind = "already_registered"
	// another process holds the name
	NameInUse RegistrationErrorKind = "name_used"
	// pid is not alive
	NoProc RegistrationErrorKind = "no_proc"
	// "", "nil" and "undefined" can't be registered
	BadName RegistrationErrorKind = "bad_name"
)

// RegistrationError is returned by [Register].
type RegistrationError struct {
	Kind RegistrationErrorKind
	Name Name
}

func (e *RegistrationError) Error() string {
	if e.Name == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Name)
}

// Registration is one entry of [Registered].
type Registration struct {
	Name Name
	PID  PID
}

// registry is the node-local name table. A process gives up its name in the
// same critical section that marks it exiting, so once [Register] has seen
// a process alive the name is released by that process's exit.
type registry struct {
	mx     sync.RWMutex
	byName map[Name]PID
}

var names = &registry{byName: make(map[Name]PID)}

func reservedName(name Name) bool {
	switch name {
	case "", "nil", "undefined":
		return true
	}
	return false
}

func (r *registry) register(name Name, pid PID) *RegistrationError {
	if reservedName(name) {
		return &RegistrationError{Kind: BadName, Name: name}
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	switch {
	case !pid.p.alive():
		return &RegistrationError{Kind: NoProc, Name: name}
	case pid.p.getName() != "":
		return &RegistrationError{Kind: AlreadyRegistered, Name: name}
	}
	if _, taken := r.byName[name]; taken {
		return &RegistrationError{Kind: NameInUse, Name: name}
	}

	r.byName[name] = pid
	pid.p.setName(name)
	return nil
}

func (r *registry) lookup(name Name) (PID, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	pid, ok := r.byName[name]
	return pid, ok
}

func (r *registry) unregister(name Name) bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	pid, ok := r.byName[name]
	if !ok {
		return false
	}
	delete(r.byName, name)
	// cleared so the process can take another name
	pid.p.setName("")
	return true
}

// markExiting moves p to [StatusExiting] and drops its name, returning the
// name it held.
func (r *registry) markExiting(p *process) Name {
	r.mx.Lock()
	defer r.mx.Unlock()
	p.setStatus(StatusExiting)
	name := p.getName()
	if name != "" {
		if held, ok := r.byName[name]; ok && held.p == p {
			delete(r.byName, name)
		}
	}
	return name
}

func (r *registry) all() []Registration {
	r.mx.RLock()
	defer r.mx.RUnlock()
	out := make([]Registration, 0, len(r.byName))
	for name, pid := range r.byName {
		out = append(out, Registration{Name: name, PID: pid})
	}
	return out
}

// Register associates name with pid until the process exits or [Unregister]
// is called. A process holds at most one name.
func Register(name Name, pid PID) *RegistrationError {
	return names.register(name, pid)
}

// WhereIs returns the process registered under name.
func WhereIs(name Name) (pid PID, exists bool) {
	return names.lookup(name)
}

// Unregister removes name. It returns false if name was not registered.
func Unregister(name Name) bool {
	return names.unregister(name)
}

// Registered lists every registered name, in no particular order.
func Registered() []Registration {
	return names.all()
}
