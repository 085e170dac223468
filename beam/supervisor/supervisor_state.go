package supervisor

import (
	"fmt"
	"time"

	"golang.org/x/exp/slices"

	"github.com/uberbrodt/beamgo/beam"
	"github.com/uberbrodt/beamgo/chronos"
)

// childSpecs is kept in start order.
type childSpecs struct {
	specs []ChildSpec
}

func (cs *childSpecs) get(childID string) (ChildSpec, bool) {
	idx := slices.IndexFunc(cs.specs, func(c ChildSpec) bool { return c.ID == childID })
	if idx < 0 {
		return ChildSpec{}, false
	}
	return cs.specs[idx], true
}

func (cs *childSpecs) findByPID(pid beam.PID) (ChildSpec, bool) {
	idx := slices.IndexFunc(cs.specs, func(c ChildSpec) bool { return c.running() && c.pid.Equals(pid) })
	if idx < 0 {
		return ChildSpec{}, false
	}
	return cs.specs[idx], true
}

func (cs *childSpecs) update(child ChildSpec) {
	for idx, c := range cs.specs {
		if c.ID == child.ID {
			cs.specs[idx] = child
			return
		}
	}
}

func (cs *childSpecs) list() []ChildSpec {
	return cs.specs
}

func (cs *childSpecs) delete(childID string) {
	cs.specs = slices.DeleteFunc(cs.specs, func(x ChildSpec) bool {
		return x.ID == childID
	})
}

func (cs *childSpecs) add(child ChildSpec) {
	cs.specs = append(cs.specs, child)
}

// ids from childID (inclusive) to the end
func (cs *childSpecs) from(childID string) []string {
	idx := slices.IndexFunc(cs.specs, func(c ChildSpec) bool { return c.ID == childID })
	if idx < 0 {
		return nil
	}
	ids := make([]string, 0, len(cs.specs)-idx)
	for _, c := range cs.specs[idx:] {
		ids = append(ids, c.ID)
	}
	return ids
}

func (cs *childSpecs) ids() []string {
	ids := make([]string, 0, len(cs.specs))
	for _, c := range cs.specs {
		ids = append(ids, c.ID)
	}
	return ids
}

func (cs *childSpecs) count() ChildCount {
	var cc ChildCount
	for _, c := range cs.specs {
		cc.Specs++
		if c.running() && beam.IsAlive(c.pid) {
			cc.Active++
		}
		if c.Type == SupervisorChild {
			cc.Supervisors++
		} else {
			cc.Workers++
		}
	}
	return cc
}

func checkDups(specs []ChildSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if _, ok := seen[spec.ID]; ok {
			return fmt.Errorf("duplicate childspec id found: %s", spec.ID)
		}
		seen[spec.ID] = struct{}{}
	}
	return nil
}

func newChildSpecs(specs []ChildSpec) (*childSpecs, error) {
	if err := checkDups(specs); err != nil {
		return nil, err
	}
	return &childSpecs{specs: slices.Clone(specs)}, nil
}

// restartHistory is the sliding window used to enforce restart intensity.
type restartHistory struct {
	clock    chronos.Clock
	restarts []time.Time
}

// add records a restart and reports whether more than intensity restarts
// happened within the last period seconds.
func (h *restartHistory) add(intensity, period int) (exceeded bool) {
	now := h.clock()
	cutoff := now.Add(-chronos.Seconds(period))
	h.restarts = slices.DeleteFunc(h.restarts, func(t time.Time) bool {
		return !t.After(cutoff)
	})
	h.restarts = append(h.restarts, now)
	return len(h.restarts) > intensity
}

type supervisorState struct {
	children *childSpecs
	flags    SupFlagsS
	history  *restartHistory
	status   State
}
