package supervisor

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestRestartHistory_Window(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &restartHistory{clock: func() time.Time { return now }}

	assert.Assert(t, !h.add(2, 10))
	now = now.Add(4 * time.Second)
	assert.Assert(t, !h.add(2, 10))
	now = now.Add(4 * time.Second)
	assert.Assert(t, h.add(2, 10), "third restart within 10s exceeds intensity 2")
}

func TestRestartHistory_ExpiredEntriesAreDropped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &restartHistory{clock: func() time.Time { return now }}

	for range 5 {
		assert.Assert(t, !h.add(1, 5))
		now = now.Add(5 * time.Second)
	}
	assert.Equal(t, len(h.restarts), 1)
}

func TestRestartHistory_ZeroIntensity(t *testing.T) {
	h := &restartHistory{clock: time.Now}

	assert.Assert(t, h.add(0, 5))
}

func TestChildSpecs_Ordering(t *testing.T) {
	cs, err := newChildSpecs([]ChildSpec{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}})
	assert.NilError(t, err)

	assert.DeepEqual(t, cs.ids(), []string{"a", "b", "c", "d"})
	assert.DeepEqual(t, cs.from("c"), []string{"c", "d"})
	assert.Assert(t, cs.from("missing") == nil)
	assert.DeepEqual(t, reverse(cs.ids()), []string{"d", "c", "b", "a"})

	cs.delete("b")
	cs.add(ChildSpec{ID: "e"})
	assert.DeepEqual(t, cs.ids(), []string{"a", "c", "d", "e"})
}

func TestChildSpecs_Duplicates(t *testing.T) {
	_, err := newChildSpecs([]ChildSpec{{ID: "a"}, {ID: "a"}})

	assert.ErrorContains(t, err, "duplicate childspec id found: a")
}

func TestNewChildSpec_Defaults(t *testing.T) {
	cs := NewChildSpec("a", nil)

	assert.Equal(t, cs.Restart, Permanent)
	assert.Equal(t, cs.Type, WorkerChild)
	assert.Equal(t, cs.Shutdown, ShutdownOpt{Timeout: 5_000})
	assert.Equal(t, cs.status(), ChildTerminated)
}

func TestNewSupFlags_Defaults(t *testing.T) {
	assert.DeepEqual(t, NewSupFlags(), SupFlagsS{Strategy: OneForOne, Period: 5, Intensity: 1})
	assert.ErrorContains(t, NewSupFlags(SetPeriod(0)).validate(), "invalid restart intensity")
	assert.ErrorContains(t, NewSupFlags(SetIntensity(-1)).validate(), "invalid restart intensity")
}
