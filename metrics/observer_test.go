package metrics

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/librescoot/librehsm"
)

const (
	evToggle librehsm.EventID = librehsm.EventCustom + iota
	evLater
)

// newSwitch builds idle <-> busy where busy defers evLater
func newSwitch(t *testing.T, opts ...librehsm.MachineOption) *librehsm.Machine {
	t.Helper()

	var idle, busy librehsm.StateID
	def := librehsm.NewDefinition()
	idle = def.StateFunc("idle", librehsm.None, func(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
		if ev.ID == evToggle {
			return busy
		}
		return idle
	})
	busy = def.StateFunc("busy", librehsm.None, func(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
		switch ev.ID {
		case evToggle:
			return idle
		case evLater:
			return librehsm.None
		}
		return busy
	})

	tree, err := def.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	opts = append(opts, librehsm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	m, err := librehsm.New(tree, idle, opts...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return m
}

func TestObserverCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg, "switch")
	m := newSwitch(t, librehsm.WithObserver(o), librehsm.WithQueueCapacity(1))
	m.Start()

	m.Dispatch(evToggle)
	m.Dispatch(evLater)
	m.Dispatch(evLater)

	if got := testutil.ToFloat64(o.dispatched.WithLabelValues("CUSTOM+0")); got != 1 {
		t.Errorf("dispatched toggle = %v, want 1", got)
	}
	// each top-level evLater is followed by a replay of the queued one
	if got := testutil.ToFloat64(o.dispatched.WithLabelValues("CUSTOM+1")); got != 4 {
		t.Errorf("dispatched later = %v, want 4", got)
	}
	if got := testutil.ToFloat64(o.transitions.WithLabelValues("idle", "busy")); got != 1 {
		t.Errorf("idle->busy = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.deferred); got != 3 {
		t.Errorf("deferred = %v, want 3", got)
	}
	if got := testutil.ToFloat64(o.dropped); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.queueLength); got != 1 {
		t.Errorf("queue length = %v, want 1", got)
	}

	m.Dispatch(evToggle)
	if got := testutil.ToFloat64(o.queueLength); got != 0 {
		t.Errorf("queue length after replay in idle = %v, want 0", got)
	}
}

func TestObserverExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg, "switch", WithEventNames(func(id librehsm.EventID) string {
		if id == evToggle {
			return "TOGGLE"
		}
		return id.String()
	}))
	m := newSwitch(t, librehsm.WithObserver(o))
	m.Start()
	m.Dispatch(evToggle)
	m.Dispatch(evToggle)

	want := `
# HELP librehsm_transitions_total Changes of the active leaf state
# TYPE librehsm_transitions_total counter
librehsm_transitions_total{from="busy",machine="switch",to="idle"} 1
librehsm_transitions_total{from="idle",machine="switch",to="busy"} 1
# HELP librehsm_events_dispatched_total Events offered to the active states, by event
# TYPE librehsm_events_dispatched_total counter
librehsm_events_dispatched_total{event="TOGGLE",machine="switch"} 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"librehsm_transitions_total", "librehsm_events_dispatched_total")
	if err != nil {
		t.Error(err)
	}
}

func TestObserversShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewObserver(reg, "left")
	b := NewObserver(reg, "right")

	newSwitch(t, librehsm.WithObserver(a)).Dispatch(evToggle)
	mb := newSwitch(t, librehsm.WithObserver(b))
	mb.Dispatch(evToggle)
	mb.Dispatch(evToggle)

	n, err := testutil.GatherAndCount(reg, "librehsm_events_dispatched_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("dispatched series = %d, want 2", n)
	}
	if got := testutil.ToFloat64(b.dispatched.WithLabelValues("CUSTOM+0")); got != 2 {
		t.Errorf("right dispatched = %v, want 2", got)
	}
}
