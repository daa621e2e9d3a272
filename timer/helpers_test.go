package timer

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/librescoot/librehsm"
)

const (
	evTimeout librehsm.EventID = librehsm.EventCustom + iota
	evSecond
	evTrigger
)

// lamp switches on for period after a trigger; retriggering restarts the
// timeout
type lamp struct {
	off, on librehsm.StateID
	period  time.Duration
	fired   int
	ticks   int
}

func newLamp(t *testing.T, period time.Duration) (*lamp, *librehsm.Machine) {
	t.Helper()

	l := &lamp{period: period}
	def := librehsm.NewDefinition()
	l.off = def.StateFunc("off", librehsm.None, func(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
		switch ev.ID {
		case librehsm.EventDo:
			l.ticks++
		case evTrigger:
			return l.on
		}
		return l.off
	})
	l.on = def.StateFunc("on", librehsm.None, func(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
		switch ev.ID {
		case librehsm.EventEntry, evTrigger:
			if err := m.StartTimer(evTimeout, l.period); err != nil {
				t.Errorf("start timer: %v", err)
			}
		case librehsm.EventDo:
			l.ticks++
		case evTimeout:
			l.fired++
			return l.off
		}
		return l.on
	})

	tree, err := def.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m, err := librehsm.New(tree, l.off, librehsm.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return l, m
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
