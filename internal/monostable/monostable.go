// Package monostable implements a retriggerable monostable switch: a
// trigger turns it on, and it falls back off once no trigger arrived for a
// timeout.
package monostable

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librehsm"
)

// Switch events. The timeout comes first so it maps onto a timer bank.
const (
	// EventTimeout switches the light off
	EventTimeout librehsm.EventID = librehsm.EventCustom + iota
	// EventTrigger switches the light on or restarts the timeout
	EventTrigger

	// LastTimer is the highest timer event
	LastTimer = EventTimeout
)

// DefaultTimeout is how long a switch stays on after the last trigger
const DefaultTimeout = 2 * time.Second

// EventName returns a readable name for the switch's events
func EventName(id librehsm.EventID) string {
	switch id {
	case EventTimeout:
		return "TIMEOUT"
	case EventTrigger:
		return "TRIGGER"
	}
	return id.String()
}

// Status is what a switch renders on every DO event
type Status struct {
	ID      int
	On      bool
	Counter int
}

func (s Status) String() string {
	word := "OFF"
	if s.On {
		word = "ON"
	}
	return fmt.Sprintf("%02d (%03d) %-3s", s.ID, s.Counter, word)
}

var top, off, on librehsm.StateID

var tree = sync.OnceValues(func() (*librehsm.Tree, error) {
	def := librehsm.NewDefinition()
	top = def.StateFunc("top", librehsm.None, topHandler)
	off = def.StateFunc("off", top, offHandler)
	on = def.StateFunc("on", top, onHandler)
	return def.Build()
})

// Switch is one monostable and its machine
type Switch struct {
	m       *librehsm.Machine
	id      int
	timeout time.Duration
	counter int
	render  func(Status)
}

// New creates switch id, initially off. render, if not nil, receives the
// switch status whenever the machine is sent EventDo.
func New(id int, timeout time.Duration, render func(Status), opts ...librehsm.MachineOption) (*Switch, error) {
	if timeout <= 0 {
		return nil, errors.New("monostable timeout must be positive")
	}
	t, err := tree()
	if err != nil {
		return nil, fmt.Errorf("monostable states: %w", err)
	}

	s := &Switch{id: id, timeout: timeout, render: render}
	opts = append(opts[:len(opts):len(opts)], librehsm.WithData(s))
	s.m, err = librehsm.New(t, off, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Machine returns the machine driving the switch
func (s *Switch) Machine() *librehsm.Machine {
	return s.m
}

// Status returns the switch's current status
func (s *Switch) Status() Status {
	return Status{ID: s.id, On: s.m.IsIn(on), Counter: s.counter}
}

func (s *Switch) arm() {
	if err := s.m.StartTimer(EventTimeout, s.timeout); err != nil {
		s.m.Logger().Error("monostable timer not started", "switch", s.id, "error", err)
	}
}

func topHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	if ev.ID == librehsm.EventDo {
		s := m.Data().(*Switch)
		if s.render != nil {
			s.render(s.Status())
		}
	}
	return top
}

func offHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	switch ev.ID {
	case librehsm.EventEntry:
		m.Logger().Debug("switch off", "switch", m.Data().(*Switch).id)
	case EventTrigger:
		return on
	}
	return off
}

func onHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	s := m.Data().(*Switch)
	switch ev.ID {
	case librehsm.EventEntry:
		m.Logger().Debug("switch on", "switch", s.id)
		s.counter++
		s.arm()
	case EventTrigger:
		s.arm()
	case EventTimeout:
		return off
	}
	return on
}
