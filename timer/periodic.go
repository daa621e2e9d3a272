// Package timer provides timer backends for librehsm machines.
//
// A machine only knows how to ask for a timer (Machine.StartTimer). The
// backends here decide what time means: Periodic counts time handed to it
// by a caller driving a fixed tick, Loop uses the wall clock and owns the
// machine on a goroutine.
//
// Periodic reserves one timer per event id from librehsm.EventCustom up to
// a chosen last timer event, so timer events are the first custom events of
// a machine. Loop keeps one timer per event id it has been asked for.
package timer

import (
	"errors"
	"fmt"
	"time"

	"github.com/librescoot/librehsm"
)

// ErrTimerRange is returned for event ids outside the timer bank
var ErrTimerRange = errors.New("event is not a timer event")

type countdown struct {
	period  time.Duration
	elapsed time.Duration
	active  bool
	gen     uint64
}

// Periodic is a bank of one-shot timers advanced explicitly by the caller,
// typically from a fixed-rate loop or a test.
type Periodic struct {
	m      *librehsm.Machine
	timers []countdown
	gen    uint64
	armed  []uint64
}

// NewPeriodic creates a timer bank for the ids EventCustom..last and
// installs it as m's timer starter.
func NewPeriodic(m *librehsm.Machine, last librehsm.EventID) (*Periodic, error) {
	n, err := bankSize(last)
	if err != nil {
		return nil, err
	}

	p := &Periodic{
		m:      m,
		timers: make([]countdown, n),
		armed:  make([]uint64, n),
	}
	m.SetTimerStarter(func(_ *librehsm.Machine, id librehsm.EventID, period time.Duration) error {
		return p.Start(id, period)
	})
	return p, nil
}

// Start arms the timer for id, restarting it if it is already running
func (p *Periodic) Start(id librehsm.EventID, period time.Duration) error {
	idx, err := p.index(id)
	if err != nil {
		return err
	}
	p.gen++
	p.timers[idx] = countdown{period: period, active: true, gen: p.gen}
	return nil
}

// Stop disarms the timer for id
func (p *Periodic) Stop(id librehsm.EventID) error {
	idx, err := p.index(id)
	if err != nil {
		return err
	}
	p.timers[idx].active = false
	return nil
}

// Active reports whether the timer for id is running
func (p *Periodic) Active(id librehsm.EventID) bool {
	idx, err := p.index(id)
	if err != nil {
		return false
	}
	return p.timers[idx].active
}

// Advance adds elapsed to every timer that was running when Advance was
// called. Timers that reach their period are disarmed and their event is
// dispatched, lowest id first. Timers started or restarted by a handler
// during Advance only count time from the next call.
func (p *Periodic) Advance(elapsed time.Duration) error {
	for i, t := range p.timers {
		p.armed[i] = 0
		if t.active {
			p.armed[i] = t.gen
		}
	}

	var errs []error
	for i := range p.timers {
		t := &p.timers[i]
		if !t.active || t.gen != p.armed[i] {
			continue
		}
		t.elapsed += elapsed
		if t.elapsed < t.period {
			continue
		}
		t.active = false
		if err := p.m.Dispatch(librehsm.EventCustom + librehsm.EventID(i)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Periodic) index(id librehsm.EventID) (int, error) {
	if id < librehsm.EventCustom || int(id-librehsm.EventCustom) >= len(p.timers) {
		return 0, fmt.Errorf("%w: %s", ErrTimerRange, id)
	}
	return int(id - librehsm.EventCustom), nil
}

func bankSize(last librehsm.EventID) (int, error) {
	if last < librehsm.EventCustom {
		return 0, fmt.Errorf("last timer event %s: %w", last, ErrTimerRange)
	}
	return int(last-librehsm.EventCustom) + 1, nil
}
