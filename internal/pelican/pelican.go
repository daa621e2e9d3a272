// Package pelican implements a PEdestrian LIght CONtrolled crossing: cars
// get green for at least a minimum time, a waiting pedestrian then gets a
// walk phase followed by a flashing phase. The crossing can be switched
// offline, where both lights blink.
package pelican

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librehsm"
)

// Crossing events. The timeouts come first so they map onto a timer bank.
const (
	// EventTimeoutCarsGreenMin ends the minimum green phase
	EventTimeoutCarsGreenMin librehsm.EventID = librehsm.EventCustom + iota
	// EventTimeoutCarsYellow ends the yellow phase
	EventTimeoutCarsYellow
	// EventTimeoutPedsWalk ends the walk phase
	EventTimeoutPedsWalk
	// EventTimeoutPedsFlash toggles the flashing walk light
	EventTimeoutPedsFlash
	// EventTimeoutOffFlash toggles the blinking lights while offline
	EventTimeoutOffFlash

	// EventPedsWaiting signals a pedestrian pressed the button
	EventPedsWaiting
	// EventOff switches the crossing offline
	EventOff
	// EventOn switches the crossing back on
	EventOn

	// LastTimer is the highest timer event
	LastTimer = EventTimeoutOffFlash
)

var eventNames = map[librehsm.EventID]string{
	EventTimeoutCarsGreenMin: "TIMEOUT_CARS_GREEN_MIN",
	EventTimeoutCarsYellow:   "TIMEOUT_CARS_YELLOW",
	EventTimeoutPedsWalk:     "TIMEOUT_PEDS_WALK",
	EventTimeoutPedsFlash:    "TIMEOUT_PEDS_FLASH",
	EventTimeoutOffFlash:     "TIMEOUT_OFF_FLASH",
	EventPedsWaiting:         "PEDS_WAITING",
	EventOff:                 "OFF",
	EventOn:                  "ON",
}

// EventName returns a readable name for the crossing's events
func EventName(id librehsm.EventID) string {
	if name, ok := eventNames[id]; ok {
		return name
	}
	return id.String()
}

// CarsLight is what the cars see
type CarsLight int

const (
	CarsBlank CarsLight = iota
	CarsRed
	CarsYellow
	CarsGreen
)

func (l CarsLight) String() string {
	switch l {
	case CarsRed:
		return "red"
	case CarsYellow:
		return "yellow"
	case CarsGreen:
		return "green"
	}
	return "blank"
}

// PedsLight is what the pedestrians see
type PedsLight int

const (
	PedsBlank PedsLight = iota
	PedsDontWalk
	PedsWalk
)

func (l PedsLight) String() string {
	switch l {
	case PedsDontWalk:
		return "don't walk"
	case PedsWalk:
		return "walk"
	}
	return "blank"
}

// Lights is the combined signal state
type Lights struct {
	Cars CarsLight
	Peds PedsLight
}

func (l Lights) String() string {
	return fmt.Sprintf("cars: %-6s pedestrians: %s", l.Cars, l.Peds)
}

// Timing holds the crossing's timeouts
type Timing struct {
	CarsGreenMin time.Duration
	CarsYellow   time.Duration
	PedsWalk     time.Duration
	PedsFlash    time.Duration
	OffFlash     time.Duration
	Flashes      int
}

// DefaultTiming returns the classic pelican timings
func DefaultTiming() Timing {
	return Timing{
		CarsGreenMin: 8 * time.Second,
		CarsYellow:   3 * time.Second,
		PedsWalk:     3 * time.Second,
		PedsFlash:    200 * time.Millisecond,
		OffFlash:     500 * time.Millisecond,
		Flashes:      10,
	}
}

// Validate checks that every timeout is positive
func (t Timing) Validate() error {
	var errs []error
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"cars green minimum", t.CarsGreenMin},
		{"cars yellow", t.CarsYellow},
		{"peds walk", t.PedsWalk},
		{"peds flash", t.PedsFlash},
		{"off flash", t.OffFlash},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s timeout must be positive, got %s", d.name, d.value))
		}
	}
	if t.Flashes < 1 {
		errs = append(errs, fmt.Errorf("flashes must be at least 1, got %d", t.Flashes))
	}
	return errors.Join(errs...)
}

var (
	operational      librehsm.StateID
	carsEnabled      librehsm.StateID
	carsGreen        librehsm.StateID
	carsGreenNoPed   librehsm.StateID
	carsGreenInt     librehsm.StateID
	carsGreenPedWait librehsm.StateID
	carsYellow       librehsm.StateID
	pedsEnabled      librehsm.StateID
	pedsWalk         librehsm.StateID
	pedsFlash        librehsm.StateID
	offline          librehsm.StateID
)

// tree is shared by all crossings; per-crossing data travels in Machine.Data
var tree = sync.OnceValues(func() (*librehsm.Tree, error) {
	def := librehsm.NewDefinition()
	operational = def.StateFunc("operational", librehsm.None, operationalHandler)
	carsEnabled = def.StateFunc("cars_enabled", operational, carsEnabledHandler)
	carsGreen = def.StateFunc("cars_green", carsEnabled, carsGreenHandler)
	carsGreenNoPed = def.StateFunc("cars_green_no_ped", carsGreen, carsGreenNoPedHandler)
	carsGreenInt = def.StateFunc("cars_green_int", carsGreen, carsGreenIntHandler)
	carsGreenPedWait = def.StateFunc("cars_green_ped_wait", carsGreen, carsGreenPedWaitHandler)
	carsYellow = def.StateFunc("cars_yellow", carsEnabled, carsYellowHandler)
	pedsEnabled = def.StateFunc("peds_enabled", operational, pedsEnabledHandler)
	pedsWalk = def.StateFunc("peds_walk", pedsEnabled, pedsWalkHandler)
	pedsFlash = def.StateFunc("peds_flash", pedsEnabled, pedsFlashHandler)
	offline = def.StateFunc("offline", librehsm.None, offlineHandler)
	return def.Build()
})

// Tree returns the crossing's state tree
func Tree() (*librehsm.Tree, error) {
	return tree()
}

// Crossing is one pelican crossing and the machine driving it
type Crossing struct {
	m        *librehsm.Machine
	timing   Timing
	lights   Lights
	flashes  int
	onChange func(Lights)
}

// New creates a crossing in the operational state. The machine still has
// to be started and needs a timer backend.
func New(timing Timing, opts ...librehsm.MachineOption) (*Crossing, error) {
	if err := timing.Validate(); err != nil {
		return nil, fmt.Errorf("pelican timing: %w", err)
	}
	t, err := tree()
	if err != nil {
		return nil, fmt.Errorf("pelican states: %w", err)
	}

	c := &Crossing{timing: timing}
	opts = append(opts[:len(opts):len(opts)], librehsm.WithData(c))
	c.m, err = librehsm.New(t, operational, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OnChange registers fn to be called whenever a light changes
func (c *Crossing) OnChange(fn func(Lights)) {
	c.onChange = fn
}

// Machine returns the machine driving the crossing
func (c *Crossing) Machine() *librehsm.Machine {
	return c.m
}

// Lights returns the current signals
func (c *Crossing) Lights() Lights {
	return c.lights
}

// Operational reports whether the crossing is switched on
func (c *Crossing) Operational() bool {
	return c.m.IsIn(operational)
}

// Toggle returns the event that switches the crossing on or off
func (c *Crossing) Toggle() librehsm.EventID {
	if c.Operational() {
		return EventOff
	}
	return EventOn
}

func (c *Crossing) setCars(l CarsLight) {
	c.lights.Cars = l
	c.changed()
}

func (c *Crossing) setPeds(l PedsLight) {
	c.lights.Peds = l
	c.changed()
}

func (c *Crossing) changed() {
	if c.onChange != nil {
		c.onChange(c.lights)
	}
}

func (c *Crossing) startTimer(id librehsm.EventID, d time.Duration) {
	if err := c.m.StartTimer(id, d); err != nil {
		c.m.Logger().Error("pelican timer not started", "event", EventName(id), "error", err)
	}
}

func crossing(m *librehsm.Machine) *Crossing {
	return m.Data().(*Crossing)
}

func operationalHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	c := crossing(m)
	switch ev.ID {
	case librehsm.EventEntry:
		c.setCars(CarsRed)
		c.setPeds(PedsDontWalk)
		c.flashes = 0
	case librehsm.EventInitial:
		return carsEnabled
	case EventOff:
		return offline
	}
	return operational
}

func carsEnabledHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	switch ev.ID {
	case librehsm.EventInitial:
		return carsGreen
	case librehsm.EventExit:
		crossing(m).setCars(CarsRed)
	}
	return carsEnabled
}

func carsGreenHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	switch ev.ID {
	case librehsm.EventEntry:
		crossing(m).setCars(CarsGreen)
	case librehsm.EventInitial:
		return carsGreenNoPed
	}
	return carsGreen
}

func carsGreenNoPedHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	switch ev.ID {
	case librehsm.EventEntry:
		c := crossing(m)
		c.startTimer(EventTimeoutCarsGreenMin, c.timing.CarsGreenMin)
	case EventTimeoutCarsGreenMin:
		return carsGreenInt
	case EventPedsWaiting:
		return carsGreenPedWait
	}
	return carsGreenNoPed
}

func carsGreenIntHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	if ev.ID == EventPedsWaiting {
		return carsYellow
	}
	return carsGreenInt
}

func carsGreenPedWaitHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	if ev.ID == EventTimeoutCarsGreenMin {
		return carsYellow
	}
	return carsGreenPedWait
}

func carsYellowHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	switch ev.ID {
	case librehsm.EventEntry:
		c := crossing(m)
		c.setCars(CarsYellow)
		c.startTimer(EventTimeoutCarsYellow, c.timing.CarsYellow)
	case EventTimeoutCarsYellow:
		return pedsEnabled
	}
	return carsYellow
}

func pedsEnabledHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	switch ev.ID {
	case librehsm.EventInitial:
		return pedsWalk
	case librehsm.EventExit:
		crossing(m).setPeds(PedsDontWalk)
	}
	return pedsEnabled
}

func pedsWalkHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	switch ev.ID {
	case librehsm.EventEntry:
		c := crossing(m)
		c.startTimer(EventTimeoutPedsWalk, c.timing.PedsWalk)
		c.setPeds(PedsWalk)
	case EventTimeoutPedsWalk:
		return pedsFlash
	}
	return pedsWalk
}

func pedsFlashHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	c := crossing(m)
	switch ev.ID {
	case librehsm.EventEntry:
		c.flashes = c.timing.Flashes
		c.setPeds(PedsBlank)
		c.startTimer(EventTimeoutPedsFlash, c.timing.PedsFlash)
	case EventTimeoutPedsFlash:
		c.flashes--
		if c.flashes == 0 {
			return carsEnabled
		}
		if c.flashes%2 == 1 {
			c.setPeds(PedsWalk)
		} else {
			c.setPeds(PedsBlank)
		}
		c.startTimer(EventTimeoutPedsFlash, c.timing.PedsFlash)
	}
	return pedsFlash
}

func offlineHandler(m *librehsm.Machine, ev librehsm.Event) librehsm.StateID {
	c := crossing(m)
	switch ev.ID {
	case librehsm.EventEntry:
		c.setCars(CarsRed)
		c.setPeds(PedsDontWalk)
		c.startTimer(EventTimeoutOffFlash, c.timing.OffFlash)
	case EventTimeoutOffFlash:
		if c.lights.Cars == CarsRed {
			c.setCars(CarsBlank)
		} else {
			c.setCars(CarsRed)
		}
		if c.lights.Peds == PedsDontWalk {
			c.setPeds(PedsBlank)
		} else {
			c.setPeds(PedsDontWalk)
		}
		c.startTimer(EventTimeoutOffFlash, c.timing.OffFlash)
	case EventOn:
		return operational
	}
	return offline
}
