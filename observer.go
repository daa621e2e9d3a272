package librehsm

// Observer is notified about what a machine does. Methods run synchronously
// on the dispatching goroutine and must not call Dispatch.
type Observer interface {
	// Dispatched is called once an event has been offered to every active state
	Dispatched(m *Machine, ev Event, leaf StateID)
	// Deferred is called after ev was queued; queued is the new queue length
	Deferred(m *Machine, ev Event, queued int)
	// Dropped is called when ev could not be queued
	Dropped(m *Machine, ev Event)
	// Transitioned is called after the active leaf changed
	Transitioned(m *Machine, from, to StateID)
}

type nopObserver struct{}

func (nopObserver) Dispatched(*Machine, Event, StateID) {}
func (nopObserver) Deferred(*Machine, Event, int) {}
func (nopObserver) Dropped(*Machine, Event) {}
func (nopObserver) Transitioned(*Machine, StateID, StateID) {}

// StateChangeFunc adapts a plain callback to an Observer that only cares
// about leaf changes
type StateChangeFunc func(from, to StateID)

func (StateChangeFunc) Dispatched(*Machine, Event, StateID) {}
func (StateChangeFunc) Deferred(*Machine, Event, int) {}
func (StateChangeFunc) Dropped(*Machine, Event) {}

// Transitioned calls f(from, to)
func (f StateChangeFunc) Transitioned(_ *Machine, from, to StateID) {
	f(from, to)
}
