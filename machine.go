package librehsm

import (
	"errors"
	"fmt"
	"log/slog"
)

// Machine is one running instance of a state tree.
//
// A Machine is not safe for concurrent use. Dispatch may be called again
// from inside a handler; such calls are deferred, not executed inline.
type Machine struct {
	tree    *Tree
	current StateID

	deferred     *Queue[Event]
	inTransition bool

	data         any
	startTimer   TimerStarter
	logger       *slog.Logger
	observer     Observer
	maxRedirects int
	queueCap     int
}

// MachineOption is a functional option for configuring a Machine
type MachineOption func(*Machine)

// WithData sets the application data handed to every handler via Data
func WithData(data any) MachineOption {
	return func(m *Machine) {
		m.data = data
	}
}

// WithLogger sets the logger for the machine
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithQueueCapacity sets the deferred-event queue capacity. Values below 1
// are raised to 1.
func WithQueueCapacity(n int) MachineOption {
	return func(m *Machine) {
		m.queueCap = n
	}
}

// WithMaxRedirects bounds how many times a single transition may be
// restarted by handlers redirecting during EXIT, ENTRY or INITIAL
func WithMaxRedirects(n int) MachineOption {
	return func(m *Machine) {
		m.maxRedirects = n
	}
}

// WithTimerStarter installs the callback used by StartTimer
func WithTimerStarter(fn TimerStarter) MachineOption {
	return func(m *Machine) {
		m.startTimer = fn
	}
}

// WithObserver sets an observer notified about dispatches, deferrals and
// transitions
func WithObserver(o Observer) MachineOption {
	return func(m *Machine) {
		m.observer = o
	}
}

// New creates a machine positioned at initial. No handler runs until the
// first dispatch; dispatch EventInitial (or call Start) to enter initial and
// descend into its default children.
func New(tree *Tree, initial StateID, opts ...MachineOption) (*Machine, error) {
	if tree == nil {
		return nil, errors.New("nil state tree")
	}
	if !tree.Valid(initial) {
		return nil, fmt.Errorf("initial state: %w: %d", ErrUnknownState, int(initial))
	}

	m := &Machine{
		tree:         tree,
		current:      initial,
		logger:       Logger,
		observer:     nopObserver{},
		maxRedirects: DefaultMaxRedirects,
		queueCap:     DefaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = Logger
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	if m.maxRedirects < 0 {
		m.maxRedirects = 0
	}
	if m.queueCap < 1 {
		m.logger.Warn("deferred queue capacity raised to 1", "requested", m.queueCap)
		m.queueCap = 1
	}
	m.deferred = NewQueue[Event](m.queueCap)

	return m, nil
}

// Start enters the initial state, shorthand for Dispatch(EventInitial)
func (m *Machine) Start() error {
	return m.Dispatch(EventInitial)
}

// Dispatch processes an event with a zero argument
func (m *Machine) Dispatch(id EventID) error {
	return m.DispatchArg(id, 0)
}

// DispatchArg processes an event.
//
// The event is offered to the active leaf and every one of its ancestors.
// The nearest state returning another state picks the transition target;
// states further up still see the event. Afterwards every event that was
// queued when the event completed is replayed once.
//
// Called while another dispatch on the same machine is running, the event
// is only queued. The returned error joins everything that went wrong:
// dropped deferrals and broken transitions. The machine always remains in
// a valid state.
func (m *Machine) DispatchArg(id EventID, arg int32) error {
	ev := Event{ID: id, Arg: arg}

	if m.inTransition {
		return m.deferEvent(ev)
	}

	m.inTransition = true
	defer func() {
		m.inTransition = false
	}()

	var errs []error
	if err := m.process(ev); err != nil {
		errs = append(errs, err)
	}

	// Only what is queued now is replayed; anything deferred again waits for
	// the next top-level dispatch.
	n := m.deferred.Len()
	for i := 0; i < n && !m.deferred.Empty(); i++ {
		if err := m.process(m.deferred.Pop()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// process runs one event through the active states
func (m *Machine) process(ev Event) error {
	leaf := m.current

	if ev.ID == EventInitial {
		to, err := m.transition(None, leaf)
		return m.settle(leaf, to, err)
	}

	if !ev.ID.Reserved() {
		m.logger.Debug("dispatching event", "event", ev.ID, "arg", ev.Arg, "state", m.tree.Name(leaf))
	}

	target := leaf
	chosen := false
	for s := leaf; s != None; s = m.tree.Parent(s) {
		res := m.tree.handler(s).Handle(m, ev)
		if !chosen && res != s {
			target = res
			chosen = true
		}
	}

	m.observer.Dispatched(m, ev, leaf)

	if target == None {
		m.logger.Debug("event deferred", "event", ev.ID, "state", m.tree.Name(leaf))
		return m.deferEvent(ev)
	}
	if target == leaf {
		return nil
	}
	to, err := m.transition(leaf, target)
	return m.settle(leaf, to, err)
}

// settle adopts the result of a transition
func (m *Machine) settle(from StateID, to StateID, err error) error {
	if m.tree.Valid(to) {
		m.current = to
	}
	if m.current != from {
		m.observer.Transitioned(m, from, m.current)
	}
	return err
}

// deferEvent queues ev for the next replay, dropping it when the queue is full
func (m *Machine) deferEvent(ev Event) error {
	if err := m.deferred.Push(ev); err != nil {
		m.logger.Warn("dropping deferred event", "event", ev.ID, "arg", ev.Arg,
			"state", m.tree.Name(m.current), "capacity", m.deferred.Cap())
		m.observer.Dropped(m, ev)
		return fmt.Errorf("defer %s: %w", ev.ID, err)
	}
	m.observer.Deferred(m, ev, m.deferred.Len())
	return nil
}

// Tree returns the state tree the machine runs on
func (m *Machine) Tree() *Tree {
	return m.tree
}

// Data returns the application data set with WithData
func (m *Machine) Data() any {
	return m.data
}

// CurrentState returns the active leaf state
func (m *Machine) CurrentState() StateID {
	return m.current
}

// IsIn reports whether s is the active leaf or one of its ancestors
func (m *Machine) IsIn(s StateID) bool {
	return m.current == s || m.tree.IsAncestor(s, m.current)
}

// IsAncestor reports whether ancestor is a proper ancestor of target
func (m *Machine) IsAncestor(ancestor, target StateID) bool {
	return m.tree.IsAncestor(ancestor, target)
}

// Deferred returns the number of queued deferred events
func (m *Machine) Deferred() int {
	return m.deferred.Len()
}

// Logger returns the machine's logger
func (m *Machine) Logger() *slog.Logger {
	return m.logger
}
