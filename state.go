package librehsm

// Handler processes an event on behalf of one state.
//
// The returned StateID decides what happens next: the handling state itself
// means "stay", any other state requests a transition to it, and None defers
// the event until the next top-level dispatch. For ENTRY and EXIT a returned
// state other than the handling state redirects the running transition; for
// INITIAL it names the default child to descend into.
type Handler interface {
	Handle(m *Machine, ev Event) StateID
}

// HandlerFunc adapts an ordinary function to the Handler interface
type HandlerFunc func(m *Machine, ev Event) StateID

// Handle calls f(m, ev)
func (f HandlerFunc) Handle(m *Machine, ev Event) StateID {
	return f(m, ev)
}

// state is one immutable node of a Tree
type state struct {
	name    string
	parent  StateID
	depth   int
	handler Handler
}
