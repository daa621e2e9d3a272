package librehsm

import (
	"fmt"
)

// redirect is a transition requested by a handler while EXIT, ENTRY or
// INITIAL processing was under way. It pre-empts the running transition.
type redirect struct {
	from StateID
	to   StateID
}

// transition moves the machine from the active leaf from to the target to
// and returns the leaf finally reached. from may be None when the machine is
// bootstrapped, in which case no state is exited.
//
// Redirects restart the transition from the state that raised them. The
// restarts are bounded by maxRedirects; when the bound is hit the state that
// raised the last redirect is returned together with ErrRedirectLimit.
func (m *Machine) transition(from, to StateID) (StateID, error) {
	for restarts := 0; ; restarts++ {
		if !m.tree.Valid(to) {
			return from, fmt.Errorf("transition from %s: %w: %d", m.tree.Name(from), ErrUnknownState, int(to))
		}
		if restarts > m.maxRedirects {
			return from, fmt.Errorf("transition %s -> %s after %d restarts: %w",
				m.tree.Name(from), m.tree.Name(to), restarts-1, ErrRedirectLimit)
		}

		m.logger.Debug("transition", "from", m.tree.Name(from), "to", m.tree.Name(to))

		leaf, r, err := m.step(from, to)
		if err != nil || r == nil {
			return leaf, err
		}

		m.logger.Debug("transition redirected", "by", m.tree.Name(r.from), "to", m.tree.Name(r.to))
		from, to = r.from, r.to
	}
}

// step runs one attempt of a transition: the exit phase up to the LCA, then
// the entry and initial phases down to a leaf.
func (m *Machine) step(from, to StateID) (StateID, *redirect, error) {
	lca := m.tree.LCA(from, to)

	for s := from; s != lca; s = m.tree.Parent(s) {
		res := m.deliver(s, Event{ID: EventExit})
		if redirected(s, res) {
			return s, &redirect{from: s, to: res}, nil
		}
	}

	if lca == to {
		return to, nil, nil
	}
	return m.enter(lca, to)
}

// enter delivers ENTRY to every state below from down to to, then follows
// INITIAL transitions until a state declares itself the leaf. from must be
// None or an ancestor of to.
func (m *Machine) enter(from, to StateID) (StateID, *redirect, error) {
	var path [MaxDepth]StateID

	for {
		n := 0
		for s := to; s != from; s = m.tree.Parent(s) {
			path[n] = s
			n++
		}

		for i := n - 1; i >= 0; i-- {
			s := path[i]
			res := m.deliver(s, Event{ID: EventEntry})
			if redirected(s, res) {
				return s, &redirect{from: s, to: res}, nil
			}
		}

		next := m.deliver(to, Event{ID: EventInitial})
		if next == to || next == None {
			return to, nil, nil
		}
		if !m.tree.Valid(next) {
			return to, nil, fmt.Errorf("initial transition in %s: %w: %d", m.tree.Name(to), ErrUnknownState, int(next))
		}
		if !m.tree.IsAncestor(to, next) {
			return to, nil, fmt.Errorf("initial transition %s -> %s: %w", m.tree.Name(to), m.tree.Name(next), ErrInvalidInitial)
		}

		m.logger.Debug("initial transition", "composite", m.tree.Name(to), "to", m.tree.Name(next))
		from, to = to, next
	}
}

// deliver invokes the handler of s with ev
func (m *Machine) deliver(s StateID, ev Event) StateID {
	if ev.ID.Reserved() && ev.ID != EventDo {
		m.logger.Debug("delivering event", "event", ev.ID, "state", m.tree.Name(s))
	}
	return m.tree.handler(s).Handle(m, ev)
}

// redirected reports whether a handler of s returned a transition request.
// None carries no meaning outside dispatch and is treated as "stay".
func redirected(s, res StateID) bool {
	return res != s && res != None
}
