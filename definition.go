package librehsm

import (
	"fmt"
)

// Definition collects states before they are sealed into a Tree
type Definition struct {
	states []state
	names  map[string]StateID
	errs   []error
}

// NewDefinition creates a new state tree builder
func NewDefinition() *Definition {
	return &Definition{
		names: make(map[string]StateID),
	}
}

// State adds a state below parent (None for a root) and returns its ID.
// Parents must be added before their children, so the tree cannot contain
// cycles. Problems are reported by Build.
func (d *Definition) State(name string, parent StateID, h Handler) StateID {
	id := StateID(len(d.states))
	depth := 0

	switch {
	case parent == None:
	case parent < 0 || int(parent) >= len(d.states):
		d.errs = append(d.errs, fmt.Errorf("state %q references undefined parent %d", name, parent))
		parent = None
	default:
		depth = d.states[parent].depth + 1
	}

	if h == nil {
		d.errs = append(d.errs, fmt.Errorf("state %q has no handler", name))
	}
	if _, ok := d.names[name]; ok {
		d.errs = append(d.errs, fmt.Errorf("duplicate state name %q", name))
	} else {
		d.names[name] = id
	}
	if depth >= MaxDepth {
		d.errs = append(d.errs, fmt.Errorf("state %q nested %d levels deep, limit is %d", name, depth+1, MaxDepth))
	}

	d.states = append(d.states, state{
		name:    name,
		parent:  parent,
		depth:   depth,
		handler: h,
	})
	return id
}

// StateFunc is State with a plain handler function
func (d *Definition) StateFunc(name string, parent StateID, fn func(*Machine, Event) StateID) StateID {
	if fn == nil {
		return d.State(name, parent, nil)
	}
	return d.State(name, parent, HandlerFunc(fn))
}

// Validate checks the definition for errors
func (d *Definition) Validate() error {
	if len(d.states) == 0 {
		return fmt.Errorf("%w: no states defined", ErrInvalidDefinition)
	}
	if len(d.errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, d.errs[0])
	}
	return nil
}

// Build seals the definition into an immutable Tree
func (d *Definition) Build() (*Tree, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	t := &Tree{
		states: make([]state, len(d.states)),
		names:  make(map[string]StateID, len(d.names)),
	}
	copy(t.states, d.states)
	for name, id := range d.names {
		t.names[name] = id
	}
	return t, nil
}

// Tree is a sealed, read-only forest of states. It may be shared by any
// number of machines.
type Tree struct {
	states []state
	names  map[string]StateID
}

// Len returns the number of states in the tree
func (t *Tree) Len() int {
	return len(t.states)
}

// Valid reports whether id names a state of this tree
func (t *Tree) Valid(id StateID) bool {
	return id >= 0 && int(id) < len(t.states)
}

// Name returns the state's name, or "<none>" for None
func (t *Tree) Name(id StateID) string {
	if id == None {
		return "<none>"
	}
	if !t.Valid(id) {
		return fmt.Sprintf("<invalid %d>", int(id))
	}
	return t.states[id].name
}

// Lookup finds a state by name
func (t *Tree) Lookup(name string) (StateID, bool) {
	id, ok := t.names[name]
	return id, ok
}

// Parent returns the parent of id, None for roots
func (t *Tree) Parent(id StateID) StateID {
	if !t.Valid(id) {
		return None
	}
	return t.states[id].parent
}

// Depth returns the number of ancestors of id
func (t *Tree) Depth(id StateID) int {
	if !t.Valid(id) {
		return -1
	}
	return t.states[id].depth
}

// IsAncestor reports whether ancestor is a proper ancestor of target.
// None is an ancestor of every state.
func (t *Tree) IsAncestor(ancestor, target StateID) bool {
	if !t.Valid(target) {
		return false
	}
	if ancestor == None {
		return true
	}
	for p := t.states[target].parent; p != None; p = t.states[p].parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// LCA returns the least common ancestor of a and b. A state that is an
// ancestor of the other is the LCA itself. States of different trees meet
// at None.
func (t *Tree) LCA(a, b StateID) StateID {
	if a == None || b == None {
		return None
	}
	if a == b || t.IsAncestor(a, b) {
		return a
	}
	if t.IsAncestor(b, a) {
		return b
	}
	for p := t.Parent(a); p != None; p = t.Parent(p) {
		if t.IsAncestor(p, b) {
			return p
		}
	}
	return None
}

// handler returns the handler of a valid state
func (t *Tree) handler(id StateID) Handler {
	return t.states[id].handler
}
