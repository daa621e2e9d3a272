package librehsm

import (
	"errors"
	"log/slog"
)

// StateID identifies a state by its index in a Tree
type StateID int

// None is the absent state. It is the parent of every root state and, when
// returned by a handler during dispatch, asks the machine to defer the event.
const None StateID = -1

// MaxDepth bounds the nesting of a state tree. Entry paths are kept in
// fixed-size arrays of this length.
const MaxDepth = 16

const (
	// DefaultQueueCapacity is the deferred-event queue size of a machine
	DefaultQueueCapacity = 5
	// DefaultMaxRedirects bounds how often one transition may be restarted
	// by handlers redirecting from EXIT, ENTRY or INITIAL
	DefaultMaxRedirects = 16
)

var (
	// ErrQueueFull is reported when a deferred event is dropped
	ErrQueueFull = errors.New("deferred event queue full")
	// ErrNoTimer is returned by StartTimer when no timer starter is installed
	ErrNoTimer = errors.New("no timer starter installed")
	// ErrRedirectLimit is returned when handlers keep redirecting a transition
	ErrRedirectLimit = errors.New("transition redirect limit exceeded")
	// ErrUnknownState is returned when a handler names a state outside the tree
	ErrUnknownState = errors.New("unknown state")
	// ErrInvalidInitial is returned when an INITIAL handler names a state that
	// is not a descendant of the composite state
	ErrInvalidInitial = errors.New("initial target is not a descendant")
	// ErrInvalidDefinition wraps every definition validation error
	ErrInvalidDefinition = errors.New("invalid definition")
)

// Logger is the default logger used when none is provided
var Logger = slog.Default()
