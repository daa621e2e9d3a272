package librehsm

import (
	"fmt"
	"io"
	"log/slog"
)

// Test events
const (
	evTrigger EventID = EventCustom + iota
	evGo
	evBack
	evHold
	evPing
)

var eventNames = map[EventID]string{
	EventEntry:   "ENTRY",
	EventInitial: "INITIAL",
	EventDo:      "DO",
	EventExit:    "EXIT",
	evTrigger:    "TRIGGER",
	evGo:         "GO",
	evBack:       "BACK",
	evHold:       "HOLD",
	evPing:       "PING",
}

// recorder collects "EVENT(state)" entries in delivery order
type recorder struct {
	trace []string
}

func (r *recorder) record(state string, ev Event) {
	r.trace = append(r.trace, fmt.Sprintf("%s(%s)", eventNames[ev.ID], state))
}

func (r *recorder) reset() {
	r.trace = nil
}

// quietLogger discards everything
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
