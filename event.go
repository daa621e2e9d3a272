package librehsm

import "strconv"

// EventID is a small ordinal naming an event
type EventID uint32

// Reserved event IDs. Application and timer events are allocated
// contiguously from EventCustom; timer events come first so that a timer's
// index is its ID minus EventCustom.
const (
	EventEntry EventID = iota
	EventInitial
	EventDo
	EventExit
	EventCustom
)

// Event carries an ID and a signed argument through the machine
type Event struct {
	ID  EventID
	Arg int32
}

func (id EventID) String() string {
	switch id {
	case EventEntry:
		return "ENTRY"
	case EventInitial:
		return "INITIAL"
	case EventDo:
		return "DO"
	case EventExit:
		return "EXIT"
	}
	return "CUSTOM+" + strconv.FormatUint(uint64(id-EventCustom), 10)
}

// Reserved reports whether id is one of ENTRY, INITIAL, DO or EXIT
func (id EventID) Reserved() bool {
	return id < EventCustom
}
