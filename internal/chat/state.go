package chat

import "fmt"

// State is the controller's position in the turn lifecycle.
type State int

const (
	StateIdle State = iota
	StateUserMessageCommitted
	StateAwaitingCompletion
	StateRevealing
	StateCommitted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                 "idle",
	StateUserMessageCommitted: "user_message_committed",
	StateAwaitingCompletion:   "awaiting_completion",
	StateRevealing:            "revealing",
	StateCommitted:            "committed",
	StateFailed:               "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Busy reports whether a turn is in flight.
func (s State) Busy() bool {
	return s != StateIdle
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
