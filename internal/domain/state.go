package domain

import "strings"

// State is the last-known lifecycle state of a container.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
	StateUnknown State = "UNKNOWN"
)

func (s State) IsValid() bool {
	switch s {
	case StateStopped, StateRunning, StateUnknown:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// ParseState maps runtime output to a State. Anything unrecognized is
// StateUnknown; RUNNING wins when both words appear.
func ParseState(output string) State {
	upper := strings.ToUpper(output)
	switch {
	case strings.Contains(upper, string(StateRunning)):
		return StateRunning
	case strings.Contains(upper, string(StateStopped)):
		return StateStopped
	default:
		return StateUnknown
	}
}
