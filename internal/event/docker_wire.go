package event

import (
	"errors"
	"time"

	"github.com/docker/docker/api/types/events"

	"github.com/auto-dns/nodehostd/internal/domain"
)

// StateChange is a container state observed from the runtime's own event
// stream, ahead of the next poll.
type StateChange struct {
	Name  string
	State domain.State
	At    time.Time
}

func fromEventsMessage(msg events.Message) (StateChange, error) {
	var st domain.State
	switch msg.Action {
	case events.ActionStart:
		st = domain.StateRunning
	case events.ActionStop, events.ActionDie:
		st = domain.StateStopped
	default:
		return StateChange{}, NewUnsupportedEventTypeError(msg.Action)
	}
	name := msg.Actor.Attributes["name"]
	if name == "" {
		return StateChange{}, errors.New("event without container name")
	}
	return StateChange{
		Name:  name,
		State: st,
		At:    time.Unix(0, msg.TimeNano),
	}, nil
}
