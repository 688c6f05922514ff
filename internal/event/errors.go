package event

import (
	"fmt"

	"github.com/docker/docker/api/types/events"
)

type UnsupportedEventTypeError struct {
	action events.Action
}

func NewUnsupportedEventTypeError(action events.Action) *UnsupportedEventTypeError {
	return &UnsupportedEventTypeError{action: action}
}

func (e *UnsupportedEventTypeError) Error() string {
	return fmt.Sprintf("unsupported event type: %s", e.action)
}
