package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("instance not found")
	ErrNotRunning    = errors.New("container must be running")
	ErrSuspended     = errors.New("instance is suspended")
	ErrAlreadyExists = errors.New("instance already exists")
	ErrTimeout       = errors.New("timeout")
)

// RuntimeError is a failed call into the container runtime. Message carries
// the diagnostic text the runtime produced.
type RuntimeError struct {
	Op      string
	Name    string
	Message string
	Err     error
}

func NewRuntimeError(op, name, message string, err error) *RuntimeError {
	return &RuntimeError{Op: op, Name: name, Message: message, Err: err}
}

func (e *RuntimeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Name, msg)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// ValidationError represents a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}
