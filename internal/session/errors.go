package session

import (
	"errors"
	"strconv"
)

// Error kinds. Every failed operation returns an *Error that unwraps to one
// of these, so callers can test with errors.Is.
var (
	ErrAlreadyExists      = errors.New("session already exists")
	ErrNotFound           = errors.New("session not found")
	ErrSpawnFailure       = errors.New("failed to spawn shell")
	ErrNotRunning         = errors.New("session not running")
	ErrWriteFailure       = errors.New("failed to write to session")
	ErrTerminationTimeout = errors.New("session did not terminate within grace period")
	ErrLimitReached       = errors.New("maximum session limit reached")
	ErrInvalidName        = errors.New("invalid session name")
)

// Error describes a failed session operation.
type Error struct {
	Op   string
	Name string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + " " + strconv.Quote(e.Name) + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, name string, kind, err error) error {
	return &Error{Op: op, Name: name, Kind: kind, Err: err}
}
