package worker

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a Session. States only move forward.
type State int32

const (
	Disconnected State = iota
	Connected
	Initialized
	Stepping
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Initialized:
		return "initialized"
	case Stepping:
		return "stepping"
	case ShuttingDown:
		return "shutting_down"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrProtocol means the server answered with something the session does not
// expect at that point.
var ErrProtocol = errors.New("worker: protocol error")

// SessionError is a fatal session failure with the context it happened in.
type SessionError struct {
	InstanceID int
	Step       int
	State      State
	Err        error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("instance %d: step %d (%s): %v", e.InstanceID, e.Step, e.State, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
