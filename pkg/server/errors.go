package server

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned by operations on a terminated session.
	ErrSessionClosed = errors.New("server: session closed")

	// ErrSessionNotFound is returned for an ID with no live session.
	ErrSessionNotFound = errors.New("server: session not found")

	// ErrEventQueueFull is returned when an event is dropped because the
	// session's queue is at MaxEventQueue.
	ErrEventQueueFull = errors.New("server: event queue full")

	// ErrMaxSessionsReached is returned by SessionManager.Add at capacity.
	ErrMaxSessionsReached = errors.New("server: max sessions reached")

	// ErrAlreadyMounted is returned by a second Mount, and by Add for an ID
	// that is already live.
	ErrAlreadyMounted = errors.New("server: session already mounted")

	// ErrMountFailed is returned by Mount, Start and QueueEvent on a session
	// whose Mount already failed. A failed session is never mounted.
	ErrMountFailed = errors.New("server: mount failed")

	// ErrNotMounted is returned when events arrive before Mount.
	ErrNotMounted = errors.New("server: session not mounted")

	// ErrUnknownView is returned for a view name with no registered factory.
	ErrUnknownView = errors.New("server: unknown view")

	// ErrNoConnection is returned by Send after the transport closed.
	ErrNoConnection = errors.New("server: no connection")
)

// SessionError attaches the session and the failed operation to an error.
type SessionError struct {
	SessionID string
	Op        string
	Err       error
}

func NewSessionError(sessionID, op string, err error) *SessionError {
	return &SessionError{SessionID: sessionID, Op: op, Err: err}
}

func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return "server: " + e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("server: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// MountError reports a view whose Mount or first render failed. The session
// never became live, so the client must not retry on the same ID.
type MountError struct {
	SessionID string
	View      string
	Err       error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("server: mount %s in session %s: %v", e.View, e.SessionID, e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

// ProtocolError describes a client message the server could not accept:
// a frame that does not decode or a type the client must not send.
type ProtocolError struct {
	SessionID string
	Op        string
	Message   string
}

func NewProtocolError(sessionID, op, message string) *ProtocolError {
	return &ProtocolError{SessionID: sessionID, Op: op, Message: message}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server: session %s: %s: %s", e.SessionID, e.Op, e.Message)
}
