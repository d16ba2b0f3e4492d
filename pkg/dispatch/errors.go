package dispatch

import (
	"errors"
	"fmt"
)

// Reason classifies why an event did not produce a state change.
type Reason uint8

const (
	// UnknownTarget: the event addressed a component ID that is not bound.
	UnknownTarget Reason = iota + 1

	// HandlerNotAllowed: the handler is not on the target's allow-list.
	HandlerNotAllowed

	// HandlerExecution: the handler returned an error or panicked.
	HandlerExecution

	// RenderFailed: the renderer failed after the handler ran.
	RenderFailed

	// SessionTerminated: the session has been torn down.
	SessionTerminated

	// RateLimited: the session or handler token bucket is empty.
	RateLimited

	// Busy: the session's event queue is full.
	Busy
)

// String returns the string representation of the Reason.
func (r Reason) String() string {
	switch r {
	case UnknownTarget:
		return "UnknownTarget"
	case HandlerNotAllowed:
		return "HandlerNotAllowed"
	case HandlerExecution:
		return "HandlerExecution"
	case RenderFailed:
		return "RenderFailed"
	case SessionTerminated:
		return "SessionTerminated"
	case RateLimited:
		return "RateLimited"
	case Busy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// Code returns the wire code sent to clients in error messages.
func (r Reason) Code() string {
	switch r {
	case UnknownTarget:
		return "unknown_target"
	case HandlerNotAllowed:
		return "handler_not_allowed"
	case HandlerExecution:
		return "handler_error"
	case RenderFailed:
		return "render_error"
	case SessionTerminated:
		return "session_terminated"
	case RateLimited:
		return "rate_limited"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Reason, for use with errors.Is.
var (
	ErrUnknownTarget     = errors.New("dispatch: unknown target")
	ErrHandlerNotAllowed = errors.New("dispatch: handler not allowed")
	ErrHandlerExecution  = errors.New("dispatch: handler failed")
	ErrRenderFailed      = errors.New("dispatch: render failed")
	ErrSessionTerminated = errors.New("dispatch: session terminated")
	ErrRateLimited       = errors.New("dispatch: rate limited")
	ErrBusy              = errors.New("dispatch: session busy")
)

func (r Reason) sentinel() error {
	switch r {
	case UnknownTarget:
		return ErrUnknownTarget
	case HandlerNotAllowed:
		return ErrHandlerNotAllowed
	case HandlerExecution:
		return ErrHandlerExecution
	case RenderFailed:
		return ErrRenderFailed
	case SessionTerminated:
		return ErrSessionTerminated
	case RateLimited:
		return ErrRateLimited
	case Busy:
		return ErrBusy
	}
	return nil
}

// Rejected is returned for every event that did not change state.
// It never leaves the session in a different tree state than before.
type Rejected struct {
	Reason  Reason
	Target  string // Component ID, empty for the root view
	Handler string
	Err     error // Underlying cause, if any
}

// Reject creates a Rejected for ev.
func Reject(reason Reason, ev *Event, err error) *Rejected {
	r := &Rejected{Reason: reason, Err: err}
	if ev != nil {
		r.Target = ev.Target
		r.Handler = ev.Handler
	}
	return r
}

// Error returns the error message.
func (e *Rejected) Error() string {
	target := e.Target
	if target == "" {
		target = "root"
	}
	if e.Err != nil {
		return fmt.Sprintf("dispatch: %s: %s on %s: %v", e.Reason, e.Handler, target, e.Err)
	}
	return fmt.Sprintf("dispatch: %s: %s on %s", e.Reason, e.Handler, target)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Rejected) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the rejection's Reason.
func (e *Rejected) Is(target error) bool {
	s := e.Reason.sentinel()
	return s != nil && target == s
}

// ReasonOf returns the Reason of err if it is a rejection.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejected
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return 0, false
}

// HandlerError wraps an error returned by, or a panic raised in, an event handler.
type HandlerError struct {
	Target  string
	Handler string
	Panic   any    // Recovered value, nil if the handler returned an error
	Stack   []byte // Stack at the panic site
	Err     error
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("dispatch: handler %s panicked: %v", e.Handler, e.Panic)
	}
	return fmt.Sprintf("dispatch: handler %s: %v", e.Handler, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
