package dispatch

import "time"

// Event is one client interaction addressed to a view or component.
type Event struct {
	// Seq is the client's sequence number, echoed on replies.
	Seq uint64

	// Target is a component ID, or empty for the root view.
	Target string

	// Handler names the allow-listed handler to invoke.
	Handler string

	// Payload holds the handler arguments.
	Payload map[string]string

	// ReceivedAt is when the transport delivered the event.
	ReceivedAt time.Time
}

// NewEvent creates an event stamped with the current time.
func NewEvent(target, handler string, payload map[string]string) *Event {
	return &Event{
		Target:     target,
		Handler:    handler,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}
