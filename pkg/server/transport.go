package server

import (
	"context"

	"github.com/vango-dev/liveview/pkg/protocol"
)

// Transport carries messages from a session to its client.
//
// Send is only called from one goroutine at a time per session. Close may be
// called concurrently with Send and more than once.
type Transport interface {
	Send(ctx context.Context, msg *protocol.Message) error
	Close() error
}

// FramedTransport is a Transport that encodes messages itself. A session
// hands it the framer built from its SessionConfig before sending anything.
type FramedTransport interface {
	Transport
	UseFramer(f *protocol.Framer)
}

// discardTransport drops every message. It backs the disconnected session
// that renders a view's first page.
type discardTransport struct{}

func (discardTransport) Send(context.Context, *protocol.Message) error { return nil }
func (discardTransport) Close() error                                  { return nil }
