package vtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vango-dev/liveview/pkg/protocol"
	"github.com/vango-dev/liveview/pkg/server"
)

// ErrTransportClosed is returned by Send after Close.
var ErrTransportClosed = errors.New("vtest: transport closed")

var _ server.FramedTransport = (*Transport)(nil)

// Transport is an in-memory server.Transport that records every message.
//
// When the session hands it a framer, each message is encoded to a frame and
// decoded back before it is recorded, so tests see exactly what a client on
// the wire would receive.
type Transport struct {
	mu       sync.Mutex
	framer   *protocol.Framer
	messages []*protocol.Message
	bytes    int
	closed   bool
	sendErr  error
	changed  chan struct{}
}

// NewTransport creates an empty transport.
func NewTransport() *Transport {
	return &Transport{changed: make(chan struct{})}
}

// UseFramer implements server.FramedTransport.
func (t *Transport) UseFramer(f *protocol.Framer) {
	t.mu.Lock()
	t.framer = f
	t.mu.Unlock()
}

// Send records msg.
func (t *Transport) Send(ctx context.Context, msg *protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sendErr != nil {
		return t.sendErr
	}
	if t.closed {
		return ErrTransportClosed
	}

	if t.framer != nil {
		data, err := t.framer.Encode(msg)
		if err != nil {
			return err
		}
		decoded, err := t.framer.Decode(data)
		if err != nil {
			return err
		}
		t.bytes += len(data)
		msg = decoded
	}

	t.messages = append(t.messages, msg)
	t.notifyLocked()
	return nil
}

// Close marks the transport closed. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.notifyLocked()
	}
	return nil
}

func (t *Transport) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// FailSends makes every later Send return err. A nil err restores sending.
func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}

// Messages returns a copy of the recorded messages in send order.
func (t *Transport) Messages() []*protocol.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*protocol.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of recorded messages.
func (t *Transport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Last returns the most recent message, or nil.
func (t *Transport) Last() *protocol.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[len(t.messages)-1]
}

// OfType returns the recorded messages of type ft.
func (t *Transport) OfType(ft protocol.FrameType) []*protocol.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*protocol.Message
	for _, m := range t.messages {
		if m.Type == ft {
			out = append(out, m)
		}
	}
	return out
}

// BytesSent returns the total frame size sent through the framer.
func (t *Transport) BytesSent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

// Wait blocks until cond holds for the recorded messages or timeout elapses.
// It reports whether cond held.
func (t *Transport) Wait(timeout time.Duration, cond func(msgs []*protocol.Message) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		t.mu.Lock()
		ok := cond(t.messages)
		changed := t.changed
		t.mu.Unlock()
		if ok {
			return true
		}

		select {
		case <-changed:
		case <-deadline.C:
			return false
		}
	}
}

// WaitType waits for the first message of type ft.
func (t *Transport) WaitType(timeout time.Duration, ft protocol.FrameType) (*protocol.Message, bool) {
	var found *protocol.Message
	ok := t.Wait(timeout, func(msgs []*protocol.Message) bool {
		for _, m := range msgs {
			if m.Type == ft {
				found = m
				return true
			}
		}
		return false
	})
	return found, ok
}

// WaitClosed waits for Close.
func (t *Transport) WaitClosed(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		t.mu.Lock()
		closed := t.closed
		changed := t.changed
		t.mu.Unlock()
		if closed {
			return true
		}

		select {
		case <-changed:
		case <-deadline.C:
			return false
		}
	}
}
