package vtest

import (
	"errors"
	"fmt"

	"github.com/vango-dev/liveview/pkg/protocol"
	"github.com/vango-dev/liveview/pkg/render"
	"github.com/vango-dev/liveview/pkg/vdom"
)

// Client mirror errors.
var (
	// ErrNotMounted is returned for patches received before a Mount.
	ErrNotMounted = errors.New("vtest: patches before mount")

	// ErrSequenceGap is returned when a Patches message skips or repeats a
	// sequence number.
	ErrSequenceGap = errors.New("vtest: patch sequence gap")

	// ErrFingerprintMismatch is returned when the mirrored tree drifts from
	// the server's.
	ErrFingerprintMismatch = errors.New("vtest: fingerprint mismatch")
)

// Client mirrors what a browser client does with server messages: it keeps
// the tree from Mount, applies each Patches message with vdom.Apply and
// checks the result against the server's fingerprint.
type Client struct {
	SessionID   string
	Tree        *vdom.VNode
	Seq         uint64
	Fingerprint string

	// Errors holds every Error message received.
	Errors []*protocol.Message

	// CloseReason is set when a Close message is received.
	CloseReason string

	applied int
}

// NewClient creates an unmounted client.
func NewClient() *Client {
	return &Client{}
}

// Apply handles one server message.
func (c *Client) Apply(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.FrameMount:
		if fp := vdom.Fingerprint(msg.Tree); fp != msg.Fingerprint {
			return fmt.Errorf("%w: mount tree %s, server %s", ErrFingerprintMismatch, fp, msg.Fingerprint)
		}
		c.SessionID = msg.SessionID
		c.Tree = msg.Tree
		c.Fingerprint = msg.Fingerprint
		c.Seq = 0

	case protocol.FramePatches:
		if c.Tree == nil {
			return ErrNotMounted
		}
		if msg.Seq != c.Seq+1 {
			return fmt.Errorf("%w: got %d after %d", ErrSequenceGap, msg.Seq, c.Seq)
		}
		tree, err := vdom.Apply(c.Tree, msg.Patches)
		if err != nil {
			return fmt.Errorf("vtest: apply seq %d: %w", msg.Seq, err)
		}
		if fp := vdom.Fingerprint(tree); fp != msg.Fingerprint {
			return fmt.Errorf("%w: seq %d client %s, server %s", ErrFingerprintMismatch, msg.Seq, fp, msg.Fingerprint)
		}
		c.Tree = tree
		c.Seq = msg.Seq
		c.Fingerprint = msg.Fingerprint

	case protocol.FrameError:
		c.Errors = append(c.Errors, msg)

	case protocol.FrameClose:
		c.CloseReason = msg.Reason
	}
	return nil
}

// Sync applies every message t has recorded since the last Sync.
func (c *Client) Sync(t *Transport) error {
	msgs := t.Messages()
	for c.applied < len(msgs) {
		msg := msgs[c.applied]
		c.applied++
		if err := c.Apply(msg); err != nil {
			return err
		}
	}
	return nil
}

// Closed reports whether the server closed the session.
func (c *Client) Closed() bool {
	return c.CloseReason != ""
}

// LastError returns the most recent Error message, or nil.
func (c *Client) LastError() *protocol.Message {
	if len(c.Errors) == 0 {
		return nil
	}
	return c.Errors[len(c.Errors)-1]
}

// HTML renders the mirrored tree.
func (c *Client) HTML() (string, error) {
	if c.Tree == nil {
		return "", ErrNotMounted
	}
	return render.ToHTML(c.Tree)
}
