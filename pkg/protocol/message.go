package protocol

import (
	"fmt"
	"time"

	"github.com/vango-dev/liveview/pkg/vdom"
)

// Error codes sent for failures outside event dispatch. Dispatch
// rejections use the code of their dispatch.Reason.
const (
	CodeInvalidMessage = "invalid_message"
	CodeInternal       = "internal"
)

// Close reasons.
const (
	CloseNormal         = "normal"
	CloseSessionExpired = "session_expired"
	CloseServerShutdown = "server_shutdown"
	CloseRateLimited    = "rate_limited"
	CloseError          = "error"
)

// Message is one protocol message. Type selects which fields are meaningful:
//
//	Mount    SessionID, Tree, Fingerprint
//	Patches  Seq, Patches, Fingerprint
//	Event    Seq, Target, Handler, Payload
//	Error    Seq, Code, Message
//	Ping     Timestamp
//	Pong     Timestamp
//	Close    Reason
type Message struct {
	Type        FrameType         `cbor:"1,keyasint"`
	SessionID   string            `cbor:"2,keyasint,omitempty"`
	Seq         uint64            `cbor:"3,keyasint,omitempty"`
	Tree        *vdom.VNode       `cbor:"4,keyasint,omitempty"`
	Patches     []vdom.Patch      `cbor:"5,keyasint,omitempty"`
	Fingerprint string            `cbor:"6,keyasint,omitempty"`
	Target      string            `cbor:"7,keyasint,omitempty"`
	Handler     string            `cbor:"8,keyasint,omitempty"`
	Payload     map[string]string `cbor:"9,keyasint,omitempty"`
	Code        string            `cbor:"10,keyasint,omitempty"`
	Message     string            `cbor:"11,keyasint,omitempty"`
	Timestamp   uint64            `cbor:"12,keyasint,omitempty"`
	Reason      string            `cbor:"13,keyasint,omitempty"`
}

// String returns a short description for logs.
func (m *Message) String() string {
	switch m.Type {
	case FrameMount:
		return fmt.Sprintf("Mount(%s)", m.SessionID)
	case FramePatches:
		return fmt.Sprintf("Patches(seq=%d, n=%d)", m.Seq, len(m.Patches))
	case FrameEvent:
		return fmt.Sprintf("Event(seq=%d, %s#%s)", m.Seq, m.Target, m.Handler)
	case FrameError:
		return fmt.Sprintf("Error(seq=%d, %s)", m.Seq, m.Code)
	case FrameClose:
		return fmt.Sprintf("Close(%s)", m.Reason)
	default:
		return m.Type.String()
	}
}

// NewMount creates the message carrying a session's first tree.
func NewMount(sessionID string, tree *vdom.VNode) *Message {
	return &Message{
		Type:        FrameMount,
		SessionID:   sessionID,
		Tree:        tree,
		Fingerprint: vdom.Fingerprint(tree),
	}
}

// NewPatches creates a patch message. fingerprint is that of the tree the
// patches produce, so clients can detect drift.
func NewPatches(seq uint64, patches []vdom.Patch, fingerprint string) *Message {
	return &Message{
		Type:        FramePatches,
		Seq:         seq,
		Patches:     patches,
		Fingerprint: fingerprint,
	}
}

// NewEvent creates a client event message.
func NewEvent(seq uint64, target, handler string, payload map[string]string) *Message {
	return &Message{
		Type:    FrameEvent,
		Seq:     seq,
		Target:  target,
		Handler: handler,
		Payload: payload,
	}
}

// NewError creates an error reply to the event numbered seq.
func NewError(seq uint64, code, message string) *Message {
	return &Message{
		Type:    FrameError,
		Seq:     seq,
		Code:    code,
		Message: message,
	}
}

// NewPing creates a ping stamped with the current time.
func NewPing() *Message {
	return &Message{Type: FramePing, Timestamp: uint64(time.Now().UnixMilli())}
}

// NewPong answers ping.
func NewPong(ping *Message) *Message {
	return &Message{Type: FramePong, Timestamp: ping.Timestamp}
}

// NewClose creates a close message.
func NewClose(reason string) *Message {
	return &Message{Type: FrameClose, Reason: reason}
}
