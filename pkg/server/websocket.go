package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/liveview/pkg/dispatch"
	"github.com/vango-dev/liveview/pkg/protocol"
)

// WebSocketTransport carries framed protocol messages over a gorilla
// WebSocket connection.
type WebSocketTransport struct {
	conn   *websocket.Conn
	config *SessionConfig
	framer *protocol.Framer
	logger *slog.Logger

	mu        sync.Mutex // Serializes conn writes
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	bytesSent atomic.Uint64
	bytesRecv atomic.Uint64
}

// NewWebSocketTransport wraps an upgraded connection.
func NewWebSocketTransport(conn *websocket.Conn, config *SessionConfig, logger *slog.Logger) *WebSocketTransport {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketTransport{
		conn:   conn,
		config: config,
		framer: config.framer(),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// UseFramer implements FramedTransport.
func (t *WebSocketTransport) UseFramer(f *protocol.Framer) {
	t.mu.Lock()
	t.framer = f
	t.mu.Unlock()
}

// Send encodes msg and writes it as one binary message.
func (t *WebSocketTransport) Send(ctx context.Context, msg *protocol.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return ErrNoConnection
	}

	data, err := t.framer.Encode(msg)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(t.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && (t.config.WriteTimeout <= 0 || d.Before(deadline)) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)

	if err := t.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	t.bytesSent.Add(uint64(len(data)))
	return nil
}

// Close sends a WebSocket close frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed.Store(true)
		close(t.done)
		t.conn.SetWriteDeadline(time.Now().Add(time.Second))
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.mu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// BytesSent returns the number of frame bytes written.
func (t *WebSocketTransport) BytesSent() uint64 {
	return t.bytesSent.Load()
}

// BytesReceived returns the number of frame bytes read.
func (t *WebSocketTransport) BytesReceived() uint64 {
	return t.bytesRecv.Load()
}

// ReadLoop reads frames until the connection fails or the client closes,
// queueing every event on s and answering pings. It blocks; callers
// terminate the session when it returns.
func (t *WebSocketTransport) ReadLoop(s *Session) {
	if t.config.MaxMessageSize > 0 {
		t.conn.SetReadLimit(t.config.MaxMessageSize)
	}

	for {
		if t.config.ReadTimeout > 0 {
			t.conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		}

		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) && !t.closed.Load() {
				t.logger.Warn("read error", "error", err)
			}
			return
		}
		t.bytesRecv.Add(uint64(len(data)))

		if mt != websocket.BinaryMessage {
			t.protocolError(s, "read", "text frames are not supported")
			continue
		}

		msg, err := t.framer.Decode(data)
		if err != nil {
			t.protocolError(s, "decode", err.Error())
			continue
		}

		switch msg.Type {
		case protocol.FrameEvent:
			err := s.QueueEvent(&dispatch.Event{
				Seq:        msg.Seq,
				Target:     msg.Target,
				Handler:    msg.Handler,
				Payload:    msg.Payload,
				ReceivedAt: time.Now(),
			})
			if errors.Is(err, dispatch.ErrSessionTerminated) {
				return
			}

		case protocol.FramePing:
			if err := t.Send(context.Background(), protocol.NewPong(msg)); err != nil {
				return
			}

		case protocol.FramePong:
			t.logger.Debug("received pong", "rtt_ms", time.Now().UnixMilli()-int64(msg.Timestamp))

		case protocol.FrameClose:
			t.logger.Debug("client closing", "reason", msg.Reason)
			return

		default:
			t.protocolError(s, "read", "unexpected "+msg.Type.String()+" frame")
		}
	}
}

func (t *WebSocketTransport) protocolError(s *Session, op, message string) {
	err := NewProtocolError(s.ID, op, message)
	t.logger.Warn("protocol error", "error", err)
	if serr := t.Send(context.Background(), protocol.NewError(0, protocol.CodeInvalidMessage, message)); serr != nil {
		t.logger.Debug("protocol error reply not sent", "error", serr)
	}
}

// Heartbeat sends a ping every HeartbeatInterval until the transport
// closes or a write fails.
func (t *WebSocketTransport) Heartbeat() {
	if t.config.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(t.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.Send(context.Background(), protocol.NewPing()); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}
