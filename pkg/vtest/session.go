package vtest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vango-dev/liveview/pkg/component"
	"github.com/vango-dev/liveview/pkg/dispatch"
	"github.com/vango-dev/liveview/pkg/protocol"
	"github.com/vango-dev/liveview/pkg/render"
	"github.com/vango-dev/liveview/pkg/server"
	"github.com/vango-dev/liveview/pkg/session"
)

// DefaultTimeout bounds every wait in the harness.
const DefaultTimeout = 5 * time.Second

// ErrStateNotFound is returned by LoadState when nothing is persisted.
var ErrStateNotFound = errors.New("vtest: no persisted state")

// TestSession runs a mounted, started session against an in-memory
// transport and a mirroring client.
//
// Example:
//
//	ts := vtest.NewSession(t, func() component.View { return &Counter{} }, renderer)
//	ts.MustEvent("", "increment", nil)
//	if got := ts.HTML(); !strings.Contains(got, "1") {
//	    t.Errorf("HTML() = %q", got)
//	}
type TestSession struct {
	*server.Session

	// Transport records the current connection's messages.
	Transport *Transport

	// Client mirrors the current connection's tree.
	Client *Client

	tb       testing.TB
	factory  func() component.View
	renderer render.Renderer
	store    session.Store
	opts     []server.SessionOption
	params   map[string]string
	view     component.View
	seq      uint64
}

// TestSessionOption configures a TestSession.
type TestSessionOption func(*TestSession)

// WithStore sets the store state is persisted to.
// Default: a session.MemoryStore closed with the test.
func WithStore(store session.Store) TestSessionOption {
	return func(ts *TestSession) {
		ts.store = store
	}
}

// WithParams sets the params passed to Mount.
func WithParams(params map[string]string) TestSessionOption {
	return func(ts *TestSession) {
		ts.params = params
	}
}

// WithSessionOptions passes options through to server.NewSession. They apply
// after the harness defaults.
func WithSessionOptions(opts ...server.SessionOption) TestSessionOption {
	return func(ts *TestSession) {
		ts.opts = append(ts.opts, opts...)
	}
}

// NewSession mounts and starts a session for a view made by factory. It
// fails the test if mounting fails. The session is terminated when the test
// ends.
func NewSession(tb testing.TB, factory func() component.View, renderer render.Renderer, opts ...TestSessionOption) *TestSession {
	tb.Helper()

	ts := &TestSession{
		tb:       tb,
		factory:  factory,
		renderer: renderer,
	}
	for _, opt := range opts {
		opt(ts)
	}
	if ts.store == nil {
		store := session.NewMemoryStore()
		tb.Cleanup(func() { store.Close() })
		ts.store = store
	}
	tb.Cleanup(func() {
		if ts.Session != nil {
			ts.Session.Terminate(protocol.CloseNormal)
		}
	})

	if err := ts.connect(""); err != nil {
		tb.Fatalf("mount: %v", err)
	}
	return ts
}

// connect mounts a fresh view on a new transport under id and starts it.
func (ts *TestSession) connect(id string) error {
	ts.view = ts.factory()
	ts.Transport = NewTransport()
	ts.Client = NewClient()

	opts := []server.SessionOption{
		server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	opts = append(opts, ts.opts...)
	opts = append(opts, server.WithStore(ts.store))
	if id != "" {
		opts = append(opts, server.WithSessionID(id))
	}

	ts.Session = server.NewSession(ts.view, ts.renderer, ts.Transport, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	if err := ts.Session.Mount(ctx, ts.params); err != nil {
		return err
	}
	if err := ts.Session.Start(context.Background()); err != nil {
		return err
	}
	return ts.Client.Sync(ts.Transport)
}

// View returns the current root view.
func (ts *TestSession) View() component.View {
	return ts.view
}

// Store returns the store state is persisted to.
func (ts *TestSession) Store() session.Store {
	return ts.store
}

// Event dispatches an event with the next client sequence number and syncs
// the client with whatever the session sent.
func (ts *TestSession) Event(target, handler string, payload map[string]string) (*server.Outcome, error) {
	ts.seq++
	ev := dispatch.NewEvent(target, handler, payload)
	ev.Seq = ts.seq

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	out, err := ts.Session.Dispatch(ctx, ev)

	if serr := ts.Client.Sync(ts.Transport); serr != nil {
		ts.tb.Errorf("client out of sync after %s#%s: %v", target, handler, serr)
	}
	return out, err
}

// MustEvent is Event that fails the test on error.
func (ts *TestSession) MustEvent(target, handler string, payload map[string]string) *server.Outcome {
	ts.tb.Helper()
	out, err := ts.Event(target, handler, payload)
	if err != nil {
		ts.tb.Fatalf("event %s#%s: %v", target, handler, err)
	}
	return out
}

// LastSeq returns the sequence number of the last event sent.
func (ts *TestSession) LastSeq() uint64 {
	return ts.seq
}

// HTML renders the client's mirrored tree, failing the test on error.
func (ts *TestSession) HTML() string {
	ts.tb.Helper()
	html, err := ts.Client.HTML()
	if err != nil {
		ts.tb.Fatalf("HTML: %v", err)
	}
	return html
}

// SimulateRefresh closes the connection and mounts a new view under the same
// session ID, as a page reload does. Persisted state carries over.
func (ts *TestSession) SimulateRefresh() error {
	return ts.reconnect(protocol.CloseNormal)
}

// SimulateServerRestart is SimulateRefresh after a server shutdown.
func (ts *TestSession) SimulateServerRestart() error {
	return ts.reconnect(protocol.CloseServerShutdown)
}

func (ts *TestSession) reconnect(reason string) error {
	id := ts.Session.ID
	ts.Session.Terminate(reason)
	return ts.connect(id)
}

// SimulateEviction deletes the session's persisted state. The next refresh
// starts from a fresh view.
func (ts *TestSession) SimulateEviction() error {
	return ts.store.Delete(context.Background(), ts.Session.ID)
}

// LoadState returns the persisted snapshot for the session.
func (ts *TestSession) LoadState() (*session.Snapshot, error) {
	data, err := ts.store.Load(context.Background(), ts.Session.ID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrStateNotFound
	}
	return session.Deserialize(data)
}

// AssertPersisted verifies that the session's state is in the store.
func (ts *TestSession) AssertPersisted(tb testing.TB) {
	tb.Helper()
	if _, err := ts.LoadState(); err != nil {
		tb.Fatalf("persisted state: %v", err)
	}
}

// AssertNotPersisted verifies that the store holds no state for the session.
func (ts *TestSession) AssertNotPersisted(tb testing.TB) {
	tb.Helper()
	data, err := ts.store.Load(context.Background(), ts.Session.ID)
	if err != nil {
		tb.Fatalf("failed to check session in store: %v", err)
	}
	if data != nil {
		tb.Fatal("session unexpectedly found in store")
	}
}
