package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/liveview/pkg/component"
	"github.com/vango-dev/liveview/pkg/dispatch"
	"github.com/vango-dev/liveview/pkg/protocol"
	"github.com/vango-dev/liveview/pkg/render"
	"github.com/vango-dev/liveview/pkg/session"
	"github.com/vango-dev/liveview/pkg/vdom"
)

// Status is a session's lifecycle state.
type Status int32

const (
	StatusCreated    Status = iota // Constructed, Mount not yet succeeded
	StatusMounted                  // Mount in progress
	StatusRendering                // Processing an event
	StatusIdle                     // Waiting for the next event
	StatusTerminated               // Torn down; absorbing
)

// String returns the string representation of the Status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusMounted:
		return "Mounted"
	case StatusRendering:
		return "Rendering"
	case StatusIdle:
		return "Idle"
	case StatusTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Outcome is the result of one processed event.
type Outcome struct {
	// Seq numbers the Patches message sent for the event, 0 if none was sent.
	Seq uint64

	// Patches bring the previous tree to the new one. Empty when the event
	// changed nothing visible.
	Patches []vdom.Patch

	// Fingerprint identifies the tree after the event.
	Fingerprint string
}

type queuedEvent struct {
	ctx   context.Context
	ev    *dispatch.Event
	reply chan eventResult // nil for QueueEvent
}

type eventResult struct {
	out *Outcome
	err error
}

// Session is one mounted view and the state that goes with it: the root
// view, the tree last sent to the client, the component registry and the
// event queue.
//
// All view state is touched only by Mount and, afterwards, by the session's
// event loop, so views never need locking.
type Session struct {
	// Identity
	ID        string
	CreatedAt time.Time

	viewName  string
	view      component.View
	renderer  render.Renderer
	transport Transport

	config     *SessionConfig
	registry   *component.Registry
	dispatcher *dispatch.Dispatcher
	store      session.Store
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *slog.Logger

	status     atomic.Int32
	seq        atomic.Uint64 // Last Patches sequence sent
	lastActive atomic.Int64  // Unix nanoseconds

	treeMu      sync.RWMutex
	currentTree *vdom.VNode

	// queueMu orders enqueues against termination so no event is queued
	// after the queue has been drained.
	queueMu     sync.Mutex
	events      chan *queuedEvent
	onTerminate func(*Session)

	sendMu      sync.Mutex
	started     atomic.Bool
	mountFailed atomic.Bool // set before the status returns to Created
	done        chan struct{}
	loopDone    chan struct{}
}

// NewSession creates a session in the Created state for view.
func NewSession(view component.View, renderer render.Renderer, transport Transport, opts ...SessionOption) *Session {
	o := &sessionOptions{}
	for _, opt := range opts {
		opt(o)
	}
	o.ensureConfig()
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.viewName == "" {
		o.viewName = view.Template()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = defaultTracer()
	}

	config := o.config
	queue := config.MaxEventQueue
	if queue <= 0 {
		queue = DefaultSessionConfig().MaxEventQueue
	}

	now := time.Now()
	s := &Session{
		ID:        o.id,
		CreatedAt: now,
		viewName:  o.viewName,
		view:      view,
		renderer:  renderer,
		transport: transport,
		config:    config,
		registry:  component.NewRegistry(),
		dispatcher: dispatch.New(
			dispatch.WithRateLimit(config.EventRate, config.EventBurst),
			dispatch.WithMaxWarnings(config.MaxRateWarnings),
		),
		store:    o.store,
		metrics:  o.metrics,
		tracer:   o.tracer,
		logger:   o.logger.With("session_id", o.id, "view", o.viewName),
		events:   make(chan *queuedEvent, queue),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	s.lastActive.Store(now.UnixNano())

	if ft, ok := transport.(FramedTransport); ok {
		ft.UseFramer(config.framer())
	}
	return s
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// ViewName returns the name the view was mounted under.
func (s *Session) ViewName() string {
	return s.viewName
}

// Registry returns the session's component registry.
func (s *Session) Registry() *component.Registry {
	return s.registry
}

// Config returns the session configuration.
func (s *Session) Config() *SessionConfig {
	return s.config
}

// Tree returns the tree last sent to the client. Trees are never mutated
// once rendered, so the result may be read concurrently with the event loop.
func (s *Session) Tree() *vdom.VNode {
	s.treeMu.RLock()
	defer s.treeMu.RUnlock()
	return s.currentTree
}

// Seq returns the sequence number of the last Patches message sent.
func (s *Session) Seq() uint64 {
	return s.seq.Load()
}

// LastActive returns when the session last received an event.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// IdleExpired reports whether the session has been inactive longer than
// its IdleTimeout at now.
func (s *Session) IdleExpired(now time.Time) bool {
	return s.config.IdleTimeout > 0 && now.Sub(s.LastActive()) > s.config.IdleTimeout
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Mount initializes the view and sends the first full tree.
//
// When a store is configured, persisted state for the session ID is loaded
// into the view first; Mounter.Mount then runs with params and should bind
// the view's components without discarding restored state.
// On failure a *MountError is returned and the session stays Created for
// good: every later Mount, Start or QueueEvent returns ErrMountFailed.
func (s *Session) Mount(ctx context.Context, params map[string]string) error {
	if !s.status.CompareAndSwap(int32(StatusCreated), int32(StatusMounted)) {
		if s.Status() == StatusTerminated {
			return ErrSessionClosed
		}
		return ErrAlreadyMounted
	}
	if s.mountFailed.Load() {
		s.status.CompareAndSwap(int32(StatusMounted), int32(StatusCreated))
		return ErrMountFailed
	}

	start := time.Now()
	ctx, span := s.startMountSpan(ctx)
	err := s.mount(ctx, params)
	if err == nil && !s.status.CompareAndSwap(int32(StatusMounted), int32(StatusIdle)) {
		err = ErrSessionClosed
	}
	endSpan(span, err)

	if err != nil {
		s.registry.Clear()
		s.setTree(nil)
		s.mountFailed.Store(true)
		s.status.CompareAndSwap(int32(StatusMounted), int32(StatusCreated))
		s.metrics.mountFailed()
		s.logger.Error("mount failed", "error", err)
		return &MountError{SessionID: s.ID, View: s.viewName, Err: err}
	}

	s.metrics.mounted(time.Since(start))
	s.persist(ctx)
	s.logger.Info("session mounted",
		"components", s.registry.Len(),
		"duration", time.Since(start))
	return nil
}

func (s *Session) mount(ctx context.Context, params map[string]string) error {
	if err := s.restore(ctx); err != nil {
		return err
	}

	s.registry.Begin()
	if m, ok := s.view.(component.Mounter); ok {
		if err := m.Mount(s.registry.Scope(""), params); err != nil {
			return err
		}
	}

	tree, components, err := s.renderTree(ctx)
	if err != nil {
		return err
	}
	s.commit(tree, components)

	return s.send(ctx, protocol.NewMount(s.ID, tree))
}

// restore loads persisted state into the view. Snapshots written by another
// view or format version are ignored.
func (s *Session) restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	data, err := s.store.Load(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if data == nil {
		return nil
	}

	snap, err := session.Deserialize(data)
	if errors.Is(err, session.ErrSnapshotVersion) {
		s.logger.Warn("discarding persisted state", "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	if snap.View != s.viewName {
		s.logger.Warn("discarding persisted state of another view", "state_view", snap.View)
		return nil
	}
	if err := snap.Restore(s.view); err != nil {
		return err
	}
	s.logger.Debug("state restored", "bytes", len(data))
	return nil
}

// persist saves the view's state. Failures are logged; the client's tree is
// already up to date and the next event retries.
func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	data, err := session.Serialize(s.viewName, s.view)
	if err != nil {
		s.logger.Warn("state not persisted", "error", err)
		return
	}
	if err := s.store.Save(ctx, s.ID, data, s.config.StateTTL); err != nil {
		s.logger.Warn("state not persisted", "error", err)
	}
}

// Start runs the event loop until the session terminates or ctx is done.
// Starting twice is a no-op.
func (s *Session) Start(ctx context.Context) error {
	switch s.Status() {
	case StatusCreated, StatusMounted:
		if s.mountFailed.Load() {
			return ErrMountFailed
		}
		return ErrNotMounted
	case StatusTerminated:
		return ErrSessionClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	go s.loop(ctx)
	return nil
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.loopDone)

	for {
		select {
		case q := <-s.events:
			s.process(ctx, q)

		case <-ctx.Done():
			s.terminate(protocol.CloseServerShutdown)
			s.drain()
			return

		case <-s.done:
			s.drain()
			return
		}
	}
}

// QueueEvent queues ev without waiting for it to be processed.
//
// It returns ErrEventQueueFull when the queue is full; the event is dropped
// and the client is told the session is busy. After termination it returns
// a SessionTerminated rejection.
func (s *Session) QueueEvent(ev *dispatch.Event) error {
	return s.enqueue(&queuedEvent{ev: ev})
}

// Dispatch queues ev and waits for its outcome. Events from all callers are
// processed one at a time in arrival order.
func (s *Session) Dispatch(ctx context.Context, ev *dispatch.Event) (*Outcome, error) {
	reply := make(chan eventResult, 1)
	if err := s.enqueue(&queuedEvent{ctx: ctx, ev: ev, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) enqueue(q *queuedEvent) error {
	if q.ev.ReceivedAt.IsZero() {
		q.ev.ReceivedAt = time.Now()
	}

	s.queueMu.Lock()
	switch s.Status() {
	case StatusTerminated:
		s.queueMu.Unlock()
		return dispatch.Reject(dispatch.SessionTerminated, q.ev, nil)
	case StatusCreated:
		s.queueMu.Unlock()
		if s.mountFailed.Load() {
			return ErrMountFailed
		}
		return ErrNotMounted
	}
	select {
	case s.events <- q:
		s.queueMu.Unlock()
		return nil
	default:
	}
	s.queueMu.Unlock()

	s.metrics.dropped()
	s.logger.Warn("event queue full, dropping event",
		"target", q.ev.Target,
		"handler", q.ev.Handler)
	s.sendError(context.Background(), q.ev, dispatch.Reject(dispatch.Busy, q.ev, ErrEventQueueFull))
	return ErrEventQueueFull
}

// drain rejects every queued event. It runs once no more events can be queued.
func (s *Session) drain() {
	for {
		select {
		case q := <-s.events:
			if q.reply != nil {
				q.reply <- eventResult{err: dispatch.Reject(dispatch.SessionTerminated, q.ev, nil)}
			}
		default:
			return
		}
	}
}

func (s *Session) process(loopCtx context.Context, q *queuedEvent) {
	ctx := loopCtx
	if q.ctx != nil {
		// Abandoned before it ran: skip the handler.
		if err := q.ctx.Err(); err != nil {
			s.logger.Debug("skipping abandoned event",
				"target", q.ev.Target,
				"handler", q.ev.Handler,
				"error", err)
			if q.reply != nil {
				q.reply <- eventResult{err: err}
			}
			return
		}
		// A started event runs to the client even if the waiter leaves.
		ctx = context.WithoutCancel(q.ctx)
	}

	start := time.Now()
	ctx, span := s.startEventSpan(ctx, q.ev)
	out, err := s.handle(ctx, q.ev)

	patches := 0
	if out != nil {
		patches = len(out.Patches)
		span.SetAttributes(attrPatches.Int(patches))
	}
	reason := ""
	if err != nil {
		reason = protocol.CodeInternal
		if r, ok := dispatch.ReasonOf(err); ok {
			reason = r.Code()
		}
	}
	s.metrics.event(time.Since(start), patches, reason)
	endSpan(span, err)

	if q.reply != nil {
		q.reply <- eventResult{out: out, err: err}
	}
}

// handle runs one event through dispatch, render, diff and send.
func (s *Session) handle(ctx context.Context, ev *dispatch.Event) (*Outcome, error) {
	if !s.status.CompareAndSwap(int32(StatusIdle), int32(StatusRendering)) {
		return nil, dispatch.Reject(dispatch.SessionTerminated, ev, nil)
	}
	defer s.status.CompareAndSwap(int32(StatusRendering), int32(StatusIdle))
	s.touch()

	// A pass covers the handler's binds as well as the render.
	s.registry.Begin()
	if err := s.dispatcher.Dispatch(ctx, s.view, s.registry, ev); err != nil {
		s.rejected(ctx, ev, err)
		if s.dispatcher.Exceeded() {
			s.logger.Warn("rate limit exceeded, terminating session",
				"warnings", s.dispatcher.Warnings())
			s.terminate(protocol.CloseRateLimited)
		}
		return nil, err
	}

	tree, components, err := s.renderTree(ctx)
	if err != nil {
		rej := dispatch.Reject(dispatch.RenderFailed, ev, err)
		s.rejected(ctx, ev, rej)
		return nil, rej
	}

	patches := vdom.Diff(s.Tree(), tree)
	out := &Outcome{Patches: patches, Fingerprint: vdom.Fingerprint(tree)}
	s.commit(tree, components)

	if len(patches) > 0 {
		out.Seq = s.seq.Add(1)
		if err := s.send(ctx, protocol.NewPatches(out.Seq, patches, out.Fingerprint)); err != nil {
			s.logger.Error("patch send failed", "seq", out.Seq, "error", err)
			s.terminate(protocol.CloseError)
			return out, NewSessionError(s.ID, "send patches", err)
		}
	}

	s.persist(ctx)
	return out, nil
}

// rejected logs a rejection and tells the client about it.
func (s *Session) rejected(ctx context.Context, ev *dispatch.Event, err error) {
	var he *dispatch.HandlerError
	switch {
	case errors.As(err, &he) && he.Panic != nil:
		s.logger.Error("handler panicked",
			"target", ev.Target,
			"handler", ev.Handler,
			"panic", he.Panic,
			"stack", string(he.Stack))
	case errors.Is(err, dispatch.ErrRenderFailed), errors.Is(err, dispatch.ErrHandlerExecution):
		s.logger.Error("event failed", "target", ev.Target, "handler", ev.Handler, "error", err)
	default:
		s.logger.Warn("event rejected", "target", ev.Target, "handler", ev.Handler, "error", err)
	}
	s.sendError(ctx, ev, err)
}

func (s *Session) sendError(ctx context.Context, ev *dispatch.Event, err error) {
	code, message := protocol.CodeInternal, "internal error"
	if r, ok := dispatch.ReasonOf(err); ok {
		code, message = r.Code(), clientMessage(r)
	}
	if serr := s.send(ctx, protocol.NewError(ev.Seq, code, message)); serr != nil {
		s.logger.Debug("error reply not sent", "code", code, "error", serr)
	}
}

// clientMessage is the text sent to clients for a rejection. It never
// carries handler or renderer error text.
func clientMessage(r dispatch.Reason) string {
	switch r {
	case dispatch.UnknownTarget:
		return "unknown component"
	case dispatch.HandlerNotAllowed:
		return "handler not allowed"
	case dispatch.HandlerExecution:
		return "handler failed"
	case dispatch.RenderFailed:
		return "render failed"
	case dispatch.SessionTerminated:
		return "session terminated"
	case dispatch.RateLimited:
		return "too many events"
	case dispatch.Busy:
		return "session busy"
	default:
		return "internal error"
	}
}

func (s *Session) send(ctx context.Context, msg *protocol.Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.WriteTimeout)
		defer cancel()
	}
	return s.transport.Send(ctx, msg)
}

// commit makes tree the baseline for the next diff.
func (s *Session) commit(tree *vdom.VNode, components map[string]*vdom.VNode) {
	s.setTree(tree)
	for id, sub := range components {
		s.registry.SetLastTree(id, sub)
	}
}

func (s *Session) setTree(tree *vdom.VNode) {
	s.treeMu.Lock()
	s.currentTree = tree
	s.treeMu.Unlock()
}

// Terminate tears the session down: queued events are rejected, components
// are unmounted, the client is sent Close{reason} and the transport closed.
// It waits for an event being processed to finish. Terminating twice is a
// no-op.
func (s *Session) Terminate(reason string) {
	prev, ok := s.markTerminated()
	if !ok {
		return
	}
	if s.started.Load() {
		<-s.loopDone
	} else {
		s.drain()
	}
	s.teardown(prev, reason)
}

// terminate is Terminate from inside the event loop.
func (s *Session) terminate(reason string) {
	prev, ok := s.markTerminated()
	if !ok {
		return
	}
	s.teardown(prev, reason)
}

func (s *Session) markTerminated() (Status, bool) {
	s.queueMu.Lock()
	prev := Status(s.status.Swap(int32(StatusTerminated)))
	s.queueMu.Unlock()
	if prev == StatusTerminated {
		return prev, false
	}
	close(s.done)
	return prev, true
}

func (s *Session) teardown(prev Status, reason string) {
	mounted := prev == StatusIdle || prev == StatusRendering

	s.registry.Clear()
	if u, ok := s.view.(component.Unmounter); ok && mounted {
		u.Unmount()
	}

	if mounted {
		if err := s.send(context.Background(), protocol.NewClose(reason)); err != nil {
			s.logger.Debug("close message not sent", "error", err)
		}
	}
	if err := s.transport.Close(); err != nil {
		s.logger.Debug("transport close failed", "error", err)
	}

	s.metrics.terminated(reason, mounted)
	s.logger.Info("session terminated", "reason", reason, "prev_status", prev)

	s.queueMu.Lock()
	fn := s.onTerminate
	s.queueMu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// setOnTerminate registers fn to run after the session is torn down.
func (s *Session) setOnTerminate(fn func(*Session)) {
	s.queueMu.Lock()
	s.onTerminate = fn
	s.queueMu.Unlock()
}
