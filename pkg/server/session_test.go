package server_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"github.com/vango-dev/liveview/pkg/dispatch"
	"github.com/vango-dev/liveview/pkg/protocol"
	"github.com/vango-dev/liveview/pkg/server"
	"github.com/vango-dev/liveview/pkg/session"
	"github.com/vango-dev/liveview/pkg/vdom"
	"github.com/vango-dev/liveview/pkg/vtest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unlimited() vtest.TestSessionOption {
	return vtest.WithSessionOptions(server.WithRateLimit(0, 0))
}

func TestMountSendsTree(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer,
		vtest.WithParams(map[string]string{"title": "a"}))

	msgs := ts.Transport.Messages()
	if len(msgs) != 1 || msgs[0].Type != protocol.FrameMount {
		t.Fatalf("messages = %v, want one Mount", msgs)
	}
	if msgs[0].SessionID != ts.ID {
		t.Errorf("Mount.SessionID = %q, want %q", msgs[0].SessionID, ts.ID)
	}
	if ts.Status() != server.StatusIdle {
		t.Errorf("Status() = %v, want Idle", ts.Status())
	}

	e, ok := ts.Registry().Lookup("panel")
	if !ok {
		t.Fatal("panel not bound after mount")
	}
	if e.LastTree == nil {
		t.Error("panel LastTree not recorded")
	}

	html := ts.HTML()
	for _, want := range []string{`data-liveview-component="panel"`, "<h2>a</h2>", "0 clicks"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML() = %q, missing %q", html, want)
		}
	}
}

func TestMountLifecycleErrors(t *testing.T) {
	ctx := context.Background()
	tr := vtest.NewTransport()
	s := server.NewSession(&page{}, pageRenderer, tr, server.WithLogger(quietLogger()))

	if err := s.Start(ctx); !errors.Is(err, server.ErrNotMounted) {
		t.Errorf("Start() before mount error = %v, want ErrNotMounted", err)
	}
	if err := s.QueueEvent(dispatch.NewEvent("", "click", nil)); !errors.Is(err, server.ErrNotMounted) {
		t.Errorf("QueueEvent() before mount error = %v, want ErrNotMounted", err)
	}

	err := s.Mount(ctx, map[string]string{"fail": "1"})
	var me *server.MountError
	if !errors.As(err, &me) {
		t.Fatalf("Mount() error = %v, want *MountError", err)
	}
	if s.Status() != server.StatusCreated {
		t.Errorf("Status() after failed mount = %v, want Created", s.Status())
	}
	if tr.Len() != 0 {
		t.Errorf("%d messages sent by a failed mount", tr.Len())
	}
	if s.Registry().Len() != 0 {
		t.Errorf("Registry().Len() = %d after failed mount, want 0", s.Registry().Len())
	}

	// A failed mount is final.
	if err := s.Mount(ctx, nil); !errors.Is(err, server.ErrMountFailed) {
		t.Errorf("Mount() retry error = %v, want ErrMountFailed", err)
	}
	if s.Status() != server.StatusCreated {
		t.Errorf("Status() after retry = %v, want Created", s.Status())
	}
	if err := s.Start(ctx); !errors.Is(err, server.ErrMountFailed) {
		t.Errorf("Start() after failed mount error = %v, want ErrMountFailed", err)
	}
	if err := s.QueueEvent(dispatch.NewEvent("", "click", nil)); !errors.Is(err, server.ErrMountFailed) {
		t.Errorf("QueueEvent() after failed mount error = %v, want ErrMountFailed", err)
	}
	if tr.Len() != 0 {
		t.Errorf("%d messages sent after a failed mount", tr.Len())
	}
	s.Terminate(protocol.CloseError)
	if err := s.Mount(ctx, nil); !errors.Is(err, server.ErrSessionClosed) {
		t.Errorf("Mount() of failed session after Terminate error = %v, want ErrSessionClosed", err)
	}

	ok := server.NewSession(&page{}, pageRenderer, vtest.NewTransport(), server.WithLogger(quietLogger()))
	if err := ok.Mount(ctx, nil); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if err := ok.Mount(ctx, nil); !errors.Is(err, server.ErrAlreadyMounted) {
		t.Errorf("second Mount() error = %v, want ErrAlreadyMounted", err)
	}

	ok.Terminate(protocol.CloseNormal)
	if err := ok.Mount(ctx, nil); !errors.Is(err, server.ErrSessionClosed) {
		t.Errorf("Mount() after Terminate error = %v, want ErrSessionClosed", err)
	}
}

func TestMountRenderFailure(t *testing.T) {
	s := server.NewSession(&page{Broken: true}, pageRenderer, vtest.NewTransport(),
		server.WithLogger(quietLogger()))

	err := s.Mount(context.Background(), nil)
	var me *server.MountError
	if !errors.As(err, &me) {
		t.Fatalf("Mount() error = %v, want *MountError", err)
	}
	if s.Tree() != nil {
		t.Error("Tree() set after failed mount")
	}
}

func TestEventPatches(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer)

	out := ts.MustEvent("", "click", nil)
	if out.Seq != 1 {
		t.Errorf("Seq = %d, want 1", out.Seq)
	}
	want := []vdom.Patch{{Op: vdom.PatchSetText, Path: vdom.Path{0, 0}, Value: "1 clicks"}}
	if diff := cmp.Diff(want, out.Patches); diff != "" {
		t.Errorf("patches mismatch (-want +got):\n%s", diff)
	}

	out = ts.MustEvent("panel", "toggle", nil)
	if len(out.Patches) != 1 || out.Patches[0].Op != vdom.PatchUpdateComponent {
		t.Fatalf("patches = %v, want one UpdateComponent", out.Patches)
	}
	if out.Patches[0].ComponentID != "panel" {
		t.Errorf("ComponentID = %q, want panel", out.Patches[0].ComponentID)
	}
	if !strings.Contains(ts.HTML(), "<p>open</p>") {
		t.Errorf("HTML() = %q, want panel open", ts.HTML())
	}
	if ts.Seq() != 2 || ts.Client.Seq != 2 {
		t.Errorf("Seq() = %d, client %d, want 2", ts.Seq(), ts.Client.Seq)
	}
}

func TestEventWithoutChanges(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer)
	before := ts.Transport.Len()

	out := ts.MustEvent("", "noop", nil)
	if len(out.Patches) != 0 || out.Seq != 0 {
		t.Errorf("Outcome = %+v, want no patches", out)
	}
	if ts.Transport.Len() != before {
		t.Error("a message was sent for an event that changed nothing")
	}

	// The next change still gets sequence 1.
	if out := ts.MustEvent("", "click", nil); out.Seq != 1 {
		t.Errorf("Seq = %d, want 1", out.Seq)
	}
}

func TestEventRejections(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		handler string
		reason  dispatch.Reason
	}{
		{"unknown target", "nope", "toggle", dispatch.UnknownTarget},
		{"unlisted method", "", "Template", dispatch.HandlerNotAllowed},
		{"handler of another view", "", "toggle", dispatch.HandlerNotAllowed},
		{"handler error", "", "fail", dispatch.HandlerExecution},
		{"handler panic", "", "explode", dispatch.HandlerExecution},
		{"render failure", "", "break", dispatch.RenderFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer)
			before := ts.Tree()

			_, err := ts.Event(tt.target, tt.handler, nil)
			if reason, ok := dispatch.ReasonOf(err); !ok || reason != tt.reason {
				t.Fatalf("Event() error = %v, want reason %v", err, tt.reason)
			}
			if ts.Tree() != before {
				t.Error("tree replaced by a rejected event")
			}
			if len(ts.Transport.OfType(protocol.FramePatches)) != 0 {
				t.Error("patches sent for a rejected event")
			}

			e := ts.Client.LastError()
			if e == nil {
				t.Fatal("no Error message sent")
			}
			if e.Seq != ts.LastSeq() || e.Code != tt.reason.Code() {
				t.Errorf("Error = {Seq:%d Code:%s}, want {Seq:%d Code:%s}", e.Seq, e.Code, ts.LastSeq(), tt.reason.Code())
			}
			for _, leak := range []string{"database is down", "kaboom", "template exploded"} {
				if strings.Contains(e.Message, leak) {
					t.Errorf("Error.Message %q leaks %q", e.Message, leak)
				}
			}
			if ts.Status() != server.StatusIdle {
				t.Errorf("Status() = %v, want Idle", ts.Status())
			}
		})
	}
}

func TestHandlerPanicCarriesStack(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer)

	_, err := ts.Event("", "explode", nil)
	var he *dispatch.HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("Event() error = %v, want *HandlerError", err)
	}
	if he.Panic == nil || len(he.Stack) == 0 {
		t.Errorf("HandlerError = %+v, want panic value and stack", he)
	}

	// The session survives the panic.
	if out := ts.MustEvent("", "click", nil); out.Seq != 1 {
		t.Errorf("Seq = %d, want 1", out.Seq)
	}
}

func TestConcurrentDispatch(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer, unlimited())
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	seqs := make([]uint64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := ts.Session.Dispatch(ctx, dispatch.NewEvent("", "click", nil))
			if err != nil {
				errs[i] = err
				return
			}
			seqs[i] = out.Seq
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Dispatch %d error = %v", i, err)
		}
	}
	if got := ts.View().(*page).Clicks; got != n {
		t.Errorf("Clicks = %d, want %d", got, n)
	}

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("sorted seqs[%d] = %d, want %d", i, seq, i+1)
		}
	}

	if err := ts.Client.Sync(ts.Transport); err != nil {
		t.Fatalf("client sync: %v", err)
	}
	if ts.Client.Seq != n {
		t.Errorf("client seq = %d, want %d", ts.Client.Seq, n)
	}
}

func TestEventsProcessedInArrivalOrder(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer, unlimited())

	const n = 100
	want := make([]string, n)
	for i := 0; i < n; i++ {
		want[i] = strconv.Itoa(i)
		if err := ts.QueueEvent(dispatch.NewEvent("", "click", map[string]string{"i": want[i]})); err != nil {
			t.Fatalf("QueueEvent(%d) error = %v", i, err)
		}
	}
	ts.MustEvent("", "noop", nil)

	if diff := cmp.Diff(want, ts.View().(*page).Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueFull(t *testing.T) {
	config := server.DefaultSessionConfig()
	config.MaxEventQueue = 1
	config.EventRate = 0
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer,
		vtest.WithSessionOptions(server.WithSessionConfig(config)))

	p := ts.View().(*page)
	p.entered = make(chan struct{})
	p.gate = make(chan struct{})

	blocked := make(chan error, 1)
	go func() {
		_, err := ts.Session.Dispatch(context.Background(), dispatch.NewEvent("", "block", nil))
		blocked <- err
	}()
	<-p.entered

	if err := ts.QueueEvent(dispatch.NewEvent("", "click", nil)); err != nil {
		t.Fatalf("QueueEvent() error = %v", err)
	}
	dropped := &dispatch.Event{Seq: 42, Handler: "click"}
	if err := ts.QueueEvent(dropped); !errors.Is(err, server.ErrEventQueueFull) {
		t.Errorf("QueueEvent() on full queue error = %v, want ErrEventQueueFull", err)
	}

	errMsgs := ts.Transport.OfType(protocol.FrameError)
	if len(errMsgs) != 1 || errMsgs[0].Seq != 42 || errMsgs[0].Code != dispatch.Busy.Code() {
		t.Errorf("error messages = %v, want one busy error for seq 42", errMsgs)
	}

	close(p.gate)
	if err := <-blocked; err != nil {
		t.Fatalf("blocked Dispatch error = %v", err)
	}
	ts.MustEvent("", "noop", nil)
	if p.Clicks != 1 {
		t.Errorf("Clicks = %d, want 1", p.Clicks)
	}
}

func TestDispatchCancelledBeforeRun(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer)
	p := ts.View().(*page)
	p.entered = make(chan struct{})
	p.gate = make(chan struct{})

	blocked := make(chan error, 1)
	go func() {
		_, err := ts.Session.Dispatch(context.Background(), dispatch.NewEvent("", "block", nil))
		blocked <- err
	}()
	<-p.entered

	// Queued behind block, then abandoned by its caller.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ts.Session.Dispatch(ctx, dispatch.NewEvent("", "click", nil)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want context.Canceled", err)
	}

	close(p.gate)
	if err := <-blocked; err != nil {
		t.Fatalf("blocked Dispatch error = %v", err)
	}
	ts.MustEvent("", "noop", nil)

	if p.Clicks != 0 {
		t.Errorf("Clicks = %d, want 0: abandoned handler ran", p.Clicks)
	}
	if errs := ts.Transport.OfType(protocol.FrameError); len(errs) != 0 {
		t.Errorf("error messages = %v, want none", errs)
	}
}

func TestDispatchCancelledWhileRunning(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer)
	p := ts.View().(*page)
	p.entered = make(chan struct{})
	p.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	waiter := make(chan error, 1)
	go func() {
		_, err := ts.Session.Dispatch(ctx, dispatch.NewEvent("", "slow_click", nil))
		waiter <- err
	}()
	<-p.entered
	cancel()
	if err := <-waiter; !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want context.Canceled", err)
	}
	close(p.gate)

	// Runs after slow_click finished; the client sees its patch.
	ts.MustEvent("", "noop", nil)

	if p.Clicks != 1 {
		t.Errorf("Clicks = %d, want 1", p.Clicks)
	}
	if errs := ts.Transport.OfType(protocol.FrameError); len(errs) != 0 {
		t.Errorf("error messages = %v, want none", errs)
	}
	if len(ts.Transport.OfType(protocol.FramePatches)) != 1 {
		t.Errorf("patch messages = %d, want 1", len(ts.Transport.OfType(protocol.FramePatches)))
	}
	if html := ts.HTML(); !strings.Contains(html, "1 clicks") {
		t.Errorf("client HTML = %q, want 1 clicks", html)
	}
}

func TestRateLimitTerminates(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer,
		vtest.WithSessionOptions(server.WithRateLimit(rate.Every(time.Hour), 1)))

	ts.MustEvent("", "click", nil)

	max := server.DefaultSessionConfig().MaxRateWarnings
	for i := 0; i < max; i++ {
		_, err := ts.Event("", "click", nil)
		if !errors.Is(err, dispatch.ErrRateLimited) {
			t.Fatalf("event %d error = %v, want ErrRateLimited", i, err)
		}
	}

	if ts.Status() != server.StatusTerminated {
		t.Fatalf("Status() = %v, want Terminated", ts.Status())
	}
	if ts.Client.CloseReason != protocol.CloseRateLimited {
		t.Errorf("CloseReason = %q, want %q", ts.Client.CloseReason, protocol.CloseRateLimited)
	}
	if !ts.Transport.Closed() {
		t.Error("transport not closed")
	}
	if _, err := ts.Event("", "click", nil); !errors.Is(err, dispatch.ErrSessionTerminated) {
		t.Errorf("Event() after termination error = %v, want ErrSessionTerminated", err)
	}
}

func TestComponentReplaceOnRebind(t *testing.T) {
	log := &unmountLog{}
	ts := vtest.NewSession(t, newPageFactory(log), pageRenderer,
		vtest.WithParams(map[string]string{"title": "a"}))

	old, _ := ts.Registry().Lookup("panel")
	oldGen := old.Generation

	out := ts.MustEvent("", "swap", map[string]string{"title": "b"})
	if len(out.Patches) != 1 {
		t.Fatalf("patches = %v, want one", out.Patches)
	}
	p := out.Patches[0]
	if p.Op != vdom.PatchReplaceNode || !cmp.Equal(p.Path, vdom.Path{1}) {
		t.Errorf("patch = %v, want ReplaceNode at [1]", p)
	}
	if p.Node == nil || p.Node.ComponentID != "panel" || p.Node.Generation <= oldGen {
		t.Errorf("replacement node = %+v, want panel with generation > %d", p.Node, oldGen)
	}
	if diff := cmp.Diff([]string{"panel:a"}, log.list()); diff != "" {
		t.Errorf("unmounted (-want +got):\n%s", diff)
	}
	if !strings.Contains(ts.HTML(), "<h2>b</h2>") {
		t.Errorf("HTML() = %q, want new panel", ts.HTML())
	}

	// Rebinding the same instance keeps its identity.
	out = ts.MustEvent("panel", "toggle", nil)
	if len(out.Patches) != 1 || out.Patches[0].Op != vdom.PatchUpdateComponent {
		t.Errorf("patches = %v, want one UpdateComponent", out.Patches)
	}
}

func TestTerminate(t *testing.T) {
	log := &unmountLog{}
	ts := vtest.NewSession(t, newPageFactory(log), pageRenderer,
		vtest.WithParams(map[string]string{"title": "a"}))

	ts.Terminate(protocol.CloseNormal)

	if ts.Status() != server.StatusTerminated {
		t.Errorf("Status() = %v, want Terminated", ts.Status())
	}
	if ts.Registry().Len() != 0 {
		t.Errorf("Registry().Len() = %d, want 0", ts.Registry().Len())
	}
	if diff := cmp.Diff([]string{"panel:a", "page"}, log.list()); diff != "" {
		t.Errorf("unmounted (-want +got):\n%s", diff)
	}
	last := ts.Transport.Last()
	if last.Type != protocol.FrameClose || last.Reason != protocol.CloseNormal {
		t.Errorf("last message = %v, want Close(normal)", last)
	}
	if !ts.Transport.Closed() {
		t.Error("transport not closed")
	}

	sent := ts.Transport.Len()
	ts.Terminate(protocol.CloseError)
	if ts.Transport.Len() != sent {
		t.Error("second Terminate sent messages")
	}

	before := ts.Tree()
	_, err := ts.Session.Dispatch(context.Background(), dispatch.NewEvent("", "click", nil))
	if !errors.Is(err, dispatch.ErrSessionTerminated) {
		t.Errorf("Dispatch() after Terminate error = %v, want ErrSessionTerminated", err)
	}
	if after := ts.Tree(); after != before || !vdom.Equal(after, before) {
		t.Error("Tree() changed by a dispatch after Terminate")
	}
	if ts.Transport.Len() != sent {
		t.Error("dispatch after Terminate sent messages")
	}
	if err := ts.Start(context.Background()); !errors.Is(err, server.ErrSessionClosed) {
		t.Errorf("Start() after Terminate error = %v, want ErrSessionClosed", err)
	}
}

func TestTerminateOnContextDone(t *testing.T) {
	tr := vtest.NewTransport()
	s := server.NewSession(&page{}, pageRenderer, tr, server.WithLogger(quietLogger()))
	if err := s.Mount(context.Background(), nil); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	msg, ok := tr.WaitType(vtest.DefaultTimeout, protocol.FrameClose)
	if !ok {
		t.Fatal("no Close message after context cancellation")
	}
	if msg.Reason != protocol.CloseServerShutdown {
		t.Errorf("Reason = %q, want %q", msg.Reason, protocol.CloseServerShutdown)
	}
	s.Terminate(protocol.CloseNormal)
	if s.Status() != server.StatusTerminated {
		t.Errorf("Status() = %v, want Terminated", s.Status())
	}
}

func TestSendFailureTerminates(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer)
	boom := errors.New("broken pipe")
	ts.Transport.FailSends(boom)

	_, err := ts.Event("", "click", nil)
	var se *server.SessionError
	if !errors.As(err, &se) || !errors.Is(err, boom) {
		t.Fatalf("Event() error = %v, want SessionError wrapping %v", err, boom)
	}
	if ts.Status() != server.StatusTerminated {
		t.Errorf("Status() = %v, want Terminated", ts.Status())
	}
	if !ts.Transport.Closed() {
		t.Error("transport not closed")
	}
}

func TestStateRestore(t *testing.T) {
	store := session.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer, vtest.WithStore(store))
	ts.MustEvent("", "click", nil)
	ts.MustEvent("", "click", nil)
	ts.Terminate(protocol.CloseNormal)

	mount := func(opts ...server.SessionOption) *page {
		t.Helper()
		p := &page{}
		opts = append([]server.SessionOption{
			server.WithLogger(quietLogger()),
			server.WithStore(store),
			server.WithSessionID(ts.ID),
		}, opts...)
		s := server.NewSession(p, pageRenderer, vtest.NewTransport(), opts...)
		if err := s.Mount(context.Background(), nil); err != nil {
			t.Fatalf("Mount() error = %v", err)
		}
		t.Cleanup(func() { s.Terminate(protocol.CloseNormal) })
		return p
	}

	if got := mount().Clicks; got != 2 {
		t.Errorf("Clicks = %d after restore, want 2", got)
	}
	if got := mount(server.WithViewName("other")).Clicks; got != 0 {
		t.Errorf("Clicks = %d for another view, want 0", got)
	}

	store.Save(context.Background(), ts.ID, mustSnapshot(t, &page{Clicks: 5}), time.Hour)
	if got := mount().Clicks; got != 5 {
		t.Errorf("Clicks = %d after restore, want 5", got)
	}
}

func mustSnapshot(t *testing.T, p *page) []byte {
	t.Helper()
	data, err := session.Serialize("page", p)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	return data
}

func TestWithCodec(t *testing.T) {
	ts := vtest.NewSession(t, newPageFactory(nil), pageRenderer,
		vtest.WithSessionOptions(server.WithCodec(protocol.CBOR)))

	if ts.Config().Codec.Name() != "cbor" {
		t.Errorf("Codec = %s, want cbor", ts.Config().Codec.Name())
	}
	ts.MustEvent("", "click", nil)
	if ts.Transport.BytesSent() == 0 {
		t.Error("messages not framed")
	}
	if ts.Client.Seq != 1 {
		t.Errorf("client seq = %d, want 1", ts.Client.Seq)
	}
}
