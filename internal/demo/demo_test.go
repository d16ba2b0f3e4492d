package demo_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/vango-dev/liveview/internal/demo"
	"github.com/vango-dev/liveview/pkg/component"
	"github.com/vango-dev/liveview/pkg/dispatch"
	"github.com/vango-dev/liveview/pkg/render"
	"github.com/vango-dev/liveview/pkg/vdom"
	"github.com/vango-dev/liveview/pkg/vtest"
)

func renderer(t *testing.T) *render.Template {
	t.Helper()
	r, err := demo.Renderer()
	if err != nil {
		t.Fatalf("Renderer() error = %v", err)
	}
	return r
}

func newCounter() component.View { return demo.NewCounter() }

func newSession(t *testing.T, opts ...vtest.TestSessionOption) *vtest.TestSession {
	t.Helper()
	return vtest.NewSession(t, newCounter, renderer(t), opts...)
}

func assertHTML(t *testing.T, ts *vtest.TestSession, want ...string) {
	t.Helper()
	html := ts.HTML()
	for _, w := range want {
		if !strings.Contains(html, w) {
			t.Errorf("HTML missing %q:\n%s", w, html)
		}
	}
}

func refuteHTML(t *testing.T, ts *vtest.TestSession, unwanted ...string) {
	t.Helper()
	html := ts.HTML()
	for _, u := range unwanted {
		if strings.Contains(html, u) {
			t.Errorf("HTML has %q:\n%s", u, html)
		}
	}
}

// hasOp reports whether op appears in patches, descending into components.
func hasOp(patches []vdom.Patch, op vdom.PatchOp) bool {
	for _, p := range patches {
		if p.Op == op || hasOp(p.Patches, op) {
			return true
		}
	}
	return false
}

func TestCounter(t *testing.T) {
	ts := newSession(t)
	assertHTML(t, ts, `<h1>Counter</h1>`, `<p class="count">0</p>`, `<p class="hint">even</p>`, `data-liveview-component="todos"`)

	ts.MustEvent("", "increment", map[string]string{"by": "2"})
	assertHTML(t, ts, `<p class="count">2</p>`, `<p class="hint">even</p>`)

	out := ts.MustEvent("", "decrement", nil)
	assertHTML(t, ts, `<p class="count">1</p>`)
	refuteHTML(t, ts, `class="hint"`)
	if !hasOp(out.Patches, vdom.PatchRemoveChild) {
		t.Errorf("decrement patches = %v, want a RemoveChild for the hint", out.Patches)
	}

	ts.MustEvent("", "reset", nil)
	assertHTML(t, ts, `<p class="count">0</p>`)
}

func TestCounterMountParams(t *testing.T) {
	ts := newSession(t, vtest.WithParams(map[string]string{"start": "5", "step": "3", "title": "Score"}))
	assertHTML(t, ts, `<h1>Score</h1>`, `<p class="count">5</p>`, `+3</button>`)

	ts.MustEvent("", "increment", nil)
	assertHTML(t, ts, `<p class="count">8</p>`)
}

func TestCounterMountRejectsBadParams(t *testing.T) {
	for _, params := range []map[string]string{
		{"start": "five"},
		{"step": "0"},
		{"step": "-2"},
	} {
		scope := component.NewRegistry().Scope("")
		err := demo.NewCounter().Mount(scope, params)
		var pe *component.PayloadError
		if !errors.As(err, &pe) {
			t.Errorf("Mount(%v) error = %v, want PayloadError", params, err)
		}
	}
}

func TestTodoList(t *testing.T) {
	ts := newSession(t)
	assertHTML(t, ts, `<h2>0 left</h2>`)
	refuteHTML(t, ts, "clear done")

	ts.MustEvent("todos", "add", map[string]string{"title": "milk"})
	ts.MustEvent("todos", "add", map[string]string{"title": "  eggs "})
	assertHTML(t, ts, `<h2>2 left</h2>`, `<span>milk</span>`, `<span>eggs</span>`)

	out := ts.MustEvent("todos", "toggle", map[string]string{"id": "1"})
	assertHTML(t, ts, `<h2>1 left</h2>`, `<li class="done">`, "clear done")
	if len(out.Patches) != 1 || out.Patches[0].Op != vdom.PatchUpdateComponent {
		t.Errorf("toggle patches = %v, want one UpdateComponent", out.Patches)
	}

	out = ts.MustEvent("todos", "move_up", map[string]string{"id": "2"})
	if !hasOp(out.Patches, vdom.PatchMoveChild) || hasOp(out.Patches, vdom.PatchReplaceNode) {
		t.Errorf("move_up patches = %v, want a MoveChild and no ReplaceNode", out.Patches)
	}
	html := ts.HTML()
	if strings.Index(html, "eggs") > strings.Index(html, "milk") {
		t.Errorf("eggs not moved above milk:\n%s", html)
	}

	// Moving the first item is a no-op.
	if out := ts.MustEvent("todos", "move_up", map[string]string{"id": "2"}); len(out.Patches) != 0 {
		t.Errorf("move_up of first item patches = %v, want none", out.Patches)
	}

	ts.MustEvent("todos", "clear_done", nil)
	refuteHTML(t, ts, "milk", "clear done")

	ts.MustEvent("todos", "remove", map[string]string{"id": "2"})
	assertHTML(t, ts, `<h2>0 left</h2>`)
	refuteHTML(t, ts, "eggs")

	counter := ts.View().(*demo.Counter)
	if len(counter.Todos.Items) != 0 || counter.Todos.NextID != 2 {
		t.Errorf("Todos = %+v", counter.Todos)
	}
}

func TestTodoListRejections(t *testing.T) {
	ts := newSession(t)

	tests := []struct {
		handler string
		payload map[string]string
		want    error
	}{
		{"add", map[string]string{"title": "   "}, dispatch.ErrHandlerExecution},
		{"toggle", map[string]string{"id": "7"}, dispatch.ErrHandlerExecution},
		{"remove", map[string]string{"id": "x"}, dispatch.ErrHandlerExecution},
		{"increment", nil, dispatch.ErrHandlerNotAllowed},
	}
	for _, tt := range tests {
		if _, err := ts.Event("todos", tt.handler, tt.payload); !errors.Is(err, tt.want) {
			t.Errorf("%s error = %v, want %v", tt.handler, err, tt.want)
		}
		if e := ts.Client.LastError(); e == nil || e.Seq != ts.LastSeq() {
			t.Errorf("%s: last error = %v, want seq %d", tt.handler, e, ts.LastSeq())
		}
	}
	assertHTML(t, ts, `<h2>0 left</h2>`)
}

func TestTodoAddIsRateLimited(t *testing.T) {
	ts := newSession(t)

	for range 5 {
		ts.MustEvent("todos", "add", map[string]string{"title": "item"})
	}
	_, err := ts.Event("todos", "add", map[string]string{"title": "one too many"})
	if reason, ok := dispatch.ReasonOf(err); !ok || reason != dispatch.RateLimited {
		t.Fatalf("sixth add error = %v, want rate_limited", err)
	}

	// Other handlers draw from the session bucket only.
	ts.MustEvent("todos", "toggle", map[string]string{"id": "1"})
}

func TestStateSurvivesRefresh(t *testing.T) {
	ts := newSession(t, vtest.WithParams(map[string]string{"start": "5"}))
	ts.MustEvent("", "increment", nil)
	ts.MustEvent("todos", "add", map[string]string{"title": "milk"})
	ts.AssertPersisted(t)

	if err := ts.SimulateRefresh(); err != nil {
		t.Fatalf("SimulateRefresh() error = %v", err)
	}
	// The start param is not applied over restored state.
	assertHTML(t, ts, `<p class="count">6</p>`, `<span>milk</span>`)

	ts.MustEvent("todos", "toggle", map[string]string{"id": "1"})
	assertHTML(t, ts, `<h2>0 left</h2>`)

	if err := ts.SimulateEviction(); err != nil {
		t.Fatalf("SimulateEviction() error = %v", err)
	}
	ts.AssertNotPersisted(t)
	if err := ts.SimulateServerRestart(); err != nil {
		t.Fatalf("SimulateServerRestart() error = %v", err)
	}
	assertHTML(t, ts, `<p class="count">5</p>`)
	refuteHTML(t, ts, "milk")
}

func TestViews(t *testing.T) {
	views := demo.Views()
	factory, ok := views["counter"]
	if !ok || len(views) != 1 {
		t.Fatalf("Views() = %v", views)
	}
	if _, ok := factory().(*demo.Counter); !ok {
		t.Errorf("counter factory made %T", factory())
	}
}
