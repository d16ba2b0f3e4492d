package server

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/vango-dev/liveview/pkg/component"
	"github.com/vango-dev/liveview/pkg/render"
	"github.com/vango-dev/liveview/pkg/vdom"
)

type stubView struct {
	Count int
}

func (v *stubView) Template() string              { return "stub" }
func (v *stubView) RenderContext() map[string]any { return map[string]any{"count": v.Count} }
func (v *stubView) Handlers() *component.Handlers { return stubHandlers }

var stubHandlers = component.NewHandlers().
	Handle("inc", component.Method(func(v *stubView, _ *component.Call) error {
		v.Count++
		return nil
	})).
	Build()

var stubRenderer = render.Funcs{
	"stub": func(data map[string]any) *vdom.VNode {
		return vdom.Div(vdom.Textf("%d", data["count"]))
	},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStubSession returns a mounted, started session on a discarding
// transport. It is terminated when the test ends.
func newStubSession(t *testing.T, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{WithLogger(discardLogger())}, opts...)
	s := NewSession(&stubView{}, stubRenderer, discardTransport{}, opts...)
	if err := s.Mount(context.Background(), nil); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { s.Terminate("normal") })
	return s
}
