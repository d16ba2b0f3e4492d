package component

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type counter struct {
	count int
}

func (c *counter) Template() string              { return "counter" }
func (c *counter) RenderContext() map[string]any { return map[string]any{"count": c.count} }
func (c *counter) Handlers() *Handlers           { return counterHandlers }

var counterHandlers = NewHandlers().
	Handle("increment", Method(func(c *counter, call *Call) error {
		c.count += call.IntOr("by", 1)
		return nil
	})).
	HandleLimited("reset", Method(func(c *counter, _ *Call) error {
		c.count = 0
		return nil
	}), 1, 1).
	Build()

func TestHandlersLookup(t *testing.T) {
	if diff := cmp.Diff([]string{"increment", "reset"}, counterHandlers.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	h, ok := counterHandlers.Lookup("increment")
	if !ok {
		t.Fatal("Lookup(increment) not found")
	}
	if h.Limited() {
		t.Error("increment should not be rate limited")
	}

	h, _ = counterHandlers.Lookup("reset")
	if !h.Limited() {
		t.Error("reset should be rate limited")
	}

	if _, ok := counterHandlers.Lookup("Template"); ok {
		t.Error("methods are never handlers unless registered")
	}
}

func TestNilHandlers(t *testing.T) {
	var h *Handlers
	if _, ok := h.Lookup("x"); ok {
		t.Error("nil Handlers should allow nothing")
	}
	if h.Len() != 0 || h.Names() != nil {
		t.Error("nil Handlers should be empty")
	}
}

func TestMethodInvokes(t *testing.T) {
	c := &counter{}
	h, _ := counterHandlers.Lookup("increment")
	call := NewCall(context.Background(), "increment", map[string]string{"by": "5"}, NewRegistry().Scope(""))

	if err := h.Fn(c, call); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if c.count != 5 {
		t.Errorf("count = %d, want 5", c.count)
	}
}

func TestMethodWrongTarget(t *testing.T) {
	h, _ := counterHandlers.Lookup("increment")
	call := NewCall(context.Background(), "increment", nil, NewRegistry().Scope(""))

	if err := h.Fn(&stubView{}, call); err == nil {
		t.Error("handler bound to *counter should refuse another view type")
	}
}

func TestBuilderPanics(t *testing.T) {
	noop := func(View, *Call) error { return nil }

	tests := []struct {
		name string
		fn   func()
	}{
		{"uppercase", func() { NewHandlers().Handle("Increment", noop) }},
		{"leading underscore", func() { NewHandlers().Handle("_private", noop) }},
		{"dunder", func() { NewHandlers().Handle("__init__", noop) }},
		{"reserved", func() { NewHandlers().Handle("mount", noop) }},
		{"nil func", func() { NewHandlers().Handle("ok", nil) }},
		{"duplicate", func() { NewHandlers().Handle("ok", noop).Handle("ok", noop) }},
		{"after build", func() {
			b := NewHandlers()
			b.Build()
			b.Handle("late", noop)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestValidHandlerName(t *testing.T) {
	tests := map[string]bool{
		"increment":   true,
		"set_value_2": true,
		"a":           true,
		"":            false,
		"Increment":   false,
		"_hidden":     false,
		"with-dash":   false,
		"dotted.name": false,
		"render":      false,
		"2fast":       false,
	}
	for name, want := range tests {
		if got := ValidHandlerName(name); got != want {
			t.Errorf("ValidHandlerName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestCallCoercion(t *testing.T) {
	call := NewCall(nil, "h", map[string]string{
		"n":     " 42 ",
		"f":     "2.5",
		"bad":   "x",
		"flag":  "On",
		"false": "0",
	}, NewRegistry().Scope(""))

	if n, err := call.Int("n"); err != nil || n != 42 {
		t.Errorf("Int(n) = %d, %v; want 42", n, err)
	}
	if f, err := call.Float("f"); err != nil || f != 2.5 {
		t.Errorf("Float(f) = %v, %v; want 2.5", f, err)
	}

	_, err := call.Int("bad")
	var pe *PayloadError
	if !errors.As(err, &pe) || pe.Key != "bad" {
		t.Errorf("Int(bad) error = %v, want PayloadError for bad", err)
	}
	if _, err := call.Int("missing"); !errors.Is(err, errMissing) {
		t.Errorf("Int(missing) error = %v, want errMissing", err)
	}
	if call.IntOr("bad", 7) != 7 {
		t.Error("IntOr should fall back on invalid input")
	}
	if !call.Bool("flag") || call.Bool("false") || call.Bool("missing") {
		t.Error("Bool coercion mismatch")
	}
	if call.Context() == nil {
		t.Error("Context() should never be nil")
	}
}
