package component

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vango-dev/liveview/pkg/vdom"
)

type stubView struct {
	name      string
	mounted   int
	unmounted *[]string
	mount     func(s *Scope) error
}

func (v *stubView) Template() string              { return v.name }
func (v *stubView) RenderContext() map[string]any { return nil }
func (v *stubView) Handlers() *Handlers           { return nil }

func (v *stubView) Mount(s *Scope, _ map[string]string) error {
	v.mounted++
	if v.mount != nil {
		return v.mount(s)
	}
	return nil
}

func (v *stubView) Unmount() {
	if v.unmounted != nil {
		*v.unmounted = append(*v.unmounted, v.name)
	}
}

func TestBindDeterministicIDs(t *testing.T) {
	reg := NewRegistry()
	reg.Begin()

	id, err := reg.Bind("", "sidebar", &stubView{name: "sidebar"})
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if id != "sidebar" {
		t.Errorf("id = %q, want sidebar", id)
	}

	child, err := reg.Bind("sidebar", "search", &stubView{name: "search"})
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if child != "sidebar.search" {
		t.Errorf("id = %q, want sidebar.search", child)
	}

	if diff := cmp.Diff([]string{"sidebar", "sidebar.search"}, reg.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestBindMountsWithOwnScope(t *testing.T) {
	reg := NewRegistry()
	reg.Begin()

	inner := &stubView{name: "inner"}
	outer := &stubView{name: "outer", mount: func(s *Scope) error {
		_, err := s.Bind("inner", inner)
		return err
	}}

	if _, err := reg.Bind("", "outer", outer); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if outer.mounted != 1 || inner.mounted != 1 {
		t.Errorf("mounted = %d/%d, want 1/1", outer.mounted, inner.mounted)
	}
	if _, ok := reg.Lookup("outer.inner"); !ok {
		t.Error("component bound during Mount should be registered under its owner")
	}
}

func TestBindSameInstanceIsNoop(t *testing.T) {
	reg := NewRegistry()
	reg.Begin()
	v := &stubView{name: "a"}

	reg.Bind("", "a", v)
	e, _ := reg.Lookup("a")
	gen := e.Generation

	reg.Begin()
	if _, err := reg.Bind("", "a", v); err != nil {
		t.Fatalf("rebinding the same instance: %v", err)
	}
	if _, err := reg.Bind("", "a", v); err != nil {
		t.Fatalf("rebinding the same instance in one pass: %v", err)
	}

	e, _ = reg.Lookup("a")
	if e.Generation != gen {
		t.Errorf("Generation = %d, want unchanged %d", e.Generation, gen)
	}
	if v.mounted != 1 {
		t.Errorf("mounted = %d, want 1", v.mounted)
	}
}

func TestBindConflictFirstWins(t *testing.T) {
	reg := NewRegistry()
	reg.Begin()
	first := &stubView{name: "first"}
	second := &stubView{name: "second"}

	if _, err := reg.Bind("", "panel", first); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	_, err := reg.Bind("", "panel", second)
	if !errors.Is(err, ErrComponentConflict) {
		t.Fatalf("second Bind() error = %v, want ErrComponentConflict", err)
	}

	e, _ := reg.Lookup("panel")
	if e.View != first {
		t.Error("first registration should win")
	}
	if second.mounted != 0 {
		t.Error("rejected instance must not be mounted")
	}
}

func TestRebindReplacesInLaterPass(t *testing.T) {
	var unmounted []string
	reg := NewRegistry()
	reg.Begin()

	old := &stubView{name: "old", unmounted: &unmounted, mount: func(s *Scope) error {
		_, err := s.Bind("child", &stubView{name: "old-child", unmounted: &unmounted})
		return err
	}}
	reg.Bind("", "panel", old)
	reg.SetLastTree("panel", vdom.Div("old"))
	before, _ := reg.Lookup("panel")
	oldGen := before.Generation

	reg.Begin()
	fresh := &stubView{name: "fresh", unmounted: &unmounted}
	id, err := reg.Bind("", "panel", fresh)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if id != "panel" {
		t.Errorf("id = %q, want panel", id)
	}

	e, _ := reg.Lookup("panel")
	if e.View != fresh {
		t.Error("entry should hold the new instance")
	}
	if e.Generation <= oldGen {
		t.Errorf("Generation = %d, want > %d", e.Generation, oldGen)
	}
	if e.LastTree != nil {
		t.Error("LastTree of the old instance should be discarded")
	}
	if _, ok := reg.Lookup("panel.child"); ok {
		t.Error("children of the replaced instance should be unbound")
	}
	if diff := cmp.Diff([]string{"old-child", "old"}, unmounted); diff != "" {
		t.Errorf("unmount order mismatch (-want +got):\n%s", diff)
	}
}

func TestUnbindCascades(t *testing.T) {
	var unmounted []string
	reg := NewRegistry()
	reg.Begin()

	reg.Bind("", "a", &stubView{name: "a", unmounted: &unmounted})
	reg.Bind("a", "b", &stubView{name: "b", unmounted: &unmounted})
	reg.Bind("a.b", "c", &stubView{name: "c", unmounted: &unmounted})
	reg.Bind("a", "d", &stubView{name: "d", unmounted: &unmounted})
	reg.Bind("", "e", &stubView{name: "e", unmounted: &unmounted})

	if !reg.Unbind("a") {
		t.Fatal("Unbind(a) = false, want true")
	}
	if diff := cmp.Diff([]string{"e"}, reg.IDs()); diff != "" {
		t.Errorf("IDs after unbind (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"d", "c", "b", "a"}, unmounted); diff != "" {
		t.Errorf("unmount order (-want +got):\n%s", diff)
	}
	if reg.Unbind("a") {
		t.Error("second Unbind(a) = true, want false")
	}
}

func TestUnbindRemovesFromOwner(t *testing.T) {
	reg := NewRegistry()
	reg.Begin()
	reg.Bind("", "a", &stubView{name: "a"})
	reg.Bind("a", "b", &stubView{name: "b"})
	reg.Bind("a", "c", &stubView{name: "c"})

	reg.Scope("a").Unbind("b")

	if diff := cmp.Diff([]string{"a.c"}, reg.Children("a")); diff != "" {
		t.Errorf("Children(a) (-want +got):\n%s", diff)
	}
}

func TestBindErrors(t *testing.T) {
	reg := NewRegistry()
	reg.Begin()

	if _, err := reg.Bind("missing", "x", &stubView{}); !errors.Is(err, ErrUnknownOwner) {
		t.Errorf("unknown owner error = %v, want ErrUnknownOwner", err)
	}
	for _, name := range []string{"", "Sidebar", "side.bar", "_x", "9lives"} {
		if _, err := reg.Bind("", name, &stubView{}); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Bind(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestBindMountFailureUndoes(t *testing.T) {
	reg := NewRegistry()
	reg.Begin()
	boom := errors.New("boom")

	_, err := reg.Bind("", "bad", &stubView{mount: func(*Scope) error { return boom }})
	if !errors.Is(err, boom) {
		t.Fatalf("Bind() error = %v, want boom", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after failed mount", reg.Len())
	}
}

func TestClear(t *testing.T) {
	var unmounted []string
	reg := NewRegistry()
	reg.Begin()
	reg.Bind("", "a", &stubView{name: "a", unmounted: &unmounted})
	reg.Bind("a", "b", &stubView{name: "b", unmounted: &unmounted})
	reg.Bind("", "c", &stubView{name: "c", unmounted: &unmounted})

	reg.Clear()

	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
	if len(unmounted) != 3 {
		t.Errorf("unmounted = %v, want all three", unmounted)
	}
}

func TestEntries(t *testing.T) {
	reg := NewRegistry()
	reg.Begin()
	reg.Bind("", "b", &stubView{name: "b"})
	reg.Bind("", "a", &stubView{name: "a"})
	reg.Bind("a", "x", &stubView{name: "x"})

	entries := reg.Entries()
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{"a", "a.x", "b"}, ids); diff != "" {
		t.Errorf("Entries() IDs mismatch (-want +got):\n%s", diff)
	}
	if entries[1].Owner != "a" || entries[1].Name != "x" {
		t.Errorf("entry a.x = %+v", entries[1])
	}

	// Entries are copies.
	entries[0].Generation = 99
	if e, _ := reg.Lookup("a"); e.Generation == 99 {
		t.Error("Entries() shares entry values with the registry")
	}
}

func TestScopeResolve(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		owner, name, want string
	}{
		{"", "sidebar", "sidebar"},
		{"sidebar", "search", "sidebar.search"},
		{"sidebar", "sidebar.search", "sidebar.search"},
	}
	for _, tt := range tests {
		if got := reg.Scope(tt.owner).Resolve(tt.name); got != tt.want {
			t.Errorf("Scope(%q).Resolve(%q) = %q, want %q", tt.owner, tt.name, got, tt.want)
		}
	}
}
