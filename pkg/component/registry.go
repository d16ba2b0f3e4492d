package component

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/vango-dev/liveview/pkg/vdom"
)

var (
	// ErrComponentConflict is returned when a second instance is bound to an
	// ID that was already bound during the current pass. The first binding wins.
	ErrComponentConflict = errors.New("component: id already bound in this pass")

	// ErrUnknownOwner is returned when binding under an owner that is not registered.
	ErrUnknownOwner = errors.New("component: unknown owner")

	// ErrInvalidName is returned for binding names that are not identifiers.
	ErrInvalidName = errors.New("component: invalid binding name")
)

// Entry is one bound component.
type Entry struct {
	// ID is the owner's ID joined with Name by ".", or just Name under the root.
	ID string

	// Name is the binding name within the owner.
	Name string

	// Owner is the owning component's ID, empty for the root view.
	Owner string

	// View is the component instance and its state.
	View View

	// Generation increases every time a new instance is bound under ID.
	Generation uint64

	// LastTree is the component's most recently sent subtree.
	LastTree *vdom.VNode

	// Children are the IDs of components bound by this one, in bind order.
	Children []string

	pass uint64
}

// Registry maps component IDs to bound components for one session.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	roots      []string // IDs bound directly by the root view
	generation uint64
	pass       uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// ChildID returns the ID a component named name receives under owner.
func ChildID(owner, name string) string {
	if owner == "" {
		return name
	}
	return owner + "." + name
}

// Begin opens a new pass. Within one pass an ID can be bound to only one
// instance; binding it again to a different instance in a later pass
// replaces the entry.
func (r *Registry) Begin() {
	r.mu.Lock()
	r.pass++
	r.mu.Unlock()
}

// Scope returns the binding scope of owner. The empty ID is the root view.
func (r *Registry) Scope(owner string) *Scope {
	return &Scope{reg: r, owner: owner}
}

// Bind registers v under name in owner's scope and returns its ID.
//
// Binding the instance already held under that ID is a no-op. Binding a new
// instance replaces the old one with a fresh generation, after unbinding
// everything the old instance owned. A newly bound view that implements
// Mounter is mounted with its own scope; if Mount fails the binding is
// undone.
func (r *Registry) Bind(owner, name string, v View) (string, error) {
	if !handlerNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if v == nil {
		return "", fmt.Errorf("component: nil view bound to %q", name)
	}

	r.mu.Lock()
	if owner != "" {
		if _, ok := r.entries[owner]; !ok {
			r.mu.Unlock()
			return "", fmt.Errorf("%w: %q", ErrUnknownOwner, owner)
		}
	}

	id := ChildID(owner, name)
	var released []View
	if existing, ok := r.entries[id]; ok {
		if sameInstance(existing.View, v) {
			existing.pass = r.pass
			r.mu.Unlock()
			return id, nil
		}
		if existing.pass == r.pass {
			r.mu.Unlock()
			return "", fmt.Errorf("%w: %q", ErrComponentConflict, id)
		}
		// Replace: the old instance and everything it owned go away.
		for i := len(existing.Children) - 1; i >= 0; i-- {
			released = r.removeLocked(existing.Children[i], released)
		}
		released = append(released, existing.View)
		r.generation++
		existing.View = v
		existing.Generation = r.generation
		existing.LastTree = nil
		existing.Children = nil
		existing.pass = r.pass
	} else {
		r.generation++
		r.entries[id] = &Entry{
			ID:         id,
			Name:       name,
			Owner:      owner,
			View:       v,
			Generation: r.generation,
			pass:       r.pass,
		}
		if owner == "" {
			r.roots = append(r.roots, id)
		} else {
			parent := r.entries[owner]
			parent.Children = append(parent.Children, id)
		}
	}
	r.mu.Unlock()

	unmountAll(released)

	if m, ok := v.(Mounter); ok {
		if err := m.Mount(r.Scope(id), nil); err != nil {
			r.Unbind(id)
			return "", fmt.Errorf("component: mount %q: %w", id, err)
		}
	}
	return id, nil
}

// Lookup returns the component bound under id.
func (r *Registry) Lookup(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Unbind removes the component bound under id and, recursively, every
// component it owns. It reports whether id was bound.
func (r *Registry) Unbind(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if e.Owner == "" {
		r.roots = removeString(r.roots, id)
	} else if parent, ok := r.entries[e.Owner]; ok {
		parent.Children = removeString(parent.Children, id)
	}
	released := r.removeLocked(id, nil)
	r.mu.Unlock()

	unmountAll(released)
	return true
}

// removeLocked deletes id and its descendants, children first, and returns
// the released views in unmount order.
func (r *Registry) removeLocked(id string, released []View) []View {
	e, ok := r.entries[id]
	if !ok {
		return released
	}
	for i := len(e.Children) - 1; i >= 0; i-- {
		released = r.removeLocked(e.Children[i], released)
	}
	delete(r.entries, id)
	return append(released, e.View)
}

// SetLastTree records the subtree most recently sent for id.
func (r *Registry) SetLastTree(id string, tree *vdom.VNode) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.LastTree = tree
	}
	r.mu.Unlock()
}

// Children returns the IDs bound directly under owner, in bind order.
func (r *Registry) Children(owner string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	if owner == "" {
		ids = r.roots
	} else if e, ok := r.entries[owner]; ok {
		ids = e.Children
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// IDs returns every bound ID in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns a copy of every entry in ID order. Children and
// LastTree are shared with the registry and must not be modified.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of bound components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear unbinds every component.
func (r *Registry) Clear() {
	r.mu.Lock()
	var released []View
	for i := len(r.roots) - 1; i >= 0; i-- {
		released = r.removeLocked(r.roots[i], released)
	}
	r.roots = nil
	r.mu.Unlock()

	unmountAll(released)
}

func unmountAll(views []View) {
	for _, v := range views {
		if u, ok := v.(Unmounter); ok {
			u.Unmount()
		}
	}
}

// sameInstance compares views by identity. Pointer views are the same
// instance when they point to the same value; other kinds never are.
func sameInstance(a, b View) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != reflect.Pointer || vb.Kind() != reflect.Pointer {
		return false
	}
	return va.Type() == vb.Type() && va.Pointer() == vb.Pointer()
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// Scope binds components under one owner.
type Scope struct {
	reg   *Registry
	owner string
}

// ID returns the owner's component ID, empty for the root view.
func (s *Scope) ID() string {
	return s.owner
}

// Registry returns the registry the scope binds into.
func (s *Scope) Registry() *Registry {
	return s.reg
}

// Bind binds v under name and returns the component ID.
func (s *Scope) Bind(name string, v View) (string, error) {
	return s.reg.Bind(s.owner, name, v)
}

// Unbind removes the component bound under name.
func (s *Scope) Unbind(name string) bool {
	return s.reg.Unbind(ChildID(s.owner, name))
}

// Component returns the view bound under name.
func (s *Scope) Component(name string) (View, bool) {
	e, ok := s.reg.Lookup(ChildID(s.owner, name))
	if !ok {
		return nil, false
	}
	return e.View, true
}

// Resolve maps a component name used in this scope's template to its ID.
// Names are relative to the scope; a name that already carries the scope
// prefix is accepted as is.
func (s *Scope) Resolve(name string) string {
	if s.owner != "" && strings.HasPrefix(name, s.owner+".") {
		return name
	}
	return ChildID(s.owner, name)
}
