// Package component defines views, their handler allow-lists, and the
// per-session registry of nested components.
//
// A View is any value that can name its template, produce a render context
// and list its handlers. Handlers are never discovered by reflection: a view
// type builds its allow-list once with NewHandlers and returns it from
// Handlers. Events naming anything else are rejected by the dispatcher.
//
//	var counterHandlers = component.NewHandlers().
//	    Handle("increment", component.Method((*Counter).increment)).
//	    Build()
//
// Nested components are bound explicitly through a Scope, during Mount or
// inside a handler. The component ID is the owner's ID joined with the
// binding name, so it is stable for as long as the binding is:
//
//	func (v *Dashboard) Mount(s *component.Scope, _ map[string]string) error {
//	    _, err := s.Bind("sidebar", &Sidebar{})
//	    return err
//	}
//
// Binding a new instance under an existing name replaces the component; the
// replacement carries a new generation so the next diff replaces its subtree
// instead of patching it.
package component
