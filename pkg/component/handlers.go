package component

import (
	"fmt"
	"regexp"
	"sort"

	"golang.org/x/time/rate"
)

// handlerNamePattern is the only shape an event handler name may take.
var handlerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reservedNames are lifecycle and framework verbs that are never
// registrable as handlers, even through the builder.
var reservedNames = map[string]bool{
	"mount":          true,
	"unmount":        true,
	"render":         true,
	"template":       true,
	"render_context": true,
	"handlers":       true,
	"dispatch":       true,
	"update":         true,
	"bind":           true,
	"unbind":         true,
}

// ValidHandlerName reports whether name may be registered or dispatched.
func ValidHandlerName(name string) bool {
	return handlerNamePattern.MatchString(name) && !reservedNames[name]
}

// HandlerFunc handles one event for its target view.
// The target is the view or component the handler was registered for.
type HandlerFunc func(target View, call *Call) error

// Method adapts a handler written against a concrete view type.
//
//	counterHandlers = component.NewHandlers().
//	    Handle("increment", component.Method(func(c *Counter, _ *component.Call) error {
//	        c.Count++
//	        return nil
//	    })).
//	    Build()
func Method[V View](fn func(v V, call *Call) error) HandlerFunc {
	return func(target View, call *Call) error {
		v, ok := target.(V)
		if !ok {
			var want V
			return fmt.Errorf("component: handler %q expects %T, got %T", call.Handler, want, target)
		}
		return fn(v, call)
	}
}

// Handler is one allow-listed event handler.
type Handler struct {
	Name  string
	Fn    HandlerFunc
	Limit rate.Limit // Zero means no per-handler limit
	Burst int
}

// Limited reports whether the handler carries its own rate limit.
func (h *Handler) Limited() bool {
	return h.Limit > 0 && h.Burst > 0
}

// Handlers is the read-only allow-list of a view type.
// Only names registered through a HandlerBuilder are reachable from events.
type Handlers struct {
	byName map[string]*Handler
}

// Lookup returns the named handler.
func (h *Handlers) Lookup(name string) (*Handler, bool) {
	if h == nil {
		return nil, false
	}
	handler, ok := h.byName[name]
	return handler, ok
}

// Names returns the registered handler names in sorted order.
func (h *Handlers) Names() []string {
	if h == nil {
		return nil
	}
	names := make([]string, 0, len(h.byName))
	for name := range h.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered handlers.
func (h *Handlers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.byName)
}

// HandlerBuilder collects handlers for one view type.
type HandlerBuilder struct {
	handlers map[string]*Handler
	built    bool
}

// NewHandlers starts a new allow-list.
func NewHandlers() *HandlerBuilder {
	return &HandlerBuilder{handlers: make(map[string]*Handler)}
}

// Handle registers fn under name.
// It panics if name is malformed, reserved or already registered.
func (b *HandlerBuilder) Handle(name string, fn HandlerFunc) *HandlerBuilder {
	return b.add(&Handler{Name: name, Fn: fn})
}

// HandleLimited registers fn under name with its own token bucket of the
// given rate and burst, applied per session.
func (b *HandlerBuilder) HandleLimited(name string, fn HandlerFunc, limit rate.Limit, burst int) *HandlerBuilder {
	return b.add(&Handler{Name: name, Fn: fn, Limit: limit, Burst: burst})
}

func (b *HandlerBuilder) add(h *Handler) *HandlerBuilder {
	if b.built {
		panic("component: handler registered after Build")
	}
	if !ValidHandlerName(h.Name) {
		panic(fmt.Sprintf("component: invalid handler name %q", h.Name))
	}
	if h.Fn == nil {
		panic(fmt.Sprintf("component: nil handler for %q", h.Name))
	}
	if _, dup := b.handlers[h.Name]; dup {
		panic(fmt.Sprintf("component: handler %q registered twice", h.Name))
	}
	b.handlers[h.Name] = h
	return b
}

// Build freezes the allow-list.
func (b *HandlerBuilder) Build() *Handlers {
	b.built = true
	byName := make(map[string]*Handler, len(b.handlers))
	for name, h := range b.handlers {
		byName[name] = h
	}
	return &Handlers{byName: byName}
}
