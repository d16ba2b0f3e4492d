package component

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// View is a root view or a nested component.
//
// The value itself is the view's state. It is only touched from the owning
// session's event loop, so handlers mutate it in place without locking.
type View interface {
	// Template names the template rendered for this view.
	Template() string

	// RenderContext returns the data passed to the renderer.
	RenderContext() map[string]any

	// Handlers returns the allow-list of event handlers.
	// It is typically a package-level value shared by all instances.
	Handlers() *Handlers
}

// Mounter is implemented by views that initialize state when mounted.
// Components are mounted when they are first bound.
type Mounter interface {
	Mount(scope *Scope, params map[string]string) error
}

// Unmounter is implemented by views that release resources when their
// session ends or when they are unbound.
type Unmounter interface {
	Unmount()
}

// Call carries one handler invocation.
type Call struct {
	ctx context.Context

	// Handler is the name the event addressed.
	Handler string

	// Target is the component ID, empty for the root view.
	Target string

	// Payload holds the event arguments as sent by the client.
	Payload map[string]string

	// Scope binds and unbinds components owned by the target.
	Scope *Scope
}

// NewCall creates a Call for handler against the target scope.
func NewCall(ctx context.Context, handler string, payload map[string]string, scope *Scope) *Call {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Call{
		ctx:     ctx,
		Handler: handler,
		Target:  scope.ID(),
		Payload: payload,
		Scope:   scope,
	}
}

// Context returns the context of the event being handled.
func (c *Call) Context() context.Context {
	return c.ctx
}

// Has reports whether the payload contains key.
func (c *Call) Has(key string) bool {
	_, ok := c.Payload[key]
	return ok
}

// String returns the payload value for key, or "" if absent.
func (c *Call) String(key string) string {
	return c.Payload[key]
}

// Int parses the payload value for key as an integer.
func (c *Call) Int(key string) (int, error) {
	v, ok := c.Payload[key]
	if !ok {
		return 0, &PayloadError{Key: key, Want: "int", Err: errMissing}
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &PayloadError{Key: key, Want: "int", Err: err}
	}
	return n, nil
}

// IntOr parses the payload value for key, returning def if it is absent or invalid.
func (c *Call) IntOr(key string, def int) int {
	n, err := c.Int(key)
	if err != nil {
		return def
	}
	return n
}

// Float parses the payload value for key as a float.
func (c *Call) Float(key string) (float64, error) {
	v, ok := c.Payload[key]
	if !ok {
		return 0, &PayloadError{Key: key, Want: "float", Err: errMissing}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, &PayloadError{Key: key, Want: "float", Err: err}
	}
	return f, nil
}

// Bool reports whether the payload value for key is truthy:
// "true", "1", "yes" or "on", case-insensitively.
func (c *Call) Bool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Payload[key])) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

var errMissing = errors.New("missing")

// PayloadError reports a payload value that could not be coerced.
type PayloadError struct {
	Key  string
	Want string
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("component: payload %q is not a valid %s: %v", e.Key, e.Want, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
