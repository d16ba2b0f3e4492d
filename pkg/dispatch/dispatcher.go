package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"github.com/vango-dev/liveview/pkg/component"
)

// Defaults for the per-session token bucket.
const (
	DefaultRate        = rate.Limit(100)
	DefaultBurst       = 20
	DefaultMaxWarnings = 3
)

var errMalformedHandler = errors.New("malformed handler name")

// Dispatcher authorizes events and invokes their handlers for one session.
// It holds the session's rate limiters and is not safe for concurrent use;
// the owning session serializes all calls.
type Dispatcher struct {
	limiter     *rate.Limiter
	handlers    map[string]*rate.Limiter
	warnings    int
	maxWarnings int
	now         func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRateLimit sets the session-wide token bucket. A zero limit disables it.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(d *Dispatcher) {
		if limit <= 0 || burst <= 0 {
			d.limiter = nil
			return
		}
		d.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMaxWarnings sets how many rate-limited events are tolerated before
// Exceeded reports true. Zero means never.
func WithMaxWarnings(n int) Option {
	return func(d *Dispatcher) {
		d.maxWarnings = n
	}
}

// WithClock sets the time source used by the rate limiters.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New creates a Dispatcher with the default rate limit.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		limiter:     rate.NewLimiter(DefaultRate, DefaultBurst),
		handlers:    make(map[string]*rate.Limiter),
		maxWarnings: DefaultMaxWarnings,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves the event target, checks the handler against the
// target's allow-list and invokes it. A nil error means the handler ran and
// the target's state may have changed. Every other outcome is a *Rejected.
//
// Handler panics are recovered and reported as HandlerExecution.
func (d *Dispatcher) Dispatch(ctx context.Context, root component.View, reg *component.Registry, ev *Event) error {
	if d.limiter != nil && !d.limiter.AllowN(d.now(), 1) {
		d.warnings++
		return Reject(RateLimited, ev, nil)
	}

	target, scope, err := resolve(root, reg, ev)
	if err != nil {
		return err
	}

	if !component.ValidHandlerName(ev.Handler) {
		return Reject(HandlerNotAllowed, ev, errMalformedHandler)
	}
	h, ok := target.Handlers().Lookup(ev.Handler)
	if !ok {
		return Reject(HandlerNotAllowed, ev, nil)
	}

	if h.Limited() {
		key := ev.Target + "#" + h.Name
		lim, ok := d.handlers[key]
		if !ok {
			lim = rate.NewLimiter(h.Limit, h.Burst)
			d.handlers[key] = lim
		}
		if !lim.AllowN(d.now(), 1) {
			d.warnings++
			return Reject(RateLimited, ev, nil)
		}
	}

	return invoke(ctx, target, scope, h, ev)
}

// Warnings returns the number of rate-limited events so far.
func (d *Dispatcher) Warnings() int {
	return d.warnings
}

// Exceeded reports whether the session should be disconnected for
// repeatedly exceeding its rate limits.
func (d *Dispatcher) Exceeded() bool {
	return d.maxWarnings > 0 && d.warnings >= d.maxWarnings
}

func resolve(root component.View, reg *component.Registry, ev *Event) (component.View, *component.Scope, error) {
	if ev.Target == "" {
		return root, reg.Scope(""), nil
	}
	e, ok := reg.Lookup(ev.Target)
	if !ok {
		return nil, nil, Reject(UnknownTarget, ev, nil)
	}
	return e.View, reg.Scope(e.ID), nil
}

func invoke(ctx context.Context, target component.View, scope *component.Scope, h *component.Handler, ev *Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Reject(HandlerExecution, ev, &HandlerError{
				Target:  ev.Target,
				Handler: ev.Handler,
				Panic:   p,
				Stack:   debug.Stack(),
			})
		}
	}()

	call := component.NewCall(ctx, ev.Handler, ev.Payload, scope)
	if herr := h.Fn(target, call); herr != nil {
		return Reject(HandlerExecution, ev, &HandlerError{
			Target:  ev.Target,
			Handler: ev.Handler,
			Err:     herr,
		})
	}
	return nil
}
