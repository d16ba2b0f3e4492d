package server

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vango-dev/liveview/pkg/protocol"
	"github.com/vango-dev/liveview/pkg/session"
)

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	id       string
	viewName string
	config   *SessionConfig
	logger   *slog.Logger
	store    session.Store
	metrics  *Metrics
	tracer   trace.Tracer
}

// WithSessionID sets the session ID. Reusing the ID of an earlier session
// rehydrates its persisted state on Mount. Default: a new UUID.
func WithSessionID(id string) SessionOption {
	return func(o *sessionOptions) {
		o.id = id
	}
}

// WithViewName sets the name the view is registered under. It labels logs
// and spans and is recorded in state snapshots.
func WithViewName(name string) SessionOption {
	return func(o *sessionOptions) {
		o.viewName = name
	}
}

// WithSessionConfig sets the session configuration. The config is cloned.
func WithSessionConfig(c *SessionConfig) SessionOption {
	return func(o *sessionOptions) {
		o.config = c.Clone()
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) SessionOption {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithStore persists the root view's state after mount and after every
// event that changed it.
func WithStore(store session.Store) SessionOption {
	return func(o *sessionOptions) {
		o.store = store
	}
}

// WithMetrics records session activity.
func WithMetrics(m *Metrics) SessionOption {
	return func(o *sessionOptions) {
		o.metrics = m
	}
}

// WithTracer sets the tracer for mount and event spans.
// Default: the global provider's DefaultTracerName tracer.
func WithTracer(tracer trace.Tracer) SessionOption {
	return func(o *sessionOptions) {
		o.tracer = tracer
	}
}

// WithCodec sets the wire codec used to encode outgoing messages.
func WithCodec(codec protocol.Codec) SessionOption {
	return func(o *sessionOptions) {
		o.ensureConfig()
		o.config.Codec = codec
	}
}

// WithRateLimit sets the session token bucket. A zero limit disables it.
func WithRateLimit(limit rate.Limit, burst int) SessionOption {
	return func(o *sessionOptions) {
		o.ensureConfig()
		o.config.EventRate = limit
		o.config.EventBurst = burst
	}
}

func (o *sessionOptions) ensureConfig() {
	if o.config == nil {
		o.config = DefaultSessionConfig()
	}
}
