package server

import (
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/vango-dev/liveview/pkg/dispatch"
	"github.com/vango-dev/liveview/pkg/protocol"
)

// SessionConfig holds configuration for individual sessions.
type SessionConfig struct {
	// Timeouts

	// ReadTimeout is the maximum time to wait for a message from the client.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// IdleTimeout is the time after which an inactive session is closed.
	// Default: 5 minutes.
	IdleTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxEventQueue is the size of the event channel buffer.
	// Default: 256.
	MaxEventQueue int

	// EventRate is the sustained events per second a session may send.
	// Zero disables the session bucket. Default: 100.
	EventRate rate.Limit

	// EventBurst is the session bucket size. Default: 20.
	EventBurst int

	// MaxRateWarnings is how many rate-limited events end the session.
	// Zero never ends it. Default: 3.
	MaxRateWarnings int

	// State

	// StateTTL is how long persisted view state outlives its last event.
	// Default: 1 hour.
	StateTTL time.Duration

	// Wire format

	// CompressThreshold is the payload size above which frames are
	// zstd-compressed. Negative disables compression. Default: 4KB.
	CompressThreshold int

	// Codec encodes message payloads. Default: protocol.Binary.
	Codec protocol.Codec
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       5 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB
		MaxEventQueue:     256,
		EventRate:         dispatch.DefaultRate,
		EventBurst:        dispatch.DefaultBurst,
		MaxRateWarnings:   dispatch.DefaultMaxWarnings,
		StateTTL:          time.Hour,
		CompressThreshold: protocol.DefaultCompressThreshold,
		Codec:             protocol.Binary,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// framer builds the framer sessions use to encode their messages.
func (c *SessionConfig) framer() *protocol.Framer {
	return protocol.NewFramer(c.Codec, c.CompressThreshold)
}

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// WebSocket buffer sizes

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// Session configuration

	// SessionConfig is the configuration for individual sessions.
	// Default: DefaultSessionConfig().
	SessionConfig *SessionConfig

	// Server lifecycle

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// Limits

	// MaxSessions is the maximum number of concurrent sessions.
	// 0 means no limit.
	// Default: 0 (no limit).
	MaxSessions int

	// Cleanup

	// CleanupInterval is the interval for the session cleanup loop.
	// Default: 30 seconds.
	CleanupInterval time.Duration

	// Pages

	// ClientScript is the client runtime served with every first page.
	// Default: "/static/liveview.js".
	ClientScript string

	// StyleSheets are linked from every first page.
	StyleSheets []string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
// SECURITY: CheckOrigin enforces same-origin by default to prevent CSWSH.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":8080",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     SameOriginCheck, // SECURE DEFAULT: reject cross-origin
		SessionConfig:   DefaultSessionConfig(),
		ShutdownTimeout: 30 * time.Second,
		MaxSessions:     0, // No limit
		CleanupInterval: 30 * time.Second,
		ClientScript:    "/static/liveview.js",
	}
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
// This is the secure default for CheckOrigin.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., same-origin request or curl)
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}

	// Compare the host portion (includes port if present)
	return originURL.Host == host
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.SessionConfig != nil {
		clone.SessionConfig = c.SessionConfig.Clone()
	}
	if c.StyleSheets != nil {
		clone.StyleSheets = append([]string(nil), c.StyleSheets...)
	}
	return &clone
}

// WithAddress sets the server address and returns the config for chaining.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithSessionConfig sets the session configuration and returns the config for chaining.
func (c *ServerConfig) WithSessionConfig(sc *SessionConfig) *ServerConfig {
	c.SessionConfig = sc
	return c
}

// WithMaxSessions sets the maximum sessions and returns the config for chaining.
func (c *ServerConfig) WithMaxSessions(max int) *ServerConfig {
	c.MaxSessions = max
	return c
}

// WithCleanupInterval sets the cleanup interval and returns the config for chaining.
func (c *ServerConfig) WithCleanupInterval(d time.Duration) *ServerConfig {
	c.CleanupInterval = d
	return c
}
