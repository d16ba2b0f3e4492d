package config

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vango-dev/liveview/internal/errors"
	"github.com/vango-dev/liveview/pkg/protocol"
	"github.com/vango-dev/liveview/pkg/server"
)

// ServerConfig converts the validated config into the server's form.
func (c *Config) ServerConfig() (*server.ServerConfig, error) {
	sc := server.DefaultServerConfig()
	sc.Address = c.Server.Address
	sc.MaxSessions = c.Server.MaxSessions
	sc.ReadBufferSize = c.Server.ReadBufferSize
	sc.WriteBufferSize = c.Server.WriteBufferSize
	sc.ClientScript = c.Server.ClientScript
	sc.StyleSheets = slices.Clone(c.Server.StyleSheets)
	if len(c.Server.AllowedOrigins) > 0 {
		sc.CheckOrigin = AllowOrigins(c.Server.AllowedOrigins)
	}

	var err error
	if sc.ShutdownTimeout, err = parseDuration("server.shutdownTimeout", c.Server.ShutdownTimeout); err != nil {
		return nil, err
	}
	if sc.CleanupInterval, err = parseDuration("server.cleanupInterval", c.Server.CleanupInterval); err != nil {
		return nil, err
	}

	session, err := c.SessionConfig()
	if err != nil {
		return nil, err
	}
	sc.SessionConfig = session
	return sc, nil
}

// SessionConfig converts the session section.
func (c *Config) SessionConfig() (*server.SessionConfig, error) {
	s := c.Session
	sc := server.DefaultSessionConfig()

	var err error
	for _, d := range []struct {
		field, value string
		dst          *time.Duration
	}{
		{"session.readTimeout", s.ReadTimeout, &sc.ReadTimeout},
		{"session.writeTimeout", s.WriteTimeout, &sc.WriteTimeout},
		{"session.idleTimeout", s.IdleTimeout, &sc.IdleTimeout},
		{"session.heartbeatInterval", s.HeartbeatInterval, &sc.HeartbeatInterval},
		{"session.stateTTL", s.StateTTL, &sc.StateTTL},
	} {
		if *d.dst, err = parseDuration(d.field, d.value); err != nil {
			return nil, err
		}
	}

	sc.MaxMessageSize = s.MaxMessageSize
	sc.MaxEventQueue = s.MaxEventQueue
	sc.EventRate = rate.Limit(max(s.EventRate, 0))
	sc.EventBurst = s.EventBurst
	sc.MaxRateWarnings = max(s.MaxRateWarnings, 0)
	sc.CompressThreshold = s.CompressThreshold

	if sc.Codec, err = protocol.CodecByName(s.Codec); err != nil {
		return nil, invalid("session.codec", err.Error())
	}
	return sc, nil
}

// AllowOrigins accepts same-origin requests and requests whose Origin host
// is listed. A "*" entry accepts any origin.
func AllowOrigins(hosts []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		// Entries may be bare hosts or full origins.
		if u, err := url.Parse(h); err == nil && u.Host != "" {
			h = u.Host
		}
		allowed[strings.ToLower(h)] = true
	}
	return func(r *http.Request) bool {
		if server.SameOriginCheck(r) || allowed["*"] {
			return true
		}
		u, err := url.Parse(r.Header.Get("Origin"))
		return err == nil && allowed[strings.ToLower(u.Host)]
	}
}

// Logger builds a slog logger writing to w.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch l.Format {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, errors.New("E105").WithSuggestion("log.format must be text or json")
	}
	return slog.New(h), nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.New("E105").
			WithSuggestion("log.level is \"" + l.Level + "\"; use debug, info, warn or error").
			Wrap(err)
	}
	return level, nil
}
