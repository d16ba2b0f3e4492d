package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/liveview/pkg/component"
	"github.com/vango-dev/liveview/pkg/protocol"
	"github.com/vango-dev/liveview/pkg/render"
	"github.com/vango-dev/liveview/pkg/session"
)

// sessionParam is the query parameter carrying the session ID from the
// first page to the socket.
const sessionParam = "session"

// ViewFactory creates a fresh root view instance for one session.
type ViewFactory func() component.View

// Server serves liveview pages and their sockets.
//
// Routes:
//
//	GET /live/{view}     first page, rendered from a disconnected mount
//	GET /live/ws/{view}  WebSocket carrying the session
//	GET /metrics         Prometheus metrics
//	GET /healthz         liveness
//
// The first page and the socket are separate mounts of the same session ID;
// view state crosses from one to the other through the session store.
type Server struct {
	config   *ServerConfig
	renderer render.Renderer
	opts     []SessionOption

	views   map[string]ViewFactory
	viewsMu sync.RWMutex

	sessions  *SessionManager
	store     session.Store
	ownsStore bool
	gatherer  prometheus.Gatherer
	upgrader  websocket.Upgrader
	html      *render.HTMLWriter
	logger    *slog.Logger
	router    chi.Router

	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a server. opts apply to every session it creates; the
// logger, store and metrics they carry are also used by the server itself.
// Without WithStore the server keeps state in a session.MemoryStore.
func New(config *ServerConfig, renderer render.Renderer, opts ...SessionOption) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	config = config.Clone()
	if config.SessionConfig == nil {
		config.SessionConfig = DefaultSessionConfig()
	}
	if config.CheckOrigin == nil {
		config.CheckOrigin = SameOriginCheck
	}

	resolved := sessionOptions{config: config.SessionConfig}
	for _, opt := range opts {
		opt(&resolved)
	}
	if resolved.logger == nil {
		resolved.logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		renderer: renderer,
		views:    make(map[string]ViewFactory),
		gatherer: prometheus.DefaultGatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		html:   render.NewHTMLWriter(render.HTMLConfig{}),
		logger: resolved.logger.With("component", "server"),
		ctx:    ctx,
		cancel: cancel,
	}

	s.store = resolved.store
	if s.store == nil {
		s.store = session.NewMemoryStore()
		s.ownsStore = true
	}

	s.opts = append([]SessionOption{WithSessionConfig(config.SessionConfig)}, opts...)
	s.opts = append(s.opts, WithStore(s.store))

	s.sessions = NewSessionManager(config.MaxSessions, config.CleanupInterval, resolved.logger)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/live/ws/{view}", s.HandleWebSocket)
	r.Get("/live/{view}", s.HandlePage)
	return r
}

// Register makes a view available under name.
func (s *Server) Register(name string, factory ViewFactory) {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	s.views[name] = factory
}

// Views returns the registered view names in sorted order.
func (s *Server) Views() []string {
	s.viewsMu.RLock()
	defer s.viewsMu.RUnlock()
	names := make([]string, 0, len(s.views))
	for name := range s.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) view(name string) (component.View, error) {
	s.viewsMu.RLock()
	factory, ok := s.views[name]
	s.viewsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	return factory(), nil
}

// SetGatherer sets the registry served on /metrics.
// Default: prometheus.DefaultGatherer.
func (s *Server) SetGatherer(g prometheus.Gatherer) {
	s.gatherer = g
	s.router = s.routes()
}

// Router returns the chi router serving every liveview route, for mounting
// under a larger application.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ok %d\n", s.sessions.Count())
}

// HandlePage renders the first page of a view. The view is mounted in a
// disconnected session whose state is persisted for the socket to pick up.
func (s *Server) HandlePage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "view")
	view, err := s.view(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	opts := append(s.sessionOptions(name, ""), WithMetrics(nil))
	sess := NewSession(view, s.renderer, discardTransport{}, opts...)
	params := queryParams(r.URL.Query())
	if err := sess.Mount(r.Context(), params); err != nil {
		s.logger.Error("page mount failed", "view", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer sess.Terminate(protocol.CloseNormal)

	socket := url.Values{}
	for k, v := range params {
		socket.Set(k, v)
	}
	socket.Set(sessionParam, sess.ID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.html.RenderPage(w, render.PageData{
		Body:         sess.Tree(),
		Title:        name,
		SessionID:    sess.ID,
		SocketURL:    "/live/ws/" + url.PathEscape(name) + "?" + socket.Encode(),
		ClientScript: s.config.ClientScript,
		StyleSheets:  s.config.StyleSheets,
	}); err != nil {
		s.logger.Warn("page write failed", "view", name, "error", err)
	}
}

// HandleWebSocket upgrades the request and runs a session on the connection
// until either side closes it.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "view")
	view, err := s.view(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	query := r.URL.Query()
	id := query.Get(sessionParam)
	if id != "" && s.sessions.Get(id) != nil {
		// The session is live on another socket; start a fresh one.
		id = ""
	}

	transport := NewWebSocketTransport(conn, s.config.SessionConfig, s.logger)
	sess := NewSession(view, s.renderer, transport, s.sessionOptions(name, id)...)

	if err := s.sessions.Add(sess); err != nil {
		s.logger.Warn("session rejected", "error", err)
		transport.Send(r.Context(), protocol.NewClose(protocol.CloseError))
		transport.Close()
		return
	}

	// The request context ends with the handler; the session outlives the
	// upgrade only through the server's context.
	if err := sess.Mount(s.ctx, queryParams(query)); err != nil {
		transport.Send(s.ctx, protocol.NewError(0, protocol.CodeInternal, "mount failed"))
		sess.Terminate(protocol.CloseError)
		return
	}
	if err := sess.Start(s.ctx); err != nil {
		sess.Terminate(protocol.CloseError)
		return
	}

	go transport.Heartbeat()
	transport.ReadLoop(sess)
	sess.Terminate(protocol.CloseNormal)
}

func (s *Server) sessionOptions(view, id string) []SessionOption {
	opts := make([]SessionOption, 0, len(s.opts)+2)
	opts = append(opts, s.opts...)
	opts = append(opts, WithViewName(view))
	if id != "" {
		opts = append(opts, WithSessionID(id))
	}
	return opts
}

// queryParams flattens a query to mount params, dropping the session ID.
func queryParams(q url.Values) map[string]string {
	params := make(map[string]string, len(q))
	for k, v := range q {
		if k == sessionParam || len(v) == 0 {
			continue
		}
		params[k] = v[0]
	}
	return params
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Run starts the server and blocks until it fails or receives SIGINT or
// SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: s,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address, "views", s.Views())
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown terminates every session, stops the HTTP server and closes the
// store if the server created it.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.sessions.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
