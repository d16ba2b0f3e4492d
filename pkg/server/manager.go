package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/liveview/pkg/protocol"
)

// SessionManager tracks live sessions. It enforces the session limit and
// terminates sessions that have been idle longer than their IdleTimeout.
type SessionManager struct {
	// Sessions map protected by RWMutex
	sessions map[string]*Session
	mu       sync.RWMutex

	maxSessions int

	// Cleanup
	cleanupInterval time.Duration
	now             func() time.Time
	done            chan struct{}
	cleanupDone     chan struct{} // Signals that cleanup goroutine has exited
	shutdownOnce    sync.Once

	// Metrics
	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peakSessions int

	logger *slog.Logger
}

// ManagerStats is a snapshot of session manager counters.
type ManagerStats struct {
	Active       int
	TotalCreated uint64
	TotalClosed  uint64
	Peak         int
}

// NewSessionManager creates a manager and starts its cleanup loop.
// maxSessions 0 means no limit; a non-positive cleanupInterval defaults to 30s.
func NewSessionManager(maxSessions int, cleanupInterval time.Duration, logger *slog.Logger) *SessionManager {
	if cleanupInterval <= 0 {
		cleanupInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	sm := &SessionManager{
		sessions:        make(map[string]*Session),
		maxSessions:     maxSessions,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		done:            make(chan struct{}),
		cleanupDone:     make(chan struct{}),
		logger:          logger.With("component", "session_manager"),
	}

	go sm.cleanupLoop()

	return sm
}

// Add registers s. The session removes itself when it terminates.
func (sm *SessionManager) Add(s *Session) error {
	sm.mu.Lock()
	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		sm.mu.Unlock()
		return ErrMaxSessionsReached
	}
	if _, exists := sm.sessions[s.ID]; exists {
		sm.mu.Unlock()
		return NewSessionError(s.ID, "add", ErrAlreadyMounted)
	}
	sm.sessions[s.ID] = s
	if len(sm.sessions) > sm.peakSessions {
		sm.peakSessions = len(sm.sessions)
	}
	active := len(sm.sessions)
	sm.mu.Unlock()

	sm.totalCreated.Add(1)
	s.setOnTerminate(sm.remove)

	sm.logger.Debug("session added",
		"session_id", s.ID,
		"active_sessions", active)
	return nil
}

func (sm *SessionManager) remove(s *Session) {
	sm.mu.Lock()
	if cur, ok := sm.sessions[s.ID]; ok && cur == s {
		delete(sm.sessions, s.ID)
		sm.totalClosed.Add(1)
	}
	sm.mu.Unlock()
}

// Get returns the session with id, or nil.
func (sm *SessionManager) Get(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Close terminates the session with id.
func (sm *SessionManager) Close(id string, reason string) error {
	s := sm.Get(id)
	if s == nil {
		return ErrSessionNotFound
	}
	s.Terminate(reason)
	return nil
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Stats returns the manager's counters.
func (sm *SessionManager) Stats() ManagerStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return ManagerStats{
		Active:       len(sm.sessions),
		TotalCreated: sm.totalCreated.Load(),
		TotalClosed:  sm.totalClosed.Load(),
		Peak:         sm.peakSessions,
	}
}

// ForEach calls fn for every live session until fn returns false.
func (sm *SessionManager) ForEach(fn func(*Session) bool) {
	for _, s := range sm.snapshot() {
		if !fn(s) {
			return
		}
	}
}

func (sm *SessionManager) snapshot() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (sm *SessionManager) cleanupLoop() {
	defer close(sm.cleanupDone)

	ticker := time.NewTicker(sm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.cleanupExpired()
		case <-sm.done:
			return
		}
	}
}

// cleanupExpired terminates every idle-expired session and returns how many
// were terminated.
func (sm *SessionManager) cleanupExpired() int {
	now := sm.now()
	var expired []*Session
	for _, s := range sm.snapshot() {
		if s.IdleExpired(now) {
			expired = append(expired, s)
		}
	}

	for _, s := range expired {
		s.Terminate(protocol.CloseSessionExpired)
	}
	if len(expired) > 0 {
		sm.logger.Info("expired sessions terminated",
			"count", len(expired),
			"active_sessions", sm.Count())
	}
	return len(expired)
}

// Shutdown stops the cleanup loop and terminates every session, concurrently.
// It returns ctx.Err() if ctx ends before all sessions are torn down.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.shutdownOnce.Do(func() {
		close(sm.done)
	})
	<-sm.cleanupDone

	sessions := sm.snapshot()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Terminate(protocol.CloseServerShutdown)
		}(s)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		sm.logger.Info("session manager shutdown", "closed_sessions", len(sessions))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
