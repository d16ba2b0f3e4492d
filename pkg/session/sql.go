package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLStore is a database/sql backed Store.
// It works with PostgreSQL (github.com/lib/pq) and SQLite (modernc.org/sqlite).
// Requires a table with schema (see CreateTable):
//
//	CREATE TABLE liveview_sessions (
//	    id VARCHAR(64) PRIMARY KEY,
//	    data BYTEA NOT NULL,
//	    expires_at BIGINT NOT NULL
//	);
//	CREATE INDEX idx_liveview_sessions_expires ON liveview_sessions(expires_at);
//
// expires_at holds Unix milliseconds so both dialects compare it the same way.
type SQLStore struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectPostgreSQL uses PostgreSQL syntax ($1, $2 placeholders).
	DialectPostgreSQL SQLDialect = iota
	// DialectSQLite uses SQLite syntax (? placeholders).
	DialectSQLite
)

// ParseSQLDialect maps a configuration name to a dialect.
func ParseSQLDialect(name string) (SQLDialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return DialectPostgreSQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return 0, fmt.Errorf("session: unknown SQL dialect %q", name)
	}
}

// DriverName returns the database/sql driver name for the dialect.
func (d SQLDialect) DriverName() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tableName       string
	dialect         SQLDialect
	cleanupInterval time.Duration
	now             func() time.Time
	logger          *slog.Logger
}

// WithSQLTableName sets the table name for session storage.
// Default: "liveview_sessions".
func WithSQLTableName(name string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.tableName = name
	}
}

// WithSQLDialect sets the SQL dialect for query generation.
// Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.dialect = dialect
	}
}

// WithSQLCleanupInterval sets how often expired rows are deleted.
// Zero disables the cleanup loop. Default: 5 minutes.
func WithSQLCleanupInterval(d time.Duration) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.cleanupInterval = d
	}
}

// WithSQLClock sets the time source used for expiry.
func WithSQLClock(now func() time.Time) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.now = now
	}
}

// WithSQLLogger sets the logger for background cleanup failures.
func WithSQLLogger(logger *slog.Logger) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.logger = logger
	}
}

// NewSQLStore creates a new SQL-backed store.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	cfg := &sqlStoreConfig{
		tableName:       "liveview_sessions",
		dialect:         DialectPostgreSQL,
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := &SQLStore{
		db:        db,
		tableName: cfg.tableName,
		dialect:   cfg.dialect,
		now:       cfg.now,
		logger:    cfg.logger.With("component", "sql_store"),
		done:      make(chan struct{}),
	}

	if cfg.cleanupInterval > 0 {
		go store.cleanupLoop(cfg.cleanupInterval)
	}
	return store
}

// query formats a statement for the dialect: %[1]s is the table name and
// each ? becomes the dialect's placeholder.
func (s *SQLStore) query(format string) string {
	q := fmt.Sprintf(format, s.tableName)
	if s.dialect != DialectPostgreSQL {
		return q
	}

	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Save upserts data with a time to live.
func (s *SQLStore) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	if ttl <= 0 {
		return s.Delete(ctx, id)
	}

	expiresAt := s.now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx, s.query(
		`INSERT INTO %[1]s (id, data, expires_at) VALUES (?, ?, ?) `+
			`ON CONFLICT (id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`),
		id, data, expiresAt)
	if err != nil {
		return fmt.Errorf("session: save %s: %w", id, err)
	}
	return nil
}

// Load retrieves data if the row exists and hasn't expired.
func (s *SQLStore) Load(ctx context.Context, id string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, s.query(
		`SELECT data FROM %[1]s WHERE id = ? AND expires_at > ?`),
		id, s.now().UnixMilli()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	return data, nil
}

// Delete removes a row.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, s.query(`DELETE FROM %[1]s WHERE id = ?`), id); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

// DeleteExpired removes every expired row and reports how many were removed.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.query(`DELETE FROM %[1]s WHERE expires_at <= ?`), s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close stops the cleanup loop.
// It does not close the database, which may be shared.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

func (s *SQLStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := s.DeleteExpired(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("expired session cleanup failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
		case <-s.done:
			return
		}
	}
}

// CreateTable creates the session table and its expiry index if they don't exist.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	blob := "BYTEA"
	if s.dialect == DialectSQLite {
		blob = "BLOB"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
			id VARCHAR(64) PRIMARY KEY,
			data %[2]s NOT NULL,
			expires_at BIGINT NOT NULL
		)`, s.tableName, blob),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_expires ON %[1]s(expires_at)`, s.tableName),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("session: create table: %w", err)
		}
	}
	return nil
}
