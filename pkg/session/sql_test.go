package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSQLStore(t *testing.T, dialect SQLDialect) (*SQLStore, sqlmock.Sqlmock, *fakeClock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := newFakeClock()
	store := NewSQLStore(db,
		WithSQLDialect(dialect),
		WithSQLCleanupInterval(0),
		WithSQLClock(clock.Now),
	)
	t.Cleanup(func() { store.Close() })
	return store, mock, clock
}

func TestSQLStoreSavePostgres(t *testing.T) {
	store, mock, clock := newMockSQLStore(t, DialectPostgreSQL)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO liveview_sessions (id, data, expires_at) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE")).
		WithArgs("s1", []byte("state"), clock.Now().Add(time.Minute).UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), "s1", []byte("state"), time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSaveSQLite(t *testing.T) {
	store, mock, _ := newMockSQLStore(t, DialectSQLite)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO liveview_sessions (id, data, expires_at) VALUES (?, ?, ?)")).
		WithArgs("s1", []byte("state"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), "s1", []byte("state"), time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreLoad(t *testing.T) {
	store, mock, clock := newMockSQLStore(t, DialectPostgreSQL)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM liveview_sessions WHERE id = $1 AND expires_at > $2")).
		WithArgs("s1", clock.Now().UnixMilli()).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte("state")))

	got, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreLoadMissing(t *testing.T) {
	store, mock, _ := newMockSQLStore(t, DialectPostgreSQL)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM liveview_sessions")).
		WithArgs("nope", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	got, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLStoreLoadError(t *testing.T) {
	store, mock, _ := newMockSQLStore(t, DialectPostgreSQL)
	boom := errors.New("connection reset")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM liveview_sessions")).
		WillReturnError(boom)

	_, err := store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, boom)
}

func TestSQLStoreDeleteAndNonPositiveTTL(t *testing.T) {
	store, mock, _ := newMockSQLStore(t, DialectPostgreSQL)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM liveview_sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM liveview_sessions WHERE id = $1")).
		WithArgs("s2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), "s1"))
	require.NoError(t, store.Save(context.Background(), "s2", []byte("x"), 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreDeleteExpired(t *testing.T) {
	store, mock, clock := newMockSQLStore(t, DialectSQLite)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM liveview_sessions WHERE expires_at <= ?")).
		WithArgs(clock.Now().UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSQLStoreCreateTable(t *testing.T) {
	store, mock, _ := newMockSQLStore(t, DialectSQLite)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS liveview_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_liveview_sessions_expires")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.CreateTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreClosed(t *testing.T) {
	store, _, _ := newMockSQLStore(t, DialectPostgreSQL)
	require.NoError(t, store.Close())

	_, err := store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Save(context.Background(), "s1", nil, time.Minute), ErrStoreClosed)
}

func TestParseSQLDialect(t *testing.T) {
	tests := []struct {
		in     string
		want   SQLDialect
		driver string
	}{
		{"postgres", DialectPostgreSQL, "postgres"},
		{"PostgreSQL", DialectPostgreSQL, "postgres"},
		{"sqlite", DialectSQLite, "sqlite"},
	}
	for _, tc := range tests {
		got, err := ParseSQLDialect(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.driver, got.DriverName())
	}

	_, err := ParseSQLDialect("mysql")
	assert.Error(t, err)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*SQLStore)(nil)
	_ Store = (*S3Store)(nil)
)
