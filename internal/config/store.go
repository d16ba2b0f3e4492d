package config

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/liveview/internal/errors"
	"github.com/vango-dev/liveview/pkg/session"
)

// OpenStore connects the configured view state store. SQL drivers must be
// registered by the caller (lib/pq for postgres, modernc.org/sqlite for
// sqlite). The returned store owns any connection it opened.
func (s *StoreConfig) OpenStore(ctx context.Context, logger *slog.Logger) (session.Store, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch s.Driver {
	case "redis":
		client := session.NewRedisClient(s.Redis.Address, s.Redis.Password, s.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, unreachable("redis", s.Redis.Address, err)
		}
		store := session.NewRedisStore(client, session.WithRedisPrefix(s.Redis.Prefix))
		return &owningStore{Store: store, close: client.Close}, nil

	case "postgres", "sqlite":
		dialect, err := session.ParseSQLDialect(s.Driver)
		if err != nil {
			return nil, errors.New("E120").Wrap(err)
		}
		db, err := sql.Open(dialect.DriverName(), s.SQL.DSN)
		if err != nil {
			return nil, unreachable(s.Driver, "", err)
		}
		if dialect == session.DialectSQLite {
			// SQLite serializes writers; one connection avoids SQLITE_BUSY.
			db.SetMaxOpenConns(1)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, unreachable(s.Driver, "", err)
		}
		store := session.NewSQLStore(db,
			session.WithSQLDialect(dialect),
			session.WithSQLTableName(s.SQL.Table),
			session.WithSQLLogger(logger),
		)
		if err := store.CreateTable(ctx); err != nil {
			store.Close()
			db.Close()
			return nil, unreachable(s.Driver, "", err)
		}
		return &owningStore{Store: store, close: db.Close}, nil

	case "s3":
		opts := []func(*awsconfig.LoadOptions) error{}
		if s.S3.Region != "" {
			opts = append(opts, awsconfig.WithRegion(s.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, unreachable("s3", s.S3.Bucket, err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if s.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.S3.Endpoint)
				o.UsePathStyle = true
			}
		})
		return session.NewS3Store(client, s.S3.Bucket, s.S3.Prefix), nil

	default:
		return session.NewMemoryStore(), nil
	}
}

func unreachable(driver, target string, err error) *errors.Error {
	e := errors.New("E122").Wrap(err)
	if target != "" {
		return e.WithSuggestion("check that the " + driver + " store at " + target + " is reachable")
	}
	return e.WithSuggestion("check store.sql.dsn for the " + driver + " driver")
}

// owningStore closes the connection it was opened with after the store.
type owningStore struct {
	session.Store
	close func() error
}

func (o *owningStore) Close() error {
	return stderrors.Join(o.Store.Close(), o.close())
}
