// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultConnMaxIdleTime = time.Minute
)

// Config holds connection settings shared by PostgreSQL and MySQL.
type Config struct {
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
		ConnMaxIdleTime: DefaultConnMaxIdleTime,
	}
}

// Store implements store.Store over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.Store = (*Store)(nil)

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open opens and pings a database using a registered driver name.
func Open(driverName string, dialect Dialect, cfg Config) (*Store, error) {
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, DefaultMaxOpenConns))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, DefaultMaxIdleConns))
	db.SetConnMaxLifetime(orDefault(cfg.ConnMaxLifetime, DefaultConnMaxLifetime))
	db.SetConnMaxIdleTime(orDefault(cfg.ConnMaxIdleTime, DefaultConnMaxIdleTime))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info().Str("dialect", dialect.Name()).Msg("store: connected")
	return NewStore(db, dialect), nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// DB exposes the pool, e.g. for the durable task queue.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) conn() conn { return conn{q: s.db, dialect: s.dialect} }

func (s *Store) Nodes() store.NodeStore         { return nodes{s.conn()} }
func (s *Store) Resources() store.ResourceStore { return resources{s.conn()} }
func (s *Store) Services() store.ServiceStore   { return services{s.conn()} }

// WithTx runs fn in a database transaction, retrying deadlocks a few times.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	const maxAttempts = 3

	var err error
	for attempt := range maxAttempts {
		err = s.withTxOnce(ctx, fn)
		if err == nil || !s.dialect.IsDeadlock(err) {
			return err
		}
		DeadlockRetries.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(10<<attempt) * time.Millisecond):
		}
	}
	return err
}

func (s *Store) withTxOnce(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txStore{conn{q: sqlTx, dialect: s.dialect}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			logger.Ctx(ctx).Warn().Err(rbErr).Msg("store: rollback failed")
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txStore struct{ c conn }

func (t txStore) Nodes() store.NodeStore         { return nodes{t.c} }
func (t txStore) Resources() store.ResourceStore { return resources{t.c} }
func (t txStore) Services() store.ServiceStore   { return services{t.c} }

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type conn struct {
	q       querier
	dialect Dialect
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.dialect.ReplacePlaceholders(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.dialect.ReplacePlaceholders(query), args...)
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := c.q.ExecContext(ctx, c.dialect.ReplacePlaceholders(query), args...)
	QueryDuration.WithLabelValues(c.dialect.Name(), "exec").Observe(time.Since(start).Seconds())
	return res, err
}

func mustAffect(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
