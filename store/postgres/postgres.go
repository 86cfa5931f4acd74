// Package postgres persists agent memory tails in PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/agentloop/core"
)

// DefaultTable is the table used when Options.Table is empty.
const DefaultTable = "agentloop_kv"

// DefaultOpTimeout bounds a single Get or Set when Options.OpTimeout is unset.
const DefaultOpTimeout = 30 * time.Second

// Options configure a Store.
type Options struct {
	Table    string
	MaxConns int32
	// OpTimeout bounds each Get and Set, waiting for a pooled connection
	// included. Zero or negative disables the deadline.
	OpTimeout time.Duration
}

// Store is a core.Store backed by a single key/value table.
type Store struct {
	pool      *pgxpool.Pool
	table     string
	opTimeout time.Duration
}

var _ core.Store = (*Store)(nil)

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Table: DefaultTable, OpTimeout: DefaultOpTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &Store{pool: pool, table: pgx.Identifier{opts.Table}.Sanitize(), opTimeout: opts.OpTimeout}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// NewFromPool wraps an existing pool. The caller owns the pool.
func NewFromPool(ctx context.Context, pool *pgxpool.Pool, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	s := &Store{pool: pool, table: pgx.Identifier{table}.Sanitize(), opTimeout: DefaultOpTimeout}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Get implements core.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var value []byte

	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table), key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %q: %w", key, err)
	}

	return value, true, nil
}

// Set implements core.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, s.table), key, value)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", key, err)
	}

	return nil
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout > 0 {
		return context.WithTimeout(ctx, s.opTimeout)
	}
	return ctx, func() {}
}

// Close closes the pool.
func (s *Store) Close() { s.pool.Close() }
