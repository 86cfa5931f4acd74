// Package sqlite persists agent memory tails in a SQLite database using the
// pure Go modernc.org/sqlite driver. The schema is managed by embedded goose
// migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentloop/core"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const defaultBusyTimeoutMS = 5000

// DefaultOpTimeout bounds a single Get or Set when Options.OpTimeout is unset.
const DefaultOpTimeout = 30 * time.Second

// Options configure a Store.
type Options struct {
	// OpTimeout bounds each Get and Set, busy retries included. Zero or
	// negative disables the deadline.
	OpTimeout time.Duration
}

// Store is a core.Store backed by a single kv table.
type Store struct {
	db   *sql.DB
	opts Options
}

var _ core.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path, applies pragmas and
// runs migrations. path may be a plain file path, ":memory:" or a file: DSN.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{OpTimeout: DefaultOpTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}

	if path == "" {
		return nil, errors.New("sqlite: empty path")
	}
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", normalizeDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection keeps writes strictly sequential.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeoutMS),
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if err := retry(context.Background(), func() error {
			_, err := db.Exec(pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if err := retry(context.Background(), func() error { return migrate(db) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, opts: opts}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetVerbose(false)
	goose.SetLogger(goose.NopLogger())

	// goose names the dialect "sqlite3" whatever driver is registered.
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.Up(db, "migrations")
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (int64, error) {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(s.db)
}

// Get implements core.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var value []byte

	err := retry(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
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

	err := retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert %q: %w", key, err)
	}

	return nil
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OpTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.OpTimeout)
	}
	return ctx, func() {}
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func normalizeDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	// mode=rwc => read/write/create
	return "file:" + path + "?mode=rwc"
}

// retry retries transient SQLite contention errors with exponential backoff.
func retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	b.RandomizationFactor = 0.1

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}

// isBusy matches modernc.org/sqlite error strings for lock contention.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
