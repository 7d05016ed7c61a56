// Package sqlite implements the credential store on top of a single SQLite
// database file, using the pure-Go modernc.org/sqlite driver through
// database/sql.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB is a connection pool, not a single connection
//   - pragmas set with Exec only affect the connection that ran them, so the
//     ones every connection needs are passed in the DSN (`_pragma=...`)
//   - the schema is owned by goose migrations embedded in the binary
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultQueryTimeout bounds every store call when Options.QueryTimeout is zero.
const DefaultQueryTimeout = 5 * time.Second

// memoryPath opens a private in-memory database. Used by tests.
const memoryPath = ":memory:"

// Options configures New.
type Options struct {
	// Path of the database file, or ":memory:".
	Path string
	// QueryTimeout bounds each store operation. Zero means DefaultQueryTimeout.
	QueryTimeout time.Duration
}

// DB is the SQLite-backed credential store. It implements
// repository.CredentialStore and health.Checker.
type DB struct {
	conn         *sql.DB
	queryTimeout time.Duration
}

// New opens the database at opts.Path, verifies the connection and brings the
// schema up to date.
//
// Typical usage:
//
//	db, err := sqlite.New(ctx, sqlite.Options{Path: "data/techstore.db"})
//	if err != nil { ... }
//	defer db.Close()
func New(ctx context.Context, opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite: database path must not be empty")
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}

	conn, err := sql.Open("sqlite", dsn(opts.Path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a different database, so the pool
	// must never open a second one.
	if opts.Path == memoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, queryTimeout: opts.QueryTimeout}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// dsn appends the per-connection pragmas to path.
//
//   - busy_timeout: concurrent writers wait for the lock instead of failing
//     with SQLITE_BUSY
//   - foreign_keys: off by default in SQLite
//   - journal_mode=WAL: readers do not block the single writer
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	return path + "?" + q.Encode()
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Name identifies the store in readiness reports.
func (db *DB) Name() string { return "sqlite" }

// Check pings the database.
func (db *DB) Check(ctx context.Context) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// migrate applies the embedded goose migrations.
func (db *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.queryTimeout)
}

// sqliteCode returns the extended result code carried by err, or 0.
// Extended codes are enabled by the driver on every connection.
func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func isForeignKeyViolation(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
