// Package sqldb implements the repository interfaces on database/sql.
//
// Two dialects are supported: SQLite through the pure-Go modernc.org/sqlite
// driver (the default, also used by the tests) and PostgreSQL through
// pgx's database/sql adapter. Schema changes live in embedded goose
// migrations, one directory per dialect.
//
// ONE SQL, TWO DATABASES:
// Every query is written once with "?" placeholders and passed through
// db.q(), which rewrites them to $1, $2, ... for Postgres (see dialect.go).
// The statements stick to the subset both databases understand:
//   - INSERT ... ON CONFLICT (...) DO NOTHING   (idempotent edge inserts)
//   - INSERT ... RETURNING id                   (new row ids)
//   - CASE WHEN                                 (counters floored at zero)
//
// Timestamps are generated in Go (time.Now().UTC()) rather than by
// CURRENT_TIMESTAMP, so both dialects store and return the same values.
//
// DRIVER ERRORS STAY HERE:
// Each driver reports a broken constraint differently (*sqlite.Error codes
// vs. *pgconn.PgError SQLSTATEs). classify() turns both into a neutral
// violation, and the repository methods turn that into apperror values.
// Nothing above this package ever sees a driver type.
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	// BLANK IMPORTS:
	// Both drivers register themselves with database/sql in their init()
	// functions, as "pgx" and "sqlite". After these imports sql.Open can
	// reach either database by name; we never call the packages directly.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// DB wraps a sql.DB connection pool and implements every repository
// interface in the parent package.
//
// WHY ONE TYPE FOR EVERY REPOSITORY?
// Users, OAuth links, edges, posts and the catalog share one pool, and the
// OAuth link and counter operations need transactions that span tables.
// The services still only see the narrow interfaces from repository.go.
type DB struct {
	conn    *sql.DB // connection pool, NOT a single connection
	dialect Dialect // decides placeholder style and migration directory
}

// Open connects to the database, applies pending migrations and returns a
// ready DB.
//
// SQLite DSN examples:
//   - "data/cocktails.db" → file-based database
//   - ":memory:"          → in-memory database, used by tests
//
// CONNECTION POOL:
// sql.Open does not connect; it only builds the pool manager. PingContext
// forces the first real connection so a bad DSN fails at startup instead of
// on the first request.
//
// SQLite runs on a single connection: writers are serialized by the pool
// instead of failing with SQLITE_BUSY, and ":memory:" keeps one database for
// the lifetime of the pool. Postgres gets a normal pool.
//
// MIGRATIONS:
// goose applies whatever embedded migrations the database has not seen yet
// and records them in its version table, so Open is safe to call on every
// start.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	if dialect == SQLite {
		dsn = withSQLitePragmas(dsn)
	}

	conn, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening %s database: %w", dialect, err)
	}

	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: pinging %s database: %w", dialect, err)
	}

	if dialect == SQLite {
		// WAL lets readers proceed while a write is in flight on file databases.
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqldb: setting WAL mode: %w", err)
		}
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: running migrations: %w", err)
	}
	return db, nil
}

// NewWithDB wraps an existing pool without running migrations.
func NewWithDB(conn *sql.DB, dialect Dialect) *DB {
	return &DB{conn: conn, dialect: dialect}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(db.dialect.gooseDialect()); err != nil {
		return err
	}
	return goose.UpContext(ctx, db.conn, db.dialect.migrationsDir())
}

// q rebinds a "?" query for the active dialect.
func (db *DB) q(query string) string {
	return db.dialect.rebind(query)
}

// withSQLitePragmas appends per-connection pragmas to a modernc DSN.
// Foreign keys are off by default in SQLite.
func withSQLitePragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
