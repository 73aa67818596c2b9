package sqldb

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL driver and the small syntax differences between
// the supported databases. Queries are written with "?" placeholders and
// rebound per dialect.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect accepts the DB_DRIVER config values.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return "", errors.New("sqldb: unsupported driver " + strconv.Quote(s))
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) gooseDialect() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite3"
}

func (d Dialect) migrationsDir() string {
	if d == Postgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

// rebind rewrites "?" placeholders to "$1..$n" for Postgres.
// None of our statements contain a literal question mark.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type violationKind int

const (
	noViolation violationKind = iota
	uniqueViolation
	foreignKeyViolation
)

// violation describes a constraint error in driver-neutral terms. Target is
// "table.column" for unique violations when the driver reports it.
type violation struct {
	Kind   violationKind
	Target string
}

var sqliteConstraintMsg = regexp.MustCompile(`UNIQUE constraint failed: ([\w.]+)`)

// pgConstraintTargets maps the named Postgres constraints to the same
// "table.column" targets SQLite reports.
var pgConstraintTargets = map[string]string{
	"users_login_id_key": "users.login_id",
	"users_email_key":    "users.email",
	"users_phone_key":    "users.phone",
}

// classify inspects a driver error and reports which constraint, if any,
// it violated.
func classify(err error) violation {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// The primary code is in the low byte; the message names the
		// constraint family whether or not extended codes are reported.
		if sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
			return violation{}
		}
		msg := sqliteErr.Error()
		switch {
		case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
			strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return violation{Kind: foreignKeyViolation}
		case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			strings.Contains(msg, "UNIQUE constraint failed"):
			v := violation{Kind: uniqueViolation}
			if m := sqliteConstraintMsg.FindStringSubmatch(msg); m != nil {
				v.Target = m[1]
			}
			return v
		}
		return violation{}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			target, ok := pgConstraintTargets[pgErr.ConstraintName]
			if !ok {
				target = pgErr.ConstraintName
			}
			return violation{Kind: uniqueViolation, Target: target}
		case "23503":
			return violation{Kind: foreignKeyViolation}
		}
	}
	return violation{}
}
