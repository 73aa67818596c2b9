package sqldb

import (
	"context"
	"database/sql"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
//
// WHY AN INTERFACE?
// Helpers such as createUser run both on their own (db.conn) and inside a
// larger transaction (the OAuth link). Accepting dbtx lets the caller pick;
// the helper cannot tell the difference.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back on error or panic; panics are re-raised after the rollback.
//
// NAMED RETURN + DEFER:
// err is a named result so the deferred function can both read it (did fn
// fail?) and overwrite it (did Commit fail?). Without that, a failed Commit
// would be silently dropped and the caller would believe the write landed.
//
// USAGE:
//
//	err := db.withTx(ctx, func(tx dbtx) error {
//	    if _, err := tx.ExecContext(ctx, ...); err != nil {
//	        return err // → ROLLBACK
//	    }
//	    return nil     // → COMMIT
//	})
func (db *DB) withTx(ctx context.Context, fn func(tx dbtx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}

// nullIfEmpty maps optional string fields to SQL NULL.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
