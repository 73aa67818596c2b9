package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// The blank assignment fails to compile if *DB stops satisfying
// EdgeRepository, so a signature change shows up here instead of in the
// server wiring.
var _ repository.EdgeRepository = (*DB)(nil)

// Likes and bookmarks are "edges": one row per (user, entity) pair, plus a
// denormalized counter on the entity row so lists can show totals without a
// COUNT(*) per item.
//
// THE COUNTER INVARIANT:
// The counter must equal the number of edge rows. Two rules keep it there:
//  1. The edge write and the counter write run in the same transaction, so
//     either both happen or neither does.
//  2. The counter moves only when the edge write actually changed a row
//     (RowsAffected == 1). Liking twice, or unliking something you never
//     liked, touches no counter.
//
// WHY ON CONFLICT DO NOTHING INSTEAD OF "SELECT, THEN INSERT"?
// Two requests from the same user can arrive at once (double click, retry).
// With a read-then-write, both reads see "no edge" and both increment. The
// primary key (user_id, entity_id) lets the database decide: exactly one
// INSERT affects a row, the other affects zero and skips the increment.

// edgeTable names the tables and columns behind one edge kind. Values only
// ever come from edgeTables, never from request input, so they are safe to
// splice into SQL text.
type edgeTable struct {
	edges     string // edge table, primary key (user_id, entityCol)
	entityCol string
	entities  string // entity table with the denormalized counter
	counter   string
	resource  string // used in NotFound messages
}

var edgeTables = map[model.EdgeKind]edgeTable{
	model.PostLike: {
		edges: "post_likes", entityCol: "post_id",
		entities: "posts", counter: "like_count", resource: "post",
	},
	model.CocktailLike: {
		edges: "cocktail_likes", entityCol: "cocktail_id",
		entities: "cocktails", counter: "like_count", resource: "cocktail",
	},
	model.BarBookmark: {
		edges: "bar_bookmarks", entityCol: "bar_id",
		entities: "bars", counter: "bookmark_count", resource: "bar",
	},
}

func lookupEdge(kind model.EdgeKind) (edgeTable, error) {
	t, ok := edgeTables[kind]
	if !ok {
		return edgeTable{}, fmt.Errorf("sqldb: unknown edge kind %q", kind)
	}
	return t, nil
}

// AddEdge inserts the (user, entity) edge if absent and bumps the entity's
// counter only when a row was actually inserted. Both writes share one
// transaction, so a failed counter update leaves no orphan edge.
//
// FLOW:
//
//	BEGIN
//	  INSERT edge ON CONFLICT DO NOTHING   → RowsAffected 1 or 0
//	  UPDATE counter + 1                   (only if 1)
//	  SELECT counter                       → returned total
//	COMMIT
//
// A missing entity surfaces as a foreign-key violation on the INSERT (or no
// row on the SELECT) and is reported as NotFound by edgeError.
func (db *DB) AddEdge(ctx context.Context, kind model.EdgeKind, userID, entityID int64) (model.EdgeStatus, error) {
	t, err := lookupEdge(kind)
	if err != nil {
		return model.EdgeStatus{}, err
	}

	var total int64
	err = db.withTx(ctx, func(tx dbtx) error {
		res, err := tx.ExecContext(ctx, db.q(
			`INSERT INTO `+t.edges+` (user_id, `+t.entityCol+`, created_at) VALUES (?, ?, ?)
			 ON CONFLICT (user_id, `+t.entityCol+`) DO NOTHING`),
			userID, entityID, time.Now().UTC(),
		)
		if err != nil {
			return err
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if inserted == 1 {
			if _, err := tx.ExecContext(ctx, db.q(
				`UPDATE `+t.entities+` SET `+t.counter+` = `+t.counter+` + 1 WHERE id = ?`),
				entityID,
			); err != nil {
				return err
			}
		}

		return tx.QueryRowContext(ctx, db.q(
			`SELECT `+t.counter+` FROM `+t.entities+` WHERE id = ?`), entityID,
		).Scan(&total)
	})
	if err != nil {
		return model.EdgeStatus{}, edgeError(err, t, entityID, "adding")
	}
	return model.EdgeStatus{Total: total, Mine: true}, nil
}

// RemoveEdge deletes the edge if present and decrements the counter, never
// below zero, only when a row was actually deleted.
//
// FLOOR AT ZERO:
// A counter that drifted low (manual SQL, a restore) must not go negative.
// The CASE WHEN keeps it at 0 and the CHECK constraint in the migration
// backs that up; cmd/recount puts drifted counters right again.
func (db *DB) RemoveEdge(ctx context.Context, kind model.EdgeKind, userID, entityID int64) (model.EdgeStatus, error) {
	t, err := lookupEdge(kind)
	if err != nil {
		return model.EdgeStatus{}, err
	}

	var total int64
	err = db.withTx(ctx, func(tx dbtx) error {
		res, err := tx.ExecContext(ctx, db.q(
			`DELETE FROM `+t.edges+` WHERE user_id = ? AND `+t.entityCol+` = ?`),
			userID, entityID,
		)
		if err != nil {
			return err
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if deleted == 1 {
			if _, err := tx.ExecContext(ctx, db.q(
				`UPDATE `+t.entities+` SET `+t.counter+` = CASE WHEN `+t.counter+` > 0 THEN `+t.counter+` - 1 ELSE 0 END
				 WHERE id = ?`),
				entityID,
			); err != nil {
				return err
			}
		}

		return tx.QueryRowContext(ctx, db.q(
			`SELECT `+t.counter+` FROM `+t.entities+` WHERE id = ?`), entityID,
		).Scan(&total)
	})
	if err != nil {
		return model.EdgeStatus{}, edgeError(err, t, entityID, "removing")
	}
	return model.EdgeStatus{Total: total, Mine: false}, nil
}

// EdgeStatus reads the counter and, for an identified caller, whether the
// caller holds an edge. Anonymous callers cost a single query.
func (db *DB) EdgeStatus(ctx context.Context, kind model.EdgeKind, userID *int64, entityID int64) (model.EdgeStatus, error) {
	t, err := lookupEdge(kind)
	if err != nil {
		return model.EdgeStatus{}, err
	}

	var st model.EdgeStatus
	err = db.conn.QueryRowContext(ctx, db.q(
		`SELECT `+t.counter+` FROM `+t.entities+` WHERE id = ?`), entityID,
	).Scan(&st.Total)
	if err != nil {
		return model.EdgeStatus{}, edgeError(err, t, entityID, "reading")
	}

	if userID == nil {
		return st, nil
	}

	var one int
	err = db.conn.QueryRowContext(ctx, db.q(
		`SELECT 1 FROM `+t.edges+` WHERE user_id = ? AND `+t.entityCol+` = ?`),
		*userID, entityID,
	).Scan(&one)
	switch {
	case err == nil:
		st.Mine = true
	case errors.Is(err, sql.ErrNoRows):
	default:
		return model.EdgeStatus{}, fmt.Errorf("sqldb: reading %s edge for %s %d: %w", kind, t.resource, entityID, err)
	}
	return st, nil
}

// Recount sets every counter of kind to the number of its edge rows,
// touching only rows that disagree. Safe to run repeatedly.
func (db *DB) Recount(ctx context.Context, kind model.EdgeKind) (int64, error) {
	t, err := lookupEdge(kind)
	if err != nil {
		return 0, err
	}

	actual := `(SELECT COUNT(*) FROM ` + t.edges + ` e WHERE e.` + t.entityCol + ` = ` + t.entities + `.id)`
	res, err := db.conn.ExecContext(ctx,
		`UPDATE `+t.entities+` SET `+t.counter+` = `+actual+` WHERE `+t.counter+` <> `+actual,
	)
	if err != nil {
		return 0, fmt.Errorf("sqldb: recounting %s: %w", kind, err)
	}
	return res.RowsAffected()
}

// edgeError maps a missing entity (no row, or a foreign-key violation on the
// edge insert) to NotFound and wraps everything else.
func edgeError(err error, t edgeTable, entityID int64, op string) error {
	if errors.Is(err, sql.ErrNoRows) || classify(err).Kind == foreignKeyViolation {
		return apperror.NotFound(t.resource, strconv.FormatInt(entityID, 10))
	}
	return fmt.Errorf("sqldb: %s %s edge on %d: %w", op, t.resource, entityID, err)
}
