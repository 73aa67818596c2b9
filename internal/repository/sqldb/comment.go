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

var _ repository.CommentRepository = (*DB)(nil)

// CreateComment attaches a comment to an existing post.
func (db *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	now := time.Now().UTC()
	err := db.conn.QueryRowContext(ctx, db.q(
		`INSERT INTO comments (post_id, user_id, body, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		c.PostID, c.UserID, c.Body, now,
	).Scan(&c.ID)
	if err != nil {
		if classify(err).Kind == foreignKeyViolation {
			return apperror.NotFound("post", strconv.FormatInt(c.PostID, 10))
		}
		return fmt.Errorf("sqldb: inserting comment on post %d: %w", c.PostID, err)
	}
	c.CreatedAt = now
	return nil
}

func (db *DB) GetComment(ctx context.Context, id int64) (*model.Comment, error) {
	var c model.Comment
	err := db.conn.QueryRowContext(ctx, db.q(
		`SELECT c.id, c.post_id, c.user_id, u.login_id, c.body, c.created_at
		 FROM comments c JOIN users u ON u.id = c.user_id
		 WHERE c.id = ?`), id,
	).Scan(&c.ID, &c.PostID, &c.UserID, &c.Author, &c.Body, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("comment", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqldb: getting comment %d: %w", id, err)
	}
	return &c, nil
}

// ListComments returns a post's comments, oldest first.
func (db *DB) ListComments(ctx context.Context, postID int64) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(
		`SELECT c.id, c.post_id, c.user_id, u.login_id, c.body, c.created_at
		 FROM comments c JOIN users u ON u.id = c.user_id
		 WHERE c.post_id = ?
		 ORDER BY c.created_at ASC, c.id ASC`), postID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing comments of post %d: %w", postID, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqldb: scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating comments: %w", err)
	}
	return comments, nil
}

func (db *DB) DeleteComment(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM comments WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqldb: deleting comment %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: deleting comment %d: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("comment", strconv.FormatInt(id, 10))
	}
	return nil
}
