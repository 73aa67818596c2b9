package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

var _ repository.PostRepository = (*DB)(nil)

const postSelect = `SELECT p.id, p.user_id, u.login_id, p.title, p.body, p.tags, p.like_count, p.created_at, p.updated_at
	FROM posts p JOIN users u ON u.id = p.user_id`

func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	if post.Tags == nil {
		post.Tags = []string{}
	}
	tags, err := json.Marshal(post.Tags)
	if err != nil {
		return fmt.Errorf("sqldb: encoding tags: %w", err)
	}

	now := time.Now().UTC()
	err = db.conn.QueryRowContext(ctx, db.q(
		`INSERT INTO posts (user_id, title, body, tags, like_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 RETURNING id`),
		post.UserID, post.Title, post.Body, string(tags), now, now,
	).Scan(&post.ID)
	if err != nil {
		if classify(err).Kind == foreignKeyViolation {
			return apperror.NotFound("user", strconv.FormatInt(post.UserID, 10))
		}
		return fmt.Errorf("sqldb: inserting post: %w", err)
	}
	post.LikeCount = 0
	post.CreatedAt = now
	post.UpdatedAt = now
	return nil
}

func (db *DB) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(postSelect+` WHERE p.id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("sqldb: getting post %d: %w", id, err)
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return nil, fmt.Errorf("sqldb: getting post %d: %w", id, err)
	}
	if len(posts) == 0 {
		return nil, apperror.NotFound("post", strconv.FormatInt(id, 10))
	}
	return &posts[0], nil
}

// ListPosts returns one page of posts, newest first, and the total number
// of posts matching the filter. The keyword matches title, body or an exact
// tag, case-insensitively.
func (db *DB) ListPosts(ctx context.Context, f repository.PostFilter) ([]model.Post, int64, error) {
	where, args := postKeywordClause(f.Keyword)

	var total int64
	err := db.conn.QueryRowContext(ctx, db.q(`SELECT COUNT(*) FROM posts p`+where), args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqldb: counting posts: %w", err)
	}

	pageArgs := append(args, f.Limit, f.Offset)
	rows, err := db.conn.QueryContext(ctx, db.q(
		postSelect+where+` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqldb: listing posts: %w", err)
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("sqldb: listing posts: %w", err)
	}
	return posts, total, nil
}

func (db *DB) LatestPosts(ctx context.Context, limit int) ([]model.Post, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(
		postSelect+` ORDER BY p.created_at DESC, p.id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing latest posts: %w", err)
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing latest posts: %w", err)
	}
	return posts, nil
}

// DeletePost removes a post; its comments and likes go with it.
func (db *DB) DeletePost(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM posts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqldb: deleting post %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: deleting post %d: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("post", strconv.FormatInt(id, 10))
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// postKeywordClause builds the WHERE clause for a keyword search.
// LIKE wildcards in the keyword are matched literally.
func postKeywordClause(keyword string) (string, []any) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return "", nil
	}
	like := "%" + likeEscaper.Replace(keyword) + "%"
	quoted, _ := json.Marshal(keyword)
	tagLike := "%" + likeEscaper.Replace(string(quoted)) + "%"

	return ` WHERE (LOWER(p.title) LIKE ? ESCAPE '\' OR LOWER(p.body) LIKE ? ESCAPE '\' OR LOWER(p.tags) LIKE ? ESCAPE '\')`,
		[]any{like, like, tagLike}
}

func scanPosts(rows *sql.Rows) ([]model.Post, error) {
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var (
			p    model.Post
			tags string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Author, &p.Title, &p.Body, &tags, &p.LikeCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags of post %d: %w", p.ID, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}
