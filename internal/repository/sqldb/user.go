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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, login_id, password_hash, name, email, phone, birthday, created_at, updated_at`

// CreateUser inserts a new account and fills in ID and timestamps.
// A clash on login_id, email or phone is reported as a field-specific Conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	return createUser(ctx, db, db.conn, user)
}

func createUser(ctx context.Context, db *DB, x dbtx, user *model.User) error {
	now := time.Now().UTC()
	err := x.QueryRowContext(ctx, db.q(
		`INSERT INTO users (login_id, password_hash, name, email, phone, birthday, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		user.LoginID,
		nullIfEmpty(user.PasswordHash),
		user.Name,
		nullIfEmpty(user.Email),
		nullIfEmpty(user.Phone),
		nullIfEmpty(user.Birthday),
		now,
		now,
	).Scan(&user.ID)
	if err != nil {
		if v := classify(err); v.Kind == uniqueViolation {
			return userConflict(v.Target)
		}
		return fmt.Errorf("sqldb: inserting user %q: %w", user.LoginID, err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func userConflict(target string) error {
	switch target {
	case "users.email":
		return apperror.Conflict("email", "email is already in use")
	case "users.phone":
		return apperror.Conflict("phone", "phone number is already in use")
	default:
		return apperror.Conflict("login_id", "login id is already taken")
	}
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, db.q(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqldb: getting user %d: %w", id, err)
	}
	return u, nil
}

func (db *DB) GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, db.q(
		`SELECT `+userColumns+` FROM users WHERE login_id = ?`), loginID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", loginID)
		}
		return nil, fmt.Errorf("sqldb: getting user %q: %w", loginID, err)
	}
	return u, nil
}

// SetRefreshToken overwrites the stored refresh credential. The empty string
// clears it, which ends the session.
func (db *DB) SetRefreshToken(ctx context.Context, userID int64, token string) error {
	res, err := db.conn.ExecContext(ctx, db.q(
		`UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ?`),
		nullIfEmpty(token), time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqldb: storing refresh token for user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: storing refresh token for user %d: %w", userID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	return nil
}

func (db *DB) GetRefreshToken(ctx context.Context, userID int64) (string, error) {
	var token sql.NullString
	err := db.conn.QueryRowContext(ctx, db.q(
		`SELECT refresh_token FROM users WHERE id = ?`), userID,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("user", strconv.FormatInt(userID, 10))
		}
		return "", fmt.Errorf("sqldb: reading refresh token for user %d: %w", userID, err)
	}
	return token.String, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u                            model.User
		hash, email, phone, birthday sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&u.LoginID,
		&hash,
		&u.Name,
		&email,
		&phone,
		&birthday,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash.String
	u.Email = email.String
	u.Phone = phone.String
	u.Birthday = birthday.String
	return &u, nil
}
