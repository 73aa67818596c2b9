package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

var _ repository.OAuthRepository = (*DB)(nil)

// errLinkRaced means a concurrent callback created the same link, or the
// user behind it, between our lookups and our inserts. The transaction is
// rolled back and retried, and the retry takes the existing-link path.
var errLinkRaced = errors.New("sqldb: oauth link created concurrently")

const linkAttempts = 2

// LinkIdentity resolves a provider identity to a local user in a single
// transaction:
//
//  1. an existing link refreshes the stored provider credentials and returns
//     its user;
//  2. otherwise a user with the profile's email is adopted, or a new
//     password-less user is created, and the link is inserted.
func (db *DB) LinkIdentity(ctx context.Context, p *model.OAuthProfile) (*model.User, error) {
	if p.Provider == "" || p.ProviderUserID == "" {
		return nil, apperror.ValidationFailed("provider", "provider identity is incomplete")
	}

	var (
		userID int64
		err    error
	)
	for attempt := 0; attempt < linkAttempts; attempt++ {
		err = db.withTx(ctx, func(tx dbtx) error {
			id, txErr := db.linkIdentityTx(ctx, tx, p)
			userID = id
			return txErr
		})
		if !errors.Is(err, errLinkRaced) {
			break
		}
	}
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("sqldb: linking %s identity %s: %w", p.Provider, p.ProviderUserID, err)
	}
	return db.GetUserByID(ctx, userID)
}

func (db *DB) linkIdentityTx(ctx context.Context, tx dbtx, p *model.OAuthProfile) (int64, error) {
	now := time.Now().UTC()

	var userID int64
	err := tx.QueryRowContext(ctx, db.q(
		`SELECT user_id FROM oauth_accounts WHERE provider = ? AND provider_user_id = ?`),
		p.Provider, p.ProviderUserID,
	).Scan(&userID)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, db.q(
			`UPDATE oauth_accounts
			 SET access_token = ?, refresh_token = COALESCE(?, refresh_token), expires_at = ?, updated_at = ?
			 WHERE provider = ? AND provider_user_id = ?`),
			p.AccessToken, nullIfEmpty(p.RefreshToken), p.ExpiresAt, now,
			p.Provider, p.ProviderUserID,
		)
		if err != nil {
			return 0, fmt.Errorf("updating provider credentials: %w", err)
		}
		return userID, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("looking up link: %w", err)
	}

	userID, err = db.resolveLinkUser(ctx, tx, p)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, db.q(
		`INSERT INTO oauth_accounts
		 (provider, provider_user_id, user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_user_id) DO NOTHING`),
		p.Provider, p.ProviderUserID, userID,
		p.AccessToken, nullIfEmpty(p.RefreshToken), p.ExpiresAt, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("inserting link: %w", err)
	}
	if n == 0 {
		return 0, errLinkRaced
	}
	return userID, nil
}

// resolveLinkUser finds the user to attach a new link to: the account that
// owns the profile's email, or a freshly created one.
func (db *DB) resolveLinkUser(ctx context.Context, tx dbtx, p *model.OAuthProfile) (int64, error) {
	var userID int64
	if p.Email != "" {
		err := tx.QueryRowContext(ctx, db.q(`SELECT id FROM users WHERE email = ?`), p.Email).Scan(&userID)
		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("matching user by email: %w", err)
		}
	}

	loginID := p.Email
	if loginID != "" {
		taken, err := loginIDTaken(ctx, db, tx, loginID)
		if err != nil {
			return 0, err
		}
		if taken {
			loginID = ""
		}
	}
	if loginID == "" {
		loginID = p.Provider + "_" + xid.New().String()
	}

	name := p.Name
	if name == "" {
		name = loginID
	}

	user := &model.User{
		LoginID:  loginID,
		Name:     name,
		Email:    p.Email,
		Phone:    p.Phone,
		Birthday: p.Birthday,
	}
	if err := createUser(ctx, db, tx, user); err != nil {
		if raced(err) {
			return 0, errLinkRaced
		}
		return 0, err
	}
	return user.ID, nil
}

// raced reports whether a user insert lost to a concurrent callback for the
// same profile. Under read committed both callbacks miss the link and the
// email match, then both insert a user with login_id = email; the loser's
// unique violation means the winner's link is about to be visible.
func raced(err error) bool {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrConflict) {
		return false
	}
	return appErr.Field == "login_id" || appErr.Field == "email"
}

func loginIDTaken(ctx context.Context, db *DB, tx dbtx, loginID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, db.q(`SELECT 1 FROM users WHERE login_id = ?`), loginID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking login id: %w", err)
	}
	return true, nil
}

// GetLink returns the stored link for a provider identity.
func (db *DB) GetLink(ctx context.Context, provider, providerUserID string) (*model.OAuthLink, error) {
	var (
		l       model.OAuthLink
		refresh sql.NullString
		expires sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, db.q(
		`SELECT provider, provider_user_id, user_id, access_token, refresh_token, expires_at, created_at, updated_at
		 FROM oauth_accounts WHERE provider = ? AND provider_user_id = ?`),
		provider, providerUserID,
	).Scan(&l.Provider, &l.ProviderUserID, &l.UserID, &l.AccessToken, &refresh, &expires, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("oauth link", provider+":"+providerUserID)
		}
		return nil, fmt.Errorf("sqldb: getting %s link %s: %w", provider, providerUserID, err)
	}
	l.RefreshToken = refresh.String
	if expires.Valid {
		t := expires.Time
		l.ExpiresAt = &t
	}
	return &l, nil
}
