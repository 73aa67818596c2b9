package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/auth"
	"github.com/sakif/cocktail-club/internal/metrics"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

// badCredentials is shared by every login failure so the response never
// reveals whether the login id exists.
const badCredentials = "invalid login id or password"

// Session is the credential pair handed to a client. RefreshToken is empty
// when a refresh did not rotate it.
type Session struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

// SessionService issues, verifies, refreshes and revokes sessions.
//
// One user has at most one live refresh token: the value stored on the
// user row. Issuing a session overwrites it, so a second login silently
// invalidates the first login's refresh token.
//
// TWO CHECKS FOR A REFRESH TOKEN:
//  1. Cryptographic: signature, expiry, issuer and typ="refresh". Failing
//     this means the token was never ours or is too old → Unauthenticated.
//  2. Stored value: the token must equal users.refresh_token. Failing this
//     means the user logged out or logged in elsewhere → InvalidSession.
//
// A signed JWT alone cannot be revoked before it expires; the stored copy
// is what gives logout and "newer login wins" their effect.
type SessionService struct {
	users     repository.UserRepository // password hashes and stored refresh tokens
	links     repository.OAuthRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	providers auth.Providers // enabled OAuth providers by name
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// rotateOnRefresh also replaces the refresh token on every refresh.
	rotateOnRefresh bool
}

// SessionDeps groups NewSessionService's arguments. A struct keeps the call
// site readable with this many dependencies of similar types.
type SessionDeps struct {
	Users     repository.UserRepository
	Links     repository.OAuthRepository
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Providers auth.Providers
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	RotateOnRefresh bool
}

func NewSessionService(d SessionDeps) *SessionService {
	return &SessionService{
		users:           d.Users,
		links:           d.Links,
		tokens:          d.Tokens,
		passwords:       d.Passwords,
		providers:       d.Providers,
		metrics:         d.Metrics,
		logger:          d.Logger,
		rotateOnRefresh: d.RotateOnRefresh,
	}
}

// Login checks a password and issues a session. Unknown login ids,
// password-less (OAuth-only) accounts and wrong passwords all produce the
// same Unauthenticated error and cost one bcrypt comparison each.
//
// TIMING SAFETY:
// Returning early for an unknown login id would answer in microseconds
// instead of the ~100ms a bcrypt comparison takes, and an attacker could
// enumerate accounts by timing. Verify("") burns one comparison instead.
func (s *SessionService) Login(ctx context.Context, loginID, password string) (*Session, error) {
	if loginID == "" || password == "" {
		return nil, apperror.ValidationFailed("login_id", "login_id and password are required")
	}

	user, err := s.users.GetUserByLoginID(ctx, loginID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("login: loading user: %w", err)
	}

	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if err := s.passwords.Verify(hash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthenticated(badCredentials)
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	return s.issue(ctx, user, "password")
}

// IssueSession signs an access and a refresh token for user and stores the
// refresh token on the user row, replacing any earlier one.
func (s *SessionService) IssueSession(ctx context.Context, user *model.User) (*Session, error) {
	return s.issue(ctx, user, "direct")
}

func (s *SessionService) issue(ctx context.Context, user *model.User, method string) (*Session, error) {
	id := identityOf(user)

	access, err := s.tokens.IssueAccess(id)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(id)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return nil, fmt.Errorf("storing refresh token for user %d: %w", user.ID, err)
	}

	s.metrics.Sessions.WithLabelValues(method).Inc()
	s.logger.Info("session issued",
		slog.Int64("userID", user.ID),
		slog.String("method", method),
	)
	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess returns the claims of a valid access token.
func (s *SessionService) VerifyAccess(token string) (*auth.Claims, error) {
	c, err := s.tokens.ParseAccess(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperror.Unauthenticated("access token expired")
		}
		return nil, apperror.Unauthenticated("invalid access token")
	}
	return c, nil
}

// Refresh exchanges a refresh token for a new access token. The token must
// verify cryptographically (else Unauthenticated) and must equal the value
// stored for its user (else InvalidSession: logged out or superseded).
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	c, err := s.currentRefresh(ctx, refreshToken)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			s.metrics.Refreshes.WithLabelValues(refreshResult(err)).Inc()
		}
		return nil, err
	}

	access, err := s.tokens.IssueAccess(c.Identity)
	if err != nil {
		return nil, err
	}
	out := &Session{AccessToken: access}

	if s.rotateOnRefresh {
		next, err := s.tokens.IssueRefresh(c.Identity)
		if err != nil {
			return nil, err
		}
		if err := s.users.SetRefreshToken(ctx, c.UserID, next); err != nil {
			return nil, fmt.Errorf("refresh: rotating token for user %d: %w", c.UserID, err)
		}
		out.RefreshToken = next
	}

	s.metrics.Refreshes.WithLabelValues("ok").Inc()
	return out, nil
}

// Revoke clears the stored refresh token. Revoking twice, or revoking a user
// that no longer exists, is not an error.
func (s *SessionService) Revoke(ctx context.Context, userID int64) error {
	err := s.users.SetRefreshToken(ctx, userID, "")
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("revoking session for user %d: %w", userID, err)
	}
	s.logger.Info("session revoked", slog.Int64("userID", userID))
	return nil
}

// RefreshOwner returns the user behind a refresh token that is still the
// current one for that user. Logout uses it when the access token has
// already expired; a superseded token carries no authority, so it gets the
// same Unauthenticated / InvalidSession errors as Refresh.
func (s *SessionService) RefreshOwner(ctx context.Context, refreshToken string) (auth.Identity, error) {
	c, err := s.currentRefresh(ctx, refreshToken)
	if err != nil {
		return auth.Identity{}, err
	}
	return c.Identity, nil
}

// currentRefresh verifies the token's signature and expiry, then compares it
// in constant time with the value stored for its user.
func (s *SessionService) currentRefresh(ctx context.Context, refreshToken string) (*auth.Claims, error) {
	c, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, apperror.Unauthenticated("refresh token is missing, expired or invalid")
	}

	stored, err := s.users.GetRefreshToken(ctx, c.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidSession()
		}
		return nil, fmt.Errorf("refresh: loading stored token: %w", err)
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		s.logger.Info("stale refresh token rejected", slog.Int64("userID", c.UserID))
		return nil, apperror.InvalidSession()
	}
	return c, nil
}

func refreshResult(err error) string {
	if errors.Is(err, apperror.ErrInvalidSession) {
		return "invalid_session"
	}
	return "unauthenticated"
}

// AccessTTL and RefreshTTL expose token lifetimes for cookie Max-Age.
func (s *SessionService) AccessTTL() int  { return int(s.tokens.AccessTTL().Seconds()) }
func (s *SessionService) RefreshTTL() int { return int(s.tokens.RefreshTTL().Seconds()) }

// OAuthURL returns the consent-screen URL of a configured provider.
func (s *SessionService) OAuthURL(provider, state string) (string, error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return "", apperror.NotFound("oauth provider", provider)
	}
	return p.AuthURL(state), nil
}

// OAuthLogin completes a provider callback: it exchanges the code for the
// user's profile, links the identity to a local user and issues a session.
func (s *SessionService) OAuthLogin(ctx context.Context, provider, code string) (*Session, error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return nil, apperror.NotFound("oauth provider", provider)
	}
	if code == "" {
		return nil, apperror.ValidationFailed("code", "authorization code is required")
	}

	profile, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.LinkAndIssue(ctx, profile)
}

// LinkAndIssue links an already fetched provider profile and issues a session.
func (s *SessionService) LinkAndIssue(ctx context.Context, profile *model.OAuthProfile) (*Session, error) {
	user, err := s.links.LinkIdentity(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("linking %s identity: %w", profile.Provider, err)
	}
	s.logger.Info("oauth identity linked",
		slog.String("provider", profile.Provider),
		slog.Int64("userID", user.ID),
	)
	return s.issue(ctx, user, profile.Provider)
}

func identityOf(u *model.User) auth.Identity {
	return auth.Identity{UserID: u.ID, LoginID: u.LoginID, Name: u.Name}
}
