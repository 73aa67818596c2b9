// Package auth issues and verifies the credentials behind a session: signed
// access and refresh tokens, bcrypt password hashes, and OAuth provider
// clients. It also provides the middleware that turns the "auth" cookie into
// an Identity on the request context.
//
// TOKEN LAYOUT:
//
//	HEADER.PAYLOAD.SIGNATURE   (HS256, signed with the server secret)
//	payload: {"uid":1,"login_id":"kim","name":"Kim","typ":"access",
//	          "iss":"cocktail-club","sub":"1","exp":...,"iat":...,"jti":"..."}
//
// The "typ" claim keeps a refresh token from being accepted where an access
// token is expected and vice versa. "jti" makes every issued token unique,
// even two issued for the same user within one second.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "cocktail-club"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Identity is what a token says about its holder.
type Identity struct {
	UserID  int64  `json:"uid"`
	LoginID string `json:"login_id"`
	Name    string `json:"name"`
}

// Claims is the JWT payload.
type Claims struct {
	Identity
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenConfig configures a TokenService. Zero TTLs and an empty issuer fall
// back to the defaults above.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService signs and verifies session tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; there is no built-in fallback secret.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	s := &TokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
	if s.issuer == "" {
		s.issuer = DefaultIssuer
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	return s, nil
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccess signs a short-lived access token for id.
func (s *TokenService) IssueAccess(id Identity) (string, error) {
	return s.issue(id, AccessToken, s.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for id.
func (s *TokenService) IssueRefresh(id Identity) (string, error) {
	return s.issue(id, RefreshToken, s.refreshTTL)
}

func (s *TokenService) issue(id Identity, typ TokenType, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		Identity: id,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(id.UserID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", typ, err)
	}
	return signed, nil
}

// ParseAccess verifies an access token and returns its claims.
func (s *TokenService) ParseAccess(token string) (*Claims, error) {
	return s.parse(token, AccessToken)
}

// ParseRefresh verifies a refresh token's signature and expiry. Whether it
// is still the user's current session is decided by the caller.
func (s *TokenService) ParseRefresh(token string) (*Claims, error) {
	return s.parse(token, RefreshToken)
}

// parse checks signature, algorithm, issuer, expiry and token type.
// Pinning the method list rejects "none" and asymmetric-key confusion.
func (s *TokenService) parse(tokenStr string, want TokenType) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	c := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if c.Type != want {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalid, want, c.Type)
	}
	if c.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}
	return c, nil
}
