package auth

import (
	"context"
	"net/http"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/httperr"
)

// Cookie names shared with the browser client.
const (
	AccessCookieName  = "auth"
	RefreshCookieName = "refresh"
)

// contextKey is unexported so no other package can read or shadow the
// identity stored on a request context.
type contextKey string

const identityKey contextKey = "identity"

// RequireAuth rejects requests without a valid access token in the "auth"
// cookie with 401 and stores the token's Identity on the context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := identityFromRequest(r, tokens)
			if err != nil {
				httperr.WriteError(w, r, nil, apperror.Unauthenticated("valid authentication required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the Identity when a valid access token is present
// and lets anonymous requests through untouched. Handlers tell the two
// apart with IdentityFromContext.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := identityFromRequest(r, tokens); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller's identity, or false for anonymous
// requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID > 0
}

// UserIDFromContext is a shortcut for handlers that only need the user id.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserID, ok
}

func identityFromRequest(r *http.Request, tokens *TokenService) (Identity, error) {
	cookie, err := r.Cookie(AccessCookieName)
	if err != nil {
		return Identity{}, err
	}
	c, err := tokens.ParseAccess(cookie.Value)
	if err != nil {
		return Identity{}, err
	}
	return c.Identity, nil
}
