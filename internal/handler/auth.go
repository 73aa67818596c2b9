package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/auth"
	"github.com/sakif/cocktail-club/internal/service"
)

// AuthHandler serves password login, signup and the session endpoints.
//
//	POST /auth/login    {login_id, password} → sets "auth" + "refresh", {user}
//	POST /auth/refresh  "refresh" cookie     → sets "auth", {ok: true}
//	POST /auth/logout                        → clears both cookies, {ok: true}
//	GET  /auth/me       (auth)               → {user}
//	POST /signup        SignupInput          → 201 {user}
//
// SESSION LIFECYCLE:
// The access token is short-lived (15 minutes by default) and is what every
// protected route checks. The refresh token lives for days and is stored on
// the user row; /auth/refresh trades it for a new access token only while
// it still equals that stored value. Logging in again overwrites the stored
// value, which is how a newer session cancels an older one.
type AuthHandler struct {
	sessions *service.SessionService // login, refresh, revoke
	accounts *service.AccountService // signup, me
	cookies  Cookies
	logger   *slog.Logger
}

func NewAuthHandler(sessions *service.SessionService, accounts *service.AccountService, cookies Cookies, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		accounts: accounts,
		cookies:  cookies,
		logger:   logger,
	}
}

type loginRequest struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

type userResponse struct {
	User any `json:"user"`
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	sess, err := h.sessions.Login(r.Context(), req.LoginID, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.setSession(w, sess)
	writeJSON(w, http.StatusOK, userResponse{User: sess.User})
}

// HandleRefresh issues a new access cookie from the refresh cookie. A
// rejected refresh clears both cookies so the browser stops retrying.
//
// WHY POST AND NOT GET?
// Refresh changes server state when rotation is on, and a GET can be
// triggered by any <img> tag on another site. With SameSite cookies and
// POST, a cross-site page cannot mint access tokens for the user.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, r, h.logger, apperror.Unauthenticated("refresh token is missing"))
		return
	}

	sess, err := h.sessions.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthenticated) || errors.Is(err, apperror.ErrInvalidSession) {
			h.clearSession(w)
		}
		writeError(w, r, h.logger, err)
		return
	}

	h.cookies.set(w, auth.AccessCookieName, sess.AccessToken, h.sessions.AccessTTL())
	if sess.RefreshToken != "" {
		h.cookies.set(w, auth.RefreshCookieName, sess.RefreshToken, h.sessions.RefreshTTL())
	}
	writeJSON(w, http.StatusOK, okResponse)
}

// HandleLogout revokes the stored refresh token of whoever the cookies name
// and always clears both cookies.
//
// WHO IS LOGGING OUT?
// A valid access cookie (put in the context by OptionalAuth) settles it.
// Without one, the refresh cookie is accepted only while it is still the
// user's current token: a superseded refresh token must not be able to end
// the session that replaced it, so in that case we just clear the cookies.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		if c, err := r.Cookie(auth.RefreshCookieName); err == nil && c.Value != "" {
			owner, err := h.sessions.RefreshOwner(r.Context(), c.Value)
			var appErr *apperror.AppError
			switch {
			case err == nil:
				id, ok = owner, true
			case !errors.As(err, &appErr):
				h.clearSession(w)
				writeError(w, r, h.logger, err)
				return
			}
		}
	}

	// Cookies go first so a failed revoke still logs the browser out.
	h.clearSession(w)
	if ok {
		if err := h.sessions.Revoke(r.Context(), id.UserID); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthenticated("valid authentication required"))
		return
	}

	user, err := h.accounts.Me(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.accounts.Signup(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{User: user})
}

func (h *AuthHandler) setSession(w http.ResponseWriter, sess *service.Session) {
	h.cookies.set(w, auth.AccessCookieName, sess.AccessToken, h.sessions.AccessTTL())
	h.cookies.set(w, auth.RefreshCookieName, sess.RefreshToken, h.sessions.RefreshTTL())
}

func (h *AuthHandler) clearSession(w http.ResponseWriter) {
	h.cookies.clear(w, auth.AccessCookieName)
	h.cookies.clear(w, auth.RefreshCookieName)
}
