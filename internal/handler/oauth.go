package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/cocktail-club/internal/auth"
	"github.com/sakif/cocktail-club/internal/service"
)

// stateMaxAge bounds how long the user may sit on the consent screen.
const stateMaxAge = 600

// OAuthHandler runs the browser side of provider sign-in:
//
//	GET /oauth/{provider}           → 307 to the provider, sets the state cookie
//	GET /oauth/{provider}/callback  → checks state, links the identity,
//	                                   sets session cookies, 303 to the frontend
//
// Callback failures never render an error page; they redirect to
// {frontend}/login?error=<provider>_oauth_failed.
type OAuthHandler struct {
	sessions    *service.SessionService
	cookies     Cookies
	frontendURL string
	logger      *slog.Logger
}

func NewOAuthHandler(sessions *service.SessionService, cookies Cookies, frontendURL string, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		sessions:    sessions,
		cookies:     cookies,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

func (h *OAuthHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	state := xid.New().String()

	target, err := h.sessions.OAuthURL(provider, state)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// The callback is a top-level navigation back from the provider, which
	// SameSite=Lax still sends.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/oauth",
		MaxAge:   stateMaxAge,
		HttpOnly: true,
		Secure:   h.cookies.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()

	stateCookie, err := r.Cookie(stateCookieName)
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/oauth", MaxAge: -1})

	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch", slog.String("provider", provider))
		h.fail(w, r, provider)
		return
	}
	if e := q.Get("error"); e != "" {
		h.logger.Info("oauth callback: provider returned error",
			slog.String("provider", provider),
			slog.String("error", e),
		)
		h.fail(w, r, provider)
		return
	}

	sess, err := h.sessions.OAuthLogin(r.Context(), provider, q.Get("code"))
	if err != nil {
		h.logger.Error("oauth callback: login failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		h.fail(w, r, provider)
		return
	}

	h.cookies.set(w, auth.AccessCookieName, sess.AccessToken, h.sessions.AccessTTL())
	h.cookies.set(w, auth.RefreshCookieName, sess.RefreshToken, h.sessions.RefreshTTL())
	http.Redirect(w, r, h.frontendURL+"/", http.StatusSeeOther)
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, provider string) {
	v := url.Values{"error": {provider + "_oauth_failed"}}
	http.Redirect(w, r, h.frontendURL+"/login?"+v.Encode(), http.StatusSeeOther)
}
