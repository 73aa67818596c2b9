package handler

import (
	"net/http"
)

// stateCookieName holds the OAuth CSRF state between redirect and callback.
const stateCookieName = "oauth_state"

// Cookies writes the session cookies. In production they are
// SameSite=None; Secure so the frontend on another origin can send them;
// in development SameSite=Lax works over plain http://localhost.
//
// COOKIE FLOW:
//
//	login / OAuth callback → Set-Cookie: auth=<access JWT>;   Max-Age=access TTL
//	                          Set-Cookie: refresh=<refresh JWT>; Max-Age=refresh TTL
//	every request          → browser sends both; RequireAuth reads "auth"
//	POST /auth/refresh     → server reads "refresh", sets a new "auth"
//	POST /auth/logout      → both cookies cleared (Max-Age=0)
//
// Both cookies are HttpOnly: page JavaScript cannot read them, so an XSS
// bug cannot steal the tokens. Max-Age matches each token's own expiry, so
// the browser drops a cookie at the moment its token stops verifying.
type Cookies struct {
	secure   bool          // HTTPS only; required by browsers for SameSite=None
	sameSite http.SameSite // None in production, Lax in development
}

func NewCookies(production bool) Cookies {
	if production {
		return Cookies{secure: true, sameSite: http.SameSiteNoneMode}
	}
	return Cookies{secure: false, sameSite: http.SameSiteLaxMode}
}

// set writes an HttpOnly cookie on path "/" that lives maxAge seconds.
func (c Cookies) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	})
}

func (c Cookies) clear(w http.ResponseWriter, name string) {
	c.set(w, name, "", -1)
}
