package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/sakif/cocktail-club/internal/config"
	"github.com/sakif/cocktail-club/internal/metrics"
	"github.com/sakif/cocktail-club/internal/repository/sqldb"
)

// testEnv is a full router over a temp-file SQLite database. seed is a
// second connection to the same file for inserting catalog rows.
type testEnv struct {
	t      *testing.T
	router http.Handler
	seed   *sql.DB
}

func testConfig() *config.Config {
	return &config.Config{
		Env:             "test",
		Port:            "0",
		DBDriver:        "sqlite",
		JWTSecret:       "test-secret-at-least-16-chars!!",
		JWTIssuer:       "cocktail-club",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		BcryptCost:      4,
		FrontendURL:     "http://front.test",
		AllowedOrigins:  []string{"http://front.test"},
		LoginRateLimit:  "100-M",
		OAuth: map[string]config.OAuthClient{
			"google": {ClientID: "gid", ClientSecret: "gsecret"},
		},
		OAuthCallbackBase: "http://api.test",
		ShutdownTimeout:   time.Second,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	path := filepath.Join(t.TempDir(), "club.db")
	db, err := sqldb.Open(context.Background(), sqldb.SQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	seed, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { seed.Close() })

	router, err := NewRouter(Deps{
		Config:  cfg,
		DB:      db,
		Store:   memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "test"}),
		Metrics: metrics.New(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return &testEnv{t: t, router: router, seed: seed}
}

func (e *testEnv) exec(query string, args ...any) int64 {
	e.t.Helper()
	var id int64
	require.NoError(e.t, e.seed.QueryRow(query+" RETURNING id", args...).Scan(&id))
	return id
}

// do sends a request carrying cookies and returns the response.
func (e *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const signupBody = `{"login_id":"kim_01","password":"s3cret!pw","name":"Kim","email":"kim@example.com","birthday":"19990131","phone":"01012345678"}`

// login signs kim_01 up and in, returning the auth and refresh cookies.
func (e *testEnv) login() (*http.Cookie, *http.Cookie) {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/signup", signupBody)
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/auth/login", `{"login_id":"kim_01","password":"s3cret!pw"}`)
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	access, refresh := cookieNamed(rec, "auth"), cookieNamed(rec, "refresh")
	require.NotNil(e.t, access)
	require.NotNil(e.t, refresh)
	return access, refresh
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cocktail_club_http_requests_total")
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	access, refresh := env.login()

	assert.True(t, access.HttpOnly)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, 15*60, access.MaxAge)
	assert.Equal(t, 7*24*60*60, refresh.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)

	rec := env.do(http.MethodGet, "/auth/me", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "kim_01", user["login_id"])
	assert.Equal(t, "1999-01-31", user["birthday"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do(http.MethodPost, "/auth/refresh", "", refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])
	assert.NotNil(t, cookieNamed(rec, "auth"))
	assert.Nil(t, cookieNamed(rec, "refresh"))

	rec = env.do(http.MethodPost, "/auth/logout", "", access, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, cookieNamed(rec, "auth").MaxAge)
	assert.Equal(t, -1, cookieNamed(rec, "refresh").MaxAge)

	// The refresh token is still signed and unexpired, but revoked.
	rec = env.do(http.MethodPost, "/auth/refresh", "", refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_session", decode(t, rec)["error"])
}

func TestLogoutWithOnlyRefreshCookie(t *testing.T) {
	env := newTestEnv(t)
	_, refresh := env.login()

	rec := env.do(http.MethodPost, "/auth/logout", "", refresh)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/auth/refresh", "", refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginSupersedesPriorSession(t *testing.T) {
	env := newTestEnv(t)
	_, first := env.login()

	rec := env.do(http.MethodPost, "/auth/login", `{"login_id":"kim_01","password":"s3cret!pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/auth/refresh", "", first)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_session", decode(t, rec)["error"])
}

func TestLogoutWithSupersededRefreshKeepsCurrentSession(t *testing.T) {
	env := newTestEnv(t)
	_, first := env.login()

	rec := env.do(http.MethodPost, "/auth/login", `{"login_id":"kim_01","password":"s3cret!pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	second := cookieNamed(rec, "refresh")
	require.NotNil(t, second)

	rec = env.do(http.MethodPost, "/auth/logout", "", first)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, cookieNamed(rec, "refresh").MaxAge)

	rec = env.do(http.MethodPost, "/auth/refresh", "", second)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.RotateRefreshOnUse = true })
	_, refresh := env.login()

	rec := env.do(http.MethodPost, "/auth/refresh", "", refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	next := cookieNamed(rec, "refresh")
	require.NotNil(t, next)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/auth/refresh", "", refresh).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/auth/refresh", "", next).Code)
}

func TestAuthErrors(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	rec := env.do(http.MethodPost, "/auth/login", `{"login_id":"kim_01","password":"wrong!pw1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode(t, rec)["error"])

	rec = env.do(http.MethodPost, "/auth/login", `{"login_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode(t, rec)["error"])

	rec = env.do(http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/signup", signupBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode(t, rec)["error"])
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/signup", `{"login_id":"ab","password":"s3cret!pw","name":"K","birthday":"19990131","phone":"01012345678"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, "login_id", body["field"])
}

func TestPostLikeFlow(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.login()

	rec := env.do(http.MethodPost, "/posts", `{"title":"Negroni","body":"Equal parts.","tags":["gin"]}`, access)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode(t, rec)["post"].(map[string]any)
	path := "/posts/" + jsonID(post) + "/like"

	rec = env.do(http.MethodPost, path, "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"liked": true, "like_count": 1.0}, decode(t, rec))

	// Idempotent.
	rec = env.do(http.MethodPost, path, "", access)
	assert.Equal(t, map[string]any{"liked": true, "like_count": 1.0}, decode(t, rec))

	// Anonymous status never reports mine.
	rec = env.do(http.MethodGet, path, "")
	assert.Equal(t, map[string]any{"liked": false, "like_count": 1.0}, decode(t, rec))

	rec = env.do(http.MethodGet, path, "", access)
	assert.Equal(t, map[string]any{"liked": true, "like_count": 1.0}, decode(t, rec))

	rec = env.do(http.MethodDelete, path, "", access)
	assert.Equal(t, map[string]any{"liked": false, "like_count": 0.0}, decode(t, rec))
	rec = env.do(http.MethodDelete, path, "", access)
	assert.Equal(t, map[string]any{"liked": false, "like_count": 0.0}, decode(t, rec))

	rec = env.do(http.MethodPost, path, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/posts/9999/like", "", access)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/posts/abc/like", "", access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBarBookmarkAndCatalog(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.login()

	city := env.exec(`INSERT INTO cities (name) VALUES (?)`, "Seoul")
	bar := env.exec(`INSERT INTO bars (city_id, name, lat, lng) VALUES (?, ?, 37.5, 127.0)`, city, "Le Chamber")
	cocktail := env.exec(`INSERT INTO cocktails (slug, name) VALUES (?, ?)`, "negroni", "Negroni")

	rec := env.do(http.MethodPost, "/bars/"+itoa(bar)+"/bookmark", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"bookmarked": true, "bookmark_count": 1.0}, decode(t, rec))

	rec = env.do(http.MethodGet, "/bars/mine", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode(t, rec)
	assert.Len(t, mine["items"], 1)
	assert.Equal(t, 1.0, mine["meta"].(map[string]any)["total"])

	rec = env.do(http.MethodGet, "/bars/hot?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = env.do(http.MethodGet, "/bars?city="+url.QueryEscape("Seoul"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = env.do(http.MethodGet, "/cities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = env.do(http.MethodPost, "/cocktails/"+itoa(cocktail)+"/like", "", access)
	assert.Equal(t, map[string]any{"liked": true, "like_count": 1.0}, decode(t, rec))

	rec = env.do(http.MethodGet, "/cocktails/negroni", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["like_count"])

	rec = env.do(http.MethodGet, "/cocktails/mojito", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostsAndComments(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.login()

	for _, title := range []string{"Gin basics", "Whiskey sour", "Gin fizz"} {
		rec := env.do(http.MethodPost, "/posts", `{"title":"`+title+`","body":"b"}`, access)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(http.MethodGet, "/posts?keyword=gin&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	meta := list["meta"].(map[string]any)
	assert.Equal(t, 2.0, meta["total"])
	assert.Equal(t, 2.0, meta["pageCount"])
	assert.Equal(t, true, meta["hasNext"])
	assert.Equal(t, "Gin fizz", list["items"].([]any)[0].(map[string]any)["title"])

	rec = env.do(http.MethodGet, "/posts/latest?limit=2", "")
	assert.Len(t, decode(t, rec)["items"], 2)

	rec = env.do(http.MethodPost, "/posts/1/comments", `{"body":"cheers"}`, access)
	require.Equal(t, http.StatusCreated, rec.Code)
	comment := decode(t, rec)["comment"].(map[string]any)

	rec = env.do(http.MethodGet, "/posts/1/comments", "")
	assert.Len(t, decode(t, rec)["comments"], 1)

	rec = env.do(http.MethodDelete, "/comments/"+jsonID(comment), "", access)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodDelete, "/posts/1", "", access)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodGet, "/posts/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOthersPostIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.login()

	rec := env.do(http.MethodPost, "/posts", `{"title":"mine","body":"b"}`, access)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/signup", `{"login_id":"lee_02","password":"s3cret!pw","name":"Lee","birthday":"19900101","phone":"01099998888"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(http.MethodPost, "/auth/login", `{"login_id":"lee_02","password":"s3cret!pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	other := cookieNamed(rec, "auth")

	rec = env.do(http.MethodDelete, "/posts/1", "", other)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOAuthRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/oauth/google", "")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", loc.Host)
	assert.Equal(t, "http://api.test/oauth/google/callback", loc.Query().Get("redirect_uri"))
	state := cookieNamed(rec, "oauth_state")
	require.NotNil(t, state)
	assert.Equal(t, state.Value, loc.Query().Get("state"))

	rec = env.do(http.MethodGet, "/oauth/myspace", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Wrong state: redirect to the frontend login page with an error code.
	rec = env.do(http.MethodGet, "/oauth/google/callback?state=forged&code=x", "", state)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "http://front.test/login?error=google_oauth_failed", rec.Header().Get("Location"))

	// Provider-reported error.
	rec = env.do(http.MethodGet, "/oauth/google/callback?state="+state.Value+"&error=access_denied", "", state)
	assert.Equal(t, "http://front.test/login?error=google_oauth_failed", rec.Header().Get("Location"))
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.LoginRateLimit = "2-M" })

	for range 2 {
		rec := env.do(http.MethodPost, "/auth/login", `{"login_id":"nobody","password":"x"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := env.do(http.MethodPost, "/auth/login", `{"login_id":"nobody","password":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestProductionCookies(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Env = config.EnvProduction })
	access, refresh := env.login()

	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteNoneMode, access.SameSite)
	assert.True(t, refresh.Secure)
}

func jsonID(m map[string]any) string {
	return itoa(int64(m["id"].(float64)))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestStartShutsDownWhenContextIsCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Port = "0"
	cfg.DBDSN = filepath.Join(t.TempDir(), "club.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := New(ctx, cfg, logger)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.Error(t, srv.db.Ping(context.Background()), "database should be closed after shutdown")
}

func TestStartReportsListenError(t *testing.T) {
	cfg := testConfig()
	cfg.Port = "99999"
	cfg.DBDSN = filepath.Join(t.TempDir(), "club.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)

	err = srv.Start(context.Background())
	assert.ErrorContains(t, err, "server error")
}
