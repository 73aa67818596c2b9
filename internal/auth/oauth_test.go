package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// withEndpoints points a provider at test servers.
func (p *Provider) withEndpoints(authURL, tokenURL, userInfoURL string) *Provider {
	p.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
	p.userInfoURL = userInfoURL
	return p
}

// fakeProviderServer serves a token endpoint and a user-info endpoint.
func fakeProviderServer(t *testing.T, tokenJSON, userJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(tokenJSON))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(userJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var testCreds = ProviderConfig{ClientID: "cid", ClientSecret: "secret", RedirectURL: "http://localhost/cb"}

func TestAuthURL_CarriesStateAndClient(t *testing.T) {
	p := NewKakaoProvider(testCreds)

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	assert.Equal(t, "kauth.kakao.com", u.Host)
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "cid", u.Query().Get("client_id"))
	assert.Equal(t, "http://localhost/cb", u.Query().Get("redirect_uri"))
}

func TestExchange_Google(t *testing.T) {
	srv := fakeProviderServer(t,
		`{"access_token":"g-at","refresh_token":"g-rt","token_type":"Bearer","expires_in":3600}`,
		`{"id":"1090","email":"Mixer@Example.com","name":"Mixer"}`)
	p := NewGoogleProvider(testCreds).withEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL+"/me")

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "google", profile.Provider)
	assert.Equal(t, "1090", profile.ProviderUserID)
	assert.Equal(t, "mixer@example.com", profile.Email, "emails are normalized")
	assert.Equal(t, "Mixer", profile.Name)
	assert.Equal(t, "g-at", profile.AccessToken)
	assert.Equal(t, "g-rt", profile.RefreshToken)
	require.NotNil(t, profile.ExpiresAt)
}

func TestExchange_KakaoWithoutEmail(t *testing.T) {
	srv := fakeProviderServer(t,
		`{"access_token":"k-at","token_type":"bearer"}`,
		`{"id":123456789,"kakao_account":{"profile":{"nickname":"Mojito"}}}`)
	p := NewKakaoProvider(testCreds).withEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL+"/me")

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "123456789", profile.ProviderUserID)
	assert.Empty(t, profile.Email)
	assert.Equal(t, "Mojito", profile.Name)
	assert.Empty(t, profile.RefreshToken)
	assert.Nil(t, profile.ExpiresAt)
}

func TestExchange_NaverEnvelope(t *testing.T) {
	srv := fakeProviderServer(t,
		`{"access_token":"n-at","token_type":"bearer","expires_in":3600}`,
		`{"resultcode":"00","response":{"id":"nv-1","email":"n@example.com","nickname":"nick","mobile":"010-1234-5678","birthyear":"1990","birthday":"04-01"}}`)
	p := NewNaverProvider(testCreds).withEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL+"/me")

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "nv-1", profile.ProviderUserID)
	assert.Equal(t, "nick", profile.Name)
	assert.Equal(t, "01012345678", profile.Phone)
	assert.Equal(t, "1990-04-01", profile.Birthday)
}

func TestExchange_GitHubNameFallback(t *testing.T) {
	srv := fakeProviderServer(t,
		`{"access_token":"gh-at","token_type":"bearer"}`,
		`{"id":42,"login":"octocat"}`)
	p := NewGitHubProvider(testCreds).withEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL+"/me")

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ProviderUserID)
	assert.Equal(t, "octocat", profile.Name)
}

func TestExchange_DisplayNameFallback(t *testing.T) {
	srv := fakeProviderServer(t,
		`{"access_token":"at","token_type":"bearer"}`,
		`{"id":"abcdefghij","email":"sour@example.com"}`)
	p := NewGoogleProvider(testCreds).withEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL+"/me")

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "sour", profile.Name)
}

func TestExchange_Failures(t *testing.T) {
	t.Run("bad code", func(t *testing.T) {
		srv := fakeProviderServer(t, `{"access_token":"at","token_type":"bearer"}`, `{"id":"1"}`)
		p := NewGoogleProvider(testCreds).withEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL+"/me")

		_, err := p.Exchange(context.Background(), "bad-code")
		assert.Error(t, err)
	})

	t.Run("profile without id", func(t *testing.T) {
		srv := fakeProviderServer(t, `{"access_token":"at","token_type":"bearer"}`, `{"email":"x@example.com"}`)
		p := NewGoogleProvider(testCreds).withEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL+"/me")

		_, err := p.Exchange(context.Background(), "good-code")
		assert.Error(t, err)
	})

	t.Run("user-info error status", func(t *testing.T) {
		srv := fakeProviderServer(t, `{"access_token":"at","token_type":"bearer"}`, `{}`)
		p := NewGoogleProvider(testCreds).withEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL+"/missing")

		_, err := p.Exchange(context.Background(), "good-code")
		assert.Error(t, err)
	})
}

func TestNewProviders_SkipsUnconfigured(t *testing.T) {
	ps := NewProviders("https://api.example.com/", map[string]ProviderConfig{
		"google":  {ClientID: "g", ClientSecret: "s"},
		"kakao":   {},
		"myspace": {ClientID: "m", ClientSecret: "s"},
	})

	require.Len(t, ps, 1)
	g, err := ps.Get("google")
	require.NoError(t, err)

	u, err := url.Parse(g.AuthURL("st"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/oauth/google/callback", u.Query().Get("redirect_uri"))

	_, err = ps.Get("kakao")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
