package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/kakao"

	"github.com/sakif/cocktail-club/internal/model"
)

// ErrUnknownProvider is returned by Providers.Get for unconfigured names.
var ErrUnknownProvider = errors.New("auth: unknown oauth provider")

// NaverEndpoint is Naver Login's OAuth 2.0 endpoint. x/oauth2 does not ship one.
var NaverEndpoint = oauth2.Endpoint{
	AuthURL:   "https://nid.naver.com/oauth2.0/authorize",
	TokenURL:  "https://nid.naver.com/oauth2.0/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// ProviderConfig holds the registered application's credentials at one
// provider. RedirectURL must match the provider console exactly.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether credentials were configured.
func (c ProviderConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// profileDecoder turns a provider's user-info response into a profile.
type profileDecoder func(body []byte) (*model.OAuthProfile, error)

// Provider runs the authorization-code flow against one OAuth provider and
// reduces its user-info response to a model.OAuthProfile.
type Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	decode      profileDecoder
}

func (p *Provider) Name() string { return p.name }

// AuthURL builds the consent-screen URL carrying state.
func (p *Provider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades the authorization code for provider tokens, then fetches
// and decodes the user's profile. A custom *http.Client may be supplied via
// ctx with the oauth2.HTTPClient key.
func (p *Provider) Exchange(ctx context.Context, code string) (*model.OAuthProfile, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: %s: exchanging code: %w", p.name, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("auth: %s: token response has no access token", p.name)
	}

	resp, err := p.config.Client(ctx, tok).Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: %s: calling user-info API: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("auth: %s: reading user-info response: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: %s: user-info API returned status %d", p.name, resp.StatusCode)
	}

	profile, err := p.decode(body)
	if err != nil {
		return nil, fmt.Errorf("auth: %s: decoding user-info response: %w", p.name, err)
	}
	if profile.ProviderUserID == "" {
		return nil, fmt.Errorf("auth: %s: user-info response has no user id", p.name)
	}

	profile.Provider = p.name
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	if profile.Name == "" {
		profile.Name = displayNameFallback(p.name, profile)
	}
	profile.AccessToken = tok.AccessToken
	profile.RefreshToken = tok.RefreshToken
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		profile.ExpiresAt = &exp
	}
	return profile, nil
}

// displayNameFallback picks the email's local part, or "<provider>_<id prefix>".
func displayNameFallback(provider string, p *model.OAuthProfile) string {
	if local, _, ok := strings.Cut(p.Email, "@"); ok && local != "" {
		return local
	}
	id := p.ProviderUserID
	if len(id) > 6 {
		id = id[:6]
	}
	return provider + "_" + id
}

// =========================================================================
// PROVIDERS
// =========================================================================

func NewGoogleProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		name: "google",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		decode:      decodeGoogle,
	}
}

func decodeGoogle(body []byte) (*model.OAuthProfile, error) {
	var g struct {
		ID    string `json:"id"`
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, err
	}
	id := g.ID
	if id == "" {
		id = g.Sub
	}
	return &model.OAuthProfile{ProviderUserID: id, Email: g.Email, Name: g.Name}, nil
}

func NewKakaoProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		name: "kakao",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"profile_nickname", "account_email"},
			Endpoint:     kakao.Endpoint,
		},
		userInfoURL: "https://kapi.kakao.com/v2/user/me",
		decode:      decodeKakao,
	}
}

func decodeKakao(body []byte) (*model.OAuthProfile, error) {
	var k struct {
		ID      int64 `json:"id"`
		Account struct {
			Email   string `json:"email"`
			Profile struct {
				Nickname string `json:"nickname"`
			} `json:"profile"`
		} `json:"kakao_account"`
	}
	if err := json.Unmarshal(body, &k); err != nil {
		return nil, err
	}
	p := &model.OAuthProfile{Email: k.Account.Email, Name: k.Account.Profile.Nickname}
	if k.ID != 0 {
		p.ProviderUserID = strconv.FormatInt(k.ID, 10)
	}
	return p, nil
}

func NewNaverProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		name: "naver",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     NaverEndpoint,
		},
		userInfoURL: "https://openapi.naver.com/v1/nid/me",
		decode:      decodeNaver,
	}
}

// decodeNaver reads the "response" envelope. Birthday arrives split into
// birthyear ("1990") and birthday ("04-01").
func decodeNaver(body []byte) (*model.OAuthProfile, error) {
	var n struct {
		Response struct {
			ID        string `json:"id"`
			Email     string `json:"email"`
			Name      string `json:"name"`
			Nickname  string `json:"nickname"`
			Mobile    string `json:"mobile"`
			BirthYear string `json:"birthyear"`
			Birthday  string `json:"birthday"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, err
	}
	r := n.Response
	p := &model.OAuthProfile{ProviderUserID: r.ID, Email: r.Email, Name: r.Name}
	if p.Name == "" {
		p.Name = r.Nickname
	}
	if r.Mobile != "" {
		p.Phone = strings.ReplaceAll(r.Mobile, "-", "")
	}
	if r.BirthYear != "" && r.Birthday != "" {
		p.Birthday = r.BirthYear + "-" + r.Birthday
	}
	return p, nil
}

func NewGitHubProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		name: "github",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		userInfoURL: "https://api.github.com/user",
		decode:      decodeGitHub,
	}
}

func decodeGitHub(body []byte) (*model.OAuthProfile, error) {
	var g struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"` // empty when hidden in GitHub settings
	}
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, err
	}
	p := &model.OAuthProfile{Email: g.Email, Name: g.Name}
	if p.Name == "" {
		p.Name = g.Login
	}
	if g.ID != 0 {
		p.ProviderUserID = strconv.FormatInt(g.ID, 10)
	}
	return p, nil
}

// =========================================================================
// REGISTRY
// =========================================================================

// Providers maps a provider name ("google", "kakao", ...) to its client.
type Providers map[string]*Provider

// NewProviders builds a registry holding every provider whose credentials
// are configured. redirectBase is the public origin of this server; each
// provider calls back to {redirectBase}/oauth/{name}/callback.
func NewProviders(redirectBase string, creds map[string]ProviderConfig) Providers {
	ctors := map[string]func(ProviderConfig) *Provider{
		"google": NewGoogleProvider,
		"kakao":  NewKakaoProvider,
		"naver":  NewNaverProvider,
		"github": NewGitHubProvider,
	}

	out := Providers{}
	for name, cfg := range creds {
		ctor, ok := ctors[name]
		if !ok || !cfg.Enabled() {
			continue
		}
		if cfg.RedirectURL == "" {
			cfg.RedirectURL = strings.TrimRight(redirectBase, "/") + "/oauth/" + name + "/callback"
		}
		out[name] = ctor(cfg)
	}
	return out
}

func (ps Providers) Get(name string) (*Provider, error) {
	p, ok := ps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}
