// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
//
// LOADING ORDER:
//  1. godotenv.Load copies .env into the process environment, without
//     overriding variables that are already set. A missing .env is fine.
//  2. viper.AutomaticEnv resolves each key from the environment, falling
//     back to the SetDefault values in NewViper.
//  3. Validate checks the result and reports every problem at once.
//
// FAIL FAST:
// A bad configuration stops the process at startup. JWT_SECRET in
// particular has no default: a server that silently signed tokens with a
// well-known key would accept forged sessions.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// OAuthClient is one provider's registered application.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // optional; derived from OAuthCallbackBase when empty
}

// Config is the fully resolved configuration. Durations are parsed by viper
// from Go duration strings ("15m", "168h").
type Config struct {
	Env  string // development | production | test
	Port string

	DBDriver string // sqlite | postgres
	DBDSN    string

	JWTSecret          string
	JWTIssuer          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	RotateRefreshOnUse bool
	BcryptCost         int

	FrontendURL       string   // browser app origin; OAuth callbacks redirect here
	OAuthCallbackBase string   // this server's public origin, used for OAuth redirect URIs
	AllowedOrigins    []string // CORS origins allowed to send credentials

	OAuth map[string]OAuthClient // keyed by provider name

	RedisURL       string // optional; rate limits are in-memory when empty
	LoginRateLimit string // ulule/limiter format, e.g. "10-M"

	LogLevel        string
	ShutdownTimeout time.Duration
}

var oauthProviders = []string{"google", "kakao", "naver", "github"}

// Load reads .env (when present) into the process environment, then
// resolves every setting from the environment with defaults applied.
// The result is validated before it is returned.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(NewViper())
}

// NewViper returns a viper instance bound to the environment with every
// default registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "data/cocktail-club.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "cocktail-club")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("ROTATE_REFRESH_ON_USE", false)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("OAUTH_CALLBACK_BASE_URL", "http://localhost:8080")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOGIN_RATE_LIMIT", "10-M")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	for _, p := range oauthProviders {
		key := strings.ToUpper(p)
		v.SetDefault(key+"_CLIENT_ID", "")
		v.SetDefault(key+"_CLIENT_SECRET", "")
		v.SetDefault(key+"_REDIRECT_URL", "")
	}
	return v
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:                strings.ToLower(v.GetString("APP_ENV")),
		Port:               v.GetString("PORT"),
		DBDriver:           strings.ToLower(v.GetString("DB_DRIVER")),
		DBDSN:              v.GetString("DB_DSN"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		AccessTokenTTL:     v.GetDuration("ACCESS_TOKEN_TTL"),
		RefreshTokenTTL:    v.GetDuration("REFRESH_TOKEN_TTL"),
		RotateRefreshOnUse: v.GetBool("ROTATE_REFRESH_ON_USE"),
		BcryptCost:         v.GetInt("BCRYPT_COST"),
		FrontendURL:        strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		OAuthCallbackBase:  strings.TrimRight(v.GetString("OAUTH_CALLBACK_BASE_URL"), "/"),
		RedisURL:           v.GetString("REDIS_URL"),
		LoginRateLimit:     v.GetString("LOGIN_RATE_LIMIT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		ShutdownTimeout:    v.GetDuration("SHUTDOWN_TIMEOUT"),
		OAuth:              map[string]OAuthClient{},
	}

	for _, o := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, strings.TrimRight(o, "/"))
		}
	}
	if len(cfg.AllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	for _, p := range oauthProviders {
		key := strings.ToUpper(p)
		cfg.OAuth[p] = OAuthClient{
			ClientID:     v.GetString(key + "_CLIENT_ID"),
			ClientSecret: v.GetString(key + "_CLIENT_SECRET"),
			RedirectURL:  v.GetString(key + "_REDIRECT_URL"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvDevelopment, EnvProduction, "test":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be development, production or test, got %q", c.Env))
	}

	minSecret := 16
	if c.IsProduction() {
		minSecret = 32
	}
	switch {
	case c.JWTSecret == "":
		errs = append(errs, errors.New("JWT_SECRET is required"))
	case len(c.JWTSecret) < minSecret:
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecret))
	}

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be a positive duration"))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be a positive duration"))
	}
	if c.LoginRateLimit == "" {
		errs = append(errs, errors.New("LOGIN_RATE_LIMIT is required"))
	}
	if c.IsProduction() {
		for _, o := range c.AllowedOrigins {
			if o == "*" {
				errs = append(errs, errors.New("ALLOWED_ORIGINS cannot contain * in production"))
			}
		}
	}

	return errors.Join(errs...)
}
