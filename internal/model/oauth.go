package model

import "time"

// OAuthProfile is the provider-independent view of a third-party identity,
// assembled from the provider's user-info response and token exchange.
type OAuthProfile struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
	Phone          string
	Birthday       string

	AccessToken  string
	RefreshToken string     // empty when the provider did not issue one
	ExpiresAt    *time.Time // nil when the provider did not report an expiry
}

// OAuthLink maps (Provider, ProviderUserID) to exactly one local user and
// carries the provider credentials from the most recent callback.
type OAuthLink struct {
	Provider       string
	ProviderUserID string
	UserID         int64
	AccessToken    string
	RefreshToken   string
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
