// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a local account. Accounts created through an OAuth provider have no
// password hash and can only sign in through that provider.
//
// Optional profile fields use the empty string as "not set"; the repository
// stores them as NULL so the UNIQUE constraints on email and phone only apply
// to real values.
type User struct {
	ID           int64     `json:"id"`
	LoginID      string    `json:"login_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Birthday     string    `json:"birthday,omitempty"` // YYYY-MM-DD
	PasswordHash string    `json:"-"`
	RefreshToken string    `json:"-"` // current refresh credential, "" when logged out
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
