package models

import "time"

// TokenState is the OAuth credential set held for one user identity.
type TokenState struct {
	UserID       string    `db:"user_id" json:"user_id"`
	AccessToken  string    `db:"access_token" json:"access_token"`
	RefreshToken string    `db:"refresh_token" json:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ValidAt reports whether the access token is still usable at now with buffer to spare.
func (t *TokenState) ValidAt(now time.Time, buffer time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return now.Add(buffer).Before(t.ExpiresAt)
}

// Degraded is true when no refresh token was issued, so the session cannot outlive the access token.
func (t *TokenState) Degraded() bool {
	return t != nil && t.RefreshToken == ""
}
