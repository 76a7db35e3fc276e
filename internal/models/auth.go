package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of the session token issued after a successful login.
type SessionClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// LoginResult is produced by the token service after the authorization code exchange.
type LoginResult struct {
	UserID      string
	DisplayName string
	Email       string
	Token       *TokenState
}

// AuthStatus describes the stored credentials for a session user.
type AuthStatus struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"user_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	HasRefresh    bool       `json:"has_refresh_token"`
}
