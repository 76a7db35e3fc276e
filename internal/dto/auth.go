package dto

import "time"

// CallbackQuery carries the provider redirect parameters.
type CallbackQuery struct {
	Code             string `form:"code"`
	State            string `form:"state" validate:"required"`
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
}

// LoginResponse is returned after a completed authorization code flow.
type LoginResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	// Degraded is set when the provider issued no refresh token.
	Degraded bool   `json:"degraded"`
	Warning  string `json:"warning,omitempty"`
}
