package dto

import (
	"time"

	"github.com/noah-isme/mail-webhook-renewal/internal/models"
)

// EnsureSubscriptionResponse is returned by the admission endpoint.
type EnsureSubscriptionResponse struct {
	SubscriptionID     string                 `json:"subscription_id"`
	ExpirationDateTime time.Time              `json:"expiration_date_time"`
	Action             models.AdmissionAction `json:"action"`
}

// SubscriptionResponse describes the stored subscription for a user.
type SubscriptionResponse struct {
	SubscriptionID     string    `json:"subscription_id"`
	UserID             string    `json:"user_id"`
	Resource           string    `json:"resource"`
	ChangeType         string    `json:"change_type"`
	ExpirationDateTime time.Time `json:"expiration_date_time"`
	ExpiresIn          string    `json:"expires_in"`
}
