package models

import "time"

// Subscription is the locally tracked view of a provider subscription.
type Subscription struct {
	SubscriptionID     string    `db:"subscription_id" json:"subscription_id"`
	UserID             string    `db:"user_id" json:"user_id"`
	Resource           string    `db:"resource" json:"resource"`
	ChangeType         string    `db:"change_type" json:"change_type"`
	ExpirationDateTime time.Time `db:"expiration_date_time" json:"expiration_date_time"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// ExpiredAt reports whether the lease has already lapsed.
func (s *Subscription) ExpiredAt(now time.Time) bool {
	return s.ExpirationDateTime.Before(now)
}

// AdmissionAction tells the caller what EnsureSubscription did.
type AdmissionAction string

const (
	AdmissionCreated AdmissionAction = "created"
	AdmissionUpdated AdmissionAction = "updated"
)
