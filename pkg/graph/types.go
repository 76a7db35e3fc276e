package graph

import "time"

// Subscription mirrors the provider's subscription resource.
type Subscription struct {
	ID                 string    `json:"id"`
	Resource           string    `json:"resource,omitempty"`
	ChangeType         string    `json:"changeType,omitempty"`
	NotificationURL    string    `json:"notificationUrl,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState,omitempty"`
}

// CreateSubscriptionRequest is the body of POST /subscriptions.
type CreateSubscriptionRequest struct {
	ChangeType         string    `json:"changeType"`
	NotificationURL    string    `json:"notificationUrl"`
	Resource           string    `json:"resource"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState"`
}

type updateSubscriptionRequest struct {
	ExpirationDateTime time.Time `json:"expirationDateTime"`
}

// User is the subset of /me used to identify the signed-in account.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Message is the subset of a mailbox message listed by RecentMessages.
type Message struct {
	ID               string     `json:"id"`
	Subject          string     `json:"subject"`
	ReceivedDateTime time.Time  `json:"receivedDateTime"`
	IsRead           bool       `json:"isRead"`
	From             *Recipient `json:"from,omitempty"`
}

// Recipient wraps an email address the way the provider nests it.
type Recipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type messagePage struct {
	Value []Message `json:"value"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
