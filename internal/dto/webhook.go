package dto

// WebhookReadiness answers a bare GET on the webhook endpoint.
type WebhookReadiness struct {
	Status          string `json:"status"`
	NotificationURL string `json:"notification_url"`
	Resource        string `json:"resource"`
}
