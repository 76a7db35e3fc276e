package models

// ChangeNotification is a single entry of a webhook delivery.
type ChangeNotification struct {
	SubscriptionID                 string                 `json:"subscriptionId"`
	ChangeType                     string                 `json:"changeType" validate:"required"`
	Resource                       string                 `json:"resource"`
	ClientState                    string                 `json:"clientState"`
	TenantID                       string                 `json:"tenantId,omitempty"`
	SubscriptionExpirationDateTime string                 `json:"subscriptionExpirationDateTime,omitempty"`
	ResourceData                   map[string]interface{} `json:"resourceData,omitempty"`
}

// NotificationBatch is the body the provider POSTs to the webhook. Entries are checked one by one.
type NotificationBatch struct {
	Value []ChangeNotification `json:"value" validate:"required"`
}

// NotificationIntake summarises how a batch was handled.
type NotificationIntake struct {
	Received int `json:"received"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Dropped  int `json:"dropped"`
}
