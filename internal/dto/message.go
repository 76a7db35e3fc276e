package dto

import "time"

// MessageSummary is one entry of the recent messages listing.
type MessageSummary struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	ReceivedDateTime time.Time `json:"received_date_time"`
	From             string    `json:"from"`
	IsRead           bool      `json:"is_read"`
}

// RecentMessagesQuery binds GET /api/v1/messages.
type RecentMessagesQuery struct {
	Top int `form:"top" binding:"omitempty,min=1,max=50"`
}
