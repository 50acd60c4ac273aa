package models

import "time"

// Notification tells the podcast host about a new submission.
type Notification struct {
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	ReviewURL   string    `json:"review_url"`
	ClientIP    string    `json:"client_ip,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
