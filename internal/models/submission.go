package models

import "time"

// Submission describes a stored voicenote file.
type Submission struct {
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// SubmissionView is the admin listing row.
type SubmissionView struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	SizeHuman   string `json:"size_human"`
	SubmittedAt string `json:"submitted_at"`
	Timestamp   int64  `json:"timestamp"`
}
