package queue

import (
	"time"

	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeSubmissionNotification tells the host about a new voicenote
	JobTypeSubmissionNotification JobType = "submission_notification"
)

// DefaultMaxRetries is how often a failed job is re-enqueued before it is dead-lettered
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID           uuid.UUID            `json:"id"`
	Type         JobType              `json:"type"`
	Notification *models.Notification `json:"notification,omitempty"`
	NotBefore    *time.Time           `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter     *time.Time           `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	CreatedAt    time.Time            `json:"created_at"`
	RetryCount   int                  `json:"retry_count"`
	MaxRetries   int                  `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// NewNotificationJob wraps a notification in a submission_notification job
func NewNotificationJob(n models.Notification) *Job {
	job := NewJob(JobTypeSubmissionNotification)
	job.Notification = &n
	return job
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}

	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}

	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

// ScheduleRetry bumps the retry count and delays the next attempt by backoff * 2^(retry-1)
func (j *Job) ScheduleRetry(backoff time.Duration) {
	j.IncrementRetry()
	delay := backoff << (j.RetryCount - 1)
	next := time.Now().Add(delay)
	j.NotBefore = &next
}
