package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/queue"
	"github.com/benvon/voicenote-intake/internal/services/notify"
	"go.uber.org/zap"
)

// DefaultRetryBackoff is the delay before the first retry; it doubles per attempt.
const DefaultRetryBackoff = time.Minute

// NotificationSender delivers submission notifications pulled off the queue
type NotificationSender struct {
	notifier notify.Notifier
	jobQueue queue.Publisher // For re-enqueueing jobs with delays
	backoff  time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewNotificationSender creates a new notification sender
func NewNotificationSender(notifier notify.Notifier, jobQueue queue.Publisher, backoff, timeout time.Duration, log *zap.Logger) *NotificationSender {
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	if timeout <= 0 {
		timeout = notify.DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationSender{
		notifier: notifier,
		jobQueue: jobQueue,
		backoff:  backoff,
		timeout:  timeout,
		logger:   log,
	}
}

// ProcessJob processes a job based on its type
func (s *NotificationSender) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if !job.ShouldProcess() {
		if job.IsExpired() {
			s.logger.Warn("notification_job_expired", zap.String("job_id", job.ID.String()))
			return nackOrLog(s.logger, msg, false)
		}
		// Not due yet; hand it back
		return nackOrLog(s.logger, msg, true)
	}

	switch job.Type {
	case queue.JobTypeSubmissionNotification:
		if job.Notification == nil {
			_ = nackOrLog(s.logger, msg, false)
			return fmt.Errorf("job %s has no notification payload", job.ID)
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.notifier.Notify(sendCtx, *job.Notification)
		cancel()
		if err != nil {
			return s.handleJobError(ctx, msg, job, err)
		}

		s.logger.Info("notification_delivered",
			zap.String("job_id", job.ID.String()),
			zap.String("filename", logger.SanitizeFilename(job.Notification.Filename)),
			zap.Int("attempt", job.RetryCount+1),
		)
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		// Unknown job type, send to DLQ
		_ = nackOrLog(s.logger, msg, false)
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError re-enqueues the job with exponential backoff until its retry budget is spent,
// then dead-letters it
func (s *NotificationSender) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if !job.CanRetry() {
		s.logger.Error("notification_job_dead_lettered",
			zap.String("job_id", job.ID.String()),
			zap.Int("retries", job.RetryCount),
			zap.String("error", logger.SanitizeError(err)),
		)
		_ = nackOrLog(s.logger, msg, false)
		return fmt.Errorf("job failed (max retries): %w", err)
	}

	retry := *job
	retry.ScheduleRetry(s.backoff)

	if s.jobQueue != nil {
		enqueueErr := s.jobQueue.Enqueue(ctx, &retry)
		if enqueueErr == nil {
			s.logger.Warn("notification_job_rescheduled",
				zap.String("job_id", job.ID.String()),
				zap.Int("attempt", retry.RetryCount),
				zap.Int("max_retries", retry.MaxRetries),
				zap.Timep("not_before", retry.NotBefore),
				zap.String("error", logger.SanitizeError(err)),
			)
			if ackErr := msg.Ack(); ackErr != nil {
				return errors.Join(fmt.Errorf("job failed (will retry): %w", err), fmt.Errorf("failed to ack original job: %w", ackErr))
			}
			return fmt.Errorf("job failed (will retry): %w", err)
		}
		s.logger.Warn("notification_job_reenqueue_failed",
			zap.String("job_id", job.ID.String()),
			zap.String("error", logger.SanitizeError(enqueueErr)),
		)
	}

	// Fallback: immediate redelivery of the original message
	_ = nackOrLog(s.logger, msg, true)
	return fmt.Errorf("job failed (will retry): %w", err)
}

// Run consumes jobs until ctx is cancelled or the delivery channel closes
func (s *NotificationSender) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errs:
				if !ok {
					return
				}
				s.logger.Error("queue_error", zap.String("error", logger.SanitizeError(err)))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				s.logger.Info("queue_message_channel_closed")
				return
			}
			if err := s.ProcessJob(ctx, msg); err != nil {
				s.logger.Error("notification_job_failed",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.String("error", logger.SanitizeError(err)),
				)
			}
		}
	}
}

func nackOrLog(log *zap.Logger, msg queue.MessageInterface, requeue bool) error {
	if err := msg.Nack(requeue); err != nil {
		log.Warn("queue_nack_failed", zap.Bool("requeue", requeue), zap.String("error", logger.SanitizeError(err)))
		return err
	}
	return nil
}
