// Package notify tells the podcast host about new submissions.
package notify

import (
	"context"
	"fmt"

	"github.com/benvon/voicenote-intake/internal/config"
	"github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/queue"
	"go.uber.org/zap"
)

// Subject is the subject line of every notification mail.
const Subject = "New Podcast Voicenote Submission Received"

// Notifier delivers one notification.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// LogNotifier writes notifications to the log only.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// Notify logs n.
func (l *LogNotifier) Notify(_ context.Context, n models.Notification) error {
	l.logger.Info("voicenote_submission_notification",
		zap.String("filename", logger.SanitizeFilename(n.Filename)),
		zap.String("url", logger.SanitizePath(n.URL)),
		zap.String("review_url", logger.SanitizePath(n.ReviewURL)),
		zap.Time("submitted_at", n.SubmittedAt),
	)
	return nil
}

// QueueNotifier hands notifications to the worker through the job queue.
type QueueNotifier struct {
	publisher queue.Publisher
}

// NewQueueNotifier creates a QueueNotifier.
func NewQueueNotifier(p queue.Publisher) *QueueNotifier {
	return &QueueNotifier{publisher: p}
}

// Notify enqueues a submission_notification job.
func (q *QueueNotifier) Notify(ctx context.Context, n models.Notification) error {
	if err := q.publisher.Enqueue(ctx, queue.NewNotificationJob(n)); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// New builds the notifier selected by cfg.NotifyMode. publisher is required for queue mode.
func New(cfg *config.Config, publisher queue.Publisher, log *zap.Logger) (Notifier, error) {
	switch cfg.NotifyMode {
	case config.NotifyModeLog, "":
		return NewLogNotifier(log), nil
	case config.NotifyModeSMTP:
		return NewMailNotifierFromConfig(cfg)
	case config.NotifyModeQueue:
		if publisher == nil {
			return nil, fmt.Errorf("notify mode %s requires a queue", cfg.NotifyMode)
		}
		return NewQueueNotifier(publisher), nil
	default:
		return nil, fmt.Errorf("unsupported notify mode: %s", cfg.NotifyMode)
	}
}
