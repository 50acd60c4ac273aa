package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/models"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single notification send.
const DefaultTimeout = 30 * time.Second

// Dispatcher runs each notification on its own goroutine, detached from the request.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over notifier.
func NewDispatcher(notifier Notifier, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, logger: log}
}

// Dispatch sends n in the background. Failures are logged only.
func (d *Dispatcher) Dispatch(n models.Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification_panic",
					zap.String("filename", logger.SanitizeFilename(n.Filename)),
					zap.String("panic", fmt.Sprint(r)),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, n); err != nil {
			d.logger.Warn("notification_failed",
				zap.String("filename", logger.SanitizeFilename(n.Filename)),
				zap.String("error", logger.SanitizeError(err)),
			)
			return
		}
		d.logger.Debug("notification_sent", zap.String("filename", logger.SanitizeFilename(n.Filename)))
	}()
}

// Wait blocks until in-flight sends finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
