// Package intake accepts voicenote submissions: it runs the request through the quota,
// presence, size and type gates, stores the file and notifies the host.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/services/quota"
	"github.com/benvon/voicenote-intake/internal/storage"
	"go.uber.org/zap"
)

// QuotaChecker is the part of the rate limiter intake needs.
type QuotaChecker interface {
	CheckQuota(ctx context.Context, clientID string) (quota.Decision, error)
	RecordSubmission(ctx context.Context, clientID string) error
}

// FileStore persists accepted files.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader) (models.Submission, error)
}

// Dispatcher delivers notifications without blocking the caller.
type Dispatcher interface {
	Dispatch(n models.Notification)
}

// Request is one submission attempt.
type Request struct {
	Method   string
	ClientIP string
	Source   Source
}

// Result describes a stored submission.
type Result struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"-"`
}

// Service runs the intake pipeline.
type Service struct {
	quota      QuotaChecker
	store      FileStore
	dispatcher Dispatcher
	namer      *Namer
	maxBytes   int64
	reviewURL  string
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNamer overrides filename generation.
func WithNamer(n *Namer) Option {
	return func(s *Service) { s.namer = n }
}

// WithClock overrides the clock used for notification timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithReviewURL sets the admin listing URL included in notifications.
func WithReviewURL(u string) Option {
	return func(s *Service) { s.reviewURL = u }
}

// NewService wires the pipeline. maxBytes is the per-file ceiling.
func NewService(q QuotaChecker, store FileStore, dispatcher Dispatcher, maxBytes int64, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		quota:      q,
		store:      store,
		dispatcher: dispatcher,
		maxBytes:   maxBytes,
		now:        time.Now,
		logger:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.namer == nil {
		s.namer = NewNamer(s.now)
	}
	return s
}

// MaxBytes returns the per-file ceiling.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Submit runs every gate in order. The first refusal is returned as *Error.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	if req.Method != http.MethodPost {
		return Result{}, newError(MethodNotAllowed, MsgMethodNotAllowed, nil)
	}

	decision, err := s.quota.CheckQuota(ctx, req.ClientIP)
	if err != nil {
		s.logger.Error("quota_check_failed",
			zap.String("client_ip", logger.SanitizeIP(req.ClientIP)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return Result{}, newError(InternalError, MsgQuotaUnavailable, err)
	}
	if !decision.Allowed {
		s.logger.Info("quota_exceeded",
			zap.String("client_ip", logger.SanitizeIP(req.ClientIP)),
			zap.Int("count", decision.Count),
			zap.Int("limit", decision.Limit),
		)
		return Result{}, &Error{Kind: QuotaExceeded, Message: MsgQuotaExceeded, Limit: decision.Limit}
	}

	if req.Source == nil {
		return Result{}, newError(BadUpload, MsgBadUpload, nil)
	}
	up, err := req.Source.Upload()
	if err != nil {
		var ie *Error
		if errors.As(err, &ie) {
			return Result{}, ie
		}
		return Result{}, newError(BadUpload, MsgBadUpload, err)
	}

	if up.Size > s.maxBytes {
		return Result{}, newError(PayloadTooLarge, sizeMessage(s.maxBytes), nil)
	}

	if !up.IsWebM() {
		s.logger.Info("upload_rejected_type",
			zap.String("client_ip", logger.SanitizeIP(req.ClientIP)),
			zap.String("content_type", logger.SanitizeString(up.ContentType, 100)),
			zap.String("client_filename", logger.SanitizeFilename(up.Filename)),
		)
		return Result{}, newError(UnsupportedMediaType, MsgUnsupportedType, nil)
	}

	name := s.namer.Next()
	sub, err := s.save(ctx, name, up)
	if err != nil {
		s.logger.Error("voicenote_store_failed",
			zap.String("filename", name),
			zap.String("error", logger.SanitizeError(err)),
		)
		if errors.Is(err, storage.ErrDirectory) {
			return Result{}, newError(StorageFailure, MsgDirectoryFailed, err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, newError(StorageFailure, MsgUploadAbandoned, err)
		}
		return Result{}, newError(StorageFailure, MsgMoveFailed, err)
	}

	s.logger.Info("voicenote_stored",
		zap.String("filename", sub.Filename),
		zap.Int64("size", sub.Size),
		zap.String("client_ip", logger.SanitizeIP(req.ClientIP)),
	)

	// The file is stored, so it is counted even if the client has gone away.
	// A failed count must not turn into an error response.
	ctx = context.WithoutCancel(ctx)
	if err := s.quota.RecordSubmission(ctx, req.ClientIP); err != nil {
		s.logger.Error("quota_record_failed",
			zap.String("client_ip", logger.SanitizeIP(req.ClientIP)),
			zap.String("filename", sub.Filename),
			zap.String("error", logger.SanitizeError(err)),
		)
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(models.Notification{
			Filename:    sub.Filename,
			URL:         sub.URL,
			ReviewURL:   s.reviewURL,
			ClientIP:    req.ClientIP,
			SubmittedAt: s.now().UTC(),
		})
	}

	return Result{Filename: sub.Filename, URL: sub.URL, Size: sub.Size}, nil
}

func (s *Service) save(ctx context.Context, name string, up Upload) (models.Submission, error) {
	rc, err := up.Open()
	if err != nil {
		return models.Submission{}, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = rc.Close() }()
	return s.store.Save(ctx, name, rc)
}

func sizeMessage(maxBytes int64) string {
	const mib = 1024 * 1024
	if maxBytes >= mib && maxBytes%mib == 0 {
		return fmt.Sprintf("File size exceeds %dMB limit.", maxBytes/mib)
	}
	return fmt.Sprintf("File size exceeds %d byte limit.", maxBytes)
}
