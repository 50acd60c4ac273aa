package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/request"
	"github.com/benvon/voicenote-intake/internal/services/intake"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const msgUploaded = "File uploaded successfully."

// Submitter runs the intake pipeline for one request.
type Submitter interface {
	Submit(ctx context.Context, req intake.Request) (intake.Result, error)
	MaxBytes() int64
}

// UploadHandler accepts voicenote submissions.
type UploadHandler struct {
	intake     Submitter
	trustProxy bool
	logger     *zap.Logger
}

// UploadResponse is the success body.
type UploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// UploadErrorResponse is the body of every refused submission. Message is only set for
// quota refusals.
type UploadErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewUploadHandler creates an upload handler
func NewUploadHandler(svc Submitter, trustProxy bool, log *zap.Logger) *UploadHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UploadHandler{intake: svc, trustProxy: trustProxy, logger: log}
}

// RegisterRoutes mounts the upload route wrapped in mws, outermost first. Every method
// reaches the handler so that non-POST requests get the JSON 405 body.
func (h *UploadHandler) RegisterRoutes(r *mux.Router, mws ...mux.MiddlewareFunc) {
	var handler http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	r.Handle("/voicenotes", handler)
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	src := intake.NewRequestSource(w, r, h.intake.MaxBytes())
	defer func() { _ = src.Close() }()

	res, err := h.intake.Submit(r.Context(), intake.Request{
		Method:   r.Method,
		ClientIP: request.ClientIP(r, h.trustProxy),
		Source:   src,
	})
	if err != nil {
		h.respondIntakeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:  true,
		Message:  msgUploaded,
		Filename: res.Filename,
		URL:      res.URL,
	})
}

func (h *UploadHandler) respondIntakeError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *intake.Error
	if !errors.As(err, &ie) {
		h.logger.Error("upload_unexpected_error",
			zap.String("path", logger.SanitizePath(r.URL.Path)),
			zap.String("error", logger.SanitizeError(err)),
		)
		writeJSON(w, http.StatusInternalServerError, UploadErrorResponse{Error: "Internal Server Error"})
		return
	}

	if ie.Kind == intake.MethodNotAllowed {
		w.Header().Set("Allow", http.MethodPost)
	}
	writeJSON(w, ie.StatusCode(), UploadErrorResponse{Error: ie.Message, Message: ie.Detail()})
}
