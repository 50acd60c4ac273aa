package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/request"
	"github.com/benvon/voicenote-intake/internal/storage"
	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	submittedAtLayout = "2006-01-02 15:04:05 MST"
	msgDeleted        = "Voicenote deleted successfully."
	audioContentType  = "audio/webm"
)

// SubmissionStore is the part of the submission directory the admin surface uses.
type SubmissionStore interface {
	List(ctx context.Context) ([]models.Submission, error)
	Open(ctx context.Context, name string) (afero.File, models.Submission, error)
	Delete(ctx context.Context, name string) error
}

// AdminHandler lets operators review and remove submissions.
type AdminHandler struct {
	store    SubmissionStore
	location *time.Location
	logger   *zap.Logger
}

// NewAdminHandler creates an admin handler. Timestamps are rendered in loc.
func NewAdminHandler(store SubmissionStore, loc *time.Location, log *zap.Logger) *AdminHandler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{store: store, location: loc, logger: log}
}

// RegisterRoutes registers admin routes on a router already guarded by admin auth
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/voicenotes", h.ListVoicenotes).Methods(http.MethodGet)
	r.HandleFunc("/voicenotes/{filename}", h.GetVoicenote).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/voicenotes/{filename}", h.DeleteVoicenote).Methods(http.MethodDelete)
}

// ListVoicenotes returns stored submissions, newest first
func (h *AdminHandler) ListVoicenotes(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed_to_list_voicenotes", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list voicenotes")
		return
	}

	views := make([]models.SubmissionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, models.SubmissionView{
			Filename:    s.Filename,
			URL:         s.URL,
			Size:        s.Size,
			SizeHuman:   humanSize(s.Size),
			SubmittedAt: s.ModifiedAt.In(h.location).Format(submittedAtLayout),
			Timestamp:   s.ModifiedAt.Unix(),
		})
	}
	respondJSON(w, http.StatusOK, views)
}

// GetVoicenote streams one stored file
func (h *AdminHandler) GetVoicenote(w http.ResponseWriter, r *http.Request) {
	serveVoicenote(w, r, h.store, h.logger)
}

// DeleteVoicenote removes one stored file
func (h *AdminHandler) DeleteVoicenote(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	if err := h.store.Delete(r.Context(), name); err != nil {
		if !respondStoreError(w, err) {
			h.logger.Error("failed_to_delete_voicenote",
				zap.String("filename", logger.SanitizeFilename(name)),
				zap.String("error", logger.SanitizeError(err)),
			)
			respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete voicenote")
		}
		return
	}

	var subject string
	if claims := request.AdminFromContext(r); claims != nil {
		subject = claims.Subject
	}
	h.logger.Info("voicenote_deleted",
		zap.String("filename", name),
		zap.String("admin", logger.SanitizeString(subject, 100)),
	)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msgDeleted})
}

// serveVoicenote writes a stored file with range support.
func serveVoicenote(w http.ResponseWriter, r *http.Request, store SubmissionStore, log *zap.Logger) {
	name := mux.Vars(r)["filename"]
	f, sub, err := store.Open(r.Context(), name)
	if err != nil {
		if !respondStoreError(w, err) {
			log.Error("failed_to_open_voicenote",
				zap.String("filename", logger.SanitizeFilename(name)),
				zap.String("error", logger.SanitizeError(err)),
			)
			respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to read voicenote")
		}
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", audioContentType)
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sub.Filename))
	}
	http.ServeContent(w, r, sub.Filename, sub.ModifiedAt, f)
}

// respondStoreError handles the storage sentinels. It reports whether a response was written.
func respondStoreError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid voicenote filename")
	case errors.Is(err, storage.ErrNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", "Voicenote not found")
	default:
		return false
	}
	return true
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
