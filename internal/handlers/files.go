package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// FileHandler serves stored voicenotes at their public URLs.
type FileHandler struct {
	store  SubmissionStore
	logger *zap.Logger
}

// NewFileHandler creates a public file handler
func NewFileHandler(store SubmissionStore, log *zap.Logger) *FileHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileHandler{store: store, logger: log}
}

// RegisterRoutes mounts GET /voicenotes/{filename}
func (h *FileHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/voicenotes/{filename}", h.ServeVoicenote).Methods(http.MethodGet, http.MethodHead)
}

// ServeVoicenote streams a stored file
func (h *FileHandler) ServeVoicenote(w http.ResponseWriter, r *http.Request) {
	serveVoicenote(w, r, h.store, h.logger)
}
