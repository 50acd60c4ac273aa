package handlers

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
)

//go:embed recorder
var recorderAssets embed.FS

// recorderCSP allows the page's own script, microphone capture and posting to this origin.
const recorderCSP = "default-src 'none'; script-src 'self'; style-src 'self'; connect-src 'self'; media-src 'self' blob:; img-src 'self' data:"

// RecorderHandler serves the in-browser recording page.
type RecorderHandler struct {
	files http.Handler
}

// NewRecorderHandler creates a recorder page handler
func NewRecorderHandler() *RecorderHandler {
	sub, err := fs.Sub(recorderAssets, "recorder")
	if err != nil {
		// The embedded directory is fixed at build time
		panic(err)
	}
	return &RecorderHandler{
		files: http.StripPrefix("/recorder/", http.FileServer(http.FS(sub))),
	}
}

// RegisterRoutes mounts the page under /recorder/
func (h *RecorderHandler) RegisterRoutes(r *mux.Router) {
	r.Handle("/recorder", http.RedirectHandler("/recorder/", http.StatusMovedPermanently)).Methods(http.MethodGet, http.MethodHead)
	r.PathPrefix("/recorder/").Handler(h).Methods(http.MethodGet, http.MethodHead)
}

// ServeHTTP relaxes the default security headers for the recorder page only.
func (h *RecorderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Security-Policy", recorderCSP)
	w.Header().Set("Permissions-Policy", "camera=(), microphone=(self), geolocation=()")
	w.Header().Set("Cache-Control", "no-cache")
	h.files.ServeHTTP(w, r)
}
