package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the API description from a YAML file on disk
type OpenAPIHandler struct {
	path    string
	baseDir string
}

// NewOpenAPIHandler creates a new OpenAPI handler. The path is resolved once so later
// reads cannot be redirected outside its directory.
func NewOpenAPIHandler(openAPIPath string) *OpenAPIHandler {
	absPath, _ := filepath.Abs(filepath.Clean(openAPIPath))
	return &OpenAPIHandler{
		path:    absPath,
		baseDir: filepath.Dir(absPath),
	}
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/openapi.yaml", h.ServeYAML).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/openapi.json", h.ServeJSON).Methods(http.MethodGet)
}

func (h *OpenAPIHandler) read() ([]byte, error) {
	rel, err := filepath.Rel(h.baseDir, h.path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, os.ErrPermission
	}
	return os.ReadFile(h.path)
}

// ServeYAML serves the OpenAPI document as stored
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	data, err := h.read()
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "OpenAPI specification not found")
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(data)
}

// ServeJSON converts the OpenAPI document to JSON
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	data, err := h.read()
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "OpenAPI specification not found")
		return
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to parse OpenAPI specification")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
	}
}
