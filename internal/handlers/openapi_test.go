package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
)

const testOpenAPIDoc = `openapi: 3.0.3
info:
  title: Voicenote Intake API
  version: 1.0.0
paths: {}
`

func TestOpenAPIHandler(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "openapi.yaml")
	if err := os.WriteFile(path, []byte(testOpenAPIDoc), 0o600); err != nil {
		t.Fatalf("Failed to write OpenAPI document: %v", err)
	}

	r := mux.NewRouter()
	NewOpenAPIHandler(path).RegisterRoutes(r)

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.yaml", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if w.Body.String() != testOpenAPIDoc {
			t.Errorf("Unexpected body: %s", w.Body.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var doc map[string]any
		if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		info, _ := doc["info"].(map[string]any)
		if info["title"] != "Voicenote Intake API" {
			t.Errorf("Unexpected info: %v", doc["info"])
		}
	})
}

func TestOpenAPIHandler_MissingFile(t *testing.T) {
	t.Parallel()

	h := NewOpenAPIHandler(filepath.Join(t.TempDir(), "missing.yaml"))
	w := httptest.NewRecorder()
	h.ServeJSON(w, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
