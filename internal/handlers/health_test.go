package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	healthy := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		query      string
		checks     map[string]CheckFunc
		wantStatus int
		wantHealth string
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips checks",
			query:      "",
			checks:     map[string]CheckFunc{"settings": failing},
			wantStatus: http.StatusOK,
			wantHealth: "healthy",
		},
		{
			name:       "extended mode all healthy",
			query:      "?mode=extended",
			checks:     map[string]CheckFunc{"settings": healthy, "storage": healthy},
			wantStatus: http.StatusOK,
			wantHealth: "healthy",
			wantChecks: map[string]string{"settings": "healthy", "storage": "healthy"},
		},
		{
			name:       "extended mode one failing",
			query:      "?mode=extended",
			checks:     map[string]CheckFunc{"settings": failing, "storage": healthy},
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: "unhealthy",
			wantChecks: map[string]string{"settings": "unhealthy: connection refused", "storage": "healthy"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker()
			for name, fn := range tt.checks {
				h.AddCheck(name, fn)
			}

			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Status != tt.wantHealth {
				t.Errorf("Expected status '%s', got '%s'", tt.wantHealth, resp.Status)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Fatalf("Expected %d checks, got %v", len(tt.wantChecks), resp.Checks)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("Check %s: expected '%s', got '%s'", name, want, resp.Checks[name])
				}
			}
		})
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	Version("1.2.3")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp VersionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("Expected version '1.2.3', got '%s'", resp.Version)
	}
}
