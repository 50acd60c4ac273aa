package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	checks map[string]CheckFunc
}

// NewHealthChecker creates a health checker with no dependency checks
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]CheckFunc)}
}

// AddCheck registers a dependency probe run in extended mode
func (h *HealthChecker) AddCheck(name string, fn CheckFunc) *HealthChecker {
	h.checks[name] = fn
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	// Basic mode only reports that the server is running
	if r.URL.Query().Get("mode") != "extended" {
		writeJSON(w, http.StatusOK, response)
		return
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	response.Checks = make(map[string]string, len(names))
	for _, name := range names {
		if err := h.run(r.Context(), h.checks[name]); err != nil {
			response.Status = "unhealthy"
			response.Checks[name] = "unhealthy: " + sanitizeErrorMessage(err.Error())
			continue
		}
		response.Checks[name] = "healthy"
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

func (h *HealthChecker) run(ctx context.Context, fn CheckFunc) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return fn(ctx)
}

// VersionResponse is the body of /version
type VersionResponse struct {
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Version serves minimal build information
func Version(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
