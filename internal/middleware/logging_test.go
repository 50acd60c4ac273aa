package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
		body          string
	}{
		{"GET request", "GET", "/healthz", http.StatusOK, "ok"},
		{"POST upload", "POST", "/api/v1/voicenotes", http.StatusTooManyRequests, `{"error":"Submission limit reached."}`},
		{"404 request", "GET", "/notfound", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
				_, _ = w.Write([]byte(tt.body))
			})

			mw := RequestID()(Logging(zap.New(core))(handler))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			mw.ServeHTTP(w, req)

			resp := w.Result()
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, resp.StatusCode)
			}

			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected one http_request log entry, got %d", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["status_code"] != int64(tt.handlerStatus) {
				t.Errorf("Expected logged status %d, got %v", tt.handlerStatus, fields["status_code"])
			}
			if fields["path"] != tt.path {
				t.Errorf("Expected logged path %s, got %v", tt.path, fields["path"])
			}
			if fields["bytes"] != int64(len(tt.body)) {
				t.Errorf("Expected logged bytes %d, got %v", len(tt.body), fields["bytes"])
			}
			if fields["request_id"] == "" || fields["request_id"] != resp.Header.Get(RequestIDHeader) {
				t.Errorf("Expected logged request_id to match header, got %v", fields["request_id"])
			}
		})
	}
}

func TestLoggingResponseWriter_DefaultStatus(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	Logging(zap.New(core))(handler).ServeHTTP(w, req)

	if got := logs.All()[0].ContextMap()["status_code"]; got != int64(http.StatusOK) {
		t.Errorf("Expected status 200 logged, got %v", got)
	}
}
