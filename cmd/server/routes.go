package main

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/benvon/voicenote-intake/internal/handlers"
	"github.com/benvon/voicenote-intake/internal/middleware"
	"github.com/benvon/voicenote-intake/internal/telemetry"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// routerDeps is everything the HTTP surface needs.
type routerDeps struct {
	Logger        *zap.Logger
	Intake        handlers.Submitter
	Store         handlers.SubmissionStore
	Health        *handlers.HealthChecker
	Burst         *middleware.BurstLimiter
	AdminVerifier middleware.AdminVerifier
	Admin         *handlers.AdminHandler
	ServeFiles    bool
	ServeRecorder bool
	UploadTimeout time.Duration
	TrustProxy    bool
	Tracing       bool
	Version       string
	OpenAPIPath   string
}

func newRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()

	// mux runs middleware registered first as the outermost wrapper
	if d.Tracing {
		r.Use(telemetry.Middleware())
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler(d.Logger))
	r.Use(middleware.Audit(d.Logger, d.TrustProxy))
	r.Use(middleware.Logging(d.Logger))

	health := d.Health
	if health == nil {
		health = handlers.NewHealthChecker()
	}
	r.HandleFunc("/healthz", health.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", handlers.Version(d.Version)).Methods(http.MethodGet)

	openAPIPath := d.OpenAPIPath
	if openAPIPath == "" {
		openAPIPath = filepath.Join("api", "openapi", "openapi.yaml")
	}
	handlers.NewOpenAPIHandler(openAPIPath).RegisterRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()

	uploadMW := []mux.MiddlewareFunc{middleware.TimeoutContext(d.UploadTimeout)}
	if d.Burst != nil {
		uploadMW = append([]mux.MiddlewareFunc{d.Burst.Middleware()}, uploadMW...)
	}
	handlers.NewUploadHandler(d.Intake, d.TrustProxy, d.Logger).RegisterRoutes(api, uploadMW...)

	if d.AdminVerifier != nil && d.Admin != nil {
		admin := api.PathPrefix("/admin").Subrouter()
		admin.Use(middleware.AdminAuth(d.AdminVerifier, d.Logger))
		admin.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
		admin.Use(middleware.TimeoutContext(middleware.DefaultRequestTimeout))
		d.Admin.RegisterRoutes(admin)
		d.Logger.Info("admin_routes_enabled")
	}

	if d.ServeFiles && d.Store != nil {
		files := r.NewRoute().Subrouter()
		files.Use(middleware.TimeoutContext(middleware.DefaultRequestTimeout))
		handlers.NewFileHandler(d.Store, d.Logger).RegisterRoutes(files)
	}

	if d.ServeRecorder {
		handlers.NewRecorderHandler().RegisterRoutes(r)
	}

	return r
}
