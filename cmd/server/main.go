package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/voicenote-intake/internal/config"
	"github.com/benvon/voicenote-intake/internal/handlers"
	"github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/middleware"
	"github.com/benvon/voicenote-intake/internal/queue"
	"github.com/benvon/voicenote-intake/internal/services/adminauth"
	"github.com/benvon/voicenote-intake/internal/services/intake"
	"github.com/benvon/voicenote-intake/internal/services/notify"
	"github.com/benvon/voicenote-intake/internal/services/quota"
	"github.com/benvon/voicenote-intake/internal/settings"
	"github.com/benvon/voicenote-intake/internal/storage"
	"github.com/benvon/voicenote-intake/internal/telemetry"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const reloadInterval = time.Minute

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("settings_backend", cfg.SettingsBackend),
		zap.String("notify_mode", cfg.NotifyMode),
		zap.Int("max_submissions_per_day", cfg.MaxSubmissionsPerDay),
		zap.Int64("max_upload_bytes", cfg.MaxUploadBytes),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx := context.Background()

	tracerProvider := telemetry.Setup(ctx, cfg, zapLogger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx, tracerProvider); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	backend, err := settings.Open(ctx, cfg)
	if err != nil {
		zapLogger.Fatal("failed_to_open_settings_backend", zap.String("backend", cfg.SettingsBackend), zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			zapLogger.Warn("failed_to_close_settings_backend", zap.Error(err))
		}
	}()
	zapLogger.Info("settings_backend_ready", zap.String("backend", cfg.SettingsBackend))

	store := storage.NewOnDisk(cfg.UploadDir, cfg.PublicBaseURL)
	if err := store.EnsureDir(ctx); err != nil {
		zapLogger.Fatal("failed_to_create_upload_dir",
			zap.String("upload_dir", logger.SanitizePath(cfg.UploadDir)),
			zap.Error(err),
		)
	}

	health := handlers.NewHealthChecker().
		AddCheck("settings", backend.Ping).
		AddCheck("storage", store.EnsureDir)

	var jobQueue *queue.RabbitMQQueue
	if cfg.NotifyMode == config.NotifyModeQueue {
		jobQueue, err = queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, queue.DefaultConnectAttempts, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		health.AddCheck("queue", jobQueue.HealthCheck)
		zapLogger.Info("connected_to_rabbitmq")
	}

	var publisher queue.Publisher
	if jobQueue != nil {
		publisher = jobQueue
	}
	notifier, err := notify.New(cfg, publisher, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_notifier", zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyTimeout, zapLogger)

	limiter := quota.New(backend.Store, cfg.MaxSubmissionsPerDay, quota.WithLogger(zapLogger))
	intakeService := intake.NewService(limiter, store, dispatcher, cfg.MaxUploadBytes, zapLogger,
		intake.WithReviewURL(cfg.ReviewURL()),
	)

	burst, err := middleware.NewBurstLimiter(backend.Store, middleware.BurstOptions{
		Redis:       backend.Redis,
		Prefix:      settings.NamespacedKey(cfg.SettingsNamespace, "burst"),
		DefaultRate: cfg.BurstRate,
		TrustProxy:  cfg.TrustProxyHeaders,
		Interval:    reloadInterval,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_burst_limiter", zap.Error(err))
	}

	deps := routerDeps{
		Logger:        zapLogger,
		Intake:        intakeService,
		Store:         store,
		Health:        health,
		Burst:         burst,
		ServeFiles:    cfg.ServePublicFiles,
		ServeRecorder: cfg.ServeRecorder,
		UploadTimeout: cfg.UploadTimeout(),
		TrustProxy:    cfg.TrustProxyHeaders,
		Tracing:       tracerProvider != nil,
		Version:       version,
	}
	if cfg.AdminEnabled() {
		authority, err := adminauth.New(cfg.AdminJWTSecret, cfg.AdminJWTIssuer)
		if err != nil {
			zapLogger.Fatal("failed_to_create_admin_authority", zap.Error(err))
		}
		deps.AdminVerifier = authority
		deps.Admin = handlers.NewAdminHandler(store, cfg.Location(), zapLogger)
	} else {
		zapLogger.Info("admin_routes_disabled_no_secret")
	}

	router := newRouter(deps)
	corsReloader := middleware.NewCORSReloader(backend.Store, cfg.SiteOrigins, zapLogger, reloadInterval)
	handler := middleware.SecurityHeaders(cfg.EnableHSTS)(corsReloader.Middleware()(router))

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// A full-size upload on a slow uplink must fit in the read budget
		ReadTimeout:    cfg.UploadTimeout(),
		WriteTimeout:   cfg.UploadTimeout() + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	reloadCtx, reloadCancel := context.WithCancel(context.Background())
	defer reloadCancel()
	go corsReloader.Start(reloadCtx)
	go burst.Start(reloadCtx)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	reloadCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		zapLogger.Warn("notifications_still_in_flight", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
