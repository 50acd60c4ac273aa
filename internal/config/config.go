package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultMaxSubmissionsPerDay is the daily quota per client IP
	DefaultMaxSubmissionsPerDay = 5
	// DefaultMaxUploadBytes is the per-file ceiling (50 MiB)
	DefaultMaxUploadBytes int64 = 50 * 1024 * 1024
	// MinUploadBytesPerSecond is the slowest uplink (1 Mbit/s) a full-size upload must still fit
	MinUploadBytesPerSecond int64 = 128 * 1024
	// BaseUploadTimeout covers connection setup, storage and the quota write
	BaseUploadTimeout = 60 * time.Second

	SettingsBackendRedis    = "redis"
	SettingsBackendPostgres = "postgres"
	SettingsBackendMemory   = "memory"

	NotifyModeLog   = "log"
	NotifyModeSMTP  = "smtp"
	NotifyModeQueue = "queue"
)

// Config holds application configuration
type Config struct {
	ServerPort       string `validate:"required,numeric"`
	BaseURL          string `validate:"required,url"`
	PublicBaseURL    string `validate:"required,url"`
	UploadDir        string `validate:"required"`
	ServePublicFiles bool
	ServeRecorder    bool
	SiteOrigins      string
	SiteTimezone     string `validate:"required"`

	MaxSubmissionsPerDay int   `validate:"min=1"`
	MaxUploadBytes       int64 `validate:"min=1"`
	TrustProxyHeaders    bool
	BurstRate            string

	SettingsBackend   string `validate:"oneof=redis postgres memory"`
	SettingsNamespace string `validate:"required"`
	RedisURL          string `validate:"required_if=SettingsBackend redis"`
	DatabaseURL       string `validate:"required_if=SettingsBackend postgres"`

	NotifyMode        string `validate:"oneof=log smtp queue"`
	NotifyTimeout     time.Duration
	RabbitMQURL       string `validate:"required_if=NotifyMode queue"`
	RabbitMQPrefetch  int    `validate:"min=1"`
	AdminEmail        string `validate:"omitempty,email"`
	SMTPHost          string `validate:"required_if=NotifyMode smtp"`
	SMTPPort          int    `validate:"min=1,max=65535"`
	SMTPUsername      string
	SMTPPassword      string
	SMTPFrom          string `validate:"omitempty,email"`
	MailRatePerMinute int    `validate:"min=1"`

	AdminJWTSecret string `validate:"omitempty,min=32"`
	AdminJWTIssuer string `validate:"required"`

	EnableHSTS      bool
	ServerDebugMode bool
	WorkerDebugMode bool
	LogFormat       string
	OTELEnabled     bool
	OTELEndpoint    string
}

var validate = validator.New()

// Load loads configuration from environment variables
func Load() (*Config, error) {
	baseURL := strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/")

	cfg := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		BaseURL:          baseURL,
		PublicBaseURL:    strings.TrimRight(getEnv("PUBLIC_BASE_URL", baseURL+"/voicenotes"), "/"),
		UploadDir:        getEnv("UPLOAD_DIR", "./data/podcast_voicenotes"),
		ServePublicFiles: getEnvBool("SERVE_PUBLIC_FILES", true),
		ServeRecorder:    getEnvBool("SERVE_RECORDER", true),
		SiteOrigins:      getEnv("SITE_ORIGINS", "http://localhost:3000"),
		SiteTimezone:     getEnv("SITE_TIMEZONE", "UTC"),

		MaxSubmissionsPerDay: getEnvInt("MAX_SUBMISSIONS_PER_DAY", DefaultMaxSubmissionsPerDay),
		MaxUploadBytes:       getEnvInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
		TrustProxyHeaders:    getEnvBool("TRUST_PROXY_HEADERS", false),
		BurstRate:            getEnv("BURST_RATE", "20-M"),

		SettingsBackend:   strings.ToLower(getEnv("SETTINGS_BACKEND", SettingsBackendRedis)),
		SettingsNamespace: getEnv("SETTINGS_NAMESPACE", "voicenotes"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),

		NotifyMode:        strings.ToLower(getEnv("NOTIFY_MODE", NotifyModeLog)),
		NotifyTimeout:     getEnvDuration("NOTIFY_TIMEOUT", 30*time.Second),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:  getEnvInt("RABBITMQ_PREFETCH", 1),
		AdminEmail:        getEnv("ADMIN_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvInt("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:          getEnv("SMTP_FROM", ""),
		MailRatePerMinute: getEnvInt("MAIL_RATE_PER_MINUTE", 30),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminJWTIssuer: getEnv("ADMIN_JWT_ISSUER", "voicenote-intake"),

		EnableHSTS:      getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		WorkerDebugMode: getEnvBool("WORKER_DEBUG_MODE", false),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := time.LoadLocation(cfg.SiteTimezone); err != nil {
		return nil, fmt.Errorf("invalid SITE_TIMEZONE %q: %w", cfg.SiteTimezone, err)
	}

	if cfg.NotifyMode != NotifyModeLog && cfg.AdminEmail == "" {
		return nil, fmt.Errorf("ADMIN_EMAIL is required when NOTIFY_MODE is %s", cfg.NotifyMode)
	}

	return cfg, nil
}

// Location returns the site timezone used for admin-facing timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SiteTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AdminEnabled reports whether the admin surface should be mounted.
func (c *Config) AdminEnabled() bool {
	return c.AdminJWTSecret != ""
}

// ReviewURL is the admin listing URL included in notifications.
func (c *Config) ReviewURL() string {
	return c.BaseURL + "/api/v1/admin/voicenotes"
}

// UploadTimeout is the time a full-size upload gets at MinUploadBytesPerSecond.
func (c *Config) UploadTimeout() time.Duration {
	transfer := time.Duration(c.MaxUploadBytes/MinUploadBytesPerSecond) * time.Second
	return BaseUploadTimeout + transfer
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
