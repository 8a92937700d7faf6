package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig holds HTTP listener and request limits.
type ServerConfig struct {
	Port           string
	MaxUploadBytes int64
	// UploadRate is the number of upload requests allowed per client IP per minute.
	UploadRate     int
	AllowedOrigins []string
	WebUser        string
	WebPassword    string
	ShutdownGrace  time.Duration
}

// BinderConfig holds portfolio and session behaviour.
type BinderConfig struct {
	SessionTTL      time.Duration
	JanitorInterval time.Duration
	DefaultFilename string
	TOCTitle        string
	PreviewScale    float64
}

// StoreConfig selects where build records live. Empty RedisURL keeps them in memory.
type StoreConfig struct {
	RedisURL string
}

// ArchiveConfig selects where constructed portfolios are copied.
type ArchiveConfig struct {
	Backend         string // "none"|"local"|"s3"
	Dir             string
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Password        string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Server  ServerConfig
	Binder  BinderConfig
	Store   StoreConfig
	Archive ArchiveConfig
}

// FromEnv loads configuration from the environment with sensible defaults.
// A .env file in the working directory is read first when present; variables
// already set in the environment win.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/portfoliobinder.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_portfoliobinder",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:           getEnv("PORT", "8080"),
		MaxUploadBytes: int64(parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100)) << 20,
		UploadRate:     parseInt(getEnv("UPLOAD_RATE_PER_MIN", "60"), 60),
		AllowedOrigins: parseList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		WebUser:        getEnv("WEB_USER", ""),
		WebPassword:    getEnv("WEB_PASSWORD", ""),
		ShutdownGrace:  parseDuration(getEnv("SHUTDOWN_GRACE", "15s"), 15*time.Second),
	}

	cfg.Binder = BinderConfig{
		SessionTTL:      parseDuration(getEnv("SESSION_TTL", "2h"), 2*time.Hour),
		JanitorInterval: parseDuration(getEnv("SESSION_JANITOR_INTERVAL", "5m"), 5*time.Minute),
		DefaultFilename: getEnv("DEFAULT_OUTPUT_FILENAME", "Project_Portfolio.pdf"),
		TOCTitle:        getEnv("TOC_TITLE", ""),
		PreviewScale:    parseFloat(getEnv("PREVIEW_SCALE", "0.3"), 0.3),
	}

	cfg.Store = StoreConfig{
		RedisURL: getEnv("REDIS_URL", ""),
	}

	cfg.Archive = ArchiveConfig{
		Backend:         strings.ToLower(getEnv("ARCHIVE_BACKEND", "none")),
		Dir:             getEnv("ARCHIVE_DIR", "uploads/portfolios"),
		Bucket:          getEnv("AWS_S3_BUCKET", ""),
		Prefix:          getEnv("ARCHIVE_PREFIX", "portfolios"),
		Region:          getEnv("AWS_REGION", ""),
		Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		Password:        getEnv("ARCHIVE_PASSWORD", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
