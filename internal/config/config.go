package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Archive backends
const (
	ArchiveFS    = "fs"
	ArchiveRedis = "redis"
	ArchiveS3    = "s3"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL    string
	DBPath      string
	CatalogPath string
	MediaDir    string

	SkipBudget     int
	SessionTTL     time.Duration
	AdminIDs       []string
	DispatchShards int
	AllowedOrigins []string
	WorkerID       string
	TelegramToken  string

	Archive ArchiveConfig
}

// ArchiveConfig selects and configures the archive backend.
type ArchiveConfig struct {
	Backend   string
	Dir       string
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	QueueSize int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DBPath:      getEnv("DB_PATH", "./data/progress.db"),
		CatalogPath: getEnv("CATALOG_PATH", "./data/quest.yaml"),
		MediaDir:    getEnv("MEDIA_DIR", "./data/media"),

		SkipBudget:     getEnvInt("SKIP_BUDGET", 5),
		SessionTTL:     getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		AdminIDs:       getEnvList("ADMIN_IDS"),
		DispatchShards: getEnvInt("DISPATCH_SHARDS", 8),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
		WorkerID:       getEnv("WORKER_ID", ""),
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),

		Archive: ArchiveConfig{
			Backend:   strings.ToLower(getEnv("ARCHIVE_BACKEND", ArchiveFS)),
			Dir:       getEnv("ARCHIVE_DIR", "./data/archive"),
			Bucket:    getEnv("ARCHIVE_BUCKET", "quest-archive"),
			Endpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
			Region:    getEnv("ARCHIVE_REGION", "us-east-1"),
			AccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
			UseSSL:    getEnvBool("ARCHIVE_USE_SSL", true),
			QueueSize: getEnvInt("ARCHIVE_QUEUE_SIZE", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.CatalogPath == "" {
		return fmt.Errorf("CATALOG_PATH cannot be empty")
	}
	if c.SkipBudget < 0 {
		return fmt.Errorf("SKIP_BUDGET must be >= 0")
	}
	if c.DispatchShards <= 0 {
		return fmt.Errorf("DISPATCH_SHARDS must be > 0")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must be >= 0")
	}
	if c.Archive.QueueSize <= 0 {
		return fmt.Errorf("ARCHIVE_QUEUE_SIZE must be > 0")
	}
	switch c.Archive.Backend {
	case ArchiveFS:
		if c.Archive.Dir == "" {
			return fmt.Errorf("ARCHIVE_DIR cannot be empty")
		}
	case ArchiveRedis:
	case ArchiveS3:
		if c.Archive.Endpoint == "" || c.Archive.Bucket == "" {
			return fmt.Errorf("ARCHIVE_ENDPOINT and ARCHIVE_BUCKET are required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown ARCHIVE_BACKEND %q", c.Archive.Backend)
	}
	return nil
}

// IsProduction reports whether logs should be JSON.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
