// Package config centralizes how the portal reads environment variables and
// exposes them as strongly typed values.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration for the portal and its worker.
type Config struct {
	Address string

	// Upload pipeline limits.
	MaxFileSize       int64
	AllowedExtensions []string
	UploadChunkSize   int64
	UploadConcurrency int
	UploadTimeout     time.Duration

	// Object store.
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageUseSSL    bool
	StorageContainer string
	StorageRegion    string

	// Backend status API.
	APIBaseURL string
	APITimeout time.Duration

	// Portal session.
	JWTKey       []byte
	SessionTTL   time.Duration
	CookieName   string
	CookieSecure bool
	CSRFTokenTTL time.Duration

	// Infrastructure.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	WorkerPool    int
}

const (
	defaultAddress     = ":3000"
	defaultMaxFileSize = 100 << 20 // 100 MiB
	defaultExtensions  = ".csv,.txt,.xlsx,.xlsm,.xls,.xltx,.xltm,.zip"
	defaultChunkSize   = 5 << 20 // 5 MiB streaming buffer
	defaultConcurrency = 5
	defaultUploadTO    = 15 * time.Minute
	defaultAPIBaseURL  = "http://localhost:8080/api/v1/"
	defaultAPITimeout  = 5 * time.Second
	defaultSessionTTL  = 4 * time.Hour
	defaultCookieName  = "erportal_session"
	defaultCSRFTTL     = time.Hour
	defaultWorkerCount = 2
)

// Load reads configuration from environment variables falling back to
// defaults. Secrets without a sane default (storage container, JWT key) must
// be present or Load fails.
func Load() (*Config, error) {
	cfg := &Config{
		Address:           readEnv("ERPORTAL_ADDRESS", defaultAddress),
		MaxFileSize:       parseInt64("ERPORTAL_MAX_FILE_BYTES", defaultMaxFileSize),
		AllowedExtensions: parseList("ERPORTAL_ALLOWED_EXTENSIONS", defaultExtensions),
		UploadChunkSize:   parseInt64("ERPORTAL_UPLOAD_CHUNK_BYTES", defaultChunkSize),
		UploadConcurrency: parseInt("ERPORTAL_UPLOAD_CONCURRENCY", defaultConcurrency),
		UploadTimeout:     parseDuration("ERPORTAL_UPLOAD_TIMEOUT", defaultUploadTO),
		StorageEndpoint:   readEnv("ERPORTAL_STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey:  os.Getenv("ERPORTAL_STORAGE_ACCESS_KEY"),
		StorageSecretKey:  os.Getenv("ERPORTAL_STORAGE_SECRET_KEY"),
		StorageUseSSL:     parseBool("ERPORTAL_STORAGE_USE_SSL", false),
		StorageContainer:  os.Getenv("ERPORTAL_STORAGE_CONTAINER"),
		StorageRegion:     readEnv("ERPORTAL_STORAGE_REGION", "us-east-1"),
		APIBaseURL:        readEnv("ERPORTAL_API_BASE_URL", defaultAPIBaseURL),
		APITimeout:        parseDuration("ERPORTAL_API_TIMEOUT", defaultAPITimeout),
		JWTKey:            []byte(os.Getenv("ERPORTAL_JWT_KEY")),
		SessionTTL:        parseDuration("ERPORTAL_SESSION_TTL", defaultSessionTTL),
		CookieName:        readEnv("ERPORTAL_COOKIE_NAME", defaultCookieName),
		CookieSecure:      parseBool("ERPORTAL_COOKIE_SECURE", true),
		CSRFTokenTTL:      parseDuration("ERPORTAL_CSRF_TTL", defaultCSRFTTL),
		RedisAddr:         readEnv("ERPORTAL_REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("ERPORTAL_REDIS_PASSWORD"),
		RedisDB:           parseInt("ERPORTAL_REDIS_DB", 0),
		DatabaseURL:       os.Getenv("ERPORTAL_DATABASE_URL"),
		WorkerPool:        parseInt("ERPORTAL_WORKERS", defaultWorkerCount),
	}
	if cfg.StorageContainer == "" {
		return nil, errors.New("ERPORTAL_STORAGE_CONTAINER is required")
	}
	if len(cfg.JWTKey) == 0 {
		return nil, errors.New("ERPORTAL_JWT_KEY is required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.UploadChunkSize < defaultChunkSize {
		// MinIO rejects multipart parts below 5 MiB.
		cfg.UploadChunkSize = defaultChunkSize
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = defaultConcurrency
	}
	if cfg.WorkerPool <= 0 {
		cfg.WorkerPool = defaultWorkerCount
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	out := strings.Split(val, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
