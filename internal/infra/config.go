package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Dispatch modes: substrate routes work through the message broker, direct
// runs it in-process.
const (
	DispatchModeSubstrate = "substrate"
	DispatchModeDirect    = "direct"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// DBMaxConns bounds the pgx pool. The API and worker share one database,
	// so the pool is sized per process.
	DBMaxConns int

	// EncryptionKey is the hex-encoded 32-byte key protecting stored
	// workspace credentials.
	EncryptionKey string

	StoragePath string

	// AMQPURL points at the durable dispatch substrate. Empty disables the
	// substrate and forces direct dispatch.
	AMQPURL       string
	DispatchQueue string
	DispatchMode  string

	RunwayBaseURL    string
	StabilityBaseURL string

	PollInterval    time.Duration
	BatchWindowSize int

	AllowedOrigins     []string
	RateLimitPerMinute int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 10),
		EncryptionKey:      os.Getenv("CREDENTIAL_ENCRYPTION_KEY"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		AMQPURL:            os.Getenv("AMQP_URL"),
		DispatchQueue:      getEnv("DISPATCH_QUEUE", "render.dispatch"),
		DispatchMode:       getEnv("DISPATCH_MODE", "substrate"),
		RunwayBaseURL:      getEnv("RUNWAY_BASE_URL", "https://api.dev.runwayml.com/v1"),
		StabilityBaseURL:   getEnv("STABILITY_BASE_URL", "https://api.stability.ai/v2beta"),
		PollInterval:       time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)),
		BatchWindowSize:    getEnvInt("BATCH_WINDOW_SIZE", 2),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.DispatchMode {
	case DispatchModeSubstrate, DispatchModeDirect:
	default:
		return nil, fmt.Errorf("DISPATCH_MODE must be substrate or direct, got %q", cfg.DispatchMode)
	}

	if cfg.BatchWindowSize <= 0 {
		cfg.BatchWindowSize = 2
	}

	return cfg, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
