// Package config provides environment-driven configuration for the
// overlay service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all application configuration values.
type Config struct {
	Port           string
	ListenHost     string
	CORSOrigins    []string
	LogLevel       string
	StorageBackend string
	DataDir        string
	DatabaseURL    Secret
	SaveDebounce   time.Duration
	MaxBodyBytes   int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           envOrDefault("PORT", "4400"),
		ListenHost:     envOrDefault("LISTEN_HOST", "127.0.0.1"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		StorageBackend: envOrDefault("STORAGE_BACKEND", BackendSQLite),
		DataDir:        envOrDefault("DATA_DIR", defaultDataDir()),
		DatabaseURL:    Secret(envOrDefault("DATABASE_URL", "")),
	}

	debounceMS, err := strconv.Atoi(envOrDefault("SAVE_DEBOUNCE_MS", "500"))
	if err != nil || debounceMS < 0 || debounceMS > 60000 {
		return nil, fmt.Errorf("SAVE_DEBOUNCE_MS must be an integer between 0 and 60000")
	}
	cfg.SaveDebounce = time.Duration(debounceMS) * time.Millisecond

	maxBodyMB, err := strconv.Atoi(envOrDefault("MAX_BODY_MB", "32"))
	if err != nil || maxBodyMB < 1 || maxBodyMB > 1024 {
		return nil, fmt.Errorf("MAX_BODY_MB must be an integer between 1 and 1024")
	}
	cfg.MaxBodyBytes = int64(maxBodyMB) << 20

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:3002")
	cfg.CORSOrigins = strings.Split(origins, ",")
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/pwa-modeller"
	}
	return ".pwa-modeller"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
