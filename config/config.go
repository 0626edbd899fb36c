// Package config loads lorekeeper's runtime configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Backend names a Cache implementation.
type Backend string

const (
	BackendVector     Backend = "vector"
	BackendStructured Backend = "structured"
)

// Config holds every env-configurable setting lorekeeper's binaries need.
type Config struct {
	CacheBackend   Backend
	DBPath         string
	EmbeddingModel string
	EmbeddingDim   int
	UpstreamURL    string
	LogLevel       slog.Level
}

// envPrefix is prepended to every variable name lorekeeper reads.
const envPrefix = "LOREKEEPER"

// NewConfig loads configuration from the environment, applying defaults for
// anything unset. It first loads a .env file in the working directory if
// one exists; a missing file is not an error.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CacheBackend:   Backend(getenv(envPrefix+"_CACHE_BACKEND", string(BackendVector))),
		DBPath:         getenv(envPrefix+"_DB_PATH", defaultDBPath()),
		EmbeddingModel: getenv(envPrefix+"_EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		EmbeddingDim:   384,
		UpstreamURL:    getenv(envPrefix+"_UPSTREAM_URL", "https://www.dnd5eapi.co/api"),
	}

	if cfg.CacheBackend != BackendVector && cfg.CacheBackend != BackendStructured {
		return nil, fmt.Errorf("config: invalid %s_CACHE_BACKEND %q (want %q or %q)",
			envPrefix, cfg.CacheBackend, BackendVector, BackendStructured)
	}

	switch getenv(envPrefix+"_LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	return cfg, nil
}

func defaultDBPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "lorekeeper.db"
	}
	return dir + "/.lorekeeper/cache.db"
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
