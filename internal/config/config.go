package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port            string
	PostgresURL     string
	CatalogURL      string
	KafkaBrokers    []string
	RedisAddr       string
	JWTSecret       string
	CatalogCacheTTL time.Duration
	AttemptStaleTTL time.Duration
}

// FromEnv reads the service configuration. PostgresURL, CatalogURL and
// JWTSecret are required; mains decide how loudly to fail. KafkaBrokers and
// RedisAddr are optional: absent, the service runs without events and
// without the catalog cache.
func FromEnv() Config {
	cfg := Config{
		Port:            "8081",
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		CatalogURL:      os.Getenv("CATALOG_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		CatalogCacheTTL: time.Minute,
		AttemptStaleTTL: 2 * time.Minute,
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CATALOG_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CatalogCacheTTL = d
		}
	}
	if v := os.Getenv("ATTEMPT_STALE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AttemptStaleTTL = d
		}
	}

	return cfg
}
