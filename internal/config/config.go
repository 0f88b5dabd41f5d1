package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBSource  string
	Port      string
	Env       string
	JWTSecret string
	TokenTTL  time.Duration
	RedisAddr string
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	ttl := 12 * time.Hour
	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
		ttl = parsed
	}

	return &Config{
		DBSource:  dbSource,
		Port:      port,
		Env:       env,
		JWTSecret: secret,
		TokenTTL:  ttl,
		RedisAddr: os.Getenv("REDIS_ADDR"), // empty disables the count cache
	}, nil
}
