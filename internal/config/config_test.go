package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" || cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("expected info level, got %s", cfg.LogLevel)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("expected 30s cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.MaxApplyRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.MaxApplyRetries)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Error("database and redis should be unset by default")
	}
	if string(cfg.JWTSecret) != testSecret {
		t.Error("secret not loaded")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if !errors.Is(err, ErrMissingSecret) {
		t.Errorf("expected ErrMissingSecret, got %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://localhost/portfolio")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("MAX_APPLY_RETRIES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %s", cfg.LogLevel)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("expected 1m, got %s", cfg.CacheTTL)
	}
	if cfg.MaxApplyRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.MaxApplyRetries)
	}
	if cfg.DatabaseURL == "" || cfg.RedisURL == "" {
		t.Error("expected database and redis urls")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":              "eighty",
		"LOG_LEVEL":         "verbose",
		"CACHE_TTL":         "-5s",
		"MAX_APPLY_RETRIES": "0",
		"READ_TIMEOUT":      "soon",
	}

	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("JWT_SECRET", testSecret)
			t.Setenv(key, val)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", key, val)
			}
		})
	}
}
