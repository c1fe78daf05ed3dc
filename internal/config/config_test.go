package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Quiz.SessionTTL != 30*time.Minute {
		t.Fatalf("expected default session ttl, got %v", cfg.Quiz.SessionTTL)
	}
	if cfg.Storage() != "memory" {
		t.Fatalf("expected memory storage, got %q", cfg.Storage())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
env: production
server:
  port: "9090"
sqlite:
  path: /tmp/quiz.db
redis:
  addr: localhost:6379
progress:
  cache_ttl: 5s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("QUIZ_SERVER_PORT", "7070")
	t.Setenv("QUIZ_POSTGRES_URL", "postgres://quiz@localhost/quiz")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected production env, got %q", cfg.Env)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env override for port, got %q", cfg.Server.Port)
	}
	if cfg.Progress.CacheTTL != 5*time.Second {
		t.Fatalf("expected 5s cache ttl, got %v", cfg.Progress.CacheTTL)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
	if cfg.Storage() != "postgres" {
		t.Fatalf("expected postgres to win over sqlite, got %q", cfg.Storage())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("QUIZ_LOG_LEVEL", "loud")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "Level") {
		t.Fatalf("expected log level validation error, got %v", err)
	}
}

func TestLoadRejectsPostgresQuestionsWithoutDatabase(t *testing.T) {
	t.Setenv("QUIZ_QUESTIONS_SOURCE", "postgres")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for postgres question source without url")
	}
}
