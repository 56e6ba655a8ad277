package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Council.SageTimeout != 90*time.Second {
		t.Errorf("expected sage timeout 90s, got %v", cfg.Council.SageTimeout)
	}
	if cfg.Council.SolomonTimeout != 60*time.Second {
		t.Errorf("expected solomon timeout 60s, got %v", cfg.Council.SolomonTimeout)
	}
	if cfg.Council.TotalTimeout != 180*time.Second {
		t.Errorf("expected total timeout 180s, got %v", cfg.Council.TotalTimeout)
	}
	if cfg.Council.QueueTimeout != 120*time.Second {
		t.Errorf("expected queue timeout 120s, got %v", cfg.Council.QueueTimeout)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
council:
  sage_timeout: 45s
logging:
  level: "debug"
personas:
  caspar:
    role: "You are extremely conservative."
    temperature: 0.1
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Council.SageTimeout != 45*time.Second {
		t.Errorf("expected sage timeout 45s, got %v", cfg.Council.SageTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	p, ok := cfg.Personas["caspar"]
	if !ok {
		t.Fatal("expected caspar persona override")
	}
	if p.Role != "You are extremely conservative." || p.Temperature != 0.1 {
		t.Errorf("unexpected persona: %+v", p)
	}
	// Unchanged fields keep defaults
	if cfg.Council.TotalTimeout != 180*time.Second {
		t.Errorf("expected default total timeout, got %v", cfg.Council.TotalTimeout)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("MAGI_PORT", "7070")
	t.Setenv("MAGI_SAGE_TIMEOUT_SECONDS", "30")
	t.Setenv("MAGI_SOLOMON_TIMEOUT_SECONDS", "20")
	t.Setenv("MAGI_LOG_LEVEL", "warn")
	t.Setenv("MAGI_BREAKER_TIMEOUT", "1m")
	t.Setenv("MAGI_RATE_LIMIT_RPS", "0.5")
	t.Setenv("MAGI_RATE_LIMIT_BURST", "3")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Council.SageTimeout != 30*time.Second {
		t.Errorf("expected sage timeout 30s, got %v", cfg.Council.SageTimeout)
	}
	if cfg.Council.SolomonTimeout != 20*time.Second {
		t.Errorf("expected solomon timeout 20s, got %v", cfg.Council.SolomonTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Server.RateLimitRPS != 0.5 {
		t.Errorf("expected rate limit 0.5 rps, got %v", cfg.Server.RateLimitRPS)
	}
	if cfg.Server.RateLimitBurst != 3 {
		t.Errorf("expected rate limit burst 3, got %d", cfg.Server.RateLimitBurst)
	}
}

func TestEnvInvalidTimeoutKeepsDefault(t *testing.T) {
	cfg := Defaults()

	t.Setenv("MAGI_SAGE_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("MAGI_TOTAL_TIMEOUT_SECONDS", "-5")

	loadEnv(&cfg)

	if cfg.Council.SageTimeout != 90*time.Second {
		t.Errorf("invalid value should keep default, got %v", cfg.Council.SageTimeout)
	}
	if cfg.Council.TotalTimeout != 180*time.Second {
		t.Errorf("negative value should keep default, got %v", cfg.Council.TotalTimeout)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}

	bad := Defaults()
	bad.Council.MaxParallel = 0
	if err := validate(&bad); err == nil {
		t.Error("expected error for max_parallel 0")
	}

	bad = Defaults()
	bad.Council.SageTimeout = 0
	if err := validate(&bad); err == nil {
		t.Error("expected error for zero sage timeout")
	}
}

func TestLoadFromWarnsButAcceptsInvertedHierarchy(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	// Sage timeout above the total budget: a warning, not a failure.
	content := `
council:
  sage_timeout: 300s
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("inverted timeout hierarchy must not fail load: %v", err)
	}
	if cfg.Council.SageTimeout != 300*time.Second {
		t.Errorf("expected configured value kept, got %v", cfg.Council.SageTimeout)
	}
}
