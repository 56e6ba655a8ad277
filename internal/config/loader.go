package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "magi.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	warnTimeoutHierarchy(cfg.Council)

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "MAGI_PORT")
	setString(&cfg.Server.CORSOrigin, "MAGI_CORS_ORIGIN")
	setFloat(&cfg.Server.RateLimitRPS, "MAGI_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "MAGI_RATE_LIMIT_BURST")
	setString(&cfg.Logging.Level, "MAGI_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MAGI_LOG_SERVICE")
	setString(&cfg.LLM.URL, "MAGI_LLM_URL")
	setString(&cfg.LLM.APIKey, "MAGI_LLM_API_KEY")
	setInt(&cfg.Breaker.MaxFailures, "MAGI_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "MAGI_BREAKER_TIMEOUT")
	setSeconds(&cfg.Council.SageTimeout, "MAGI_SAGE_TIMEOUT_SECONDS")
	setSeconds(&cfg.Council.SolomonTimeout, "MAGI_SOLOMON_TIMEOUT_SECONDS")
	setSeconds(&cfg.Council.TotalTimeout, "MAGI_TOTAL_TIMEOUT_SECONDS")
	setSeconds(&cfg.Council.QueueTimeout, "MAGI_EVENT_QUEUE_TIMEOUT_SECONDS")
	setInt(&cfg.Council.MaxParallel, "MAGI_MAX_PARALLEL")
	setInt64(&cfg.Cache.MaxSizeMB, "MAGI_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "MAGI_CACHE_TTL")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "MAGI_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "MAGI_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "MAGI_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "MAGI_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "MAGI_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Council.SageTimeout <= 0 || cfg.Council.SolomonTimeout <= 0 ||
		cfg.Council.TotalTimeout <= 0 || cfg.Council.QueueTimeout <= 0 {
		return errors.New("council timeouts must be positive")
	}
	if cfg.Council.MaxParallel < 1 {
		return errors.New("council.max_parallel must be >= 1")
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	return nil
}

// warnTimeoutHierarchy logs when the timeout layers are mis-ordered.
// A violated hierarchy is a configuration warning, not a hard failure:
// individual workers still time out, they just lose their safety margin
// against the total budget.
func warnTimeoutHierarchy(c Council) {
	if c.SageTimeout >= c.TotalTimeout {
		slog.Warn("sage timeout should be less than the total timeout",
			"sage_timeout", c.SageTimeout, "total_timeout", c.TotalTimeout)
	}
	if c.SolomonTimeout >= c.TotalTimeout {
		slog.Warn("solomon timeout should be less than the total timeout",
			"solomon_timeout", c.SolomonTimeout, "total_timeout", c.TotalTimeout)
	}
	if c.QueueTimeout >= c.TotalTimeout {
		slog.Warn("event queue timeout should be less than the total timeout",
			"queue_timeout", c.QueueTimeout, "total_timeout", c.TotalTimeout)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setSeconds reads a plain integer number of seconds. Invalid or
// non-positive values are ignored in favor of the current value.
func setSeconds(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid timeout value, keeping default", "key", key, "value", v)
		return
	}
	*dst = time.Duration(n) * time.Second
}
