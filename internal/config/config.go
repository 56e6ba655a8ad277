// Package config provides hierarchical configuration loading for MAGI.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the MAGI decision service.
type Config struct {
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	LLM      LLM      `yaml:"llm"`
	Breaker  Breaker  `yaml:"breaker"`
	Council  Council  `yaml:"council"`
	Personas Personas `yaml:"personas"`
	Cache    Cache    `yaml:"cache"`
	Postgres Postgres `yaml:"postgres"`
	NATS     NATS     `yaml:"nats"`
	OTel     OTel     `yaml:"otel"`
}

// Server holds HTTP server configuration. A zero RateLimitRPS disables
// request throttling.
type Server struct {
	Port           string  `yaml:"port"`
	CORSOrigin     string  `yaml:"cors_origin"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// LLM holds the OpenAI-compatible proxy configuration used for all agent
// model calls.
type LLM struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// Breaker holds circuit breaker configuration for LLM proxy calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Council holds the multi-layer timeout budget and execution limits for one
// decision run. The layers are ordered: each sage and the integrator must
// finish inside the total budget, and the event-queue guard bounds how long
// the multiplexer waits for any event at all.
type Council struct {
	SageTimeout    time.Duration `yaml:"sage_timeout"`
	SolomonTimeout time.Duration `yaml:"solomon_timeout"`
	TotalTimeout   time.Duration `yaml:"total_timeout"`
	QueueTimeout   time.Duration `yaml:"queue_timeout"`
	MaxParallel    int           `yaml:"max_parallel"`
}

// Persona overrides the personality portion of one agent's prompt. The
// output schema section of the prompt is fixed and never overridable.
type Persona struct {
	Role        string  `yaml:"role"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// Personas holds optional per-agent persona overrides keyed by agent id.
type Personas map[string]Persona

// Cache holds decision cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Postgres holds the optional decision-history store configuration.
// An empty DSN disables persistence.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds the optional decision-event publisher configuration.
// An empty URL disables publishing.
type NATS struct {
	URL string `yaml:"url"`
}

// OTel holds OpenTelemetry export configuration. An empty endpoint
// disables the exporters; instruments stay no-op.
type OTel struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local use.
// Timeout defaults follow the layered budget: sage 90s and solomon 60s
// inside a 180s total, with a 120s event-queue guard.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:           "8080",
			CORSOrigin:     "http://localhost:3000",
			RateLimitRPS:   2,
			RateLimitBurst: 5,
		},
		Logging: Logging{
			Level:   "info",
			Service: "magi",
		},
		LLM: LLM{
			URL: "http://localhost:4000",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Council: Council{
			SageTimeout:    90 * time.Second,
			SolomonTimeout: 60 * time.Second,
			TotalTimeout:   180 * time.Second,
			QueueTimeout:   120 * time.Second,
			MaxParallel:    3,
		},
		Cache: Cache{
			MaxSizeMB: 64,
			TTL:       5 * time.Minute,
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
	}
}
