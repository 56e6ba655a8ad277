package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	magihttp "github.com/nerv-labs/magi/internal/adapter/http"
	"github.com/nerv-labs/magi/internal/adapter/litellm"
	"github.com/nerv-labs/magi/internal/adapter/mock"
	maginats "github.com/nerv-labs/magi/internal/adapter/nats"
	"github.com/nerv-labs/magi/internal/adapter/natskv"
	"github.com/nerv-labs/magi/internal/adapter/otel"
	"github.com/nerv-labs/magi/internal/adapter/postgres"
	"github.com/nerv-labs/magi/internal/adapter/ristretto"
	"github.com/nerv-labs/magi/internal/adapter/tiered"
	"github.com/nerv-labs/magi/internal/adapter/ws"
	"github.com/nerv-labs/magi/internal/config"
	"github.com/nerv-labs/magi/internal/council"
	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/domain/event"
	"github.com/nerv-labs/magi/internal/logger"
	"github.com/nerv-labs/magi/internal/persona"
	"github.com/nerv-labs/magi/internal/port/cache"
	"github.com/nerv-labs/magi/internal/port/llm"
	"github.com/nerv-labs/magi/internal/resilience"
	"github.com/nerv-labs/magi/internal/service"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultConfigFile, "path to YAML config file")
		question   = flag.String("question", "", "run one decision for the given question and exit")
		contextTxt = flag.String("context", "", "optional context for -question mode")
		useMock    = flag.Bool("mock", false, "use built-in mock personas instead of the LLM proxy")
	)
	flag.Parse()

	if err := run(*configPath, *question, *contextTxt, *useMock); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath, question, contextTxt string, useMock bool) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	if question != "" {
		// One-shot mode never talks to external services.
		return decideOnce(cfg, log, question, contextTxt, useMock)
	}

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"llm_url", cfg.LLM.URL,
		"mock", useMock,
	)

	ctx := context.Background()

	// --- Observability ---
	shutdownOTel, err := otel.Init(ctx, cfg.Logging.Service, cfg.OTel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---
	breakers := resilience.NewRegistry(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	var streamer llm.Streamer
	var llmClient *litellm.Client
	if useMock {
		streamer = mock.New()
		slog.Info("using mock personas")
	} else {
		llmClient = litellm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey)
		llmClient.SetBreakers(breakers)
		streamer = llmClient
	}
	streamer = otel.TraceStreamer(streamer)

	svc := service.NewCouncilService(
		council.NewPipeline(streamer, persona.NewTable(cfg.Personas), cfg.Council, log),
		log,
	)

	if cfg.Postgres.DSN != "" {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		svc.SetHistory(postgres.NewStore(pool))
		slog.Info("decision history enabled")
	}

	var pub *maginats.Publisher
	if cfg.NATS.URL != "" {
		pub, err = maginats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer pub.Close()
		svc.SetPublisher(pub)
		slog.Info("decision publishing enabled")
	}

	if cfg.Cache.MaxSizeMB > 0 {
		local, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer local.Close()

		var decisionCache cache.Cache = local
		if pub != nil {
			// A shared remote tier keeps replicas from re-running
			// decisions another instance already made.
			kv, err := pub.KeyValue(ctx, "magi-decisions", cfg.Cache.TTL)
			if err != nil {
				return fmt.Errorf("nats kv: %w", err)
			}
			decisionCache = tiered.New(local, natskv.New(kv), cfg.Cache.TTL)
		}
		svc.SetCache(decisionCache, cfg.Cache.TTL)
	}

	hub := ws.NewHub()
	svc.SetHub(hub)
	svc.SetMetrics(metrics)

	// --- HTTP ---
	handlers := magihttp.NewHandlers(svc, breakers, hub.HandleWS, log)
	if llmClient != nil {
		handlers.SetLLMClient(llmClient)
	}

	var limiter *magihttp.RateLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = magihttp.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		defer limiter.StartCleanup(time.Minute, 10*time.Minute)()
	}

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           magihttp.NewRouter(handlers, cfg.Server.CORSOrigin, limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: SSE and WebSocket responses outlive any
		// fixed bound; the council's own budget limits decision runs.
		IdleTimeout: 120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// decideOnce runs a single decision and prints the response as JSON.
// Streamed agent text goes to stderr so stdout stays machine-readable.
func decideOnce(cfg *config.Config, log *slog.Logger, question, contextTxt string, useMock bool) error {
	var streamer llm.Streamer
	if useMock || cfg.LLM.URL == "" {
		streamer = mock.New()
	} else {
		streamer = litellm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey)
	}

	pipe := council.NewPipeline(streamer, persona.NewTable(cfg.Personas), cfg.Council, log)

	sink := event.SinkFunc(func(ev event.Event) {
		if ev.Type != event.TypeAgentThinking && ev.Type != event.TypeJudgeThinking {
			return
		}
		var p event.TextPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			fmt.Fprint(os.Stderr, p.Text)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Council.TotalTimeout)
	defer cancel()

	resp, err := pipe.Run(ctx, decision.Request{Question: question, Context: contextTxt}, sink)
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}
	fmt.Fprintln(os.Stderr)

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
