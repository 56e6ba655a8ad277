package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nerv-labs/magi/internal/adapter/otel"
)

// NewRouter builds the full route tree with the standard middleware chain.
// limiter may be nil to disable throttling of decision submissions.
func NewRouter(h *Handlers, allowedOrigin string, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(Logger)
	r.Use(CORS(allowedOrigin))
	r.Use(otel.HTTPMiddleware("magi-api"))

	r.Get("/health", h.Health)
	r.Get("/health/llm", h.LLMHealth)
	r.Get("/ws", h.HandleWS)

	r.Route("/v1", func(r chi.Router) {
		submit := r
		if limiter != nil {
			submit = r.With(limiter.Handler)
		}
		submit.Post("/decisions", h.CreateDecision)
		submit.Post("/decisions/stream", h.StreamDecision)

		r.Get("/decisions", h.ListDecisions)
		r.Get("/decisions/{id}", h.GetDecision)
	})

	return r
}
