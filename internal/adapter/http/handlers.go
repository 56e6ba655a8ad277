package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerv-labs/magi/internal/adapter/litellm"
	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/domain/event"
	"github.com/nerv-labs/magi/internal/port/history"
	"github.com/nerv-labs/magi/internal/resilience"
	"github.com/nerv-labs/magi/internal/service"
)

const maxBodyBytes = 1 << 20

// Handlers holds the API's dependencies.
type Handlers struct {
	svc      *service.CouncilService
	breakers *resilience.Registry
	llm      *litellm.Client
	wsHandle http.HandlerFunc
	log      *slog.Logger
}

// NewHandlers creates the handler set. breakers and wsHandle may be nil.
func NewHandlers(svc *service.CouncilService, breakers *resilience.Registry, wsHandle http.HandlerFunc, log *slog.Logger) *Handlers {
	return &Handlers{svc: svc, breakers: breakers, wsHandle: wsHandle, log: log}
}

// SetLLMClient enables the upstream model health endpoint.
func (h *Handlers) SetLLMClient(c *litellm.Client) {
	h.llm = c
}

// CreateDecision runs a full council decision and returns the combined
// response once it completes.
func (h *Handlers) CreateDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decision.Request](w, r, maxBodyBytes)
	if !ok {
		return
	}

	resp, err := h.svc.Decide(r.Context(), req, event.Discard)
	if err != nil {
		if service.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// StreamDecision runs a decision while streaming its event feed as
// server-sent events. Each event's type doubles as the SSE event name.
func (h *Handlers) StreamDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decision.Request](w, r, maxBodyBytes)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := event.SinkFunc(func(ev event.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if _, err := w.Write([]byte("event: " + string(ev.Type) + "\ndata: " + string(data) + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
	})

	if _, err := h.svc.Decide(r.Context(), req, sink); err != nil {
		// Headers are gone; the failure travels on the stream itself.
		sink.Emit(event.New(event.TypeError, "", event.ErrorPayload{Error: err.Error()}))
	}
}

// ListDecisions returns the most recent entries of the audit log.
func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	store := h.svc.History()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "decision history is not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := store.ListDecisions(r.Context(), limit, offset)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": entries})
}

// GetDecision returns the full stored response for one request id.
func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	store := h.svc.History()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "decision history is not configured")
		return
	}

	resp, err := store.GetDecision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "decision not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports liveness together with execution statistics and any open
// upstream circuits.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "ok",
		"stats":  h.svc.Stats(),
	}
	if h.breakers != nil {
		if open := h.breakers.OpenCircuits(); len(open) > 0 {
			body["status"] = "degraded"
			body["open_circuits"] = open
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// LLMHealth returns the proxy's per-model health breakdown.
func (h *Handlers) LLMHealth(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM proxy is configured")
		return
	}

	report, err := h.llm.HealthDetailed(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleWS upgrades to the live event feed, when a hub is configured.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.wsHandle == nil {
		writeError(w, http.StatusNotFound, "websocket feed is not configured")
		return
	}
	h.wsHandle(w, r)
}
