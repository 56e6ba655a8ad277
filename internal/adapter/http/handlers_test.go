package http_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	magihttp "github.com/nerv-labs/magi/internal/adapter/http"
	"github.com/nerv-labs/magi/internal/adapter/mock"
	"github.com/nerv-labs/magi/internal/config"
	"github.com/nerv-labs/magi/internal/council"
	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/persona"
	"github.com/nerv-labs/magi/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Council{
		SageTimeout:    5 * time.Second,
		SolomonTimeout: 5 * time.Second,
		TotalTimeout:   10 * time.Second,
		QueueTimeout:   8 * time.Second,
		MaxParallel:    3,
	}

	pipe := council.NewPipeline(mock.New(), persona.NewTable(nil), cfg, log)
	svc := service.NewCouncilService(pipe, log)

	handlers := magihttp.NewHandlers(svc, nil, nil, log)
	srv := httptest.NewServer(magihttp.NewRouter(handlers, "http://localhost:3000", nil))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *nethttp.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := nethttp.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestCreateDecision(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/decisions", decision.Request{
		Question: "Should we adopt the proven, tested and safe migration plan?",
	})
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out decision.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.RequestID == "" {
		t.Fatal("expected a request id")
	}
	if out.FinalDecision != decision.VerdictApproved && out.FinalDecision != decision.VerdictRejected {
		t.Fatalf("final decision = %q", out.FinalDecision)
	}
	if len(out.AgentResponses) != 3 {
		t.Fatalf("agent responses = %d, want 3", len(out.AgentResponses))
	}
}

func TestCreateDecisionEmptyQuestion(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/decisions", decision.Request{Question: "   "})
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateDecisionMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	resp, err := nethttp.Post(srv.URL+"/v1/decisions", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStreamDecision(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/decisions/stream", decision.Request{
		Question: "Should we ship?",
	})
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	seen := map[string]bool{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			seen[name] = true
		}
	}

	for _, want := range []string{"start", "agent_start", "agent_complete", "judge_complete", "complete"} {
		if !seen[want] {
			t.Errorf("missing %q event, saw %v", want, seen)
		}
	}
}

func TestListDecisionsWithoutStore(t *testing.T) {
	srv := newTestServer(t)

	resp, err := nethttp.Get(srv.URL + "/v1/decisions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := nethttp.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
		Stats  struct {
			TotalRuns int64 `json:"total_runs"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status = %q", body.Status)
	}
}

func TestWebSocketNotConfigured(t *testing.T) {
	srv := newTestServer(t)

	resp, err := nethttp.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRequestIDMirrored(t *testing.T) {
	srv := newTestServer(t)

	req, err := nethttp.NewRequest(nethttp.MethodGet, srv.URL+"/health", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Request-ID", "fixed-id")

	resp, err := nethttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "fixed-id" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}
