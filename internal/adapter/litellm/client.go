// Package litellm provides a streaming chat-completions client for a
// LiteLLM proxy or any OpenAI-compatible endpoint.
package litellm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerv-labs/magi/internal/port/llm"
	"github.com/nerv-labs/magi/internal/resilience"
)

// Client talks to the proxy's OpenAI-compatible API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breakers   *resilience.Registry
}

// NewClient creates a new streaming client. The http.Client carries no
// overall timeout since streams are bounded by the caller's context.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// SetBreakers attaches a per-model circuit breaker registry to outgoing calls.
func (c *Client) SetBreakers(r *resilience.Registry) {
	c.breakers = r
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// StreamCompletion opens a streaming completion. The returned stream yields
// raw provider chunks; callers normalize them with llm.ExtractText. The
// dial and status check run under the model's circuit breaker so a dead
// upstream stops being hammered.
func (c *Client) StreamCompletion(ctx context.Context, req llm.Request) (llm.Stream, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	var resp *http.Response
	dial := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		r, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}

		if r.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			_ = r.Body.Close()
			return fmt.Errorf("completion API error %d: %s", r.StatusCode, string(data))
		}

		resp = r
		return nil
	}

	if c.breakers != nil {
		err = c.breakers.For(req.Model).Execute(dial)
	} else {
		err = dial()
	}
	if err != nil {
		return nil, err
	}

	return &sseStream{
		body:    resp.Body,
		scanner: newSSEScanner(resp.Body),
	}, nil
}

// Health checks whether the proxy is reachable.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("proxy unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// sseStream reads server-sent events from a completion response body.
// Recv returns io.EOF after the terminal [DONE] event or when the body ends.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSSEScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	// Single chunks can carry whole analysis paragraphs.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return sc
}

func (s *sseStream) Recv() (json.RawMessage, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Ignore event:/id: framing lines.
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil, io.EOF
		}
		return json.RawMessage(data), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
