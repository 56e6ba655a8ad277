// Package mock provides an offline llm.Streamer that emulates the council's
// language models with keyword heuristics. It backs the one-shot demo mode
// and the pipeline tests, which must run without a proxy.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nerv-labs/magi/internal/port/llm"
)

// Streamer fabricates streaming completions. Responses are deterministic
// for a given prompt.
type Streamer struct {
	// Delay is inserted between chunks to make interleaving visible.
	Delay time.Duration
}

// New creates a mock streamer with no inter-chunk delay.
func New() *Streamer {
	return &Streamer{}
}

// StreamCompletion produces a canned completion for the persona detected in
// the prompt, split into OpenAI-style delta chunks.
func (s *Streamer) StreamCompletion(ctx context.Context, req llm.Request) (llm.Stream, error) {
	var payload string
	if strings.Contains(req.Prompt, "SOLOMON") {
		payload = judgePayload(req.Prompt)
	} else {
		payload = sagePayload(req.Prompt)
	}

	return &stream{
		ctx:    ctx,
		chunks: chunkify(payload),
		delay:  s.Delay,
	}, nil
}

// positive and negative are the halves of the keyword scale used to steer
// a verdict from free-text input.
var positive = []string{
	"improve", "benefit", "opportunity", "growth", "proven", "safe",
	"efficient", "revenue", "tested", "reliable", "simple",
}

var negative = []string{
	"risk", "danger", "untested", "cost", "irreversible", "failure",
	"unknown", "complex", "breach", "deprecated", "loss",
}

func score(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, w := range positive {
		n += strings.Count(lower, w)
	}
	for _, w := range negative {
		n -= strings.Count(lower, w)
	}
	return n
}

// sagePayload builds a sage verdict. Each persona applies its own bias to
// the keyword score so the three do not trivially agree.
func sagePayload(prompt string) string {
	var (
		agent      string
		bias       int
		confidence float64
	)
	switch {
	case strings.Contains(prompt, "CASPAR"):
		agent, bias, confidence = "caspar", -1, 0.72
	case strings.Contains(prompt, "BALTHASAR"):
		agent, bias, confidence = "balthasar", 1, 0.81
	default:
		agent, bias, confidence = "melchior", 0, 0.77
	}

	decision := "REJECTED"
	if score(prompt)+bias > 0 {
		decision = "APPROVED"
	}

	out := map[string]any{
		"decision":   decision,
		"reasoning":  fmt.Sprintf("%s keyword assessment favors %s", agent, decision),
		"content":    fmt.Sprintf("As %s I weighed the stated factors and concluded %s.", agent, decision),
		"confidence": confidence,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// judgePayload counts the sage verdicts serialized into the judge prompt
// and sides with the majority, ties rejecting.
func judgePayload(prompt string) string {
	approved := strings.Count(prompt, "verdict: APPROVED")
	rejected := strings.Count(prompt, "verdict: REJECTED")

	final := "REJECTED"
	if approved > rejected {
		final = "APPROVED"
	}

	out := map[string]any{
		"final_decision":       final,
		"summary":              fmt.Sprintf("The council voted %d to %d.", approved, rejected),
		"final_recommendation": fmt.Sprintf("Proceed per the %s verdict.", final),
		"reasoning":            "Majority position adopted after reviewing each advisor.",
		"confidence":           0.8,
		"scores": []map[string]any{
			{"agent_id": "caspar", "score": 78, "reasoning": "thorough risk coverage"},
			{"agent_id": "balthasar", "score": 74, "reasoning": "clear upside framing"},
			{"agent_id": "melchior", "score": 82, "reasoning": "well grounded in evidence"},
		},
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// chunkify splits text into OpenAI-style SSE delta chunks.
func chunkify(text string) []json.RawMessage {
	const chunkSize = 24
	var chunks []json.RawMessage
	for len(text) > 0 {
		n := chunkSize
		if n > len(text) {
			n = len(text)
		}
		piece, _ := json.Marshal(text[:n])
		chunk := fmt.Sprintf(`{"choices":[{"delta":{"content":%s}}]}`, piece)
		chunks = append(chunks, json.RawMessage(chunk))
		text = text[n:]
	}
	return chunks
}

type stream struct {
	ctx    context.Context
	chunks []json.RawMessage
	pos    int
	delay  time.Duration
}

func (s *stream) Recv() (json.RawMessage, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	} else if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *stream) Close() error { return nil }

// Failing is a Streamer whose streams error immediately. Used to exercise
// degraded paths in tests.
type Failing struct {
	Err error
}

// StreamCompletion returns the configured error without opening a stream.
func (f *Failing) StreamCompletion(context.Context, llm.Request) (llm.Stream, error) {
	return nil, f.Err
}

// Hanging is a Streamer whose streams never produce a chunk until the
// context is canceled. Used to exercise timeout paths in tests.
type Hanging struct{}

// StreamCompletion returns a stream blocked on the context.
func (h *Hanging) StreamCompletion(ctx context.Context, _ llm.Request) (llm.Stream, error) {
	return &hangingStream{ctx: ctx}, nil
}

type hangingStream struct {
	ctx context.Context
}

func (s *hangingStream) Recv() (json.RawMessage, error) {
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func (s *hangingStream) Close() error { return nil }
