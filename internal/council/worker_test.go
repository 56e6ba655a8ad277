package council

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/port/llm"
)

// fakeStreamer replays scripted text pieces as OpenAI-style delta chunks,
// optionally delaying between chunks or failing partway through.
type fakeStreamer struct {
	pieces     []string
	delay      time.Duration
	failAfter  int // fail after this many chunks; -1 never
	stallAfter int // block until cancellation after this many chunks; -1 never
	dialErr    error

	active atomic.Int32 // concurrent open streams, for parallelism checks
	peak   atomic.Int32
}

func newFakeStreamer(pieces ...string) *fakeStreamer {
	return &fakeStreamer{pieces: pieces, failAfter: -1, stallAfter: -1}
}

func (f *fakeStreamer) StreamCompletion(ctx context.Context, _ llm.Request) (llm.Stream, error) {
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return &fakeStream{parent: f, ctx: ctx}, nil
}

type fakeStream struct {
	parent *fakeStreamer
	ctx    context.Context
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (json.RawMessage, error) {
	f := s.parent
	if f.failAfter >= 0 && s.pos >= f.failAfter {
		return nil, errors.New("upstream reset")
	}
	if f.stallAfter >= 0 && s.pos >= f.stallAfter {
		<-s.ctx.Done()
		return nil, s.ctx.Err()
	}
	if s.pos >= len(f.pieces) {
		return nil, io.EOF
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	} else if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	piece, _ := json.Marshal(f.pieces[s.pos])
	s.pos++
	return json.RawMessage(fmt.Sprintf(`{"choices":[{"delta":{"content":%s}}]}`, piece)), nil
}

func (s *fakeStream) Close() error {
	if !s.closed {
		s.closed = true
		s.parent.active.Add(-1)
	}
	return nil
}

func collect(w *Worker, ctx context.Context) []muxEvent {
	var events []muxEvent
	w.Run(ctx, func(ev muxEvent) { events = append(events, ev) })
	return events
}

func TestWorkerCompletedRun(t *testing.T) {
	w := &Worker{
		ID:       decision.AgentCaspar,
		Streamer: newFakeStreamer(`{"decision": "APPROVED", `, `"reasoning": "fine", "confidence": 0.8}`),
		Timeout:  time.Second,
	}
	events := collect(w, context.Background())

	if len(events) != 4 {
		t.Fatalf("expected started + 2 deltas + done, got %d events", len(events))
	}
	if events[0].Kind != kindStarted {
		t.Fatal("first event not started")
	}
	last := events[len(events)-1]
	if last.Kind != kindDone || last.Outcome.State != StateCompleted {
		t.Fatalf("terminal event = %+v", last)
	}

	rec := SageRecord(*last.Outcome)
	if rec.Verdict != decision.VerdictApproved || rec.Confidence != 0.8 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Reasoning != "fine" {
		t.Fatalf("reasoning = %q", rec.Reasoning)
	}
}

func TestWorkerKeywordFallback(t *testing.T) {
	w := &Worker{
		ID:       decision.AgentMelchior,
		Streamer: newFakeStreamer("After consideration the proposal is rejected."),
		Timeout:  time.Second,
	}
	events := collect(w, context.Background())

	rec := SageRecord(*events[len(events)-1].Outcome)
	if rec.Verdict != decision.VerdictRejected {
		t.Fatalf("verdict = %s, want REJECTED", rec.Verdict)
	}
	if rec.Confidence != 0.6 {
		t.Fatalf("confidence = %v, want 0.6", rec.Confidence)
	}
}

func TestWorkerTimeoutKeepsPartialText(t *testing.T) {
	f := newFakeStreamer("partial ", "never arrives")
	f.delay = 30 * time.Millisecond

	w := &Worker{ID: decision.AgentBalthasar, Streamer: f, Timeout: 45 * time.Millisecond}
	events := collect(w, context.Background())

	last := events[len(events)-1]
	if last.Outcome.State != StateTimedOut {
		t.Fatalf("state = %s, want TIMED_OUT", last.Outcome.State)
	}
	if last.Outcome.Text != "partial " {
		t.Fatalf("partial text = %q", last.Outcome.Text)
	}

	rec := SageRecord(*last.Outcome)
	if rec.Verdict != decision.VerdictAbstained {
		t.Fatalf("verdict = %s, want ABSTAINED", rec.Verdict)
	}
	if rec.Content != "partial " {
		t.Fatalf("content = %q", rec.Content)
	}
	if rec.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", rec.Confidence)
	}
}

func TestWorkerStreamError(t *testing.T) {
	f := newFakeStreamer("some text")
	f.failAfter = 1

	w := &Worker{ID: decision.AgentCaspar, Streamer: f, Timeout: time.Second}
	events := collect(w, context.Background())

	last := events[len(events)-1]
	if last.Outcome.State != StateErrored {
		t.Fatalf("state = %s, want ERRORED", last.Outcome.State)
	}

	rec := SageRecord(*last.Outcome)
	if rec.Verdict != decision.VerdictAbstained || rec.Confidence != 0 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestWorkerDialFailure(t *testing.T) {
	f := newFakeStreamer()
	f.dialErr = errors.New("connection refused")

	w := &Worker{ID: decision.AgentCaspar, Streamer: f, Timeout: time.Second}
	events := collect(w, context.Background())

	// Started is still emitted; the terminal event carries the failure.
	if events[0].Kind != kindStarted {
		t.Fatal("expected started event before failure")
	}
	last := events[len(events)-1]
	if last.Outcome.State != StateErrored {
		t.Fatalf("state = %s, want ERRORED", last.Outcome.State)
	}
}

func TestKeywordVerdict(t *testing.T) {
	tests := []struct {
		text string
		want decision.Verdict
	}{
		{"the answer is APPROVED", decision.VerdictApproved},
		{"the answer is rejected", decision.VerdictRejected},
		{"approved at first but finally REJECTED", decision.VerdictRejected},
		{"I must abstain from this", decision.VerdictAbstained},
		{"no verdict words at all", decision.VerdictRejected},
		{"", decision.VerdictRejected},
	}
	for _, tt := range tests {
		if got := keywordVerdict(tt.text); got != tt.want {
			t.Errorf("keywordVerdict(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}
