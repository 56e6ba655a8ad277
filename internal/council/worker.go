// Package council implements the decision pipeline: three sage workers
// streaming in parallel, a multiplexer fanning their output into one feed,
// a vote aggregator and the integrator turn that reconciles the batch.
package council

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/extract"
	"github.com/nerv-labs/magi/internal/port/llm"
)

// State is a worker's lifecycle position.
type State string

const (
	StatePending   State = "PENDING"
	StateStreaming State = "STREAMING"
	StateCompleted State = "COMPLETED"
	StateTimedOut  State = "TIMED_OUT"
	StateErrored   State = "ERRORED"
)

// Worker runs one agent's streaming turn against the model.
type Worker struct {
	ID       decision.AgentID
	Streamer llm.Streamer
	Req      llm.Request
	Timeout  time.Duration
}

// Outcome is a worker's terminal result. Failures are carried as state,
// never returned as errors; a worker cannot fail its caller.
type Outcome struct {
	AgentID   decision.AgentID
	State     State
	Text      string
	Err       error
	ElapsedMS int64
}

type muxKind int

const (
	kindStarted muxKind = iota
	kindDelta
	kindDone
)

// muxEvent is one tagged emission on the fan-in channel.
type muxEvent struct {
	AgentID decision.AgentID
	Kind    muxKind
	Delta   string
	Outcome *Outcome
}

// Run streams the worker's turn, emitting a started event, one delta per
// received text increment, and exactly one terminal done event. The
// per-worker timeout and any guard cancellation both land as TIMED_OUT
// with whatever text accumulated so far.
func (w *Worker) Run(ctx context.Context, emit func(muxEvent)) {
	start := time.Now()
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	emit(muxEvent{AgentID: w.ID, Kind: kindStarted})

	var buf strings.Builder
	state := StateStreaming
	var cause error

	stream, err := w.Streamer.StreamCompletion(ctx, w.Req)
	if err != nil {
		state, cause = classify(ctx, err), err
	} else {
		defer func() { _ = stream.Close() }()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				state = StateCompleted
				break
			}
			if err != nil {
				state, cause = classify(ctx, err), err
				break
			}
			if text, ok := llm.ExtractText(chunk); ok && text != "" {
				buf.WriteString(text)
				emit(muxEvent{AgentID: w.ID, Kind: kindDelta, Delta: text})
			}
		}
	}

	emit(muxEvent{AgentID: w.ID, Kind: kindDone, Outcome: &Outcome{
		AgentID:   w.ID,
		State:     state,
		Text:      buf.String(),
		Err:       cause,
		ElapsedMS: time.Since(start).Milliseconds(),
	}})
}

// classify maps a stream failure to its terminal state. Deadline and
// cancellation both count as timeouts; everything else is an upstream error.
func classify(ctx context.Context, err error) State {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StateTimedOut
	}
	return StateErrored
}

// SageRecord converts a sage worker's outcome into its decision record.
// A completed turn runs the extractor and falls back to keyword
// classification; a timeout abstains carrying the partial text; an error
// abstains at zero confidence. No path yields an approval by default.
func SageRecord(o Outcome) decision.Record {
	switch o.State {
	case StateCompleted:
		if f := extract.Extract(o.Text, "decision"); f != nil {
			content := f.Content
			if content == "" {
				content = o.Text
			}
			return decision.NewRecord(o.AgentID, decision.ParseVerdict(f.Verdict()),
				f.Reasoning, content, f.Confidence, o.ElapsedMS)
		}
		return decision.NewRecord(o.AgentID, keywordVerdict(o.Text),
			"verdict recovered by keyword classification", o.Text, 0.6, o.ElapsedMS)
	case StateTimedOut:
		return decision.NewRecord(o.AgentID, decision.VerdictAbstained,
			"agent timed out before completing its analysis", o.Text, 0.0, o.ElapsedMS)
	default:
		reason := "agent failed before completing its analysis"
		if o.Err != nil {
			reason = "agent failed: " + o.Err.Error()
		}
		return decision.NewRecord(o.AgentID, decision.VerdictAbstained,
			reason, o.Text, 0.0, o.ElapsedMS)
	}
}

// keywordVerdict classifies free text that carried no recoverable JSON.
// Rejection wins when both words appear, and unrecognized text rejects,
// so malformed output can never approve.
func keywordVerdict(text string) decision.Verdict {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "rejected"):
		return decision.VerdictRejected
	case strings.Contains(lower, "approved"):
		return decision.VerdictApproved
	case strings.Contains(lower, "abstain"):
		return decision.VerdictAbstained
	default:
		return decision.VerdictRejected
	}
}
