package council

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerv-labs/magi/internal/config"
	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/domain/event"
	"github.com/nerv-labs/magi/internal/persona"
	"github.com/nerv-labs/magi/internal/port/llm"
)

// ErrEmptyQuestion is returned when a request carries no question. It is
// the only failure the pipeline propagates; everything downstream is
// absorbed into the response.
var ErrEmptyQuestion = errors.New("question must not be empty")

// Pipeline drives one full council run: three sages in parallel, the vote
// tally, the integrator, and the assembled response.
type Pipeline struct {
	streamer llm.Streamer
	personas *persona.Table
	cfg      config.Council
	log      *slog.Logger
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(streamer llm.Streamer, personas *persona.Table, cfg config.Council, log *slog.Logger) *Pipeline {
	return &Pipeline{
		streamer: streamer,
		personas: personas,
		cfg:      cfg,
		log:      log,
	}
}

// Run executes a decision end to end, emitting stream events to sink as
// they happen. The returned response is always complete: worker failures
// surface as abstentions and flags, never as a nil response.
func (p *Pipeline) Run(ctx context.Context, req decision.Request, sink event.Sink) (*decision.Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	requestID := uuid.NewString()
	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	log := p.log.With("request_id", requestID, "trace_id", traceID)

	start := time.Now()
	if p.cfg.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TotalTimeout)
		defer cancel()
	}

	log.Info("council run started", "question_len", len(question))
	sink.Emit(event.New(event.TypeStart, "", event.StartPayload{
		RequestID: requestID,
		TraceID:   traceID,
		Question:  question,
	}))

	batch, hasErrors, truncated := p.consultSages(ctx, question, req.Context, sink, log)

	judge := &Judge{Streamer: p.streamer, Personas: p.personas, Timeout: p.cfg.SolomonTimeout}
	judgment, judgeFallback := judge.Run(ctx, question, batch, sink)
	if judgeFallback {
		log.Warn("integrator fell back", "final_decision", judgment.FinalDecision)
	}

	resp := assembleResponse(requestID, traceID, batch, judgment,
		hasErrors, truncated || judgeFallback, time.Since(start).Milliseconds())

	log.Info("council run finished",
		"final_decision", resp.FinalDecision,
		"approved", resp.VotingResult.Approved,
		"rejected", resp.VotingResult.Rejected,
		"has_errors", resp.HasErrors,
		"degraded_mode", resp.DegradedMode,
		"duration_ms", resp.ExecutionTimeMS)

	sink.Emit(event.New(event.TypeComplete, "", resp))
	return resp, nil
}

// consultSages fans the three sage workers through the multiplexer and
// collects their records. Returns the completed batch, whether any worker
// failed, and whether the guard timeout truncated the run.
func (p *Pipeline) consultSages(ctx context.Context, question, extra string, sink event.Sink, log *slog.Logger) (decision.Batch, bool, bool) {
	workers := make([]*Worker, 0, len(decision.Sages()))
	for _, id := range decision.Sages() {
		role := p.personas.Role(id)
		workers = append(workers, &Worker{
			ID:       id,
			Streamer: p.streamer,
			Req: llm.Request{
				Model:       role.Model,
				Prompt:      p.personas.SagePrompt(id, question, extra),
				Temperature: role.Temperature,
			},
			Timeout: p.cfg.SageTimeout,
		})
	}

	mux := &Mux{
		GuardTimeout: p.cfg.QueueTimeout,
		MaxParallel:  int64(p.cfg.MaxParallel),
	}

	var records []decision.Record
	hasErrors := false
	for ev := range mux.Run(ctx, workers) {
		switch ev.Kind {
		case kindStarted:
			role := p.personas.Role(ev.AgentID)
			sink.Emit(event.New(event.TypeAgentStart, ev.AgentID,
				event.AgentStartPayload{Name: role.Name}))
		case kindDelta:
			sink.Emit(event.New(event.TypeAgentThinking, ev.AgentID,
				event.TextPayload{Text: ev.Delta}))
		case kindDone:
			o := *ev.Outcome
			rec := SageRecord(o)
			records = append(records, rec)

			if o.State != StateCompleted {
				hasErrors = true
				log.Warn("sage did not complete",
					"agent", o.AgentID, "state", o.State, "error", o.Err)
				switch {
				case o.State == StateTimedOut:
					sink.Emit(event.New(event.TypeAgentTimeout, o.AgentID,
						event.TimeoutPayload{PartialText: o.Text, ElapsedMS: o.ElapsedMS}))
				case o.State == StateErrored && o.Err != nil:
					sink.Emit(event.New(event.TypeError, o.AgentID,
						event.ErrorPayload{Error: o.Err.Error()}))
				}
			}

			sink.Emit(event.New(event.TypeAgentChunk, o.AgentID,
				event.TextPayload{Text: o.Text}))
			sink.Emit(event.New(event.TypeAgentComplete, o.AgentID, rec))
		}
	}

	return decision.Complete(records), hasErrors, mux.GuardFired()
}

func assembleResponse(requestID, traceID string, batch decision.Batch, j decision.Judgment, hasErrors, degraded bool, totalMS int64) *decision.Response {
	agents := make([]decision.AgentResult, 0, len(batch.Records))
	for _, r := range batch.Records {
		agents = append(agents, decision.AgentResult{
			AgentID:         r.AgentID,
			Decision:        r.Verdict,
			Reasoning:       r.Reasoning,
			Confidence:      r.Confidence,
			ExecutionTimeMS: r.ExecutionTimeMS,
		})
	}

	return &decision.Response{
		RequestID:           requestID,
		TraceID:             traceID,
		FinalDecision:       j.FinalDecision,
		VotingResult:        j.VotingResult,
		AgentResponses:      agents,
		Scores:              j.Scores,
		Summary:             j.Summary,
		FinalRecommendation: j.FinalRecommendation,
		Reasoning:           j.Reasoning,
		Confidence:          j.Confidence,
		ExecutionTimeMS:     totalMS,
		HasErrors:           hasErrors,
		DegradedMode:        degraded,
		CreatedAt:           time.Now().UTC(),
	}
}
