package council

import (
	"context"
	"time"

	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/domain/event"
	"github.com/nerv-labs/magi/internal/extract"
	"github.com/nerv-labs/magi/internal/persona"
	"github.com/nerv-labs/magi/internal/port/llm"
)

// Judge runs the integrator turn over a completed sage batch.
type Judge struct {
	Streamer llm.Streamer
	Personas *persona.Table
	Timeout  time.Duration
}

// Run streams the integrator and returns its judgment. The second return
// reports whether the result came from a fallback path: a timeout yields a
// fixed rejection, anything else unusable yields the vote aggregator.
// Like the sage workers, the judge never fails its caller.
func (j *Judge) Run(ctx context.Context, question string, batch decision.Batch, sink event.Sink) (decision.Judgment, bool) {
	role := j.Personas.Role(decision.AgentSolomon)

	w := &Worker{
		ID:       decision.AgentSolomon,
		Streamer: j.Streamer,
		Req: llm.Request{
			Model:       role.Model,
			Prompt:      j.Personas.JudgePrompt(question, batch),
			Temperature: role.Temperature,
		},
		Timeout: j.Timeout,
	}

	var outcome Outcome
	w.Run(ctx, func(ev muxEvent) {
		switch ev.Kind {
		case kindStarted:
			sink.Emit(event.New(event.TypeJudgeStart, decision.AgentSolomon,
				event.AgentStartPayload{Name: role.Name}))
		case kindDelta:
			sink.Emit(event.New(event.TypeJudgeThinking, decision.AgentSolomon,
				event.TextPayload{Text: ev.Delta}))
		case kindDone:
			outcome = *ev.Outcome
		}
	})

	sink.Emit(event.New(event.TypeJudgeChunk, decision.AgentSolomon,
		event.TextPayload{Text: outcome.Text}))

	judgment, degraded := j.assemble(outcome, batch)
	sink.Emit(event.New(event.TypeJudgeComplete, decision.AgentSolomon, judgment))
	return judgment, degraded
}

func (j *Judge) assemble(o Outcome, batch decision.Batch) (decision.Judgment, bool) {
	if o.State == StateTimedOut {
		return timeoutJudgment(batch, o.ElapsedMS), true
	}

	if o.State == StateCompleted {
		if f := extract.Extract(o.Text, "final_decision"); f != nil {
			return parsedJudgment(f, batch, o.ElapsedMS), false
		}
	}

	// Stream error or unparseable output: the batch still decides.
	return FallbackJudgment(batch, o.ElapsedMS), true
}

// parsedJudgment adopts the integrator's own output, clamping everything
// it controls. The tally always comes from the batch, never from the model.
func parsedJudgment(f *extract.Fields, batch decision.Batch, execMS int64) decision.Judgment {
	scores := make([]decision.AgentScore, 0, len(f.Scores))
	for _, s := range f.Scores {
		scores = append(scores, decision.AgentScore{
			AgentID:   decision.AgentID(s.AgentID),
			Score:     decision.ClampScore(s.Score),
			Reasoning: s.Reasoning,
		})
	}

	return decision.Judgment{
		FinalDecision:       decision.ParseVerdict(f.Verdict()),
		VotingResult:        Tally(batch),
		Scores:              scores,
		Summary:             f.Summary,
		FinalRecommendation: f.FinalRecommendation,
		Reasoning:           f.Reasoning,
		Confidence:          decision.ClampConfidence(f.Confidence),
		ExecutionTimeMS:     execMS,
	}
}

// timeoutJudgment is the fixed response to an integrator deadline: reject
// at half confidence with a neutral score per sage.
func timeoutJudgment(batch decision.Batch, execMS int64) decision.Judgment {
	scores := make([]decision.AgentScore, 0, len(batch.Records))
	for _, r := range batch.Records {
		scores = append(scores, decision.AgentScore{
			AgentID:   r.AgentID,
			Score:     50,
			Reasoning: "integrator timed out before scoring this analysis",
		})
	}

	return decision.Judgment{
		FinalDecision:       decision.VerdictRejected,
		VotingResult:        Tally(batch),
		Scores:              scores,
		Summary:             "The integrator did not finish within its deadline.",
		FinalRecommendation: "Retry the decision; the council's verdicts were recorded but not reconciled.",
		Reasoning:           "Integrator timeout forces a rejection at reduced confidence.",
		Confidence:          0.5,
		ExecutionTimeMS:     execMS,
	}
}
