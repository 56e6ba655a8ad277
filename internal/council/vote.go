package council

import (
	"fmt"

	"github.com/nerv-labs/magi/internal/domain/decision"
)

// Tally counts the verdicts in a completed batch.
func Tally(batch decision.Batch) decision.VotingResult {
	var v decision.VotingResult
	for _, r := range batch.Records {
		switch r.Verdict {
		case decision.VerdictApproved:
			v.Approved++
		case decision.VerdictRejected:
			v.Rejected++
		default:
			v.Abstained++
		}
	}
	return v
}

// Decide applies the majority rule. Approvals must strictly outnumber
// rejections; every tie, including one vote each way plus an abstention,
// rejects.
func Decide(v decision.VotingResult) decision.Verdict {
	if v.Approved > v.Rejected {
		return decision.VerdictApproved
	}
	return decision.VerdictRejected
}

// FallbackJudgment synthesizes a judgment from the batch alone, used when
// the integrator produced nothing usable. Scores are derived from each
// sage's own confidence plus a small bonus for reasoning detail; the
// overall confidence blends consensus strength with mean sage confidence.
func FallbackJudgment(batch decision.Batch, execMS int64) decision.Judgment {
	voting := Tally(batch)
	final := Decide(voting)

	scores := make([]decision.AgentScore, 0, len(batch.Records))
	var confSum float64
	for _, r := range batch.Records {
		quality := len(r.Reasoning) / 10
		if quality > 20 {
			quality = 20
		}
		scores = append(scores, decision.AgentScore{
			AgentID:   r.AgentID,
			Score:     decision.ClampScore(int(r.Confidence*100) + quality),
			Reasoning: fmt.Sprintf("confidence %.2f, reasoning detail %d/20", r.Confidence, quality),
		})
		confSum += r.Confidence
	}

	confidence := 0.0
	if n := voting.TotalVotes(); n > 0 {
		winning := voting.Approved
		if voting.Rejected > winning {
			winning = voting.Rejected
		}
		consensus := float64(winning) / float64(n)
		confidence = (consensus + confSum/float64(len(batch.Records))) / 2
	}

	return decision.Judgment{
		FinalDecision: final,
		VotingResult:  voting,
		Scores:        scores,
		Summary: fmt.Sprintf("Council vote: %d approved, %d rejected, %d abstained.",
			voting.Approved, voting.Rejected, voting.Abstained),
		FinalRecommendation: recommendation(final),
		Reasoning:           "Final decision derived from the recorded votes; the integrator result was unavailable.",
		Confidence:          decision.ClampConfidence(confidence),
		ExecutionTimeMS:     execMS,
	}
}

func recommendation(v decision.Verdict) string {
	if v == decision.VerdictApproved {
		return "Proceed with the proposal, addressing the risks the council raised."
	}
	return "Revisit the proposal; the council did not reach an approving majority."
}
