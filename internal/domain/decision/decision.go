// Package decision defines the immutable decision records produced by the
// council's agents and the aggregate types derived from them.
package decision

import (
	"time"
	"unicode/utf8"
)

// AgentID identifies one of the fixed council agents.
type AgentID string

const (
	AgentCaspar    AgentID = "caspar"    // conservative, risk-focused sage
	AgentBalthasar AgentID = "balthasar" // innovative, opportunity-focused sage
	AgentMelchior  AgentID = "melchior"  // balanced, evidence-focused sage
	AgentSolomon   AgentID = "solomon"   // integrator; reserved, never a sage
)

// Sages returns the first-stage agent ids in their fixed council order.
func Sages() []AgentID {
	return []AgentID{AgentCaspar, AgentBalthasar, AgentMelchior}
}

// Verdict is the outcome of one agent's analysis.
type Verdict string

const (
	VerdictApproved  Verdict = "APPROVED"
	VerdictRejected  Verdict = "REJECTED"
	VerdictAbstained Verdict = "ABSTAINED" // parse failure or no response
)

// ParseVerdict maps free-form model output to a Verdict, defaulting to
// REJECTED for anything unrecognized. Unparseable input must never turn
// into an approval.
func ParseVerdict(s string) Verdict {
	switch Verdict(s) {
	case VerdictApproved:
		return VerdictApproved
	case VerdictAbstained:
		return VerdictAbstained
	default:
		return VerdictRejected
	}
}

// maxTextLen bounds reasoning and content stored on a record.
const maxTextLen = 10000

// Record is the structured output of one agent's turn. Records are built
// once via NewRecord and never mutated afterwards; downstream consumers
// only read them.
type Record struct {
	AgentID         AgentID   `json:"agent_id"`
	Verdict         Verdict   `json:"decision"`
	Reasoning       string    `json:"reasoning"`
	Content         string    `json:"content,omitempty"`
	Confidence      float64   `json:"confidence"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewRecord constructs a Record, clamping confidence to [0,1], forcing a
// non-negative execution time and bounding text fields. Out-of-range values
// are never stored as given.
func NewRecord(id AgentID, verdict Verdict, reasoning, content string, confidence float64, execMS int64) Record {
	if execMS < 0 {
		execMS = 0
	}
	return Record{
		AgentID:         id,
		Verdict:         verdict,
		Reasoning:       Truncate(reasoning, maxTextLen),
		Content:         Truncate(content, maxTextLen),
		Confidence:      ClampConfidence(confidence),
		ExecutionTimeMS: execMS,
		CreatedAt:       time.Now().UTC(),
	}
}

// ClampConfidence forces a confidence value into [0,1]. NaN-safe: anything
// that does not compare as in-range collapses to 0.
func ClampConfidence(c float64) float64 {
	if c >= 1.0 {
		return 1.0
	}
	if c > 0.0 {
		return c
	}
	return 0.0
}

// Truncate bounds s to at most max bytes, marking the cut. The cut backs
// up to a rune boundary so the result stays valid UTF-8.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... [truncated]"
}

// Batch is the complete set of sage records for one council run,
// ordered by the fixed sage order.
type Batch struct {
	Records []Record `json:"records"`
}

// Complete returns a Batch holding exactly one record per sage id, in sage
// order. Missing sages are padded with a synthesized ABSTAINED record so
// the aggregator and the integrator can assume total, fixed-size input.
func Complete(records []Record) Batch {
	byID := make(map[AgentID]Record, len(records))
	for _, r := range records {
		if _, dup := byID[r.AgentID]; !dup {
			byID[r.AgentID] = r
		}
	}

	out := make([]Record, 0, len(Sages()))
	for _, id := range Sages() {
		r, ok := byID[id]
		if !ok {
			r = Placeholder(id)
		}
		out = append(out, r)
	}
	return Batch{Records: out}
}

// Placeholder synthesizes the record used for a sage that never produced a
// response (failed to start, cancelled before its first event).
func Placeholder(id AgentID) Record {
	return NewRecord(id, VerdictAbstained,
		"no response received from agent",
		"", 0.0, 0)
}

// Get returns the record for the given sage id.
func (b Batch) Get(id AgentID) (Record, bool) {
	for _, r := range b.Records {
		if r.AgentID == id {
			return r, true
		}
	}
	return Record{}, false
}

// VotingResult tallies the verdicts across a Batch.
type VotingResult struct {
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Abstained int `json:"abstained"`
}

// TotalVotes counts all participants, abstentions included.
func (v VotingResult) TotalVotes() int {
	return v.Approved + v.Rejected + v.Abstained
}

// ApprovalRate is approved/(approved+rejected), 0.0 when no agent cast a
// real vote.
func (v VotingResult) ApprovalRate() float64 {
	valid := v.Approved + v.Rejected
	if valid == 0 {
		return 0.0
	}
	return float64(v.Approved) / float64(valid)
}

// AgentScore is the integrator's 0-100 evaluation of one sage's analysis.
type AgentScore struct {
	AgentID   AgentID `json:"agent_id"`
	Score     int     `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// ClampScore forces a score into [0,100].
func ClampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Judgment is the integrator's reconciliation of a Batch: the final verdict
// together with the tally, per-sage scores and the integrator's own text.
type Judgment struct {
	FinalDecision       Verdict      `json:"final_decision"`
	VotingResult        VotingResult `json:"voting_result"`
	Scores              []AgentScore `json:"scores"`
	Summary             string       `json:"summary"`
	FinalRecommendation string       `json:"final_recommendation"`
	Reasoning           string       `json:"reasoning"`
	Confidence          float64      `json:"confidence"`
	ExecutionTimeMS     int64        `json:"execution_time_ms"`
}

// AgentResult is the per-sage slice of the external response.
type AgentResult struct {
	AgentID         AgentID `json:"agent_id"`
	Decision        Verdict `json:"decision"`
	Reasoning       string  `json:"reasoning"`
	Confidence      float64 `json:"confidence"`
	ExecutionTimeMS int64   `json:"execution_time_ms"`
}

// Response is the final combined record returned to every entry point.
type Response struct {
	RequestID           string        `json:"request_id"`
	TraceID             string        `json:"trace_id"`
	FinalDecision       Verdict       `json:"final_decision"`
	VotingResult        VotingResult  `json:"voting_result"`
	AgentResponses      []AgentResult `json:"agent_responses"`
	Scores              []AgentScore  `json:"scores,omitempty"`
	Summary             string        `json:"summary"`
	FinalRecommendation string        `json:"final_recommendation"`
	Reasoning           string        `json:"reasoning"`
	Confidence          float64       `json:"confidence"`
	ExecutionTimeMS     int64         `json:"execution_time_ms"`
	HasErrors           bool          `json:"has_errors"`
	DegradedMode        bool          `json:"degraded_mode"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Request is the narrow input contract shared by all entry points.
type Request struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}
