// Package extract recovers structured verdicts from free-form model output.
//
// Model responses are rarely clean JSON: framework log lines get interleaved
// with the object, prose surrounds it, or a timeout truncates it mid-brace.
// Extract therefore tries progressively looser strategies, from key-anchored
// brace matching down to per-field regex assembly, instead of trusting a
// single json.Unmarshal.
package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Fields is the subset of verdict fields recoverable from raw text. Score
// entries only appear in integrator output.
type Fields struct {
	Decision            string       `json:"decision"`
	FinalDecision       string       `json:"final_decision"`
	Reasoning           string       `json:"reasoning"`
	Content             string       `json:"content"`
	Summary             string       `json:"summary"`
	FinalRecommendation string       `json:"final_recommendation"`
	Confidence          float64      `json:"confidence"`
	Scores              []ScoreField `json:"scores"`
}

// ScoreField is one per-sage score entry in integrator output.
type ScoreField struct {
	AgentID   string `json:"agent_id"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// Verdict returns whichever verdict key the text carried.
func (f *Fields) Verdict() string {
	if f.Decision != "" {
		return f.Decision
	}
	return f.FinalDecision
}

var (
	reDecision   = regexp.MustCompile(`"(?:final_)?decision"\s*:\s*"([A-Za-z]+)"`)
	reReasoning  = regexp.MustCompile(`"reasoning"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reConfidence = regexp.MustCompile(`"confidence"\s*:\s*([0-9]*\.?[0-9]+)`)
	reSummary    = regexp.MustCompile(`"summary"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// Extract recovers verdict fields from raw model text. requiredKey names the
// JSON key anchoring the object of interest ("decision" for sages,
// "final_decision" for the integrator). Returns nil when no strategy
// recovers at least a verdict. It never returns an error; the caller owns
// the deterministic fallback.
func Extract(raw, requiredKey string) *Fields {
	text := stripFences(raw)

	// Strategy 1+2: anchor on the required key, scan back to the nearest
	// unmatched '{', then forward across balanced braces. Invalid candidates
	// are skipped, not fatal.
	if f := extractAnchored(text, requiredKey); f != nil {
		return f
	}

	// Strategy 3: first '{' to last '}' across the whole text.
	if f := extractOutermost(text); f != nil {
		return f
	}

	// Strategy 4: regex per field. Counts as success only if a verdict was
	// found; everything else is best-effort.
	return extractRegex(text)
}

// extractAnchored finds each occurrence of requiredKey and tries the
// balanced object enclosing it.
func extractAnchored(text, requiredKey string) *Fields {
	needle := `"` + requiredKey + `"`
	from := 0
	for {
		idx := strings.Index(text[from:], needle)
		if idx < 0 {
			return nil
		}
		idx += from

		start := openingBrace(text, idx)
		if start >= 0 {
			if f := scanBalanced(text, start); f != nil {
				return f
			}
		}
		from = idx + len(needle)
	}
}

// openingBrace scans backward from pos for the nearest '{' that is still
// unmatched at pos.
func openingBrace(text string, pos int) int {
	depth := 0
	for i := pos - 1; i >= 0; i-- {
		switch text[i] {
		case '}':
			depth++
		case '{':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// scanBalanced walks forward from the opening brace, trying a parse at every
// point where the brace depth returns to zero. A candidate that fails to
// parse does not abort the scan; later balance points may close an object
// the earlier one cut short.
func scanBalanced(text string, start int) *Fields {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				if f := tryParse(text[start : i+1]); f != nil {
					return f
				}
				// Keep consuming; the next '}' may close a larger
				// candidate that parses.
				depth = 1
			}
		}
	}
	return nil
}

func extractOutermost(text string) *Fields {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}
	return tryParse(text[start : end+1])
}

func extractRegex(text string) *Fields {
	m := reDecision.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	f := &Fields{Decision: m[1], Confidence: 0.5}

	if m := reReasoning.FindStringSubmatch(text); m != nil {
		f.Reasoning = unescape(m[1])
	}
	if m := reSummary.FindStringSubmatch(text); m != nil {
		f.Summary = unescape(m[1])
	}
	if m := reConfidence.FindStringSubmatch(text); m != nil {
		if c, err := strconv.ParseFloat(m[1], 64); err == nil {
			f.Confidence = c
		}
	}
	return f
}

// tryParse unmarshals a candidate object and accepts it only if it carries
// a verdict. Log-noise objects ({"event": ...}) parse fine but carry no
// verdict, so they are rejected here and the scan moves on.
func tryParse(candidate string) *Fields {
	var f Fields
	if err := json.Unmarshal([]byte(candidate), &f); err != nil {
		return nil
	}
	if f.Verdict() == "" {
		return nil
	}
	var probe struct {
		Confidence *float64 `json:"confidence"`
	}
	// A verdict without a stated confidence reads as moderate, not zero.
	if err := json.Unmarshal([]byte(candidate), &probe); err == nil && probe.Confidence == nil {
		f.Confidence = 0.5
	}
	return &f
}

// stripFences removes markdown code fences around the payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}
	return s
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
