// Package persona holds the role configuration for each council agent and
// builds the prompts sent to them.
//
// Roles live in a fixed table keyed by agent id instead of free-standing
// prompt globals. Only the personality portion of a prompt is overridable
// through configuration; the output schema sections are fixed so the
// extractor always has a contract to recover.
package persona

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nerv-labs/magi/internal/config"
	"github.com/nerv-labs/magi/internal/domain/decision"
)

// Role is one agent's prompt personality and model parameters.
type Role struct {
	Name        string
	RoleText    string
	Model       string
	Temperature float64
}

const defaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

// defaults is the built-in council: three differently biased sages and the
// integrator.
func defaults() map[decision.AgentID]Role {
	return map[decision.AgentID]Role{
		decision.AgentCaspar: {
			Name: "CASPAR",
			RoleText: "You are CASPAR, the conservative and pragmatic member of a decision council. " +
				"Weigh risks, costs and failure modes first. Approve only proposals whose downside is " +
				"understood and bounded.",
			Model:       defaultModel,
			Temperature: 0.3,
		},
		decision.AgentBalthasar: {
			Name: "BALTHASAR",
			RoleText: "You are BALTHASAR, the innovative and opportunity-driven member of a decision council. " +
				"Weigh upside, growth and what is lost by standing still. Challenge excessive caution.",
			Model:       defaultModel,
			Temperature: 0.8,
		},
		decision.AgentMelchior: {
			Name: "MELCHIOR",
			RoleText: "You are MELCHIOR, the balanced and evidence-driven member of a decision council. " +
				"Weigh data, logic and measurable outcomes. Separate what is known from what is assumed.",
			Model:       defaultModel,
			Temperature: 0.5,
		},
		decision.AgentSolomon: {
			Name: "SOLOMON",
			RoleText: "You are SOLOMON, the presiding judge of a decision council. Three advisors have " +
				"analyzed a question independently. Reconcile their verdicts into one final decision, " +
				"scoring the quality of each analysis.",
			Model:       defaultModel,
			Temperature: 0.2,
		},
	}
}

// sageSchema is the fixed output contract for sages. Never overridable.
const sageSchema = `Respond with a single JSON object and nothing else:
{
  "decision": "APPROVED" or "REJECTED",
  "reasoning": "the logical basis for your verdict",
  "content": "your full analysis",
  "confidence": 0.0 to 1.0
}`

// judgeSchema is the fixed output contract for the integrator.
const judgeSchema = `Respond with a single JSON object and nothing else:
{
  "final_decision": "APPROVED" or "REJECTED",
  "summary": "synthesis of the council's analyses",
  "final_recommendation": "actionable recommendation",
  "reasoning": "the basis for the final decision",
  "confidence": 0.0 to 1.0,
  "scores": [
    {"agent_id": "caspar", "score": 0-100, "reasoning": "evaluation of this advisor"},
    {"agent_id": "balthasar", "score": 0-100, "reasoning": "evaluation of this advisor"},
    {"agent_id": "melchior", "score": 0-100, "reasoning": "evaluation of this advisor"}
  ]
}`

// Table maps every council agent to its Role, with overrides applied.
type Table struct {
	roles map[decision.AgentID]Role
}

// NewTable builds the role table, applying configured overrides to the
// personality text, model and temperature only.
func NewTable(overrides config.Personas) *Table {
	roles := defaults()
	for id, o := range overrides {
		base, ok := roles[decision.AgentID(id)]
		if !ok {
			continue
		}
		if o.Role != "" {
			base.RoleText = o.Role
		}
		if o.Model != "" {
			base.Model = o.Model
		}
		if o.Temperature > 0 {
			base.Temperature = o.Temperature
		}
		roles[decision.AgentID(id)] = base
	}
	return &Table{roles: roles}
}

// Role returns the role for the given agent id.
func (t *Table) Role(id decision.AgentID) Role {
	return t.roles[id]
}

// SagePrompt builds the full prompt for one sage's turn. The question and
// context are user-provided data and are sanitized before embedding.
func (t *Table) SagePrompt(id decision.AgentID, question, context string) string {
	role := t.roles[id]

	var b strings.Builder
	b.WriteString(role.RoleText)
	b.WriteString("\n\n## Question\n")
	b.WriteString(SanitizeInput(question))
	if context != "" {
		b.WriteString("\n\n## Context\n")
		b.WriteString(SanitizeInput(context))
	}
	b.WriteString("\n\nAnalyze the question from your perspective. ")
	b.WriteString(sageSchema)
	return b.String()
}

// JudgePrompt builds the integrator prompt, serializing the complete sage
// batch into the context.
func (t *Table) JudgePrompt(question string, batch decision.Batch) string {
	role := t.roles[decision.AgentSolomon]

	var b strings.Builder
	b.WriteString(role.RoleText)
	b.WriteString("\n\n## Original question\n")
	b.WriteString(SanitizeInput(question))
	b.WriteString("\n\n## Advisor verdicts\n")
	for _, r := range batch.Records {
		fmt.Fprintf(&b, "\n**%s**\n- verdict: %s\n- reasoning: %s\n- confidence: %.2f\n",
			strings.ToUpper(string(r.AgentID)), r.Verdict, r.Reasoning, r.Confidence)
		if r.Content != "" {
			fmt.Fprintf(&b, "- analysis: %s\n", decision.Truncate(r.Content, 400))
		}
	}
	b.WriteString("\nEvaluate the advisors and deliver the final decision. ")
	b.WriteString(judgeSchema)
	return b.String()
}

// SanitizeInput strips control characters and common prompt injection role
// markers from user-supplied text before it is embedded in a prompt, and
// bounds its length.
func SanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.ToLower(line))
		for _, prefix := range []string{
			"system:", "assistant:", "user:", "[system]", "[assistant]",
			"<|system|>", "<|assistant|>", "<|im_start|>",
			"### system", "### assistant", "### instruction",
		} {
			if strings.HasPrefix(trimmed, prefix) {
				lines[i] = "[sanitized] " + line
				break
			}
		}
	}
	s = strings.Join(lines, "\n")

	const maxInputLen = 10000
	if len(s) > maxInputLen {
		cut := maxInputLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "\n[truncated]"
	}

	return s
}
