package llm

import "encoding/json"

// chunkShapes mirrors every increment layout the supported providers emit.
// OpenAI-style deltas, legacy completion text, Bedrock content-block deltas
// and bare {"text": ...} / plain-string payloads all collapse to one text
// increment here.
type chunkShape struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Text string `json:"text"`
	} `json:"choices"`
	Event struct {
		ContentBlockDelta struct {
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
		} `json:"contentBlockDelta"`
	} `json:"event"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	Text string `json:"text"`
	Data string `json:"data"`
}

// ExtractText normalizes one raw stream increment to its text content.
// Returns false for increments that carry no text (control frames, tool
// events, unknown shapes). Callers skip those, they are not errors.
func ExtractText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	// A bare JSON string is already the text.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}

	var c chunkShape
	if err := json.Unmarshal(raw, &c); err != nil {
		return "", false
	}

	if len(c.Choices) > 0 {
		if t := c.Choices[0].Delta.Content; t != "" {
			return t, true
		}
		if t := c.Choices[0].Text; t != "" {
			return t, true
		}
	}
	if t := c.Event.ContentBlockDelta.Delta.Text; t != "" {
		return t, true
	}
	if t := c.Delta.Text; t != "" {
		return t, true
	}
	if t := c.Text; t != "" {
		return t, true
	}
	if t := c.Data; t != "" {
		return t, true
	}
	return "", false
}
