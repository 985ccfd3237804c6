package enrich

import (
	"encoding/json"
	"strings"
)

// buildPrompt asks for exactly the three annotation fields as bare JSON.
// Keep it public-safe: the record text is the only dynamic content.
func buildPrompt(text string) string {
	return strings.TrimSpace(`
You are a data annotation tool. Analyze the following text record and return ONLY a single JSON object with these keys:
- sentiment (string; one of: positive, negative, neutral)
- keywords (array of strings; up to 5 short keywords from the text)
- summary (string; one sentence)

Rules:
- Do not include extra keys, markdown, or explanations.
- If the text carries no clear polarity, use "neutral".

Text: ` + text + `
`)
}

type responseSchema struct {
	Sentiment string   `json:"sentiment"`
	Keywords  []string `json:"keywords"`
	Summary   string   `json:"summary"`
}

// ParseResponse validates raw model output against the expected shape.
//
// On any mismatch it returns the defined failed variant alongside a
// MalformedResponseError; callers record the row as failed and continue.
func ParseResponse(raw string) (Result, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return Failed(), &MalformedResponseError{Reason: "empty response"}
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Failed(), &MalformedResponseError{Reason: "invalid json", Err: err}
	}

	sentiment, ok := ParseSentiment(parsed.Sentiment)
	if !ok {
		return Failed(), &MalformedResponseError{Reason: "unrecognized sentiment " + strings.TrimSpace(parsed.Sentiment)}
	}

	return Result{
		Sentiment: sentiment,
		Keywords:  dedupePreserveOrder(parsed.Keywords),
		Summary:   strings.TrimSpace(parsed.Summary),
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence, if present.
// Models add them despite instructions not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func dedupePreserveOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
