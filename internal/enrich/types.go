package enrich

import (
	"context"
)

// Sentiment is the classified polarity of one text record.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"

	// SentimentUnknown marks a parse failure, not absence of computation.
	SentimentUnknown Sentiment = "unknown"
)

// ParseSentiment normalizes model output onto the sentiment enum. Anything
// outside the three known polarities is unknown.
func ParseSentiment(raw string) (Sentiment, bool) {
	switch Sentiment(normalizeToken(raw)) {
	case SentimentPositive:
		return SentimentPositive, true
	case SentimentNegative:
		return SentimentNegative, true
	case SentimentNeutral:
		return SentimentNeutral, true
	default:
		return SentimentUnknown, false
	}
}

// Record is one ordered input row: its stable position in the source table
// plus the designated text to enrich. Immutable once read.
type Record struct {
	Index int
	Text  string
}

// Result is the structured enrichment output for a single record.
type Result struct {
	Sentiment Sentiment `json:"sentiment"`
	Keywords  []string  `json:"keywords"`
	Summary   string    `json:"summary"`
}

// Failed is the defined degraded variant: recorded when the model response
// does not parse, or when the gateway fails after retry exhaustion.
func Failed() Result {
	return Result{Sentiment: SentimentUnknown}
}

// IsFailed reports whether the result is the degraded variant.
func (r Result) IsFailed() bool {
	return r.Sentiment == SentimentUnknown && len(r.Keywords) == 0 && r.Summary == ""
}

// Enricher annotates a single record's text.
type Enricher interface {
	Enrich(ctx context.Context, text string) (Result, error)
}

// MalformedResponseError reports model output that did not match the
// expected structured shape.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e == nil {
		return "malformed model response"
	}
	if e.Err != nil {
		return "malformed model response: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed model response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
