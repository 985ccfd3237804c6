package enrich

import (
	"context"
	"errors"
	"strings"

	"github.com/smartetl/annotator/internal/llm"
)

// annotationTemperature keeps annotation output stable across runs.
const annotationTemperature = 0.2

// GatewayEnricher annotates records through the LLM gateway.
type GatewayEnricher struct {
	gateway llm.Gateway
	model   string
}

func NewGatewayEnricher(gateway llm.Gateway, model string) *GatewayEnricher {
	return &GatewayEnricher{gateway: gateway, model: model}
}

// Model returns the model identifier used for annotation calls.
func (e *GatewayEnricher) Model() string {
	return e.model
}

// Enrich annotates a single text. Gateway failures are returned as-is (the
// worker pool decides about retries); unparseable model output is returned
// as the failed variant with a MalformedResponseError.
func (e *GatewayEnricher) Enrich(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Failed(), &MalformedResponseError{Reason: "empty record text"}
	}

	raw, err := e.gateway.Generate(ctx, llm.Request{
		Model:       e.model,
		Prompt:      buildPrompt(text),
		Temperature: annotationTemperature,
	})
	if err != nil {
		return Failed(), err
	}
	return ParseResponse(raw)
}

// IsMalformed reports whether the error is a response-shape failure rather
// than a gateway failure.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}
