package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/smartetl/annotator/internal/llm"
	"github.com/smartetl/annotator/pkg/pipeline/core"
	"google.golang.org/genai"
)

type Config struct {
	APIKey string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Gateway implements llm.Gateway against the Gemini API.
type Gateway struct {
	client *genai.Client
}

func New(ctx context.Context, cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Gateway{client: client}, nil
}

// Generate performs one text-completion call and returns the raw model text.
func (g *Gateway) Generate(ctx context.Context, req llm.Request) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		return "", &llm.GatewayError{Kind: llm.InvalidRequest, Err: errors.New("model is required")}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", &llm.GatewayError{Kind: llm.InvalidRequest, Err: errors.New("empty prompt")}
	}

	temp := req.Temperature
	resp, err := g.client.Models.GenerateContent(
		ctx,
		req.Model,
		genai.Text(req.Prompt),
		&genai.GenerateContentConfig{
			CandidateCount: 1,
			Temperature:    &temp,
		},
	)
	if err != nil {
		return "", classifyErr(err)
	}
	return resp.Text(), nil
}

// classifyErr maps SDK failures onto the gateway taxonomy. Transient kinds
// are additionally wrapped so the worker pool retries with backoff.
func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &core.TransientError{Err: &llm.GatewayError{Kind: llm.RateLimited, Err: err}}
		case apiErr.Code/100 == 5:
			return &core.TransientError{Err: &llm.GatewayError{Kind: llm.ServerError, Err: err}}
		default:
			return &llm.GatewayError{Kind: llm.InvalidRequest, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.TransientError{Err: &llm.GatewayError{Kind: llm.Timeout, Err: err}}
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &core.TransientError{Err: &llm.GatewayError{Kind: llm.Timeout, Err: err}}
	}
	return err
}
