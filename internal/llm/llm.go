// Package llm defines the gateway boundary to the hosted language model.
//
// Everything above this boundary (enrichment, query translation) depends on
// the Gateway interface only; the vendor SDK lives in a subpackage.
package llm

import (
	"context"
	"fmt"
)

// Request is one text-completion call.
type Request struct {
	Model       string
	Prompt      string
	Temperature float32
}

// Gateway is a stateless request/response boundary to the hosted model.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GenerateFunc adapts a function to the Gateway interface.
type GenerateFunc func(ctx context.Context, req Request) (string, error)

func (f GenerateFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// FailureKind classifies gateway failures.
type FailureKind string

const (
	RateLimited    FailureKind = "rate_limited"
	Timeout        FailureKind = "timeout"
	ServerError    FailureKind = "server_error"
	InvalidRequest FailureKind = "invalid_request"
)

// GatewayError is a classified gateway failure. Transient kinds are wrapped
// in core.TransientError by the gateway implementation so the worker pool
// retries them.
type GatewayError struct {
	Kind FailureKind
	Err  error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "gateway error"
	}
	if e.Err == nil {
		return fmt.Sprintf("gateway error: %s", e.Kind)
	}
	return fmt.Sprintf("gateway error (%s): %s", e.Kind, e.Err.Error())
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
