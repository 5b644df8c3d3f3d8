// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides a provider-neutral completion client used by the
// ranking, quote extraction, idea synthesis, and review stages.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited is returned (wrapped) when a provider rejects a request
// because of rate limiting.
var ErrRateLimited = errors.New("llm rate limited")

// Request is one completion call.
type Request struct {
	// Model overrides the client's default model when set.
	Model string

	System string
	Prompt string

	// MaxTokens caps the response length; zero uses the provider default.
	MaxTokens   int
	Temperature float64

	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Client completes prompts.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError is a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, body)
}

// Unwrap maps HTTP 429 to ErrRateLimited.
func (e *APIError) Unwrap() error {
	if e.StatusCode == 429 {
		return ErrRateLimited
	}
	return nil
}

const defaultMaxTokens = 4096

func maxTokens(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}

func pickModel(req, fallback string) string {
	if req != "" {
		return req
	}
	return fallback
}
