// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pdiddy/veritas/pkg/types"
)

// New builds the configured provider client wrapped in a Throttled. The
// returned close function releases provider resources and is never nil.
func New(ctx context.Context, cfg types.LLMConfig, logger *slog.Logger) (*Throttled, func() error, error) {
	noop := func() error { return nil }
	if cfg.APIKey == "" {
		return nil, noop, fmt.Errorf("llm: no API key for provider %q", cfg.Provider)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	var (
		inner   Client
		closeFn = noop
	)
	switch cfg.Provider {
	case types.ProviderDedalus, "":
		inner = &OpenAIClient{BaseURL: orDefault(cfg.BaseURL, DedalusBaseURL), APIKey: cfg.APIKey, Model: cfg.Model, Client: httpClient, Name: "Dedalus"}
	case types.ProviderOpenAI:
		inner = &OpenAIClient{BaseURL: orDefault(cfg.BaseURL, OpenAIBaseURL), APIKey: cfg.APIKey, Model: cfg.Model, Client: httpClient}
	case types.ProviderAnthropic:
		inner = &AnthropicClient{APIKey: cfg.APIKey, Model: cfg.Model, Client: httpClient}
	case types.ProviderGemini:
		g, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, noop, err
		}
		inner, closeFn = g, g.Close
	default:
		return nil, noop, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}

	return NewThrottled(inner, cfg.MinInterval, cfg.RateLimitWait, cfg.MaxRetries, logger), closeFn, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
